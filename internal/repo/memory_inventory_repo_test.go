package repo

import (
	"testing"

	"github.com/MorseWayne/stock_ledger/internal/domain"
)

func mustItem(t *testing.T, warehouseID, variantID, initial int64) *domain.InventoryItem {
	t.Helper()
	item, err := domain.NewInventoryItem(warehouseID, 10, variantID, "SKU-A", "Widget", initial, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	return item
}

func TestMemoryRepo_CreateAndGet(t *testing.T) {
	r := NewMemoryInventoryItemRepository()

	item := mustItem(t, 1, 100, 10)
	if err := r.Create(item); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("Create should assign an ID")
	}
	if len(item.PendingMovements()) != 0 {
		t.Fatal("Create should drain pending movements")
	}

	// duplicate (warehouse, variant) rejected
	dup := mustItem(t, 1, 100, 0)
	if err := r.Create(dup); !domain.IsInvariant(err) {
		t.Fatalf("expected invariant error for duplicate variant, got %v", err)
	}

	got, err := r.GetByID(item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.QuantityOnHand != 10 {
		t.Fatalf("unexpected item: %+v", got)
	}

	// snapshots are isolated from repository state
	got.QuantityOnHand = 999
	again, _ := r.GetByID(item.ID)
	if again.QuantityOnHand != 10 {
		t.Fatal("mutating a snapshot must not affect stored state")
	}

	missing, err := r.GetByID(12345)
	if err != nil || missing != nil {
		t.Fatalf("missing item should be (nil, nil), got (%v, %v)", missing, err)
	}
}

func TestMemoryRepo_SaveVersionConflict(t *testing.T) {
	r := NewMemoryInventoryItemRepository()

	item := mustItem(t, 1, 100, 10)
	if err := r.Create(item); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// two sessions load the same version
	a, _ := r.GetByID(item.ID)
	b, _ := r.GetByID(item.ID)

	if err := a.Reserve("order-1", 3); err != nil {
		t.Fatalf("reserve a: %v", err)
	}
	if err := r.Save(a); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if a.Version != 1 {
		t.Fatalf("save should bump version to 1, got %d", a.Version)
	}

	// the stale session must hit a conflict
	if err := b.Reserve("order-2", 2); err != nil {
		t.Fatalf("reserve b: %v", err)
	}
	if err := r.Save(b); !domain.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	// reload and retry succeeds
	b2, _ := r.GetByID(item.ID)
	if err := b2.Reserve("order-2", 2); err != nil {
		t.Fatalf("reserve b2: %v", err)
	}
	if err := r.Save(b2); err != nil {
		t.Fatalf("save b2: %v", err)
	}

	final, _ := r.GetByID(item.ID)
	if final.QuantityReserved != 5 {
		t.Fatalf("expected reserved=5, got %d", final.QuantityReserved)
	}
}

func TestMemoryRepo_ListByOrder(t *testing.T) {
	r := NewMemoryInventoryItemRepository()

	first := mustItem(t, 1, 100, 10)
	if err := r.Create(first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := domain.NewInventoryItem(2, 10, 100, "SKU-A", "Widget", 10, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	if err := r.Create(second); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, it := range []*domain.InventoryItem{first, second} {
		loaded, _ := r.GetByID(it.ID)
		if err := loaded.Reserve("order-1", 2); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := r.Save(loaded); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	items, err := r.ListByOrder("order-1")
	if err != nil {
		t.Fatalf("ListByOrder: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items holding reservations, got %d", len(items))
	}

	none, err := r.ListByOrder("unknown")
	if err != nil {
		t.Fatalf("ListByOrder unknown: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no items, got %d", len(none))
	}
}

func TestMemoryRepo_MovementLog(t *testing.T) {
	r := NewMemoryInventoryItemRepository()

	item := mustItem(t, 1, 100, 10)
	if err := r.Create(item); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, _ := r.GetByID(item.ID)
	if err := loaded.Reserve("order-1", 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := loaded.Confirm("order-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := r.Save(loaded); err != nil {
		t.Fatalf("save: %v", err)
	}

	resp, err := r.List(&domain.MovementListRequest{
		InventoryItemID: &item.ID,
		Page:            1,
		PageSize:        10,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	// receive + reserve + confirm
	if resp.Total != 3 {
		t.Fatalf("expected 3 movements, got %d", resp.Total)
	}

	reserved := string(domain.MovementReserved)
	filtered, err := r.List(&domain.MovementListRequest{
		Type:     &reserved,
		Page:     1,
		PageSize: 10,
	})
	if err != nil {
		t.Fatalf("List by type: %v", err)
	}
	if filtered.Total != 1 {
		t.Fatalf("expected 1 reserved movement, got %d", filtered.Total)
	}

	count, err := r.CountByItem(item.ID)
	if err != nil {
		t.Fatalf("CountByItem: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/repo"
)

type warehouseFixture struct {
	warehouseRepo *repo.MemoryWarehouseRepository
	itemRepo      *repo.MemoryInventoryItemRepository
	publisher     *mockPublisher
	svc           WarehouseService
}

func newWarehouseFixture(t *testing.T) *warehouseFixture {
	t.Helper()

	f := &warehouseFixture{
		warehouseRepo: repo.NewMemoryWarehouseRepository(),
		itemRepo:      repo.NewMemoryInventoryItemRepository(),
		publisher:     &mockPublisher{},
	}
	f.svc = NewWarehouseService(f.warehouseRepo, f.itemRepo, f.publisher, zap.NewNop())
	return f
}

func (f *warehouseFixture) create(t *testing.T, code string, isDefault bool) *domain.Warehouse {
	t.Helper()
	w, err := f.svc.CreateWarehouse(context.Background(), &domain.CreateWarehouseRequest{
		Code:      code,
		Name:      "Warehouse " + code,
		IsDefault: isDefault,
	})
	if err != nil {
		t.Fatalf("CreateWarehouse(%s): %v", code, err)
	}
	return w
}

func TestCreateWarehouse_DuplicateCode(t *testing.T) {
	f := newWarehouseFixture(t)
	f.create(t, "WH-1", false)

	_, err := f.svc.CreateWarehouse(context.Background(), &domain.CreateWarehouseRequest{
		Code: "WH-1",
		Name: "Duplicate",
	})
	if !domain.IsInvariant(err) {
		t.Fatalf("expected invariant for duplicate code, got %v", err)
	}
}

func TestCreateWarehouse_EventCarriesAssignedID(t *testing.T) {
	f := newWarehouseFixture(t)
	w := f.create(t, "WH-1", false)

	if w.ID == 0 {
		t.Fatal("expected repository to assign an id")
	}

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if len(f.publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.publisher.events))
	}
	ev, ok := f.publisher.events[0].(domain.WarehouseCreated)
	if !ok {
		t.Fatalf("expected WarehouseCreated, got %T", f.publisher.events[0])
	}
	if ev.WarehouseID != w.ID {
		t.Fatalf("event warehouse id %d, want %d", ev.WarehouseID, w.ID)
	}
}

func TestCreateWarehouse_FirstDefault(t *testing.T) {
	f := newWarehouseFixture(t)
	w := f.create(t, "WH-1", true)

	def, err := f.svc.GetDefaultWarehouse(context.Background())
	if err != nil {
		t.Fatalf("GetDefaultWarehouse: %v", err)
	}
	if def.ID != w.ID {
		t.Fatalf("default warehouse id %d, want %d", def.ID, w.ID)
	}
}

func TestSetDefaultWarehouse_SwitchesSingleton(t *testing.T) {
	f := newWarehouseFixture(t)
	a := f.create(t, "WH-A", true)
	b := f.create(t, "WH-B", false)
	ctx := context.Background()

	if _, err := f.svc.SetDefaultWarehouse(ctx, b.ID); err != nil {
		t.Fatalf("SetDefaultWarehouse: %v", err)
	}

	def, err := f.svc.GetDefaultWarehouse(ctx)
	if err != nil {
		t.Fatalf("GetDefaultWarehouse: %v", err)
	}
	if def.ID != b.ID {
		t.Fatalf("default warehouse id %d, want %d", def.ID, b.ID)
	}
	old, _ := f.warehouseRepo.GetByID(a.ID)
	if old.IsDefault {
		t.Fatal("previous default must be demoted")
	}
}

func TestSetDefaultWarehouse_RejectsInactive(t *testing.T) {
	f := newWarehouseFixture(t)
	w := f.create(t, "WH-1", false)
	ctx := context.Background()

	if _, err := f.svc.DeactivateWarehouse(ctx, w.ID); err != nil {
		t.Fatalf("DeactivateWarehouse: %v", err)
	}
	if _, err := f.svc.SetDefaultWarehouse(ctx, w.ID); !domain.IsInvariant(err) {
		t.Fatalf("expected invariant for inactive warehouse, got %v", err)
	}
}

func TestDeactivateWarehouse_RejectsRemainingStock(t *testing.T) {
	f := newWarehouseFixture(t)
	w := f.create(t, "WH-1", false)

	item, err := domain.NewInventoryItem(w.ID, 10, 100, "SKU-A", "Widget", 5, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	if err := f.itemRepo.Create(item); err != nil {
		t.Fatalf("create item: %v", err)
	}
	ctx := context.Background()

	if _, err := f.svc.DeactivateWarehouse(ctx, w.ID); !domain.IsInvariant(err) {
		t.Fatalf("expected invariant while stock remains, got %v", err)
	}

	// drain the stock, then deactivation succeeds
	if err := item.Ship(5, "drain"); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := f.itemRepo.Save(item); err != nil {
		t.Fatalf("save item: %v", err)
	}
	got, err := f.svc.DeactivateWarehouse(ctx, w.ID)
	if err != nil {
		t.Fatalf("DeactivateWarehouse after drain: %v", err)
	}
	if got.IsActive {
		t.Fatal("warehouse must be inactive")
	}
}

func TestActivateWarehouse_Idempotent(t *testing.T) {
	f := newWarehouseFixture(t)
	w := f.create(t, "WH-1", false)
	ctx := context.Background()

	if _, err := f.svc.DeactivateWarehouse(ctx, w.ID); err != nil {
		t.Fatalf("DeactivateWarehouse: %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := f.svc.ActivateWarehouse(ctx, w.ID)
		if err != nil {
			t.Fatalf("ActivateWarehouse: %v", err)
		}
		if !got.IsActive {
			t.Fatal("warehouse must be active")
		}
	}
}

func TestUpdateWarehouse(t *testing.T) {
	f := newWarehouseFixture(t)
	w := f.create(t, "WH-1", false)
	ctx := context.Background()

	got, err := f.svc.UpdateWarehouse(ctx, w.ID, &domain.UpdateWarehouseRequest{
		Name:    "Renamed",
		Address: "1 Dock Road",
	})
	if err != nil {
		t.Fatalf("UpdateWarehouse: %v", err)
	}
	if got.Name != "Renamed" || got.Address != "1 Dock Road" {
		t.Fatalf("unexpected warehouse: %+v", got)
	}

	if _, err := f.svc.UpdateWarehouse(ctx, 999, &domain.UpdateWarehouseRequest{Name: "x"}); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

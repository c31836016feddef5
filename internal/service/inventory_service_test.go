package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/repo"
)

type inventoryFixture struct {
	itemRepo      *repo.MemoryInventoryItemRepository
	warehouseRepo *repo.MemoryWarehouseRepository
	publisher     *mockPublisher
	catalog       *mockCatalog
	svc           InventoryService
}

func fastTestConfig() *InventoryServiceConfig {
	cfg := DefaultInventoryServiceConfig()
	cfg.RetryInterval = time.Millisecond
	return cfg
}

func newInventoryFixture(t *testing.T) *inventoryFixture {
	t.Helper()

	f := &inventoryFixture{
		itemRepo:      repo.NewMemoryInventoryItemRepository(),
		warehouseRepo: repo.NewMemoryWarehouseRepository(),
		publisher:     &mockPublisher{},
		catalog:       &mockCatalog{products: map[string]*CatalogProduct{}},
	}
	f.svc = NewInventoryService(
		f.itemRepo, f.warehouseRepo, f.itemRepo, f.catalog, f.publisher, nil,
		fastTestConfig(), zap.NewNop())
	return f
}

func (f *inventoryFixture) addWarehouse(t *testing.T, code string, isDefault bool) *domain.Warehouse {
	t.Helper()
	w, err := domain.NewWarehouse(code, "Warehouse "+code, "", false)
	if err != nil {
		t.Fatalf("NewWarehouse: %v", err)
	}
	if err := f.warehouseRepo.Create(w); err != nil {
		t.Fatalf("create warehouse: %v", err)
	}
	if isDefault {
		if err := f.warehouseRepo.PromoteDefault(w); err != nil {
			t.Fatalf("promote default: %v", err)
		}
	}
	return w
}

func (f *inventoryFixture) addItem(t *testing.T, warehouseID, variantID, quantity int64) *domain.InventoryItem {
	t.Helper()
	item, err := f.svc.CreateInventoryItem(
		context.Background(), warehouseID, 10, variantID, "SKU-A", "Widget", quantity)
	if err != nil {
		t.Fatalf("CreateInventoryItem: %v", err)
	}
	return item
}

func TestCreateInventoryItem_RequiresActiveWarehouse(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateInventoryItem(ctx, 999, 10, 100, "SKU-A", "Widget", 0); !domain.IsNotFound(err) {
		t.Fatalf("expected not found for missing warehouse, got %v", err)
	}

	w := f.addWarehouse(t, "WH-1", false)
	if err := w.Deactivate(); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := f.warehouseRepo.Save(w); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.svc.CreateInventoryItem(ctx, w.ID, 10, 100, "SKU-A", "Widget", 0); !domain.IsInvariant(err) {
		t.Fatalf("expected invariant for inactive warehouse, got %v", err)
	}
}

func TestCreateInventoryItem_PublishesEvents(t *testing.T) {
	f := newInventoryFixture(t)
	w := f.addWarehouse(t, "WH-1", false)

	f.addItem(t, w.ID, 100, 10)

	names := f.publisher.names()
	var created, received bool
	for _, n := range names {
		switch n {
		case "inventory.item_created":
			created = true
		case "inventory.received":
			received = true
		}
	}
	if !created || !received {
		t.Fatalf("expected item_created and received events, got %v", names)
	}

	// duplicate variant rejected up front
	if _, err := f.svc.CreateInventoryItem(
		context.Background(), w.ID, 10, 100, "SKU-A", "Widget", 0); !domain.IsInvariant(err) {
		t.Fatalf("expected invariant for duplicate variant, got %v", err)
	}
}

func TestReceive_RetriesOnVersionConflict(t *testing.T) {
	f := newInventoryFixture(t)
	w := f.addWarehouse(t, "WH-1", false)
	f.addItem(t, w.ID, 100, 10)

	flaky := &flakyItemRepo{InventoryItemRepository: f.itemRepo, conflictCount: 2}
	svc := NewInventoryService(
		flaky, f.warehouseRepo, f.itemRepo, nil, nil, nil, fastTestConfig(), zap.NewNop())

	item, err := svc.Receive(context.Background(), w.ID, 100, 5, "po-1")
	if err != nil {
		t.Fatalf("Receive should succeed after retries: %v", err)
	}
	if item.QuantityOnHand != 15 {
		t.Fatalf("expected on_hand=15, got %d", item.QuantityOnHand)
	}
	if flaky.saveCalls != 3 {
		t.Fatalf("expected 3 save attempts, got %d", flaky.saveCalls)
	}
}

func TestReceive_ConflictBudgetExhausted(t *testing.T) {
	f := newInventoryFixture(t)
	w := f.addWarehouse(t, "WH-1", false)
	f.addItem(t, w.ID, 100, 10)

	flaky := &flakyItemRepo{InventoryItemRepository: f.itemRepo, conflictCount: 100}
	svc := NewInventoryService(
		flaky, f.warehouseRepo, f.itemRepo, nil, nil, nil, fastTestConfig(), zap.NewNop())

	if _, err := svc.Receive(context.Background(), w.ID, 100, 5, "po-1"); !domain.IsConflict(err) {
		t.Fatalf("expected conflict after budget exhausted, got %v", err)
	}

	// state must be unchanged
	stored, _ := f.itemRepo.GetByVariant(w.ID, 100)
	if stored.QuantityOnHand != 10 {
		t.Fatalf("expected on_hand unchanged at 10, got %d", stored.QuantityOnHand)
	}
}

func TestReserveOrder_DefaultWarehouseFallback(t *testing.T) {
	f := newInventoryFixture(t)
	w := f.addWarehouse(t, "WH-1", true)
	f.addItem(t, w.ID, 100, 10)
	ctx := context.Background()

	resp, err := f.svc.ReserveOrder(ctx, &domain.ReserveOrderRequest{
		OrderID: "order-1",
		Lines:   []domain.ReserveLine{{VariantID: 100, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("ReserveOrder: %v", err)
	}
	if len(resp.Lines) != 1 || resp.Lines[0].WarehouseID != w.ID {
		t.Fatalf("expected line resolved to default warehouse, got %+v", resp.Lines)
	}
	if resp.Lines[0].AvailableAfter != 6 {
		t.Fatalf("expected available_after=6, got %d", resp.Lines[0].AvailableAfter)
	}
}

func TestReserveOrder_NoDefaultWarehouse(t *testing.T) {
	f := newInventoryFixture(t)
	w := f.addWarehouse(t, "WH-1", false)
	f.addItem(t, w.ID, 100, 10)

	_, err := f.svc.ReserveOrder(context.Background(), &domain.ReserveOrderRequest{
		OrderID: "order-1",
		Lines:   []domain.ReserveLine{{VariantID: 100, Quantity: 1}},
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found without default warehouse, got %v", err)
	}
}

func TestReserveOrder_CompensatesOnPartialFailure(t *testing.T) {
	f := newInventoryFixture(t)
	w1 := f.addWarehouse(t, "WH-1", false)
	w2 := f.addWarehouse(t, "WH-2", false)
	f.addItem(t, w1.ID, 100, 10)

	second, err := domain.NewInventoryItem(w2.ID, 10, 200, "SKU-B", "Gadget", 2, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	if err := f.itemRepo.Create(second); err != nil {
		t.Fatalf("create second item: %v", err)
	}

	// second line requests more than available: whole order must fail
	_, err = f.svc.ReserveOrder(context.Background(), &domain.ReserveOrderRequest{
		OrderID: "order-1",
		Lines: []domain.ReserveLine{
			{VariantID: 100, WarehouseID: &w1.ID, Quantity: 4},
			{VariantID: 200, WarehouseID: &w2.ID, Quantity: 5},
		},
	})
	var ise *domain.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	// first line's reservation must have been released
	first, _ := f.itemRepo.GetByVariant(w1.ID, 100)
	if first.QuantityReserved != 0 {
		t.Fatalf("expected compensation to release first line, reserved=%d", first.QuantityReserved)
	}
	items, _ := f.itemRepo.ListByOrder("order-1")
	if len(items) != 0 {
		t.Fatalf("expected no surviving reservations, got %d", len(items))
	}
}

// 两个并发预留竞争同一库存项且总量超过在库量时，
// 条件写保证恰好一个成功，预留量绝不超过在库量。
func TestReserveOrder_ConcurrentNeverOversells(t *testing.T) {
	f := newInventoryFixture(t)
	w := f.addWarehouse(t, "WH-1", false)
	f.addItem(t, w.ID, 100, 10)
	ctx := context.Background()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, orderID := range []string{"order-a", "order-b"} {
		wg.Add(1)
		go func(i int, orderID string) {
			defer wg.Done()
			_, errs[i] = f.svc.ReserveOrder(ctx, &domain.ReserveOrderRequest{
				OrderID: orderID,
				Lines:   []domain.ReserveLine{{VariantID: 100, WarehouseID: &w.ID, Quantity: 7}},
			})
		}(i, orderID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// the loser reloads and sees only 3 available, or runs out of retries
		var ise *domain.InsufficientStockError
		if !errors.As(err, &ise) && !domain.IsConflict(err) {
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one reserve to succeed, got %d", succeeded)
	}

	item, err := f.itemRepo.GetByVariant(w.ID, 100)
	if err != nil || item == nil {
		t.Fatalf("GetByVariant: (%+v, %v)", item, err)
	}
	if item.QuantityReserved != 7 {
		t.Fatalf("expected reserved 7, got %d", item.QuantityReserved)
	}
	if item.QuantityReserved > item.QuantityOnHand {
		t.Fatalf("reserved %d exceeds on-hand %d", item.QuantityReserved, item.QuantityOnHand)
	}
	if len(item.Reservations) != 1 {
		t.Fatalf("expected a single reservation, got %d", len(item.Reservations))
	}
}

func TestReleaseOrder_NoReservationsIsIdempotent(t *testing.T) {
	f := newInventoryFixture(t)

	if err := f.svc.ReleaseOrder(context.Background(), "unknown-order"); err != nil {
		t.Fatalf("release of unknown order must succeed, got %v", err)
	}
	if err := f.svc.ReleaseOrder(context.Background(), ""); !domain.IsInvariant(err) {
		t.Fatalf("empty order id must fail, got %v", err)
	}
}

func TestConfirmOrder_AcrossWarehouses(t *testing.T) {
	f := newInventoryFixture(t)
	w1 := f.addWarehouse(t, "WH-1", false)
	w2 := f.addWarehouse(t, "WH-2", false)
	f.addItem(t, w1.ID, 100, 10)

	second, err := domain.NewInventoryItem(w2.ID, 10, 200, "SKU-B", "Gadget", 8, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	if err := f.itemRepo.Create(second); err != nil {
		t.Fatalf("create second item: %v", err)
	}
	ctx := context.Background()

	if _, err := f.svc.ReserveOrder(ctx, &domain.ReserveOrderRequest{
		OrderID: "order-1",
		Lines: []domain.ReserveLine{
			{VariantID: 100, WarehouseID: &w1.ID, Quantity: 4},
			{VariantID: 200, WarehouseID: &w2.ID, Quantity: 3},
		},
	}); err != nil {
		t.Fatalf("ReserveOrder: %v", err)
	}

	if err := f.svc.ConfirmOrder(ctx, "order-1"); err != nil {
		t.Fatalf("ConfirmOrder: %v", err)
	}

	first, _ := f.itemRepo.GetByVariant(w1.ID, 100)
	if first.QuantityOnHand != 6 || first.QuantityReserved != 0 {
		t.Fatalf("first item after confirm: on_hand=%d reserved=%d", first.QuantityOnHand, first.QuantityReserved)
	}
	other, _ := f.itemRepo.GetByVariant(w2.ID, 200)
	if other.QuantityOnHand != 5 || other.QuantityReserved != 0 {
		t.Fatalf("second item after confirm: on_hand=%d reserved=%d", other.QuantityOnHand, other.QuantityReserved)
	}

	// confirming again finds nothing
	if err := f.svc.ConfirmOrder(ctx, "order-1"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found on second confirm, got %v", err)
	}
}

func TestImportBySku_LazyCreatesFromCatalog(t *testing.T) {
	f := newInventoryFixture(t)
	w := f.addWarehouse(t, "WH-1", false)
	f.catalog.products["SKU-NEW"] = &CatalogProduct{
		ProductID:   7,
		VariantID:   70,
		Sku:         "SKU-NEW",
		ProductName: "New Thing",
	}
	ctx := context.Background()

	item, err := f.svc.ImportBySku(ctx, &domain.ImportBySkuRequest{
		WarehouseID: w.ID,
		Sku:         "sku-new",
		Quantity:    12,
	})
	if err != nil {
		t.Fatalf("ImportBySku: %v", err)
	}
	if item.ProductID != 7 || item.VariantID != 70 || item.QuantityOnHand != 12 {
		t.Fatalf("unexpected item: %+v", item)
	}

	// second import tops up the same item
	item, err = f.svc.ImportBySku(ctx, &domain.ImportBySkuRequest{
		WarehouseID: w.ID,
		Sku:         "SKU-NEW",
		Quantity:    3,
	})
	if err != nil {
		t.Fatalf("second ImportBySku: %v", err)
	}
	if item.QuantityOnHand != 15 {
		t.Fatalf("expected on_hand=15, got %d", item.QuantityOnHand)
	}
}

func TestImportBySku_UnknownSku(t *testing.T) {
	f := newInventoryFixture(t)
	w := f.addWarehouse(t, "WH-1", false)

	_, err := f.svc.ImportBySku(context.Background(), &domain.ImportBySkuRequest{
		WarehouseID: w.ID,
		Sku:         "SKU-MISSING",
		Quantity:    1,
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found for unknown sku, got %v", err)
	}
}

func TestAdjustToTarget(t *testing.T) {
	f := newInventoryFixture(t)
	w := f.addWarehouse(t, "WH-1", false)
	f.addItem(t, w.ID, 100, 10)
	ctx := context.Background()

	// no-op when the target equals the current quantity
	item, err := f.svc.AdjustToTarget(ctx, &domain.AdjustToTargetRequest{
		WarehouseID: w.ID,
		VariantID:   100,
		NewQuantity: 10,
		Reason:      "stocktake",
	})
	if err != nil {
		t.Fatalf("noop adjust: %v", err)
	}
	if item.QuantityOnHand != 10 {
		t.Fatalf("expected on_hand=10, got %d", item.QuantityOnHand)
	}

	item, err = f.svc.AdjustToTarget(ctx, &domain.AdjustToTargetRequest{
		WarehouseID: w.ID,
		VariantID:   100,
		NewQuantity: 4,
		Reason:      "stocktake shrinkage",
	})
	if err != nil {
		t.Fatalf("adjust down: %v", err)
	}
	if item.QuantityOnHand != 4 {
		t.Fatalf("expected on_hand=4, got %d", item.QuantityOnHand)
	}
}

func TestTransfer_MovesStockBetweenWarehouses(t *testing.T) {
	f := newInventoryFixture(t)
	w1 := f.addWarehouse(t, "WH-1", false)
	w2 := f.addWarehouse(t, "WH-2", false)
	f.addItem(t, w1.ID, 100, 10)

	dest, err := domain.NewInventoryItem(w2.ID, 10, 100, "SKU-A", "Widget", 0, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	if err := f.itemRepo.Create(dest); err != nil {
		t.Fatalf("create dest: %v", err)
	}
	ctx := context.Background()

	if err := f.svc.Transfer(ctx, &domain.TransferRequest{
		FromWarehouseID: w1.ID,
		ToWarehouseID:   w2.ID,
		VariantID:       100,
		Quantity:        4,
		Reference:       "tr-1",
	}); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	source, _ := f.itemRepo.GetByVariant(w1.ID, 100)
	target, _ := f.itemRepo.GetByVariant(w2.ID, 100)
	if source.QuantityOnHand != 6 || target.QuantityOnHand != 4 {
		t.Fatalf("after transfer: source=%d target=%d", source.QuantityOnHand, target.QuantityOnHand)
	}

	if err := f.svc.Transfer(ctx, &domain.TransferRequest{
		FromWarehouseID: w1.ID,
		ToWarehouseID:   w1.ID,
		VariantID:       100,
		Quantity:        1,
	}); !domain.IsInvariant(err) {
		t.Fatalf("same-warehouse transfer must fail, got %v", err)
	}
}

func TestTransfer_CompensatesSourceOnDestFailure(t *testing.T) {
	f := newInventoryFixture(t)
	w1 := f.addWarehouse(t, "WH-1", false)
	w2 := f.addWarehouse(t, "WH-2", false)
	f.addItem(t, w1.ID, 100, 10)

	dest, err := domain.NewInventoryItem(w2.ID, 10, 100, "SKU-A", "Widget", 0, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	if err := f.itemRepo.Create(dest); err != nil {
		t.Fatalf("create dest: %v", err)
	}

	failing := &failingSaveRepo{InventoryItemRepository: f.itemRepo, failItemID: dest.ID}
	svc := NewInventoryService(
		failing, f.warehouseRepo, f.itemRepo, nil, nil, nil, fastTestConfig(), zap.NewNop())

	err = svc.Transfer(context.Background(), &domain.TransferRequest{
		FromWarehouseID: w1.ID,
		ToWarehouseID:   w2.ID,
		VariantID:       100,
		Quantity:        4,
		Reference:       "tr-1",
	})
	if err == nil {
		t.Fatal("expected transfer to fail")
	}

	// compensation must restore the source warehouse
	source, _ := f.itemRepo.GetByVariant(w1.ID, 100)
	if source.QuantityOnHand != 10 {
		t.Fatalf("expected source restored to 10, got %d", source.QuantityOnHand)
	}
}

func TestOnProductPublished_ProvisionsActiveWarehouses(t *testing.T) {
	f := newInventoryFixture(t)
	w1 := f.addWarehouse(t, "WH-1", false)
	w2 := f.addWarehouse(t, "WH-2", false)
	inactive := f.addWarehouse(t, "WH-3", false)
	if err := inactive.Deactivate(); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := f.warehouseRepo.Save(inactive); err != nil {
		t.Fatalf("save: %v", err)
	}
	ctx := context.Background()

	n := &ProductPublishedNotification{
		MessageID:   "msg-1",
		ProductID:   7,
		ProductName: "New Thing",
		Variants: []PublishedVariant{
			{VariantID: 70, Sku: "SKU-NEW-A"},
			{VariantID: 71, Sku: "SKU-NEW-B"},
		},
	}
	if err := f.svc.OnProductPublished(ctx, n); err != nil {
		t.Fatalf("OnProductPublished: %v", err)
	}

	for _, w := range []*domain.Warehouse{w1, w2} {
		for _, variantID := range []int64{70, 71} {
			item, _ := f.itemRepo.GetByVariant(w.ID, variantID)
			if item == nil {
				t.Fatalf("expected zero-stock item for variant %d in warehouse %s", variantID, w.Code)
			}
			if item.QuantityOnHand != 0 {
				t.Fatalf("provisioned item must start at zero, got %d", item.QuantityOnHand)
			}
		}
	}
	if item, _ := f.itemRepo.GetByVariant(inactive.ID, 70); item != nil {
		t.Fatal("inactive warehouse must not be provisioned")
	}

	// redelivery without a processed-mark cache still skips existing items
	if err := f.svc.OnProductPublished(ctx, n); err != nil {
		t.Fatalf("redelivered notification: %v", err)
	}
	items, _ := f.itemRepo.ListByProduct(7)
	if len(items) != 4 {
		t.Fatalf("expected 4 provisioned items, got %d", len(items))
	}

	// a notification without variants carries nothing to provision
	err := f.svc.OnProductPublished(ctx, &ProductPublishedNotification{
		MessageID: "msg-2",
		ProductID: 8,
	})
	if !domain.IsInvariant(err) {
		t.Fatalf("expected invariant error for empty variants, got %v", err)
	}
}

func TestListLowStock(t *testing.T) {
	f := newInventoryFixture(t)
	w := f.addWarehouse(t, "WH-1", false)
	f.addItem(t, w.ID, 100, 20)

	// default threshold is 5: reserve down to available=3
	if _, err := f.svc.ReserveOrder(context.Background(), &domain.ReserveOrderRequest{
		OrderID: "order-1",
		Lines:   []domain.ReserveLine{{VariantID: 100, WarehouseID: &w.ID, Quantity: 17}},
	}); err != nil {
		t.Fatalf("ReserveOrder: %v", err)
	}

	low, err := f.svc.ListLowStock(context.Background(), &w.ID)
	if err != nil {
		t.Fatalf("ListLowStock: %v", err)
	}
	if len(low) != 1 {
		t.Fatalf("expected 1 low stock entry, got %d", len(low))
	}
	if low[0].Available != 3 || low[0].Threshold != 5 {
		t.Fatalf("unexpected entry: %+v", low[0])
	}
}

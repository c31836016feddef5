package domain

import (
	"errors"
	"testing"
)

func newTestItem(t *testing.T, initial int64) *InventoryItem {
	t.Helper()
	item, err := NewInventoryItem(1, 10, 100, "SKU-A", "Widget", initial, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	return item
}

func TestNewInventoryItem_Validation(t *testing.T) {
	tests := []struct {
		name        string
		warehouseID int64
		variantID   int64
		sku         Sku
		initial     int64
		threshold   int64
	}{
		{"missing warehouse", 0, 100, "SKU-A", 0, 0},
		{"missing variant", 1, 0, "SKU-A", 0, 0},
		{"empty sku", 1, 100, "", 0, 0},
		{"negative initial", 1, 100, "SKU-A", -1, 0},
		{"negative threshold", 1, 100, "SKU-A", 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInventoryItem(tt.warehouseID, 10, tt.variantID, tt.sku, "", tt.initial, tt.threshold)
			if !IsInvariant(err) {
				t.Fatalf("expected invariant error, got %v", err)
			}
		})
	}
}

func TestNewInventoryItem_InitialStockRecordsMovement(t *testing.T) {
	item := newTestItem(t, 10)

	if item.QuantityOnHand != 10 {
		t.Fatalf("expected on_hand=10, got %d", item.QuantityOnHand)
	}
	moves := item.PendingMovements()
	if len(moves) != 1 {
		t.Fatalf("expected 1 pending movement, got %d", len(moves))
	}
	if moves[0].Type != MovementReceived || moves[0].SnapshotQuantity != 0 {
		t.Fatalf("unexpected movement: %+v", moves[0])
	}
}

func TestReserve_ReplaceSemantics(t *testing.T) {
	item := newTestItem(t, 10)

	if err := item.Reserve("order-1", 6); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	// re-reserving for the same order replaces, it does not accumulate
	if err := item.Reserve("order-1", 8); err != nil {
		t.Fatalf("replace reserve: %v", err)
	}
	if item.QuantityReserved != 8 {
		t.Fatalf("expected reserved=8, got %d", item.QuantityReserved)
	}
	if item.AvailableQuantity() != 2 {
		t.Fatalf("expected available=2, got %d", item.AvailableQuantity())
	}

	// replacement frees the previous quantity before checking availability:
	// available(2) + existing(8) = 10, so reserving 10 must succeed
	if err := item.Reserve("order-1", 10); err != nil {
		t.Fatalf("replace up to full stock: %v", err)
	}
	if item.AvailableQuantity() != 0 {
		t.Fatalf("expected available=0, got %d", item.AvailableQuantity())
	}
}

func TestReserve_InsufficientStock(t *testing.T) {
	item := newTestItem(t, 5)

	err := item.Reserve("order-1", 6)
	var ise *InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if ise.Available != 5 || ise.Requested != 6 {
		t.Fatalf("unexpected error detail: %+v", ise)
	}
	// failed reserve must not change state or emit movements beyond the initial receive
	if item.QuantityReserved != 0 {
		t.Fatalf("expected reserved unchanged, got %d", item.QuantityReserved)
	}
	if len(item.PendingMovements()) != 1 {
		t.Fatalf("expected no additional movement, got %d", len(item.PendingMovements()))
	}
}

func TestRelease_Idempotent(t *testing.T) {
	item := newTestItem(t, 10)
	if err := item.Reserve("order-1", 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	item.Release("order-1")
	if item.QuantityReserved != 0 || item.QuantityOnHand != 10 {
		t.Fatalf("release should restore availability: on_hand=%d reserved=%d", item.QuantityOnHand, item.QuantityReserved)
	}

	before := len(item.PendingMovements())
	item.Release("order-1") // second release is a no-op
	item.Release("unknown-order")
	if len(item.PendingMovements()) != before {
		t.Fatalf("idempotent release must not append movements")
	}
}

func TestConfirm_ConsumesStock(t *testing.T) {
	item := newTestItem(t, 10)
	if err := item.Reserve("order-1", 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := item.Confirm("order-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if item.QuantityOnHand != 6 || item.QuantityReserved != 0 {
		t.Fatalf("after confirm: on_hand=%d reserved=%d", item.QuantityOnHand, item.QuantityReserved)
	}
	if _, ok := item.ReservationFor("order-1"); ok {
		t.Fatal("reservation should be removed after confirm")
	}
}

func TestConfirm_WithoutReservationFails(t *testing.T) {
	item := newTestItem(t, 10)
	if err := item.Confirm("order-1"); !IsInvariant(err) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestShip_CannotTouchReservedStock(t *testing.T) {
	item := newTestItem(t, 10)
	if err := item.Reserve("order-1", 7); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// only 3 units are available for direct shipment
	var ise *InsufficientStockError
	if err := item.Ship(4, "so-1"); !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if err := item.Ship(3, "so-1"); err != nil {
		t.Fatalf("ship within available: %v", err)
	}
	if item.QuantityOnHand != 7 || item.AvailableQuantity() != 0 {
		t.Fatalf("after ship: on_hand=%d available=%d", item.QuantityOnHand, item.AvailableQuantity())
	}
}

func TestAdjust_Bounds(t *testing.T) {
	item := newTestItem(t, 10)
	if err := item.Reserve("order-1", 6); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := item.Adjust(0, "noop"); !IsInvariant(err) {
		t.Fatalf("zero delta should fail, got %v", err)
	}
	// cannot adjust below the reserved quantity
	if err := item.Adjust(-5, "shrink"); !IsInvariant(err) {
		t.Fatalf("adjust below reserved should fail, got %v", err)
	}
	if err := item.Adjust(-4, "shrink"); err != nil {
		t.Fatalf("adjust to reserved boundary: %v", err)
	}
	if item.QuantityOnHand != 6 {
		t.Fatalf("expected on_hand=6, got %d", item.QuantityOnHand)
	}
}

func TestMovementSnapshots(t *testing.T) {
	item := newTestItem(t, 5)
	item.ClearPendingMovements()

	if err := item.Receive(5, "po-1"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := item.Reserve("order-1", 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := item.Confirm("order-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	moves := item.PendingMovements()
	if len(moves) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(moves))
	}
	// snapshot is always the on-hand quantity before the operation
	wantSnapshots := []int64{5, 10, 10}
	wantTypes := []MovementType{MovementReceived, MovementReserved, MovementConfirmed}
	for i, m := range moves {
		if m.SnapshotQuantity != wantSnapshots[i] {
			t.Errorf("movement %d: expected snapshot %d, got %d", i, wantSnapshots[i], m.SnapshotQuantity)
		}
		if m.Type != wantTypes[i] {
			t.Errorf("movement %d: expected type %s, got %s", i, wantTypes[i], m.Type)
		}
	}
}

func TestMovementLedger_RoundTrip(t *testing.T) {
	item := newTestItem(t, 0)

	if err := item.Receive(5, "po-1"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := item.Reserve("order-1", 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	item.Release("order-1")
	if err := item.Receive(2, "po-2"); err != nil {
		t.Fatalf("second receive: %v", err)
	}

	if item.QuantityOnHand != 7 || item.QuantityReserved != 0 {
		t.Fatalf("after sequence: on_hand=%d reserved=%d", item.QuantityOnHand, item.QuantityReserved)
	}

	moves := item.PendingMovements()
	if len(moves) != 4 {
		t.Fatalf("expected 4 movements, got %d", len(moves))
	}
	wantSnapshots := []int64{0, 5, 5, 5}
	for i, m := range moves {
		if m.SnapshotQuantity != wantSnapshots[i] {
			t.Errorf("movement %d: expected snapshot %d, got %d", i, wantSnapshots[i], m.SnapshotQuantity)
		}
	}
}

func TestLowStockWarning(t *testing.T) {
	item, err := NewInventoryItem(1, 10, 100, "SKU-A", "Widget", 10, 5)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	item.ClearDomainEvents()

	// available drops from 10 to 4, crossing the threshold of 5
	if err := item.Reserve("order-1", 6); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var found bool
	for _, ev := range item.DomainEvents() {
		if ev.EventName() == "inventory.low_stock_warning" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected low stock warning event")
	}
}

func TestTransferOutIn(t *testing.T) {
	source := newTestItem(t, 10)
	dest, err := NewInventoryItem(2, 10, 100, "SKU-A", "Widget", 0, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}

	if err := source.TransferOut(4, "tr-1"); err != nil {
		t.Fatalf("transfer out: %v", err)
	}
	if err := dest.TransferIn(4, "tr-1"); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
	if source.QuantityOnHand != 6 || dest.QuantityOnHand != 4 {
		t.Fatalf("after transfer: source=%d dest=%d", source.QuantityOnHand, dest.QuantityOnHand)
	}

	var ise *InsufficientStockError
	if err := source.TransferOut(100, "tr-2"); !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
}

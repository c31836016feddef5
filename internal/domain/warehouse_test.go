package domain

import "testing"

func TestNewWarehouse_CodeValidation(t *testing.T) {
	tests := []struct {
		name string
		code string
		ok   bool
	}{
		{"valid", "WH-EAST-1", true},
		{"lowercase normalized", "wh-east-1", true},
		{"too short", "W", false},
		{"invalid chars", "WH_EAST", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWarehouse(tt.code, "East", "", false)
			if tt.ok {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				if w.Code != "WH-EAST-1" {
					t.Fatalf("expected normalized code WH-EAST-1, got %s", w.Code)
				}
				if !w.IsActive {
					t.Fatal("new warehouse should be active")
				}
			} else if !IsInvariant(err) {
				t.Fatalf("expected invariant error, got %v", err)
			}
		})
	}
}

func TestNewWarehouse_NameRequired(t *testing.T) {
	if _, err := NewWarehouse("WH-1", "   ", "", false); !IsInvariant(err) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestDeactivate_RejectsStockedWarehouse(t *testing.T) {
	w, err := NewWarehouse("WH-1", "Main", "", false)
	if err != nil {
		t.Fatalf("NewWarehouse: %v", err)
	}
	item, err := NewInventoryItem(1, 10, 100, "SKU-A", "Widget", 5, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	w.Items = []*InventoryItem{item}

	if err := w.Deactivate(); !IsInvariant(err) {
		t.Fatalf("expected invariant error for stocked warehouse, got %v", err)
	}
	if !w.IsActive {
		t.Fatal("warehouse must remain active after rejected deactivation")
	}

	// zeroed stock allows deactivation
	item.QuantityOnHand = 0
	if err := w.Deactivate(); err != nil {
		t.Fatalf("deactivate empty warehouse: %v", err)
	}
	if w.IsActive {
		t.Fatal("warehouse should be inactive")
	}

	// second deactivate is a no-op
	if err := w.Deactivate(); err != nil {
		t.Fatalf("repeated deactivate: %v", err)
	}
}

func TestDeactivate_RejectsDefaultWarehouse(t *testing.T) {
	w, err := NewWarehouse("WH-1", "Main", "", true)
	if err != nil {
		t.Fatalf("NewWarehouse: %v", err)
	}
	if err := w.Deactivate(); !IsInvariant(err) {
		t.Fatalf("expected invariant error for default warehouse, got %v", err)
	}
}

func TestSetAsDefault_RequiresActive(t *testing.T) {
	w, err := NewWarehouse("WH-1", "Main", "", false)
	if err != nil {
		t.Fatalf("NewWarehouse: %v", err)
	}
	if err := w.Deactivate(); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := w.SetAsDefault(); !IsInvariant(err) {
		t.Fatalf("expected invariant error for inactive warehouse, got %v", err)
	}

	w.Activate()
	if err := w.SetAsDefault(); err != nil {
		t.Fatalf("set default: %v", err)
	}
	if !w.IsDefault {
		t.Fatal("warehouse should be default")
	}
}

func TestMarkCreated_CarriesAssignedID(t *testing.T) {
	w, err := NewWarehouse("WH-1", "Main", "", true)
	if err != nil {
		t.Fatalf("NewWarehouse: %v", err)
	}
	if len(w.DomainEvents()) != 0 {
		t.Fatal("creation event must not be buffered before persistence")
	}

	w.ID = 42
	w.MarkCreated()
	events := w.DomainEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	created, ok := events[0].(WarehouseCreated)
	if !ok {
		t.Fatalf("unexpected event type %T", events[0])
	}
	if created.WarehouseID != 42 {
		t.Fatalf("expected event to carry id 42, got %d", created.WarehouseID)
	}
}

package mq

import (
	"testing"
	"time"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/service"
)

func receivedEvent(t *testing.T) domain.DomainEvent {
	t.Helper()

	item, err := domain.NewInventoryItem(1, 10, 100, "SKU-A", "Widget", 0, 0)
	if err != nil {
		t.Fatalf("NewInventoryItem: %v", err)
	}
	item.ClearDomainEvents()
	if err := item.Receive(7, "po-1"); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	events := item.DomainEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	return events[0]
}

func TestNewEventMessage(t *testing.T) {
	ev := receivedEvent(t)

	msg := NewEventMessage(ev, "trace-1")
	if msg.Type != "inventory.received" {
		t.Errorf("type = %s, want inventory.received", msg.Type)
	}
	if msg.Source != "stock-ledger" || msg.Version != "1.0" {
		t.Errorf("unexpected envelope: source=%s version=%s", msg.Source, msg.Version)
	}
	if msg.TraceID != "trace-1" {
		t.Errorf("trace id = %s", msg.TraceID)
	}
	if msg.ID == "" {
		t.Error("message id must be set")
	}
	if msg.ID == NewEventMessage(ev, "trace-1").ID {
		t.Error("message ids must be unique")
	}
	if err := msg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEventMessage_JSONRoundTrip(t *testing.T) {
	msg := NewEventMessage(receivedEvent(t), "trace-1")

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	var decoded EventMessage
	if err := decoded.FromJSON(data); err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if decoded.ID != msg.ID || decoded.Type != msg.Type {
		t.Fatalf("envelope mismatch: %+v", decoded)
	}

	var payload domain.InventoryReceived
	if err := decoded.GetDataAs(&payload); err != nil {
		t.Fatalf("GetDataAs: %v", err)
	}
	if payload.WarehouseID != 1 || payload.VariantID != 100 || payload.Quantity != 7 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestEventMessage_RoutingKey(t *testing.T) {
	msg := &EventMessage{Type: "inventory.reserved"}
	if got := msg.RoutingKey(); got != "inventory.reserved" {
		t.Errorf("routing key = %s", got)
	}
	empty := &EventMessage{}
	if got := empty.RoutingKey(); got != "inventory.general" {
		t.Errorf("fallback routing key = %s", got)
	}
}

func TestEventMessage_Validate(t *testing.T) {
	msg := &EventMessage{ID: "id-1", Type: "inventory.received", Data: struct{}{}}
	if err := msg.Validate(); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}

	cases := []*EventMessage{
		{Type: "inventory.received", Data: struct{}{}},
		{ID: "id-1", Data: struct{}{}},
		{ID: "id-1", Type: "inventory.received"},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

// 目录模块的发布通知按 {product_id, product_name, variants:[{variant_id, sku}]} 投递，
// 信封解码后每个变体都要可见。
func TestEventMessage_DecodesProductPublishedPayload(t *testing.T) {
	body := []byte(`{
		"id": "msg-1",
		"type": "product.published",
		"version": "1.0",
		"timestamp": "2026-01-02T03:04:05Z",
		"source": "catalog",
		"data": {
			"product_id": 7,
			"product_name": "New Thing",
			"variants": [
				{"variant_id": 70, "sku": "SKU-NEW-A"},
				{"variant_id": 71, "sku": "SKU-NEW-B"}
			]
		}
	}`)

	var msg EventMessage
	if err := msg.FromJSON(body); err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	var n service.ProductPublishedNotification
	if err := msg.GetDataAs(&n); err != nil {
		t.Fatalf("GetDataAs: %v", err)
	}
	if n.ProductID != 7 || n.ProductName != "New Thing" {
		t.Fatalf("unexpected product fields: %+v", n)
	}
	if len(n.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(n.Variants))
	}
	if n.Variants[0].VariantID != 70 || n.Variants[0].Sku != "SKU-NEW-A" {
		t.Fatalf("unexpected first variant: %+v", n.Variants[0])
	}
	if n.Variants[1].VariantID != 71 || n.Variants[1].Sku != "SKU-NEW-B" {
		t.Fatalf("unexpected second variant: %+v", n.Variants[1])
	}
}

func TestEventMessage_IsExpired(t *testing.T) {
	fresh := &EventMessage{Timestamp: time.Now()}
	if fresh.IsExpired() {
		t.Error("fresh message must not be expired")
	}
	stale := &EventMessage{Timestamp: time.Now().Add(-2 * time.Hour)}
	if !stale.IsExpired() {
		t.Error("two hour old message must be expired")
	}
}

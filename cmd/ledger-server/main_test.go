package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/api"
	"github.com/MorseWayne/stock_ledger/internal/config"
	mw "github.com/MorseWayne/stock_ledger/internal/middleware"
	"github.com/MorseWayne/stock_ledger/internal/repo"
	"github.com/MorseWayne/stock_ledger/internal/router"
	"github.com/MorseWayne/stock_ledger/internal/service"
)

// newTestHandler wires the full HTTP stack over in-memory repositories.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Env = "test"
	lg := zap.NewNop()

	memRepo := repo.NewMemoryInventoryItemRepository()
	warehouseRepo := repo.NewMemoryWarehouseRepository()

	inventoryService := service.NewInventoryService(
		memRepo, warehouseRepo, memRepo, nil, nil, nil, nil, lg)
	warehouseService := service.NewWarehouseService(warehouseRepo, memRepo, nil, lg)

	engine := router.New().Setup(cfg, &router.Dependencies{
		WarehouseHandler: api.NewWarehouseHandler(warehouseService, lg),
		InventoryHandler: api.NewInventoryHandler(inventoryService, lg),
	}, lg)

	return mw.RequestID(engine)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rw := httptest.NewRecorder()
	handler.ServeHTTP(rw, req)
	return rw
}

func decodeData(t *testing.T, rw *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Code int            `json:"code"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid json: %v (body=%s)", err, rw.Body.String())
	}
	if envelope.Code != 0 {
		t.Fatalf("unexpected business code %d (body=%s)", envelope.Code, rw.Body.String())
	}
	return envelope.Data
}

func TestHealthz_OK(t *testing.T) {
	handler := newTestHandler(t)

	rw := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReserveConfirmFlow(t *testing.T) {
	handler := newTestHandler(t)

	// create a default warehouse
	rw := doJSON(t, handler, http.MethodPost, "/api/v1/warehouses", map[string]any{
		"code":       "WH-MAIN",
		"name":       "Main Warehouse",
		"is_default": true,
	})
	if rw.Code != http.StatusOK {
		t.Fatalf("create warehouse: expected 200, got %d (body=%s)", rw.Code, rw.Body.String())
	}
	warehouseID := int64(decodeData(t, rw)["id"].(float64))

	// create an inventory item with initial stock
	rw = doJSON(t, handler, http.MethodPost, "/api/v1/inventory", map[string]any{
		"warehouse_id":     warehouseID,
		"product_id":       1,
		"variant_id":       11,
		"sku":              "SKU-TEST-1",
		"product_name":     "Test Product",
		"initial_quantity": 10,
	})
	if rw.Code != http.StatusOK {
		t.Fatalf("create item: expected 200, got %d (body=%s)", rw.Code, rw.Body.String())
	}
	itemID := int64(decodeData(t, rw)["id"].(float64))

	// reserve 4 units for an order
	rw = doJSON(t, handler, http.MethodPost, "/api/v1/orders/reserve", map[string]any{
		"order_id": "order-1",
		"lines": []map[string]any{
			{"variant_id": 11, "quantity": 4},
		},
	})
	if rw.Code != http.StatusOK {
		t.Fatalf("reserve: expected 200, got %d (body=%s)", rw.Code, rw.Body.String())
	}

	// reserving more than available must fail with 409
	rw = doJSON(t, handler, http.MethodPost, "/api/v1/orders/reserve", map[string]any{
		"order_id": "order-2",
		"lines": []map[string]any{
			{"variant_id": 11, "quantity": 100},
		},
	})
	if rw.Code != http.StatusConflict {
		t.Fatalf("oversell reserve: expected 409, got %d (body=%s)", rw.Code, rw.Body.String())
	}

	// confirm the order, consuming the reservation
	rw = doJSON(t, handler, http.MethodPost, "/api/v1/orders/confirm", map[string]any{
		"order_id": "order-1",
	})
	if rw.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d (body=%s)", rw.Code, rw.Body.String())
	}

	// verify final quantities
	rw = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/inventory/%d", itemID), nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("get item: expected 200, got %d", rw.Code)
	}
	data := decodeData(t, rw)
	if got := int64(data["quantity_on_hand"].(float64)); got != 6 {
		t.Fatalf("expected quantity_on_hand=6, got %d", got)
	}
	if got := int64(data["quantity_reserved"].(float64)); got != 0 {
		t.Fatalf("expected quantity_reserved=0, got %d", got)
	}

	// movements should record receive, reserve and confirm entries
	rw = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/movements?inventory_item_id=%d", itemID), nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("movements: expected 200, got %d", rw.Code)
	}
	moves := decodeData(t, rw)
	if total := int64(moves["total"].(float64)); total < 3 {
		t.Fatalf("expected at least 3 movements, got %d", total)
	}
}

func TestReleaseOrder_Idempotent(t *testing.T) {
	handler := newTestHandler(t)

	rw := doJSON(t, handler, http.MethodPost, "/api/v1/orders/release", map[string]any{
		"order_id": "never-reserved",
	})
	if rw.Code != http.StatusOK {
		t.Fatalf("release of unknown order should succeed, got %d (body=%s)", rw.Code, rw.Body.String())
	}
}

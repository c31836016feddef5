package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/middleware"
	"github.com/MorseWayne/stock_ledger/internal/resp"
	"github.com/MorseWayne/stock_ledger/internal/service"
)

// InventoryHandler 库存台账相关的HTTP处理器
type InventoryHandler struct {
	inventoryService service.InventoryService
	logger           *zap.Logger
}

// NewInventoryHandler 创建库存处理器实例
func NewInventoryHandler(inventoryService service.InventoryService, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventoryService: inventoryService,
		logger:           logger,
	}
}

// CreateInventoryItem 创建库存项
// POST /api/v1/inventory
func (h *InventoryHandler) CreateInventoryItem(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.CreateInventoryItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	sku, err := domain.NewSku(req.Sku)
	if err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, err.Error(), reqID, "")
		return
	}

	item, err := h.inventoryService.CreateInventoryItem(
		r.Context(), req.WarehouseID, req.ProductID, req.VariantID, sku, req.ProductName, req.InitialQuantity)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "create inventory item", err)
		return
	}

	h.logger.Info("inventory item created",
		zap.String("request_id", reqID),
		zap.Int64("inventory_item_id", item.ID),
		zap.String("sku", string(item.Sku)))
	resp.OK(w, item, reqID, "")
}

// GetInventoryItem 获取库存项详情
// GET /api/v1/inventory/{id}
func (h *InventoryHandler) GetInventoryItem(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	id, err := pathID(r.URL.Path, 4)
	if err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid inventory item ID", reqID, "")
		return
	}

	item, err := h.inventoryService.GetInventoryItem(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "get inventory item", err)
		return
	}

	resp.OK(w, item, reqID, "")
}

// ListInventoryItems 查询库存项列表，支持按仓库或商品过滤
// GET /api/v1/inventory?warehouse_id=1 或 ?product_id=2 或 ?warehouse_id=1&variant_id=3
func (h *InventoryHandler) ListInventoryItems(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	warehouseID, err := queryInt64(r, "warehouse_id")
	if err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid warehouse_id", reqID, "")
		return
	}
	productID, err := queryInt64(r, "product_id")
	if err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid product_id", reqID, "")
		return
	}
	variantID, err := queryInt64(r, "variant_id")
	if err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid variant_id", reqID, "")
		return
	}

	// 仓库+变体唯一定位单个库存项
	if warehouseID != nil && variantID != nil {
		item, err := h.inventoryService.GetInventoryItemByVariant(r.Context(), *warehouseID, *variantID)
		if err != nil {
			writeDomainError(w, h.logger, reqID, "get inventory item by variant", err)
			return
		}
		resp.OK(w, item, reqID, "")
		return
	}

	var items []*domain.InventoryItem
	switch {
	case warehouseID != nil:
		items, err = h.inventoryService.ListByWarehouse(r.Context(), *warehouseID)
	case productID != nil:
		items, err = h.inventoryService.ListByProduct(r.Context(), *productID)
	default:
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "warehouse_id or product_id is required", reqID, "")
		return
	}
	if err != nil {
		writeDomainError(w, h.logger, reqID, "list inventory items", err)
		return
	}

	resp.OK(w, map[string]interface{}{
		"items": items,
		"total": len(items),
	}, reqID, "")
}

// ListLowStock 查询可用量低于阈值的库存项
// GET /api/v1/inventory/low-stock?warehouse_id=1
func (h *InventoryHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	warehouseID, err := queryInt64(r, "warehouse_id")
	if err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid warehouse_id", reqID, "")
		return
	}

	items, err := h.inventoryService.ListLowStock(r.Context(), warehouseID)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "list low stock", err)
		return
	}

	resp.OK(w, map[string]interface{}{
		"items": items,
		"total": len(items),
	}, reqID, "")
}

// ReceiveStock 入库
// POST /api/v1/inventory/receive
func (h *InventoryHandler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	h.stockOperation(w, r, "receive stock", h.inventoryService.Receive)
}

// ShipStock 出库；扣减在库数量，不得动用预留
// POST /api/v1/inventory/ship
func (h *InventoryHandler) ShipStock(w http.ResponseWriter, r *http.Request) {
	h.stockOperation(w, r, "ship stock", h.inventoryService.Ship)
}

// ImportBySku 按 SKU 入库；库存项不存在时经商品目录解析后创建
// POST /api/v1/inventory/import
func (h *InventoryHandler) ImportBySku(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.ImportBySkuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	if req.Quantity <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "quantity must be positive", reqID, "")
		return
	}

	item, err := h.inventoryService.ImportBySku(r.Context(), &req)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "import by sku", err)
		return
	}

	h.logger.Info("stock imported",
		zap.String("request_id", reqID),
		zap.String("sku", req.Sku),
		zap.Int64("quantity", req.Quantity))
	resp.OK(w, item, reqID, "")
}

// AdjustStock 盘点调整到目标数量
// POST /api/v1/inventory/adjust
func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.AdjustToTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	if req.Reason == "" {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "reason is required", reqID, "")
		return
	}
	if req.NewQuantity < 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "new_quantity must not be negative", reqID, "")
		return
	}

	item, err := h.inventoryService.AdjustToTarget(r.Context(), &req)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "adjust stock", err)
		return
	}

	resp.OK(w, item, reqID, "")
}

// TransferStock 跨仓调拨
// POST /api/v1/inventory/transfer
func (h *InventoryHandler) TransferStock(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	if req.Quantity <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "quantity must be positive", reqID, "")
		return
	}

	if err := h.inventoryService.Transfer(r.Context(), &req); err != nil {
		writeDomainError(w, h.logger, reqID, "transfer stock", err)
		return
	}

	h.logger.Info("stock transferred",
		zap.String("request_id", reqID),
		zap.Int64("from_warehouse_id", req.FromWarehouseID),
		zap.Int64("to_warehouse_id", req.ToWarehouseID),
		zap.Int64("variant_id", req.VariantID),
		zap.Int64("quantity", req.Quantity))
	resp.OK(w, map[string]interface{}{
		"from_warehouse_id": req.FromWarehouseID,
		"to_warehouse_id":   req.ToWarehouseID,
		"variant_id":        req.VariantID,
		"quantity":          req.Quantity,
	}, reqID, "")
}

// ReserveOrder 为订单预留库存；任一行失败则整体回滚
// POST /api/v1/orders/reserve
func (h *InventoryHandler) ReserveOrder(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.ReserveOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	if req.OrderID == "" {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "order_id is required", reqID, "")
		return
	}
	if len(req.Lines) == 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "lines must not be empty", reqID, "")
		return
	}

	result, err := h.inventoryService.ReserveOrder(r.Context(), &req)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "reserve order", err)
		return
	}

	h.logger.Info("order reserved",
		zap.String("request_id", reqID),
		zap.String("idempotency_key", middleware.IdempotencyKeyFrom(r)),
		zap.String("order_id", req.OrderID),
		zap.Int("lines", len(result.Lines)))
	resp.OK(w, result, reqID, "")
}

// ReleaseOrder 释放订单预留；订单无预留时幂等成功
// POST /api/v1/orders/release
func (h *InventoryHandler) ReleaseOrder(w http.ResponseWriter, r *http.Request) {
	h.orderOperation(w, r, "release order", h.inventoryService.ReleaseOrder)
}

// ConfirmOrder 确认订单预留，扣减在库数量
// POST /api/v1/orders/confirm
func (h *InventoryHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.orderOperation(w, r, "confirm order", h.inventoryService.ConfirmOrder)
}

// ListMovements 查询库存流水
// GET /api/v1/movements?inventory_item_id=1&page=1&page_size=20
func (h *InventoryHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	req := domain.MovementListRequest{Page: 1, PageSize: 20}

	var err error
	if req.InventoryItemID, err = queryInt64(r, "inventory_item_id"); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid inventory_item_id", reqID, "")
		return
	}
	if req.WarehouseID, err = queryInt64(r, "warehouse_id"); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid warehouse_id", reqID, "")
		return
	}
	if req.VariantID, err = queryInt64(r, "variant_id"); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid variant_id", reqID, "")
		return
	}
	if orderID := r.URL.Query().Get("order_id"); orderID != "" {
		req.OrderID = &orderID
	}
	if movementType := r.URL.Query().Get("type"); movementType != "" {
		req.Type = &movementType
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		if req.Page, err = strconv.Atoi(raw); err != nil || req.Page < 1 {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid page", reqID, "")
			return
		}
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if req.PageSize, err = strconv.Atoi(raw); err != nil || req.PageSize < 1 || req.PageSize > 200 {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid page_size", reqID, "")
			return
		}
	}

	result, err := h.inventoryService.GetMovements(r.Context(), &req)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "list movements", err)
		return
	}

	resp.OK(w, result, reqID, "")
}

// stockOperation 入库/出库的公共流程
func (h *InventoryHandler) stockOperation(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, warehouseID, variantID, quantity int64, reference string) (*domain.InventoryItem, error),
) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.StockOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	if req.Quantity <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "quantity must be positive", reqID, "")
		return
	}

	item, err := fn(r.Context(), req.WarehouseID, req.VariantID, req.Quantity, req.Reference)
	if err != nil {
		writeDomainError(w, h.logger, reqID, op, err)
		return
	}

	h.logger.Info(op+" done",
		zap.String("request_id", reqID),
		zap.Int64("inventory_item_id", item.ID),
		zap.Int64("quantity", req.Quantity))
	resp.OK(w, item, reqID, "")
}

// orderOperation 按订单号释放/确认预留的公共流程
func (h *InventoryHandler) orderOperation(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, orderID string) error,
) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	if req.OrderID == "" {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "order_id is required", reqID, "")
		return
	}

	if err := fn(r.Context(), req.OrderID); err != nil {
		writeDomainError(w, h.logger, reqID, op, err)
		return
	}

	h.logger.Info(op+" done",
		zap.String("request_id", reqID),
		zap.String("idempotency_key", middleware.IdempotencyKeyFrom(r)),
		zap.String("order_id", req.OrderID))
	resp.OK(w, map[string]string{"order_id": req.OrderID}, reqID, "")
}

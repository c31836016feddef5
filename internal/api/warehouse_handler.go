package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/middleware"
	"github.com/MorseWayne/stock_ledger/internal/resp"
	"github.com/MorseWayne/stock_ledger/internal/service"
)

// WarehouseHandler 仓库相关的HTTP处理器
type WarehouseHandler struct {
	warehouseService service.WarehouseService
	logger           *zap.Logger
}

// NewWarehouseHandler 创建仓库处理器实例
func NewWarehouseHandler(warehouseService service.WarehouseService, logger *zap.Logger) *WarehouseHandler {
	return &WarehouseHandler{
		warehouseService: warehouseService,
		logger:           logger,
	}
}

// CreateWarehouse 创建仓库
// POST /api/v1/warehouses
func (h *WarehouseHandler) CreateWarehouse(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.CreateWarehouseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	warehouse, err := h.warehouseService.CreateWarehouse(r.Context(), &req)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "create warehouse", err)
		return
	}

	h.logger.Info("warehouse created",
		zap.String("request_id", reqID),
		zap.Int64("warehouse_id", warehouse.ID),
		zap.String("code", warehouse.Code))
	resp.OK(w, warehouse, reqID, "")
}

// GetWarehouse 获取仓库详情
// GET /api/v1/warehouses/{id}
func (h *WarehouseHandler) GetWarehouse(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	id, err := pathID(r.URL.Path, 4)
	if err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid warehouse ID", reqID, "")
		return
	}

	warehouse, err := h.warehouseService.GetWarehouse(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "get warehouse", err)
		return
	}

	resp.OK(w, warehouse, reqID, "")
}

// GetWarehouseByCode 按编码查询仓库
// GET /api/v1/warehouses/code/{code}
func (h *WarehouseHandler) GetWarehouseByCode(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 6 || parts[5] == "" {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid warehouse code", reqID, "")
		return
	}

	warehouse, err := h.warehouseService.GetWarehouseByCode(r.Context(), parts[5])
	if err != nil {
		writeDomainError(w, h.logger, reqID, "get warehouse by code", err)
		return
	}

	resp.OK(w, warehouse, reqID, "")
}

// GetDefaultWarehouse 获取默认仓库
// GET /api/v1/warehouses/default
func (h *WarehouseHandler) GetDefaultWarehouse(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	warehouse, err := h.warehouseService.GetDefaultWarehouse(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, reqID, "get default warehouse", err)
		return
	}

	resp.OK(w, warehouse, reqID, "")
}

// ListWarehouses 查询仓库列表
// GET /api/v1/warehouses?active=true
func (h *WarehouseHandler) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	activeOnly := r.URL.Query().Get("active") == "true"
	warehouses, err := h.warehouseService.ListWarehouses(r.Context(), activeOnly)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "list warehouses", err)
		return
	}

	resp.OK(w, map[string]interface{}{
		"warehouses": warehouses,
		"total":      len(warehouses),
	}, reqID, "")
}

// UpdateWarehouse 更新仓库信息
// PUT /api/v1/warehouses/{id}
func (h *WarehouseHandler) UpdateWarehouse(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	id, err := pathID(r.URL.Path, 4)
	if err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid warehouse ID", reqID, "")
		return
	}

	var req domain.UpdateWarehouseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	warehouse, err := h.warehouseService.UpdateWarehouse(r.Context(), id, &req)
	if err != nil {
		writeDomainError(w, h.logger, reqID, "update warehouse", err)
		return
	}

	resp.OK(w, warehouse, reqID, "")
}

// ActivateWarehouse 启用仓库
// POST /api/v1/warehouses/{id}/activate
func (h *WarehouseHandler) ActivateWarehouse(w http.ResponseWriter, r *http.Request) {
	h.toggleWarehouse(w, r, "activate warehouse", h.warehouseService.ActivateWarehouse)
}

// DeactivateWarehouse 停用仓库；仓库内仍有在库或预留库存时拒绝
// POST /api/v1/warehouses/{id}/deactivate
func (h *WarehouseHandler) DeactivateWarehouse(w http.ResponseWriter, r *http.Request) {
	h.toggleWarehouse(w, r, "deactivate warehouse", h.warehouseService.DeactivateWarehouse)
}

// SetDefaultWarehouse 设置默认仓库
// POST /api/v1/warehouses/{id}/default
func (h *WarehouseHandler) SetDefaultWarehouse(w http.ResponseWriter, r *http.Request) {
	h.toggleWarehouse(w, r, "set default warehouse", h.warehouseService.SetDefaultWarehouse)
}

func (h *WarehouseHandler) toggleWarehouse(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, id int64) (*domain.Warehouse, error),
) {
	reqID := middleware.RequestIDFromContext(r.Context())

	id, err := pathID(r.URL.Path, 4)
	if err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid warehouse ID", reqID, "")
		return
	}

	warehouse, err := fn(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, reqID, op, err)
		return
	}

	h.logger.Info(op+" done",
		zap.String("request_id", reqID),
		zap.Int64("warehouse_id", warehouse.ID))
	resp.OK(w, warehouse, reqID, "")
}

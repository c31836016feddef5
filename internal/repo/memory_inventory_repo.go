// Package repo 提供库存项仓储的内存实现，供开发模式与测试使用。
// 内存实现与 MySQL 实现遵守同一套契约：读取返回快照副本，
// Save 做版本比对，冲突以 KindConflict 错误上抛。
package repo

import (
	"sync"

	"github.com/MorseWayne/stock_ledger/internal/domain"
)

// MemoryInventoryItemRepository 库存项仓储的内存实现。
// 同时持有流水账：Save 在同一把锁内提交聚合与流水，模拟事务的全有全无语义。
type MemoryInventoryItemRepository struct {
	mu             sync.RWMutex
	items          map[int64]*domain.InventoryItem
	movements      []*domain.MovementLogEntry
	nextItemID     int64
	nextMovementID int64
}

// 接口契约校验
var _ InventoryItemRepository = (*MemoryInventoryItemRepository)(nil)

// NewMemoryInventoryItemRepository 创建内存库存项仓储
func NewMemoryInventoryItemRepository() *MemoryInventoryItemRepository {
	return &MemoryInventoryItemRepository{
		items:          make(map[int64]*domain.InventoryItem),
		nextItemID:     1,
		nextMovementID: 1,
	}
}

// Create 创建库存项；(仓库, 变体) 唯一性在此兜底，对应 MySQL 的唯一索引
func (r *MemoryInventoryItemRepository) Create(item *domain.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.WarehouseID == item.WarehouseID && existing.VariantID == item.VariantID {
			return domain.NewInvariant("inventory item already exists for warehouse %d variant %d",
				item.WarehouseID, item.VariantID)
		}
	}

	item.ID = r.nextItemID
	r.nextItemID++

	r.appendMovementsLocked(item)
	r.items[item.ID] = cloneItem(item)
	item.ClearPendingMovements()
	return nil
}

// GetByID 根据 ID 获取库存项快照
func (r *MemoryInventoryItemRepository) GetByID(id int64) (*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return cloneItem(item), nil
}

// GetByVariant 根据 (仓库, 变体) 获取库存项快照
func (r *MemoryInventoryItemRepository) GetByVariant(warehouseID, variantID int64) (*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, item := range r.items {
		if item.WarehouseID == warehouseID && item.VariantID == variantID {
			return cloneItem(item), nil
		}
	}
	return nil, nil
}

// GetBySku 根据 (仓库, SKU) 获取库存项快照
func (r *MemoryInventoryItemRepository) GetBySku(warehouseID int64, sku domain.Sku) (*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, item := range r.items {
		if item.WarehouseID == warehouseID && item.Sku == sku {
			return cloneItem(item), nil
		}
	}
	return nil, nil
}

// ListByWarehouse 获取仓库下所有库存项快照
func (r *MemoryInventoryItemRepository) ListByWarehouse(warehouseID int64) ([]*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.InventoryItem
	for _, item := range r.items {
		if item.WarehouseID == warehouseID {
			out = append(out, cloneItem(item))
		}
	}
	return out, nil
}

// ListByProduct 获取商品在所有仓库的库存项快照
func (r *MemoryInventoryItemRepository) ListByProduct(productID int64) ([]*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.InventoryItem
	for _, item := range r.items {
		if item.ProductID == productID {
			out = append(out, cloneItem(item))
		}
	}
	return out, nil
}

// ListByOrder 获取持有指定订单有效预留的库存项快照
func (r *MemoryInventoryItemRepository) ListByOrder(orderID string) ([]*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.InventoryItem
	for _, item := range r.items {
		if _, ok := item.Reservations[orderID]; ok {
			out = append(out, cloneItem(item))
		}
	}
	return out, nil
}

// ListLowStock 获取可售量触达阈值的库存项快照
func (r *MemoryInventoryItemRepository) ListLowStock(warehouseID *int64) ([]*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.InventoryItem
	for _, item := range r.items {
		if warehouseID != nil && item.WarehouseID != *warehouseID {
			continue
		}
		if item.AvailableQuantity() <= item.LowStockThreshold {
			out = append(out, cloneItem(item))
		}
	}
	return out, nil
}

// Save 版本比对提交：版本不匹配返回 KindConflict 错误
func (r *MemoryInventoryItemRepository) Save(item *domain.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[item.ID]
	if !ok || stored.Version != item.Version {
		return domain.NewConflict("inventory item version conflict or record not found")
	}

	r.appendMovementsLocked(item)
	item.Version++
	r.items[item.ID] = cloneItem(item)
	item.ClearPendingMovements()
	return nil
}

// List 实现 MovementRepository：按过滤条件分页查询流水
func (r *MemoryInventoryItemRepository) List(req *domain.MovementListRequest) (*domain.MovementListResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var matched []*domain.MovementLogEntry
	// 倒序遍历，近期流水在前，与 MySQL 实现的 ORDER BY id DESC 保持一致
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if req.InventoryItemID != nil && m.InventoryItemID != *req.InventoryItemID {
			continue
		}
		if req.WarehouseID != nil && m.WarehouseID != *req.WarehouseID {
			continue
		}
		if req.VariantID != nil && m.VariantID != *req.VariantID {
			continue
		}
		if req.OrderID != nil && m.OrderID != *req.OrderID {
			continue
		}
		if req.Type != nil && string(m.Type) != *req.Type {
			continue
		}
		matched = append(matched, m)
	}

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*domain.MovementLogEntry, 0, end-start)
	for _, m := range matched[start:end] {
		cp := *m
		out = append(out, &cp)
	}

	return &domain.MovementListResponse{
		Movements: out,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}, nil
}

// CountByItem 实现 MovementRepository：统计某库存项的流水条数
func (r *MemoryInventoryItemRepository) CountByItem(inventoryItemID int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, m := range r.movements {
		if m.InventoryItemID == inventoryItemID {
			count++
		}
	}
	return count, nil
}

var _ MovementRepository = (*MemoryInventoryItemRepository)(nil)

func (r *MemoryInventoryItemRepository) appendMovementsLocked(item *domain.InventoryItem) {
	for _, m := range item.PendingMovements() {
		cp := *m
		cp.ID = r.nextMovementID
		cp.InventoryItemID = item.ID
		r.nextMovementID++
		r.movements = append(r.movements, &cp)
	}
}

// cloneItem 深拷贝聚合快照，避免调用方与存储共享可变状态
func cloneItem(item *domain.InventoryItem) *domain.InventoryItem {
	cp := *item
	cp.Reservations = make(map[string]*domain.Reservation, len(item.Reservations))
	for orderID, res := range item.Reservations {
		rc := *res
		cp.Reservations[orderID] = &rc
	}
	cp.ClearPendingMovements()
	cp.ClearDomainEvents()
	return &cp
}

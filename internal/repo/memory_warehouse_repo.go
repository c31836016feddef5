// Package repo 提供仓库聚合仓储的内存实现。
package repo

import (
	"sort"
	"sync"

	"github.com/MorseWayne/stock_ledger/internal/domain"
)

// MemoryWarehouseRepository 仓库仓储的内存实现
type MemoryWarehouseRepository struct {
	mu     sync.RWMutex
	byID   map[int64]*domain.Warehouse
	nextID int64
}

// 接口契约校验
var _ WarehouseRepository = (*MemoryWarehouseRepository)(nil)

// NewMemoryWarehouseRepository 创建内存仓库仓储
func NewMemoryWarehouseRepository() *MemoryWarehouseRepository {
	return &MemoryWarehouseRepository{
		byID:   make(map[int64]*domain.Warehouse),
		nextID: 1,
	}
}

// Create 创建仓库；编码唯一性在此兜底，对应 MySQL 的唯一索引
func (r *MemoryWarehouseRepository) Create(w *domain.Warehouse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Code == w.Code {
			return domain.NewInvariant("warehouse code %s already exists", w.Code)
		}
	}

	w.ID = r.nextID
	r.nextID++
	r.byID[w.ID] = cloneWarehouse(w)
	return nil
}

// GetByID 根据 ID 获取仓库快照
func (r *MemoryWarehouseRepository) GetByID(id int64) (*domain.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneWarehouse(w), nil
}

// GetByCode 根据编码获取仓库快照
func (r *MemoryWarehouseRepository) GetByCode(code string) (*domain.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range r.byID {
		if w.Code == code {
			return cloneWarehouse(w), nil
		}
	}
	return nil, nil
}

// GetDefault 获取默认仓库快照
func (r *MemoryWarehouseRepository) GetDefault() (*domain.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range r.byID {
		if w.IsDefault {
			return cloneWarehouse(w), nil
		}
	}
	return nil, nil
}

// List 获取所有仓库快照
func (r *MemoryWarehouseRepository) List() ([]*domain.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(func(*domain.Warehouse) bool { return true }), nil
}

// ListActive 获取所有启用仓库快照
func (r *MemoryWarehouseRepository) ListActive() ([]*domain.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(func(w *domain.Warehouse) bool { return w.IsActive }), nil
}

// Save 版本比对提交
func (r *MemoryWarehouseRepository) Save(w *domain.Warehouse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[w.ID]
	if !ok || stored.Version != w.Version {
		return domain.NewConflict("warehouse version conflict or record not found")
	}

	w.Version++
	r.byID[w.ID] = cloneWarehouse(w)
	return nil
}

// PromoteDefault 原子切换默认仓库
func (r *MemoryWarehouseRepository) PromoteDefault(w *domain.Warehouse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[w.ID]
	if !ok || stored.Version != w.Version {
		return domain.NewConflict("warehouse version conflict or record not found")
	}
	if !stored.IsActive {
		return domain.NewConflict("warehouse version conflict or warehouse inactive")
	}

	for _, other := range r.byID {
		if other.IsDefault && other.ID != w.ID {
			other.IsDefault = false
			other.Version++
		}
	}

	w.IsDefault = true
	w.Version++
	r.byID[w.ID] = cloneWarehouse(w)
	return nil
}

func (r *MemoryWarehouseRepository) listLocked(keep func(*domain.Warehouse) bool) []*domain.Warehouse {
	var out []*domain.Warehouse
	for _, w := range r.byID {
		if keep(w) {
			out = append(out, cloneWarehouse(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// cloneWarehouse 深拷贝仓库快照；Items 由编排层按需装载，不在此复制
func cloneWarehouse(w *domain.Warehouse) *domain.Warehouse {
	cp := *w
	cp.Items = nil
	cp.ClearDomainEvents()
	return &cp
}

// Package repo 提供带缓存的库存项仓储装饰器。
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/MorseWayne/stock_ledger/internal/cache"
	"github.com/MorseWayne/stock_ledger/internal/domain"
)

// CachedInventoryItemRepository 带缓存的库存项仓储。
// 只缓存单项读取路径；列表与低库存查询直接透传，
// 写路径在落库成功后失效相关键，保证缓存只会短暂落后而不会脏读旧预留。
type CachedInventoryItemRepository struct {
	repo  InventoryItemRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedInventoryItemRepository 创建带缓存的库存项仓储
func NewCachedInventoryItemRepository(repo InventoryItemRepository, cache cache.Cache, ttl time.Duration) InventoryItemRepository {
	return &CachedInventoryItemRepository{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// Create 创建库存项并失效相关缓存
func (r *CachedInventoryItemRepository) Create(item *domain.InventoryItem) error {
	if err := r.repo.Create(item); err != nil {
		return err
	}
	r.invalidate(item)
	return nil
}

// GetByID 根据 ID 获取库存项（带缓存）
func (r *CachedInventoryItemRepository) GetByID(id int64) (*domain.InventoryItem, error) {
	ctx := context.Background()
	key := r.itemKey(id)

	var item domain.InventoryItem
	if err := r.cache.Get(ctx, key, &item); err == nil {
		return &item, nil
	}

	result, err := r.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	// 库存数据变化频繁，TTL 减半
	r.cache.Set(ctx, key, result, r.ttl/2)
	return result, nil
}

// GetByVariant 根据 (仓库, 变体) 获取库存项（带缓存）
func (r *CachedInventoryItemRepository) GetByVariant(warehouseID, variantID int64) (*domain.InventoryItem, error) {
	ctx := context.Background()
	key := r.variantKey(warehouseID, variantID)

	var item domain.InventoryItem
	if err := r.cache.Get(ctx, key, &item); err == nil {
		return &item, nil
	}

	result, err := r.repo.GetByVariant(warehouseID, variantID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	r.cache.Set(ctx, key, result, r.ttl/2)
	r.cache.Set(ctx, r.itemKey(result.ID), result, r.ttl/2)
	return result, nil
}

// GetBySku 根据 (仓库, SKU) 获取库存项（带缓存）
func (r *CachedInventoryItemRepository) GetBySku(warehouseID int64, sku domain.Sku) (*domain.InventoryItem, error) {
	ctx := context.Background()
	key := r.skuKey(warehouseID, sku)

	var item domain.InventoryItem
	if err := r.cache.Get(ctx, key, &item); err == nil {
		return &item, nil
	}

	result, err := r.repo.GetBySku(warehouseID, sku)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	r.cache.Set(ctx, key, result, r.ttl/2)
	r.cache.Set(ctx, r.itemKey(result.ID), result, r.ttl/2)
	return result, nil
}

// ListByWarehouse 列表查询直接透传
func (r *CachedInventoryItemRepository) ListByWarehouse(warehouseID int64) ([]*domain.InventoryItem, error) {
	return r.repo.ListByWarehouse(warehouseID)
}

// ListByProduct 列表查询直接透传
func (r *CachedInventoryItemRepository) ListByProduct(productID int64) ([]*domain.InventoryItem, error) {
	return r.repo.ListByProduct(productID)
}

// ListByOrder 订单维度查询直接透传
func (r *CachedInventoryItemRepository) ListByOrder(orderID string) ([]*domain.InventoryItem, error) {
	return r.repo.ListByOrder(orderID)
}

// ListLowStock 低库存查询直接透传
func (r *CachedInventoryItemRepository) ListLowStock(warehouseID *int64) ([]*domain.InventoryItem, error) {
	return r.repo.ListLowStock(warehouseID)
}

// Save 工作单元提交后失效相关缓存。
// 版本冲突说明缓存快照已过期，同样失效相关键，让写循环重读到最新版本。
func (r *CachedInventoryItemRepository) Save(item *domain.InventoryItem) error {
	if err := r.repo.Save(item); err != nil {
		if domain.IsConflict(err) {
			r.invalidate(item)
		}
		return err
	}
	r.invalidate(item)
	return nil
}

func (r *CachedInventoryItemRepository) invalidate(item *domain.InventoryItem) {
	ctx := context.Background()
	r.cache.Del(ctx,
		r.itemKey(item.ID),
		r.variantKey(item.WarehouseID, item.VariantID),
		r.skuKey(item.WarehouseID, item.Sku),
	)
}

func (r *CachedInventoryItemRepository) itemKey(id int64) string {
	return fmt.Sprintf("inventory:item:%d", id)
}

func (r *CachedInventoryItemRepository) variantKey(warehouseID, variantID int64) string {
	return fmt.Sprintf("inventory:variant:%d:%d", warehouseID, variantID)
}

func (r *CachedInventoryItemRepository) skuKey(warehouseID int64, sku domain.Sku) string {
	return fmt.Sprintf("inventory:sku:%d:%s", warehouseID, sku)
}

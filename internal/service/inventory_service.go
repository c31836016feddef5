package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/cache"
	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/repo"
)

// InventoryService 定义库存业务逻辑接口
type InventoryService interface {
	// 库存项管理
	CreateInventoryItem(ctx context.Context, warehouseID, productID, variantID int64, sku domain.Sku, productName string, initialQuantity int64) (*domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id int64) (*domain.InventoryItem, error)
	GetInventoryItemByVariant(ctx context.Context, warehouseID, variantID int64) (*domain.InventoryItem, error)
	ListByWarehouse(ctx context.Context, warehouseID int64) ([]*domain.InventoryItem, error)
	ListByProduct(ctx context.Context, productID int64) ([]*domain.InventoryItem, error)
	ListLowStock(ctx context.Context, warehouseID *int64) ([]*domain.LowStockItem, error)

	// 库存操作
	Receive(ctx context.Context, warehouseID, variantID, quantity int64, reference string) (*domain.InventoryItem, error)
	Ship(ctx context.Context, warehouseID, variantID, quantity int64, reference string) (*domain.InventoryItem, error)
	ImportBySku(ctx context.Context, req *domain.ImportBySkuRequest) (*domain.InventoryItem, error)
	AdjustToTarget(ctx context.Context, req *domain.AdjustToTargetRequest) (*domain.InventoryItem, error)
	Transfer(ctx context.Context, req *domain.TransferRequest) error

	// 订单预留编排
	ReserveOrder(ctx context.Context, req *domain.ReserveOrderRequest) (*domain.ReserveOrderResponse, error)
	ReleaseOrder(ctx context.Context, orderID string) error
	ConfirmOrder(ctx context.Context, orderID string) error

	// 流水查询
	GetMovements(ctx context.Context, req *domain.MovementListRequest) (*domain.MovementListResponse, error)

	// 商品发布驱动的库存初始化
	OnProductPublished(ctx context.Context, n *ProductPublishedNotification) error
}

// InventoryServiceConfig 库存服务配置
type InventoryServiceConfig struct {
	// 乐观锁冲突时的最大重试次数
	MaxRetryAttempts int           `json:"max_retry_attempts"`
	RetryInterval    time.Duration `json:"retry_interval"`

	// 新建库存项的默认低库存阈值
	DefaultLowStockThreshold int64 `json:"default_low_stock_threshold"`

	// 可用量缓存配置
	AvailabilityTTL time.Duration `json:"availability_ttl"`
	DepletedTTL     time.Duration `json:"depleted_ttl"`

	// 消费端幂等标记保留时间
	ProcessedTTL time.Duration `json:"processed_ttl"`
}

// DefaultInventoryServiceConfig 默认配置
func DefaultInventoryServiceConfig() *InventoryServiceConfig {
	return &InventoryServiceConfig{
		MaxRetryAttempts:         3,
		RetryInterval:            20 * time.Millisecond,
		DefaultLowStockThreshold: 5,
		AvailabilityTTL:          time.Hour,
		DepletedTTL:              10 * time.Minute,
		ProcessedTTL:             24 * time.Hour,
	}
}

// inventoryService 实现InventoryService接口
type inventoryService struct {
	itemRepo      repo.InventoryItemRepository
	warehouseRepo repo.WarehouseRepository
	movementRepo  repo.MovementRepository

	catalog    CatalogResolver
	publisher  EventPublisher
	stockCache *cache.StockCache

	config *InventoryServiceConfig
	logger *zap.Logger
}

// NewInventoryService 创建库存服务实例。
// catalog、publisher、stockCache 均可为 nil，对应的协作路径自动降级。
func NewInventoryService(
	itemRepo repo.InventoryItemRepository,
	warehouseRepo repo.WarehouseRepository,
	movementRepo repo.MovementRepository,
	catalog CatalogResolver,
	publisher EventPublisher,
	stockCache *cache.StockCache,
	config *InventoryServiceConfig,
	logger *zap.Logger,
) InventoryService {
	if config == nil {
		config = DefaultInventoryServiceConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inventoryService{
		itemRepo:      itemRepo,
		warehouseRepo: warehouseRepo,
		movementRepo:  movementRepo,
		catalog:       catalog,
		publisher:     publisher,
		stockCache:    stockCache,
		config:        config,
		logger:        logger,
	}
}

// CreateInventoryItem 创建库存项；目标仓库必须存在且处于启用状态
func (s *inventoryService) CreateInventoryItem(ctx context.Context, warehouseID, productID, variantID int64, sku domain.Sku, productName string, initialQuantity int64) (*domain.InventoryItem, error) {
	w, err := s.warehouseRepo.GetByID(warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouse: %w", err)
	}
	if w == nil {
		return nil, domain.NewNotFound("warehouse not found: %d", warehouseID)
	}
	if !w.IsActive {
		return nil, domain.NewInvariant("warehouse is inactive: %s", w.Code)
	}

	existing, err := s.itemRepo.GetByVariant(warehouseID, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing inventory item: %w", err)
	}
	if existing != nil {
		return nil, domain.NewInvariant("inventory item already exists for warehouse %d variant %d", warehouseID, variantID)
	}

	item, err := domain.NewInventoryItem(warehouseID, productID, variantID, sku, productName,
		initialQuantity, s.config.DefaultLowStockThreshold)
	if err != nil {
		return nil, err
	}

	if err := s.itemRepo.Create(item); err != nil {
		return nil, fmt.Errorf("failed to create inventory item: %w", err)
	}

	s.publishEvents(ctx, item)
	s.syncAvailability(ctx, item)

	s.logger.Info("inventory item created",
		zap.Int64("inventory_item_id", item.ID),
		zap.Int64("warehouse_id", warehouseID),
		zap.String("sku", item.Sku.String()),
		zap.Int64("initial_quantity", initialQuantity),
	)
	return item, nil
}

// GetInventoryItem 根据ID获取库存项
func (s *inventoryService) GetInventoryItem(ctx context.Context, id int64) (*domain.InventoryItem, error) {
	item, err := s.itemRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory item: %w", err)
	}
	if item == nil {
		return nil, domain.NewNotFound("inventory item not found: %d", id)
	}
	return item, nil
}

// GetInventoryItemByVariant 根据 (仓库, 变体) 获取库存项
func (s *inventoryService) GetInventoryItemByVariant(ctx context.Context, warehouseID, variantID int64) (*domain.InventoryItem, error) {
	return s.loadByVariant(warehouseID, variantID)
}

// ListByWarehouse 获取仓库下所有库存项
func (s *inventoryService) ListByWarehouse(ctx context.Context, warehouseID int64) ([]*domain.InventoryItem, error) {
	return s.itemRepo.ListByWarehouse(warehouseID)
}

// ListByProduct 获取商品在所有仓库的库存项
func (s *inventoryService) ListByProduct(ctx context.Context, productID int64) ([]*domain.InventoryItem, error) {
	return s.itemRepo.ListByProduct(productID)
}

// ListLowStock 获取可售量触达阈值的库存条目
func (s *inventoryService) ListLowStock(ctx context.Context, warehouseID *int64) ([]*domain.LowStockItem, error) {
	items, err := s.itemRepo.ListLowStock(warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock items: %w", err)
	}

	out := make([]*domain.LowStockItem, 0, len(items))
	for _, item := range items {
		out = append(out, &domain.LowStockItem{
			InventoryItemID: item.ID,
			WarehouseID:     item.WarehouseID,
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			Sku:             item.Sku,
			ProductName:     item.ProductName,
			Available:       item.AvailableQuantity(),
			Threshold:       item.LowStockThreshold,
		})
	}
	return out, nil
}

// Receive 入库
func (s *inventoryService) Receive(ctx context.Context, warehouseID, variantID, quantity int64, reference string) (*domain.InventoryItem, error) {
	return s.mutateByVariant(ctx, warehouseID, variantID, func(item *domain.InventoryItem) error {
		return item.Receive(quantity, reference)
	})
}

// Ship 直接出库（不经预留）
func (s *inventoryService) Ship(ctx context.Context, warehouseID, variantID, quantity int64, reference string) (*domain.InventoryItem, error) {
	return s.mutateByVariant(ctx, warehouseID, variantID, func(item *domain.InventoryItem) error {
		return item.Ship(quantity, reference)
	})
}

// ImportBySku 按SKU入库；未知SKU经目录协作方解析后懒创建库存项
func (s *inventoryService) ImportBySku(ctx context.Context, req *domain.ImportBySkuRequest) (*domain.InventoryItem, error) {
	sku, err := domain.NewSku(req.Sku)
	if err != nil {
		return nil, err
	}

	item, err := s.itemRepo.GetBySku(req.WarehouseID, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory item by sku: %w", err)
	}

	if item == nil {
		if s.catalog == nil {
			return nil, domain.NewNotFound("inventory item not found for sku %s in warehouse %d", sku, req.WarehouseID)
		}
		product, err := s.catalog.ResolveBySku(ctx, sku.String())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sku via catalog: %w", err)
		}
		if product == nil {
			return nil, domain.NewNotFound("sku not found in catalog: %s", sku)
		}
		return s.CreateInventoryItem(ctx, req.WarehouseID, product.ProductID, product.VariantID,
			sku, product.ProductName, req.Quantity)
	}

	return s.mutateItem(ctx, item.ID, func(item *domain.InventoryItem) error {
		return item.Receive(req.Quantity, req.Reference)
	})
}

// AdjustToTarget 调整到目标在库量；目标与当前一致时为空操作
func (s *inventoryService) AdjustToTarget(ctx context.Context, req *domain.AdjustToTargetRequest) (*domain.InventoryItem, error) {
	item, err := s.loadByVariant(req.WarehouseID, req.VariantID)
	if err != nil {
		return nil, err
	}

	if req.NewQuantity == item.QuantityOnHand {
		return item, nil
	}

	return s.mutateItem(ctx, item.ID, func(item *domain.InventoryItem) error {
		// 冲突重试会重新加载聚合，delta 需按最新在库量重算
		delta := req.NewQuantity - item.QuantityOnHand
		if delta == 0 {
			return nil
		}
		return item.Adjust(delta, req.Reason)
	})
}

// Transfer 跨仓调拨：源仓 TransferOut 成功后目标仓 TransferIn，
// 目标侧失败时回补源仓作为补偿。
func (s *inventoryService) Transfer(ctx context.Context, req *domain.TransferRequest) error {
	if req.FromWarehouseID == req.ToWarehouseID {
		return domain.NewInvariant("transfer requires two distinct warehouses")
	}

	source, err := s.loadByVariant(req.FromWarehouseID, req.VariantID)
	if err != nil {
		return err
	}
	dest, err := s.loadByVariant(req.ToWarehouseID, req.VariantID)
	if err != nil {
		return err
	}

	if _, err := s.mutateItem(ctx, source.ID, func(item *domain.InventoryItem) error {
		return item.TransferOut(req.Quantity, req.Reference)
	}); err != nil {
		return err
	}

	if _, err := s.mutateItem(ctx, dest.ID, func(item *domain.InventoryItem) error {
		return item.TransferIn(req.Quantity, req.Reference)
	}); err != nil {
		// 目标侧失败，回补源仓
		if _, compErr := s.mutateItem(ctx, source.ID, func(item *domain.InventoryItem) error {
			return item.TransferIn(req.Quantity, req.Reference)
		}); compErr != nil {
			s.logger.Error("transfer compensation failed, source warehouse short",
				zap.Int64("inventory_item_id", source.ID),
				zap.Int64("quantity", req.Quantity),
				zap.Error(compErr),
			)
		}
		return fmt.Errorf("failed to transfer into warehouse %d: %w", req.ToWarehouseID, err)
	}

	s.logger.Info("stock transferred",
		zap.Int64("from_warehouse_id", req.FromWarehouseID),
		zap.Int64("to_warehouse_id", req.ToWarehouseID),
		zap.Int64("variant_id", req.VariantID),
		zap.Int64("quantity", req.Quantity),
	)
	return nil
}

// ReserveOrder 为订单预留库存，可跨多行多仓。
// 任一行失败时释放本次已预留的行，整体失败返回。
func (s *inventoryService) ReserveOrder(ctx context.Context, req *domain.ReserveOrderRequest) (*domain.ReserveOrderResponse, error) {
	if req.OrderID == "" {
		return nil, domain.NewInvariant("order id is required")
	}
	if len(req.Lines) == 0 {
		return nil, domain.NewInvariant("at least one reserve line is required")
	}

	var reserved []*domain.ReservedLineResult
	for i := range req.Lines {
		result, err := s.reserveLine(ctx, req.OrderID, &req.Lines[i])
		if err != nil {
			s.compensateReservations(ctx, req.OrderID, reserved)
			return nil, err
		}
		reserved = append(reserved, result)
	}

	resp := &domain.ReserveOrderResponse{
		OrderID: req.OrderID,
		Lines:   make([]domain.ReservedLineResult, 0, len(reserved)),
	}
	for _, r := range reserved {
		resp.Lines = append(resp.Lines, *r)
	}

	s.logger.Info("order reserved",
		zap.String("order_id", req.OrderID),
		zap.Int("lines", len(resp.Lines)),
	)
	return resp, nil
}

// reserveLine 预留单行：仓库回退、缓存快速失败、乐观锁重试
func (s *inventoryService) reserveLine(ctx context.Context, orderID string, line *domain.ReserveLine) (*domain.ReservedLineResult, error) {
	warehouseID, err := s.resolveWarehouseID(line.WarehouseID)
	if err != nil {
		return nil, err
	}

	item, err := s.loadByVariant(warehouseID, line.VariantID)
	if err != nil {
		return nil, err
	}

	// 缓存快速失败闸门：明显不足的请求不再打到数据库。
	// Unknown 表示缓存未加载，放行走数据库路径。
	acquired := false
	if s.stockCache != nil {
		result, cacheErr := s.stockCache.TryAcquire(ctx, item.ID, line.Quantity, s.config.DepletedTTL)
		if cacheErr != nil {
			s.logger.Warn("stock cache unavailable, falling back to database",
				zap.Int64("inventory_item_id", item.ID),
				zap.Error(cacheErr),
			)
		} else if !result.Acquired && !result.Unknown {
			return nil, &domain.InsufficientStockError{
				Sku:       item.Sku,
				Available: result.Remaining,
				Requested: line.Quantity,
			}
		} else {
			acquired = result.Acquired
		}
	}

	mutated, err := s.mutateItem(ctx, item.ID, func(item *domain.InventoryItem) error {
		return item.Reserve(orderID, line.Quantity)
	})
	if err != nil {
		if acquired {
			if _, restoreErr := s.stockCache.Restore(ctx, item.ID, line.Quantity); restoreErr != nil {
				s.logger.Error("failed to restore availability cache",
					zap.Int64("inventory_item_id", item.ID),
					zap.Error(restoreErr),
				)
			}
		}
		return nil, err
	}

	return &domain.ReservedLineResult{
		InventoryItemID: mutated.ID,
		WarehouseID:     mutated.WarehouseID,
		VariantID:       mutated.VariantID,
		Quantity:        line.Quantity,
		AvailableAfter:  mutated.AvailableQuantity(),
	}, nil
}

// compensateReservations 释放本次已成功预留的行；补偿失败只记日志
func (s *inventoryService) compensateReservations(ctx context.Context, orderID string, reserved []*domain.ReservedLineResult) {
	for _, line := range reserved {
		if _, err := s.mutateItem(ctx, line.InventoryItemID, func(item *domain.InventoryItem) error {
			item.Release(orderID)
			return nil
		}); err != nil {
			s.logger.Error("reservation compensation failed",
				zap.String("order_id", orderID),
				zap.Int64("inventory_item_id", line.InventoryItemID),
				zap.Error(err),
			)
		}
	}
}

// ReleaseOrder 释放订单的全部预留；订单无预留时为幂等空操作
func (s *inventoryService) ReleaseOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return domain.NewInvariant("order id is required")
	}

	items, err := s.itemRepo.ListByOrder(orderID)
	if err != nil {
		return fmt.Errorf("failed to list reservations for order: %w", err)
	}

	for _, item := range items {
		if _, err := s.mutateItem(ctx, item.ID, func(item *domain.InventoryItem) error {
			item.Release(orderID)
			return nil
		}); err != nil {
			return err
		}
	}

	s.logger.Info("order reservations released",
		zap.String("order_id", orderID),
		zap.Int("items", len(items)),
	)
	return nil
}

// ConfirmOrder 确认扣减订单的全部预留；订单无预留时报 NotFound
func (s *inventoryService) ConfirmOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return domain.NewInvariant("order id is required")
	}

	items, err := s.itemRepo.ListByOrder(orderID)
	if err != nil {
		return fmt.Errorf("failed to list reservations for order: %w", err)
	}
	if len(items) == 0 {
		return domain.NewNotFound("no active reservations for order: %s", orderID)
	}

	for _, item := range items {
		if _, err := s.mutateItem(ctx, item.ID, func(item *domain.InventoryItem) error {
			return item.Confirm(orderID)
		}); err != nil {
			return err
		}
	}

	s.logger.Info("order reservations confirmed",
		zap.String("order_id", orderID),
		zap.Int("items", len(items)),
	)
	return nil
}

// GetMovements 分页查询库存流水
func (s *inventoryService) GetMovements(ctx context.Context, req *domain.MovementListRequest) (*domain.MovementListResponse, error) {
	return s.movementRepo.List(req)
}

// OnProductPublished 消费商品发布通知，为所有启用仓库懒初始化零库存项。
// 依据消息ID做幂等：重复投递直接跳过。
func (s *inventoryService) OnProductPublished(ctx context.Context, n *ProductPublishedNotification) error {
	if s.stockCache != nil && n.MessageID != "" {
		first, err := s.stockCache.MarkProcessed(ctx, n.MessageID, s.config.ProcessedTTL)
		if err != nil {
			s.logger.Warn("failed to check processed flag, continuing", zap.Error(err))
		} else if !first {
			s.logger.Info("duplicate product published notification skipped",
				zap.String("message_id", n.MessageID),
			)
			return nil
		}
	}

	if len(n.Variants) == 0 {
		return domain.NewInvariant("product published notification carries no variants")
	}

	warehouses, err := s.warehouseRepo.ListActive()
	if err != nil {
		return fmt.Errorf("failed to list active warehouses: %w", err)
	}

	for _, v := range n.Variants {
		sku, err := domain.NewSku(v.Sku)
		if err != nil {
			return err
		}

		for _, w := range warehouses {
			existing, err := s.itemRepo.GetByVariant(w.ID, v.VariantID)
			if err != nil {
				return fmt.Errorf("failed to check existing inventory item: %w", err)
			}
			if existing != nil {
				continue
			}

			item, err := domain.NewInventoryItem(w.ID, n.ProductID, v.VariantID, sku, n.ProductName,
				0, s.config.DefaultLowStockThreshold)
			if err != nil {
				return err
			}
			if err := s.itemRepo.Create(item); err != nil {
				// 并发消费下唯一索引兜底，冲突视为已初始化
				if domain.IsInvariant(err) || domain.IsConflict(err) {
					continue
				}
				return fmt.Errorf("failed to provision inventory item: %w", err)
			}
			s.publishEvents(ctx, item)
		}
	}

	s.logger.Info("inventory provisioned for published product",
		zap.Int64("product_id", n.ProductID),
		zap.Int("variants", len(n.Variants)),
		zap.Int("warehouses", len(warehouses)),
	)
	return nil
}

// mutateByVariant 按 (仓库, 变体) 定位后执行写操作
func (s *inventoryService) mutateByVariant(ctx context.Context, warehouseID, variantID int64, fn func(*domain.InventoryItem) error) (*domain.InventoryItem, error) {
	item, err := s.loadByVariant(warehouseID, variantID)
	if err != nil {
		return nil, err
	}
	return s.mutateItem(ctx, item.ID, fn)
}

// mutateItem 乐观锁写循环：每轮重新加载聚合、应用变更、条件写；
// 版本冲突时退避后重试，超过上限返回最后一次冲突错误。
func (s *inventoryService) mutateItem(ctx context.Context, itemID int64, fn func(*domain.InventoryItem) error) (*domain.InventoryItem, error) {
	var lastErr error
	for attempt := 0; attempt < s.config.MaxRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.config.RetryInterval):
			}
		}

		item, err := s.itemRepo.GetByID(itemID)
		if err != nil {
			return nil, fmt.Errorf("failed to get inventory item: %w", err)
		}
		if item == nil {
			return nil, domain.NewNotFound("inventory item not found: %d", itemID)
		}

		if err := fn(item); err != nil {
			return nil, err
		}

		if err := s.itemRepo.Save(item); err != nil {
			if domain.IsConflict(err) {
				lastErr = err
				s.logger.Debug("optimistic lock conflict, retrying",
					zap.Int64("inventory_item_id", itemID),
					zap.Int("attempt", attempt+1),
				)
				continue
			}
			return nil, fmt.Errorf("failed to save inventory item: %w", err)
		}

		s.publishEvents(ctx, item)
		s.syncAvailability(ctx, item)
		return item, nil
	}
	return nil, lastErr
}

// resolveWarehouseID 未显式指定仓库时回退到默认仓库
func (s *inventoryService) resolveWarehouseID(warehouseID *int64) (int64, error) {
	if warehouseID != nil {
		return *warehouseID, nil
	}
	w, err := s.warehouseRepo.GetDefault()
	if err != nil {
		return 0, fmt.Errorf("failed to get default warehouse: %w", err)
	}
	if w == nil {
		return 0, domain.NewNotFound("no default warehouse configured")
	}
	return w.ID, nil
}

func (s *inventoryService) loadByVariant(warehouseID, variantID int64) (*domain.InventoryItem, error) {
	item, err := s.itemRepo.GetByVariant(warehouseID, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory item: %w", err)
	}
	if item == nil {
		return nil, domain.NewNotFound("inventory item not found for warehouse %d variant %d", warehouseID, variantID)
	}
	return item, nil
}

// publishEvents 落库成功后发布缓冲的领域事件；发布失败只记日志
func (s *inventoryService) publishEvents(ctx context.Context, item *domain.InventoryItem) {
	events := item.DomainEvents()
	if len(events) == 0 || s.publisher == nil {
		item.ClearDomainEvents()
		return
	}

	if err := s.publisher.Publish(ctx, events); err != nil {
		s.logger.Error("failed to publish inventory events",
			zap.Int64("inventory_item_id", item.ID),
			zap.Error(err),
		)
	}
	item.ClearDomainEvents()
}

// syncAvailability 落库成功后回写可用量缓存
func (s *inventoryService) syncAvailability(ctx context.Context, item *domain.InventoryItem) {
	if s.stockCache == nil {
		return
	}
	if err := s.stockCache.SyncAvailable(ctx, item.ID, item.AvailableQuantity(), s.config.AvailabilityTTL); err != nil {
		s.logger.Warn("failed to sync availability cache",
			zap.Int64("inventory_item_id", item.ID),
			zap.Error(err),
		)
	}
}

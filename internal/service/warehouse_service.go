package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/repo"
)

// WarehouseService 定义仓库业务逻辑接口
type WarehouseService interface {
	CreateWarehouse(ctx context.Context, req *domain.CreateWarehouseRequest) (*domain.Warehouse, error)
	GetWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error)
	GetWarehouseByCode(ctx context.Context, code string) (*domain.Warehouse, error)
	GetDefaultWarehouse(ctx context.Context) (*domain.Warehouse, error)
	ListWarehouses(ctx context.Context, activeOnly bool) ([]*domain.Warehouse, error)

	UpdateWarehouse(ctx context.Context, id int64, req *domain.UpdateWarehouseRequest) (*domain.Warehouse, error)
	ActivateWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error)
	DeactivateWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error)
	SetDefaultWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error)
}

// warehouseService 实现WarehouseService接口
type warehouseService struct {
	warehouseRepo repo.WarehouseRepository
	itemRepo      repo.InventoryItemRepository
	publisher     EventPublisher
	logger        *zap.Logger
}

// NewWarehouseService 创建仓库服务实例
func NewWarehouseService(
	warehouseRepo repo.WarehouseRepository,
	itemRepo repo.InventoryItemRepository,
	publisher EventPublisher,
	logger *zap.Logger,
) WarehouseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &warehouseService{
		warehouseRepo: warehouseRepo,
		itemRepo:      itemRepo,
		publisher:     publisher,
		logger:        logger,
	}
}

// CreateWarehouse 创建仓库；编码唯一，首个默认标记经 PromoteDefault 维护单例
func (s *warehouseService) CreateWarehouse(ctx context.Context, req *domain.CreateWarehouseRequest) (*domain.Warehouse, error) {
	existing, err := s.warehouseRepo.GetByCode(req.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to check warehouse code: %w", err)
	}
	if existing != nil {
		return nil, domain.NewInvariant("warehouse code already exists: %s", req.Code)
	}

	w, err := domain.NewWarehouse(req.Code, req.Name, req.Address, false)
	if err != nil {
		return nil, err
	}

	if err := s.warehouseRepo.Create(w); err != nil {
		return nil, fmt.Errorf("failed to create warehouse: %w", err)
	}
	w.MarkCreated()

	// 默认标记单独走 PromoteDefault，由仓储层在事务内清除旧默认
	if req.IsDefault {
		if err := s.warehouseRepo.PromoteDefault(w); err != nil {
			return nil, fmt.Errorf("failed to promote default warehouse: %w", err)
		}
	}

	s.publishEvents(ctx, w)

	s.logger.Info("warehouse created",
		zap.Int64("warehouse_id", w.ID),
		zap.String("code", w.Code),
		zap.Bool("is_default", w.IsDefault),
	)
	return w, nil
}

// GetWarehouse 根据ID获取仓库
func (s *warehouseService) GetWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error) {
	return s.loadWarehouse(id)
}

// GetWarehouseByCode 根据编码获取仓库
func (s *warehouseService) GetWarehouseByCode(ctx context.Context, code string) (*domain.Warehouse, error) {
	w, err := s.warehouseRepo.GetByCode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouse: %w", err)
	}
	if w == nil {
		return nil, domain.NewNotFound("warehouse not found: %s", code)
	}
	return w, nil
}

// GetDefaultWarehouse 获取默认仓库
func (s *warehouseService) GetDefaultWarehouse(ctx context.Context) (*domain.Warehouse, error) {
	w, err := s.warehouseRepo.GetDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to get default warehouse: %w", err)
	}
	if w == nil {
		return nil, domain.NewNotFound("no default warehouse configured")
	}
	return w, nil
}

// ListWarehouses 获取仓库列表
func (s *warehouseService) ListWarehouses(ctx context.Context, activeOnly bool) ([]*domain.Warehouse, error) {
	if activeOnly {
		return s.warehouseRepo.ListActive()
	}
	return s.warehouseRepo.List()
}

// UpdateWarehouse 更新仓库基础信息
func (s *warehouseService) UpdateWarehouse(ctx context.Context, id int64, req *domain.UpdateWarehouseRequest) (*domain.Warehouse, error) {
	w, err := s.loadWarehouse(id)
	if err != nil {
		return nil, err
	}

	if err := w.Update(req.Name, req.Address); err != nil {
		return nil, err
	}

	if err := s.warehouseRepo.Save(w); err != nil {
		return nil, fmt.Errorf("failed to save warehouse: %w", err)
	}
	s.publishEvents(ctx, w)
	return w, nil
}

// ActivateWarehouse 启用仓库；已启用时为幂等空操作
func (s *warehouseService) ActivateWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error) {
	w, err := s.loadWarehouse(id)
	if err != nil {
		return nil, err
	}

	w.Activate()
	if err := s.warehouseRepo.Save(w); err != nil {
		return nil, fmt.Errorf("failed to save warehouse: %w", err)
	}

	s.publishEvents(ctx, w)
	s.logger.Info("warehouse activated", zap.Int64("warehouse_id", w.ID))
	return w, nil
}

// DeactivateWarehouse 停用仓库。
// 需先卸下默认标记，且仓库下不能残留任何在库量或预留量。
func (s *warehouseService) DeactivateWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error) {
	w, err := s.loadWarehouse(id)
	if err != nil {
		return nil, err
	}

	// 停用检查需要完整的库存视图
	items, err := s.itemRepo.ListByWarehouse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load warehouse items: %w", err)
	}
	w.Items = items

	if err := w.Deactivate(); err != nil {
		return nil, err
	}

	if err := s.warehouseRepo.Save(w); err != nil {
		return nil, fmt.Errorf("failed to save warehouse: %w", err)
	}

	s.publishEvents(ctx, w)
	s.logger.Info("warehouse deactivated", zap.Int64("warehouse_id", w.ID))
	return w, nil
}

// SetDefaultWarehouse 设为默认仓库；停用仓库不可设为默认
func (s *warehouseService) SetDefaultWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error) {
	w, err := s.loadWarehouse(id)
	if err != nil {
		return nil, err
	}

	if !w.IsActive {
		return nil, domain.NewInvariant("cannot set inactive warehouse as default")
	}

	if err := s.warehouseRepo.PromoteDefault(w); err != nil {
		return nil, fmt.Errorf("failed to promote default warehouse: %w", err)
	}

	s.logger.Info("default warehouse changed", zap.Int64("warehouse_id", w.ID))
	return w, nil
}

func (s *warehouseService) loadWarehouse(id int64) (*domain.Warehouse, error) {
	w, err := s.warehouseRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouse: %w", err)
	}
	if w == nil {
		return nil, domain.NewNotFound("warehouse not found: %d", id)
	}
	return w, nil
}

// publishEvents 落库成功后发布缓冲的领域事件；发布失败只记日志
func (s *warehouseService) publishEvents(ctx context.Context, w *domain.Warehouse) {
	events := w.DomainEvents()
	if len(events) == 0 || s.publisher == nil {
		w.ClearDomainEvents()
		return
	}

	if err := s.publisher.Publish(ctx, events); err != nil {
		s.logger.Error("failed to publish warehouse events",
			zap.Int64("warehouse_id", w.ID),
			zap.Error(err),
		)
	}
	w.ClearDomainEvents()
}

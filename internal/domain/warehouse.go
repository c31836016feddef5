package domain

import (
	"regexp"
	"strings"
	"time"
)

// warehouseCodePattern 仓库编码：大写字母、数字、连字符，2~20 位。
var warehouseCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{1,19}$`)

// Warehouse 仓库聚合根。
// 不变量：编码全局唯一；默认仓库至多一个；停用仓库不能设为默认；
// 存在在库量或预留量大于零的库存项时不能停用。
// 仓库只有软生命周期（启用/停用），从不物理删除。
type Warehouse struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	IsActive  bool   `json:"is_active"`
	IsDefault bool   `json:"is_default"`
	// 乐观锁版本号，由持久化层在条件写成功后递增
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 本仓库持有的库存项；由仓储层按仓库 ID 装载（显式外键，不做双向对象图）
	Items []*InventoryItem `json:"items,omitempty"`

	eventRecorder
}

// NewWarehouse 创建仓库，初始为启用状态。
func NewWarehouse(code, name, address string, isDefault bool) (*Warehouse, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !warehouseCodePattern.MatchString(code) {
		return nil, NewInvariant("invalid warehouse code %q", code)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewInvariant("warehouse name is required")
	}

	now := time.Now()
	w := &Warehouse{
		Code:      code,
		Name:      name,
		Address:   strings.TrimSpace(address),
		IsActive:  true,
		IsDefault: isDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return w, nil
}

// MarkCreated 缓冲创建事件；由编排层在持久化分配 ID 之后调用，
// 保证事件载荷携带真实的仓库 ID。
func (w *Warehouse) MarkCreated() {
	w.record(WarehouseCreated{
		eventBase:   newEventBase(),
		WarehouseID: w.ID,
		Code:        w.Code,
		Name:        w.Name,
		IsDefault:   w.IsDefault,
	})
}

// Update 更新仓库名称与地址。
func (w *Warehouse) Update(name, address string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewInvariant("warehouse name is required")
	}
	w.Name = name
	w.Address = strings.TrimSpace(address)
	w.touch()
	return nil
}

// Activate 启用仓库；已启用时为幂等空操作。
func (w *Warehouse) Activate() {
	if w.IsActive {
		return
	}
	w.IsActive = true
	w.touch()
	w.record(WarehouseActivated{eventBase: newEventBase(), WarehouseID: w.ID})
}

// Deactivate 停用仓库。
// 必须先扫描所有持有的库存项：任何一项在库量或预留量大于零都拒绝停用，
// 这是一次一致性检查而不只是翻转标志位。默认仓库需先移除默认标记。
func (w *Warehouse) Deactivate() error {
	if !w.IsActive {
		return nil
	}
	if w.IsDefault {
		return NewInvariant("default warehouse cannot be deactivated, remove default flag first")
	}
	for _, item := range w.Items {
		if item.QuantityOnHand > 0 || item.QuantityReserved > 0 {
			return NewInvariant("warehouse %s has stock for sku %s (on_hand=%d, reserved=%d), cannot deactivate",
				w.Code, item.Sku, item.QuantityOnHand, item.QuantityReserved)
		}
	}
	w.IsActive = false
	w.touch()
	w.record(WarehouseDeactivated{eventBase: newEventBase(), WarehouseID: w.ID})
	return nil
}

// SetAsDefault 设为默认仓库；停用仓库不能成为默认。
// 旧默认仓库的标记由编排层在同一工作单元内清除，保证默认仓库的单例不变量。
func (w *Warehouse) SetAsDefault() error {
	if !w.IsActive {
		return NewInvariant("inactive warehouse %s cannot be set as default", w.Code)
	}
	if w.IsDefault {
		return nil
	}
	w.IsDefault = true
	w.touch()
	return nil
}

// RemoveDefault 移除默认标记；非默认仓库时为幂等空操作。
func (w *Warehouse) RemoveDefault() {
	if !w.IsDefault {
		return
	}
	w.IsDefault = false
	w.touch()
}

// GetInventoryItem 按变体 ID 在已装载的库存项中查找。
func (w *Warehouse) GetInventoryItem(variantID int64) (*InventoryItem, bool) {
	for _, item := range w.Items {
		if item.VariantID == variantID {
			return item, true
		}
	}
	return nil, false
}

// GetInventoryItemBySku 按 SKU 在已装载的库存项中查找。
func (w *Warehouse) GetInventoryItemBySku(sku Sku) (*InventoryItem, bool) {
	for _, item := range w.Items {
		if item.Sku == sku {
			return item, true
		}
	}
	return nil, false
}

// GetInventoryItemsByProduct 按商品 ID 过滤已装载的库存项。
func (w *Warehouse) GetInventoryItemsByProduct(productID int64) []*InventoryItem {
	var out []*InventoryItem
	for _, item := range w.Items {
		if item.ProductID == productID {
			out = append(out, item)
		}
	}
	return out
}

func (w *Warehouse) touch() {
	w.UpdatedAt = time.Now()
}

package domain

import (
	"time"
)

// DomainEvent 领域事件：聚合在变更时缓冲事件，工作单元提交成功后由编排层发布。
// 事件发布与聚合解耦，聚合自身无需依赖消息总线即可测试。
type DomainEvent interface {
	// EventName 事件名称，同时用作消息路由键的一部分
	EventName() string
	// OccurredAt 事件发生时间
	OccurredAt() time.Time
}

// eventBase 事件公共字段
type eventBase struct {
	At time.Time `json:"occurred_at"`
}

func (e eventBase) OccurredAt() time.Time { return e.At }

func newEventBase() eventBase { return eventBase{At: time.Now()} }

// WarehouseCreated 仓库创建事件
type WarehouseCreated struct {
	eventBase
	WarehouseID int64  `json:"warehouse_id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	IsDefault   bool   `json:"is_default"`
}

func (WarehouseCreated) EventName() string { return "warehouse.created" }

// WarehouseActivated 仓库启用事件
type WarehouseActivated struct {
	eventBase
	WarehouseID int64 `json:"warehouse_id"`
}

func (WarehouseActivated) EventName() string { return "warehouse.activated" }

// WarehouseDeactivated 仓库停用事件
type WarehouseDeactivated struct {
	eventBase
	WarehouseID int64 `json:"warehouse_id"`
}

func (WarehouseDeactivated) EventName() string { return "warehouse.deactivated" }

// InventoryItemCreated 库存项创建事件（商品发布驱动的初始化）
type InventoryItemCreated struct {
	eventBase
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
	VariantID   int64 `json:"variant_id"`
	Sku         Sku   `json:"sku"`
}

func (InventoryItemCreated) EventName() string { return "inventory.item_created" }

// InventoryReceived 入库事件
type InventoryReceived struct {
	eventBase
	WarehouseID int64 `json:"warehouse_id"`
	VariantID   int64 `json:"variant_id"`
	Sku         Sku   `json:"sku"`
	Quantity    int64 `json:"quantity"`
	OnHandAfter int64 `json:"on_hand_after"`
}

func (InventoryReceived) EventName() string { return "inventory.received" }

// InventoryShipped 直接出库事件（非预留路径）
type InventoryShipped struct {
	eventBase
	WarehouseID int64 `json:"warehouse_id"`
	VariantID   int64 `json:"variant_id"`
	Sku         Sku   `json:"sku"`
	Quantity    int64 `json:"quantity"`
	OnHandAfter int64 `json:"on_hand_after"`
}

func (InventoryShipped) EventName() string { return "inventory.shipped" }

// InventoryAdjusted 库存调整事件
type InventoryAdjusted struct {
	eventBase
	WarehouseID int64  `json:"warehouse_id"`
	VariantID   int64  `json:"variant_id"`
	Sku         Sku    `json:"sku"`
	Delta       int64  `json:"delta"`
	Reason      string `json:"reason"`
	OnHandAfter int64  `json:"on_hand_after"`
}

func (InventoryAdjusted) EventName() string { return "inventory.adjusted" }

// InventoryReservedEvent 库存预留事件
type InventoryReservedEvent struct {
	eventBase
	WarehouseID    int64  `json:"warehouse_id"`
	VariantID      int64  `json:"variant_id"`
	Sku            Sku    `json:"sku"`
	OrderID        string `json:"order_id"`
	Quantity       int64  `json:"quantity"`
	AvailableAfter int64  `json:"available_after"`
}

func (InventoryReservedEvent) EventName() string { return "inventory.reserved" }

// InventoryReleasedEvent 预留释放事件
type InventoryReleasedEvent struct {
	eventBase
	WarehouseID int64  `json:"warehouse_id"`
	VariantID   int64  `json:"variant_id"`
	Sku         Sku    `json:"sku"`
	OrderID     string `json:"order_id"`
	Quantity    int64  `json:"quantity"`
}

func (InventoryReleasedEvent) EventName() string { return "inventory.released" }

// InventoryConfirmedEvent 预留扣减确认事件
type InventoryConfirmedEvent struct {
	eventBase
	WarehouseID int64  `json:"warehouse_id"`
	VariantID   int64  `json:"variant_id"`
	Sku         Sku    `json:"sku"`
	OrderID     string `json:"order_id"`
	Quantity    int64  `json:"quantity"`
	OnHandAfter int64  `json:"on_hand_after"`
}

func (InventoryConfirmedEvent) EventName() string { return "inventory.confirmed" }

// LowStockWarningEvent 低库存预警事件；仅作通知，不阻断触发它的操作。
type LowStockWarningEvent struct {
	eventBase
	WarehouseID int64 `json:"warehouse_id"`
	VariantID   int64 `json:"variant_id"`
	Sku         Sku   `json:"sku"`
	Available   int64 `json:"available"`
	Threshold   int64 `json:"threshold"`
}

func (LowStockWarningEvent) EventName() string { return "inventory.low_stock_warning" }

// eventRecorder 事件缓冲，嵌入各聚合根。
type eventRecorder struct {
	events []DomainEvent
}

// record 追加一条领域事件。
func (r *eventRecorder) record(ev DomainEvent) {
	r.events = append(r.events, ev)
}

// DomainEvents 返回已缓冲的事件。
func (r *eventRecorder) DomainEvents() []DomainEvent {
	return r.events
}

// ClearDomainEvents 清空事件缓冲；由工作单元在提交成功并发布后调用。
func (r *eventRecorder) ClearDomainEvents() {
	r.events = nil
}

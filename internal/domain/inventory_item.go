package domain

import (
	"strings"
	"time"
)

// Reservation 订单预留，隶属于单个库存项，以 OrderID 为键。
// 同一 (库存项, 订单) 至多存在一条预留；重复预留按替换语义处理。
type Reservation struct {
	OrderID   string    `json:"order_id"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryItem 库存项聚合：一个 (仓库, 商品变体) 的库存记录。
// 不变量：QuantityOnHand >= QuantityReserved >= 0。
// 每次在库量或预留量的变化都会追加一条流水并缓冲一条领域事件。
type InventoryItem struct {
	ID                int64  `json:"id"`
	WarehouseID       int64  `json:"warehouse_id"`
	ProductID         int64  `json:"product_id"`
	VariantID         int64  `json:"variant_id"`
	Sku               Sku    `json:"sku"`
	ProductName       string `json:"product_name"`
	QuantityOnHand    int64  `json:"quantity_on_hand"`
	QuantityReserved  int64  `json:"quantity_reserved"`
	LowStockThreshold int64  `json:"low_stock_threshold"`
	// 乐观锁版本号；领域层只读，由持久化层在条件写成功后递增
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 当前有效预留，OrderID -> Reservation
	Reservations map[string]*Reservation `json:"reservations,omitempty"`

	// 本次工作单元内待落库的流水
	pendingMovements []*MovementLogEntry

	eventRecorder
}

// NewInventoryItem 创建库存项。商品发布驱动的初始化传入 initialQuantity=0。
// initialQuantity > 0 时视为一次入库，同样产生流水与事件。
func NewInventoryItem(warehouseID, productID, variantID int64, sku Sku, productName string, initialQuantity, lowStockThreshold int64) (*InventoryItem, error) {
	if warehouseID <= 0 {
		return nil, NewInvariant("warehouse id is required")
	}
	if productID <= 0 || variantID <= 0 {
		return nil, NewInvariant("product id and variant id are required")
	}
	if sku == "" {
		return nil, NewInvariant("sku is required")
	}
	if initialQuantity < 0 {
		return nil, NewInvariant("initial quantity cannot be negative: %d", initialQuantity)
	}
	if lowStockThreshold < 0 {
		return nil, NewInvariant("low stock threshold cannot be negative: %d", lowStockThreshold)
	}

	now := time.Now()
	item := &InventoryItem{
		WarehouseID:       warehouseID,
		ProductID:         productID,
		VariantID:         variantID,
		Sku:               sku,
		ProductName:       productName,
		LowStockThreshold: lowStockThreshold,
		Reservations:      make(map[string]*Reservation),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	item.record(InventoryItemCreated{
		eventBase:   newEventBase(),
		WarehouseID: warehouseID,
		ProductID:   productID,
		VariantID:   variantID,
		Sku:         sku,
	})

	if initialQuantity > 0 {
		if err := item.Receive(initialQuantity, "initial stock"); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// AvailableQuantity 可售量 = 在库量 - 预留量。
func (i *InventoryItem) AvailableQuantity() int64 {
	return i.QuantityOnHand - i.QuantityReserved
}

// IsLowStock 判断可售量是否已触达低库存阈值。
func (i *InventoryItem) IsLowStock() bool {
	return i.AvailableQuantity() <= i.LowStockThreshold
}

// Receive 入库：quantity > 0，无上限。
func (i *InventoryItem) Receive(quantity int64, reason string) error {
	if quantity <= 0 {
		return NewInvariant("receive quantity must be positive: %d", quantity)
	}

	snapshot := i.QuantityOnHand
	i.QuantityOnHand += quantity
	i.touch()

	i.appendMovement(MovementReceived, quantity, snapshot, "", "", reason)
	i.record(InventoryReceived{
		eventBase:   newEventBase(),
		WarehouseID: i.WarehouseID,
		VariantID:   i.VariantID,
		Sku:         i.Sku,
		Quantity:    quantity,
		OnHandAfter: i.QuantityOnHand,
	})
	i.lowStockCheck()
	return nil
}

// Ship 直接出库（不经预留的发货路径）：要求可售量充足。
func (i *InventoryItem) Ship(quantity int64, reference string) error {
	if quantity <= 0 {
		return NewInvariant("ship quantity must be positive: %d", quantity)
	}
	if available := i.AvailableQuantity(); available < quantity {
		return &InsufficientStockError{Sku: i.Sku, Available: available, Requested: quantity}
	}

	snapshot := i.QuantityOnHand
	i.QuantityOnHand -= quantity
	i.touch()

	i.appendMovement(MovementShipped, -quantity, snapshot, "", reference, "")
	i.record(InventoryShipped{
		eventBase:   newEventBase(),
		WarehouseID: i.WarehouseID,
		VariantID:   i.VariantID,
		Sku:         i.Sku,
		Quantity:    quantity,
		OnHandAfter: i.QuantityOnHand,
	})
	i.lowStockCheck()
	return nil
}

// Adjust 库存调整：delta 可正可负；结果在库量不得低于预留量、不得为负。
// 用于盘点修正与管理端"调整到目标数量"流程（调用方计算 delta = 目标 - 当前）。
func (i *InventoryItem) Adjust(delta int64, reason string) error {
	if delta == 0 {
		return NewInvariant("adjust delta cannot be zero")
	}
	newOnHand := i.QuantityOnHand + delta
	if newOnHand < 0 {
		return NewInvariant("adjustment would go negative: on_hand=%d, delta=%d", i.QuantityOnHand, delta)
	}
	if newOnHand < i.QuantityReserved {
		return NewInvariant("adjustment would go below reserved quantity: reserved=%d, resulting_on_hand=%d", i.QuantityReserved, newOnHand)
	}

	snapshot := i.QuantityOnHand
	i.QuantityOnHand = newOnHand
	i.touch()

	i.appendMovement(MovementAdjusted, delta, snapshot, "", "", reason)
	i.record(InventoryAdjusted{
		eventBase:   newEventBase(),
		WarehouseID: i.WarehouseID,
		VariantID:   i.VariantID,
		Sku:         i.Sku,
		Delta:       delta,
		Reason:      reason,
		OnHandAfter: i.QuantityOnHand,
	})
	i.lowStockCheck()
	return nil
}

// Reserve 为订单预留库存。
// 同一订单重复预留采用替换语义（购物车修改后重新预留），而非累加；
// 因此校验可售量时需把该订单现有预留量让出来再比较。
// 可售量不足时返回 InsufficientStockError，绝不部分预留。
func (i *InventoryItem) Reserve(orderID string, quantity int64) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return NewInvariant("order id is required")
	}
	if quantity <= 0 {
		return NewInvariant("reserve quantity must be positive: %d", quantity)
	}

	var existing int64
	if r, ok := i.reservation(orderID); ok {
		existing = r.Quantity
	}
	effectiveAvailable := i.AvailableQuantity() + existing
	if effectiveAvailable < quantity {
		return &InsufficientStockError{Sku: i.Sku, Available: effectiveAvailable, Requested: quantity}
	}

	snapshot := i.QuantityOnHand
	now := time.Now()
	if r, ok := i.reservation(orderID); ok {
		i.QuantityReserved += quantity - r.Quantity
		r.Quantity = quantity
		r.UpdatedAt = now
	} else {
		if i.Reservations == nil {
			i.Reservations = make(map[string]*Reservation)
		}
		i.Reservations[orderID] = &Reservation{
			OrderID:   orderID,
			Quantity:  quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		i.QuantityReserved += quantity
	}
	i.touch()

	i.appendMovement(MovementReserved, quantity, snapshot, orderID, "", "")
	i.record(InventoryReservedEvent{
		eventBase:      newEventBase(),
		WarehouseID:    i.WarehouseID,
		VariantID:      i.VariantID,
		Sku:            i.Sku,
		OrderID:        orderID,
		Quantity:       quantity,
		AvailableAfter: i.AvailableQuantity(),
	})
	i.lowStockCheck()
	return nil
}

// Release 释放订单预留。
// 订单无预留时为幂等空操作（取消可能与确认竞争），不报错、不产生流水。
func (i *InventoryItem) Release(orderID string) {
	r, ok := i.reservation(orderID)
	if !ok {
		return
	}

	snapshot := i.QuantityOnHand
	i.QuantityReserved -= r.Quantity
	delete(i.Reservations, orderID)
	i.touch()

	i.appendMovement(MovementReleased, r.Quantity, snapshot, orderID, "", "")
	i.record(InventoryReleasedEvent{
		eventBase:   newEventBase(),
		WarehouseID: i.WarehouseID,
		VariantID:   i.VariantID,
		Sku:         i.Sku,
		OrderID:     orderID,
		Quantity:    r.Quantity,
	})
}

// Confirm 确认扣减：把订单预留量从在库量中扣除，唯一会永久消耗库存的预留出口。
// 订单无预留时属于调用方缺陷而非可容忍的竞态，返回不变量错误。
func (i *InventoryItem) Confirm(orderID string) error {
	r, ok := i.reservation(orderID)
	if !ok {
		return NewInvariant("no reservation found for order %s", orderID)
	}

	snapshot := i.QuantityOnHand
	i.QuantityOnHand -= r.Quantity
	i.QuantityReserved -= r.Quantity
	delete(i.Reservations, orderID)
	i.touch()

	i.appendMovement(MovementConfirmed, -r.Quantity, snapshot, orderID, "", "")
	i.record(InventoryConfirmedEvent{
		eventBase:   newEventBase(),
		WarehouseID: i.WarehouseID,
		VariantID:   i.VariantID,
		Sku:         i.Sku,
		OrderID:     orderID,
		Quantity:    r.Quantity,
		OnHandAfter: i.QuantityOnHand,
	})
	i.lowStockCheck()
	return nil
}

// TransferOut 调拨出库：与 Ship 同样要求可售量充足，但记录 transferred 流水。
func (i *InventoryItem) TransferOut(quantity int64, reference string) error {
	if quantity <= 0 {
		return NewInvariant("transfer quantity must be positive: %d", quantity)
	}
	if available := i.AvailableQuantity(); available < quantity {
		return &InsufficientStockError{Sku: i.Sku, Available: available, Requested: quantity}
	}

	snapshot := i.QuantityOnHand
	i.QuantityOnHand -= quantity
	i.touch()
	i.appendMovement(MovementTransferred, -quantity, snapshot, "", reference, "transfer out")
	i.lowStockCheck()
	return nil
}

// TransferIn 调拨入库。
func (i *InventoryItem) TransferIn(quantity int64, reference string) error {
	if quantity <= 0 {
		return NewInvariant("transfer quantity must be positive: %d", quantity)
	}

	snapshot := i.QuantityOnHand
	i.QuantityOnHand += quantity
	i.touch()
	i.appendMovement(MovementTransferred, quantity, snapshot, "", reference, "transfer in")
	return nil
}

// ReservationFor 返回指定订单的预留（只读查询）。
func (i *InventoryItem) ReservationFor(orderID string) (*Reservation, bool) {
	return i.reservation(orderID)
}

// PendingMovements 返回本次工作单元内累计的待落库流水。
func (i *InventoryItem) PendingMovements() []*MovementLogEntry {
	return i.pendingMovements
}

// ClearPendingMovements 清空待落库流水；由持久化层在提交成功后调用。
func (i *InventoryItem) ClearPendingMovements() {
	i.pendingMovements = nil
}

func (i *InventoryItem) reservation(orderID string) (*Reservation, bool) {
	if i.Reservations == nil {
		return nil, false
	}
	r, ok := i.Reservations[orderID]
	return r, ok
}

// lowStockCheck 可售量触达阈值时缓冲预警事件；仅作通知，从不阻断触发它的操作。
func (i *InventoryItem) lowStockCheck() {
	if !i.IsLowStock() {
		return
	}
	i.record(LowStockWarningEvent{
		eventBase:   newEventBase(),
		WarehouseID: i.WarehouseID,
		VariantID:   i.VariantID,
		Sku:         i.Sku,
		Available:   i.AvailableQuantity(),
		Threshold:   i.LowStockThreshold,
	})
}

func (i *InventoryItem) appendMovement(t MovementType, quantity, snapshot int64, orderID, reference, notes string) {
	i.pendingMovements = append(i.pendingMovements, &MovementLogEntry{
		InventoryItemID:  i.ID,
		WarehouseID:      i.WarehouseID,
		ProductID:        i.ProductID,
		VariantID:        i.VariantID,
		OrderID:          orderID,
		Type:             t,
		Quantity:         quantity,
		SnapshotQuantity: snapshot,
		Reference:        reference,
		Notes:            notes,
		CreatedAt:        time.Now(),
	})
}

func (i *InventoryItem) touch() {
	i.UpdatedAt = time.Now()
}

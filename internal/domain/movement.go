package domain

import (
	"time"
)

// MovementType 库存流水类型
type MovementType string

const (
	MovementReceived    MovementType = "received"    // 入库
	MovementShipped     MovementType = "shipped"     // 直接出库
	MovementReserved    MovementType = "reserved"    // 预留
	MovementReleased    MovementType = "released"    // 预留释放
	MovementConfirmed   MovementType = "confirmed"   // 预留扣减
	MovementAdjusted    MovementType = "adjusted"    // 调整
	MovementTransferred MovementType = "transferred" // 跨仓调拨
)

// MovementLogEntry 库存流水，追加写且不可变，是库存数量变化唯一的审计来源。
// Quantity 语义：影响在库量的类型（received/shipped/confirmed/adjusted/transferred）
// 记录带符号的在库量增量；预留类类型（reserved/released）记录本次涉及的预留数量（正数）。
// SnapshotQuantity 恒为操作前的在库量快照。
type MovementLogEntry struct {
	ID               int64        `json:"id"`
	InventoryItemID  int64        `json:"inventory_item_id"`
	WarehouseID      int64        `json:"warehouse_id"`
	ProductID        int64        `json:"product_id"`
	VariantID        int64        `json:"variant_id"`
	OrderID          string       `json:"order_id,omitempty"`
	Type             MovementType `json:"type"`
	Quantity         int64        `json:"quantity"`
	SnapshotQuantity int64        `json:"snapshot_quantity"`
	Reference        string       `json:"reference,omitempty"`
	Notes            string       `json:"notes,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// MovementListRequest 流水查询请求
type MovementListRequest struct {
	InventoryItemID *int64  `json:"inventory_item_id"`
	WarehouseID     *int64  `json:"warehouse_id"`
	VariantID       *int64  `json:"variant_id"`
	OrderID         *string `json:"order_id"`
	Type            *string `json:"type"`
	Page            int     `json:"page"`
	PageSize        int     `json:"page_size"`
}

// MovementListResponse 流水查询响应
type MovementListResponse struct {
	Movements []*MovementLogEntry `json:"movements"`
	Total     int64               `json:"total"`
	Page      int                 `json:"page"`
	PageSize  int                 `json:"page_size"`
}

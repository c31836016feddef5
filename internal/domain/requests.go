package domain

// CreateWarehouseRequest 创建仓库请求
type CreateWarehouseRequest struct {
	Code      string `json:"code" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Address   string `json:"address"`
	IsDefault bool   `json:"is_default"`
}

// UpdateWarehouseRequest 更新仓库请求
type UpdateWarehouseRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

// CreateInventoryItemRequest 创建库存项请求
type CreateInventoryItemRequest struct {
	WarehouseID     int64  `json:"warehouse_id" binding:"required"`
	ProductID       int64  `json:"product_id" binding:"required"`
	VariantID       int64  `json:"variant_id" binding:"required"`
	Sku             string `json:"sku" binding:"required"`
	ProductName     string `json:"product_name"`
	InitialQuantity int64  `json:"initial_quantity" binding:"min=0"`
}

// StockOperationRequest 入库/出库请求
type StockOperationRequest struct {
	WarehouseID int64  `json:"warehouse_id" binding:"required"`
	VariantID   int64  `json:"variant_id" binding:"required"`
	Quantity    int64  `json:"quantity" binding:"required,gt=0"`
	Reference   string `json:"reference"`
}

// ReserveLine 预留请求行：未指定仓库时回退到默认仓库。
type ReserveLine struct {
	VariantID   int64  `json:"variant_id" binding:"required"`
	WarehouseID *int64 `json:"warehouse_id"`
	Quantity    int64  `json:"quantity" binding:"required,gt=0"`
}

// ReserveOrderRequest 为订单预留库存请求，可跨多个仓库多个变体。
type ReserveOrderRequest struct {
	OrderID string        `json:"order_id" binding:"required"`
	Lines   []ReserveLine `json:"lines" binding:"required,min=1"`
}

// ReservedLineResult 单行预留结果
type ReservedLineResult struct {
	InventoryItemID int64 `json:"inventory_item_id"`
	WarehouseID     int64 `json:"warehouse_id"`
	VariantID       int64 `json:"variant_id"`
	Quantity        int64 `json:"quantity"`
	AvailableAfter  int64 `json:"available_after"`
}

// ReserveOrderResponse 订单预留响应
type ReserveOrderResponse struct {
	OrderID string               `json:"order_id"`
	Lines   []ReservedLineResult `json:"lines"`
}

// OrderRequest 按订单号操作（释放/确认）的请求
type OrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// ImportBySkuRequest 按 SKU 入库请求；库存项不存在时经目录协作方解析后懒创建。
type ImportBySkuRequest struct {
	WarehouseID int64  `json:"warehouse_id" binding:"required"`
	Sku         string `json:"sku" binding:"required"`
	Quantity    int64  `json:"quantity" binding:"required,gt=0"`
	Reference   string `json:"reference"`
}

// AdjustToTargetRequest 调整到目标数量请求；编排层计算 delta = 目标 - 当前。
type AdjustToTargetRequest struct {
	WarehouseID int64  `json:"warehouse_id" binding:"required"`
	VariantID   int64  `json:"variant_id" binding:"required"`
	NewQuantity int64  `json:"new_quantity" binding:"min=0"`
	Reason      string `json:"reason" binding:"required,min=1"`
}

// TransferRequest 跨仓调拨请求
type TransferRequest struct {
	FromWarehouseID int64  `json:"from_warehouse_id" binding:"required"`
	ToWarehouseID   int64  `json:"to_warehouse_id" binding:"required"`
	VariantID       int64  `json:"variant_id" binding:"required"`
	Quantity        int64  `json:"quantity" binding:"required,gt=0"`
	Reference       string `json:"reference"`
}

// LowStockItem 低库存条目
type LowStockItem struct {
	InventoryItemID int64  `json:"inventory_item_id"`
	WarehouseID     int64  `json:"warehouse_id"`
	ProductID       int64  `json:"product_id"`
	VariantID       int64  `json:"variant_id"`
	Sku             Sku    `json:"sku"`
	ProductName     string `json:"product_name"`
	Available       int64  `json:"available"`
	Threshold       int64  `json:"threshold"`
}

// Package repo 实现库存数据访问层，负责与数据库的交互。
package repo

import (
	"database/sql"
	"fmt"

	"github.com/MorseWayne/stock_ledger/internal/domain"
)

// InventoryItemRepository 定义库存项数据访问接口。
// Save 是库存项的工作单元入口：条件写（版本比对）聚合行、重写预留行、
// 追加流水行，三者在同一事务内提交；版本不匹配以 KindConflict 错误区分上抛。
type InventoryItemRepository interface {
	Create(item *domain.InventoryItem) error
	GetByID(id int64) (*domain.InventoryItem, error)
	GetByVariant(warehouseID, variantID int64) (*domain.InventoryItem, error)
	GetBySku(warehouseID int64, sku domain.Sku) (*domain.InventoryItem, error)
	ListByWarehouse(warehouseID int64) ([]*domain.InventoryItem, error)
	ListByProduct(productID int64) ([]*domain.InventoryItem, error)
	ListByOrder(orderID string) ([]*domain.InventoryItem, error)
	ListLowStock(warehouseID *int64) ([]*domain.InventoryItem, error)
	Save(item *domain.InventoryItem) error
}

// inventoryItemRepo 实现 InventoryItemRepository 接口
type inventoryItemRepo struct {
	db *sql.DB
}

// NewInventoryItemRepository 创建库存项仓储实例
func NewInventoryItemRepository(db *sql.DB) InventoryItemRepository {
	return &inventoryItemRepo{db: db}
}

const inventoryItemColumns = `
	id, warehouse_id, product_id, variant_id, sku, product_name,
	quantity_on_hand, quantity_reserved, low_stock_threshold, version, created_at, updated_at
`

// Create 创建库存项（含初始预留与初始流水，同一事务提交）
func (r *inventoryItemRepo) Create(item *domain.InventoryItem) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO inventory_items
			(warehouse_id, product_id, variant_id, sku, product_name,
			 quantity_on_hand, quantity_reserved, low_stock_threshold)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.WarehouseID,
		item.ProductID,
		item.VariantID,
		item.Sku.String(),
		item.ProductName,
		item.QuantityOnHand,
		item.QuantityReserved,
		item.LowStockThreshold,
	)
	if err != nil {
		return fmt.Errorf("failed to create inventory item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id

	if err := insertMovementsTx(tx, item); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	item.ClearPendingMovements()
	return nil
}

// GetByID 根据 ID 获取库存项（含有效预留）
func (r *inventoryItemRepo) GetByID(id int64) (*domain.InventoryItem, error) {
	return r.getOne("WHERE id = ?", id)
}

// GetByVariant 根据 (仓库, 变体) 获取库存项
func (r *inventoryItemRepo) GetByVariant(warehouseID, variantID int64) (*domain.InventoryItem, error) {
	return r.getOne("WHERE warehouse_id = ? AND variant_id = ?", warehouseID, variantID)
}

// GetBySku 根据 (仓库, SKU) 获取库存项
func (r *inventoryItemRepo) GetBySku(warehouseID int64, sku domain.Sku) (*domain.InventoryItem, error) {
	return r.getOne("WHERE warehouse_id = ? AND sku = ?", warehouseID, sku.String())
}

// ListByWarehouse 获取仓库下所有库存项（含预留，供停用一致性检查）
func (r *inventoryItemRepo) ListByWarehouse(warehouseID int64) ([]*domain.InventoryItem, error) {
	return r.list("WHERE warehouse_id = ? ORDER BY variant_id", warehouseID)
}

// ListByProduct 获取商品在所有仓库的库存项
func (r *inventoryItemRepo) ListByProduct(productID int64) ([]*domain.InventoryItem, error) {
	return r.list("WHERE product_id = ? ORDER BY warehouse_id, variant_id", productID)
}

// ListByOrder 获取持有指定订单有效预留的库存项（供释放/确认编排使用）
func (r *inventoryItemRepo) ListByOrder(orderID string) ([]*domain.InventoryItem, error) {
	return r.list(`WHERE id IN (
		SELECT inventory_item_id FROM reservations WHERE order_id = ?
	) ORDER BY id`, orderID)
}

// ListLowStock 获取可售量触达阈值的库存项；warehouseID 为空时查询全部仓库
func (r *inventoryItemRepo) ListLowStock(warehouseID *int64) ([]*domain.InventoryItem, error) {
	where := "WHERE quantity_on_hand - quantity_reserved <= low_stock_threshold"
	args := []interface{}{}
	if warehouseID != nil {
		where += " AND warehouse_id = ?"
		args = append(args, *warehouseID)
	}
	where += " ORDER BY quantity_on_hand - quantity_reserved ASC"
	return r.list(where, args...)
}

// Save 工作单元提交：版本比对更新聚合行，重写预留行，追加流水行。
// 版本不匹配返回 KindConflict 错误，编排层可重新加载后重试。
func (r *inventoryItemRepo) Save(item *domain.InventoryItem) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE inventory_items
		SET product_name = ?, quantity_on_hand = ?, quantity_reserved = ?,
		    low_stock_threshold = ?, version = version + 1
		WHERE id = ? AND version = ?
	`,
		item.ProductName,
		item.QuantityOnHand,
		item.QuantityReserved,
		item.LowStockThreshold,
		item.ID,
		item.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update inventory item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return domain.NewConflict("inventory item version conflict or record not found")
	}

	// 预留行整体重写：单个库存项的有效预留数量有限，重写比增量同步简单可靠
	if _, err := tx.Exec(`DELETE FROM reservations WHERE inventory_item_id = ?`, item.ID); err != nil {
		return fmt.Errorf("failed to clear reservations: %w", err)
	}
	for _, res := range item.Reservations {
		if _, err := tx.Exec(`
			INSERT INTO reservations (inventory_item_id, order_id, quantity, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, item.ID, res.OrderID, res.Quantity, res.CreatedAt, res.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert reservation: %w", err)
		}
	}

	if err := insertMovementsTx(tx, item); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	item.Version++
	item.ClearPendingMovements()
	return nil
}

// insertMovementsTx 在事务内追加待落库的流水行
func insertMovementsTx(tx *sql.Tx, item *domain.InventoryItem) error {
	for _, m := range item.PendingMovements() {
		if _, err := tx.Exec(`
			INSERT INTO inventory_movements
				(inventory_item_id, warehouse_id, product_id, variant_id, order_id,
				 movement_type, quantity, snapshot_quantity, reference, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			item.ID,
			m.WarehouseID,
			m.ProductID,
			m.VariantID,
			m.OrderID,
			string(m.Type),
			m.Quantity,
			m.SnapshotQuantity,
			m.Reference,
			m.Notes,
			m.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert movement: %w", err)
		}
	}
	return nil
}

func (r *inventoryItemRepo) getOne(where string, args ...interface{}) (*domain.InventoryItem, error) {
	query := fmt.Sprintf("SELECT %s FROM inventory_items %s", inventoryItemColumns, where)

	item := &domain.InventoryItem{}
	var sku string
	err := r.db.QueryRow(query, args...).Scan(
		&item.ID,
		&item.WarehouseID,
		&item.ProductID,
		&item.VariantID,
		&sku,
		&item.ProductName,
		&item.QuantityOnHand,
		&item.QuantityReserved,
		&item.LowStockThreshold,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory item: %w", err)
	}
	item.Sku = domain.Sku(sku)

	if err := r.loadReservations(item); err != nil {
		return nil, err
	}
	return item, nil
}

func (r *inventoryItemRepo) list(where string, args ...interface{}) ([]*domain.InventoryItem, error) {
	query := fmt.Sprintf("SELECT %s FROM inventory_items %s", inventoryItemColumns, where)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory items: %w", err)
	}
	defer rows.Close()

	var items []*domain.InventoryItem
	for rows.Next() {
		item := &domain.InventoryItem{}
		var sku string
		err := rows.Scan(
			&item.ID,
			&item.WarehouseID,
			&item.ProductID,
			&item.VariantID,
			&sku,
			&item.ProductName,
			&item.QuantityOnHand,
			&item.QuantityReserved,
			&item.LowStockThreshold,
			&item.Version,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		item.Sku = domain.Sku(sku)
		items = append(items, item)
	}

	for _, item := range items {
		if err := r.loadReservations(item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// loadReservations 按库存项 ID 装载子实体（显式外键，不做双向对象图）
func (r *inventoryItemRepo) loadReservations(item *domain.InventoryItem) error {
	rows, err := r.db.Query(`
		SELECT order_id, quantity, created_at, updated_at
		FROM reservations
		WHERE inventory_item_id = ?
	`, item.ID)
	if err != nil {
		return fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	item.Reservations = make(map[string]*domain.Reservation)
	for rows.Next() {
		res := &domain.Reservation{}
		if err := rows.Scan(&res.OrderID, &res.Quantity, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan reservation: %w", err)
		}
		item.Reservations[res.OrderID] = res
	}
	return nil
}

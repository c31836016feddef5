// Package repo 提供库存流水的只读查询实现；流水的写入只发生在库存项工作单元内。
package repo

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/MorseWayne/stock_ledger/internal/domain"
)

// MovementRepository 定义库存流水查询接口。流水是追加写的审计账，
// 这里不提供任何更新或删除入口。
type MovementRepository interface {
	List(req *domain.MovementListRequest) (*domain.MovementListResponse, error)
	CountByItem(inventoryItemID int64) (int64, error)
}

// movementRepo 实现 MovementRepository 接口
type movementRepo struct {
	db *sql.DB
}

// NewMovementRepository 创建流水仓储实例
func NewMovementRepository(db *sql.DB) MovementRepository {
	return &movementRepo{db: db}
}

// List 按过滤条件分页查询流水
func (r *movementRepo) List(req *domain.MovementListRequest) (*domain.MovementListResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	where, args := r.buildListWhereClause(req)

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM inventory_movements %s", where)
	var total int64
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count movements: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, inventory_item_id, warehouse_id, product_id, variant_id, order_id,
		       movement_type, quantity, snapshot_quantity, reference, notes, created_at
		FROM inventory_movements %s
		ORDER BY id DESC LIMIT ? OFFSET ?
	`, where)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []*domain.MovementLogEntry
	for rows.Next() {
		m := &domain.MovementLogEntry{}
		var movementType string
		err := rows.Scan(
			&m.ID,
			&m.InventoryItemID,
			&m.WarehouseID,
			&m.ProductID,
			&m.VariantID,
			&m.OrderID,
			&movementType,
			&m.Quantity,
			&m.SnapshotQuantity,
			&m.Reference,
			&m.Notes,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		m.Type = domain.MovementType(movementType)
		movements = append(movements, m)
	}

	return &domain.MovementListResponse{
		Movements: movements,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}, nil
}

// CountByItem 统计某库存项的流水条数（对账用，只会单调递增）
func (r *movementRepo) CountByItem(inventoryItemID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM inventory_movements WHERE inventory_item_id = ?",
		inventoryItemID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count movements: %w", err)
	}
	return count, nil
}

// buildListWhereClause 构建查询条件子句
func (r *movementRepo) buildListWhereClause(req *domain.MovementListRequest) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if req.InventoryItemID != nil {
		conditions = append(conditions, "inventory_item_id = ?")
		args = append(args, *req.InventoryItemID)
	}
	if req.WarehouseID != nil {
		conditions = append(conditions, "warehouse_id = ?")
		args = append(args, *req.WarehouseID)
	}
	if req.VariantID != nil {
		conditions = append(conditions, "variant_id = ?")
		args = append(args, *req.VariantID)
	}
	if req.OrderID != nil {
		conditions = append(conditions, "order_id = ?")
		args = append(args, *req.OrderID)
	}
	if req.Type != nil {
		conditions = append(conditions, "movement_type = ?")
		args = append(args, *req.Type)
	}

	if len(conditions) > 0 {
		return "WHERE " + strings.Join(conditions, " AND "), args
	}
	return "", args
}

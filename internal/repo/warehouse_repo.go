// Package repo 提供仓库聚合的数据访问实现。
package repo

import (
	"database/sql"
	"fmt"

	"github.com/MorseWayne/stock_ledger/internal/domain"
)

// WarehouseRepository 定义仓库数据访问接口。
// 仓库从不物理删除，Save 以版本比对做条件写；PromoteDefault 在单个事务内
// 清除旧默认标记并设置新默认标记，维护默认仓库的单例不变量。
type WarehouseRepository interface {
	Create(w *domain.Warehouse) error
	GetByID(id int64) (*domain.Warehouse, error)
	GetByCode(code string) (*domain.Warehouse, error)
	GetDefault() (*domain.Warehouse, error)
	List() ([]*domain.Warehouse, error)
	ListActive() ([]*domain.Warehouse, error)
	Save(w *domain.Warehouse) error
	PromoteDefault(w *domain.Warehouse) error
}

// warehouseRepo 实现 WarehouseRepository 接口
type warehouseRepo struct {
	db *sql.DB
}

// NewWarehouseRepository 创建仓库仓储实例
func NewWarehouseRepository(db *sql.DB) WarehouseRepository {
	return &warehouseRepo{db: db}
}

const warehouseColumns = `
	id, code, name, address, is_active, is_default, version, created_at, updated_at
`

// Create 创建仓库；code 列的唯一索引兜底并发下的编码唯一性
func (r *warehouseRepo) Create(w *domain.Warehouse) error {
	result, err := r.db.Exec(`
		INSERT INTO warehouses (code, name, address, is_active, is_default)
		VALUES (?, ?, ?, ?, ?)
	`, w.Code, w.Name, w.Address, w.IsActive, w.IsDefault)
	if err != nil {
		return fmt.Errorf("failed to create warehouse: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	w.ID = id
	return nil
}

// GetByID 根据 ID 获取仓库
func (r *warehouseRepo) GetByID(id int64) (*domain.Warehouse, error) {
	return r.getOne("WHERE id = ?", id)
}

// GetByCode 根据编码获取仓库
func (r *warehouseRepo) GetByCode(code string) (*domain.Warehouse, error) {
	return r.getOne("WHERE code = ?", code)
}

// GetDefault 获取默认仓库；不存在时返回 (nil, nil)
func (r *warehouseRepo) GetDefault() (*domain.Warehouse, error) {
	return r.getOne("WHERE is_default = TRUE")
}

// List 获取所有仓库
func (r *warehouseRepo) List() ([]*domain.Warehouse, error) {
	return r.list("ORDER BY code")
}

// ListActive 获取所有启用仓库
func (r *warehouseRepo) ListActive() ([]*domain.Warehouse, error) {
	return r.list("WHERE is_active = TRUE ORDER BY code")
}

// Save 使用乐观锁更新仓库
func (r *warehouseRepo) Save(w *domain.Warehouse) error {
	result, err := r.db.Exec(`
		UPDATE warehouses
		SET name = ?, address = ?, is_active = ?, is_default = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, w.Name, w.Address, w.IsActive, w.IsDefault, w.ID, w.Version)
	if err != nil {
		return fmt.Errorf("failed to update warehouse: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return domain.NewConflict("warehouse version conflict or record not found")
	}

	w.Version++
	return nil
}

// PromoteDefault 原子切换默认仓库：同一事务内先清除旧默认，再条件写新默认。
func (r *warehouseRepo) PromoteDefault(w *domain.Warehouse) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE warehouses SET is_default = FALSE, version = version + 1
		WHERE is_default = TRUE AND id <> ?
	`, w.ID); err != nil {
		return fmt.Errorf("failed to clear default warehouse: %w", err)
	}

	result, err := tx.Exec(`
		UPDATE warehouses
		SET is_default = TRUE, version = version + 1
		WHERE id = ? AND version = ? AND is_active = TRUE
	`, w.ID, w.Version)
	if err != nil {
		return fmt.Errorf("failed to set default warehouse: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return domain.NewConflict("warehouse version conflict or warehouse inactive")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	w.IsDefault = true
	w.Version++
	return nil
}

func (r *warehouseRepo) getOne(where string, args ...interface{}) (*domain.Warehouse, error) {
	query := fmt.Sprintf("SELECT %s FROM warehouses %s", warehouseColumns, where)

	w := &domain.Warehouse{}
	err := r.db.QueryRow(query, args...).Scan(
		&w.ID,
		&w.Code,
		&w.Name,
		&w.Address,
		&w.IsActive,
		&w.IsDefault,
		&w.Version,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouse: %w", err)
	}
	return w, nil
}

func (r *warehouseRepo) list(where string) ([]*domain.Warehouse, error) {
	query := fmt.Sprintf("SELECT %s FROM warehouses %s", warehouseColumns, where)

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []*domain.Warehouse
	for rows.Next() {
		w := &domain.Warehouse{}
		err := rows.Scan(
			&w.ID,
			&w.Code,
			&w.Name,
			&w.Address,
			&w.IsActive,
			&w.IsDefault,
			&w.Version,
			&w.CreatedAt,
			&w.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan warehouse: %w", err)
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, nil
}

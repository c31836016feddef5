// Package service 实现库存业务逻辑层，负责库存编排和业务规则。
package service

import (
	"context"
	"time"

	"github.com/MorseWayne/stock_ledger/internal/domain"
)

// CatalogProduct 目录协作方返回的商品变体信息
type CatalogProduct struct {
	ProductID   int64  `json:"product_id"`
	VariantID   int64  `json:"variant_id"`
	Sku         string `json:"sku"`
	ProductName string `json:"product_name"`
}

// CatalogResolver 商品目录协作方接口。
// 按 SKU 入库遇到未知 SKU 时，经由此接口解析出商品与变体标识后懒创建库存项。
type CatalogResolver interface {
	ResolveBySku(ctx context.Context, sku string) (*CatalogProduct, error)
}

// EventPublisher 领域事件发布接口，由消息队列层实现。
// 发布发生在聚合落库成功之后；发布失败只记日志，不回滚业务操作。
type EventPublisher interface {
	Publish(ctx context.Context, events []domain.DomainEvent) error
}

// PublishedVariant 商品发布通知中的单个变体
type PublishedVariant struct {
	VariantID int64  `json:"variant_id"`
	Sku       string `json:"sku"`
}

// ProductPublishedNotification 目录模块的商品发布通知。
// 一条通知携带商品下全部变体；消费此通知为各启用仓库懒初始化零库存项。
type ProductPublishedNotification struct {
	MessageID   string             `json:"message_id"`
	ProductID   int64              `json:"product_id"`
	ProductName string             `json:"product_name"`
	Variants    []PublishedVariant `json:"variants"`
	PublishedAt time.Time          `json:"published_at"`
}

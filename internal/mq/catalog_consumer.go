// Package mq 提供商品发布通知的消费者
package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/service"
)

// CatalogConsumer 消费目录模块的商品发布通知，
// 为所有启用仓库懒初始化零库存项。
type CatalogConsumer struct {
	consumer     *Consumer
	inventorySvc service.InventoryService
	logger       *zap.Logger
}

// NewCatalogConsumer 创建商品发布通知消费者
func NewCatalogConsumer(
	cm *ConnectionManager,
	config *ConsumerConfig,
	inventorySvc service.InventoryService,
	logger *zap.Logger,
) *CatalogConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}

	consumer := NewConsumer(cm, config, logger)

	cc := &CatalogConsumer{
		consumer:     consumer,
		inventorySvc: inventorySvc,
		logger:       logger,
	}
	consumer.SetHandler(cc.handleMessage)
	return cc
}

// Start 开始消费商品发布通知队列
func (cc *CatalogConsumer) Start(ctx context.Context) error {
	return cc.consumer.StartConsuming(ctx, CatalogConsumeQueue)
}

// Stop 停止消费
func (cc *CatalogConsumer) Stop() error {
	return cc.consumer.StopConsuming()
}

// Close 关闭消费者
func (cc *CatalogConsumer) Close() error {
	return cc.consumer.Close()
}

// handleMessage 处理单条商品发布通知。
// 解码失败或业务不变量冲突属不可重试错误，直接进死信；
// 基础设施错误返回可重试错误，由底层消费者重新投递。
func (cc *CatalogConsumer) handleMessage(ctx context.Context, delivery amqp.Delivery) error {
	var message EventMessage
	if err := message.FromJSON(delivery.Body); err != nil {
		return &NonRetryableError{Err: fmt.Errorf("failed to decode event message: %w", err)}
	}

	var notification service.ProductPublishedNotification
	if err := message.GetDataAs(&notification); err != nil {
		return &NonRetryableError{Err: fmt.Errorf("failed to decode product published data: %w", err)}
	}
	if notification.MessageID == "" {
		notification.MessageID = message.ID
	}

	logger := cc.logger.With(
		zap.String("message_id", message.ID),
		zap.Int64("product_id", notification.ProductID),
		zap.Int("variants", len(notification.Variants)),
	)
	logger.Info("product published notification received")

	if err := cc.inventorySvc.OnProductPublished(ctx, &notification); err != nil {
		switch domain.KindOf(err) {
		case domain.KindInvariant, domain.KindNotFound:
			logger.Warn("product published notification rejected", zap.Error(err))
			return &NonRetryableError{Err: err}
		default:
			logger.Error("failed to provision inventory, will retry", zap.Error(err))
			return err
		}
	}

	logger.Info("inventory provisioned from product published notification")
	return nil
}

// GetStats 获取消费者统计信息
func (cc *CatalogConsumer) GetStats() ConsumerStats {
	return cc.consumer.GetStats()
}

// Package mq 提供库存相关的队列拓扑定义和管理
package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// 库存相关的交换机和队列常量
const (
	// 交换机
	InventoryExchange    = "inventory.events"       // 库存事件主交换机
	InventoryDLXExchange = "inventory.dlx.exchange" // 死信交换机
	CatalogExchange      = "catalog.events"         // 目录模块的事件交换机

	// 队列
	LowStockQueue       = "inventory.lowstock.queue" // 低库存预警队列
	AuditQueue          = "inventory.audit.queue"    // 审计订阅队列（全量事件）
	CatalogConsumeQueue = "inventory.catalog.queue"  // 商品发布通知消费队列
	InventoryDLXQueue   = "inventory.dlx.queue"      // 死信队列

	// 路由键
	LowStockRoutingKey         = "inventory.low_stock_warning"
	AllInventoryRoutingKey     = "inventory.*"
	WarehouseRoutingKey        = "warehouse.*"
	ProductPublishedRoutingKey = "product.published"
)

// QueueManager 库存队列管理器，负责声明交换机、队列与绑定
type QueueManager struct {
	cm     *ConnectionManager
	logger *zap.Logger
}

// NewQueueManager 创建队列管理器
func NewQueueManager(cm *ConnectionManager, logger *zap.Logger) *QueueManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueManager{
		cm:     cm,
		logger: logger,
	}
}

// SetupQueues 声明所有交换机、队列并完成绑定
func (qm *QueueManager) SetupQueues(ctx context.Context) error {
	ch, err := qm.cm.GetChannel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}
	defer qm.cm.ReturnChannel(ch)

	if err := qm.declareExchanges(ch); err != nil {
		return fmt.Errorf("failed to declare exchanges: %w", err)
	}
	if err := qm.declareQueues(ch); err != nil {
		return fmt.Errorf("failed to declare queues: %w", err)
	}
	if err := qm.bindQueues(ch); err != nil {
		return fmt.Errorf("failed to bind queues: %w", err)
	}

	qm.logger.Info("inventory queue topology ready")
	return nil
}

// declareExchanges 声明交换机
func (qm *QueueManager) declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{InventoryExchange, "topic"},
		{InventoryDLXExchange, "topic"},
		// 目录交换机由目录模块拥有，这里幂等声明以便独立启动
		{CatalogExchange, "topic"},
	}

	for _, exchange := range exchanges {
		if err := ch.ExchangeDeclare(
			exchange.name,
			exchange.kind,
			true,  // durable
			false, // autoDelete
			false, // internal
			false, // noWait
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange.name, err)
		}
		qm.logger.Debug("exchange declared", zap.String("exchange", exchange.name))
	}
	return nil
}

// declareQueues 声明队列
func (qm *QueueManager) declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name string
		args amqp.Table
	}{
		{
			name: LowStockQueue,
			args: amqp.Table{
				"x-dead-letter-exchange":    InventoryDLXExchange,
				"x-dead-letter-routing-key": "failed.lowstock",
			},
		},
		{
			name: AuditQueue,
			args: amqp.Table{
				"x-dead-letter-exchange":    InventoryDLXExchange,
				"x-dead-letter-routing-key": "failed.audit",
			},
		},
		{
			name: CatalogConsumeQueue,
			args: amqp.Table{
				"x-dead-letter-exchange":    InventoryDLXExchange,
				"x-dead-letter-routing-key": "failed.catalog",
			},
		},
		{
			name: InventoryDLXQueue,
			args: nil,
		},
	}

	for _, queue := range queues {
		if _, err := ch.QueueDeclare(
			queue.name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			queue.args,
		); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue.name, err)
		}
		qm.logger.Debug("queue declared", zap.String("queue", queue.name))
	}
	return nil
}

// bindQueues 绑定队列
func (qm *QueueManager) bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      string
		exchange   string
		routingKey string
	}{
		// 低库存预警队列只关心预警事件
		{LowStockQueue, InventoryExchange, LowStockRoutingKey},

		// 审计队列订阅全部库存与仓库事件
		{AuditQueue, InventoryExchange, AllInventoryRoutingKey},
		{AuditQueue, InventoryExchange, WarehouseRoutingKey},

		// 商品发布通知来自目录交换机
		{CatalogConsumeQueue, CatalogExchange, ProductPublishedRoutingKey},

		// 死信队列
		{InventoryDLXQueue, InventoryDLXExchange, "failed.*"},
	}

	for _, binding := range bindings {
		if err := ch.QueueBind(
			binding.queue,
			binding.routingKey,
			binding.exchange,
			false, // noWait
			nil,
		); err != nil {
			return fmt.Errorf("failed to bind queue %s to exchange %s: %w",
				binding.queue, binding.exchange, err)
		}
		qm.logger.Debug("queue bound",
			zap.String("queue", binding.queue),
			zap.String("exchange", binding.exchange),
			zap.String("routing_key", binding.routingKey))
	}
	return nil
}

// QueueInfo 队列信息
type QueueInfo struct {
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
}

// GetQueueInfo 获取单个队列信息
func (qm *QueueManager) GetQueueInfo(ctx context.Context, queueName string) (*QueueInfo, error) {
	ch, err := qm.cm.GetChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	defer qm.cm.ReturnChannel(ch)

	queue, err := ch.QueueInspect(queueName)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect queue %s: %w", queueName, err)
	}

	return &QueueInfo{
		Name:      queue.Name,
		Messages:  queue.Messages,
		Consumers: queue.Consumers,
	}, nil
}

// GetAllQueuesInfo 获取所有库存相关队列信息
func (qm *QueueManager) GetAllQueuesInfo(ctx context.Context) ([]*QueueInfo, error) {
	queueNames := []string{
		LowStockQueue,
		AuditQueue,
		CatalogConsumeQueue,
		InventoryDLXQueue,
	}

	var queuesInfo []*QueueInfo
	for _, queueName := range queueNames {
		info, err := qm.GetQueueInfo(ctx, queueName)
		if err != nil {
			qm.logger.Error("failed to get queue info",
				zap.String("queue", queueName),
				zap.Error(err))
			continue
		}
		queuesInfo = append(queuesInfo, info)
	}
	return queuesInfo, nil
}

// PurgeQueue 清空队列
func (qm *QueueManager) PurgeQueue(ctx context.Context, queueName string) (int, error) {
	ch, err := qm.cm.GetChannel()
	if err != nil {
		return 0, fmt.Errorf("failed to get channel: %w", err)
	}
	defer qm.cm.ReturnChannel(ch)

	count, err := ch.QueuePurge(queueName, false)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue %s: %w", queueName, err)
	}

	qm.logger.Info("queue purged",
		zap.String("queue", queueName),
		zap.Int("purged_messages", count))
	return count, nil
}

// Package mq 提供库存领域事件的消息生产者
package mq

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/service"
)

// EventProducer 领域事件生产者，实现 service.EventPublisher。
// 事件发布发生在聚合落库之后，属尽力而为投递；流水账才是事实权威。
type EventProducer struct {
	producer *Producer
	qm       *QueueManager
	logger   *zap.Logger
}

// 接口契约校验
var _ service.EventPublisher = (*EventProducer)(nil)

// NewEventProducer 创建领域事件生产者
func NewEventProducer(cm *ConnectionManager, config *ProducerConfig, logger *zap.Logger) (*EventProducer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	producer := NewProducer(cm, config, logger)
	queueManager := NewQueueManager(cm, logger)

	return &EventProducer{
		producer: producer,
		qm:       queueManager,
		logger:   logger,
	}, nil
}

// Publish 逐条发布领域事件；任一条失败即中止并返回错误
func (ep *EventProducer) Publish(ctx context.Context, events []domain.DomainEvent) error {
	for _, event := range events {
		if err := ep.publishEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// publishEvent 发布单条领域事件
func (ep *EventProducer) publishEvent(ctx context.Context, event domain.DomainEvent) error {
	traceID := traceIDFromContext(ctx)
	message := NewEventMessage(event, traceID)

	messageBytes, err := message.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event message: %w", err)
	}

	options := &PublishOptions{
		MessageID: message.ID,
		Type:      message.Type,
		Timestamp: message.Timestamp,
		Headers: map[string]interface{}{
			"content-type":    "application/json",
			"message-id":      message.ID,
			"message-type":    message.Type,
			"message-version": message.Version,
			"message-source":  message.Source,
			"trace-id":        traceID,
		},
	}

	ep.logger.Debug("publishing inventory event",
		zap.String("message_id", message.ID),
		zap.String("event", message.Type),
		zap.String("trace_id", traceID))

	if err := ep.producer.Publish(ctx, InventoryExchange, message.RoutingKey(), messageBytes, options); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", message.Type, err)
	}
	return nil
}

// SetupInfrastructure 声明交换机与队列拓扑
func (ep *EventProducer) SetupInfrastructure(ctx context.Context) error {
	return ep.qm.SetupQueues(ctx)
}

// GetStats 获取生产者统计信息
func (ep *EventProducer) GetStats() ProducerStats {
	return ep.producer.GetStats()
}

// Close 关闭生产者
func (ep *EventProducer) Close() error {
	return ep.producer.Close()
}

// PublishWithRetry 带退避重试的发布辅助：投递失败时按固定间隔重试
func (ep *EventProducer) PublishWithRetry(ctx context.Context, events []domain.DomainEvent, maxRetries int, retryInterval time.Duration) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ep.Publish(ctx, events); err == nil {
			return nil
		} else {
			lastErr = err
		}

		ep.logger.Warn("event publish failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries+1),
			zap.Error(lastErr))

		if attempt < maxRetries {
			select {
			case <-time.After(retryInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed to publish events after %d attempts: %w", maxRetries+1, lastErr)
}

// traceIDCtxKey 链路追踪ID的context键
type traceIDCtxKey struct{}

// WithTraceID 将链路追踪ID写入context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDCtxKey{}, traceID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// Package mq 提供库存领域事件的消息定义和处理
package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MorseWayne/stock_ledger/internal/domain"
)

// EventMessage 领域事件消息信封。
// Type 直接使用领域事件名（如 inventory.reserved），同时作为路由键。
type EventMessage struct {
	ID        string    `json:"id"`        // 消息唯一ID
	Type      string    `json:"type"`      // 事件名
	Version   string    `json:"version"`   // 消息版本
	Timestamp time.Time `json:"timestamp"` // 事件发生时间
	Source    string    `json:"source"`    // 消息源
	TraceID   string    `json:"trace_id"`  // 链路追踪ID

	// 事件载荷，即领域事件结构体本身
	Data interface{} `json:"data"`

	// 元数据
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEventMessage 从领域事件构建消息信封
func NewEventMessage(event domain.DomainEvent, traceID string) *EventMessage {
	return &EventMessage{
		ID:        uuid.New().String(),
		Type:      event.EventName(),
		Version:   "1.0",
		Timestamp: event.OccurredAt(),
		Source:    "stock-ledger",
		TraceID:   traceID,
		Data:      event,
		Metadata:  make(map[string]interface{}),
	}
}

// ToJSON 将消息序列化为JSON字节数组
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON 从JSON字节数组解析消息
func (m *EventMessage) FromJSON(data []byte) error {
	return json.Unmarshal(data, m)
}

// GetDataAs 将事件载荷解码到指定类型
func (m *EventMessage) GetDataAs(target interface{}) error {
	dataBytes, err := json.Marshal(m.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(dataBytes, target)
}

// RoutingKey 消息路由键，即事件名
func (m *EventMessage) RoutingKey() string {
	if m.Type == "" {
		return "inventory.general"
	}
	return m.Type
}

// IsExpired 判断消息是否过期（超过1小时视为过期）
func (m *EventMessage) IsExpired() bool {
	return time.Since(m.Timestamp) > time.Hour
}

// Validate 校验消息信封的必填字段
func (m *EventMessage) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if m.Type == "" {
		return fmt.Errorf("message type is required")
	}
	if m.Data == nil {
		return fmt.Errorf("message data is required")
	}
	return nil
}

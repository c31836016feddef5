// Package cache 提供库存可用量的Redis缓存操作和Lua脚本
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StockCache 库存可用量缓存服务
//
// 作为数据库乐观锁之前的快速失败闸门：预占请求先在Redis上原子预减
// 可用量，明显不足的请求直接拒绝，不再打到数据库。缓存值仅是建议性
// 的，最终一致性由数据库的版本号CAS保证。
type StockCache struct {
	client redis.Cmdable
}

// NewStockCache 创建库存缓存实例
func NewStockCache(client redis.Cmdable) *StockCache {
	return &StockCache{
		client: client,
	}
}

// Redis Key 模板常量
const (
	// 库存项可用量Key: inventory:available:{item_id}
	AvailableKeyTemplate = "inventory:available:%d"

	// 库存项耗尽标记Key: inventory:depleted:{item_id}
	DepletedKeyTemplate = "inventory:depleted:%d"

	// 消费端幂等标记Key: inventory:processed:{message_id}
	ProcessedKeyTemplate = "inventory:processed:%s"
)

// Lua脚本：原子性预减可用量
const luaAcquireAvailable = `
-- KEYS[1]: 可用量key (inventory:available:{item_id})
-- KEYS[2]: 耗尽标记key (inventory:depleted:{item_id})
-- ARGV[1]: 预占数量
-- ARGV[2]: 耗尽标记TTL（秒）

-- 检查是否已标记耗尽
if redis.call('EXISTS', KEYS[2]) == 1 then
    return {-1, 'depleted'}
end

-- 获取当前可用量
local available = redis.call('GET', KEYS[1])
if available == false then
    return {-2, 'unknown'}  -- 缓存未加载，放行走数据库
end

available = tonumber(available)
local amount = tonumber(ARGV[1])

-- 可用量不足，打上耗尽标记
if available < amount then
    redis.call('SETEX', KEYS[2], tonumber(ARGV[2]), '1')
    return {-3, 'insufficient'}
end

local remaining = redis.call('DECRBY', KEYS[1], amount)

if remaining <= 0 then
    redis.call('SETEX', KEYS[2], tonumber(ARGV[2]), '1')
end

return {remaining, 'acquired'}
`

// Lua脚本：归还可用量（用于预占释放或落库失败回滚）
const luaRestoreAvailable = `
-- KEYS[1]: 可用量key
-- KEYS[2]: 耗尽标记key
-- ARGV[1]: 归还数量

local available = redis.call('GET', KEYS[1])
if available == false then
    return -1  -- 缓存未加载，无需归还
end

local remaining = redis.call('INCRBY', KEYS[1], tonumber(ARGV[1]))

-- 清除耗尽标记
redis.call('DEL', KEYS[2])

return remaining
`

// Lua脚本：批量读取多个库存项的可用量
const luaBatchGetAvailable = `
-- KEYS: 多个可用量key
-- 返回: 每个key对应的可用量，不存在返回-1

local result = {}
for i = 1, #KEYS do
    local available = redis.call('GET', KEYS[i])
    if available == false then
        result[i] = -1
    else
        result[i] = tonumber(available)
    end
end
return result
`

// AcquireResult 预减可用量结果
type AcquireResult struct {
	// Acquired 为true表示缓存层已扣减，可继续走数据库预占
	Acquired bool `json:"acquired"`
	// Unknown 为true表示缓存未加载，结果不可作为拒绝依据
	Unknown   bool   `json:"unknown"`
	Remaining int64  `json:"remaining"`
	Message   string `json:"message"`
}

func (s *StockCache) availableKey(itemID int64) string {
	return fmt.Sprintf(AvailableKeyTemplate, itemID)
}

func (s *StockCache) depletedKey(itemID int64) string {
	return fmt.Sprintf(DepletedKeyTemplate, itemID)
}

func (s *StockCache) processedKey(messageID string) string {
	return fmt.Sprintf(ProcessedKeyTemplate, messageID)
}

// SyncAvailable 落库成功后回写最新可用量
func (s *StockCache) SyncAvailable(ctx context.Context, itemID int64, available int64, ttl time.Duration) error {
	key := s.availableKey(itemID)

	if err := s.client.Set(ctx, key, available, ttl).Err(); err != nil {
		return fmt.Errorf("failed to sync available quantity: %w", err)
	}

	// 可用量回升后清除耗尽标记
	if available > 0 {
		if err := s.client.Del(ctx, s.depletedKey(itemID)).Err(); err != nil {
			return fmt.Errorf("failed to clear depleted flag: %w", err)
		}
	}

	return nil
}

// GetAvailable 读取缓存中的可用量，未加载返回-1
func (s *StockCache) GetAvailable(ctx context.Context, itemID int64) (int64, error) {
	result := s.client.Get(ctx, s.availableKey(itemID))
	if result.Err() == redis.Nil {
		return -1, nil
	}
	if result.Err() != nil {
		return 0, fmt.Errorf("failed to get available quantity: %w", result.Err())
	}

	available, err := result.Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to parse available quantity: %w", err)
	}

	return available, nil
}

// IsDepleted 检查库存项是否已标记耗尽
func (s *StockCache) IsDepleted(ctx context.Context, itemID int64) (bool, error) {
	result := s.client.Exists(ctx, s.depletedKey(itemID))
	if result.Err() != nil {
		return false, fmt.Errorf("failed to check depleted flag: %w", result.Err())
	}

	return result.Val() > 0, nil
}

// TryAcquire 原子性预减可用量（快速失败闸门）
//
// 缓存未加载时返回Unknown=true，调用方应放行到数据库路径而不是拒绝。
func (s *StockCache) TryAcquire(ctx context.Context, itemID int64, quantity int64, depletedTTL time.Duration) (*AcquireResult, error) {
	availableKey := s.availableKey(itemID)
	depletedKey := s.depletedKey(itemID)

	// 执行Lua脚本
	result := s.client.Eval(ctx, luaAcquireAvailable,
		[]string{availableKey, depletedKey},
		quantity, int(depletedTTL.Seconds()))

	if result.Err() != nil {
		return nil, fmt.Errorf("failed to execute acquire script: %w", result.Err())
	}

	// 解析结果
	values, ok := result.Val().([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected script result format")
	}

	remaining, ok := values[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected remaining value type")
	}

	_, ok = values[1].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected message type")
	}

	switch remaining {
	case -1:
		return &AcquireResult{
			Acquired:  false,
			Remaining: 0,
			Message:   "item depleted",
		}, nil
	case -2:
		return &AcquireResult{
			Acquired:  false,
			Unknown:   true,
			Remaining: 0,
			Message:   "availability not cached",
		}, nil
	case -3:
		return &AcquireResult{
			Acquired:  false,
			Remaining: 0,
			Message:   "insufficient availability",
		}, nil
	default:
		return &AcquireResult{
			Acquired:  true,
			Remaining: remaining,
			Message:   "acquired",
		}, nil
	}
}

// Restore 归还可用量（预占释放、落库失败回滚时调用）
func (s *StockCache) Restore(ctx context.Context, itemID int64, quantity int64) (int64, error) {
	availableKey := s.availableKey(itemID)
	depletedKey := s.depletedKey(itemID)

	result := s.client.Eval(ctx, luaRestoreAvailable,
		[]string{availableKey, depletedKey},
		quantity)

	if result.Err() != nil {
		return 0, fmt.Errorf("failed to execute restore script: %w", result.Err())
	}

	remaining, ok := result.Val().(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}

	return remaining, nil
}

// BatchGetAvailable 批量读取多个库存项的可用量
func (s *StockCache) BatchGetAvailable(ctx context.Context, itemIDs []int64) (map[int64]int64, error) {
	if len(itemIDs) == 0 {
		return make(map[int64]int64), nil
	}

	keys := make([]string, len(itemIDs))
	for i, itemID := range itemIDs {
		keys[i] = s.availableKey(itemID)
	}

	result := s.client.Eval(ctx, luaBatchGetAvailable, keys)
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to execute batch get script: %w", result.Err())
	}

	values, ok := result.Val().([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script result format")
	}

	availableMap := make(map[int64]int64)
	for i, value := range values {
		available, ok := value.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected available value type at index %d", i)
		}
		availableMap[itemIDs[i]] = available
	}

	return availableMap, nil
}

// InvalidateItem 清除库存项的缓存状态（直接调库存调整后使用）
func (s *StockCache) InvalidateItem(ctx context.Context, itemID int64) error {
	err := s.client.Del(ctx, s.availableKey(itemID), s.depletedKey(itemID)).Err()
	if err != nil {
		return fmt.Errorf("failed to invalidate item cache: %w", err)
	}

	return nil
}

// MarkProcessed 设置消息幂等标记，返回false表示该消息已处理过
func (s *StockCache) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	result := s.client.SetNX(ctx, s.processedKey(messageID), "1", ttl)
	if result.Err() != nil {
		return false, fmt.Errorf("failed to set processed flag: %w", result.Err())
	}

	return result.Val(), nil
}

// ClearProcessed 删除消息幂等标记（处理失败需要重投时使用）
func (s *StockCache) ClearProcessed(ctx context.Context, messageID string) error {
	err := s.client.Del(ctx, s.processedKey(messageID)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear processed flag: %w", err)
	}

	return nil
}

package middleware

import (
	"crypto/md5"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// IdempotencyKeyHeader 客户端重试时携带的幂等键头。
const IdempotencyKeyHeader = "X-Idempotency-Key"

// IdempotencyKey 提取请求的幂等键并透传到下游请求头与响应头。
// 客户端未携带时基于请求内容生成，保证订单操作在业务层可按键去重；
// GET等只读方法直接放行。
func IdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "GET", "HEAD", "OPTIONS":
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			key = generateIdempotencyKey(c)
			c.Request.Header.Set(IdempotencyKeyHeader, key)
		}

		c.Writer.Header().Set(IdempotencyKeyHeader, key)
		c.Next()
	}
}

// IdempotencyKeyFrom 读取中间件补齐后的幂等键（可能为空）。
func IdempotencyKeyFrom(r *http.Request) string {
	return r.Header.Get(IdempotencyKeyHeader)
}

// generateIdempotencyKey 按 方法:路径:请求ID:分钟 生成降级幂等键。
// 同一请求在同一分钟内的重试得到相同的键。
func generateIdempotencyKey(c *gin.Context) string {
	requestID := RequestIDFromContext(c.Request.Context())
	content := fmt.Sprintf("%s:%s:%s:%d",
		c.Request.Method,
		c.Request.URL.Path,
		requestID,
		time.Now().Unix()/60)

	hash := md5.Sum([]byte(content))
	return fmt.Sprintf("auto_%x", hash)[:16]
}

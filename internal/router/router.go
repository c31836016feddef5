// Package router 提供 HTTP 路由设置功能。
// 请求级中间件（请求ID、超时、访问日志等）由入口程序在路由器外层统一装配。
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/api"
	"github.com/MorseWayne/stock_ledger/internal/config"
	"github.com/MorseWayne/stock_ledger/internal/limiter"
	"github.com/MorseWayne/stock_ledger/internal/middleware"
)

// Dependencies 包含路由设置所需的所有依赖
type Dependencies struct {
	WarehouseHandler *api.WarehouseHandler
	InventoryHandler *api.InventoryHandler

	// ReserveLimiter 预留接口限流器，可为 nil（不限流）
	ReserveLimiter limiter.Limiter
}

// Router 路由器接口
type Router interface {
	Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler
}

// GinRouter Gin路由器实现
type GinRouter struct {
	engine *gin.Engine
	deps   *Dependencies
	logger *zap.Logger
}

// New 创建新的路由器实例
func New() Router {
	return &GinRouter{}
}

// Setup 设置路由
func (r *GinRouter) Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler {
	// 根据环境设置 Gin 模式
	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r.engine = gin.New()
	r.deps = deps
	r.logger = lg

	r.setupRoutes()

	return r.engine
}

// setupRoutes 设置所有路由
func (r *GinRouter) setupRoutes() {
	// 健康检查
	r.engine.GET("/healthz", r.healthCheck)

	// API v1 路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 仓库管理
		warehouses := v1.Group("/warehouses")
		{
			warehouses.POST("", r.wrapHandler(r.deps.WarehouseHandler.CreateWarehouse))
			warehouses.GET("", r.wrapHandler(r.deps.WarehouseHandler.ListWarehouses))
			warehouses.GET("/default", r.wrapHandler(r.deps.WarehouseHandler.GetDefaultWarehouse))
			warehouses.GET("/code/:code", r.wrapHandler(r.deps.WarehouseHandler.GetWarehouseByCode))
			warehouses.GET("/:id", r.wrapHandler(r.deps.WarehouseHandler.GetWarehouse))
			warehouses.PUT("/:id", r.wrapHandler(r.deps.WarehouseHandler.UpdateWarehouse))
			warehouses.POST("/:id/activate", r.wrapHandler(r.deps.WarehouseHandler.ActivateWarehouse))
			warehouses.POST("/:id/deactivate", r.wrapHandler(r.deps.WarehouseHandler.DeactivateWarehouse))
			warehouses.POST("/:id/default", r.wrapHandler(r.deps.WarehouseHandler.SetDefaultWarehouse))
		}

		// 库存项管理与出入库操作
		inventory := v1.Group("/inventory")
		{
			inventory.POST("", r.wrapHandler(r.deps.InventoryHandler.CreateInventoryItem))
			inventory.GET("", r.wrapHandler(r.deps.InventoryHandler.ListInventoryItems))
			inventory.GET("/low-stock", r.wrapHandler(r.deps.InventoryHandler.ListLowStock))
			inventory.GET("/:id", r.wrapHandler(r.deps.InventoryHandler.GetInventoryItem))
			inventory.POST("/receive", r.wrapHandler(r.deps.InventoryHandler.ReceiveStock))
			inventory.POST("/ship", r.wrapHandler(r.deps.InventoryHandler.ShipStock))
			inventory.POST("/import", r.wrapHandler(r.deps.InventoryHandler.ImportBySku))
			inventory.POST("/adjust", r.wrapHandler(r.deps.InventoryHandler.AdjustStock))
			inventory.POST("/transfer", r.wrapHandler(r.deps.InventoryHandler.TransferStock))
		}

		// 订单预留编排；重试请求经 X-Idempotency-Key 透传到业务层
		orders := v1.Group("/orders", middleware.IdempotencyKey())
		{
			reserveHandlers := []gin.HandlerFunc{}
			if r.deps.ReserveLimiter != nil {
				reserveHandlers = append(reserveHandlers, limiter.ReserveRateLimitMiddleware(r.deps.ReserveLimiter))
			}
			reserveHandlers = append(reserveHandlers, r.wrapHandler(r.deps.InventoryHandler.ReserveOrder))
			orders.POST("/reserve", reserveHandlers...)
			orders.POST("/release", r.wrapHandler(r.deps.InventoryHandler.ReleaseOrder))
			orders.POST("/confirm", r.wrapHandler(r.deps.InventoryHandler.ConfirmOrder))
		}

		// 库存流水查询
		v1.GET("/movements", r.wrapHandler(r.deps.InventoryHandler.ListMovements))
	}
}

// healthCheck 健康检查处理器
func (r *GinRouter) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// wrapHandler 将标准的 http.HandlerFunc 包装为 gin.HandlerFunc
func (r *GinRouter) wrapHandler(handler func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return gin.WrapF(handler)
}

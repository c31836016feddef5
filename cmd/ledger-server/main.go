package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/api"
	"github.com/MorseWayne/stock_ledger/internal/cache"
	"github.com/MorseWayne/stock_ledger/internal/catalog"
	"github.com/MorseWayne/stock_ledger/internal/config"
	"github.com/MorseWayne/stock_ledger/internal/database"
	"github.com/MorseWayne/stock_ledger/internal/limiter"
	"github.com/MorseWayne/stock_ledger/internal/logger"
	mw "github.com/MorseWayne/stock_ledger/internal/middleware"
	"github.com/MorseWayne/stock_ledger/internal/mq"
	"github.com/MorseWayne/stock_ledger/internal/repo"
	"github.com/MorseWayne/stock_ledger/internal/router"
	"github.com/MorseWayne/stock_ledger/internal/service"
)

// AppDependencies 包含应用的所有依赖
type AppDependencies struct {
	WarehouseHandler *api.WarehouseHandler
	InventoryHandler *api.InventoryHandler
	InventoryService service.InventoryService
	ReserveLimiter   limiter.Limiter
}

// initConfigAndLogger 初始化配置和日志器
func initConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %v", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %v", err)
	}

	return cfg, lg, nil
}

// initDatabase 初始化数据库连接并执行迁移；memory 驱动跳过
func initDatabase(cfg *config.Config, lg *zap.Logger) (*database.DB, error) {
	if cfg.Database.Driver == "memory" {
		lg.Sugar().Infow("using in-memory repositories, skipping database setup")
		return nil, nil
	}

	db, err := database.New(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// 启动阶段完成迁移，保证处理请求前库表结构就绪
	migrationsDir := cfg.Migrations.Dir
	lg.Sugar().Infow("using migrations directory", "path", migrationsDir)

	if err := db.RunMigrations(migrationsDir); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %v", err)
	}

	return db, nil
}

// initCache 初始化缓存实例；返回的 RedisCache 在 Redis 不可用时为 nil
func initCache(cfg *config.Config, lg *zap.Logger) (cache.Cache, *cache.RedisCache) {
	if !cfg.Cache.Enabled {
		lg.Sugar().Infow("cache disabled")
		return cache.NewNullCache(), nil
	}

	switch cfg.Cache.Type {
	case "redis":
		redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		redisCache, err := cache.NewRedisCache(redisAddr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			lg.Sugar().Warnw("failed to connect to Redis, falling back to memory cache", "error", err)
			return cache.NewMemoryCache(), nil
		}
		lg.Sugar().Infow("cache enabled", "type", "redis", "addr", redisAddr, "ttl", cfg.Cache.TTL)
		return redisCache, redisCache
	case "memory":
		lg.Sugar().Infow("cache enabled", "type", "memory", "ttl", cfg.Cache.TTL)
		return cache.NewMemoryCache(), nil
	default:
		lg.Sugar().Warnw("unknown cache type, using memory cache", "type", cfg.Cache.Type)
		return cache.NewMemoryCache(), nil
	}
}

// initMessaging 初始化消息队列连接与事件发布者
func initMessaging(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*mq.ConnectionManager, *mq.EventProducer, error) {
	mqCfg := mq.DefaultConfig()
	mqCfg.Host = cfg.MQ.Host
	mqCfg.Port = cfg.MQ.Port
	mqCfg.Username = cfg.MQ.Username
	mqCfg.Password = cfg.MQ.Password
	mqCfg.VHost = cfg.MQ.VHost

	cm := mq.NewConnectionManager(mqCfg, lg)
	if err := cm.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect message broker: %w", err)
	}

	producer, err := mq.NewEventProducer(cm, mqCfg.Producer, lg)
	if err != nil {
		_ = cm.Close()
		return nil, nil, fmt.Errorf("create event producer: %w", err)
	}

	// 声明交换机与队列拓扑
	if err := producer.SetupInfrastructure(ctx); err != nil {
		_ = producer.Close()
		_ = cm.Close()
		return nil, nil, fmt.Errorf("setup message topology: %w", err)
	}

	return cm, producer, nil
}

// initDependencies 初始化应用依赖（仓储、服务、处理器）
func initDependencies(
	cfg *config.Config,
	db *database.DB,
	cacheInstance cache.Cache,
	redisCache *cache.RedisCache,
	producer *mq.EventProducer,
	lg *zap.Logger,
) *AppDependencies {
	// 依赖注入链：仓储 -> 服务 -> API处理器
	var (
		itemRepo      repo.InventoryItemRepository
		warehouseRepo repo.WarehouseRepository
		movementRepo  repo.MovementRepository
	)
	if cfg.Database.Driver == "memory" {
		// 内存仓储同时承担库存项与流水的存取，便于本地开发和测试
		memRepo := repo.NewMemoryInventoryItemRepository()
		itemRepo = memRepo
		movementRepo = memRepo
		warehouseRepo = repo.NewMemoryWarehouseRepository()
	} else {
		itemRepo = repo.NewInventoryItemRepository(db.DB)
		warehouseRepo = repo.NewWarehouseRepository(db.DB)
		movementRepo = repo.NewMovementRepository(db.DB)
	}

	// 读路径缓存装饰器
	if cfg.Cache.Enabled {
		itemRepo = repo.NewCachedInventoryItemRepository(itemRepo, cacheInstance, cfg.Cache.TTL)
	}

	// 可用量快速失败门卫，仅在 Redis 就绪时启用
	var stockCache *cache.StockCache
	if redisCache != nil {
		stockCache = cache.NewStockCache(redisCache.Client())
	}

	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, lg)

	var publisher service.EventPublisher
	if producer != nil {
		publisher = producer
	}

	svcCfg := service.DefaultInventoryServiceConfig()
	svcCfg.MaxRetryAttempts = cfg.Inventory.MaxRetryAttempts
	svcCfg.DefaultLowStockThreshold = cfg.Inventory.DefaultLowStockThreshold

	inventoryService := service.NewInventoryService(
		itemRepo, warehouseRepo, movementRepo, catalogClient, publisher, stockCache, svcCfg, lg)
	warehouseService := service.NewWarehouseService(warehouseRepo, itemRepo, publisher, lg)

	return &AppDependencies{
		WarehouseHandler: api.NewWarehouseHandler(warehouseService, lg),
		InventoryHandler: api.NewInventoryHandler(inventoryService, lg),
		InventoryService: inventoryService,
		ReserveLimiter:   newReserveLimiter(cfg, redisCache, lg),
	}
}

// newReserveLimiter 按配置算法构建预留接口的限流器；Redis 不可用时不限流
func newReserveLimiter(cfg *config.Config, redisCache *cache.RedisCache, lg *zap.Logger) limiter.Limiter {
	if redisCache == nil || cfg.Inventory.ReserveRateLimit <= 0 {
		return nil
	}

	algorithm := limiter.LimiterType(cfg.Inventory.ReserveRateAlgorithm)
	factory := limiter.NewFactory(redisCache.Client())
	lim, err := factory.Create(algorithm, &limiter.Config{
		Rate:      cfg.Inventory.ReserveRateLimit,
		Window:    time.Second,
		Burst:     cfg.Inventory.ReserveRateBurst,
		KeyPrefix: "limiter:reserve",
	})
	if err != nil {
		lg.Sugar().Warnw("failed to create reserve rate limiter",
			"algorithm", algorithm, "error", err)
		return nil
	}
	lg.Sugar().Infow("reserve rate limiter enabled",
		"algorithm", algorithm,
		"rate", cfg.Inventory.ReserveRateLimit,
		"burst", cfg.Inventory.ReserveRateBurst)
	return lim
}

// setupRoutes 设置路由和中间件
func setupRoutes(cfg *config.Config, deps *AppDependencies, lg *zap.Logger) http.Handler {
	rt := router.New()
	engine := rt.Setup(cfg, &router.Dependencies{
		WarehouseHandler: deps.WarehouseHandler,
		InventoryHandler: deps.InventoryHandler,
		ReserveLimiter:   deps.ReserveLimiter,
	}, lg)

	// 构建中间件链：请求进入时执行顺序为 access log → CORS → timeout → recovery → request ID
	// 响应返回时执行顺序相反
	handler := mw.RequestID(engine)
	handler = mw.Recovery(lg)(handler)
	handler = mw.Timeout(cfg.App.RequestTimeout)(handler)
	handler = mw.CORS(mw.CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	})(handler)
	handler = mw.AccessLog(lg)(handler)

	return handler
}

// startServer 启动服务器并处理优雅关闭
func startServer(cfg *config.Config, handler http.Handler, lg *zap.Logger) {
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	lg.Sugar().Infow("server starting", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	select {
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			lg.Sugar().Fatalw("server error", "err", err)
		}
	case <-quit:
		lg.Sugar().Infow("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Sugar().Errorw("server shutdown error", "err", err)
	}
	lg.Sugar().Infow("server exited")
}

// main 为应用入口，协调各个组件的初始化和启动
func main() {
	// 1) 加载配置和初始化日志
	cfg, lg, err := initConfigAndLogger()
	if err != nil {
		log.Fatalf("failed to initialize config and logger: %v", err)
	}

	// 2) 初始化数据库连接并执行迁移
	db, err := initDatabase(cfg, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to initialize database", "err", err)
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				lg.Sugar().Errorw("failed to close database connection", "err", err)
			}
		}()
	}

	// 3) 初始化缓存
	cacheInstance, redisCache := initCache(cfg, lg)

	// 4) 初始化消息队列（可选）
	var (
		mqConn   *mq.ConnectionManager
		producer *mq.EventProducer
	)
	if cfg.MQ.Enabled {
		mqConn, producer, err = initMessaging(context.Background(), cfg, lg)
		if err != nil {
			lg.Sugar().Fatalw("failed to initialize messaging", "err", err)
		}
		defer func() {
			_ = producer.Close()
			_ = mqConn.Close()
		}()
	}

	// 5) 初始化应用依赖（仓储、服务、处理器）
	deps := initDependencies(cfg, db, cacheInstance, redisCache, producer, lg)

	// 6) 启动商品发布通知消费者（可选）
	if cfg.MQ.Enabled {
		mqCfg := mq.DefaultConfig()
		consumer := mq.NewCatalogConsumer(mqConn, mqCfg.Consumer, deps.InventoryService, lg)
		if err := consumer.Start(context.Background()); err != nil {
			lg.Sugar().Fatalw("failed to start catalog consumer", "err", err)
		}
		defer func() {
			_ = consumer.Close()
		}()
	}

	// 7) 设置路由和中间件
	handler := setupRoutes(cfg, deps, lg)

	// 8) 启动 HTTP 服务器
	startServer(cfg, handler, lg)
}

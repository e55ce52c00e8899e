package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/answerdesk/internal/api/feishu"
	"github.com/langchou/answerdesk/internal/api/handlers"
	"github.com/langchou/answerdesk/internal/api/llm"
	"github.com/langchou/answerdesk/internal/config"
	"github.com/langchou/answerdesk/internal/repository"
	"github.com/langchou/answerdesk/internal/service"
	"github.com/langchou/answerdesk/internal/state"
	"github.com/langchou/answerdesk/pkg/ws"
)

// linkChange link_state 事件内容
type linkChange struct {
	Link string `json:"link"`
	From string `json:"from"`
	To   string `json:"to"`
}

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting answerdesk", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run(ctx)

	// 集成连接状态，变化时推送给前端
	links := state.NewManager(func(link, from, to string) {
		logger.Info("Link state changed", zap.String("link", link), zap.String("from", from), zap.String("to", to))
		wsHub.BroadcastLinkState(linkChange{Link: link, From: from, To: to})
	})
	wsHub.SetInitDataProvider(func() *ws.InitData {
		return &ws.InitData{States: links.GetAllStates()}
	})

	// 连接数据库（可选）
	var (
		settingsStore service.SettingsStore
		userStore     service.UserStore
	)
	if cfg.DatabaseURL != "" {
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect database", zap.Error(err))
		}
		defer db.Close()

		// 执行数据库迁移
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database migrated successfully")

		settingsStore = repository.NewSettingsRepository(db)
		userStore = repository.NewUserRepository(db)
	} else {
		logger.Warn("DATABASE_URL not set, settings will not be persisted and user management is disabled")
	}

	// 创建外部服务客户端
	feishuClient := feishu.NewClient(cfg.FeishuAPIBase, cfg.HTTPTimeout, cfg.FeishuPageSize, logger)
	llmClient := llm.NewClient(cfg.HTTPTimeout, logger)

	// 创建服务
	feishuService := service.NewFeishuService(feishuClient, settingsStore, wsHub, links, logger)
	aiService := service.NewAIService(llmClient, settingsStore, links, logger)

	if err := feishuService.Restore(ctx); err != nil {
		logger.Error("Failed to restore feishu settings", zap.Error(err))
	}
	if _, ok := feishuService.Credentials(); !ok && cfg.HasFeishuCredentials() {
		creds := feishu.Credentials{AppID: cfg.FeishuAppID, AppSecret: cfg.FeishuAppSecret}
		if err := feishuService.SetCredentials(ctx, creds); err != nil {
			logger.Error("Failed to apply feishu credentials from env", zap.Error(err))
		}
	}

	if err := aiService.Restore(ctx); err != nil {
		logger.Error("Failed to restore AI settings", zap.Error(err))
	}
	if _, ok := aiService.Config(); !ok && cfg.HasAIConfig() {
		aiCfg := llm.Config{APIKey: cfg.AIAPIKey, APIBase: cfg.AIAPIBase, Model: cfg.AIModel}
		if err := aiService.SetConfig(ctx, aiCfg); err != nil {
			logger.Error("Failed to apply AI config from env", zap.Error(err))
		}
	}

	var userService *service.UserService
	if userStore != nil {
		userService = service.NewUserService(userStore, logger)
		admin := service.Seed{Username: cfg.AdminUsername, Password: cfg.AdminPassword}
		user := service.Seed{Username: cfg.DefaultUsername, Password: cfg.DefaultUserPassword}
		if _, err := userService.EnsureDefaults(ctx, admin, user); err != nil {
			logger.Error("Failed to seed default users", zap.Error(err))
		}
	}

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		feishuService,
		aiService,
		userService,
		links,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// 关闭 WebSocket 连接
	cancel()

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/service"
	"github.com/langchou/answerdesk/internal/state"
	"github.com/langchou/answerdesk/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	feishu   *service.FeishuService
	ai       *service.AIService
	users    *service.UserService
	links    *state.Manager
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器，未启用数据库时 users 为 nil
func NewHandler(
	logger *zap.Logger,
	feishuService *service.FeishuService,
	aiService *service.AIService,
	userService *service.UserService,
	links *state.Manager,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger: logger,
		feishu: feishuService,
		ai:     aiService,
		users:  userService,
		links:  links,
		wsHub:  wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 桌面端本地访问，允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 飞书凭证与配置
		api.PUT("/feishu/credentials", h.SetCredentials)
		api.GET("/feishu/token", h.GetAccessToken)
		api.POST("/feishu/test", h.TestFeishuConnection)
		api.GET("/feishu/settings", h.GetFeishuSettings)
		api.PUT("/feishu/settings", h.SaveFeishuSettings)
		api.POST("/feishu/link", h.ParseLink)

		// 多维表格
		api.GET("/apps/:app/tables", h.ListTables)
		api.GET("/apps/:app/tables/:table/records", h.ListRecords)
		api.POST("/apps/:app/tables/:table/records", h.CreateRecord)
		api.GET("/apps/:app/tables/:table/records/:record", h.GetRecord)
		api.PUT("/apps/:app/tables/:table/records/:record", h.UpdateRecord)
		api.GET("/apps/:app/tables/:table/answers", h.ListAnswers)

		// AI
		api.GET("/ai/config", h.GetAIConfig)
		api.PUT("/ai/config", h.SetAIConfig)
		api.POST("/ai/test", h.TestAIConnection)
		api.POST("/ai/optimize", h.OptimizeAnswer)
		api.POST("/ai/review", h.ReviewAnswer)
		api.POST("/ai/risk", h.CheckRisk)

		// 集成状态
		api.GET("/status", h.GetStatus)

		// 用户（需要数据库）
		if h.users != nil {
			api.POST("/auth/login", h.Login)
			api.GET("/users", h.ListUsers)
			api.POST("/users", h.AddUser)
			api.PUT("/users/:id", h.UpdateUser)
			api.DELETE("/users/:id", h.DeleteUser)
		}
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// GetStatus 获取各集成的连接状态
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.links.GetAllStates()})
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/langchou/answerdesk/internal/api/llm"
)

type answerRequest struct {
	Answer  string `json:"answer" binding:"required"`
	Context string `json:"context"`
}

// GetAIConfig 获取 AI 配置，API Key 已掩码
// GET /api/ai/config
func (h *Handler) GetAIConfig(c *gin.Context) {
	cfg, ok := h.ai.Config()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

// SetAIConfig 保存 AI 配置
// PUT /api/ai/config
func (h *Handler) SetAIConfig(c *gin.Context) {
	var req llm.Config
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "请求格式错误")
		return
	}

	if err := h.ai.SetConfig(c.Request.Context(), req); err != nil {
		h.respondError(c, err)
		return
	}

	cfg, _ := h.ai.Config()
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

// TestAIConnection 测试 AI 服务连接
// POST /api/ai/test
func (h *Handler) TestAIConnection(c *gin.Context) {
	reply, err := h.ai.TestConnection(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"message": "AI 连接测试成功！模型回复：" + reply,
		"reply":   reply,
	}})
}

// OptimizeAnswer 优化客服回复
// POST /api/ai/optimize
func (h *Handler) OptimizeAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "请提供待优化的回复内容")
		return
	}

	result, err := h.ai.Optimize(c.Request.Context(), req.Answer, req.Context)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ReviewAnswer 审核客服回复
// POST /api/ai/review
func (h *Handler) ReviewAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "请提供待审核的回复内容")
		return
	}

	result, err := h.ai.Review(c.Request.Context(), req.Answer, req.Context)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// CheckRisk 检测客服回复风险
// POST /api/ai/risk
func (h *Handler) CheckRisk(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "请提供待检测的回复内容")
		return
	}

	verdict, err := h.ai.CheckRisk(c.Request.Context(), req.Answer)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": verdict})
}

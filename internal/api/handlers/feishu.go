package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/api/feishu"
	"github.com/langchou/answerdesk/internal/models"
)

type fieldsRequest struct {
	Fields map[string]any `json:"fields"`
}

// bindFields 解析记录字段，数字保留为 json.Number 原样写回飞书
func bindFields(c *gin.Context) (map[string]any, error) {
	var req fieldsRequest
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	return req.Fields, nil
}

type linkRequest struct {
	URL string `json:"url"`
}

// SetCredentials 设置飞书应用凭证
// PUT /api/feishu/credentials
func (h *Handler) SetCredentials(c *gin.Context) {
	var req feishu.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "请求格式错误")
		return
	}

	if err := h.feishu.SetCredentials(c.Request.Context(), req); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"app_id": req.AppID}})
}

// GetAccessToken 获取 tenant access token
// GET /api/feishu/token
func (h *Handler) GetAccessToken(c *gin.Context) {
	token, err := h.feishu.AccessToken(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"token": token}})
}

// TestFeishuConnection 用给定凭证测试飞书连接
// POST /api/feishu/test
func (h *Handler) TestFeishuConnection(c *gin.Context) {
	var req feishu.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "请求格式错误")
		return
	}

	if err := h.feishu.TestConnection(c.Request.Context(), req); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"message": "连接成功！凭证验证通过"}})
}

// GetFeishuSettings 获取飞书配置
// GET /api/feishu/settings
func (h *Handler) GetFeishuSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.feishu.Settings()})
}

// SaveFeishuSettings 保存飞书配置
// PUT /api/feishu/settings
func (h *Handler) SaveFeishuSettings(c *gin.Context) {
	var req models.FeishuSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "请求格式错误")
		return
	}

	if err := h.feishu.SaveSettings(c.Request.Context(), req); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": h.feishu.Settings()})
}

// ParseLink 解析多维表格链接
// POST /api/feishu/link
func (h *Handler) ParseLink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "请求格式错误")
		return
	}

	link, err := h.feishu.ParseLink(req.URL)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": link})
}

// ListTables 获取数据表列表
// GET /api/apps/:app/tables
func (h *Handler) ListTables(c *gin.Context) {
	tables, err := h.feishu.ListTables(c.Request.Context(), c.Param("app"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tables})
}

// ListRecords 获取数据表全部原始记录
// GET /api/apps/:app/tables/:table/records
func (h *Handler) ListRecords(c *gin.Context) {
	records, err := h.feishu.ListRecords(c.Request.Context(), c.Param("app"), c.Param("table"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  records,
		"total": len(records),
	})
}

// ListAnswers 获取归一化后的标准回答
// GET /api/apps/:app/tables/:table/answers?raw=true
func (h *Handler) ListAnswers(c *gin.Context) {
	withRaw, _ := strconv.ParseBool(c.DefaultQuery("raw", "false"))

	answers, err := h.feishu.ListAnswers(c.Request.Context(), c.Param("app"), c.Param("table"), withRaw)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  answers,
		"total": len(answers),
	})
}

// GetRecord 获取单条记录
// GET /api/apps/:app/tables/:table/records/:record
func (h *Handler) GetRecord(c *gin.Context) {
	record, err := h.feishu.GetRecord(c.Request.Context(), c.Param("app"), c.Param("table"), c.Param("record"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

// UpdateRecord 更新记录字段
// PUT /api/apps/:app/tables/:table/records/:record
func (h *Handler) UpdateRecord(c *gin.Context) {
	recordFields, err := bindFields(c)
	if err != nil {
		h.badRequest(c, "请求格式错误")
		return
	}

	recordID := c.Param("record")
	if err := h.feishu.UpdateRecord(c.Request.Context(), c.Param("app"), c.Param("table"), recordID, recordFields); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Record updated via API", zap.String("record_id", recordID))
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"record_id": recordID}})
}

// CreateRecord 新增记录
// POST /api/apps/:app/tables/:table/records
func (h *Handler) CreateRecord(c *gin.Context) {
	recordFields, err := bindFields(c)
	if err != nil {
		h.badRequest(c, "请求格式错误")
		return
	}

	record, err := h.feishu.CreateRecord(c.Request.Context(), c.Param("app"), c.Param("table"), recordFields)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Record created via API", zap.String("record_id", record.RecordID))
	c.JSON(http.StatusCreated, gin.H{"data": record})
}

package feishu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/apperr"
)

func tablesPath(appToken string) string {
	return fmt.Sprintf("/bitable/v1/apps/%s/tables", url.PathEscape(appToken))
}

func recordsPath(appToken, tableID string) string {
	return fmt.Sprintf("%s/%s/records", tablesPath(appToken), url.PathEscape(tableID))
}

func recordPath(appToken, tableID, recordID string) string {
	return fmt.Sprintf("%s/%s", recordsPath(appToken, tableID), url.PathEscape(recordID))
}

// ListTables 获取多维表格中的数据表列表
func (c *Client) ListTables(ctx context.Context, appToken string) ([]Table, error) {
	const op = "list tables"

	status, body, err := c.doRequest(ctx, op, http.MethodGet, tablesPath(appToken), nil, nil)
	if err != nil {
		return nil, err
	}

	data, err := parseResponse(op, status, body)
	if err != nil {
		return nil, err
	}

	var tables tablesData
	if err := decodeData(op, data, &tables); err != nil {
		return nil, err
	}

	return tables.Items, nil
}

// ListRecords 分页获取数据表的全部记录
//
// has_more 为 false 或没有下一页 page_token 时结束；任一页失败则丢弃已取到的记录。
func (c *Client) ListRecords(ctx context.Context, appToken, tableID string) ([]Record, error) {
	const op = "list records"

	path := recordsPath(appToken, tableID)
	records := make([]Record, 0)
	pageToken := ""

	for page := 1; ; page++ {
		query := url.Values{}
		if c.pageSize > 0 {
			query.Set("page_size", strconv.Itoa(c.pageSize))
		}
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}

		status, body, err := c.doRequest(ctx, op, http.MethodGet, path, query, nil)
		if err != nil {
			return nil, err
		}

		data, err := parseResponse(op, status, body)
		if err != nil {
			return nil, err
		}

		var pageData recordsData
		if err := decodeData(op, data, &pageData); err != nil {
			return nil, err
		}

		records = append(records, pageData.Items...)

		c.logger.Debug("Fetched records page",
			zap.String("table_id", tableID),
			zap.Int("page", page),
			zap.Int("items", len(pageData.Items)),
			zap.Bool("has_more", pageData.HasMore))

		if !pageData.HasMore {
			break
		}

		// 没有下一页游标时视为结束，避免在异常响应上死循环
		if pageData.PageToken == "" {
			c.logger.Warn("has_more without page_token, stopping pagination",
				zap.String("table_id", tableID),
				zap.Int("page", page))
			break
		}
		pageToken = pageData.PageToken
	}

	return records, nil
}

// GetRecord 获取单条记录
func (c *Client) GetRecord(ctx context.Context, appToken, tableID, recordID string) (*Record, error) {
	const op = "get record"

	status, body, err := c.doRequest(ctx, op, http.MethodGet, recordPath(appToken, tableID, recordID), nil, nil)
	if err != nil {
		return nil, err
	}

	data, err := parseResponse(op, status, body)
	if err != nil {
		return nil, err
	}

	return decodeRecord(op, data)
}

// UpdateRecord 用新的字段映射更新记录
func (c *Client) UpdateRecord(ctx context.Context, appToken, tableID, recordID string, fields map[string]any) error {
	const op = "update record"

	status, body, err := c.doRequest(ctx, op, http.MethodPut, recordPath(appToken, tableID, recordID), nil, fieldsBody{Fields: fields})
	if err != nil {
		return err
	}

	if !isSuccess(status) {
		return apperr.UpstreamStatus(op, status, string(body))
	}

	if _, err := parseResponse(op, status, body); err != nil {
		return err
	}

	return nil
}

// CreateRecord 新增一条记录
func (c *Client) CreateRecord(ctx context.Context, appToken, tableID string, fields map[string]any) (*Record, error) {
	const op = "create record"

	status, body, err := c.doRequest(ctx, op, http.MethodPost, recordsPath(appToken, tableID), nil, fieldsBody{Fields: fields})
	if err != nil {
		return nil, err
	}

	if !isSuccess(status) {
		return nil, apperr.UpstreamStatus(op, status, string(body))
	}

	data, err := parseResponse(op, status, body)
	if err != nil {
		return nil, err
	}

	return decodeRecord(op, data)
}

func decodeRecord(op string, data []byte) (*Record, error) {
	var rd recordData
	if err := decodeData(op, data, &rd); err != nil {
		return nil, err
	}
	if rd.Record == nil {
		return nil, apperr.Protocol(op, "data.record", nil)
	}
	if rd.Record.Fields == nil {
		rd.Record.Fields = map[string]any{}
	}
	return rd.Record, nil
}

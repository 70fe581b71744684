package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"coachfit/backend/config"
)

// ── HTTP 日历客户端 ──
//
// 事件体以标准 iCalendar (RFC 5545) 上送：
//   POST   {base}/v1/events        单个创建，响应 {"id": "..."}
//   POST   {base}/v1/events/bulk   批量创建，响应与入参顺序对齐的结果数组
//   PUT    {base}/v1/events/{id}   更新
//   DELETE {base}/v1/events/{id}   删除

const maxResponseSize = 1 << 20 // 1MB

type httpClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient 创建外部日历 HTTP 客户端
func NewHTTPClient(cfg *config.CalendarConfig) Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	// webcal:// → https://
	if strings.HasPrefix(base, "webcal://") {
		base = "https://" + strings.TrimPrefix(base, "webcal://")
	}
	return &httpClient{
		baseURL: base,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *httpClient) CreateEvent(ctx context.Context, desc EventDescription) (string, error) {
	body, err := encodeICS([]EventDescription{desc})
	if err != nil {
		return "", err
	}

	data, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/events", body)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("解析日历服务响应失败: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("日历服务未返回事件 ID")
	}
	return resp.ID, nil
}

func (c *httpClient) CreateEventsBulk(ctx context.Context, descs []EventDescription) ([]BulkResult, error) {
	if len(descs) == 0 {
		return nil, nil
	}

	body, err := encodeICS(descs)
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/events/bulk", body)
	if err != nil {
		return nil, err
	}

	var results []BulkResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("解析批量创建响应失败: %w", err)
	}
	if len(results) != len(descs) {
		return nil, fmt.Errorf("批量创建响应数量不匹配: 期望 %d，实际 %d", len(descs), len(results))
	}
	return results, nil
}

func (c *httpClient) UpdateEvent(ctx context.Context, eventID string, desc EventDescription) error {
	body, err := encodeICS([]EventDescription{desc})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, c.baseURL+"/v1/events/"+url.PathEscape(eventID), body)
	return err
}

func (c *httpClient) DeleteEvent(ctx context.Context, eventID string) error {
	_, err := c.do(ctx, http.MethodDelete, c.baseURL+"/v1/events/"+url.PathEscape(eventID), nil)
	return err
}

// do 发送请求并读取响应体，非 2xx 一律视为失败
func (c *httpClient) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("构造日历服务请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求日历服务失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("读取日历服务响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("日历服务返回 HTTP %d", resp.StatusCode)
	}
	return data, nil
}

// encodeICS 将事件描述序列化为 iCalendar 文本，每个事件一个 VEVENT
func encodeICS(descs []EventDescription) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId("-//CoachFit//Scheduling//CN")

	for _, d := range descs {
		ev := cal.AddEvent(uuid.New().String())
		ev.SetDtStampTime(time.Now())
		ev.SetStartAt(d.Start)
		ev.SetEndAt(d.End)
		ev.SetSummary(d.Title)
		if d.Description != "" {
			ev.SetDescription(d.Description)
		}
	}

	return []byte(cal.Serialize()), nil
}

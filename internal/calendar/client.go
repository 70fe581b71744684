package calendar

import (
	"context"
	"time"
)

// EventDescription 外部日历事件的最小描述
type EventDescription struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// BulkResult 批量创建中单个事件的结果，与输入顺序对齐
type BulkResult struct {
	Success bool   `json:"success"`
	EventID string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client 外部日历服务客户端
//
// 实现通过构造函数注入同步协调器，便于测试替换，也避免共享单例在并发下的隐患。
// 任何调用的失败都被上层视为非致命的同步失败，不会回滚已落库的预约。
type Client interface {
	CreateEvent(ctx context.Context, desc EventDescription) (string, error)
	// CreateEventsBulk 单次批量请求创建多个事件，结果与入参顺序一一对应
	CreateEventsBulk(ctx context.Context, descs []EventDescription) ([]BulkResult, error)
	UpdateEvent(ctx context.Context, eventID string, desc EventDescription) error
	DeleteEvent(ctx context.Context, eventID string) error
}

package dto

import "github.com/shopspring/decimal"

// ── 预约模块 DTO ──

// CreateAppointmentRequest 创建预约请求（单次或周期重复）
//
// selected_weekdays 为空时默认取 date 当天的星期；
// weeks_to_repeat 为 0 表示不重复，仅创建单次预约。
type CreateAppointmentRequest struct {
	SubjectID        string          `json:"subject_id"        binding:"required,uuid"`
	Date             string          `json:"date"              binding:"required"` // 2006-01-02
	StartTime        string          `json:"start_time"        binding:"required"` // 15:04
	EndTime          string          `json:"end_time"          binding:"required"` // 15:04
	Fee              decimal.Decimal `json:"fee"`
	Notes            string          `json:"notes"             binding:"omitempty,max=2000"`
	SelectedWeekdays []int           `json:"selected_weekdays" binding:"omitempty,max=7,dive,min=0,max=6"` // 0=周日 … 6=周六
	WeeksToRepeat    int             `json:"weeks_to_repeat"   binding:"omitempty,min=0,max=53"`
}

// UpdateAppointmentRequest 修改预约请求
// 时间字段整体必填（改期即重新指定时段）；fee/notes/status 按需提供
type UpdateAppointmentRequest struct {
	Date      string           `json:"date"       binding:"required"` // 2006-01-02
	StartTime string           `json:"start_time" binding:"required"` // 15:04
	EndTime   string           `json:"end_time"   binding:"required"` // 15:04
	Fee       *decimal.Decimal `json:"fee"`
	Notes     *string          `json:"notes"      binding:"omitempty,max=2000"`
	Status    *string          `json:"status"     binding:"omitempty,oneof=not_attended attended"`
}

// ListAppointmentsRequest 预约列表查询参数
type ListAppointmentsRequest struct {
	SubjectID string `form:"subject_id" binding:"required,uuid"`
	From      string `form:"from"       binding:"omitempty"` // 2006-01-02
	To        string `form:"to"         binding:"omitempty"` // 2006-01-02
	PaginationRequest
}

// ── 响应 ──

// SyncStatusResponse 外部日历同步结果
// 同步失败不代表预约失败：预约以数据库为准，外部日历仅为镜像
type SyncStatusResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SuccessCount int    `json:"success_count"`
	FailedCount  int    `json:"failed_count"`
	TotalCount   int    `json:"total_count"`
}

// AppointmentResponse 预约响应
type AppointmentResponse struct {
	ID              string          `json:"id"`
	SubjectID       string          `json:"subject_id"`
	StartTime       string          `json:"start_time"`
	EndTime         string          `json:"end_time"`
	Fee             decimal.Decimal `json:"fee"`
	Notes           string          `json:"notes"`
	Status          string          `json:"status"`
	ExternalEventID *string         `json:"external_event_id,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

// CreateAppointmentResponse 创建预约响应（含整批实例与同步结果）
type CreateAppointmentResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	SyncStatus   SyncStatusResponse    `json:"sync_status"`
}

// UpdateAppointmentResponse 修改预约响应
type UpdateAppointmentResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	SyncStatus  SyncStatusResponse  `json:"sync_status"`
}

// DeleteAppointmentResponse 删除预约响应
type DeleteAppointmentResponse struct {
	Success    bool               `json:"success"`
	SyncStatus SyncStatusResponse `json:"sync_status"`
}

// ResyncAppointmentResponse 重新同步响应
type ResyncAppointmentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

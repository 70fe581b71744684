package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 出勤状态：not_attended 为初始态，attended 为终态，不提供回退
const (
	StatusNotAttended = "not_attended"
	StatusAttended    = "attended"
)

// Appointment 预约表 — 对应 appointments
//
// 不变量：同一会员（subject_id）的任意两条预约时段不重叠（半开区间），
// 由数据库排除约束强制；end_time 恒大于 start_time。
// external_event_id 为 NULL 表示尚未镜像到外部日历（含同步失败的情形）。
type Appointment struct {
	AppointmentID   string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"appointment_id"`
	SubjectID       string          `gorm:"type:uuid;not null;index"                       json:"subject_id"`
	StartTime       time.Time       `gorm:"not null"                                       json:"start_time"`
	EndTime         time.Time       `gorm:"not null"                                       json:"end_time"`
	Fee             decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"          json:"fee"`
	Notes           string          `gorm:"type:text;not null;default:''"                  json:"notes"`
	Status          string          `gorm:"type:varchar(16);not null;default:'not_attended'" json:"status"` // not_attended | attended
	ExternalEventID *string         `gorm:"type:text"                                      json:"external_event_id,omitempty"`
	VersionedModel
}

func (Appointment) TableName() string { return "appointments" }

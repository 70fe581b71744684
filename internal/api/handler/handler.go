package handler

import "coachfit/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Appointment *AppointmentHandler
	Export      *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Appointment: NewAppointmentHandler(svc.Appointment),
		Export:      NewExportHandler(svc.Export),
	}
}

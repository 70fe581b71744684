package service

import (
	"go.uber.org/zap"

	"coachfit/backend/internal/calendar"
	"coachfit/backend/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Appointment AppointmentService
	Export      ExportService
}

// NewService 创建 Service 聚合
// calClient 为 nil 表示外部日历未启用；locker 为会员级调度锁（Redis 不可用时降级直通）
func NewService(
	repo *repository.Repository,
	calClient calendar.Client,
	locker SubjectLocker,
	logger *zap.Logger,
) *Service {
	syncCoordinator := NewCalendarSyncCoordinator(calClient, repo, logger)
	return &Service{
		Appointment: NewAppointmentService(repo, syncCoordinator, locker, logger),
		Export:      NewExportService(repo, logger),
	}
}

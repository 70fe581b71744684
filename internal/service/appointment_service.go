package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"coachfit/backend/internal/dto"
	"coachfit/backend/internal/model"
	"coachfit/backend/internal/repository"
	pkgerrors "coachfit/backend/pkg/errors"
)

// SubjectLocker 会员级调度互斥锁
// 生产实现为 Redis 锁；测试中以直通实现替换
type SubjectLocker interface {
	WithSubjectLock(ctx context.Context, subjectID string, fn func() error) error
}

// AppointmentService 预约业务接口
type AppointmentService interface {
	// 创建预约（单次或按周期展开为整批，整批原子落库后统一同步外部日历）
	Create(ctx context.Context, req *dto.CreateAppointmentRequest) (*dto.CreateAppointmentResponse, error)
	// 获取单条预约
	Get(ctx context.Context, id string) (*dto.AppointmentResponse, error)
	// 查询会员的预约列表
	List(ctx context.Context, req *dto.ListAppointmentsRequest) ([]dto.AppointmentResponse, int64, error)
	// 修改预约（重新校验时段并做排除自身的冲突检查）
	Update(ctx context.Context, id string, req *dto.UpdateAppointmentRequest) (*dto.UpdateAppointmentResponse, error)
	// 删除预约并尽力清理外部日历镜像
	Delete(ctx context.Context, id string) (*dto.DeleteAppointmentResponse, error)
	// 重新同步外部日历（同步失败后的恢复路径）
	Resync(ctx context.Context, id string) (*dto.ResyncAppointmentResponse, error)
}

type appointmentService struct {
	repo   *repository.Repository
	sync   *CalendarSyncCoordinator
	locker SubjectLocker
	logger *zap.Logger
}

// NewAppointmentService 创建 AppointmentService 实例
func NewAppointmentService(repo *repository.Repository, sync *CalendarSyncCoordinator, locker SubjectLocker, logger *zap.Logger) AppointmentService {
	return &appointmentService{repo: repo, sync: sync, locker: locker, logger: logger}
}

// ════════════════════════════════════════════════════════════
// Create — 周期展开 → 冲突检测 → 原子落库 → 外部日历同步
// ════════════════════════════════════════════════════════════

func (s *appointmentService) Create(ctx context.Context, req *dto.CreateAppointmentRequest) (*dto.CreateAppointmentResponse, error) {
	if req.Fee.IsNegative() {
		return nil, pkgerrors.ErrInvalidFee
	}

	// 1. 周期展开为候选日期
	anchor, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	dates, err := expandRecurrence(anchor, req.SelectedWeekdays, req.WeeksToRepeat)
	if err != nil {
		return nil, err
	}

	// 2. 合并日期与时刻，逐个校验区间
	candidates := make([]model.Appointment, 0, len(dates))
	for _, d := range dates {
		start, err := combineDateTime(d, req.StartTime)
		if err != nil {
			return nil, err
		}
		end, err := combineDateTime(d, req.EndTime)
		if err != nil {
			return nil, err
		}
		if err := validateRange(start, end); err != nil {
			return nil, err
		}
		candidates = append(candidates, model.Appointment{
			SubjectID: req.SubjectID,
			StartTime: start,
			EndTime:   end,
			Fee:       req.Fee,
			Notes:     req.Notes,
			Status:    model.StatusNotAttended,
		})
	}

	// 3. 冲突检测 + 原子落库（同一会员的检测与提交在锁内串行化）
	var created []model.Appointment
	err = s.locker.WithSubjectLock(ctx, req.SubjectID, func() error {
		if err := s.detectConflicts(ctx, req.SubjectID, candidates, ""); err != nil {
			return err
		}
		var txErr error
		created, txErr = s.repo.Appointment.CreateBatch(ctx, candidates)
		return txErr
	})
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrSchedulingConflict) {
			s.logger.Error("批量创建预约失败",
				zap.String("subject_id", req.SubjectID),
				zap.Int("count", len(candidates)),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.logger.Info("预约创建成功",
		zap.String("subject_id", req.SubjectID),
		zap.Int("count", len(created)),
	)

	// 4. 落库已持久，同步外部日历（失败只体现在 sync_status）
	syncStatus := s.sync.SyncBatch(ctx, created)

	resp := &dto.CreateAppointmentResponse{
		Appointments: make([]dto.AppointmentResponse, 0, len(created)),
		SyncStatus:   syncStatus,
	}
	for i := range created {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&created[i]))
	}
	return resp, nil
}

// ════════════════════════════════════════════════════════════
// Get / List
// ════════════════════════════════════════════════════════════

func (s *appointmentService) Get(ctx context.Context, id string) (*dto.AppointmentResponse, error) {
	appointment, err := s.repo.Appointment.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrAppointmentNotFound
		}
		s.logger.Error("查询预约失败", zap.String("appointment_id", id), zap.Error(err))
		return nil, err
	}
	resp := toAppointmentResponse(appointment)
	return &resp, nil
}

func (s *appointmentService) List(ctx context.Context, req *dto.ListAppointmentsRequest) ([]dto.AppointmentResponse, int64, error) {
	var from, to *time.Time
	if req.From != "" {
		d, err := parseDate(req.From)
		if err != nil {
			return nil, 0, err
		}
		from = &d
	}
	if req.To != "" {
		d, err := parseDate(req.To)
		if err != nil {
			return nil, 0, err
		}
		to = &d
	}

	appointments, total, err := s.repo.Appointment.ListBySubject(ctx, req.SubjectID, from, to, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询预约列表失败", zap.String("subject_id", req.SubjectID), zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.AppointmentResponse, 0, len(appointments))
	for i := range appointments {
		result = append(result, toAppointmentResponse(&appointments[i]))
	}
	return result, total, nil
}

// ════════════════════════════════════════════════════════════
// Update — 重新校验 + 排除自身的冲突检查 + 乐观锁落库
// ════════════════════════════════════════════════════════════

func (s *appointmentService) Update(ctx context.Context, id string, req *dto.UpdateAppointmentRequest) (*dto.UpdateAppointmentResponse, error) {
	appointment, err := s.repo.Appointment.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrAppointmentNotFound
		}
		s.logger.Error("查询预约失败", zap.String("appointment_id", id), zap.Error(err))
		return nil, err
	}

	// 1. 时段校验
	day, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	start, err := combineDateTime(day, req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := combineDateTime(day, req.EndTime)
	if err != nil {
		return nil, err
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	// 2. 业务字段校验
	if req.Fee != nil && req.Fee.IsNegative() {
		return nil, pkgerrors.ErrInvalidFee
	}
	if req.Status != nil {
		// 出勤状态只允许 not_attended → attended 单向流转
		if appointment.Status == model.StatusAttended && *req.Status == model.StatusNotAttended {
			return nil, pkgerrors.ErrInvalidStatus
		}
	}

	// 3. 冲突检查（排除自身）+ 落库
	candidate := []model.Appointment{{SubjectID: appointment.SubjectID, StartTime: start, EndTime: end}}
	err = s.locker.WithSubjectLock(ctx, appointment.SubjectID, func() error {
		if err := s.detectConflicts(ctx, appointment.SubjectID, candidate, appointment.AppointmentID); err != nil {
			return err
		}

		appointment.StartTime = start
		appointment.EndTime = end
		if req.Fee != nil {
			appointment.Fee = *req.Fee
		}
		if req.Notes != nil {
			appointment.Notes = *req.Notes
		}
		if req.Status != nil {
			appointment.Status = *req.Status
		}
		return s.repo.Appointment.Update(ctx, appointment)
	})
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrSchedulingConflict) {
			s.logger.Error("更新预约失败", zap.String("appointment_id", id), zap.Error(err))
		}
		return nil, err
	}

	// 4. 同步外部日历：已有引用则更新事件，否则补建
	syncStatus := s.sync.SyncOne(ctx, appointment)

	return &dto.UpdateAppointmentResponse{
		Appointment: toAppointmentResponse(appointment),
		SyncStatus:  syncStatus,
	}, nil
}

// ════════════════════════════════════════════════════════════
// Delete — 删除本地记录，尽力清理外部镜像
// ════════════════════════════════════════════════════════════

func (s *appointmentService) Delete(ctx context.Context, id string) (*dto.DeleteAppointmentResponse, error) {
	appointment, err := s.repo.Appointment.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrAppointmentNotFound
		}
		s.logger.Error("查询预约失败", zap.String("appointment_id", id), zap.Error(err))
		return nil, err
	}

	if err := s.repo.Appointment.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrAppointmentNotFound
		}
		s.logger.Error("删除预约失败", zap.String("appointment_id", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("预约已删除",
		zap.String("appointment_id", id),
		zap.String("subject_id", appointment.SubjectID),
	)

	// 本地删除已生效；外部镜像清理失败只体现在 sync_status
	syncStatus := dto.SyncStatusResponse{Success: true, Message: "该预约未同步过外部日历"}
	if appointment.ExternalEventID != nil {
		syncStatus = s.sync.RemoveExternal(ctx, *appointment.ExternalEventID)
	}

	return &dto.DeleteAppointmentResponse{
		Success:    true,
		SyncStatus: syncStatus,
	}, nil
}

// ════════════════════════════════════════════════════════════
// Resync — 同步失败后的恢复路径
// ════════════════════════════════════════════════════════════

func (s *appointmentService) Resync(ctx context.Context, id string) (*dto.ResyncAppointmentResponse, error) {
	appointment, err := s.repo.Appointment.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrAppointmentNotFound
		}
		s.logger.Error("查询预约失败", zap.String("appointment_id", id), zap.Error(err))
		return nil, err
	}

	status := s.sync.SyncOne(ctx, appointment)
	return &dto.ResyncAppointmentResponse{
		Success: status.Success,
		Message: status.Message,
	}, nil
}

// ════════════════════════════════════════════════════════════
// 内部辅助方法
// ════════════════════════════════════════════════════════════

// detectConflicts 批量冲突检测
//
// 对整批候选只做一次粗粒度范围查询（覆盖 [最早开始, 最晚结束)），
// 再在内存中对候选×已有做两两半开区间比较：候选数量上限为 54 周 × 7 天，
// 两两比较的代价远低于逐候选查询的往返。任一命中即整批拒绝，不接受部分成功。
func (s *appointmentService) detectConflicts(ctx context.Context, subjectID string, candidates []model.Appointment, excludeID string) error {
	if len(candidates) == 0 {
		return nil
	}

	earliest := candidates[0].StartTime
	latest := candidates[0].EndTime
	for i := 1; i < len(candidates); i++ {
		if candidates[i].StartTime.Before(earliest) {
			earliest = candidates[i].StartTime
		}
		if candidates[i].EndTime.After(latest) {
			latest = candidates[i].EndTime
		}
	}

	existing, err := s.repo.Appointment.ListOverlapping(ctx, subjectID, earliest, latest, excludeID)
	if err != nil {
		s.logger.Error("查询已有预约失败", zap.String("subject_id", subjectID), zap.Error(err))
		return err
	}

	for i := range candidates {
		for j := range existing {
			if intervalsOverlap(candidates[i].StartTime, candidates[i].EndTime, existing[j].StartTime, existing[j].EndTime) {
				s.logger.Info("预约时段冲突",
					zap.String("subject_id", subjectID),
					zap.Time("candidate_start", candidates[i].StartTime),
					zap.Time("existing_start", existing[j].StartTime),
				)
				return pkgerrors.ErrSchedulingConflict
			}
		}
	}
	return nil
}

// toAppointmentResponse 转换预约为响应
func toAppointmentResponse(appointment *model.Appointment) dto.AppointmentResponse {
	return dto.AppointmentResponse{
		ID:              appointment.AppointmentID,
		SubjectID:       appointment.SubjectID,
		StartTime:       appointment.StartTime.Format(time.RFC3339),
		EndTime:         appointment.EndTime.Format(time.RFC3339),
		Fee:             appointment.Fee,
		Notes:           appointment.Notes,
		Status:          appointment.Status,
		ExternalEventID: appointment.ExternalEventID,
		CreatedAt:       appointment.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       appointment.UpdatedAt.Format(time.RFC3339),
	}
}

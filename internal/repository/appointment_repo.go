package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"coachfit/backend/internal/model"
	pkgerrors "coachfit/backend/pkg/errors"
)

// AppointmentRepository 预约数据访问接口
type AppointmentRepository interface {
	// CreateBatch 原子写入整批预约实例：任一行失败则全部回滚
	CreateBatch(ctx context.Context, appointments []model.Appointment) ([]model.Appointment, error)
	GetByID(ctx context.Context, id string) (*model.Appointment, error)
	// ListOverlapping 查询该会员与 [rangeStart, rangeEnd) 相交的已有预约
	// excludeID 非空时排除指定记录（用于修改时的自排除冲突检查）
	ListOverlapping(ctx context.Context, subjectID string, rangeStart, rangeEnd time.Time, excludeID string) ([]model.Appointment, error)
	ListBySubject(ctx context.Context, subjectID string, from, to *time.Time, offset, limit int) ([]model.Appointment, int64, error)
	Update(ctx context.Context, appointment *model.Appointment) error
	// SetExternalEventID 仅更新外部日历引用（同步协调器专用，不走乐观锁）
	SetExternalEventID(ctx context.Context, id string, eventID *string) error
	Delete(ctx context.Context, id string) error
}

// ── Appointment Repository 实现 ──

type appointmentRepo struct {
	db *gorm.DB
}

func NewAppointmentRepo(db *gorm.DB) AppointmentRepository {
	return &appointmentRepo{db: db}
}

func (r *appointmentRepo) CreateBatch(ctx context.Context, appointments []model.Appointment) ([]model.Appointment, error) {
	if len(appointments) == 0 {
		return appointments, nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&appointments).Error
	})
	if err != nil {
		return nil, translateConstraintError(err)
	}
	return appointments, nil
}

func (r *appointmentRepo) GetByID(ctx context.Context, id string) (*model.Appointment, error) {
	var appointment model.Appointment
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", id).
		First(&appointment).Error
	if err != nil {
		return nil, err
	}
	return &appointment, nil
}

func (r *appointmentRepo) ListOverlapping(ctx context.Context, subjectID string, rangeStart, rangeEnd time.Time, excludeID string) ([]model.Appointment, error) {
	var appointments []model.Appointment
	q := r.db.WithContext(ctx).
		Where("subject_id = ? AND start_time < ? AND end_time > ?", subjectID, rangeEnd, rangeStart)
	if excludeID != "" {
		q = q.Where("appointment_id != ?", excludeID)
	}
	err := q.Order("start_time ASC").Find(&appointments).Error
	return appointments, err
}

func (r *appointmentRepo) ListBySubject(ctx context.Context, subjectID string, from, to *time.Time, offset, limit int) ([]model.Appointment, int64, error) {
	var appointments []model.Appointment
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Appointment{}).
		Where("subject_id = ?", subjectID)
	if from != nil {
		db = db.Where("start_time >= ?", *from)
	}
	if to != nil {
		db = db.Where("start_time < ?", *to)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Offset(offset).Limit(limit).
		Order("start_time ASC").
		Find(&appointments).Error
	return appointments, total, err
}

func (r *appointmentRepo) Update(ctx context.Context, appointment *model.Appointment) error {
	oldVersion := appointment.Version
	result := r.db.WithContext(ctx).
		Model(appointment).
		Where("appointment_id = ? AND version = ?", appointment.AppointmentID, oldVersion).
		Updates(map[string]interface{}{
			"start_time": appointment.StartTime,
			"end_time":   appointment.EndTime,
			"fee":        appointment.Fee,
			"notes":      appointment.Notes,
			"status":     appointment.Status,
			"version":    oldVersion + 1,
		})
	if result.Error != nil {
		return translateConstraintError(result.Error)
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	appointment.Version = oldVersion + 1
	return nil
}

func (r *appointmentRepo) SetExternalEventID(ctx context.Context, id string, eventID *string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("appointment_id = ?", id).
		Update("external_event_id", eventID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *appointmentRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("appointment_id = ?", id).
		Delete(&model.Appointment{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// translateConstraintError 将数据库约束违例映射为业务错误
// 23P01 = 排除约束（同会员时段重叠），23514 = CHECK 约束（end_time/fee 非法）
func translateConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01":
			return pkgerrors.ErrSchedulingConflict
		case "23514":
			return pkgerrors.ErrInvalidRange
		}
	}
	return err
}

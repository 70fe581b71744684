package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"coachfit/backend/internal/calendar"
	"coachfit/backend/internal/model"
	pkgerrors "coachfit/backend/pkg/errors"
)

// ── Mock AppointmentRepository ──
//
// 内存实现，模拟数据库排除约束：批量写入时任一行与已有记录（或同批前序行）
// 重叠即整批拒绝，不产生任何写入。

type mockAppointmentRepo struct {
	appointments map[string]*model.Appointment
	seq          int
	failCreate   bool // 模拟落库失败
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{appointments: make(map[string]*model.Appointment)}
}

func (m *mockAppointmentRepo) CreateBatch(_ context.Context, appointments []model.Appointment) ([]model.Appointment, error) {
	if m.failCreate {
		return nil, errors.New("数据库不可用")
	}

	// 排除约束语义：先整体校验，再整体写入
	pending := make([]*model.Appointment, 0, len(appointments))
	for i := range appointments {
		a := &appointments[i]
		for _, existing := range m.appointments {
			if existing.SubjectID == a.SubjectID &&
				a.StartTime.Before(existing.EndTime) && a.EndTime.After(existing.StartTime) {
				return nil, pkgerrors.ErrSchedulingConflict
			}
		}
		for _, prev := range pending {
			if prev.SubjectID == a.SubjectID &&
				a.StartTime.Before(prev.EndTime) && a.EndTime.After(prev.StartTime) {
				return nil, pkgerrors.ErrSchedulingConflict
			}
		}
		pending = append(pending, a)
	}

	now := time.Now()
	for _, a := range pending {
		m.seq++
		a.AppointmentID = fmt.Sprintf("appt-%d", m.seq)
		a.Version = 1
		a.CreatedAt = now
		a.UpdatedAt = now
		stored := *a
		m.appointments[a.AppointmentID] = &stored
	}
	return appointments, nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id string) (*model.Appointment, error) {
	if a, ok := m.appointments[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAppointmentRepo) ListOverlapping(_ context.Context, subjectID string, rangeStart, rangeEnd time.Time, excludeID string) ([]model.Appointment, error) {
	var result []model.Appointment
	for _, a := range m.appointments {
		if a.SubjectID != subjectID || a.AppointmentID == excludeID {
			continue
		}
		if a.StartTime.Before(rangeEnd) && a.EndTime.After(rangeStart) {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}

func (m *mockAppointmentRepo) ListBySubject(_ context.Context, subjectID string, from, to *time.Time, offset, limit int) ([]model.Appointment, int64, error) {
	var all []model.Appointment
	for _, a := range m.appointments {
		if a.SubjectID != subjectID {
			continue
		}
		if from != nil && a.StartTime.Before(*from) {
			continue
		}
		if to != nil && !a.StartTime.Before(*to) {
			continue
		}
		all = append(all, *a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, appointment *model.Appointment) error {
	stored, ok := m.appointments[appointment.AppointmentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Version != appointment.Version {
		return pkgerrors.ErrOptimisticLock
	}
	c := *appointment
	c.Version = appointment.Version + 1
	c.UpdatedAt = time.Now()
	m.appointments[appointment.AppointmentID] = &c
	appointment.Version = c.Version
	return nil
}

func (m *mockAppointmentRepo) SetExternalEventID(_ context.Context, id string, eventID *string) error {
	stored, ok := m.appointments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.ExternalEventID = eventID
	return nil
}

func (m *mockAppointmentRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.appointments[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.appointments, id)
	return nil
}

// ── Fake 外部日历客户端 ──

type fakeCalendarClient struct {
	seq          int
	failCreate   bool
	failUpdate   bool
	failDelete   bool
	failBulk     bool         // 整个批量请求失败
	bulkItemFail map[int]bool // 指定下标的条目失败

	createCalls int
	updateCalls int
	deleteCalls int
	updatedIDs  []string
	deletedIDs  []string
}

func newFakeCalendarClient() *fakeCalendarClient {
	return &fakeCalendarClient{bulkItemFail: make(map[int]bool)}
}

func (f *fakeCalendarClient) CreateEvent(_ context.Context, _ calendar.EventDescription) (string, error) {
	f.createCalls++
	if f.failCreate {
		return "", errors.New("日历服务返回 HTTP 502")
	}
	f.seq++
	return fmt.Sprintf("evt-%d", f.seq), nil
}

func (f *fakeCalendarClient) CreateEventsBulk(_ context.Context, descs []calendar.EventDescription) ([]calendar.BulkResult, error) {
	if f.failBulk {
		return nil, errors.New("日历服务返回 HTTP 502")
	}
	results := make([]calendar.BulkResult, 0, len(descs))
	for i := range descs {
		if f.bulkItemFail[i] {
			results = append(results, calendar.BulkResult{Success: false, Message: "配额不足"})
			continue
		}
		f.seq++
		results = append(results, calendar.BulkResult{Success: true, EventID: fmt.Sprintf("evt-%d", f.seq)})
	}
	return results, nil
}

func (f *fakeCalendarClient) UpdateEvent(_ context.Context, eventID string, _ calendar.EventDescription) error {
	f.updateCalls++
	if f.failUpdate {
		return errors.New("日历服务返回 HTTP 502")
	}
	f.updatedIDs = append(f.updatedIDs, eventID)
	return nil
}

func (f *fakeCalendarClient) DeleteEvent(_ context.Context, eventID string) error {
	f.deleteCalls++
	if f.failDelete {
		return errors.New("日历服务返回 HTTP 502")
	}
	f.deletedIDs = append(f.deletedIDs, eventID)
	return nil
}

// ── 直通锁（测试用） ──

type noopLocker struct{}

func (noopLocker) WithSubjectLock(_ context.Context, _ string, fn func() error) error {
	return fn()
}

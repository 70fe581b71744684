package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coachfit/backend/internal/dto"
	"coachfit/backend/internal/model"
	"coachfit/backend/internal/repository"
	pkgerrors "coachfit/backend/pkg/errors"
)

const testSubjectID = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"

func setupAppointmentService() (AppointmentService, *mockAppointmentRepo, *fakeCalendarClient) {
	repoMock := newMockAppointmentRepo()
	repo := &repository.Repository{Appointment: repoMock}
	fake := newFakeCalendarClient()
	sync := NewCalendarSyncCoordinator(fake, repo, zap.NewNop())
	svc := NewAppointmentService(repo, sync, noopLocker{}, zap.NewNop())
	return svc, repoMock, fake
}

func createReq(date, start, end string) *dto.CreateAppointmentRequest {
	return &dto.CreateAppointmentRequest{
		SubjectID: testSubjectID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Fee:       decimal.NewFromInt(200),
	}
}

// ════════════════════════════════════════════════════════════
// Create
// ════════════════════════════════════════════════════════════

func TestCreateAppointment_Single(t *testing.T) {
	svc, repoMock, _ := setupAppointmentService()

	resp, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("创建预约失败: %v", err)
	}
	if len(resp.Appointments) != 1 {
		t.Fatalf("len(appointments) = %d, want 1", len(resp.Appointments))
	}
	if !resp.SyncStatus.Success || resp.SyncStatus.SuccessCount != 1 {
		t.Errorf("同步状态错误: %+v", resp.SyncStatus)
	}
	if resp.Appointments[0].ExternalEventID == nil || *resp.Appointments[0].ExternalEventID != "evt-1" {
		t.Errorf("响应中缺少外部事件引用: %+v", resp.Appointments[0])
	}

	// 外部事件引用已写回存储
	stored, err := repoMock.GetByID(context.Background(), resp.Appointments[0].ID)
	if err != nil {
		t.Fatalf("查询落库记录失败: %v", err)
	}
	if stored.ExternalEventID == nil || *stored.ExternalEventID != "evt-1" {
		t.Errorf("外部事件引用未写回: %+v", stored)
	}
	if stored.Status != model.StatusNotAttended {
		t.Errorf("初始出勤状态 = %q, want %q", stored.Status, model.StatusNotAttended)
	}
}

func TestCreateAppointment_ConflictRejected(t *testing.T) {
	svc, repoMock, _ := setupAppointmentService()

	if _, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00")); err != nil {
		t.Fatalf("首次创建失败: %v", err)
	}

	// 同会员 10:30-11:30 与已有 10:00-11:00 交叠
	_, err := svc.Create(context.Background(), createReq("2026-01-05", "10:30", "11:30"))
	if !errors.Is(err, pkgerrors.ErrSchedulingConflict) {
		t.Fatalf("应返回 ErrSchedulingConflict, got %v", err)
	}
	if pkgerrors.KindOf(err) != pkgerrors.KindConflict {
		t.Errorf("错误种类 = %v, want KindConflict", pkgerrors.KindOf(err))
	}
	if len(repoMock.appointments) != 1 {
		t.Errorf("冲突请求不应产生任何写入: count = %d", len(repoMock.appointments))
	}
}

func TestCreateAppointment_AdjacentSlotsAllowed(t *testing.T) {
	svc, _, _ := setupAppointmentService()

	if _, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00")); err != nil {
		t.Fatalf("首次创建失败: %v", err)
	}
	// 首尾相接：11:00-12:00 不与 10:00-11:00 冲突
	if _, err := svc.Create(context.Background(), createReq("2026-01-05", "11:00", "12:00")); err != nil {
		t.Errorf("首尾相接的时段不应视为冲突: %v", err)
	}
}

func TestCreateAppointment_Recurring(t *testing.T) {
	svc, repoMock, _ := setupAppointmentService()

	req := createReq("2026-01-05", "10:00", "11:00") // 周一
	req.SelectedWeekdays = []int{1, 3}
	req.WeeksToRepeat = 2

	resp, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("周期创建失败: %v", err)
	}
	if len(resp.Appointments) != 6 {
		t.Fatalf("len(appointments) = %d, want 6", len(resp.Appointments))
	}
	if resp.SyncStatus.SuccessCount != 6 || resp.SyncStatus.TotalCount != 6 {
		t.Errorf("同步计数错误: %+v", resp.SyncStatus)
	}
	if len(repoMock.appointments) != 6 {
		t.Errorf("落库记录数 = %d, want 6", len(repoMock.appointments))
	}
	// 每条实例各自持有独立的外部事件引用
	seen := make(map[string]bool)
	for _, a := range resp.Appointments {
		if a.ExternalEventID == nil {
			t.Fatalf("实例缺少外部事件引用: %+v", a)
		}
		if seen[*a.ExternalEventID] {
			t.Errorf("外部事件引用重复: %s", *a.ExternalEventID)
		}
		seen[*a.ExternalEventID] = true
	}
}

func TestCreateAppointment_RecurringBatchAtomic(t *testing.T) {
	svc, repoMock, _ := setupAppointmentService()

	// 先占住第 2 周周三的同一时段
	if _, err := svc.Create(context.Background(), createReq("2026-01-14", "10:00", "11:00")); err != nil {
		t.Fatalf("预置预约失败: %v", err)
	}

	req := createReq("2026-01-05", "10:00", "11:00")
	req.SelectedWeekdays = []int{1, 3}
	req.WeeksToRepeat = 2

	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, pkgerrors.ErrSchedulingConflict) {
		t.Fatalf("应返回 ErrSchedulingConflict, got %v", err)
	}
	// 任一实例冲突即整批拒绝：除预置记录外不得有新增
	if len(repoMock.appointments) != 1 {
		t.Errorf("整批应原子拒绝: count = %d, want 1", len(repoMock.appointments))
	}
}

func TestCreateAppointment_SyncFailureDoesNotFailBooking(t *testing.T) {
	svc, repoMock, fake := setupAppointmentService()
	fake.failBulk = true

	resp, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("同步失败不应导致创建失败: %v", err)
	}
	if resp.SyncStatus.Success {
		t.Error("同步状态应为失败")
	}
	if resp.SyncStatus.FailedCount != 1 || resp.SyncStatus.TotalCount != 1 {
		t.Errorf("同步计数错误: %+v", resp.SyncStatus)
	}
	// 预约已落库但外部引用保持 NULL
	if len(repoMock.appointments) != 1 {
		t.Fatalf("落库记录数 = %d, want 1", len(repoMock.appointments))
	}
	stored, _ := repoMock.GetByID(context.Background(), resp.Appointments[0].ID)
	if stored.ExternalEventID != nil {
		t.Errorf("同步失败时外部引用应为 NULL: %+v", stored)
	}
}

func TestCreateAppointment_PartialSyncFailure(t *testing.T) {
	svc, _, fake := setupAppointmentService()
	fake.bulkItemFail[1] = true // 第二条事件创建失败

	req := createReq("2026-01-05", "10:00", "11:00")
	req.SelectedWeekdays = []int{1, 3}
	req.WeeksToRepeat = 0 // 周一 + 周三，共 2 条

	resp, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if resp.SyncStatus.Success {
		t.Error("存在失败条目时整体同步状态应为失败")
	}
	if resp.SyncStatus.SuccessCount != 1 || resp.SyncStatus.FailedCount != 1 {
		t.Errorf("同步计数错误: %+v", resp.SyncStatus)
	}
	if resp.Appointments[0].ExternalEventID == nil {
		t.Error("成功条目应持有外部引用")
	}
	if resp.Appointments[1].ExternalEventID != nil {
		t.Error("失败条目的外部引用应为 NULL")
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	svc, repoMock, _ := setupAppointmentService()

	cases := []struct {
		name string
		req  *dto.CreateAppointmentRequest
		want error
	}{
		{"结束不晚于开始", createReq("2026-01-05", "11:00", "10:00"), pkgerrors.ErrInvalidRange},
		{"零长时段", createReq("2026-01-05", "10:00", "10:00"), pkgerrors.ErrInvalidRange},
		{"日期格式非法", createReq("2026/01/05", "10:00", "11:00"), pkgerrors.ErrInvalidTimeFormat},
		{"时刻格式非法", createReq("2026-01-05", "上午十点", "11:00"), pkgerrors.ErrInvalidTimeFormat},
	}
	for _, tc := range cases {
		if _, err := svc.Create(context.Background(), tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}

	// 费用为负
	req := createReq("2026-01-05", "10:00", "11:00")
	req.Fee = decimal.NewFromInt(-1)
	if _, err := svc.Create(context.Background(), req); !errors.Is(err, pkgerrors.ErrInvalidFee) {
		t.Errorf("负费用应返回 ErrInvalidFee, got %v", err)
	}

	if len(repoMock.appointments) != 0 {
		t.Errorf("校验失败的请求不应产生写入: count = %d", len(repoMock.appointments))
	}
}

// ════════════════════════════════════════════════════════════
// Get / List
// ════════════════════════════════════════════════════════════

func TestGetAppointment(t *testing.T) {
	svc, _, _ := setupAppointmentService()

	resp, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	got, err := svc.Get(context.Background(), resp.Appointments[0].ID)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if got.SubjectID != testSubjectID {
		t.Errorf("subject_id = %q, want %q", got.SubjectID, testSubjectID)
	}

	if _, err := svc.Get(context.Background(), "missing-id"); !errors.Is(err, pkgerrors.ErrAppointmentNotFound) {
		t.Errorf("不存在的记录应返回 ErrAppointmentNotFound, got %v", err)
	}
}

func TestListAppointments(t *testing.T) {
	svc, _, _ := setupAppointmentService()

	req := createReq("2026-01-05", "10:00", "11:00")
	req.SelectedWeekdays = []int{1}
	req.WeeksToRepeat = 3 // 01-05 / 01-12 / 01-19 / 01-26
	if _, err := svc.Create(context.Background(), req); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	list, total, err := svc.List(context.Background(), &dto.ListAppointmentsRequest{SubjectID: testSubjectID})
	if err != nil {
		t.Fatalf("查询列表失败: %v", err)
	}
	if total != 4 || len(list) != 4 {
		t.Fatalf("total = %d, len = %d, want 4", total, len(list))
	}

	// 日期范围过滤：[01-10, 01-20) 命中 01-12 与 01-19
	list, total, err = svc.List(context.Background(), &dto.ListAppointmentsRequest{
		SubjectID: testSubjectID,
		From:      "2026-01-10",
		To:        "2026-01-20",
	})
	if err != nil {
		t.Fatalf("范围查询失败: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Errorf("范围过滤: total = %d, len = %d, want 2", total, len(list))
	}

	// 升序排列
	if len(list) == 2 && list[0].StartTime > list[1].StartTime {
		t.Errorf("列表应按开始时间升序: %q > %q", list[0].StartTime, list[1].StartTime)
	}
}

// ════════════════════════════════════════════════════════════
// Update
// ════════════════════════════════════════════════════════════

func TestUpdateAppointment(t *testing.T) {
	svc, repoMock, fake := setupAppointmentService()

	created, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	id := created.Appointments[0].ID

	newFee := decimal.NewFromInt(260)
	resp, err := svc.Update(context.Background(), id, &dto.UpdateAppointmentRequest{
		Date:      "2026-01-06",
		StartTime: "14:00",
		EndTime:   "15:00",
		Fee:       &newFee,
	})
	if err != nil {
		t.Fatalf("更新失败: %v", err)
	}
	if !resp.SyncStatus.Success {
		t.Errorf("同步状态错误: %+v", resp.SyncStatus)
	}

	stored, _ := repoMock.GetByID(context.Background(), id)
	if stored.StartTime.Hour() != 14 || stored.StartTime.Day() != 6 {
		t.Errorf("时段未更新: %v", stored.StartTime)
	}
	if !stored.Fee.Equal(newFee) {
		t.Errorf("费用未更新: %v", stored.Fee)
	}
	// 已持有外部引用 → 走更新而非重复创建
	if fake.updateCalls != 1 {
		t.Errorf("updateCalls = %d, want 1", fake.updateCalls)
	}
	if fake.createCalls != 0 {
		t.Errorf("createCalls = %d, want 0（批量创建不计入单条接口）", fake.createCalls)
	}
}

func TestUpdateAppointment_ConflictLeavesOriginalUntouched(t *testing.T) {
	svc, repoMock, _ := setupAppointmentService()

	if _, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00")); err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	second, err := svc.Create(context.Background(), createReq("2026-01-05", "14:00", "15:00"))
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	id := second.Appointments[0].ID

	// 把 14:00-15:00 挪到与 10:00-11:00 交叠
	_, err = svc.Update(context.Background(), id, &dto.UpdateAppointmentRequest{
		Date:      "2026-01-05",
		StartTime: "10:30",
		EndTime:   "11:30",
	})
	if !errors.Is(err, pkgerrors.ErrSchedulingConflict) {
		t.Fatalf("应返回 ErrSchedulingConflict, got %v", err)
	}

	stored, _ := repoMock.GetByID(context.Background(), id)
	if stored.StartTime.Hour() != 14 {
		t.Errorf("冲突更新后原记录不应变更: start = %v", stored.StartTime)
	}
}

func TestUpdateAppointment_SelfReschedulingAllowed(t *testing.T) {
	svc, _, _ := setupAppointmentService()

	created, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	// 仅与自身原时段交叠：排除自身后不构成冲突
	_, err = svc.Update(context.Background(), created.Appointments[0].ID, &dto.UpdateAppointmentRequest{
		Date:      "2026-01-05",
		StartTime: "10:30",
		EndTime:   "11:30",
	})
	if err != nil {
		t.Errorf("与自身交叠的改期不应视为冲突: %v", err)
	}
}

func TestUpdateAppointment_StatusTransition(t *testing.T) {
	svc, repoMock, _ := setupAppointmentService()

	created, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	id := created.Appointments[0].ID

	attended := model.StatusAttended
	if _, err := svc.Update(context.Background(), id, &dto.UpdateAppointmentRequest{
		Date:      "2026-01-05",
		StartTime: "10:00",
		EndTime:   "11:00",
		Status:    &attended,
	}); err != nil {
		t.Fatalf("标记出勤失败: %v", err)
	}
	stored, _ := repoMock.GetByID(context.Background(), id)
	if stored.Status != model.StatusAttended {
		t.Errorf("status = %q, want %q", stored.Status, model.StatusAttended)
	}

	// attended → not_attended 不允许回退
	notAttended := model.StatusNotAttended
	_, err = svc.Update(context.Background(), id, &dto.UpdateAppointmentRequest{
		Date:      "2026-01-05",
		StartTime: "10:00",
		EndTime:   "11:00",
		Status:    &notAttended,
	})
	if !errors.Is(err, pkgerrors.ErrInvalidStatus) {
		t.Errorf("出勤状态回退应返回 ErrInvalidStatus, got %v", err)
	}
}

func TestUpdateAppointment_NotFound(t *testing.T) {
	svc, _, _ := setupAppointmentService()

	_, err := svc.Update(context.Background(), "missing-id", &dto.UpdateAppointmentRequest{
		Date:      "2026-01-05",
		StartTime: "10:00",
		EndTime:   "11:00",
	})
	if !errors.Is(err, pkgerrors.ErrAppointmentNotFound) {
		t.Errorf("应返回 ErrAppointmentNotFound, got %v", err)
	}
}

// ════════════════════════════════════════════════════════════
// Delete
// ════════════════════════════════════════════════════════════

func TestDeleteAppointment(t *testing.T) {
	svc, repoMock, fake := setupAppointmentService()

	created, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	id := created.Appointments[0].ID

	resp, err := svc.Delete(context.Background(), id)
	if err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if !resp.Success || !resp.SyncStatus.Success {
		t.Errorf("删除响应错误: %+v", resp)
	}
	if len(fake.deletedIDs) != 1 || fake.deletedIDs[0] != "evt-1" {
		t.Errorf("外部事件未删除: %v", fake.deletedIDs)
	}
	if len(repoMock.appointments) != 0 {
		t.Errorf("本地记录未删除: count = %d", len(repoMock.appointments))
	}

	if _, err := svc.Delete(context.Background(), id); !errors.Is(err, pkgerrors.ErrAppointmentNotFound) {
		t.Errorf("重复删除应返回 ErrAppointmentNotFound, got %v", err)
	}
}

func TestDeleteAppointment_ExternalFailureStillSucceeds(t *testing.T) {
	svc, repoMock, fake := setupAppointmentService()

	created, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	fake.failDelete = true

	resp, err := svc.Delete(context.Background(), created.Appointments[0].ID)
	if err != nil {
		t.Fatalf("外部清理失败不应导致删除失败: %v", err)
	}
	if !resp.Success {
		t.Error("本地删除已生效，Success 应为 true")
	}
	if resp.SyncStatus.Success {
		t.Error("外部清理失败应体现在 sync_status 中")
	}
	if len(repoMock.appointments) != 0 {
		t.Errorf("本地记录未删除: count = %d", len(repoMock.appointments))
	}
}

func TestDeleteAppointment_NeverSynced(t *testing.T) {
	svc, _, fake := setupAppointmentService()
	fake.failBulk = true // 创建时同步失败，外部引用为 NULL

	created, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	fake.failBulk = false

	resp, err := svc.Delete(context.Background(), created.Appointments[0].ID)
	if err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if !resp.Success || !resp.SyncStatus.Success {
		t.Errorf("删除响应错误: %+v", resp)
	}
	// 从未同步过 → 不应发起外部删除调用
	if fake.deleteCalls != 0 {
		t.Errorf("deleteCalls = %d, want 0", fake.deleteCalls)
	}
}

// ════════════════════════════════════════════════════════════
// Resync
// ════════════════════════════════════════════════════════════

func TestResyncAppointment_AfterSyncFailure(t *testing.T) {
	svc, repoMock, fake := setupAppointmentService()
	fake.failBulk = true

	created, err := svc.Create(context.Background(), createReq("2026-01-05", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	id := created.Appointments[0].ID
	fake.failBulk = false

	// 首次重同步：外部引用缺失 → 创建事件并写回
	resp, err := svc.Resync(context.Background(), id)
	if err != nil {
		t.Fatalf("重同步失败: %v", err)
	}
	if !resp.Success {
		t.Fatalf("重同步响应错误: %+v", resp)
	}
	stored, _ := repoMock.GetByID(context.Background(), id)
	if stored.ExternalEventID == nil {
		t.Fatal("重同步后外部引用应已写回")
	}
	firstEventID := *stored.ExternalEventID
	if fake.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", fake.createCalls)
	}

	// 再次重同步：幂等，更新既有事件而非创建副本
	if _, err := svc.Resync(context.Background(), id); err != nil {
		t.Fatalf("二次重同步失败: %v", err)
	}
	if fake.createCalls != 1 {
		t.Errorf("二次重同步不应再创建事件: createCalls = %d", fake.createCalls)
	}
	if fake.updateCalls != 1 {
		t.Errorf("updateCalls = %d, want 1", fake.updateCalls)
	}
	stored, _ = repoMock.GetByID(context.Background(), id)
	if stored.ExternalEventID == nil || *stored.ExternalEventID != firstEventID {
		t.Errorf("外部引用不应变化: %v", stored.ExternalEventID)
	}
}

func TestResyncAppointment_NotFound(t *testing.T) {
	svc, _, _ := setupAppointmentService()

	if _, err := svc.Resync(context.Background(), "missing-id"); !errors.Is(err, pkgerrors.ErrAppointmentNotFound) {
		t.Errorf("应返回 ErrAppointmentNotFound, got %v", err)
	}
}

package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"coachfit/backend/internal/calendar"
	"coachfit/backend/internal/dto"
	"coachfit/backend/internal/model"
	"coachfit/backend/internal/repository"
)

// ── 外部日历同步协调器 ──
//
// 职责：预约落库后，将每条预约镜像到外部日历并记录外部事件引用。
//
// 核心约定：
//   - 同步在事务提交之后执行，绝不回滚已落库的预约
//   - 任何外部调用的失败都被捕获并折算进 SyncStatus，不向调用方抛出
//   - 已持有 external_event_id 的预约重新同步时走更新而非创建（幂等）
//   - client 通过构造函数注入（禁止包级单例），测试中以 fake 替换

const defaultEventTitle = "私教课程"

// CalendarSyncCoordinator 外部日历同步协调器
type CalendarSyncCoordinator struct {
	client calendar.Client // nil 表示未启用外部日历
	repo   *repository.Repository
	logger *zap.Logger
}

// NewCalendarSyncCoordinator 创建同步协调器
func NewCalendarSyncCoordinator(client calendar.Client, repo *repository.Repository, logger *zap.Logger) *CalendarSyncCoordinator {
	return &CalendarSyncCoordinator{client: client, repo: repo, logger: logger}
}

// SyncBatch 将整批预约以单次批量请求镜像到外部日历
//
// 逐项处理返回结果：成功的条目将外部事件引用写回对应行并更新内存副本；
// 失败的条目保持 external_event_id 为 NULL，仅计入 failed_count。
func (c *CalendarSyncCoordinator) SyncBatch(ctx context.Context, appointments []model.Appointment) dto.SyncStatusResponse {
	total := len(appointments)
	if c.client == nil {
		return dto.SyncStatusResponse{
			Success:    true,
			Message:    "外部日历同步未启用",
			TotalCount: total,
		}
	}
	if total == 0 {
		return dto.SyncStatusResponse{Success: true, Message: "无需同步"}
	}

	descs := make([]calendar.EventDescription, 0, total)
	for i := range appointments {
		descs = append(descs, eventDescriptionOf(&appointments[i]))
	}

	results, err := c.client.CreateEventsBulk(ctx, descs)
	if err != nil {
		c.logger.Warn("外部日历批量创建失败", zap.Int("count", total), zap.Error(err))
		return dto.SyncStatusResponse{
			Success:     false,
			Message:     fmt.Sprintf("外部日历批量同步失败: %v", err),
			FailedCount: total,
			TotalCount:  total,
		}
	}

	succeeded, failed := 0, 0
	for i := range results {
		res := results[i]
		appt := &appointments[i]

		if !res.Success || res.EventID == "" {
			failed++
			c.logger.Warn("外部日历事件创建失败",
				zap.String("appointment_id", appt.AppointmentID),
				zap.String("reason", res.Message),
			)
			continue
		}

		eventID := res.EventID
		if err := c.repo.Appointment.SetExternalEventID(ctx, appt.AppointmentID, &eventID); err != nil {
			failed++
			c.logger.Error("写回外部事件引用失败",
				zap.String("appointment_id", appt.AppointmentID),
				zap.Error(err),
			)
			continue
		}
		appt.ExternalEventID = &eventID
		succeeded++
	}

	status := dto.SyncStatusResponse{
		Success:      failed == 0,
		SuccessCount: succeeded,
		FailedCount:  failed,
		TotalCount:   total,
	}
	if failed == 0 {
		status.Message = "全部预约已同步到外部日历"
	} else {
		status.Message = fmt.Sprintf("部分预约同步失败: %d/%d", failed, total)
	}
	return status
}

// SyncOne 同步单条预约：已持引用则更新外部事件，否则创建并写回引用
func (c *CalendarSyncCoordinator) SyncOne(ctx context.Context, appointment *model.Appointment) dto.SyncStatusResponse {
	if c.client == nil {
		return dto.SyncStatusResponse{Success: true, Message: "外部日历同步未启用", TotalCount: 1}
	}

	desc := eventDescriptionOf(appointment)

	// 幂等：重复同步只会更新既有事件，不会产生副本
	if appointment.ExternalEventID != nil {
		if err := c.client.UpdateEvent(ctx, *appointment.ExternalEventID, desc); err != nil {
			c.logger.Warn("外部日历事件更新失败",
				zap.String("appointment_id", appointment.AppointmentID),
				zap.String("event_id", *appointment.ExternalEventID),
				zap.Error(err),
			)
			return dto.SyncStatusResponse{
				Success:     false,
				Message:     fmt.Sprintf("外部日历更新失败: %v", err),
				FailedCount: 1,
				TotalCount:  1,
			}
		}
		return dto.SyncStatusResponse{
			Success:      true,
			Message:      "外部日历事件已更新",
			SuccessCount: 1,
			TotalCount:   1,
		}
	}

	eventID, err := c.client.CreateEvent(ctx, desc)
	if err != nil {
		c.logger.Warn("外部日历事件创建失败",
			zap.String("appointment_id", appointment.AppointmentID),
			zap.Error(err),
		)
		return dto.SyncStatusResponse{
			Success:     false,
			Message:     fmt.Sprintf("外部日历创建失败: %v", err),
			FailedCount: 1,
			TotalCount:  1,
		}
	}

	if err := c.repo.Appointment.SetExternalEventID(ctx, appointment.AppointmentID, &eventID); err != nil {
		c.logger.Error("写回外部事件引用失败",
			zap.String("appointment_id", appointment.AppointmentID),
			zap.Error(err),
		)
		return dto.SyncStatusResponse{
			Success:     false,
			Message:     "外部事件引用落库失败",
			FailedCount: 1,
			TotalCount:  1,
		}
	}

	appointment.ExternalEventID = &eventID
	return dto.SyncStatusResponse{
		Success:      true,
		Message:      "预约已同步到外部日历",
		SuccessCount: 1,
		TotalCount:   1,
	}
}

// RemoveExternal 尽力删除外部日历事件
// 失败仅体现在 SyncStatus 中：本系统的删除已经生效，外部残留由人工或后续重同步处理
func (c *CalendarSyncCoordinator) RemoveExternal(ctx context.Context, eventID string) dto.SyncStatusResponse {
	if c.client == nil {
		return dto.SyncStatusResponse{Success: true, Message: "外部日历同步未启用", TotalCount: 1}
	}

	if err := c.client.DeleteEvent(ctx, eventID); err != nil {
		c.logger.Warn("外部日历事件删除失败", zap.String("event_id", eventID), zap.Error(err))
		return dto.SyncStatusResponse{
			Success:     false,
			Message:     fmt.Sprintf("外部日历删除失败: %v", err),
			FailedCount: 1,
			TotalCount:  1,
		}
	}
	return dto.SyncStatusResponse{
		Success:      true,
		Message:      "外部日历事件已删除",
		SuccessCount: 1,
		TotalCount:   1,
	}
}

// eventDescriptionOf 构建预约对应的外部日历事件描述
func eventDescriptionOf(appointment *model.Appointment) calendar.EventDescription {
	return calendar.EventDescription{
		Title:       defaultEventTitle,
		Description: appointment.Notes,
		Start:       appointment.StartTime,
		End:         appointment.EndTime,
	}
}

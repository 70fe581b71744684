package service

import (
	"strings"
	"time"

	pkgerrors "coachfit/backend/pkg/errors"
)

// ── 时间区间工具 ──
//
// 所有比较采用半开区间 [start, end)：首尾相接的两个时段不构成冲突。

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// parseDate 解析日历日期，空或格式非法返回校验错误
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, pkgerrors.ErrInvalidTimeFormat
	}
	d, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, pkgerrors.ErrInvalidTimeFormat
	}
	return d, nil
}

// combineDateTime 合并日历日期与时刻为时间戳，秒与纳秒归零
// 日期为零值或时刻为空/非法时返回校验错误
func combineDateTime(day time.Time, clock string) (time.Time, error) {
	clock = strings.TrimSpace(clock)
	if day.IsZero() || clock == "" {
		return time.Time{}, pkgerrors.ErrInvalidTimeFormat
	}
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, pkgerrors.ErrInvalidTimeFormat
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// validateRange 校验结束时间严格晚于开始时间
func validateRange(start, end time.Time) error {
	if !end.After(start) {
		return pkgerrors.ErrInvalidRange
	}
	return nil
}

// intervalsOverlap 半开区间重叠判定：aStart < bEnd && aEnd > bStart
func intervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

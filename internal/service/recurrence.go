package service

import (
	"sort"
	"time"

	pkgerrors "coachfit/backend/pkg/errors"
)

// ── 周期展开 ──
//
// 规则语言仅支持"按周 + 星期几集合"：以锚点日期所在周（周日起算）为第 0 周，
// 对 0..weeksToRepeat 每一周，在选中的星期几上各产生一个日期。
// 第 0 周内早于锚点日期的命中会被丢弃——选中的星期几不会回头预约过去的日子。

// expandRecurrence 展开周期规则为升序去重的日期列表
//
// selectedWeekdays 为空时取锚点当天的星期（单值集合）；
// 展开结果为空视为调用方契约违例，快速失败而非静默成为空操作。
func expandRecurrence(anchor time.Time, selectedWeekdays []int, weeksToRepeat int) ([]time.Time, error) {
	if anchor.IsZero() {
		return nil, pkgerrors.ErrInvalidTimeFormat
	}

	// 归一化到当天零点，展开只在日期粒度进行
	anchorDay := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())

	weekdays := normalizeWeekdays(selectedWeekdays, anchorDay)

	// 锚点所在周的周日
	weekStart := anchorDay.AddDate(0, 0, -int(anchorDay.Weekday()))

	seen := make(map[string]bool)
	var dates []time.Time
	for week := 0; week <= weeksToRepeat; week++ {
		for _, wd := range weekdays {
			d := weekStart.AddDate(0, 0, week*7+wd)
			if d.Before(anchorDay) {
				continue
			}
			key := d.Format(dateLayout)
			if seen[key] {
				continue
			}
			seen[key] = true
			dates = append(dates, d)
		}
	}

	if len(dates) == 0 {
		return nil, pkgerrors.ErrEmptyRecurrence
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// normalizeWeekdays 去重并升序排列星期集合，空集合回退到锚点当天的星期
func normalizeWeekdays(selected []int, anchorDay time.Time) []int {
	set := make(map[int]bool)
	for _, wd := range selected {
		if wd >= 0 && wd <= 6 {
			set[wd] = true
		}
	}
	if len(set) == 0 {
		set[int(anchorDay.Weekday())] = true
	}

	weekdays := make([]int, 0, len(set))
	for wd := range set {
		weekdays = append(weekdays, wd)
	}
	sort.Ints(weekdays)
	return weekdays
}

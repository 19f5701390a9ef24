package service

import (
	"time"

	"github.com/timelog/internal/db"
)

const defaultWindowDays = 7

// StatsService 基于日记录窗口计算派生统计，所有指标均即时推导，不落库
type StatsService struct {
	days *DayLogService
}

// DayStat 描述窗口内单日的汇总
type DayStat struct {
	Date          time.Time
	EntryCount    int
	TotalDuration time.Duration
}

// WindowStats 汇总一个连续日期窗口的统计结果
// AverageDuration 的分母是窗口天数而非有记录的天数，零记录的日子同样计入，
// 反映的是持续跟踪程度而非"忙碌日均值"
type WindowStats struct {
	Start             time.Time
	End               time.Time
	Days              []DayStat
	TotalDuration     time.Duration
	TotalEntries      int
	ManualCount       int
	SyncedCount       int
	AverageDuration   time.Duration
	MostProductiveDay *time.Time
}

// NewStatsService 构造 StatsService
func NewStatsService(days *DayLogService) *StatsService {
	return &StatsService{days: days}
}

// Window 计算以 end 为最后一天、向前共 days 天的窗口统计。
// days 不合法时回退到默认的 7 天。
func (s *StatsService) Window(userID uint, end time.Time, days int) (*WindowStats, error) {
	if days <= 0 {
		days = defaultWindowDays
	}

	window, err := s.days.ListWindow(userID, end, days)
	if err != nil {
		return nil, err
	}

	return aggregateWindow(window), nil
}

// aggregateWindow 对已取出的窗口做纯计算聚合。
// 最高产日取单日总时长最大者，并列时取日期最早的；窗口全空时为 nil。
func aggregateWindow(window []db.DayLog) *WindowStats {
	stats := &WindowStats{Days: make([]DayStat, 0, len(window))}
	if len(window) == 0 {
		return stats
	}

	stats.Start = window[0].LogDate
	stats.End = window[len(window)-1].LogDate

	var best *DayStat
	for _, record := range window {
		day := DayStat{Date: record.LogDate, EntryCount: len(record.Intervals)}

		for _, interval := range record.Intervals {
			day.TotalDuration += interval.Duration()
			switch interval.Kind {
			case db.KindSynced:
				stats.SyncedCount++
			default:
				stats.ManualCount++
			}
		}

		stats.TotalDuration += day.TotalDuration
		stats.TotalEntries += day.EntryCount
		stats.Days = append(stats.Days, day)

		if day.TotalDuration > 0 && (best == nil || day.TotalDuration > best.TotalDuration) {
			copied := day
			best = &copied
		}
	}

	stats.AverageDuration = stats.TotalDuration / time.Duration(len(window))

	if best != nil {
		date := best.Date
		stats.MostProductiveDay = &date
	}

	return stats
}

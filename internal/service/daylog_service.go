package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timelog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrIntervalInvalid 在时间段字段校验失败时返回
	ErrIntervalInvalid = errors.New("invalid interval")
	// ErrIntervalNotFound 在编辑目标不存在或不可编辑时返回
	ErrIntervalNotFound = errors.New("interval not found")
)

// DayLogService 负责按用户、按天维护时间段记录
// 每个 (user_id, log_date) 至多一条记录，由存储层唯一索引保证；
// 所有写路径都先基于最新读取计算完整的下一状态，再整组替换落库
type DayLogService struct {
	db *gorm.DB
}

// NewDayLogService 构造 DayLogService
func NewDayLogService(gdb *gorm.DB) *DayLogService {
	return &DayLogService{db: gdb}
}

// GetDay 返回指定日期的记录；不存在时合成一条空记录，不落库
func (s *DayLogService) GetDay(userID uint, date time.Time) (*db.DayLog, error) {
	logDate := normalizeToDate(date)

	var record db.DayLog
	err := s.db.Where("user_id = ? AND log_date = ?", userID, logDate).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &db.DayLog{UserID: userID, LogDate: logDate, Intervals: db.IntervalList{}}, nil
		}
		return nil, fmt.Errorf("get day log: %w", err)
	}

	record.Intervals = db.IntervalList(sortIntervals(record.Intervals))
	return &record, nil
}

// UpsertDay 以整组替换的方式写入当天的全部时间段，不存在时创建。
// 唯一索引上的 ON CONFLICT 保证并发写同一天不会产生两条记录。
func (s *DayLogService) UpsertDay(userID uint, date time.Time, intervals []db.Interval) (*db.DayLog, error) {
	logDate := normalizeToDate(date)

	record := db.DayLog{
		UserID:    userID,
		LogDate:   logDate,
		Intervals: db.IntervalList(sortIntervals(intervals)),
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "log_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"intervals", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("upsert day log: %w", err)
	}

	if err := s.db.Where("user_id = ? AND log_date = ?", userID, logDate).First(&record).Error; err != nil {
		return nil, fmt.Errorf("reload day log: %w", err)
	}

	return &record, nil
}

// DeleteDay 删除指定日期的记录，记录不存在时也视为成功
func (s *DayLogService) DeleteDay(userID uint, date time.Time) error {
	logDate := normalizeToDate(date)

	if err := s.db.Unscoped().
		Where("user_id = ? AND log_date = ?", userID, logDate).
		Delete(&db.DayLog{}).Error; err != nil {
		return fmt.Errorf("delete day log: %w", err)
	}

	return nil
}

// MaxWindowDays 是单次窗口查询允许的最大天数
const MaxWindowDays = 366

// ListWindow 返回以 end 为最后一天、向前共 days 天的连续记录序列，
// 没有记录的日期以空记录占位，供统计使用。
// days 必须在 [1, MaxWindowDays] 内，窗口按天数预分配占位记录。
func (s *DayLogService) ListWindow(userID uint, end time.Time, days int) ([]db.DayLog, error) {
	if days <= 0 || days > MaxWindowDays {
		return nil, fmt.Errorf("window size out of range: %d", days)
	}

	endDate := normalizeToDate(end)
	startDate := endDate.AddDate(0, 0, -(days - 1))

	var records []db.DayLog
	if err := s.db.Where("user_id = ?", userID).
		Where("log_date BETWEEN ? AND ?", startDate, endDate).
		Order("log_date ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list day logs: %w", err)
	}

	byDate := make(map[string]db.DayLog, len(records))
	for _, record := range records {
		byDate[record.LogDate.Format("2006-01-02")] = record
	}

	window := make([]db.DayLog, 0, days)
	for i := 0; i < days; i++ {
		date := startDate.AddDate(0, 0, i)
		if record, ok := byDate[date.Format("2006-01-02")]; ok {
			record.Intervals = db.IntervalList(sortIntervals(record.Intervals))
			window = append(window, record)
		} else {
			window = append(window, db.DayLog{UserID: userID, LogDate: date, Intervals: db.IntervalList{}})
		}
	}

	return window, nil
}

// AddManualInterval 校验并追加一条手工时间段，失败时不产生任何状态变化
func (s *DayLogService) AddManualInterval(userID uint, date time.Time, input IntervalInput) (*db.DayLog, error) {
	interval, err := buildManualInterval(input)
	if err != nil {
		return nil, err
	}

	current, err := s.GetDay(userID, date)
	if err != nil {
		return nil, err
	}

	next := append(cloneIntervals(current.Intervals), interval)
	return s.UpsertDay(userID, date, next)
}

// EditManualInterval 按 ID 编辑手工时间段。
// 目标不存在或不是手工录入的（同步段只能被整体重放）返回 ErrIntervalNotFound。
func (s *DayLogService) EditManualInterval(userID uint, date time.Time, intervalID string, patch IntervalPatch) (*db.DayLog, error) {
	current, err := s.GetDay(userID, date)
	if err != nil {
		return nil, err
	}

	next := cloneIntervals(current.Intervals)
	found := false
	for i, interval := range next {
		if interval.ID != intervalID {
			continue
		}
		if interval.Kind != db.KindManual {
			return nil, fmt.Errorf("%w: synced intervals are not editable", ErrIntervalNotFound)
		}

		merged, err := applyIntervalPatch(interval, patch)
		if err != nil {
			return nil, err
		}

		next[i] = merged
		found = true
		break
	}

	if !found {
		return nil, ErrIntervalNotFound
	}

	return s.UpsertDay(userID, date, next)
}

// RemoveInterval 按 ID 删除时间段，手工与同步段均可删除；
// ID 不存在时视为成功的空操作（同步段删除后直到下次同步前不会恢复）
func (s *DayLogService) RemoveInterval(userID uint, date time.Time, intervalID string) (*db.DayLog, error) {
	current, err := s.GetDay(userID, date)
	if err != nil {
		return nil, err
	}

	next := make([]db.Interval, 0, len(current.Intervals))
	removed := false
	for _, interval := range current.Intervals {
		if interval.ID == intervalID {
			removed = true
			continue
		}
		next = append(next, interval)
	}

	if !removed {
		return current, nil
	}

	return s.UpsertDay(userID, date, next)
}

// SyncFromExternal 用外部日历的最新批次重放当天的同步段：
// 保留全部手工段，丢弃旧的同步段，为新批次分配全新内部 ID 后整组落库。
// 同一批次重复执行结果一致；批次获取失败时调用方不应进入此方法。
func (s *DayLogService) SyncFromExternal(userID uint, date time.Time, batch []SyncedInterval) (int, *db.DayLog, error) {
	fresh := make([]db.Interval, 0, len(batch))
	for _, item := range batch {
		interval, err := item.toInterval()
		if err != nil {
			return 0, nil, err
		}
		fresh = append(fresh, interval)
	}

	current, err := s.GetDay(userID, date)
	if err != nil {
		return 0, nil, err
	}

	next := make([]db.Interval, 0, len(current.Intervals)+len(fresh))
	for _, interval := range current.Intervals {
		if interval.Kind == db.KindManual {
			next = append(next, interval)
		}
	}
	next = append(next, fresh...)

	record, err := s.UpsertDay(userID, date, next)
	if err != nil {
		return 0, nil, err
	}

	return len(fresh), record, nil
}

// SyncedInterval 是外部日历收集器交来的单条事件，
// SourceID 为外部事件的 UID
type SyncedInterval struct {
	SourceID    string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

func (s SyncedInterval) toInterval() (db.Interval, error) {
	title := sanitizeText(s.Title)
	if title == "" {
		return db.Interval{}, fmt.Errorf("%w: title is required", ErrIntervalInvalid)
	}
	if !s.End.After(s.Start) {
		return db.Interval{}, fmt.Errorf("%w: end must be after start", ErrIntervalInvalid)
	}

	return db.Interval{
		ID:          uuid.NewString(),
		Kind:        db.KindSynced,
		Title:       title,
		Description: sanitizeText(s.Description),
		Start:       s.Start,
		End:         s.End,
		SourceID:    s.SourceID,
	}, nil
}

func normalizeToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func cloneIntervals(list db.IntervalList) []db.Interval {
	copied := make([]db.Interval, len(list))
	copy(copied, list)
	return copied
}

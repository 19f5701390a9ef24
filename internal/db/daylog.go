package db

import (
	"time"

	"gorm.io/gorm"
)

// Interval 的来源类型：manual 为手工录入，synced 为外部日历同步
const (
	KindManual = "manual"
	KindSynced = "synced"
)

// Interval 表示一天内的一段活动时间
// Start/End 为带时区的时间点；SourceID 仅在 Kind 为 synced 时存在，
// 记录外部事件的 UID，作为下一次同步的幂等键（内部 ID 不复用它）
type Interval struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	SourceID    string    `json:"source_id,omitempty"`
}

// Duration 返回该时间段的时长
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// IntervalList 以 JSON 文档整体序列化到 day_logs 的 intervals 列，
// 配合唯一索引实现"整组替换"的原子 upsert
type IntervalList []Interval

// DayLog 记录某个用户某一天的全部时间段
// UserID + LogDate 采用唯一索引，保证每人每天至多一条记录；
// 时间段允许跨越当天边界（跨午夜的外部事件原样保留，不做拆分）
type DayLog struct {
	gorm.Model
	UserID    uint         `gorm:"index;index:idx_day_log_unique,unique"`
	LogDate   time.Time    `gorm:"index:idx_day_log_unique,unique"`
	Intervals IntervalList `gorm:"serializer:json"`
}

// TableName 重写确保唯一索引作用到 user_id + log_date
func (DayLog) TableName() string {
	return "day_logs"
}

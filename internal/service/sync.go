package service

import (
	"github.com/timelog/internal/calendar"
)

// SyncedBatch 把日历收集器交来的事件批次转换为同步输入
func SyncedBatch(events []calendar.Event) []SyncedInterval {
	batch := make([]SyncedInterval, 0, len(events))
	for _, event := range events {
		batch = append(batch, SyncedInterval{
			SourceID:    event.SourceID,
			Title:       event.Title,
			Description: event.Description,
			Start:       event.Start,
			End:         event.End,
		})
	}
	return batch
}

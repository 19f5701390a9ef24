package calendar

import (
	"bytes"
	"errors"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Event 是外部日历事件的内部归一化表示，与具体日历提供方无关
// SourceID 取自 VEVENT 的 UID，是跨次同步的幂等键
type Event struct {
	SourceID    string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// ParseFeed 解析一份 ICS 订阅内容。
// 缺少 UID、标题或起止时间不合法的事件会被跳过，不影响其他事件。
func ParseFeed(body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty feed body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0)
	for _, ve := range cal.Events() {
		event, ok := parseVEvent(ve)
		if !ok {
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

func parseVEvent(ve *ical.VEvent) (Event, bool) {
	var out Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, false
	}
	out.SourceID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if out.Title == "" {
		return out, false
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	// 时区逻辑交给库的辅助方法处理
	start, err := ve.GetStartAt()
	if err != nil {
		return out, false
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, false
	}
	if !end.After(start) {
		return out, false
	}

	out.Start = start
	out.End = end
	return out, true
}

// EventsForDay 过滤出与指定日历日有交集的事件。
// 跨午夜的事件整条保留，不做拆分。
func EventsForDay(events []Event, day time.Time) []Event {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	matched := make([]Event, 0, len(events))
	for _, event := range events {
		if event.Start.Before(dayEnd) && event.End.After(dayStart) {
			matched = append(matched, event)
		}
	}

	return matched
}

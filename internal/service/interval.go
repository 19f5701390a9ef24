package service

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/timelog/internal/db"
)

// 用户输入的标题/描述会直接呈现在页面上，统一用严格策略清洗
var textPolicy = bluemonday.StrictPolicy()

// IntervalInput 定义手工录入时间段时的输入对象
// Start/End 为 RFC3339 格式的时间字符串
type IntervalInput struct {
	Title       string
	Description string
	Start       string
	End         string
}

// IntervalPatch 描述编辑时间段时的部分更新，nil 字段保持原值
type IntervalPatch struct {
	Title       *string
	Description *string
	Start       *string
	End         *string
}

// buildManualInterval 校验输入并构造一个手工时间段，分配新的内部 ID
func buildManualInterval(input IntervalInput) (db.Interval, error) {
	start, end, err := parseIntervalTimes(input.Start, input.End)
	if err != nil {
		return db.Interval{}, err
	}

	title := sanitizeText(input.Title)
	if title == "" {
		return db.Interval{}, fmt.Errorf("%w: title is required", ErrIntervalInvalid)
	}

	return db.Interval{
		ID:          uuid.NewString(),
		Kind:        db.KindManual,
		Title:       title,
		Description: sanitizeText(input.Description),
		Start:       start,
		End:         end,
	}, nil
}

// applyIntervalPatch 将部分更新合并到现有时间段后重新校验
func applyIntervalPatch(existing db.Interval, patch IntervalPatch) (db.Interval, error) {
	input := IntervalInput{
		Title:       existing.Title,
		Description: existing.Description,
		Start:       existing.Start.Format(time.RFC3339Nano),
		End:         existing.End.Format(time.RFC3339Nano),
	}

	if patch.Title != nil {
		input.Title = *patch.Title
	}
	if patch.Description != nil {
		input.Description = *patch.Description
	}
	if patch.Start != nil {
		input.Start = *patch.Start
	}
	if patch.End != nil {
		input.End = *patch.End
	}

	merged, err := buildManualInterval(input)
	if err != nil {
		return db.Interval{}, err
	}

	// 编辑不更换内部 ID
	merged.ID = existing.ID
	return merged, nil
}

func parseIntervalTimes(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(startStr))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid start time", ErrIntervalInvalid)
	}

	end, err := time.Parse(time.RFC3339, strings.TrimSpace(endStr))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid end time", ErrIntervalInvalid)
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end must be after start", ErrIntervalInvalid)
	}

	return start, end, nil
}

func sanitizeText(value string) string {
	return strings.TrimSpace(textPolicy.Sanitize(value))
}

// sortIntervals 返回按开始时间升序的稳定排序副本；
// 开始时间相同的保持插入顺序，保证同一输入多次排序结果一致
func sortIntervals(intervals []db.Interval) []db.Interval {
	sorted := slices.Clone(intervals)
	slices.SortStableFunc(sorted, func(a, b db.Interval) int {
		return a.Start.Compare(b.Start)
	})
	return sorted
}

package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timelog/internal/calendar"
	"github.com/timelog/internal/db"
	"github.com/timelog/internal/logger"
	"github.com/timelog/internal/service"
)

type intervalPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

type intervalPatchPayload struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Start       *string `json:"start"`
	End         *string `json:"end"`
}

// GetDay 返回指定日期的完整记录，未记录的日期返回空的时间段列表
func (a *API) GetDay(c *gin.Context) {
	userID, date, ok := a.dayRequest(c)
	if !ok {
		return
	}

	record, err := a.days.GetDay(userID, date)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取日志失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"day": dayToPayload(record)})
}

// GetWindow 返回以 end（默认今天）为最后一天的连续日期窗口
func (a *API) GetWindow(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > service.MaxWindowDays {
			respondError(c, http.StatusBadRequest, "无效的窗口天数")
			return
		}
		days = parsed
	}

	end := time.Now().In(time.Local)
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.ParseInLocation(dateFormat, raw, time.Local)
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的结束日期")
			return
		}
		end = parsed
	}

	window, err := a.days.ListWindow(userID, end, days)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取窗口数据失败")
		return
	}

	items := make([]gin.H, 0, len(window))
	for i := range window {
		items = append(items, dayToPayload(&window[i]))
	}

	c.JSON(http.StatusOK, gin.H{"days": items})
}

// AddInterval 为指定日期追加一条手工时间段
func (a *API) AddInterval(c *gin.Context) {
	userID, date, ok := a.dayRequest(c)
	if !ok {
		return
	}

	var payload intervalPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	record, err := a.days.AddManualInterval(userID, date, service.IntervalInput{
		Title:       payload.Title,
		Description: payload.Description,
		Start:       payload.Start,
		End:         payload.End,
	})
	if err != nil {
		handleDayLogError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"day": dayToPayload(record)})
}

// UpdateInterval 编辑手工时间段，缺省字段保持原值
func (a *API) UpdateInterval(c *gin.Context) {
	userID, date, ok := a.dayRequest(c)
	if !ok {
		return
	}

	var payload intervalPatchPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	record, err := a.days.EditManualInterval(userID, date, c.Param("intervalId"), service.IntervalPatch{
		Title:       payload.Title,
		Description: payload.Description,
		Start:       payload.Start,
		End:         payload.End,
	})
	if err != nil {
		handleDayLogError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"day": dayToPayload(record)})
}

// DeleteInterval 按 ID 删除时间段，重复删除同一 ID 也返回成功
func (a *API) DeleteInterval(c *gin.Context) {
	userID, date, ok := a.dayRequest(c)
	if !ok {
		return
	}

	record, err := a.days.RemoveInterval(userID, date, c.Param("intervalId"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "删除时间段失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"day": dayToPayload(record)})
}

// SyncDay 拉取绑定的日历订阅并重放指定日期的同步批次。
// 拉取失败时不做任何写入，返回 502 以便前端区分"没有可同步内容"和"同步失败"。
func (a *API) SyncDay(c *gin.Context) {
	userID, date, ok := a.dayRequest(c)
	if !ok {
		return
	}

	var user db.User
	if err := a.db.First(&user, userID).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "加载用户失败")
		return
	}

	if user.CalendarFeedURL == "" {
		respondError(c, http.StatusBadRequest, "尚未绑定日历订阅")
		return
	}

	events, err := a.feeds.FetchDay(c.Request.Context(), user.CalendarFeedURL, date)
	if err != nil {
		if errors.Is(err, calendar.ErrFeedUnavailable) {
			respondError(c, http.StatusBadGateway, "日历同步失败")
			return
		}
		respondError(c, http.StatusInternalServerError, "日历同步失败")
		return
	}

	added, record, err := a.days.SyncFromExternal(userID, date, service.SyncedBatch(events))
	if err != nil {
		handleDayLogError(c, err)
		return
	}

	a.log.Info("manual sync completed",
		logger.Uint("user_id", userID),
		logger.Time("day", date),
		logger.Int("entries_added", added))

	c.JSON(http.StatusOK, gin.H{"entries_added": added, "day": dayToPayload(record)})
}

// DeleteDay 删除指定日期的整条记录
func (a *API) DeleteDay(c *gin.Context) {
	userID, date, ok := a.dayRequest(c)
	if !ok {
		return
	}

	if err := a.days.DeleteDay(userID, date); err != nil {
		respondError(c, http.StatusInternalServerError, "删除日志失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// dayRequest 提取会话用户与路径日期，失败时已写入响应
func (a *API) dayRequest(c *gin.Context) (uint, time.Time, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return 0, time.Time{}, false
	}

	date, err := parseDateParam(c, "date")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日期")
		return 0, time.Time{}, false
	}

	return userID, date, true
}

func dayToPayload(record *db.DayLog) gin.H {
	intervals := make([]gin.H, 0, len(record.Intervals))
	for _, interval := range record.Intervals {
		intervals = append(intervals, intervalToPayload(interval))
	}

	return gin.H{
		"date":      record.LogDate.Format(dateFormat),
		"intervals": intervals,
	}
}

func intervalToPayload(interval db.Interval) gin.H {
	item := gin.H{
		"id":               interval.ID,
		"kind":             interval.Kind,
		"title":            interval.Title,
		"description":      interval.Description,
		"start":            interval.Start.Format(time.RFC3339),
		"end":              interval.End.Format(time.RFC3339),
		"duration_seconds": int64(interval.Duration().Seconds()),
	}

	if interval.SourceID != "" {
		item["source_id"] = interval.SourceID
	}

	return item
}

func handleDayLogError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrIntervalInvalid):
		respondError(c, http.StatusBadRequest, "时间段数据不合法")
	case errors.Is(err, service.ErrIntervalNotFound):
		respondError(c, http.StatusNotFound, "时间段不存在")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}

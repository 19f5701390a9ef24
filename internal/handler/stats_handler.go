package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timelog/internal/service"
)

// GetStats 返回滚动窗口的聚合统计，默认最近 7 天
func (a *API) GetStats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	days := 0
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

	stats, err := a.stats.Window(userID, end, days)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "计算统计信息失败")
		return
	}

	c.JSON(http.StatusOK, serializeWindowStats(stats))
}

func serializeWindowStats(stats *service.WindowStats) gin.H {
	days := make([]gin.H, 0, len(stats.Days))
	for _, day := range stats.Days {
		days = append(days, gin.H{
			"date":             day.Date.Format(dateFormat),
			"entry_count":      day.EntryCount,
			"duration_seconds": int64(day.TotalDuration.Seconds()),
		})
	}

	payload := gin.H{
		"range": gin.H{
			"start": stats.Start.Format(dateFormat),
			"end":   stats.End.Format(dateFormat),
		},
		"days":                     days,
		"total_entries":            stats.TotalEntries,
		"manual_count":             stats.ManualCount,
		"synced_count":             stats.SyncedCount,
		"total_duration_seconds":   int64(stats.TotalDuration.Seconds()),
		"average_duration_seconds": int64(stats.AverageDuration.Seconds()),
	}

	if stats.MostProductiveDay != nil {
		payload["most_productive_day"] = stats.MostProductiveDay.Format(dateFormat)
	}

	return payload
}

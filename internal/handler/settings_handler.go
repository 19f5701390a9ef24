package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timelog/internal/db"
)

// GetCalendarSettings 返回当前用户的日历订阅配置
func (a *API) GetCalendarSettings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	var user db.User
	if err := a.db.First(&user, userID).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "加载用户失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"feed_url": user.CalendarFeedURL})
}

// UpdateCalendarSettings 更新当前用户的日历订阅地址，空地址表示解绑
func (a *API) UpdateCalendarSettings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	var payload struct {
		FeedURL string `json:"feed_url"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	feedURL := strings.TrimSpace(payload.FeedURL)
	if feedURL != "" {
		parsed, err := url.Parse(feedURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			respondError(c, http.StatusBadRequest, "无效的订阅地址")
			return
		}
	}

	if err := a.db.Model(&db.User{}).Where("id = ?", userID).
		Update("calendar_feed_url", feedURL).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "保存订阅地址失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"feed_url": feedURL})
}

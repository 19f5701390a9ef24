package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const dateFormat = "2006-01-02"

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// parseDateParam 解析路径中的日历日参数（2006-01-02），按本地时区理解
func parseDateParam(c *gin.Context, key string) (time.Time, error) {
	raw := strings.TrimSpace(c.Param(key))
	date, err := time.ParseInLocation(dateFormat, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s", key)
	}
	return date, nil
}

// currentUserID 返回会话中已解析的用户 ID，核心逻辑只信任这个值
func currentUserID(c *gin.Context) (uint, bool) {
	session := sessions.Default(c)
	raw := session.Get("user_id")
	if raw == nil {
		return 0, false
	}

	id, ok := raw.(uint)
	if !ok {
		return 0, false
	}

	return id, true
}

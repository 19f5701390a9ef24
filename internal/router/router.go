package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/timelog/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	r.Use(sessions.Sessions("timelog_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	r.POST("/api/login", handler.Login)
	r.GET("/api/logout", handler.Logout)

	// 需要认证的 API 路由
	auth := r.Group("/api")
	auth.Use(handler.AuthRequired())
	{
		auth.GET("/window", api.GetWindow)
		auth.GET("/stats", api.GetStats)

		auth.GET("/days/:date", api.GetDay)
		auth.DELETE("/days/:date", api.DeleteDay)
		auth.POST("/days/:date/sync", api.SyncDay)

		auth.POST("/days/:date/intervals", api.AddInterval)
		auth.PUT("/days/:date/intervals/:intervalId", api.UpdateInterval)
		auth.DELETE("/days/:date/intervals/:intervalId", api.DeleteInterval)

		auth.GET("/settings/calendar", api.GetCalendarSettings)
		auth.PUT("/settings/calendar", api.UpdateCalendarSettings)
	}

	return r
}

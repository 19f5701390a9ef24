package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/timelog/internal/calendar"
	"github.com/timelog/internal/config"
	"github.com/timelog/internal/db"
	"github.com/timelog/internal/handler"
	"github.com/timelog/internal/logger"
	"github.com/timelog/internal/router"
	"github.com/timelog/internal/scheduler"
)

func main() {
	cfg := config.Load()

	appLog := logger.New(cfg.LogLevel, cfg.LogPretty)
	defer appLog.Sync()

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// 按需创建初始账号
	if err := db.EnsureUser(cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
		log.Fatalf("failed to ensure root user: %v", err)
	}

	feeds := calendar.NewClient(appLog)
	api := handler.NewAPI(db.DB, feeds, appLog)

	// 后台定时同步日历订阅
	autoSync := scheduler.NewAutoSync(db.DB, api.Days(), feeds, appLog)
	if err := autoSync.Start(cfg.SyncSchedule); err != nil {
		log.Fatalf("failed to start auto sync: %v", err)
	}
	defer autoSync.Stop()

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api, cfg.SessionSecret)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}

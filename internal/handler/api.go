package handler

import (
	"github.com/timelog/internal/calendar"
	"github.com/timelog/internal/logger"
	"github.com/timelog/internal/service"
	"gorm.io/gorm"
)

// API 聚合各 HTTP 处理器共享的依赖
type API struct {
	db    *gorm.DB
	days  *service.DayLogService
	stats *service.StatsService
	feeds *calendar.Client
	log   logger.Logger
}

// NewAPI 构造处理器集合并装配共享服务
func NewAPI(db *gorm.DB, feeds *calendar.Client, log logger.Logger) *API {
	dayService := service.NewDayLogService(db)

	return &API{
		db:    db,
		days:  dayService,
		stats: service.NewStatsService(dayService),
		feeds: feeds,
		log:   log,
	}
}

// Days 暴露日志服务，供后台调度器复用
func (a *API) Days() *service.DayLogService {
	return a.days
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/timelog/internal/calendar"
	"github.com/timelog/internal/db"
	"github.com/timelog/internal/logger"
	"github.com/timelog/internal/service"
	"gorm.io/gorm"
)

// AutoSync 周期性地为所有绑定了日历订阅的用户重放当天的同步批次。
// 单个用户失败只记录日志，不影响其他用户，也不会中断调度。
type AutoSync struct {
	cron  *cron.Cron
	db    *gorm.DB
	days  *service.DayLogService
	feeds *calendar.Client
	log   logger.Logger
}

// NewAutoSync 构造 AutoSync
func NewAutoSync(gdb *gorm.DB, days *service.DayLogService, feeds *calendar.Client, log logger.Logger) *AutoSync {
	return &AutoSync{
		cron:  cron.New(),
		db:    gdb,
		days:  days,
		feeds: feeds,
		log:   log,
	}
}

// Start 按 cron 表达式（如 "@every 30m"）注册并启动定时同步
func (a *AutoSync) Start(spec string) error {
	if _, err := a.cron.AddFunc(spec, func() {
		a.RunOnce(context.Background(), time.Now())
	}); err != nil {
		return fmt.Errorf("register auto sync job: %w", err)
	}

	a.cron.Start()
	a.log.Info("auto sync scheduler started", logger.String("spec", spec))
	return nil
}

// Stop 停止调度，等待进行中的任务结束
func (a *AutoSync) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
}

// RunOnce 立即为全部绑定订阅的用户同步指定日期
func (a *AutoSync) RunOnce(ctx context.Context, day time.Time) {
	var users []db.User
	if err := a.db.Where("calendar_feed_url <> ''").Find(&users).Error; err != nil {
		a.log.Error("list users for auto sync failed", logger.Error(err))
		return
	}

	for _, user := range users {
		events, err := a.feeds.FetchDay(ctx, user.CalendarFeedURL, day)
		if err != nil {
			// 获取失败时不做任何写入，当天记录保持原样
			a.log.Error("auto sync fetch failed", logger.Uint("user_id", user.ID), logger.Error(err))
			continue
		}

		added, _, err := a.days.SyncFromExternal(user.ID, day, service.SyncedBatch(events))
		if err != nil {
			a.log.Error("auto sync apply failed", logger.Uint("user_id", user.ID), logger.Error(err))
			continue
		}

		a.log.Info("auto sync completed",
			logger.Uint("user_id", user.ID),
			logger.Time("day", day),
			logger.Int("entries_added", added))
	}
}

package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/timelog/internal/logger"
)

// ErrFeedUnavailable 在订阅内容获取或解析失败时返回。
// 调用方收到该错误时不应写入任何状态，当天记录保持原样。
var ErrFeedUnavailable = errors.New("calendar feed unavailable")

const fetchTimeout = 15 * time.Second

// Client 负责拉取 ICS 订阅并产出指定日期的完整事件批次
type Client struct {
	client *http.Client
	log    logger.Logger
}

// NewClient 构造 Client
func NewClient(log logger.Logger) *Client {
	return &Client{
		client: &http.Client{Timeout: fetchTimeout},
		log:    log,
	}
}

// FetchDay 拉取整份订阅并过滤出与 day 有交集的事件。
// 任何网络、状态码或解析失败都归一为 ErrFeedUnavailable，不返回部分批次。
func (c *Client) FetchDay(ctx context.Context, feedURL string, day time.Time) ([]Event, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, fmt.Errorf("%w: feed url is empty", ErrFeedUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error("calendar feed fetch failed", logger.String("url", redactURL(feedURL)), logger.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error("calendar feed returned non-OK status",
			logger.String("url", redactURL(feedURL)), logger.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: %s", ErrFeedUnavailable, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	events, err := ParseFeed(body)
	if err != nil {
		c.log.Error("calendar feed parse failed", logger.String("url", redactURL(feedURL)), logger.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	batch := EventsForDay(events, day)
	c.log.Info("calendar feed fetched",
		logger.String("url", redactURL(feedURL)),
		logger.Time("day", day),
		logger.Int("event_count", len(batch)))

	return batch, nil
}

// redactURL 隐去订阅地址中可能含有私密令牌的路径与查询串，仅保留主机部分
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i == -1 {
		return "ics://...(redacted)"
	}

	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j != -1 {
		rest = rest[:j]
	}

	return u[:i+3] + rest + "/...(redacted)"
}

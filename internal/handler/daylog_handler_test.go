package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/timelog/internal/calendar"
	"github.com/timelog/internal/db"
	applogger "github.com/timelog/internal/logger"
	"github.com/timelog/internal/service"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testLog = applogger.New("error", false)

func setupTestDB(t *testing.T) (*API, func()) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.User{}, &db.DayLog{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb
	api := NewAPI(gdb, calendar.NewClient(testLog), testLog)

	return api, func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

// newTestRouter 构造带会话中间件的测试路由；userID 非零时注入已登录用户
func newTestRouter(api *API, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(sessions.Sessions("timelog_session", cookie.NewStore([]byte("test-secret"))))
	if userID != 0 {
		r.Use(func(c *gin.Context) {
			session := sessions.Default(c)
			session.Set("user_id", userID)
			c.Next()
		})
	}

	auth := r.Group("/api")
	auth.Use(AuthRequired())
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

func doJSON(t *testing.T, r *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func dayIntervals(t *testing.T, body map[string]any) []any {
	t.Helper()

	day, ok := body["day"].(map[string]any)
	if !ok {
		t.Fatalf("expected day object in response: %v", body)
	}
	intervals, ok := day["intervals"].([]any)
	if !ok {
		t.Fatalf("expected intervals array in response: %v", body)
	}
	return intervals
}

func TestAddIntervalAndGetDay(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	r := newTestRouter(api, 1)

	w := doJSON(t, r, http.MethodPost, "/api/days/2024-05-01/intervals", map[string]any{
		"title": "晨会",
		"start": "2024-05-01T09:00:00Z",
		"end":   "2024-05-01T09:15:00Z",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/days/2024-05-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	intervals := dayIntervals(t, decodeBody(t, w))
	if len(intervals) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(intervals))
	}

	first := intervals[0].(map[string]any)
	if first["kind"] != db.KindManual {
		t.Fatalf("expected kind manual, got %v", first["kind"])
	}
	if first["duration_seconds"] != float64(15*60) {
		t.Fatalf("unexpected duration: %v", first["duration_seconds"])
	}
}

func TestAddIntervalValidation(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	r := newTestRouter(api, 1)

	w := doJSON(t, r, http.MethodPost, "/api/days/2024-05-01/intervals", map[string]any{
		"title": "会议",
		"start": "2024-01-01T10:00:00Z",
		"end":   "2024-01-01T09:00:00Z",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestInvalidDateParam(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	r := newTestRouter(api, 1)

	w := doJSON(t, r, http.MethodGet, "/api/days/not-a-date", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestUpdateIntervalNotFound(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	r := newTestRouter(api, 1)

	w := doJSON(t, r, http.MethodPut, "/api/days/2024-05-01/intervals/missing", map[string]any{
		"title": "改名",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestDeleteIntervalIdempotent(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	r := newTestRouter(api, 1)

	w := doJSON(t, r, http.MethodPost, "/api/days/2024-05-01/intervals", map[string]any{
		"title": "晨会",
		"start": "2024-05-01T09:00:00Z",
		"end":   "2024-05-01T09:15:00Z",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	intervals := dayIntervals(t, decodeBody(t, w))
	intervalID := intervals[0].(map[string]any)["id"].(string)

	w = doJSON(t, r, http.MethodDelete, "/api/days/2024-05-01/intervals/"+intervalID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	// 重复删除同一 ID 仍然成功
	w = doJSON(t, r, http.MethodDelete, "/api/days/2024-05-01/intervals/"+intervalID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected repeated delete to succeed, got %d", w.Code)
	}
	if len(dayIntervals(t, decodeBody(t, w))) != 0 {
		t.Fatal("expected no intervals left")
	}
}

func TestRequiresLogin(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	r := newTestRouter(api, 0)

	w := doJSON(t, r, http.MethodGet, "/api/days/2024-05-01", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestSyncWithoutFeedBinding(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	user := db.User{Username: "tester", Password: "x"}
	if err := db.DB.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	r := newTestRouter(api, user.ID)

	w := doJSON(t, r, http.MethodPost, "/api/days/2024-05-01/sync", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestSyncFeedUnavailable(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	user := db.User{Username: "tester", Password: "x", CalendarFeedURL: upstream.URL}
	if err := db.DB.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	r := newTestRouter(api, user.ID)

	// 先写入一条手工记录，确认同步失败时不会被动到
	w := doJSON(t, r, http.MethodPost, "/api/days/2024-05-01/intervals", map[string]any{
		"title": "晨会",
		"start": "2024-05-01T09:00:00Z",
		"end":   "2024-05-01T09:15:00Z",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/days/2024-05-01/sync", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/days/2024-05-01", nil)
	if len(dayIntervals(t, decodeBody(t, w))) != 1 {
		t.Fatal("expected the day to be left untouched after a failed sync")
	}
}

func TestSyncFromFeed(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.Local)
	eventStart := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local).UTC()
	eventEnd := eventStart.Add(time.Hour)

	feed := fmt.Sprintf("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//timelog//test//EN\r\n"+
		"BEGIN:VEVENT\r\nUID:g1\r\nSUMMARY:项目会议\r\nDTSTART:%s\r\nDTEND:%s\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
		eventStart.Format("20060102T150405Z"), eventEnd.Format("20060102T150405Z"))

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		fmt.Fprint(w, feed)
	}))
	defer upstream.Close()

	user := db.User{Username: "tester", Password: "x", CalendarFeedURL: upstream.URL}
	if err := db.DB.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	r := newTestRouter(api, user.ID)

	path := "/api/days/" + day.Format("2006-01-02") + "/sync"
	w := doJSON(t, r, http.MethodPost, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["entries_added"] != float64(1) {
		t.Fatalf("expected 1 entry added, got %v", body["entries_added"])
	}

	intervals := dayIntervals(t, body)
	if len(intervals) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(intervals))
	}
	first := intervals[0].(map[string]any)
	if first["kind"] != db.KindSynced || first["source_id"] != "g1" {
		t.Fatalf("unexpected synced interval: %v", first)
	}
}

func TestCalendarSettings(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	user := db.User{Username: "tester", Password: "x"}
	if err := db.DB.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	r := newTestRouter(api, user.ID)

	w := doJSON(t, r, http.MethodPut, "/api/settings/calendar", map[string]any{
		"feed_url": "ftp://example.com/cal.ics",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for non-http scheme, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPut, "/api/settings/calendar", map[string]any{
		"feed_url": "https://calendar.example.com/user.ics",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/settings/calendar", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if decodeBody(t, w)["feed_url"] != "https://calendar.example.com/user.ics" {
		t.Fatal("expected feed url to round-trip")
	}
}

func TestWindowSizeBounds(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	r := newTestRouter(api, 1)

	// 超出上限的窗口天数直接拒绝，不进入分配路径
	for _, path := range []string{
		"/api/window?days=100000000",
		"/api/stats?days=100000000",
		fmt.Sprintf("/api/window?days=%d", service.MaxWindowDays+1),
		fmt.Sprintf("/api/stats?days=%d", service.MaxWindowDays+1),
	} {
		w := doJSON(t, r, http.MethodGet, path, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", path, w.Code)
		}
	}

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/window?days=%d&end=2024-05-01", service.MaxWindowDays), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 at the limit, got %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	r := newTestRouter(api, 1)

	w := doJSON(t, r, http.MethodPost, "/api/days/2024-05-01/intervals", map[string]any{
		"title": "写代码",
		"start": "2024-05-01T09:00:00Z",
		"end":   "2024-05-01T11:00:00Z",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/api/days/2024-05-03/intervals", map[string]any{
		"title": "评审",
		"start": "2024-05-03T09:00:00Z",
		"end":   "2024-05-03T13:00:00Z",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/stats?days=3&end=2024-05-03", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["total_duration_seconds"] != float64(6*3600) {
		t.Fatalf("expected 6h total, got %v", body["total_duration_seconds"])
	}
	if body["average_duration_seconds"] != float64(2*3600) {
		t.Fatalf("expected 2h average, got %v", body["average_duration_seconds"])
	}
	if body["most_productive_day"] != "2024-05-03" {
		t.Fatalf("expected 2024-05-03 as most productive day, got %v", body["most_productive_day"])
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"teamhub-realtime-svc/src/internal/cache"
	"teamhub-realtime-svc/src/internal/config"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCacheService struct{ mock.Mock }

func (m *mockCacheService) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockCacheService) SaveUnreadCount(ctx context.Context, userID string, count int64) error {
	return m.Called(ctx, userID, count).Error(0)
}
func (m *mockCacheService) InvalidateUnreadCount(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockCacheService) SaveConnectionStats(ctx context.Context, stats *cache.ConnectionStatsSnapshot) error {
	return m.Called(ctx, stats).Error(0)
}
func (m *mockCacheService) GetConnectionStats(ctx context.Context) (*cache.ConnectionStatsSnapshot, error) {
	args := m.Called(ctx)
	if s, _ := args.Get(0).(*cache.ConnectionStatsSnapshot); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type stubNotifier struct{ mock.Mock }

func (m *stubNotifier) NotifyUser(userID, event string, payload interface{}) {
	m.Called(userID, event, payload)
}
func (m *stubNotifier) NotifyUsers(userIDs []string, event string, payload interface{}) {
	m.Called(userIDs, event, payload)
}
func (m *stubNotifier) IsUserConnected(userID string) bool {
	return m.Called(userID).Bool(0)
}
func (m *stubNotifier) DisconnectUser(userID string) {
	m.Called(userID)
}

func newHandlerFixture(registry *Registry, notifier Notifier, cacheService cache.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Configuration{}
	cfg.App.Version = "test"

	h := NewHandler(cfg, registry, notifier, cacheService)

	router := gin.New()
	router.GET("/socket-status", h.SocketStatus)
	router.POST("/test-notification/:userId", h.TestNotification)
	return router
}

func performRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSocketStatusComputesAndCachesWhenCold(t *testing.T) {
	registry := NewRegistry()
	s, _ := newTestSession()
	registry.Add(s)
	require.NoError(t, registry.Bind(s.ID, "u1"))
	anon, _ := newTestSession()
	registry.Add(anon)

	cacheService := &mockCacheService{}
	cacheService.On("GetConnectionStats", mock.Anything).Return(nil, nil).Once()
	cacheService.On("SaveConnectionStats", mock.Anything, mock.MatchedBy(func(snapshot *cache.ConnectionStatsSnapshot) bool {
		return snapshot.TotalSockets == 2 &&
			snapshot.UniqueUsers == 1 &&
			snapshot.Anonymous == 1 &&
			len(snapshot.ActiveUsers) == 1
	})).Return(nil).Once()

	router := newHandlerFixture(registry, NewFanout(registry), cacheService)
	w := performRequest(router, http.MethodGet, "/socket-status", "")

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["totalSockets"])
	assert.Equal(t, float64(1), body["userConnections"])
	assert.Equal(t, false, body["cached"])

	cacheService.AssertExpectations(t)
}

func TestSocketStatusServesCachedSnapshot(t *testing.T) {
	registry := NewRegistry()

	cacheService := &mockCacheService{}
	cacheService.On("GetConnectionStats", mock.Anything).Return(&cache.ConnectionStatsSnapshot{
		TotalSockets: 7,
		UniqueUsers:  5,
		Anonymous:    2,
		ActiveUsers:  []string{"u1", "u2", "u3", "u4", "u5"},
		CapturedAt:   time.Now(),
	}, nil).Once()

	router := newHandlerFixture(registry, NewFanout(registry), cacheService)
	w := performRequest(router, http.MethodGet, "/socket-status", "")

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(7), body["totalSockets"])
	assert.Equal(t, true, body["cached"])

	cacheService.AssertNotCalled(t, "SaveConnectionStats", mock.Anything, mock.Anything)
}

func TestTestNotificationUserNotConnected(t *testing.T) {
	notifier := &stubNotifier{}
	notifier.On("IsUserConnected", "ghost").Return(false).Once()

	cacheService := &mockCacheService{}
	router := newHandlerFixture(NewRegistry(), notifier, cacheService)

	w := performRequest(router, http.MethodPost, "/test-notification/ghost", `{"message":"hello"}`)

	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user not connected", body["error"])

	notifier.AssertNotCalled(t, "NotifyUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestTestNotificationDelivers(t *testing.T) {
	notifier := &stubNotifier{}
	notifier.On("IsUserConnected", "u1").Return(true).Once()
	notifier.On("NotifyUser", "u1", "notification:test", mock.MatchedBy(func(payload interface{}) bool {
		data, ok := payload.(gin.H)
		return ok && data["message"] == "hello"
	})).Once()

	cacheService := &mockCacheService{}
	router := newHandlerFixture(NewRegistry(), notifier, cacheService)

	w := performRequest(router, http.MethodPost, "/test-notification/u1", `{"message":"hello"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])

	notifier.AssertExpectations(t)
}

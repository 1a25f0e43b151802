package realtime

import (
	"net/http"
	"teamhub-realtime-svc/src/internal/cache"
	"teamhub-realtime-svc/src/internal/config"
	"teamhub-realtime-svc/src/internal/models"
	"teamhub-realtime-svc/src/internal/notification"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	SocketStatus(c *gin.Context)
	TestNotification(c *gin.Context)
}

type handler struct {
	config       *config.Configuration
	registry     *Registry
	notifier     Notifier
	cacheService cache.Service
}

func NewHandler(cfg *config.Configuration, registry *Registry, notifier Notifier, cacheService cache.Service) Handler {
	return &handler{
		config:       cfg,
		registry:     registry,
		notifier:     notifier,
		cacheService: cacheService,
	}
}

// SocketStatus is the debug/observability surface over the session registry.
// A cached snapshot within its TTL is served as-is; otherwise the registry is
// read fresh and the snapshot re-cached for the next poll.
func (h *handler) SocketStatus(c *gin.Context) {
	ctx := c.Request.Context()

	if snapshot, err := h.cacheService.GetConnectionStats(ctx); err == nil && snapshot != nil {
		h.renderSocketStatus(c, snapshot, true)
		return
	}

	stats := h.registry.Stats()
	snapshot := &cache.ConnectionStatsSnapshot{
		TotalSockets:  stats.Total,
		UniqueUsers:   stats.Authenticated,
		Anonymous:     stats.Anonymous,
		ActiveUsers:   h.registry.ConnectedUsers(),
		CapturedAt:    time.Now(),
		ServerVersion: h.config.App.Version,
	}
	if err := h.cacheService.SaveConnectionStats(ctx, snapshot); err != nil {
		logrus.WithError(err).Debug("Failed to cache connection stats snapshot")
	}

	h.renderSocketStatus(c, snapshot, false)
}

func (h *handler) renderSocketStatus(c *gin.Context, snapshot *cache.ConnectionStatsSnapshot, cached bool) {
	c.JSON(http.StatusOK, gin.H{
		"connectedSockets": snapshot.TotalSockets,
		"rooms":            snapshot.UniqueUsers,
		"totalSockets":     snapshot.TotalSockets,
		"userConnections":  snapshot.UniqueUsers,
		"activeUsers":      snapshot.ActiveUsers,
		"cached":           cached,
		"capturedAt":       snapshot.CapturedAt,
		"connectionStats": gin.H{
			"totalSockets":         snapshot.TotalSockets,
			"uniqueUsers":          snapshot.UniqueUsers,
			"duplicateConnections": snapshot.TotalSockets - snapshot.UniqueUsers,
		},
	})
}

type testNotificationRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TestNotification pushes an ad-hoc notification to a connected user; 404 if
// the user has no live session.
func (h *handler) TestNotification(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "User ID is required",
			"message": "Please provide a valid user ID",
		})
		return
	}

	var req testNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}
	if req.Type == "" {
		req.Type = notification.TypeTest
	}

	if !h.notifier.IsUserConnected(userID) {
		logrus.WithError(models.ErrUserNotConnected).WithField("user_id", userID).Warn("Test notification target has no live session")
		c.JSON(http.StatusNotFound, gin.H{
			"error":   models.ErrUserNotConnected.Error(),
			"message": "No live session for user " + userID,
		})
		return
	}

	payload := gin.H{
		"type":      req.Type,
		"message":   req.Message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	h.notifier.NotifyUser(userID, "notification:test", payload)

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"type":    req.Type,
	}).Info("Test notification sent")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payload,
		"message": "Test notification delivered",
	})
}

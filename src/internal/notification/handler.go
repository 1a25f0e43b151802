package notification

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"teamhub-realtime-svc/src/internal/config"
	"teamhub-realtime-svc/src/internal/models"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	GetNotifications(c *gin.Context)
	GetStats(c *gin.Context)
	MarkAsRead(c *gin.Context)
	MarkAllAsRead(c *gin.Context)
	DeleteNotification(c *gin.Context)
	DeleteAllNotifications(c *gin.Context)
}

type handler struct {
	config  *config.Configuration
	service Service
}

func NewHandler(cfg *config.Configuration, service Service) Handler {
	return &handler{
		config:  cfg,
		service: service,
	}
}

func (h *handler) GetNotifications(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := h.authenticatedUser(c)
	if userID == "" {
		return
	}

	page := parseIntParam(c, "page", 1)
	limit := parseIntParam(c, "limit", 50)

	response, err := h.service.ListForUser(ctx, userID, page, limit)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to get notifications")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to retrieve notifications",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
	})
}

func (h *handler) GetStats(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := h.authenticatedUser(c)
	if userID == "" {
		return
	}

	stats, err := h.service.StatsForUser(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to get notification stats")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to retrieve notification statistics",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

func (h *handler) MarkAsRead(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := h.authenticatedUser(c)
	if userID == "" {
		return
	}

	notificationID := c.Param("id")
	n, err := h.service.MarkRead(ctx, notificationID, userID)
	if err != nil {
		h.handleServiceError(c, userID, err, "Failed to mark notification as read")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    n,
	})
}

func (h *handler) MarkAllAsRead(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := h.authenticatedUser(c)
	if userID == "" {
		return
	}

	modified, err := h.service.MarkAllRead(ctx, userID)
	if err != nil {
		h.handleServiceError(c, userID, err, "Failed to mark all notifications as read")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "All notifications marked as read",
		"data":    gin.H{"modified": modified},
	})
}

func (h *handler) DeleteNotification(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := h.authenticatedUser(c)
	if userID == "" {
		return
	}

	notificationID := c.Param("id")
	n, err := h.service.Delete(ctx, notificationID, userID)
	if err != nil {
		h.handleServiceError(c, userID, err, "Failed to delete notification")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Notification deleted successfully",
		"data":    n,
	})
}

func (h *handler) DeleteAllNotifications(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := h.authenticatedUser(c)
	if userID == "" {
		return
	}

	modified, err := h.service.DeleteAll(ctx, userID)
	if err != nil {
		h.handleServiceError(c, userID, err, "Failed to delete all notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "All notifications deleted successfully",
		"data":    gin.H{"modified": modified},
	})
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
}

// authenticatedUser reads the identity set by the auth middleware; writes
// the 401 itself when absent.
func (h *handler) authenticatedUser(c *gin.Context) string {
	userID := c.GetString("user_id")
	if userID == "" {
		logrus.Error("User id not found in context - ensure auth middleware runs first")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
		})
	}
	return userID
}

func (h *handler) handleServiceError(c *gin.Context, userID string, err error, fallback string) {
	logrus.WithError(err).WithField("user_id", userID).Error(fallback)

	if errors.Is(err, models.ErrNotificationMissing) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Notification not found",
			"message": "No notification found with the provided ID",
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   fallback,
		"message": err.Error(),
	})
}

func parseIntParam(c *gin.Context, param string, defaultValue int) int {
	value := c.Query(param)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"param": param,
			"value": value,
			"error": err,
		}).Warn("Invalid integer parameter, using default")
		return defaultValue
	}
	return parsed
}

package notification

import (
	"context"
	"errors"
	"fmt"
	"teamhub-realtime-svc/src/internal/cache"
	"teamhub-realtime-svc/src/internal/config"
	"teamhub-realtime-svc/src/internal/models"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Service interface {
	RecordOccurrence(ctx context.Context, userID, actionHash string, fields Fields) (*Notification, error)
	Resolve(ctx context.Context, userID, actionHash string) (*Notification, error)

	RecordTeamRemoval(ctx context.Context, userID, teamID, teamName string) (*Notification, error)
	RecordTeamInvite(ctx context.Context, userID, teamID, teamName string) (*Notification, error)
	RecordTeamUpdate(ctx context.Context, userID, teamID, teamName string) (*Notification, error)
	RecordChannelMemberAdded(ctx context.Context, userID, channelID, channelName, teamID string) (*Notification, error)
	ResolveTeamRemoval(ctx context.Context, userID, teamID string) (*Notification, error)

	ListForUser(ctx context.Context, userID string, page, limit int) (*ListResponse, error)
	StatsForUser(ctx context.Context, userID string) (*UserStats, error)
	MarkRead(ctx context.Context, notificationID, userID string) (*Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, notificationID, userID string) (*Notification, error)
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

type ListResponse struct {
	Notifications []*View     `json:"notifications"`
	UnreadCount   int64       `json:"unreadCount"`
	Pagination    *Pagination `json:"pagination"`
}

type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

type UserStats struct {
	UnreadCount int64 `json:"unreadCount"`
	TotalCount  int64 `json:"totalCount"`
}

type service struct {
	repository   Repository
	cacheService cache.Service
	cfg          *config.Configuration
}

func NewService(repository Repository, cacheService cache.Service, cfg *config.Configuration) Service {
	return &service{
		repository:   repository,
		cacheService: cacheService,
		cfg:          cfg,
	}
}

// RecordOccurrence upserts the notification record for (userID, actionHash).
// A first occurrence inserts a fresh record; a repeat occurrence refreshes the
// display fields, increments the counter and surfaces the record as unread
// again. The unique index is the backstop for concurrent first occurrences:
// a duplicate-key insert is retried as an update.
func (s *service) RecordOccurrence(ctx context.Context, userID, actionHash string, fields Fields) (*Notification, error) {
	existing, err := s.repository.FindByActionHash(ctx, userID, actionHash)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		created, err := s.repository.Create(ctx, &Notification{
			UserID:          userID,
			Type:            fields.Type,
			Title:           fields.Title,
			Message:         fields.Message,
			TeamID:          fields.TeamID,
			TeamName:        fields.TeamName,
			ChannelID:       fields.ChannelID,
			ChannelName:     fields.ChannelName,
			Severity:        fields.Severity,
			ActionHash:      actionHash,
			OccurrenceCount: 1,
			LastOccurrence:  time.Now(),
			Metadata:        fields.Metadata,
		})
		if err == nil {
			s.invalidateUnreadCount(ctx, userID)
			return created, nil
		}
		if !errors.Is(err, models.ErrDuplicateRecord) {
			return nil, err
		}

		// Lost the insert race; the winner's record is the one to bump.
		existing, err = s.repository.FindByActionHash(ctx, userID, actionHash)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, models.ErrDuplicateRecord
		}
	}

	updated, err := s.repository.Update(ctx, existing.ID, bson.M{
		"$set": bson.M{
			"title":           fields.Title,
			"message":         fields.Message,
			"last_occurrence": time.Now(),
			"is_read":         false,
			"is_resolved":     false,
		},
		"$inc": bson.M{"occurrence_count": 1},
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":          userID,
		"action_hash":      actionHash,
		"occurrence_count": updated.OccurrenceCount,
	}).Debug("Repeat occurrence recorded")

	s.invalidateUnreadCount(ctx, userID)
	return updated, nil
}

// Resolve marks the record resolved when the negating action occurs, e.g. the
// user rejoins the team they were removed from. The record stays read/unread
// as it was.
func (s *service) Resolve(ctx context.Context, userID, actionHash string) (*Notification, error) {
	existing, err := s.repository.FindByActionHash(ctx, userID, actionHash)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.IsResolved {
		return existing, nil
	}

	now := time.Now()
	return s.repository.Update(ctx, existing.ID, bson.M{
		"$set": bson.M{
			"is_resolved": true,
			"resolved_at": now,
		},
	})
}

func (s *service) RecordTeamRemoval(ctx context.Context, userID, teamID, teamName string) (*Notification, error) {
	hash := ActionHash(TypeTeamRemoval, userID, teamID)
	return s.RecordOccurrence(ctx, userID, hash, Fields{
		Type:     TypeTeamRemoval,
		Title:    "Removed from Team",
		Message:  fmt.Sprintf("You have been removed from '%s'", teamName),
		TeamID:   teamID,
		TeamName: teamName,
		Severity: SeverityWarning,
	})
}

func (s *service) RecordTeamInvite(ctx context.Context, userID, teamID, teamName string) (*Notification, error) {
	hash := ActionHash(TypeTeamInvite, userID, teamID)
	return s.RecordOccurrence(ctx, userID, hash, Fields{
		Type:     TypeTeamInvite,
		Title:    "Added to Team",
		Message:  fmt.Sprintf("You have been added to '%s'", teamName),
		TeamID:   teamID,
		TeamName: teamName,
		Severity: SeveritySuccess,
	})
}

func (s *service) RecordTeamUpdate(ctx context.Context, userID, teamID, teamName string) (*Notification, error) {
	hash := ActionHash(TypeTeamUpdate, userID, teamID)
	return s.RecordOccurrence(ctx, userID, hash, Fields{
		Type:     TypeTeamUpdate,
		Title:    "Team Updated",
		Message:  fmt.Sprintf("Team '%s' has been updated", teamName),
		TeamID:   teamID,
		TeamName: teamName,
		Severity: SeverityInfo,
	})
}

func (s *service) RecordChannelMemberAdded(ctx context.Context, userID, channelID, channelName, teamID string) (*Notification, error) {
	hash := ActionHash(TypeChannelMemberAdded, userID, channelID)
	return s.RecordOccurrence(ctx, userID, hash, Fields{
		Type:        TypeChannelMemberAdded,
		Title:       "Added to Channel",
		Message:     fmt.Sprintf("You have been added to channel '%s'", channelName),
		TeamID:      teamID,
		ChannelID:   channelID,
		ChannelName: channelName,
		Severity:    SeveritySuccess,
	})
}

func (s *service) ResolveTeamRemoval(ctx context.Context, userID, teamID string) (*Notification, error) {
	return s.Resolve(ctx, userID, ActionHash(TypeTeamRemoval, userID, teamID))
}

func (s *service) ListForUser(ctx context.Context, userID string, page, limit int) (*ListResponse, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	skip := (page - 1) * limit

	notifications, err := s.repository.List(ctx, userID, limit, skip)
	if err != nil {
		return nil, err
	}

	unreadCount, err := s.unreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]*View, len(notifications))
	for i, n := range notifications {
		views[i] = n.ToView()
	}

	return &ListResponse{
		Notifications: views,
		UnreadCount:   unreadCount,
		Pagination: &Pagination{
			Page:    page,
			Limit:   limit,
			Total:   len(views),
			HasMore: len(views) == limit,
		},
	}, nil
}

func (s *service) StatsForUser(ctx context.Context, userID string) (*UserStats, error) {
	unreadCount, err := s.unreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	total, err := s.repository.Count(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserStats{
		UnreadCount: unreadCount,
		TotalCount:  total,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, notificationID, userID string) (*Notification, error) {
	id, err := primitive.ObjectIDFromHex(notificationID)
	if err != nil {
		return nil, models.ErrNotificationMissing
	}

	n, err := s.repository.MarkRead(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	s.invalidateUnreadCount(ctx, userID)
	return n, nil
}

func (s *service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	modified, err := s.repository.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.invalidateUnreadCount(ctx, userID)
	return modified, nil
}

func (s *service) Delete(ctx context.Context, notificationID, userID string) (*Notification, error) {
	id, err := primitive.ObjectIDFromHex(notificationID)
	if err != nil {
		return nil, models.ErrNotificationMissing
	}

	n, err := s.repository.SoftDelete(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	s.invalidateUnreadCount(ctx, userID)
	return n, nil
}

func (s *service) DeleteAll(ctx context.Context, userID string) (int64, error) {
	modified, err := s.repository.SoftDeleteAll(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.invalidateUnreadCount(ctx, userID)
	return modified, nil
}

// unreadCount serves from the cache when possible and falls back to the
// repository. Cache failures degrade to direct reads.
func (s *service) unreadCount(ctx context.Context, userID string) (int64, error) {
	if cached, err := s.cacheService.GetUnreadCount(ctx, userID); err == nil && cached >= 0 {
		return cached, nil
	}

	count, err := s.repository.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := s.cacheService.SaveUnreadCount(ctx, userID, count); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Debug("Failed to cache unread count")
	}
	return count, nil
}

func (s *service) invalidateUnreadCount(ctx context.Context, userID string) {
	if err := s.cacheService.InvalidateUnreadCount(ctx, userID); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Debug("Failed to invalidate unread count cache")
	}
}

package events

import (
	"context"
	"encoding/json"
	"sync"
	"teamhub-realtime-svc/src/clients"
	"teamhub-realtime-svc/src/internal/config"
	"teamhub-realtime-svc/src/internal/models"
	"teamhub-realtime-svc/src/internal/notification"
	"teamhub-realtime-svc/src/internal/realtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Consumer turns membership events published by the CRUD service into
// durable notification records and live deliveries. Persistence and live
// delivery are decoupled failure domains: a failed write never blocks the
// push, and an unreachable user never fails the record.
type Consumer struct {
	rabbit        *clients.RabbitMQ
	notifications notification.Service
	notifier      realtime.Notifier
	cfg           *config.Configuration

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewConsumer(rabbit *clients.RabbitMQ, notifications notification.Service, notifier realtime.Notifier, cfg *config.Configuration) *Consumer {
	return &Consumer{
		rabbit:        rabbit,
		notifications: notifications,
		notifier:      notifier,
		cfg:           cfg,
		stop:          make(chan struct{}),
	}
}

func (c *Consumer) Start() error {
	deliveries, err := c.rabbit.Consume()
	if err != nil {
		logrus.WithError(err).Error("Failed to start consuming membership events")
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					logrus.Warn("Membership event channel closed")
					return
				}
				c.handle(d)
			case <-c.stop:
				return
			}
		}
	}()

	logrus.WithField("queue", c.cfg.Queue.RabbitMQ.EventQueue).Info("Membership event consumer started")
	return nil
}

func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
}

func (c *Consumer) handle(d amqp.Delivery) {
	autoAck := c.cfg.Queue.RabbitMQ.AutoAck

	var event models.MembershipEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal membership event, dropping")
		if !autoAck {
			d.Nack(false, false)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.cfg.App.Timeout)*time.Second)
	defer cancel()

	c.Dispatch(ctx, &event)

	if !autoAck {
		d.Ack(false)
	}
}

// Dispatch routes one membership event to the dedup engine and the fan-out.
func (c *Consumer) Dispatch(ctx context.Context, event *models.MembershipEvent) {
	logrus.WithFields(logrus.Fields{
		"event":   event.Event,
		"team_id": event.TeamID,
		"users":   len(event.Recipients()),
	}).Debug("Dispatching membership event")

	switch event.Event {
	case models.EventTeamMemberRemoved:
		for _, userID := range event.Recipients() {
			c.record(ctx, userID, event, func(userID string) (*notification.Notification, error) {
				return c.notifications.RecordTeamRemoval(ctx, userID, event.TeamID, event.TeamName)
			})
			c.notifier.NotifyUser(userID, "team:removed", teamPayload(event))
		}

	case models.EventTeamMemberAdded:
		for _, userID := range event.Recipients() {
			c.record(ctx, userID, event, func(userID string) (*notification.Notification, error) {
				return c.notifications.RecordTeamInvite(ctx, userID, event.TeamID, event.TeamName)
			})
			// Rejoining negates a prior removal from the same team.
			if _, err := c.notifications.ResolveTeamRemoval(ctx, userID, event.TeamID); err != nil {
				logrus.WithError(err).WithField("user_id", userID).Warn("Failed to resolve prior removal notification")
			}
			c.notifier.NotifyUser(userID, "team:member-added", teamPayload(event))
		}

	case models.EventTeamUpdated:
		for _, userID := range event.Recipients() {
			c.record(ctx, userID, event, func(userID string) (*notification.Notification, error) {
				return c.notifications.RecordTeamUpdate(ctx, userID, event.TeamID, event.TeamName)
			})
		}
		c.notifier.NotifyUsers(event.Recipients(), "team:updated", teamPayload(event))

	case models.EventChannelMemberAdded:
		for _, userID := range event.Recipients() {
			c.record(ctx, userID, event, func(userID string) (*notification.Notification, error) {
				return c.notifications.RecordChannelMemberAdded(ctx, userID, event.ChannelID, event.ChannelName, event.TeamID)
			})
			c.notifier.NotifyUser(userID, "channel:member-added", channelPayload(event))
		}

	// Channel lifecycle changes are live-only pushes to the team's members;
	// they carry no durable notification record.
	case models.EventChannelCreated:
		c.notifier.NotifyUsers(event.Recipients(), "channel:created", channelPayload(event))

	case models.EventChannelUpdated:
		c.notifier.NotifyUsers(event.Recipients(), "channel:updated", channelPayload(event))

	case models.EventChannelDeleted:
		c.notifier.NotifyUsers(event.Recipients(), "channel:deleted", channelPayload(event))

	case models.EventUserLoggedOut:
		for _, userID := range event.Recipients() {
			c.notifier.DisconnectUser(userID)
		}

	default:
		logrus.WithField("event", event.Event).Debug("Ignoring unknown membership event")
	}
}

// record persists through the dedup engine. Failures are logged and
// swallowed: durability problems must not stop live delivery.
func (c *Consumer) record(ctx context.Context, userID string, event *models.MembershipEvent, fn func(string) (*notification.Notification, error)) {
	if _, err := fn(userID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"event":   event.Event,
		}).Error("Failed to persist notification record")
	}
}

func teamPayload(event *models.MembershipEvent) map[string]interface{} {
	return map[string]interface{}{
		"teamId":    event.TeamID,
		"teamName":  event.TeamName,
		"timestamp": event.Timestamp,
	}
}

func channelPayload(event *models.MembershipEvent) map[string]interface{} {
	return map[string]interface{}{
		"teamId":      event.TeamID,
		"channelId":   event.ChannelID,
		"channelName": event.ChannelName,
		"timestamp":   event.Timestamp,
	}
}

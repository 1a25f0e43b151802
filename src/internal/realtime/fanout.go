package realtime

import (
	"github.com/sirupsen/logrus"
)

// Notifier is the fan-out contract consumed by the event pipeline and the
// HTTP surface.
type Notifier interface {
	NotifyUser(userID, event string, payload interface{})
	NotifyUsers(userIDs []string, event string, payload interface{})
	IsUserConnected(userID string) bool
	DisconnectUser(userID string)
}

// Fanout delivers event notifications to live sessions. Delivery is
// fire-and-forget: a disconnected target is a logged no-op, never an error.
type Fanout struct {
	registry *Registry
}

func NewFanout(registry *Registry) *Fanout {
	return &Fanout{registry: registry}
}

func (f *Fanout) NotifyUser(userID, event string, payload interface{}) {
	s, ok := f.registry.SessionFor(userID)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"event":   event,
		}).Debug("User not connected, skipping live notification")
		return
	}

	s.Send(event, payload)

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"event":   event,
	}).Debug("Notification delivered to live session")
}

// NotifyUsers applies NotifyUser to each id independently; partial delivery
// is expected.
func (f *Fanout) NotifyUsers(userIDs []string, event string, payload interface{}) {
	for _, userID := range userIDs {
		f.NotifyUser(userID, event, payload)
	}
}

func (f *Fanout) IsUserConnected(userID string) bool {
	return f.registry.IsUserConnected(userID)
}

// DisconnectUser closes and removes a user's live session, used for logout
// cleanup.
func (f *Fanout) DisconnectUser(userID string) {
	s, ok := f.registry.SessionFor(userID)
	if !ok {
		return
	}

	f.registry.Remove(s.ID)
	s.Close()

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"stats":   f.registry.Stats(),
	}).Info("User session cleaned up after logout")
}

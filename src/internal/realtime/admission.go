package realtime

import (
	"teamhub-realtime-svc/src/internal/config"
	"teamhub-realtime-svc/src/internal/models"
	"time"

	"github.com/sirupsen/logrus"
)

// Admission enforces the connection ceilings and the authentication grace
// period. It is evaluated once per new transport connection, before the
// client has authenticated.
type Admission struct {
	registry *Registry
	cfg      *config.RealtimeSettings
}

func NewAdmission(registry *Registry, cfg *config.RealtimeSettings) *Admission {
	return &Admission{
		registry: registry,
		cfg:      cfg,
	}
}

// Admit registers a new session unless a connection ceiling is hit. The
// check and the registry insert are one atomic step inside the registry
// lock. Callers must reject and close the session when an error is
// returned; on success the session is already registered.
func (a *Admission) Admit(s *Session) error {
	err := a.registry.AddWithinLimits(s, a.cfg.MaxTotalConnections, a.cfg.MaxAnonymousConnections)

	switch err {
	case models.ErrServerLimitReached:
		logrus.WithFields(logrus.Fields{
			"session_id":      s.ID,
			"max_connections": a.cfg.MaxTotalConnections,
		}).Warn("Connection rejected: server limit reached")
	case models.ErrTooManyAnonymous:
		logrus.WithFields(logrus.Fields{
			"session_id":    s.ID,
			"max_anonymous": a.cfg.MaxAnonymousConnections,
		}).Warn("Connection rejected: too many anonymous connections")
	}

	return err
}

// RejectionContext maps an admission error to the context fields carried by
// the connection:rejected frame.
func (a *Admission) RejectionContext(err error, sessionID string) (string, map[string]interface{}) {
	switch err {
	case models.ErrServerLimitReached:
		return "Server connection limit exceeded", map[string]interface{}{
			"maxConnections": a.cfg.MaxTotalConnections,
		}
	case models.ErrTooManyAnonymous:
		return "Too many anonymous connections, please authenticate first", map[string]interface{}{
			"maxAnonymousConnections": a.cfg.MaxAnonymousConnections,
		}
	case models.ErrAuthTimeout:
		return "Authentication timeout - user must join a room within the grace period", map[string]interface{}{
			"socketId": sessionID,
		}
	case models.ErrAlreadyConnected:
		return "User already connected from another location", nil
	default:
		return err.Error(), nil
	}
}

// StartGraceTimer arms the authentication timeout for an accepted session.
// The timer is cancelled the instant the session binds; firing on a session
// that never authenticated rejects it and removes it from the registry.
func (a *Admission) StartGraceTimer(s *Session) {
	grace := time.Duration(a.cfg.AuthTimeoutSeconds) * time.Second

	timer := time.AfterFunc(grace, func() {
		if s.IsBound() || s.IsTerminated() {
			return
		}

		logrus.WithField("session_id", s.ID).Info("Authentication timeout, closing session")

		reason, context := a.RejectionContext(models.ErrAuthTimeout, s.ID)
		s.Reject(reason, context)
		a.registry.Remove(s.ID)
		s.Close()
	})

	s.SetAuthTimer(timer)
}

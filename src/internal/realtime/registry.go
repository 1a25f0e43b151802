package realtime

import (
	"sync"
	"teamhub-realtime-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

// Stats is the derived view of the registry used by admission control and
// the status endpoint. Total - Authenticated == Anonymous always holds.
type Stats struct {
	Total         int `json:"totalSockets"`
	Authenticated int `json:"authenticatedUsers"`
	Anonymous     int `json:"anonymousConnections"`
}

// Registry is the process-wide mapping from user identity to a single live
// session. All mutation goes through Add/Remove/Bind/Unbind; it is never
// exposed for direct external mutation.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // sessionID -> session (bound and unbound)
	users    map[string]string   // userID -> sessionID
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		users:    make(map[string]string),
	}
}

// Add registers an accepted, not yet authenticated session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// AddWithinLimits registers a session only when the connection ceilings
// allow one more. The capacity check and the insert happen under a single
// lock hold, so concurrent handlers cannot jointly overshoot a ceiling.
func (r *Registry) AddWithinLimits(s *Session, maxTotal, maxAnonymous int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := len(r.sessions)
	anonymous := total - len(r.users)

	if total+1 > maxTotal {
		return models.ErrServerLimitReached
	}
	if anonymous+1 > maxAnonymous {
		return models.ErrTooManyAnonymous
	}

	r.sessions[s.ID] = s
	return nil
}

// Remove drops a session and its user binding if present. Idempotent.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)

	if userID := s.UserID(); userID != "" && r.users[userID] == sessionID {
		delete(r.users, userID)
	}
}

// Bind associates a session with a user identity. The registry lock is the
// serialization point: two sessions racing to bind the same user resolve
// deterministically, and the second attempt is rejected while the
// established session stays.
func (r *Registry) Bind(sessionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}

	if existing, ok := r.users[userID]; ok && existing != sessionID {
		logrus.WithFields(logrus.Fields{
			"user_id":             userID,
			"existing_session_id": existing,
			"session_id":          sessionID,
		}).Warn("Duplicate connection attempt rejected")
		return models.ErrAlreadyConnected
	}

	// A session switching identity releases its previous user key.
	if prev := s.UserID(); prev != "" && prev != userID && r.users[prev] == sessionID {
		delete(r.users, prev)
	}

	if !s.Bind(userID) {
		return models.ErrSessionTerminated
	}
	r.users[userID] = sessionID

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"session_id": sessionID,
	}).Info("User bound to session")
	return nil
}

// Unbind removes the user mapping for a session, leaving the session itself
// registered. Idempotent.
func (r *Registry) Unbind(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if userID := s.UserID(); userID != "" && r.users[userID] == sessionID {
		delete(r.users, userID)
	}
}

// UnbindUser removes the mapping for a user identity. Idempotent.
func (r *Registry) UnbindUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, userID)
}

func (r *Registry) IsUserConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// SessionFor returns the live session bound to a user.
func (r *Registry) SessionFor(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, ok := r.users[userID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[sessionID]
	return s, ok
}

func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Sessions returns a snapshot for the liveness sweep and the status surface.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// ConnectedUsers returns the ids of all currently bound users.
func (r *Registry) ConnectedUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.users))
	for userID := range r.users {
		users = append(users, userID)
	}
	return users
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.sessions)
	authenticated := len(r.users)
	return Stats{
		Total:         total,
		Authenticated: authenticated,
		Anonymous:     total - authenticated,
	}
}

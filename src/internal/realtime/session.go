package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State tracks the session lifecycle. Terminated is absorbing.
type State int

const (
	StateConnected State = iota
	StateBound
	StateTerminated
)

// Conn abstracts the underlying websocket connection so the registry,
// fan-out and monitor can be exercised without a live transport.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Envelope is the wire shape of every server-to-client frame.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Session represents one live transport connection. It is created unbound on
// connect and becomes bound once the client presents a user identity.
type Session struct {
	ID        string
	CreatedAt time.Time

	conn Conn

	mu       sync.Mutex
	userID   string
	state    State
	lastPong time.Time

	send      chan Envelope
	done      chan struct{}
	closeOnce sync.Once

	authTimerMu sync.Mutex
	authTimer   *time.Timer
}

func NewSession(conn Conn, sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		conn:      conn,
		state:     StateConnected,
		send:      make(chan Envelope, sendBuffer),
		done:      make(chan struct{}),
	}
}

// UserID returns the bound user identity, empty while unbound.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) IsBound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateBound
}

func (s *Session) IsTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateTerminated
}

// Bind transitions the session to Bound. It is a no-op on a terminated
// session so a racing disconnect wins deterministically.
func (s *Session) Bind(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return false
	}
	s.userID = userID
	s.state = StateBound
	return true
}

// MarkPong records a heartbeat answer. Bookkeeping only; eviction is driven
// by transport-level disconnect, not by missed pongs.
func (s *Session) MarkPong() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPong = time.Now()
}

func (s *Session) LastPong() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPong
}

// SetAuthTimer installs the authentication grace timer. CancelAuthTimer is
// safe to call any number of times, including before SetAuthTimer.
func (s *Session) SetAuthTimer(t *time.Timer) {
	s.authTimerMu.Lock()
	defer s.authTimerMu.Unlock()
	s.authTimer = t
}

func (s *Session) CancelAuthTimer() {
	s.authTimerMu.Lock()
	defer s.authTimerMu.Unlock()
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
}

// Send enqueues a frame for the write pump. Delivery is fire-and-forget: a
// terminated session or a full buffer drops the frame with a log line.
func (s *Session) Send(event string, payload interface{}) {
	s.mu.Lock()
	terminated := s.state == StateTerminated
	s.mu.Unlock()
	if terminated {
		return
	}

	select {
	case s.send <- Envelope{Event: event, Data: payload}:
	case <-s.done:
	default:
		logrus.WithFields(logrus.Fields{
			"session_id": s.ID,
			"event":      event,
		}).Warn("Session send buffer full, dropping frame")
	}
}

// Reject writes the rejection frame directly, bypassing the send queue, so
// the client sees the reason even when the pump never started.
func (s *Session) Reject(reason string, context map[string]interface{}) {
	payload := map[string]interface{}{"reason": reason}
	for k, v := range context {
		payload[k] = v
	}
	if err := s.conn.WriteJSON(Envelope{Event: "connection:rejected", Data: payload}); err != nil {
		logrus.WithError(err).WithField("session_id", s.ID).Debug("Failed to write rejection frame")
	}
}

// Done is closed when the session terminates.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close terminates the session exactly once: cancels the grace timer, stops
// the write pump and closes the transport. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateTerminated
		s.mu.Unlock()

		s.CancelAuthTimer()
		close(s.done)

		if err := s.conn.Close(); err != nil {
			logrus.WithError(err).WithField("session_id", s.ID).Debug("Transport close returned error")
		}
	})
}

// WritePump drains the send queue onto the transport. One pump per session
// is the single delivery path that keeps per-user ordering.
func (s *Session) WritePump() {
	for {
		select {
		case envelope := <-s.send:
			if err := s.conn.WriteJSON(envelope); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"session_id": s.ID,
					"event":      envelope.Event,
				}).Debug("Failed to write frame, closing session")
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

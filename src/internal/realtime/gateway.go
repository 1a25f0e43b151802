package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"teamhub-realtime-svc/src/internal/config"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Frame is the wire shape of every client-to-server message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client events
const (
	EventJoinUserRoom = "join-user-room"
	EventPong         = "pong"
)

// Gateway upgrades HTTP connections to websockets and runs the per-session
// event loop: admission, binding, heartbeat answers and disconnect cleanup.
type Gateway struct {
	registry  *Registry
	admission *Admission
	monitor   *Monitor
	cfg       *config.RealtimeSettings
	upgrader  websocket.Upgrader
}

func NewGateway(registry *Registry, admission *Admission, monitor *Monitor, cfg *config.RealtimeSettings) *Gateway {
	return &Gateway{
		registry:  registry,
		admission: admission,
		monitor:   monitor,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS policy is enforced by the HTTP layer
			},
		},
	}
}

// wsConn adapts a gorilla connection to the Conn interface, applying the
// configured write deadline to every frame. The mutex serializes the write
// pump with direct rejection writes; gorilla connections allow only one
// concurrent writer.
type wsConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (w *wsConn) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(v)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// Handle is the gin handler for the websocket endpoint.
func (g *Gateway) Handle(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade websocket connection")
		return
	}

	session := NewSession(&wsConn{
		conn:         conn,
		writeTimeout: time.Duration(g.cfg.WriteTimeoutSeconds) * time.Second,
	}, g.cfg.SendBufferSize)

	if err := g.admission.Admit(session); err != nil {
		reason, context := g.admission.RejectionContext(err, session.ID)
		session.Reject(reason, context)
		session.Close()
		return
	}

	g.admission.StartGraceTimer(session)

	logrus.WithFields(logrus.Fields{
		"session_id": session.ID,
		"stats":      g.registry.Stats(),
	}).Info("Connection accepted")

	go session.WritePump()
	g.readLoop(conn, session)
}

// readLoop runs until the transport reports closed. Each frame is handled to
// completion before the next is read.
func (g *Gateway) readLoop(conn *websocket.Conn, session *Session) {
	defer g.cleanup(session)

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("session_id", session.ID).Debug("Unexpected websocket close")
			}
			return
		}

		switch frame.Event {
		case EventJoinUserRoom:
			g.handleJoin(session, frame.Data)
		case EventPong:
			session.MarkPong()
		default:
			logrus.WithFields(logrus.Fields{
				"session_id": session.ID,
				"event":      frame.Event,
			}).Debug("Ignoring unknown client event")
		}
	}
}

// handleJoin binds the session to the presented user identity. A duplicate
// login is rejected in favour of the established session (reject-new
// policy): the incoming connection receives the rejection and is closed.
func (g *Gateway) handleJoin(session *Session, data json.RawMessage) {
	var userID string
	if err := json.Unmarshal(data, &userID); err != nil || userID == "" {
		logrus.WithField("session_id", session.ID).Warn("Malformed join-user-room payload")
		return
	}

	session.CancelAuthTimer()

	if err := g.registry.Bind(session.ID, userID); err != nil {
		reason, context := g.admission.RejectionContext(err, session.ID)
		if context == nil {
			context = map[string]interface{}{}
		}
		context["userId"] = userID

		session.Reject(reason, context)
		g.registry.Remove(session.ID)
		session.Close()
		return
	}

	g.monitor.Track(session)

	logrus.WithFields(logrus.Fields{
		"session_id": session.ID,
		"user_id":    userID,
	}).Info("User joined personal room")
}

// cleanup handles the clean-disconnect path: the session leaves the registry
// immediately and synchronously, without waiting for the sweep.
func (g *Gateway) cleanup(session *Session) {
	g.registry.Remove(session.ID)
	session.Close()

	logrus.WithFields(logrus.Fields{
		"session_id": session.ID,
		"user_id":    session.UserID(),
		"stats":      g.registry.Stats(),
	}).Info("Connection closed")
}

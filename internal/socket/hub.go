package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/api/middleware"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/api/shared"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/events"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/redact"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/service/auth"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/session"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// Authenticator validates connection tokens.
type Authenticator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// SessionTracker follows connection lifecycles. *session.Manager
// implements it.
type SessionTracker interface {
	Connect(userID, connectionID string) *session.Session
	Disconnect(connectionID string) (*session.Session, error)
	Touch(connectionID string) error
}

// ServiceResetter drops a user's cached service instance.
type ServiceResetter interface {
	ResetService(userID, event string) bool
}

// ConnectionObserver receives transport metrics. *observability.Metrics
// implements it.
type ConnectionObserver interface {
	ConnectionOpened()
	ConnectionClosed()
	MessageHandled(direction, eventType string)
}

// HubConfig tunes connection handling.
type HubConfig struct {
	// AllowedOrigins lists browser origins allowed besides the server's own
	// host. "*" allows any origin.
	AllowedOrigins []string

	WriteTimeout time.Duration
	PongWait     time.Duration
	PingInterval time.Duration
	SendBuffer   int
	ReadLimit    int64
}

// DefaultHubConfig returns a HubConfig with reasonable defaults
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout: 10 * time.Second,
		PongWait:     60 * time.Second,
		PingInterval: 50 * time.Second,
		SendBuffer:   256,
		ReadLimit:    2 << 20,
	}
}

// Hub accepts websocket connections, turns their frames into task request
// events and routes task results back to the originating connection.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	auth     Authenticator
	emitter  events.EventEmitter
	resetter ServiceResetter
	sessions SessionTracker
	observer ConnectionObserver
	logger   *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Conn
}

var _ task.SinkResolver = (*Hub)(nil)

// NewHub creates a hub. sessions and observer may be nil.
func NewHub(
	config HubConfig,
	authenticator Authenticator,
	emitter events.EventEmitter,
	resetter ServiceResetter,
	sessions SessionTracker,
	observer ConnectionObserver,
	logger *slog.Logger,
) *Hub {
	defaults := DefaultHubConfig()
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.PongWait <= 0 {
		config.PongWait = defaults.PongWait
	}
	if config.PingInterval <= 0 || config.PingInterval >= config.PongWait {
		config.PingInterval = config.PongWait * 9 / 10
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = defaults.ReadLimit
	}

	h := &Hub{
		config:   config,
		auth:     authenticator,
		emitter:  emitter,
		resetter: resetter,
		sessions: sessions,
		observer: observer,
		logger:   logger.With("component", "socket_hub"),
		conns:    make(map[string]*Conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows non-browser clients, the server's own host and the
// configured origins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// ServeHTTP authenticates and upgrades the request, then serves the
// connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.ExtractToken(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication token required")
		return
	}
	claims, err := h.auth.ValidateToken(r.Context(), token)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authentication token")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := newConn(uuid.NewString(), claims.UserID, ws, h.config.SendBuffer,
		h.logger.With("user_id", claims.UserID))
	c.logger = c.logger.With("connection_id", c.id)
	h.open(c)
	defer h.release(c)

	go c.writeLoop(h.config, h.onWrite)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = c.enqueue(ctx, ServerFrame{
		Event: EventConnected,
		Data: map[string]string{
			"connection_id": c.id,
			"namespace":     task.DefaultNamespace,
		},
	})

	h.readLoop(ctx, c)
}

func (h *Hub) open(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	if h.sessions != nil {
		h.sessions.Connect(c.userID, c.id)
	}
	if h.observer != nil {
		h.observer.ConnectionOpened()
	}
	c.logger.Info("client connected")
}

func (h *Hub) release(c *Conn) {
	c.close()

	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()

	if h.sessions != nil {
		if _, err := h.sessions.Disconnect(c.id); err != nil {
			c.logger.Debug("session already gone", "error", err)
		}
	}
	if h.observer != nil {
		h.observer.ConnectionClosed()
	}
	c.logger.Info("client disconnected")
}

func (h *Hub) onWrite(frame ServerFrame) {
	if h.observer == nil {
		return
	}
	label := frame.Type
	if label == "" {
		label = frame.Event
	}
	h.observer.MessageHandled("outbound", label)
}

func (h *Hub) readLoop(ctx context.Context, c *Conn) {
	c.ws.SetReadLimit(h.config.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(h.config.PongWait))
		if msgType != websocket.TextMessage {
			continue
		}

		if h.sessions != nil {
			_ = h.sessions.Touch(c.id)
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(ctx, c, "invalid message: expected {\"event\": ..., \"data\": ...}")
			continue
		}
		if h.observer != nil {
			h.observer.MessageHandled("inbound", frame.Event)
		}
		h.handleFrame(ctx, c, frame)
	}
}

func (h *Hub) handleFrame(ctx context.Context, c *Conn, frame ClientFrame) {
	switch frame.Event {
	case "":
		h.sendError(ctx, c, "missing event")
	case EventResetService:
		h.handleReset(ctx, c, frame)
	case EventAck, EventError, EventConnected:
		h.sendError(ctx, c, "reserved event: "+frame.Event)
	default:
		h.handleSubmit(ctx, c, frame)
	}
}

func (h *Hub) handleReset(ctx context.Context, c *Conn, frame ClientFrame) {
	var req resetRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil || req.Event == "" {
		h.sendError(ctx, c, "reset_service requires data.event")
		return
	}

	reset := h.resetter.ResetService(c.userID, req.Event)
	c.logger.Info("service reset", "event", req.Event, "evicted", reset)
	_ = c.enqueue(ctx, ServerFrame{
		Event: EventAck,
		Data: map[string]any{
			"status": "reset",
			"event":  req.Event,
			"reset":  reset,
		},
	})
}

// handleSubmit emits one task request per item and acks the listener
// events of the items that were accepted.
func (h *Hub) handleSubmit(ctx context.Context, c *Conn, frame ClientFrame) {
	items, err := splitItems(frame.Data)
	if err != nil {
		h.sendError(ctx, c, err.Error())
		return
	}

	listeners := make([]string, 0, len(items))
	for _, item := range items {
		listener := ensureListener(item)

		ev, err := events.NewTaskRequestEvent(frame.Event, item,
			events.ForUser(c.userID),
			events.FromConnection(c.id, task.DefaultNamespace))
		if err != nil {
			h.sendError(ctx, c, "invalid task data")
			continue
		}

		if err := h.emitter.EmitEvent(ctx, ev); err != nil {
			c.logger.Warn("task submission failed",
				"event", frame.Event,
				"listener", listener,
				"error", redact.Error(err))
			h.sendError(ctx, c, submitErrorMessage(err))
			continue
		}
		listeners = append(listeners, listener)
	}

	if len(listeners) == 0 {
		return
	}
	_ = c.enqueue(ctx, ServerFrame{
		Event: EventAck,
		Data: Ack{
			Status:                 AckStatusReceived,
			ResponseListenerEvents: listeners,
		},
	})
}

func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, task.ErrQuotaExceeded):
		return "too many tasks in flight, try again later"
	case errors.Is(err, task.ErrQueueShutdown):
		return "service is shutting down"
	case errors.Is(err, task.ErrInvalidTask):
		return "invalid task"
	default:
		return redact.Error(err)
	}
}

func (h *Hub) sendError(ctx context.Context, c *Conn, message string) {
	_ = c.enqueue(ctx, ServerFrame{Event: EventError, Data: message})
}

// Conn returns the live connection with the given id.
func (h *Hub) Conn(id string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ResolveSink implements task.SinkResolver. Tasks without a destination,
// addressed to a closed connection, or to another user's connection get a
// NopSink.
func (h *Hub) ResolveSink(_ context.Context, t *task.Task) task.Sink {
	if t.Destination == nil || t.Destination.ConnectionID == "" {
		return task.NopSink{}
	}
	c, ok := h.Conn(t.Destination.ConnectionID)
	if !ok {
		h.logger.Debug("destination connection not found",
			"task_id", t.ID,
			"connection_id", t.Destination.ConnectionID)
		return task.NopSink{}
	}
	if c.userID != t.UserID {
		h.logger.Warn("task addressed to another user's connection",
			"task_id", t.ID,
			"user_id", t.UserID,
			"connection_id", c.id)
		return task.NopSink{}
	}
	return &connSink{conn: c, event: ListenerEvent(t)}
}

// CloseAll closes every live connection, e.g. during shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paritytech/command-bot-sub000/internal/events"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsMaxFrame     = 64 * 1024
	wsOutboxSize   = 256

	// wsCancelTimeout bounds a cancel issued over the socket, which waits
	// for the task to be cleaned up.
	wsCancelTimeout = 2 * time.Minute
)

// WSMessage is a client frame. Type is one of subscribe, unsubscribe,
// command or ping; Action is only read for commands and must be "cancel".
type WSMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
	Action string `json:"action,omitempty"`
}

// wsFrame is a server frame.
type wsFrame struct {
	Type   string     `json:"type"`
	TaskID string     `json:"task_id,omitempty"`
	Event  string     `json:"event,omitempty"`
	Data   any        `json:"data,omitempty"`
	Time   *time.Time `json:"time,omitempty"`
	Action string     `json:"action,omitempty"`
	Status string     `json:"status,omitempty"`
	Error  string     `json:"error,omitempty"`
}

func eventFrame(ev events.Event) wsFrame {
	return wsFrame{Type: "event", TaskID: ev.TaskID, Event: string(ev.Type), Data: ev.Data, Time: &ev.Time}
}

func errorFrame(msg string) wsFrame {
	return wsFrame{Type: "error", Error: msg}
}

// Canceller cancels live tasks on behalf of websocket clients.
type Canceller interface {
	Cancel(ctx context.Context, id string) error
}

// WSHandler streams task events to websocket clients. Each client follows
// one task id at a time, or every task with events.GlobalTaskID, and may
// cancel tasks when a Canceller is configured.
type WSHandler struct {
	upgrader  websocket.Upgrader
	publisher events.Publisher
	canceller Canceller
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[*wsSession]struct{}
}

// NewWSHandler creates a handler. Callers authenticate requests before they
// reach it, so the upgrade accepts any origin.
func NewWSHandler(pub events.Publisher, canceller Canceller, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &WSHandler{
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		publisher: pub,
		canceller: canceller,
		logger:    logger,
		sessions:  make(map[*wsSession]struct{}),
	}
}

// wsSession is one connected client.
type wsSession struct {
	conn   *websocket.Conn
	outbox chan wsFrame
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	taskID string
	events <-chan events.Event
}

// ServeHTTP upgrades the request and reads client frames until the
// connection ends.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s := &wsSession{
		conn:   conn,
		outbox: make(chan wsFrame, wsOutboxSize),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	go h.write(s)
	h.read(s)
}

func (h *WSHandler) read(s *wsSession) {
	defer h.end(s)

	s.conn.SetReadLimit(wsMaxFrame)
	extend := func(string) error { return s.conn.SetReadDeadline(time.Now().Add(wsIdleTimeout)) }
	_ = extend("")
	s.conn.SetPongHandler(extend)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(s, errorFrame("invalid message format"))
			continue
		}
		h.dispatch(s, msg)
	}
}

// write is the only goroutine writing to the connection.
func (h *WSHandler) write(s *wsSession) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	defer s.conn.Close()

	for {
		select {
		case <-s.closed:
			return
		case f := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := s.conn.WriteJSON(f); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				h.end(s)
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.end(s)
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(s *wsSession, msg WSMessage) {
	switch msg.Type {
	case "ping":
		h.send(s, wsFrame{Type: "pong"})
	case "subscribe":
		if msg.TaskID == "" {
			h.send(s, errorFrame(`task_id required for subscribe (use "*" for all tasks)`))
			return
		}
		h.follow(s, msg.TaskID)
		h.send(s, wsFrame{Type: "subscribed", TaskID: msg.TaskID})
	case "unsubscribe":
		h.unfollow(s)
	case "command":
		h.command(s, msg)
	default:
		h.send(s, errorFrame("unknown message type: "+msg.Type))
	}
}

// follow replaces the session's subscription with one for taskID.
func (h *WSHandler) follow(s *wsSession, taskID string) {
	h.unfollow(s)
	ch := h.publisher.Subscribe(taskID)

	s.mu.Lock()
	s.taskID, s.events = taskID, ch
	s.mu.Unlock()
	select {
	case <-s.closed:
		h.unfollow(s)
		return
	default:
	}
	h.logger.Debug("websocket subscribed", "task_id", taskID)

	go func() {
		for {
			select {
			case <-s.closed:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				h.send(s, eventFrame(ev))
			}
		}
	}()
}

func (h *WSHandler) unfollow(s *wsSession) {
	s.mu.Lock()
	taskID, ch := s.taskID, s.events
	s.taskID, s.events = "", nil
	s.mu.Unlock()
	if ch != nil {
		h.publisher.Unsubscribe(taskID, ch)
	}
}

func (h *WSHandler) command(s *wsSession, msg WSMessage) {
	switch {
	case msg.TaskID == "":
		h.send(s, errorFrame("task_id required for command"))
		return
	case msg.Action != "cancel":
		h.send(s, errorFrame("unknown action: "+msg.Action))
		return
	case h.canceller == nil:
		h.send(s, errorFrame("commands are not available"))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), wsCancelTimeout)
		defer cancel()
		if err := h.canceller.Cancel(ctx, msg.TaskID); err != nil {
			h.send(s, errorFrame(err.Error()))
			return
		}
		h.send(s, wsFrame{Type: "command_result", TaskID: msg.TaskID, Action: msg.Action, Status: "cancelled"})
	}()
}

// send queues f for the client. Frames for a slow client are dropped.
func (h *WSHandler) send(s *wsSession, f wsFrame) {
	select {
	case <-s.closed:
	case s.outbox <- f:
	default:
		h.logger.Warn("websocket client too slow, dropping frame", "type", f.Type, "task_id", f.TaskID)
	}
}

// end removes the session and releases its subscription. It is safe to call
// more than once.
func (h *WSHandler) end(s *wsSession) {
	s.once.Do(func() {
		h.mu.Lock()
		delete(h.sessions, s)
		h.mu.Unlock()

		close(s.closed)
		h.unfollow(s)
		_ = s.conn.Close()
	})
}

// ConnectionCount returns the number of connected clients.
func (h *WSHandler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close disconnects every client.
func (h *WSHandler) Close() {
	h.mu.Lock()
	sessions := make([]*wsSession, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.end(s)
	}
}

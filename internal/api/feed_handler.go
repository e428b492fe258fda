package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/recitalhq/recital-api/internal/api/shared"
	"github.com/recitalhq/recital-api/internal/events"
	"github.com/recitalhq/recital-api/internal/platform/logger"
)

const (
	// pongWait is how long a feed connection may go silent before it is
	// considered dead.
	pongWait = 60 * time.Second

	// pingPeriod is the server ping interval; must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// feedSendBuffer is the per-connection outbound queue. A consumer that
	// falls this far behind is dropped rather than allowed to block the feed.
	feedSendBuffer = 32
)

// FeedHub fans clip change events out to connected websocket clients. Each
// client only receives events for its own clips. The hub subscribes to the
// clip broadcaster and must not block in HandleClipEvent, so slow consumers
// are disconnected instead of awaited.
type FeedHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[*feedConn]struct{}
}

// NewFeedHub creates a FeedHub ready to be subscribed to a clip broadcaster.
func NewFeedHub(log *slog.Logger) *FeedHub {
	if log == nil {
		log = slog.Default()
	}
	return &FeedHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.With(slog.String("component", "feed_hub")),
		conns:  make(map[*feedConn]struct{}),
	}
}

// HandleClipEvent implements events.ClipHandler. It queues the event to every
// connection belonging to the clip's owner and drops connections whose queue
// is full.
func (h *FeedHub) HandleClipEvent(ctx context.Context, event *events.ClipEvent) {
	ownerID := clipOwner(event)
	if ownerID == uuid.Nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal clip event", "error", err, "clip_id", event.ClipID())
		return
	}

	h.mu.Lock()
	var stale []*feedConn
	for c := range h.conns {
		if c.userID != ownerID {
			continue
		}
		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		delete(h.conns, c)
	}
	h.mu.Unlock()

	for _, c := range stale {
		h.logger.Warn("dropping slow feed consumer", "user_id", c.userID)
		c.close()
	}
}

// Feed handles GET /api/feed requests, upgrading to a websocket that streams
// the user's clip changes as JSON messages.
func (h *FeedHub) Feed(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	c := &feedConn{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, feedSendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	c.readPump()

	h.remove(c)
	c.close()
}

// Close disconnects every feed client. Used during shutdown.
func (h *FeedHub) Close() {
	h.mu.Lock()
	conns := make([]*feedConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*feedConn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *FeedHub) remove(c *feedConn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func clipOwner(event *events.ClipEvent) uuid.UUID {
	if event.Clip != nil {
		return event.Clip.UserID
	}
	if event.Old != nil {
		return event.Old.UserID
	}
	return uuid.Nil
}

// feedConn is one websocket subscriber. The write pump owns all writes to
// the connection; the read pump only services control frames.
type feedConn struct {
	conn   *websocket.Conn
	userID uuid.UUID
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (c *feedConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump discards client messages and keeps the read deadline fresh from
// pongs. Returns when the connection dies.
func (c *feedConn) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *feedConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		closeWithReason(c.conn, websocket.CloseGoingAway, "")
		_ = c.conn.Close()
	})
}

// Package ws implements the update broadcaster over WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/reviewd-io/reviewd/internal/config"
	"github.com/reviewd-io/reviewd/internal/domain/review"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SnapshotSource provides the point-in-time state handed to new observers.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]review.Request, error)
}

// conn wraps a single observer connection. writeMu serializes all frames
// to the peer so the snapshot always precedes any update event.
type conn struct {
	ws      *websocket.Conn
	cancel  context.CancelFunc
	writeMu sync.Mutex
}

// Hub owns the subscriber registry and fans review updates out to every
// registered observer. Losing one observer never affects the others; a
// restarted process starts with zero subscribers.
type Hub struct {
	mu       sync.RWMutex
	conns    map[*conn]struct{}
	source   SnapshotSource
	cfg      config.Broadcast
	sleep    func(time.Duration) // for testing the snapshot backoff
	shutdown chan struct{}
}

// NewHub creates a hub that serves snapshots from source.
func NewHub(source SnapshotSource, cfg config.Broadcast) *Hub {
	return &Hub{
		conns:    make(map[*conn]struct{}),
		source:   source,
		cfg:      cfg,
		sleep:    time.Sleep,
		shutdown: make(chan struct{}),
	}
}

// HandleWS upgrades the request to a WebSocket subscription. The observer
// receives one snapshot message, then update events and periodic
// keepalives until it disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{ws: ws, cancel: cancel}

	// Snapshot fetch and registration happen under the registry lock, and
	// the conn's write lock is taken before it becomes visible to Publish.
	// Events racing with the join therefore land after the snapshot frame.
	c.writeMu.Lock()
	h.mu.Lock()
	snapshot, snapErr := h.fetchSnapshot(ctx)
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	if snapErr != nil {
		slog.Warn("snapshot unavailable for new subscriber", "error", snapErr)
		h.writeLocked(ctx, c, Message{Type: EventSnapshotUnavailable, Payload: json.RawMessage(`{}`)})
	} else {
		data, err := json.Marshal(SnapshotEvent{Requests: orEmpty(snapshot)})
		if err != nil {
			slog.Error("marshal snapshot", "error", err)
		} else {
			h.writeLocked(ctx, c, Message{Type: EventSnapshot, Payload: data})
		}
	}
	c.writeMu.Unlock()

	slog.Info("observer connected", "remote", r.RemoteAddr, "subscribers", h.ConnectionCount())

	go h.keepalive(ctx, c)

	// Read loop detects disconnects and consumes control frames.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// fetchSnapshot reads the current state with a small fixed number of
// retries and a fixed backoff. Exhausting the retries is not fatal for
// the subscription; the observer just starts without history.
func (h *Hub) fetchSnapshot(ctx context.Context) ([]review.Request, error) {
	var (
		snapshot []review.Request
		err      error
	)
	for attempt := 0; attempt < h.cfg.SnapshotRetries; attempt++ {
		if attempt > 0 {
			h.sleep(h.cfg.SnapshotBackoff)
		}
		snapshot, err = h.source.Snapshot(ctx)
		if err == nil {
			return snapshot, nil
		}
	}
	return nil, err
}

// Publish sends the update to every registered observer. Implements the
// broadcast port.
func (h *Hub) Publish(ctx context.Context, event review.UpdateEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal update event", "error", err)
		return
	}
	h.broadcast(ctx, Message{Type: EventReviewUpdate, Payload: data})
}

// broadcast writes msg to all current subscribers. A failed write removes
// only the failing subscriber.
func (h *Hub) broadcast(ctx context.Context, msg Message) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.writeMu.Lock()
		err := h.write(ctx, c, msg)
		c.writeMu.Unlock()
		if err != nil {
			slog.Debug("observer write failed, removing", "error", err)
			h.remove(c)
		}
	}
}

// write sends one frame with the configured bounded write timeout.
// Callers hold c.writeMu.
func (h *Hub) write(ctx context.Context, c *conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageText, data)
}

// writeLocked is write for callers already holding c.writeMu, swallowing
// the error: a failed snapshot write will surface through the read loop.
func (h *Hub) writeLocked(ctx context.Context, c *conn, msg Message) {
	if err := h.write(ctx, c, msg); err != nil {
		slog.Debug("initial write failed", "error", err)
	}
}

// keepalive pings the observer at a fixed cadence so idle connections are
// not reclaimed by intermediaries. Stops when the conn's context is
// cancelled or the ping fails.
func (h *Hub) keepalive(ctx context.Context, c *conn) {
	ticker := time.NewTicker(h.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.shutdown:
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// ConnectionCount returns the number of active subscribers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close terminates all subscriber connections.
func (h *Hub) Close() {
	close(h.shutdown)
	h.mu.Lock()
	for c := range h.conns {
		c.cancel()
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.conns, c)
	}
	h.mu.Unlock()
}

// remove unregisters a subscriber. Idempotent; safe to call from the read
// loop, a failed broadcast write and the keepalive concurrently.
func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("observer disconnected", "subscribers", len(h.conns))
	}
}

// orEmpty ensures JSON serialization produces [] instead of null.
func orEmpty(reqs []review.Request) []review.Request {
	if reqs == nil {
		return []review.Request{}
	}
	return reqs
}

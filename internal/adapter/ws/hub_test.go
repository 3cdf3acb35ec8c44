package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/reviewd-io/reviewd/internal/config"
	"github.com/reviewd-io/reviewd/internal/domain/review"
)

// fakeSource is a SnapshotSource with scriptable failures.
type fakeSource struct {
	mu       sync.Mutex
	requests []review.Request
	failures int // number of calls to fail before succeeding
	calls    int
}

func (f *fakeSource) Snapshot(context.Context) ([]review.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("store unavailable")
	}
	return f.requests, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testCfg() config.Broadcast {
	return config.Broadcast{
		KeepaliveInterval: 50 * time.Millisecond,
		WriteTimeout:      2 * time.Second,
		SnapshotRetries:   3,
		SnapshotBackoff:   time.Millisecond,
	}
}

func newTestHub(t *testing.T, source *fakeSource) (*Hub, string) {
	t.Helper()
	hub := NewHub(source, testCfg())
	hub.sleep = func(time.Duration) {}
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return c
}

func readMessage(t *testing.T, c *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	return msg
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ConnectionCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, got %d", want, hub.ConnectionCount())
}

func pendingRequest(id string) review.Request {
	now := time.Now().UTC()
	return review.Request{
		ID:            id,
		Payload:       review.Payload{From: "a@example.com", To: "b@example.com", Subject: "s"},
		ProposedLabel: review.LabelSpam,
		Status:        review.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestSubscribeReceivesSnapshot(t *testing.T) {
	source := &fakeSource{requests: []review.Request{pendingRequest("r1"), pendingRequest("r2")}}
	_, url := newTestHub(t, source)

	c := dial(t, url)
	defer c.Close(websocket.StatusNormalClosure, "")

	msg := readMessage(t, c)
	if msg.Type != EventSnapshot {
		t.Fatalf("expected snapshot first, got %s", msg.Type)
	}
	var snap SnapshotEvent
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Requests) != 2 {
		t.Fatalf("expected 2 requests in snapshot, got %d", len(snap.Requests))
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	source := &fakeSource{}
	hub, url := newTestHub(t, source)

	c := dial(t, url)
	defer c.Close(websocket.StatusNormalClosure, "")
	_ = readMessage(t, c) // snapshot

	hub.Publish(context.Background(), review.UpdateEvent{
		ID:          "r1",
		FinalLabel:  review.LabelImportant,
		CompletedAt: time.Now().UTC(),
	})

	msg := readMessage(t, c)
	if msg.Type != EventReviewUpdate {
		t.Fatalf("expected update event, got %s", msg.Type)
	}
	var ev review.UpdateEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != "r1" || ev.FinalLabel != review.LabelImportant {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSnapshotRetriesThenSucceeds(t *testing.T) {
	source := &fakeSource{failures: 2, requests: []review.Request{pendingRequest("r1")}}
	_, url := newTestHub(t, source)

	c := dial(t, url)
	defer c.Close(websocket.StatusNormalClosure, "")

	msg := readMessage(t, c)
	if msg.Type != EventSnapshot {
		t.Fatalf("expected snapshot after retries, got %s", msg.Type)
	}
	if got := source.callCount(); got != 3 {
		t.Fatalf("expected 3 snapshot attempts, got %d", got)
	}
}

func TestSnapshotUnavailableKeepsSubscriberActive(t *testing.T) {
	source := &fakeSource{failures: 100}
	hub, url := newTestHub(t, source)

	c := dial(t, url)
	defer c.Close(websocket.StatusNormalClosure, "")

	msg := readMessage(t, c)
	if msg.Type != EventSnapshotUnavailable {
		t.Fatalf("expected snapshot unavailable, got %s", msg.Type)
	}

	// The subscription survives; later updates still arrive.
	hub.Publish(context.Background(), review.UpdateEvent{ID: "r9", FinalLabel: review.LabelSpam})
	if got := readMessage(t, c); got.Type != EventReviewUpdate {
		t.Fatalf("expected update after failed snapshot, got %s", got.Type)
	}
}

func TestDisconnectDuringPublish(t *testing.T) {
	source := &fakeSource{}
	hub, url := newTestHub(t, source)

	stay := dial(t, url)
	defer stay.Close(websocket.StatusNormalClosure, "")
	_ = readMessage(t, stay)

	leave := dial(t, url)
	_ = readMessage(t, leave)
	waitForCount(t, hub, 2)

	_ = leave.Close(websocket.StatusNormalClosure, "")
	waitForCount(t, hub, 1)

	hub.Publish(context.Background(), review.UpdateEvent{ID: "r1", FinalLabel: review.LabelGeneral})

	if msg := readMessage(t, stay); msg.Type != EventReviewUpdate {
		t.Fatalf("remaining subscriber missed the event, got %s", msg.Type)
	}
}

func TestKeepaliveDoesNotDropIdleSubscriber(t *testing.T) {
	source := &fakeSource{}
	hub, url := newTestHub(t, source)

	c := dial(t, url)
	defer c.Close(websocket.StatusNormalClosure, "")
	_ = readMessage(t, c)

	// Sit through several keepalive intervals, then verify delivery.
	time.Sleep(4 * testCfg().KeepaliveInterval)
	waitForCount(t, hub, 1)

	done := make(chan Message, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var msg Message
		_ = json.Unmarshal(data, &msg)
		done <- msg
	}()

	hub.Publish(context.Background(), review.UpdateEvent{ID: "r1", FinalLabel: review.LabelSpam})

	select {
	case msg := <-done:
		if msg.Type != EventReviewUpdate {
			t.Fatalf("expected update, got %s", msg.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("idle subscriber never received the event")
	}
}

func TestPublishNoSubscribers(t *testing.T) {
	hub := NewHub(&fakeSource{}, testCfg())
	// Publish with no connections should not panic.
	hub.Publish(context.Background(), review.UpdateEvent{ID: "r1"})
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.ConnectionCount())
	}
}

func TestRemoveNonexistent(t *testing.T) {
	hub := NewHub(&fakeSource{}, testCfg())
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel})
}

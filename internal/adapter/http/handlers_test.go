package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reviewd-io/reviewd/internal/adapter/memstore"
	"github.com/reviewd-io/reviewd/internal/domain/review"
	"github.com/reviewd-io/reviewd/internal/service"
)

type stubClassifier struct {
	label review.Label
}

func (c *stubClassifier) Classify(_ context.Context, _ review.Payload) (review.Label, error) {
	return c.label, nil
}

type stubDispatcher struct {
	dispatched int
}

func (d *stubDispatcher) Name() string { return "stub" }

func (d *stubDispatcher) Dispatch(_ context.Context, _ *review.Request, _ []review.Label) error {
	d.dispatched++
	return nil
}

type stubBroadcaster struct {
	events []review.UpdateEvent
}

func (b *stubBroadcaster) Publish(_ context.Context, ev review.UpdateEvent) {
	b.events = append(b.events, ev)
}

func newTestRouter(t *testing.T) (chi.Router, *memstore.Store, *stubBroadcaster) {
	t.Helper()
	st := memstore.New()
	bc := &stubBroadcaster{}
	h := &Handlers{
		Intake:     service.NewIntake(&stubClassifier{label: review.LabelImportant}, st, &stubDispatcher{}, nil, 0),
		Reconciler: service.NewReconciler(st, bc),
		Store:      st,
	}
	r := chi.NewRouter()
	MountRoutes(r, h, "")
	return r, st, bc
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func seedPending(t *testing.T, st *memstore.Store, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := st.Create(context.Background(), &review.Request{
		ID:            id,
		Payload:       review.Payload{From: "a@example.com", Subject: "hello"},
		ProposedLabel: review.LabelNewsletter,
		Status:        review.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSubmitMessageCreatesPendingRequest(t *testing.T) {
	r, st, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/messages", review.Payload{
		From:    "sender@example.com",
		Subject: "quarterly report",
		Body:    "see attached",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var got review.Request
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID == "" {
		t.Error("response has no id")
	}
	if got.Status != review.StatusPending {
		t.Errorf("status = %q, want %q", got.Status, review.StatusPending)
	}
	if got.ProposedLabel != review.LabelImportant {
		t.Errorf("proposed_label = %q, want %q", got.ProposedLabel, review.LabelImportant)
	}

	if _, err := st.Get(context.Background(), got.ID); err != nil {
		t.Errorf("record not in store: %v", err)
	}
}

func TestSubmitMessageRejectsMissingFrom(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/messages", review.Payload{Subject: "no sender"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSubmitMessageRejectsMalformedJSON(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestReviewCallbackCompletesRequest(t *testing.T) {
	r, st, bc := newTestRouter(t)
	seedPending(t, st, "rq-1")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/webhooks/review", review.Callback{
		CorrelationID: "rq-1",
		Approved:      true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := callbackStatus(t, rec); got != "completed" {
		t.Errorf("status body = %q, want %q", got, "completed")
	}

	req, err := st.Get(context.Background(), "rq-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if req.Status != review.StatusCompleted {
		t.Errorf("store status = %q, want %q", req.Status, review.StatusCompleted)
	}
	if len(bc.events) != 1 {
		t.Errorf("broadcast events = %d, want 1", len(bc.events))
	}
}

func TestReviewCallbackReplayIsIdempotent(t *testing.T) {
	r, st, bc := newTestRouter(t)
	seedPending(t, st, "rq-1")

	cb := review.Callback{CorrelationID: "rq-1", Approved: true}
	first := doJSON(t, r, http.MethodPost, "/api/v1/webhooks/review", cb)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}

	second := doJSON(t, r, http.MethodPost, "/api/v1/webhooks/review", cb)
	if second.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want %d", second.Code, http.StatusOK)
	}
	if got := callbackStatus(t, second); got != "already processed" {
		t.Errorf("replay status body = %q, want %q", got, "already processed")
	}
	if len(bc.events) != 1 {
		t.Errorf("broadcast events after replay = %d, want 1", len(bc.events))
	}
}

func TestReviewCallbackUnknownIDIsNotAnError(t *testing.T) {
	r, _, bc := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/webhooks/review", review.Callback{
		CorrelationID: "no-such-id",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := callbackStatus(t, rec); got != "no record found" {
		t.Errorf("status body = %q, want %q", got, "no record found")
	}
	if len(bc.events) != 0 {
		t.Errorf("broadcast events = %d, want 0", len(bc.events))
	}
}

func TestReviewCallbackMissingCorrelationID(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/webhooks/review", review.Callback{Comment: "looks fine"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestReviewCallbackOverrideComment(t *testing.T) {
	r, st, _ := newTestRouter(t)
	seedPending(t, st, "rq-1")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/webhooks/review", review.Callback{
		CorrelationID: "rq-1",
		Comment:       "manual classify: spam",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	req, err := st.Get(context.Background(), "rq-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if req.FinalLabel == nil || *req.FinalLabel != review.LabelSpam {
		t.Errorf("final label = %v, want %q", req.FinalLabel, review.LabelSpam)
	}
}

func TestListRequestsReturnsEmptyArray(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/requests", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want empty array", body)
	}
}

func TestGetRequestNotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/requests/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func callbackStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp callbackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	return resp.Status
}

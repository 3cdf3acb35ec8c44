package http

import (
	"net/http"
	"time"

	"github.com/reviewd-io/reviewd/internal/adapter/otel"
	"github.com/reviewd-io/reviewd/internal/domain/review"
	"github.com/reviewd-io/reviewd/internal/port/store"
	"github.com/reviewd-io/reviewd/internal/service"
)

// Handlers bundles the services the HTTP surface exposes.
type Handlers struct {
	Intake     *service.Intake
	Reconciler *service.Reconciler
	Store      store.CorrelationStore
	Metrics    *otel.Metrics // optional
}

// SubmitMessage classifies a message and opens a review request.
func (h *Handlers) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	payload, ok := readJSON[review.Payload](w, r)
	if !ok {
		return
	}

	ctx, span := otel.StartIntakeSpan(r.Context(), payload.From)
	defer span.End()
	start := time.Now()

	req, err := h.Intake.Submit(ctx, payload)
	if err != nil {
		writeDomainError(w, err, "submit failed")
		return
	}

	if h.Metrics != nil {
		h.Metrics.RequestsCreated.Add(ctx, 1)
		h.Metrics.IntakeDuration.Record(ctx, time.Since(start).Seconds())
	}

	writeJSON(w, http.StatusCreated, req)
}

type callbackResponse struct {
	Status string `json:"status"`
}

// HandleReviewCallback reconciles an asynchronous reviewer decision.
// Uncorrelatable callbacks still get a successful, informative response:
// redelivery is expected and must stay safe, and the failure is not the
// caller's fault.
func (h *Handlers) HandleReviewCallback(w http.ResponseWriter, r *http.Request) {
	cb, ok := readJSON[review.Callback](w, r)
	if !ok {
		return
	}

	ctx, span := otel.StartReconcileSpan(r.Context(), cb.CorrelationID)
	defer span.End()

	result, err := h.Reconciler.Reconcile(ctx, cb)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable, retry later")
		return
	}

	if h.Metrics != nil {
		h.Metrics.CallbacksReceived.Add(ctx, 1)
	}

	switch result {
	case service.ReconcileMalformed:
		writeError(w, http.StatusBadRequest, "correlation_id is required")
	case service.ReconcileUnknown:
		writeJSON(w, http.StatusOK, callbackResponse{Status: "no record found"})
	case service.ReconcileAlreadyProcessed:
		writeJSON(w, http.StatusOK, callbackResponse{Status: "already processed"})
	default:
		if h.Metrics != nil {
			h.Metrics.ReviewsReconciled.Add(ctx, 1)
			h.Metrics.UpdatesBroadcast.Add(ctx, 1)
		}
		writeJSON(w, http.StatusOK, callbackResponse{Status: "completed"})
	}
}

// ListRequests returns the full store snapshot, newest first.
func (h *Handlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.Store.Snapshot(r.Context())
	if err != nil {
		writeDomainError(w, err, "list requests failed")
		return
	}
	if snapshot == nil {
		snapshot = []review.Request{}
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// GetRequest returns a single review request by correlation id.
func (h *Handlers) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

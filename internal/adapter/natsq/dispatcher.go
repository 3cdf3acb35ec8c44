// Package natsq implements a dispatch.Dispatcher publishing review
// requests to NATS JetStream, where external review frontends consume
// them and answer through the callback webhook.
package natsq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/reviewd-io/reviewd/internal/domain/review"
)

const (
	providerName = "nats"
	streamName   = "REVIEWD"

	// SubjectReviewRequested carries one envelope per dispatched request.
	SubjectReviewRequested = "reviews.requested"
)

// Envelope is the message published for each dispatched review request.
type Envelope struct {
	CorrelationID string         `json:"correlation_id"`
	Payload       review.Payload `json:"payload"`
	ProposedLabel review.Label   `json:"proposed_label"`
	Alternatives  []review.Label `json:"alternatives"`
}

// Dispatcher publishes review requests to JetStream.
type Dispatcher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the stream exists.
func Connect(ctx context.Context, url string) (*Dispatcher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"reviews.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Dispatcher{nc: nc, js: js}, nil
}

func (d *Dispatcher) Name() string { return providerName }

// Dispatch publishes the request envelope. JetStream persistence means a
// review frontend that is down at dispatch time still sees the request
// when it reconnects.
func (d *Dispatcher) Dispatch(ctx context.Context, req *review.Request, alternatives []review.Label) error {
	data, err := json.Marshal(Envelope{
		CorrelationID: req.ID,
		Payload:       req.Payload,
		ProposedLabel: req.ProposedLabel,
		Alternatives:  alternatives,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if _, err := d.js.Publish(ctx, SubjectReviewRequested, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", SubjectReviewRequested, err)
	}
	return nil
}

// KeyValue returns the named JetStream KV bucket, creating it when
// absent. Used as the shared L2 classification cache.
func (d *Dispatcher) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := d.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Close shuts down the NATS connection.
func (d *Dispatcher) Close() {
	d.nc.Close()
}

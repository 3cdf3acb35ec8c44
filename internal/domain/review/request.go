// Package review defines the review request domain entity and its lifecycle.
package review

import (
	"fmt"
	"time"

	"github.com/reviewd-io/reviewd/internal/domain"
)

// Status represents the current state of a review request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Label is one value of the closed classification vocabulary.
type Label string

const (
	LabelSpam       Label = "spam"
	LabelImportant  Label = "important"
	LabelNewsletter Label = "newsletter"
	LabelPromotion  Label = "promotion"
	LabelGeneral    Label = "general"
)

// DefaultLabel is applied when no explicit label can be derived from a
// reviewer's response.
const DefaultLabel = LabelGeneral

// Labels is the full vocabulary, in display order.
var Labels = []Label{LabelSpam, LabelImportant, LabelNewsletter, LabelPromotion, LabelGeneral}

// ValidLabel reports whether l belongs to the vocabulary.
func ValidLabel(l Label) bool {
	for _, v := range Labels {
		if v == l {
			return true
		}
	}
	return false
}

// Alternatives returns the vocabulary minus the given label, for presenting
// choices to a reviewer alongside the proposal.
func Alternatives(proposed Label) []Label {
	out := make([]Label, 0, len(Labels)-1)
	for _, v := range Labels {
		if v != proposed {
			out = append(out, v)
		}
	}
	return out
}

// Payload holds the immutable fields of the message under review.
type Payload struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate checks the minimum fields required to classify a message.
func (p Payload) Validate() error {
	if p.From == "" {
		return fmt.Errorf("%w: from is required", domain.ErrValidation)
	}
	if p.Subject == "" && p.Body == "" {
		return fmt.Errorf("%w: subject or body is required", domain.ErrValidation)
	}
	return nil
}

// Request is one classified message awaiting (or past) human review.
// Everything except Status, FinalLabel, ReviewerComment and UpdatedAt is
// write-once at creation; Status moves pending -> completed at most once.
type Request struct {
	ID              string    `json:"id"`
	Payload         Payload   `json:"payload"`
	ProposedLabel   Label     `json:"proposed_label"`
	Status          Status    `json:"status"`
	FinalLabel      *Label    `json:"final_label,omitempty"`
	ReviewerComment string    `json:"reviewer_comment,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Callback is the inbound message delivered by the external review mechanism.
type Callback struct {
	CorrelationID string `json:"correlation_id"`
	Approved      bool   `json:"approved"`
	Comment       string `json:"comment,omitempty"`
}

// UpdateEvent describes one completed pending -> completed transition.
// It is produced exactly once per transition and never mutated.
type UpdateEvent struct {
	ID          string    `json:"id"`
	FinalLabel  Label     `json:"final_label"`
	Comment     string    `json:"comment,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

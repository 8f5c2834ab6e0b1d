// Package events carries change notifications out of the service layer: a
// per-creator version feed for dashboard polling and an optional NATS stream.
package events

import (
	"context"
	"errors"
	"time"
)

const (
	TypeSurveyCreated       = "survey.created"
	TypeSurveyStatusChanged = "survey.status_changed"
	TypeInvitationCreated   = "invitation.created"
	TypeResponseSubmitted   = "response.submitted"
)

// Event describes one committed mutation. CreatorID is the survey owner whose
// dashboard the change affects.
type Event struct {
	Type      string    `json:"type"`
	CreatorID string    `json:"creatorId"`
	SurveyID  string    `json:"surveyId,omitempty"`
	SubjectID string    `json:"subjectId,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Feed is a Publisher that also exposes a monotonically increasing version per creator.
type Feed interface {
	Publisher
	Version(ctx context.Context, creatorID string) (int64, error)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/soaringjerry/Canvass/internal/events"
	"github.com/soaringjerry/Canvass/internal/metrics"
	"github.com/soaringjerry/Canvass/internal/models"
)

// AuditStore is implemented by every store that records the audit trail.
type AuditStore interface {
	AddAudit(ctx context.Context, entry models.AuditEntry)
}

func defaultID() string { return uuid.NewString() }

// defaultToken returns an unguessable url-safe invitation token.
func defaultToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func utcNow() time.Time { return time.Now().UTC() }

// publish never fails the caller; the write it describes is already committed.
func publish(ctx context.Context, p events.Publisher, ev events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		metrics.EventPublishErrors.Inc()
		log.Ctx(ctx).Warn().Err(err).Str("event", ev.Type).Msg("publish event")
	}
}

// reasonLabel maps an outcome onto a metrics label.
func reasonLabel(err error) string {
	if err == nil {
		return metrics.Outcome("")
	}
	if se, ok := AsServiceError(err); ok && se.Reason != "" {
		return string(se.Reason)
	}
	return "error"
}

// Package audit appends compliance events. Write failures are logged and
// never reach the caller.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/logger"
)

// ActionCandidateSearched is recorded once per candidate returned by a search.
const ActionCandidateSearched = "CANDIDATE_SEARCHED"

const writeTimeout = 5 * time.Second

// Writer persists a batch of events.
type Writer interface {
	InsertAuditEvents(ctx context.Context, events []domain.AuditEvent) error
}

type Log struct {
	writer Writer
	now    func() time.Time
	log    *zap.Logger
}

func New(w Writer, log *zap.Logger) *Log {
	return &Log{writer: w, now: time.Now, log: logger.OrNop(log).Named("audit")}
}

// Record stamps missing ids and timestamps, then writes the events. The
// write outlives a cancelled request context.
func (l *Log) Record(ctx context.Context, events ...domain.AuditEvent) {
	if len(events) == 0 {
		return
	}
	now := l.now().UTC()
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
		if events[i].CreatedAt.IsZero() {
			events[i].CreatedAt = now
		}
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := l.writer.InsertAuditEvents(wctx, events); err != nil {
		l.log.Error("audit write failed",
			zap.Int("events", len(events)),
			zap.String("action", events[0].Action),
			zap.String("tenant_id", events[0].TenantID),
			zap.Error(err))
	}
}

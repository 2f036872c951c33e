package audit

import (
	"context"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/logging"
)

// recorderChanSize is the buffer size for the async audit channel.
// Entries beyond this are dropped (best-effort) to avoid back-pressure on
// the auth flows.
const recorderChanSize = 256

// Recorder writes audit entries asynchronously through a buffered channel
// and a single drain goroutine. One writer is kinder to SQLite's serial
// write model than a goroutine per entry, and a full buffer drops entries
// rather than delaying a login.
type Recorder struct {
	repo   Repository
	logger *logging.Logger
	ch     chan *Entry
}

// NewRecorder creates a recorder. Run must be started for entries to land.
func NewRecorder(repo Repository, logger *logging.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
		ch:     make(chan *Entry, recorderChanSize),
	}
}

// Record enqueues one audit event. Safe for concurrent use; never blocks.
// The signature matches auth.AuditFunc so the method can be wired straight
// into the auth service.
func (r *Recorder) Record(action, entityType, entityID, principalID, source string, details map[string]any) {
	entry := &Entry{
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		PrincipalID: principalID,
		Source:      source,
		Details:     details,
	}

	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("audit channel full, dropping entry",
			"action", action,
			"entity_type", entityType,
		)
	}
}

// Run drains the channel and writes entries serially until the context is
// cancelled, then flushes whatever remains in the buffer.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.ch:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.ch:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *Entry) {
	// Detached context: a cancelled request must not lose its trail.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}

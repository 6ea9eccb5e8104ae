// Package cookiesync is the hook run after every identity response so
// partner integrations can re-sync their ids.
package cookiesync

import (
	"context"

	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/dmitrijs2005/idsync/internal/models"
)

// Syncer is called while the identity state is locked. Implementations must
// not call back into the resolver.
type Syncer interface {
	AttemptCookieSync(ctx context.Context, previous, next models.MPID)
}

// Noop does nothing.
type Noop struct{}

func (Noop) AttemptCookieSync(context.Context, models.MPID, models.MPID) {}

// LogSyncer only records that a sync would run.
type LogSyncer struct {
	log logging.Logger
}

func NewLogSyncer(log logging.Logger) *LogSyncer {
	return &LogSyncer{log: log}
}

func (s *LogSyncer) AttemptCookieSync(ctx context.Context, previous, next models.MPID) {
	if next.IsZero() {
		return
	}
	s.log.Debug(ctx, "cookie sync", "previous", previous, "mpid", next, "changed", previous != next)
}

package rag

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Event describes one finished query
type Event struct {
	RequestID    string
	Question     string
	Answer       string
	SourcesCount int
	NoResults    bool
	Latency      time.Duration
	Err          error
}

// Hook observes finished queries. Observers run off the request path and
// their failures never reach the caller.
type Hook interface {
	Observe(ctx context.Context, ev Event)
}

type HookFunc func(ctx context.Context, ev Event)

func (f HookFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

func (r *Pipeline) emit(ctx context.Context, ev Event) {
	if len(r.hooks) == 0 {
		return
	}
	hctx := context.WithoutCancel(ctx)
	for _, h := range r.hooks {
		go func(h Hook) {
			defer func() {
				if p := recover(); p != nil {
					log.Error().Interface("panic", p).Str("request_id", ev.RequestID).Msg("Query hook panicked")
				}
			}()
			h.Observe(hctx, ev)
		}(h)
	}
}

package db

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"handbook-rag/internal/models"
	"handbook-rag/internal/rag"
)

type QueryLog struct {
	bun.BaseModel `bun:"table:query_logs,alias:ql"`
	ID            int64     `bun:"id,pk,autoincrement"`
	RequestID     string    `bun:"request_id"`
	Question      string    `bun:"question,notnull"`
	Answer        string    `bun:"answer,nullzero"`
	SourcesCount  int       `bun:"sources_count,notnull"`
	IPAddress     string    `bun:"ip_address,nullzero"`
	UserAgent     string    `bun:"user_agent,nullzero"`
	Referer       string    `bun:"referer,nullzero"`
	Country       string    `bun:"country,nullzero"`
	City          string    `bun:"city,nullzero"`
	Region        string    `bun:"region,nullzero"`
	Latitude      *float64  `bun:"latitude"`
	Longitude     *float64  `bun:"longitude"`
	LatencyMs     int64     `bun:"latency_ms,notnull"`
	Error         string    `bun:"error,nullzero"`
	Success       bool      `bun:"success,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

const defaultInsertTimeout = 5 * time.Second

// QueryLogger records finished queries in query_logs. Insert failures are logged and dropped.
type QueryLogger struct {
	db      *bun.DB
	timeout time.Duration
}

func NewQueryLogger(db *bun.DB) *QueryLogger {
	return &QueryLogger{db: db, timeout: defaultInsertTimeout}
}

// hooks get a context without cancellation, so every insert carries its own deadline
func (q *QueryLogger) insertContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, q.timeout)
}

func (q *QueryLogger) Observe(ctx context.Context, ev rag.Event) {
	entry := newQueryLog(ev, models.RequestInfoFrom(ctx))
	ictx, cancel := q.insertContext(ctx)
	defer cancel()
	if _, err := q.db.NewInsert().Model(entry).Exec(ictx); err != nil {
		log.Error().Err(err).Str("request_id", ev.RequestID).Msg("Failed to log query")
	}
}

func newQueryLog(ev rag.Event, info models.RequestInfo) *QueryLog {
	entry := &QueryLog{
		RequestID:    ev.RequestID,
		Question:     ev.Question,
		Answer:       ev.Answer,
		SourcesCount: ev.SourcesCount,
		IPAddress:    info.IPAddress,
		UserAgent:    info.UserAgent,
		Referer:      info.Referer,
		Country:      info.Country,
		City:         info.City,
		Region:       info.Region,
		Latitude:     info.Latitude,
		Longitude:    info.Longitude,
		LatencyMs:    ev.Latency.Milliseconds(),
		Success:      ev.Err == nil,
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	return entry
}

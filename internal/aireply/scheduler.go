package aireply

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/service"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/workerpool"
)

var ErrQueueFull = errors.New("reply queue is full")

// PoolScheduler runs replies in-process on a dedicated pool so rate limit
// backoff never holds up message fan-out.
type PoolScheduler struct {
	engine  *Engine
	pool    *workerpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

func NewPoolScheduler(engine *Engine, pool *workerpool.Pool, timeout time.Duration, logger *slog.Logger) *PoolScheduler {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PoolScheduler{engine: engine, pool: pool, timeout: timeout, logger: logger}
}

func (s *PoolScheduler) ScheduleReply(_ context.Context, job service.ReplyJob) error {
	if !s.engine.Enabled() {
		return nil
	}

	ok := s.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := s.engine.Reply(ctx, job); err != nil {
			s.logger.Error("Reply task failed",
				"conversationId", job.ConversationID,
				"botId", job.BotID,
				"error", err)
		}
	})
	if !ok {
		return ErrQueueFull
	}
	return nil
}

var _ service.ReplyScheduler = (*PoolScheduler)(nil)

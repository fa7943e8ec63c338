package aireply

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/service"
)

const (
	TaskTypeReply = "aireply:reply"
	DefaultQueue  = "aireply"
)

// NewReplyTask encodes job as an asynq task.
func NewReplyTask(job service.ReplyJob) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReply, payload), nil
}

// QueueScheduler enqueues replies on Redis for a QueueWorker to run.
type QueueScheduler struct {
	client  *asynq.Client
	queue   string
	timeout time.Duration
}

func NewQueueScheduler(redis asynq.RedisConnOpt, queue string, timeout time.Duration) *QueueScheduler {
	if queue == "" {
		queue = DefaultQueue
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &QueueScheduler{client: asynq.NewClient(redis), queue: queue, timeout: timeout}
}

func (s *QueueScheduler) ScheduleReply(ctx context.Context, job service.ReplyJob) error {
	task, err := NewReplyTask(job)
	if err != nil {
		return err
	}
	// the engine already retries rate limits; asynq retries would double-post
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(s.timeout),
	)
	return err
}

func (s *QueueScheduler) Close() error {
	return s.client.Close()
}

var _ service.ReplyScheduler = (*QueueScheduler)(nil)

// QueueWorker consumes reply tasks.
type QueueWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	engine *Engine
	logger *slog.Logger
}

func NewQueueWorker(redis asynq.RedisConnOpt, queue string, concurrency int, engine *Engine, logger *slog.Logger) *QueueWorker {
	if queue == "" {
		queue = DefaultQueue
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &QueueWorker{engine: engine, logger: logger, mux: asynq.NewServeMux()}
	w.server = asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("Reply task failed", "type", task.Type(), "error", err)
		}),
	})
	w.mux.HandleFunc(TaskTypeReply, w.handle)
	return w
}

func (w *QueueWorker) handle(ctx context.Context, task *asynq.Task) error {
	var job service.ReplyJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("decode reply job: %v: %w", err, asynq.SkipRetry)
	}
	_, err := w.engine.Reply(ctx, job)
	return err
}

// Start runs the worker in the background.
func (w *QueueWorker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	w.logger.Info("Reply worker started")
	return nil
}

func (w *QueueWorker) Shutdown() {
	w.server.Shutdown()
}

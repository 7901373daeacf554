package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/conces/conces-api/internal/service"
)

// Worker runs the asynq server that processes export tasks, plus a
// scheduler for the periodic file cleanup.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *zap.Logger
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts       asynq.RedisClientOpt
	Concurrency     int
	CleanupSchedule string
	Exports         *service.ExportService
	Logger          *zap.Logger
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Exports == nil {
		return nil, errors.New("jobs: export service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeExport, exportHandler(cfg.Exports, logger))
	mux.HandleFunc(TaskTypeExportCleanup, cleanupHandler(cfg.Exports, logger))

	var scheduler *asynq.Scheduler
	if cfg.CleanupSchedule != "" {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		if _, err := scheduler.Register(cfg.CleanupSchedule, NewExportCleanupTask()); err != nil {
			return nil, err
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

func (w *Worker) shutdown() {
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
}

func exportHandler(exports *service.ExportService, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ExportPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("malformed export task payload", zap.Error(err))
			return asynq.SkipRetry
		}
		if err := exports.Process(ctx, payload.JobID); err != nil {
			logger.Error("export task failed", zap.String("job_id", payload.JobID), zap.Error(err))
			return err
		}
		return nil
	}
}

func cleanupHandler(exports *service.ExportService, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := exports.Cleanup(0)
		if err != nil {
			logger.Error("export cleanup failed", zap.Error(err))
			return err
		}
		if len(removed) > 0 {
			logger.Info("export cleanup removed files", zap.Int("count", len(removed)))
		}
		return nil
	}
}

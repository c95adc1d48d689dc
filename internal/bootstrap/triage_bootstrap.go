package bootstrap

import (
	"context"
	"os"
	"sync"
	"time"

	"triage_server/adapter/in/worker"
	"triage_server/adapter/out/messaging"
	"triage_server/config"
	"triage_server/pkg/logger"

	"github.com/rs/zerolog"
)

// Worker is the job-processing process: a Redis Streams consumer feeding
// the shared pool, plus the watch renewal scheduler.
type Worker struct {
	pool      *worker.Pool
	consumer  *messaging.Consumer
	scheduler *worker.WatchRenewScheduler
	deps      *Dependencies
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	zlog      zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	importProcessor := worker.NewImportProcessor(deps.ImportService)
	bulkProcessor := worker.NewBulkProcessor(deps.BulkService)
	watchProcessor := worker.NewWatchProcessor(deps.Renewer)

	handler := worker.NewHandler(importProcessor, bulkProcessor, watchProcessor)

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerMin > 0 {
		poolConfig.MinWorkers = cfg.WorkerMin
	}
	if cfg.WorkerMax > 0 {
		poolConfig.MaxWorkers = cfg.WorkerMax
	}
	if cfg.WorkerQueueSize > 0 {
		poolConfig.QueueSize = cfg.WorkerQueueSize
	}
	if cfg.WorkerScaleInterval > 0 {
		poolConfig.ScaleInterval = cfg.WorkerScaleInterval
	}
	if cfg.WorkerIdleTimeout > 0 {
		poolConfig.IdleTimeout = cfg.WorkerIdleTimeout
	}

	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		pool:      pool,
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		zlog:      zlog,
		scheduler: worker.NewWatchRenewScheduler(deps.Renewer,
			time.Duration(cfg.WatchRenewIntervalMin)*time.Minute),
	}

	w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:      "triage-workers",
		Consumer:   cfg.WorkerID,
		Streams:    messaging.AllStreams,
		Handler:    worker.NewStreamHandler(pool),
		Logger:     zlog,
		BatchSize:  int64(cfg.ConsumerBatchSize),
		BlockTime:  time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
		MaxRetries: cfg.ConsumerMaxRetries,
	})
	logger.Info("Redis Stream Consumer configured for %d streams", len(messaging.AllStreams))

	return w, cleanup, nil
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pool.Start()
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.zlog.Info().Msg("Starting Redis Stream Consumer")
		if err := w.consumer.Run(w.ctx); err != nil && err != context.Canceled {
			w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
		}
	}()

	w.scheduler.Start()
	w.zlog.Info().Msg("Started Watch Renew Scheduler")

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()
	w.scheduler.Stop()
	w.pool.Stop()
	w.wg.Wait()
}

// Submit routes a message into the pool directly, bypassing Redis.
func (w *Worker) Submit(msg *worker.Message) bool {
	if msg.IsPriority() {
		return w.pool.SubmitPriority(msg)
	}
	return w.pool.Submit(msg)
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}

package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/caelum-cloud/geosearch/internal/metrics"
)

// dequeueWait bounds each blocking pop so the consumer loop notices shutdown.
const dequeueWait = 2 * time.Second

// Workers consumes the batch queue and runs the pipeline on a bounded pool.
type Workers struct {
	svc    *Service
	pool   *ants.Pool
	logger *zap.Logger

	cancel     context.CancelFunc // stops the consumer loop
	taskCancel context.CancelFunc
	wg         sync.WaitGroup
	tasks      sync.WaitGroup
}

// StartWorkers launches the queue consumer with size pipeline workers.
func StartWorkers(svc *Service, size int, logger *zap.Logger) (*Workers, error) {
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Pipeline tasks run on their own context. Cancelling the consumer must
	// not turn a dequeued batch's in-flight documents into rejections.
	taskCtx, taskCancel := context.WithCancel(context.Background())
	w := &Workers{
		svc:        svc,
		pool:       pool,
		logger:     logger,
		cancel:     cancel,
		taskCancel: taskCancel,
	}

	w.wg.Add(1)
	go w.consume(ctx, taskCtx)

	logger.Info("Ingestion workers started", zap.Int("pool_size", size))
	return w, nil
}

// Stop halts the consumer loop, waits for in-flight batches to settle, and
// releases the pool. Queued batches stay queued for the next start.
func (w *Workers) Stop() {
	w.cancel()
	w.wg.Wait()
	w.tasks.Wait()
	w.taskCancel()
	w.pool.Release()
	w.logger.Info("Ingestion workers stopped")
}

func (w *Workers) consume(ctx, taskCtx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		id, ok, err := w.svc.batches.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("Dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		w.observeQueueDepth(ctx)
		if !ok {
			continue
		}

		batchID := id
		w.tasks.Add(1)
		submitErr := w.pool.Submit(func() {
			defer w.tasks.Done()
			if err := w.svc.ProcessBatch(taskCtx, batchID); err != nil {
				w.logger.Error("Batch processing failed",
					zap.String("batch_id", batchID), zap.Error(err))
			}
		})
		if submitErr != nil {
			w.tasks.Done()
			// Pool released during shutdown; push the batch back.
			if err := w.svc.batches.Enqueue(ctx, batchID); err != nil {
				w.logger.Error("Failed to requeue batch",
					zap.String("batch_id", batchID), zap.Error(err))
			}
			return
		}
	}
}

func (w *Workers) observeQueueDepth(ctx context.Context) {
	depth, err := w.svc.batches.QueueDepth(ctx)
	if err != nil {
		return
	}
	metrics.IngestQueueDepth.Set(float64(depth))
}

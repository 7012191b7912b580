package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/project-tktt/avature-crawler/internal/common/cleaner"
	"github.com/project-tktt/avature-crawler/internal/common/indexer"
	"github.com/project-tktt/avature-crawler/internal/domain"
	"github.com/project-tktt/avature-crawler/internal/queue"
)

// Worker drains the record queue, sanitizes descriptions and bulk-indexes
// to storage.
type Worker struct {
	consumer *queue.Consumer
	cleaner  *cleaner.Cleaner
	indexer  indexer.Indexer

	batchSize   int
	concurrency int
}

// Config holds worker configuration
type Config struct {
	Concurrency int
	BatchSize   int
}

// NewWorker creates a new worker
func NewWorker(consumer *queue.Consumer, clean *cleaner.Cleaner, idx indexer.Indexer, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &Worker{
		consumer:    consumer,
		cleaner:     clean,
		indexer:     idx,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
	}
}

// Run starts the worker pool
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("Starting worker pool with %d workers", w.concurrency)

	var wg sync.WaitGroup
	errChan := make(chan error, w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if err := w.runSingle(ctx, workerID); err != nil {
				errChan <- fmt.Errorf("worker %d: %w", workerID, err)
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errChan:
		return err
	case <-done:
		return nil
	}
}

func (w *Worker) runSingle(ctx context.Context, workerID int) error {
	log.Printf("Worker %d started", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopping", workerID)
			return nil
		default:
		}

		// ConsumeBatch uses BRPOP for the first item, so no CPU spinning
		recs, err := w.consumer.ConsumeBatch(ctx, w.batchSize)
		if err != nil {
			log.Printf("Worker %d consume error: %v", workerID, err)
			continue
		}

		if len(recs) == 0 {
			continue // Timeout from BRPOP, try again
		}

		log.Printf("Worker %d processing %d records", workerID, len(recs))

		w.sanitize(recs)
		if err := w.indexer.BulkIndex(ctx, recs); err != nil {
			log.Printf("Worker %d index error: %v", workerID, err)
		} else {
			log.Printf("Worker %d indexed %d records", workerID, len(recs))
		}
	}
}

// sanitize flattens tenant markup in the descriptions to safe plain text.
func (w *Worker) sanitize(recs []*domain.JobRecord) {
	for _, rec := range recs {
		rec.Description = w.cleaner.CleanToText(rec.Description)
	}
}

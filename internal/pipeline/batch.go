package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"marketfuse/pkg/contracts/domain"
)

// BatchNormalize processes the requests and returns one result per request
// in request order. Items run concurrently, bounded by the performance
// configuration, and each item is isolated: a malformed payload fails its
// own slot without affecting the rest.
func (p *Pipeline) BatchNormalize(ctx context.Context, requests []domain.BatchRequest) domain.BatchResult {
	start := p.clock()
	batchID := uuid.NewString()
	results := make([]domain.NormalizationResult, len(requests))

	_, _, _, cfg := p.components()
	perf := cfg.Performance

	p.logger.Info("batch normalization started",
		slog.String("batch_id", batchID),
		slog.Int("items", len(requests)),
		slog.Bool("parallel", perf.ParallelRequests))

	if perf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, perf.Timeout)
		defer cancel()
	}

	if perf.ParallelRequests && len(requests) > 1 {
		p.runParallel(ctx, batchID, requests, results, perf.MaxConcurrent)
	} else {
		p.runSequential(ctx, batchID, requests, results)
	}

	summary := domain.BatchSummary{
		TotalProcessed: len(requests),
		Duration:       p.clock().Sub(start),
	}
	for i := range results {
		if results[i].Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	p.tracer.RecordBatch(ctx, len(requests))
	p.logger.Info("batch normalization finished",
		slog.String("batch_id", batchID),
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration))

	return domain.BatchResult{ID: batchID, Results: results, Summary: summary}
}

func (p *Pipeline) runSequential(ctx context.Context, batchID string, requests []domain.BatchRequest, results []domain.NormalizationResult) {
	completed, failed := 0, 0
	for i, req := range requests {
		if err := ctx.Err(); err != nil {
			results[i] = canceledResult(req, err)
		} else {
			results[i] = p.Normalize(ctx, req)
		}
		completed++
		if !results[i].Success {
			failed++
		}
		p.publishProgress(batchID, completed, len(requests), failed)
	}
}

func (p *Pipeline) runParallel(ctx context.Context, batchID string, requests []domain.BatchRequest, results []domain.NormalizationResult, maxConcurrent int) {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	var (
		wg        sync.WaitGroup
		progress  sync.Mutex
		completed int
		failed    int
	)
	for i, req := range requests {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context expired; mark the remaining slots without running them.
			results[i] = canceledResult(req, err)
			progress.Lock()
			completed++
			failed++
			p.publishProgress(batchID, completed, len(requests), failed)
			progress.Unlock()
			continue
		}
		wg.Add(1)
		go func(i int, req domain.BatchRequest) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = p.Normalize(ctx, req)

			progress.Lock()
			completed++
			if !results[i].Success {
				failed++
			}
			p.publishProgress(batchID, completed, len(requests), failed)
			progress.Unlock()
		}(i, req)
	}
	wg.Wait()
}

func (p *Pipeline) publishProgress(batchID string, completed, total, failed int) {
	if p.publisher == nil {
		return
	}
	p.publisher.PublishProgress(ProgressEvent{
		BatchID:   batchID,
		Completed: completed,
		Total:     total,
		Failed:    failed,
		Timestamp: p.clock(),
	})
}

func canceledResult(req domain.BatchRequest, err error) domain.NormalizationResult {
	return domain.NormalizationResult{
		Success:  false,
		DataType: req.DataType,
		Errors:   []string{fmt.Sprintf("normalization error: batch canceled: %v", err)},
	}
}

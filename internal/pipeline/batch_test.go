package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfuse/internal/config"
	"marketfuse/pkg/contracts/domain"
)

// capturePublisher records progress events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (c *capturePublisher) PublishProgress(event ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturePublisher) snapshot() []ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ProgressEvent, len(c.events))
	copy(out, c.events)
	return out
}

func batchOf(n int) []domain.BatchRequest {
	requests := make([]domain.BatchRequest, n)
	for i := range requests {
		requests[i] = domain.BatchRequest{
			DataType: domain.DataTypeStockPrice,
			Payload:  polygonPayload(),
		}
	}
	return requests
}

func TestBatchNormalizePreservesOrder(t *testing.T) {
	p := newTestPipeline(t)

	requests := []domain.BatchRequest{
		{DataType: domain.DataTypeStockPrice, Payload: polygonPayload()},
		{DataType: domain.DataTypeStockPrice, Payload: malformedPayload()},
		{DataType: domain.DataTypeStockPrice, Payload: polygonPayload()},
	}

	result := p.BatchNormalize(context.Background(), requests)

	assert.NotEmpty(t, result.ID)
	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[1].Success)
	assert.True(t, result.Results[2].Success)

	assert.Equal(t, 3, result.Summary.TotalProcessed)
	assert.Equal(t, 2, result.Summary.Successful)
	assert.Equal(t, 1, result.Summary.Failed)
}

func TestBatchNormalizeItemIsolation(t *testing.T) {
	p := newTestPipeline(t)

	requests := []domain.BatchRequest{
		{DataType: domain.DataTypeStockPrice, Payload: malformedPayload()},
		{DataType: domain.DataType("bond_yield")},
		{DataType: domain.DataTypeStockPrice, Payload: polygonPayload()},
	}

	result := p.BatchNormalize(context.Background(), requests)

	assert.Contains(t, result.Results[0].Errors[0], "normalization error:")
	assert.Contains(t, result.Results[1].Errors[0], "unknown data type")
	assert.True(t, result.Results[2].Success)
	assert.Equal(t, 1, result.Summary.Successful)
	assert.Equal(t, 2, result.Summary.Failed)
}

func TestBatchNormalizeSequential(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Performance.ParallelRequests = false
	p := New(cfg, nil, WithClock(func() time.Time { return testNow }))

	result := p.BatchNormalize(context.Background(), batchOf(4))
	assert.Equal(t, 4, result.Summary.Successful)
}

func TestBatchNormalizeParallelBounded(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Performance.MaxConcurrent = 2
	p := New(cfg, nil, WithClock(func() time.Time { return testNow }))

	result := p.BatchNormalize(context.Background(), batchOf(10))
	assert.Equal(t, 10, result.Summary.Successful)
	assert.Equal(t, 0, result.Summary.Failed)

	stats := p.Statistics()
	assert.Equal(t, int64(10), stats.Pipeline.TotalNormalizations)
}

func TestBatchNormalizePublishesProgress(t *testing.T) {
	pub := &capturePublisher{}
	p := newTestPipeline(t, WithPublisher(pub))

	result := p.BatchNormalize(context.Background(), batchOf(5))
	require.Equal(t, 5, result.Summary.Successful)

	events := pub.snapshot()
	require.Len(t, events, 5)
	for _, ev := range events {
		assert.Equal(t, result.ID, ev.BatchID)
		assert.Equal(t, 5, ev.Total)
	}
	// The completed counter is monotonic under the progress mutex.
	last := events[len(events)-1]
	assert.Equal(t, 5, last.Completed)
	assert.Equal(t, 0, last.Failed)
}

func TestBatchNormalizeCanceledContext(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Performance.ParallelRequests = false
	p := New(cfg, nil, WithClock(func() time.Time { return testNow }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := p.BatchNormalize(ctx, batchOf(3))
	assert.Equal(t, 3, result.Summary.Failed)
	for _, r := range result.Results {
		require.Len(t, r.Errors, 1)
		assert.Contains(t, r.Errors[0], "batch canceled")
	}
}

func TestBatchNormalizeEmpty(t *testing.T) {
	p := newTestPipeline(t)

	result := p.BatchNormalize(context.Background(), nil)
	assert.NotEmpty(t, result.ID)
	assert.Empty(t, result.Results)
	assert.Zero(t, result.Summary.TotalProcessed)
}

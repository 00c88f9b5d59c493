// internal/batch/processor_test.go - Tests for batch processing
package batch

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/valpere/vecnorm/internal/output"
	"github.com/valpere/vecnorm/pkg/vector"
)

func polygonFetcher(size float64) vector.Fetcher {
	return vector.FetcherFunc(func(context.Context) (*geojson.FeatureCollection, error) {
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(orb.Polygon{{{0, 0}, {size, 0}, {size, size}, {0, size}, {0, 0}}}))
		return fc, nil
	})
}

func failingFetcher(err error) vector.Fetcher {
	return vector.FetcherFunc(func(context.Context) (*geojson.FeatureCollection, error) {
		return nil, err
	})
}

type memoryWriter struct {
	mu      sync.Mutex
	written []*output.Result
	batches [][]*output.Result
}

func (w *memoryWriter) Write(result *output.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, result)
	return nil
}

func (w *memoryWriter) WriteBatch(results []*output.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, results)
	return nil
}

func (w *memoryWriter) Close() error { return nil }

type countingReporter struct {
	items     atomic.Int32
	completed atomic.Int32
	failed    atomic.Int32
}

func (r *countingReporter) ReportItemComplete(*Job, *WorkResult) { r.items.Add(1) }
func (r *countingReporter) ReportJobComplete(*Job)               { r.completed.Add(1) }
func (r *countingReporter) ReportJobFailed(*Job, error)          { r.failed.Add(1) }

func TestProcess(t *testing.T) {
	writer := &memoryWriter{}
	reporter := &countingReporter{}

	items := []*WorkItem{
		NewWorkItem("a", polygonFetcher(1)),
		NewWorkItem("broken", failingFetcher(errors.New("boom"))),
		NewWorkItem("c", polygonFetcher(2)),
	}
	config := NewJobConfig()
	config.Concurrency = 2
	job := NewJob("test", items, config)

	require.NoError(t, NewBatchProcessor(writer, reporter).Process(context.Background(), job))

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, int64(3), job.Progress.TotalItems)
	assert.Equal(t, int64(3), job.Progress.ProcessedItems)
	assert.Equal(t, int64(1), job.Progress.FailedItems)
	assert.Equal(t, int64(2), job.Progress.OutputFeatures)
	assert.Equal(t, float64(100), job.Progress.CalculateProgress())

	require.Len(t, writer.written, 2)
	for _, r := range writer.written {
		assert.Equal(t, 1, r.Stats.RawFeatures)
		assert.Equal(t, 1, r.Stats.OutputFeatures)
	}

	assert.Equal(t, int32(3), reporter.items.Load())
	assert.Equal(t, int32(1), reporter.completed.Load())

	stats := job.Stats()
	assert.Equal(t, int64(1), stats.FailedItems)
	assert.False(t, stats.EndTime.IsZero())

	assert.True(t, job.IsComplete())
	assert.Error(t, NewBatchProcessor(writer, reporter).Process(context.Background(), job), "a finished job is not processed again")
}

func TestProcessFailOnError(t *testing.T) {
	reporter := &countingReporter{}
	boom := errors.New("boom")

	config := NewJobConfig()
	config.Concurrency = 1
	config.FailOnError = true
	job := NewJob("fail", []*WorkItem{
		NewWorkItem("broken", failingFetcher(boom)),
		NewWorkItem("ok", polygonFetcher(1)),
	}, config)

	err := NewBatchProcessor(&memoryWriter{}, reporter).Process(context.Background(), job)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, int32(1), reporter.failed.Load())
	assert.Equal(t, int32(0), reporter.completed.Load())
}

func TestProcessCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewJob("canceled", []*WorkItem{NewWorkItem("a", polygonFetcher(1))}, NewJobConfig())
	err := NewBatchProcessor(&memoryWriter{}, nil).Process(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, JobStatusCanceled, job.Status)
}

func TestProcessMergeKeepsItemOrder(t *testing.T) {
	writer := &memoryWriter{}
	slow := vector.FetcherFunc(func(ctx context.Context) (*geojson.FeatureCollection, error) {
		time.Sleep(20 * time.Millisecond)
		return polygonFetcher(3).FetchRaw(ctx)
	})

	config := NewJobConfig()
	config.Merge = true
	job := NewJob("merge", []*WorkItem{NewWorkItem("first", slow), NewWorkItem("second", polygonFetcher(1))}, config)

	require.NoError(t, NewBatchProcessor(writer, nil).Process(context.Background(), job))
	assert.Empty(t, writer.written)
	require.Len(t, writer.batches, 1)
	require.Len(t, writer.batches[0], 2)
	assert.Equal(t, "first", writer.batches[0][0].Name)
	assert.Equal(t, "second", writer.batches[0][1].Name)
}

func TestProcessAppliesSourceOptions(t *testing.T) {
	writer := &memoryWriter{}
	scale := vector.TransformerFunc(func(x, y float64) (float64, float64, error) {
		return 2 * x, 2 * y, nil
	})

	job := NewJob("pixel", []*WorkItem{NewWorkItem("a", polygonFetcher(1))}, NewJobConfig())
	require.NoError(t, NewBatchProcessor(writer, nil, vector.WithTransformer(scale)).Process(context.Background(), job))

	require.Len(t, writer.written, 1)
	bound := writer.written[0].Collection.Features[0].Geometry.Bound()
	assert.InDelta(t, 2, bound.Max[0], 1e-9)

	// item options override the processor's
	shift := vector.TransformerFunc(func(x, y float64) (float64, float64, error) {
		return x + 10, y, nil
	})
	writer = &memoryWriter{}
	job = NewJob("item", []*WorkItem{NewWorkItem("a", polygonFetcher(1), vector.WithTransformer(shift))}, NewJobConfig())
	require.NoError(t, NewBatchProcessor(writer, nil, vector.WithTransformer(scale)).Process(context.Background(), job))

	require.Len(t, writer.written, 1)
	bound = writer.written[0].Collection.Features[0].Geometry.Bound()
	assert.InDelta(t, 11, bound.Max[0], 1e-9)
}

func TestProcessWithMultiFileWriter(t *testing.T) {
	fs := afero.NewMemMapFs()
	writer, err := output.NewMultiFileWriter(fs, &output.WriterConfig{Format: output.FormatGeoJSON}, "/out")
	require.NoError(t, err)

	job := NewJob("files", []*WorkItem{
		NewWorkItem("10/1/2", polygonFetcher(1)),
		NewWorkItem("10/1/3", polygonFetcher(1)),
	}, NewJobConfig())
	require.NoError(t, NewBatchProcessor(writer, nil).Process(context.Background(), job))

	for _, path := range []string{"/out/10/1/2.geojson", "/out/10/1/3.geojson"} {
		data, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		assert.Equal(t, int64(1), gjson.GetBytes(data, "features.#").Int())
	}
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewLogReporter(zerolog.New(&buf))

	job := NewJob("log", []*WorkItem{NewWorkItem("a", polygonFetcher(1))}, NewJobConfig())
	require.NoError(t, NewBatchProcessor(&memoryWriter{}, reporter).Process(context.Background(), job))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, "item normalized", gjson.GetBytes(lines[0], "message").String())
	assert.Equal(t, "info", gjson.GetBytes(lines[0], "level").String())
	assert.Equal(t, "job completed", gjson.GetBytes(lines[1], "message").String())
	assert.Equal(t, int64(1), gjson.GetBytes(lines[1], "features").Int())
}

// internal/batch/processor.go - Batch processing implementation
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"github.com/valpere/vecnorm/internal/output"
	"github.com/valpere/vecnorm/pkg/vector"
)

// BatchProcessor normalizes the items of a job concurrently and writes the results
type BatchProcessor struct {
	options  []vector.SourceOption
	writer   output.Writer
	reporter ProgressReporter

	mutex      sync.Mutex
	writeMutex sync.Mutex
}

// NewBatchProcessor creates a processor building each item's vector.Source with options
func NewBatchProcessor(writer output.Writer, reporter ProgressReporter, options ...vector.SourceOption) *BatchProcessor {
	return &BatchProcessor{
		options:  options,
		writer:   writer,
		reporter: reporter,
	}
}

// Process executes a complete batch processing job. Failed items are counted
// and reported; with FailOnError the first failure cancels the remaining items
// and is returned.
func (bp *BatchProcessor) Process(ctx context.Context, job *Job) error {
	if job.IsRunning() || job.IsComplete() {
		return fmt.Errorf("job %s is %s", job.ID, job.Status)
	}
	if job.Config == nil {
		job.Config = NewJobConfig()
	}
	if job.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Config.Timeout)
		defer cancel()
	}

	// Update job status to running
	bp.mutex.Lock()
	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.Progress.StartTime = now
	job.Progress.TotalItems = int64(len(job.Items))
	bp.mutex.Unlock()

	concurrency := job.Config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	p := pool.New().WithMaxGoroutines(concurrency).WithContext(ctx)
	if job.Config.FailOnError {
		p = p.WithCancelOnError().WithFirstError()
	}

	merged := make([]*output.Result, len(job.Items))
	var failures error
	for _, item := range job.Items {
		item := item
		p.Go(func(ctx context.Context) error {
			result := bp.processWorkItem(ctx, job.Config, item)
			if result.Error == nil && !job.Config.Merge {
				result.Error = bp.write(result.Result)
			}

			bp.updateJobProgress(job, result)

			if result.Error != nil {
				err := fmt.Errorf("%s: %w", item.Name, result.Error)
				if job.Config.FailOnError {
					return err
				}
				bp.mutex.Lock()
				failures = multierr.Append(failures, err)
				bp.mutex.Unlock()
				return nil
			}

			if job.Config.Merge {
				merged[item.ID] = result.Result
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		bp.completeJobWithError(job, err)
		return err
	}
	if err := ctx.Err(); err != nil {
		bp.completeJobWithError(job, err)
		return err
	}

	if job.Config.Merge {
		if err := bp.writeMerged(merged); err != nil {
			bp.completeJobWithError(job, err)
			return err
		}
	}

	if failures != nil {
		log.Debug().Err(failures).Str("job", job.ID).Msg("job finished with failed items")
	}

	bp.completeJobSuccessfully(job)
	if bp.reporter != nil {
		bp.reporter.ReportJobComplete(job)
	}

	return nil
}

// processWorkItem fetches and normalizes a single work item
func (bp *BatchProcessor) processWorkItem(ctx context.Context, config *JobConfig, item *WorkItem) *WorkResult {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return &WorkResult{Item: item, Error: err}
	}

	options := make([]vector.SourceOption, 0, len(bp.options)+len(item.Options))
	options = append(options, bp.options...)
	options = append(options, item.Options...)

	src := vector.NewSource(item.Fetcher, options...)
	raw, err := src.Raw(ctx)
	if err != nil {
		return &WorkResult{Item: item, Error: fmt.Errorf("fetch failed: %w", err), Duration: time.Since(start)}
	}

	fc, err := src.Geometry(ctx, config.ToPixel)
	if err != nil {
		return &WorkResult{Item: item, Error: fmt.Errorf("normalize failed: %w", err), Duration: time.Since(start)}
	}

	duration := time.Since(start)
	return &WorkResult{
		Item: item,
		Result: &output.Result{
			Name:       item.Name,
			Collection: fc,
			Stats: &output.ItemStats{
				RawFeatures:    len(raw.Features),
				OutputFeatures: len(fc.Features),
				Duration:       duration,
			},
		},
		Duration: duration,
	}
}

// write serializes access to the writer
func (bp *BatchProcessor) write(result *output.Result) error {
	bp.writeMutex.Lock()
	defer bp.writeMutex.Unlock()

	if err := bp.writer.Write(result); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// writeMerged writes the successful results in item order
func (bp *BatchProcessor) writeMerged(results []*output.Result) error {
	ordered := make([]*output.Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			ordered = append(ordered, r)
		}
	}

	bp.writeMutex.Lock()
	defer bp.writeMutex.Unlock()

	if err := bp.writer.WriteBatch(ordered); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	return nil
}

// updateJobProgress updates job progress with one finished item and reports it
func (bp *BatchProcessor) updateJobProgress(job *Job, result *WorkResult) {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	job.Progress.ProcessedItems++
	if result.Error != nil {
		job.Progress.FailedItems++
	} else {
		job.Progress.SuccessItems++
		job.Progress.OutputFeatures += int64(len(result.Result.Collection.Features))
	}
	job.Progress.UpdateThroughput()

	estimatedEnd := job.Progress.EstimateCompletion()
	job.Progress.EstimatedEnd = &estimatedEnd

	if bp.reporter != nil {
		bp.reporter.ReportItemComplete(job, result)
	}
}

// completeJobSuccessfully marks the job as completed
func (bp *BatchProcessor) completeJobSuccessfully(job *Job) {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	job.Status = JobStatusCompleted
	now := time.Now()
	job.CompletedAt = &now
}

// completeJobWithError marks the job as failed or canceled
func (bp *BatchProcessor) completeJobWithError(job *Job, err error) {
	bp.mutex.Lock()
	job.Status = JobStatusFailed
	if errors.Is(err, context.Canceled) {
		job.Status = JobStatusCanceled
	}
	job.Error = err
	now := time.Now()
	job.CompletedAt = &now
	bp.mutex.Unlock()

	if bp.reporter != nil {
		bp.reporter.ReportJobFailed(job, err)
	}
}

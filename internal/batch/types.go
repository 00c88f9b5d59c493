// internal/batch/types.go - Batch processing types
package batch

import (
	"context"
	"time"

	"github.com/valpere/vecnorm/internal"
	"github.com/valpere/vecnorm/internal/output"
	"github.com/valpere/vecnorm/pkg/vector"
)

// Job represents a batch normalization job
type Job struct {
	ID          string       `json:"id"`
	Items       []*WorkItem  `json:"items"`
	Config      *JobConfig   `json:"config"`
	Status      JobStatus    `json:"status"`
	Progress    *JobProgress `json:"progress"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       error        `json:"error,omitempty"`
}

// JobConfig contains configuration for a batch processing job
type JobConfig struct {
	Concurrency int           `json:"concurrency"`
	Timeout     time.Duration `json:"timeout"`
	FailOnError bool          `json:"fail_on_error"`
	// ToPixel applies the configured transform to every item
	ToPixel bool `json:"to_pixel"`
	// Merge writes all results as one document in item order once the job
	// is done, instead of writing each result as soon as it is ready
	Merge bool `json:"merge"`
}

// JobStatus represents the current status of a batch job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// JobProgress tracks the progress of a batch processing job
type JobProgress struct {
	TotalItems     int64      `json:"total_items"`
	ProcessedItems int64      `json:"processed_items"`
	FailedItems    int64      `json:"failed_items"`
	SuccessItems   int64      `json:"success_items"`
	OutputFeatures int64      `json:"output_features"`
	StartTime      time.Time  `json:"start_time"`
	EstimatedEnd   *time.Time `json:"estimated_end,omitempty"`
	Throughput     float64    `json:"throughput"`
}

// WorkItem is one named input of a job
type WorkItem struct {
	ID      int            `json:"id"`
	Name    string         `json:"name"`
	Fetcher vector.Fetcher `json:"-"`
	// Options are applied after the processor's own source options, e.g. a
	// transform specific to this item
	Options []vector.SourceOption `json:"-"`
}

// WorkResult represents the result of processing a work item
type WorkResult struct {
	Item     *WorkItem      `json:"item"`
	Result   *output.Result `json:"result,omitempty"`
	Error    error          `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Processor defines the interface for executing batch processing jobs
type Processor interface {
	Process(ctx context.Context, job *Job) error
}

// ProgressReporter defines the interface for reporting job progress
type ProgressReporter interface {
	ReportItemComplete(job *Job, result *WorkResult)
	ReportJobComplete(job *Job)
	ReportJobFailed(job *Job, err error)
}

// NewJob creates a new batch processing job
func NewJob(id string, items []*WorkItem, config *JobConfig) *Job {
	for i, item := range items {
		item.ID = i
	}

	return &Job{
		ID:        id,
		Items:     items,
		Config:    config,
		Status:    JobStatusPending,
		Progress:  NewJobProgress(),
		CreatedAt: time.Now(),
	}
}

// NewJobConfig creates a new job configuration with default values
func NewJobConfig() *JobConfig {
	return &JobConfig{
		Concurrency: 4,
		Timeout:     5 * time.Minute,
		FailOnError: false,
		ToPixel:     true,
	}
}

// NewJobProgress creates a new job progress tracker
func NewJobProgress() *JobProgress {
	return &JobProgress{StartTime: time.Now()}
}

// NewWorkItem creates a new work item
func NewWorkItem(name string, fetcher vector.Fetcher, options ...vector.SourceOption) *WorkItem {
	return &WorkItem{
		Name:    name,
		Fetcher: fetcher,
		Options: options,
	}
}

// IsComplete returns true if the job has finished (successfully or with error)
func (j *Job) IsComplete() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCanceled
}

// IsRunning returns true if the job is currently being processed
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// Stats summarizes the job as processing statistics
func (j *Job) Stats() internal.ProcessingStats {
	stats := internal.ProcessingStats{
		TotalItems:     j.Progress.TotalItems,
		ProcessedItems: j.Progress.ProcessedItems,
		FailedItems:    j.Progress.FailedItems,
		OutputFeatures: j.Progress.OutputFeatures,
		StartTime:      j.Progress.StartTime,
		Throughput:     j.Progress.Throughput,
	}
	if j.CompletedAt != nil {
		stats.EndTime = *j.CompletedAt
	}
	return stats
}

// EstimateCompletion estimates when the job will complete based on current progress
func (p *JobProgress) EstimateCompletion() time.Time {
	if p.Throughput == 0 || p.ProcessedItems == 0 {
		return time.Now().Add(time.Hour) // Default to 1 hour if no data
	}

	remaining := p.TotalItems - p.ProcessedItems
	if remaining <= 0 {
		return time.Now()
	}

	secondsRemaining := float64(remaining) / p.Throughput
	return time.Now().Add(time.Duration(secondsRemaining * float64(time.Second)))
}

// CalculateProgress calculates the completion percentage
func (p *JobProgress) CalculateProgress() float64 {
	if p.TotalItems == 0 {
		return 0
	}
	return float64(p.ProcessedItems) / float64(p.TotalItems) * 100
}

// UpdateThroughput updates the processing throughput based on elapsed time
func (p *JobProgress) UpdateThroughput() {
	elapsed := time.Since(p.StartTime)
	if elapsed.Seconds() > 0 && p.ProcessedItems > 0 {
		p.Throughput = float64(p.ProcessedItems) / elapsed.Seconds()
	}
}

// String returns a string representation of the job status
func (s JobStatus) String() string {
	return string(s)
}

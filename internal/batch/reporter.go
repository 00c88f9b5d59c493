// internal/batch/reporter.go - Progress reporting through the application logger
package batch

import (
	"github.com/rs/zerolog"
)

// LogReporter reports job progress as structured log events
type LogReporter struct {
	logger zerolog.Logger
	// Every controls how often item progress is logged at info level; other
	// items are logged at debug level
	Every int64
}

// NewLogReporter creates a reporter writing to logger
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger, Every: 10}
}

// ReportItemComplete logs a finished item. It is called with the job's
// progress locked.
func (r *LogReporter) ReportItemComplete(job *Job, result *WorkResult) {
	if result.Error != nil {
		r.logger.Warn().
			Err(result.Error).
			Str("job", job.ID).
			Str("item", result.Item.Name).
			Msg("item failed")
		return
	}

	level := zerolog.DebugLevel
	processed := job.Progress.ProcessedItems
	if r.Every > 0 && (processed%r.Every == 0 || processed == job.Progress.TotalItems) {
		level = zerolog.InfoLevel
	}

	r.logger.WithLevel(level).
		Str("job", job.ID).
		Str("item", result.Item.Name).
		Int("features", len(result.Result.Collection.Features)).
		Dur("duration", result.Duration).
		Float64("progress", job.Progress.CalculateProgress()).
		Msg("item normalized")
}

// ReportJobComplete logs the job summary
func (r *LogReporter) ReportJobComplete(job *Job) {
	stats := job.Stats()
	r.logger.Info().
		Str("job", job.ID).
		Int64("items", stats.TotalItems).
		Int64("failed", stats.FailedItems).
		Int64("features", stats.OutputFeatures).
		Float64("throughput", stats.Throughput).
		Dur("elapsed", stats.EndTime.Sub(stats.StartTime)).
		Msg("job completed")
}

// ReportJobFailed logs a job that stopped early
func (r *LogReporter) ReportJobFailed(job *Job, err error) {
	r.logger.Error().
		Err(err).
		Str("job", job.ID).
		Str("status", job.Status.String()).
		Int64("processed", job.Progress.ProcessedItems).
		Int64("total", job.Progress.TotalItems).
		Msg("job failed")
}

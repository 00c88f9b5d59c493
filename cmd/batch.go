// cmd/batch.go - Batch processing command
package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/valpere/vecnorm/internal"
	"github.com/valpere/vecnorm/internal/batch"
	"github.com/valpere/vecnorm/internal/config"
	"github.com/valpere/vecnorm/internal/output"
	"github.com/valpere/vecnorm/internal/source"
	"github.com/valpere/vecnorm/pkg/mvt"
	"github.com/valpere/vecnorm/pkg/vector"
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch [files or URLs...]",
	Short: "Normalize many inputs concurrently",
	Long: `Normalize many GeoJSON documents or vector tiles concurrently.

Inputs are the positional files and URLs, an explicit --tiles list, or every
tile of --zoom covering --bbox on the configured tile server or directory.
Without --bbox a local tile directory is scanned for the tiles of --zoom.
Each input is written to its own file under --output-dir, or all inputs are
merged in input order into --output.

Examples:
  # Normalize several files into ./out
  vecnorm batch --output-dir ./out a.geojson b.geojson

  # Normalize remote tiles covering a bounding box into one file
  vecnorm batch --base-url "https://example.com/tiles" --zoom 12 --bbox "-74.0,40.7,-73.9,40.8" --output all.geojson

  # Normalize every zoom 14 tile found in a local directory
  vecnorm batch --base-path /data/tiles --zoom 14 --tile-pixels 256 --output-dir ./out`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Tile selection flags
	batchCmd.Flags().Int("zoom", -1, "zoom level of the tiles to process")
	batchCmd.Flags().String("bbox", "", "bounding box: 'min_lon,min_lat,max_lon,max_lat'")
	batchCmd.Flags().String("tiles", "", "specific tiles list: 'z/x/y,z/x/y,...'")

	// Output flags
	batchCmd.Flags().String("output-dir", "./output", "output directory, one file per input")
	batchCmd.Flags().StringP("output", "o", "", "single output file merging all inputs ('-' for stdout)")
	batchCmd.Flags().Bool("metadata", false, "include input names and statistics in the output")
	batchCmd.Flags().Bool("pixel", true, "apply the configured transform to the output")

	// Processing flags
	batchCmd.Flags().Bool("fail-on-error", false, "stop processing on first error")
	batchCmd.Flags().Duration("job-timeout", 5*time.Minute, "maximum duration of the whole job")
	batchCmd.Flags().Bool("progress", true, "log progress while processing")

	batchCmd.MarkFlagsMutuallyExclusive("output-dir", "output")
	batchCmd.MarkFlagsMutuallyExclusive("tiles", "bbox")

	cobra.CheckErr(viper.BindPFlag("output.directory", batchCmd.Flags().Lookup("output-dir")))
	cobra.CheckErr(viper.BindPFlag("batch.fail_on_error", batchCmd.Flags().Lookup("fail-on-error")))
	cobra.CheckErr(viper.BindPFlag("batch.timeout", batchCmd.Flags().Lookup("job-timeout")))
	cobra.CheckErr(viper.BindPFlag("logging.progress", batchCmd.Flags().Lookup("progress")))
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Get command flags
	zoom, _ := cmd.Flags().GetInt("zoom")
	bboxStr, _ := cmd.Flags().GetString("bbox")
	tilesStr, _ := cmd.Flags().GetString("tiles")
	outputFile, _ := cmd.Flags().GetString("output")
	metadata, _ := cmd.Flags().GetBool("metadata")
	pixel, _ := cmd.Flags().GetBool("pixel")

	factory := source.NewFetcherFactory(cfg)

	var items []*batch.WorkItem
	if len(args) > 0 {
		if tilesStr != "" || bboxStr != "" {
			return fmt.Errorf("positional inputs cannot be combined with --tiles or --bbox")
		}
		items, err = documentItems(cfg, factory, args, pixel)
	} else {
		var tiles []mvt.TileID
		tiles, err = selectTiles(cfg, tilesStr, bboxStr, zoom)
		if err != nil {
			return err
		}
		items, err = tileItems(cfg, factory, tiles, pixel)
	}
	if err != nil {
		return err
	}

	if len(items) == 0 {
		return fmt.Errorf("no inputs to process")
	}

	// Shared source options; the pixel transform is per item
	opts, err := sourceOptions(cfg)
	if err != nil {
		return err
	}

	var reporter batch.ProgressReporter
	if cfg.Logging.Progress {
		reporter = batch.NewLogReporter(log.Logger)
	}

	// Create the writer
	wc, err := writerConfig(cfg, metadata)
	if err != nil {
		return err
	}

	merge := outputFile != ""
	if merge && outputFile == "-" && !cfg.Output.Stdout {
		return fmt.Errorf("output.stdout is disabled")
	}

	var writer output.Writer
	if merge {
		writer, err = output.NewWriter(afero.NewOsFs(), wc, outputFile, false, cmd.OutOrStdout())
	} else {
		writer, err = output.NewMultiFileWriter(afero.NewOsFs(), wc, cfg.Output.Directory)
	}
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}

	job := batch.NewJob(fmt.Sprintf("batch-%d", time.Now().Unix()), items, &batch.JobConfig{
		Concurrency: cfg.Batch.Concurrency,
		Timeout:     cfg.Batch.Timeout,
		FailOnError: cfg.Batch.FailOnError,
		ToPixel:     pixel,
		Merge:       merge,
	})

	log.Info().
		Str("job", job.ID).
		Int("items", len(items)).
		Int("concurrency", cfg.Batch.Concurrency).
		Msg("starting batch job")

	return runJob(cmd.Context(), writer, reporter, opts, job)
}

// runJob processes the job and closes the writer. Compressed outputs are only
// complete once closed, so a close failure fails the command.
func runJob(ctx context.Context, writer output.Writer, reporter batch.ProgressReporter, opts []vector.SourceOption, job *batch.Job) (err error) {
	defer func() {
		err = multierr.Append(err, writer.Close())
	}()

	if err := batch.NewBatchProcessor(writer, reporter, opts...).Process(ctx, job); err != nil {
		return fmt.Errorf("batch job failed: %w", err)
	}

	if job.Progress.FailedItems > 0 && job.Progress.SuccessItems == 0 {
		return fmt.Errorf("all %d inputs failed", job.Progress.FailedItems)
	}

	return nil
}

// documentItems creates one work item per file or URL
func documentItems(cfg *config.Config, factory *source.FetcherFactory, locations []string, pixel bool) ([]*batch.WorkItem, error) {
	items := make([]*batch.WorkItem, 0, len(locations))
	for _, location := range locations {
		fetcher, err := factory.NewDocumentFetcher(location)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", location, err)
		}

		var tile *mvt.TileID
		name := filepath.Base(strings.SplitN(location, "?", 2)[0])
		if tid, ok := source.ParseTilePath(location); ok {
			tile = &tid
			name = tid.String()
		}

		options, err := itemOptions(cfg, tile, pixel)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", location, err)
		}
		items = append(items, batch.NewWorkItem(name, fetcher, options...))
	}
	return items, nil
}

// tileItems creates one work item per tile
func tileItems(cfg *config.Config, factory *source.FetcherFactory, tiles []mvt.TileID, pixel bool) ([]*batch.WorkItem, error) {
	items := make([]*batch.WorkItem, 0, len(tiles))
	for _, tid := range tiles {
		fetcher, err := factory.NewTileFetcher([]mvt.TileID{tid})
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", tid, err)
		}

		options, err := itemOptions(cfg, &tid, pixel)
		if err != nil {
			return nil, err
		}
		items = append(items, batch.NewWorkItem(tid.String(), fetcher, options...))
	}
	return items, nil
}

func itemOptions(cfg *config.Config, tile *mvt.TileID, pixel bool) ([]vector.SourceOption, error) {
	if !pixel {
		return nil, nil
	}

	transformer, err := newTransformer(cfg, tile)
	if err != nil || transformer == nil {
		return nil, err
	}
	return []vector.SourceOption{vector.WithTransformer(transformer)}, nil
}

// selectTiles resolves the tiles named by --tiles, --zoom and --bbox
func selectTiles(cfg *config.Config, tilesStr, bboxStr string, zoom int) ([]mvt.TileID, error) {
	if tilesStr != "" {
		tiles, err := parseTilesList(tilesStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tiles list: %w", err)
		}
		return tiles, nil
	}

	if zoom < 0 {
		return nil, fmt.Errorf("either inputs, --tiles or --zoom must be specified")
	}

	if bboxStr != "" {
		bound, err := parseBoundingBox(bboxStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bounding box: %w", err)
		}
		tr, err := source.NewTileRangeFromBounds(bound, zoom)
		if err != nil {
			return nil, err
		}
		return tr.Tiles(), nil
	}

	// Without a bounding box only a local directory can tell which tiles exist
	if cfg.DetermineSourceType() != internal.SourceTypeLocal {
		return nil, fmt.Errorf("--bbox is required for HTTP sources")
	}
	if err := config.ValidateLocalDirectory(afero.NewOsFs(), cfg); err != nil {
		return nil, err
	}

	available, err := source.NewLocalFetcher(cfg).ListAvailableTiles()
	if err != nil {
		return nil, err
	}

	var tiles []mvt.TileID
	for _, tid := range available {
		if tid.Z == zoom {
			tiles = append(tiles, tid)
		}
	}
	log.Debug().Int("available", len(available)).Int("selected", len(tiles)).Msg("scanned tile directory")
	return tiles, nil
}

// cmd/normalize.go - Single input normalization command
package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/vecnorm/internal/output"
	"github.com/valpere/vecnorm/internal/source"
	"github.com/valpere/vecnorm/pkg/mvt"
	"github.com/valpere/vecnorm/pkg/vector"
)

// normalizeCmd represents the normalize command
var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize one GeoJSON document or vector tile into simple polygons",
	Long: `Normalize the features of a single input into a FeatureCollection of simple polygons.

The input is a GeoJSON document or a vector tile given by path or URL, or a tile
addressed by --z/--x/--y on the configured tile server or directory. Points and
lines are buffered by the radius of their class_id, polygons are repaired, and
unless --pixel=false the configured transform maps the result into pixel space.

Examples:
  # Normalize a local GeoJSON file with per-class buffers
  vecnorm normalize --file labels.geojson --line-buffer 1=2.5 --point-buffer 3=4 --output out.geojson

  # Normalize a remote document, keeping source coordinates
  vecnorm normalize --url "https://example.com/labels.geojson" --pixel=false

  # Normalize a tile from a local tile directory into its 512px grid
  vecnorm normalize --base-path /data/tiles --z 14 --x 8362 --y 5956 --tile-pixels 512`,
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)

	// Input flags
	normalizeCmd.Flags().String("file", "", "path to a GeoJSON document or z/x/y tile file")
	normalizeCmd.Flags().String("url", "", "URL of a GeoJSON document or z/x/y tile")
	normalizeCmd.Flags().Int("z", 0, "tile zoom level")
	normalizeCmd.Flags().Int("x", 0, "tile x coordinate")
	normalizeCmd.Flags().Int("y", 0, "tile y coordinate")

	// Output flags
	normalizeCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	normalizeCmd.Flags().Bool("pixel", true, "apply the configured transform to the output")
	normalizeCmd.Flags().Bool("metadata", false, "include input name and statistics in the output")

	normalizeCmd.MarkFlagsRequiredTogether("z", "x", "y")
	normalizeCmd.MarkFlagsMutuallyExclusive("file", "url", "z")

	cobra.CheckErr(viper.BindPFlag("output.filename", normalizeCmd.Flags().Lookup("output")))
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Get command flags
	file, _ := cmd.Flags().GetString("file")
	url, _ := cmd.Flags().GetString("url")
	z, _ := cmd.Flags().GetInt("z")
	x, _ := cmd.Flags().GetInt("x")
	y, _ := cmd.Flags().GetInt("y")
	pixel, _ := cmd.Flags().GetBool("pixel")
	metadata, _ := cmd.Flags().GetBool("metadata")

	factory := source.NewFetcherFactory(cfg)

	// Build the raw fetcher
	var (
		name    string
		fetcher vector.Fetcher
		tile    *mvt.TileID
	)
	switch {
	case file != "" || url != "":
		name = file
		if name == "" {
			name = url
		}
		fetcher, err = factory.NewDocumentFetcher(name)
		if err != nil {
			return err
		}
		if tid, ok := source.ParseTilePath(name); ok {
			tile = &tid
		}

	case cmd.Flags().Changed("z"):
		tid := mvt.TileID{Z: z, X: x, Y: y}
		if err := tid.Validate(); err != nil {
			return fmt.Errorf("invalid tile coordinates: %w", err)
		}
		name = tid.String()
		tile = &tid
		fetcher, err = factory.NewTileFetcher([]mvt.TileID{tid})
		if err != nil {
			return fmt.Errorf("source configuration validation failed: %w", err)
		}

	default:
		return fmt.Errorf("either --file, --url or --z/--x/--y must be specified")
	}

	opts, err := sourceOptions(cfg)
	if err != nil {
		return err
	}
	if pixel {
		transformer, err := newTransformer(cfg, tile)
		if err != nil {
			return err
		}
		if transformer != nil {
			opts = append(opts, vector.WithTransformer(transformer))
		}
	}

	// Fetch and normalize
	start := time.Now()
	src := vector.NewSource(fetcher, opts...)

	log.Debug().Str("input", name).Msg("fetching input")
	raw, err := src.Raw(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", name, err)
	}

	fc, err := src.Geometry(cmd.Context(), pixel)
	if err != nil {
		return fmt.Errorf("failed to normalize %s: %w", name, err)
	}

	// Write the result
	wc, err := writerConfig(cfg, metadata)
	if err != nil {
		return err
	}

	outputPath := cfg.Output.Filename
	if (outputPath == "" || outputPath == "-") && !cfg.Output.Stdout {
		return fmt.Errorf("no output file given and output.stdout is disabled")
	}

	writer, err := output.NewWriter(afero.NewOsFs(), wc, outputPath, false, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}

	result := &output.Result{
		Name:       name,
		Collection: fc,
		Stats: &output.ItemStats{
			RawFeatures:    len(raw.Features),
			OutputFeatures: len(fc.Features),
			Duration:       time.Since(start),
		},
	}
	if err := writer.Write(result); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	log.Info().
		Str("input", name).
		Int("raw_features", result.Stats.RawFeatures).
		Int("polygons", result.Stats.OutputFeatures).
		Dur("duration", result.Stats.Duration).
		Msg("normalized")

	return nil
}

// cmd/common.go - Helpers shared by the normalize and batch commands
package cmd

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/vecnorm/internal/config"
	"github.com/valpere/vecnorm/internal/logger"
	"github.com/valpere/vecnorm/internal/output"
	"github.com/valpere/vecnorm/pkg/buffer"
	"github.com/valpere/vecnorm/pkg/crs"
	"github.com/valpere/vecnorm/pkg/mvt"
	"github.com/valpere/vecnorm/pkg/vector"
)

// loadConfig merges geometry flags into viper, loads the configuration and
// sets up logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := applyGeometryFlags(cmd); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Setup(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return cfg, nil
}

// applyGeometryFlags copies flags that do not map one to one onto a
// configuration key
func applyGeometryFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()

	for flag, key := range map[string]string{"line-buffer": "buffers.line", "point-buffer": "buffers.point"} {
		values, err := flags.GetStringSlice(flag)
		if err != nil {
			return err
		}
		parsed, err := config.ParseBufferFlags(values)
		if err != nil {
			return fmt.Errorf("--%s: %w", flag, err)
		}
		for class, radius := range parsed {
			viper.Set(key+"."+class, radius)
		}
	}

	if flags.Changed("geotransform") {
		value, _ := flags.GetString("geotransform")
		gt, err := crs.ParseGeoTransform(value)
		if err != nil {
			return fmt.Errorf("--geotransform: %w", err)
		}
		viper.Set("transform.type", config.TransformAffine)
		viper.Set("transform.geotransform", gt[:])
	}

	if flags.Changed("tile-pixels") {
		extent, _ := flags.GetFloat64("tile-pixels")
		viper.Set("transform.type", config.TransformTile)
		viper.Set("transform.tile_extent", extent)
	}

	if flags.Changed("class-name-key") {
		viper.Set("classes.enabled", true)
	}

	return nil
}

// sourceOptions returns the buffer settings shared by every source
func sourceOptions(cfg *config.Config) ([]vector.SourceOption, error) {
	lines, err := cfg.LineBuffers()
	if err != nil {
		return nil, fmt.Errorf("line buffers: %w", err)
	}

	points, err := cfg.PointBuffers()
	if err != nil {
		return nil, fmt.Errorf("point buffers: %w", err)
	}

	return []vector.SourceOption{
		vector.WithLineBuffers(lines),
		vector.WithPointBuffers(points),
		vector.WithBufferer(buffer.New(buffer.WithQuadrantSegments(cfg.Buffers.QuadrantSegments))),
	}, nil
}

// newTransformer builds the configured pixel transform. The tile transform
// needs the tile the input belongs to; tid is nil for other inputs.
func newTransformer(cfg *config.Config, tid *mvt.TileID) (vector.Transformer, error) {
	switch cfg.Transform.Type {
	case config.TransformAffine:
		var gt [6]float64
		copy(gt[:], cfg.Transform.GeoTransform)
		affine, err := crs.NewAffine(gt)
		if err != nil {
			return nil, err
		}
		return affine, nil

	case config.TransformTile:
		if tid == nil {
			return nil, fmt.Errorf("the tile transform needs tile input")
		}
		if cfg.Tiles.CoordinateSystem != mvt.CoordSystemWGS84 {
			log.Warn().Str("coordinate_system", cfg.Tiles.CoordinateSystem).Msg("tile transform expects wgs84 coordinates")
		}
		return crs.NewTile(tid.MapTile(), cfg.Transform.TileExtent), nil

	default:
		return nil, nil
	}
}

// writerConfig converts output settings into a writer configuration
func writerConfig(cfg *config.Config, metadata bool) (*output.WriterConfig, error) {
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	return &output.WriterConfig{
		Format:      format,
		Pretty:      cfg.Output.Pretty,
		Compression: cfg.Output.Compression,
		Metadata:    metadata,
		Simplify:    cfg.Output.Simplify,
	}, nil
}

// parseBoundingBox parses a "min_lon,min_lat,max_lon,max_lat" string
func parseBoundingBox(bbox string) (orb.Bound, error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bounding box must have 4 values: min_lon,min_lat,max_lon,max_lat")
	}

	var coords [4]float64
	for i, part := range parts {
		val, err := cast.ToFloat64E(strings.TrimSpace(part))
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid coordinate value: %s", part)
		}
		coords[i] = val
	}

	if coords[0] > coords[2] || coords[1] > coords[3] {
		return orb.Bound{}, fmt.Errorf("bounding box minimum exceeds maximum: %s", bbox)
	}

	return orb.Bound{
		Min: orb.Point{coords[0], coords[1]},
		Max: orb.Point{coords[2], coords[3]},
	}, nil
}

// parseTilesList parses a comma-separated list of z/x/y tile ids
func parseTilesList(tiles string) ([]mvt.TileID, error) {
	var ids []mvt.TileID

	for _, part := range strings.Split(tiles, ",") {
		coords := strings.Split(strings.TrimSpace(part), "/")
		if len(coords) != 3 {
			return nil, fmt.Errorf("invalid tile format: %s (expected z/x/y)", part)
		}

		var values [3]int
		for i, c := range coords {
			v, err := cast.ToIntE(c)
			if err != nil {
				return nil, fmt.Errorf("invalid tile coordinate %q in %s", c, part)
			}
			values[i] = v
		}

		tid := mvt.TileID{Z: values[0], X: values[1], Y: values[2]}
		if err := tid.Validate(); err != nil {
			return nil, err
		}
		ids = append(ids, tid)
	}

	return ids, nil
}

// cmd/root.go - Root command implementation
package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vecnorm",
	Short: "Normalize vector features into simple polygons",
	Long: `vecnorm turns GeoJSON features and Mapbox Vector Tile features into
GeoJSON FeatureCollections holding only simple polygons. Points and lines are
buffered by a radius chosen by their class_id, polygons are repaired, and the
result can be mapped into pixel space with a raster geotransform or a tile grid.

Data Sources:
- GeoJSON documents from local files or HTTP/HTTPS
- Vector tiles from a tile server or a local z/x/y directory
- Automatic source type detection

Examples:
  # Buffer roads (class 1) by 2.5 units and write pixel space polygons
  vecnorm normalize --file labels.geojson --line-buffer 1=2.5 --geotransform "500000,0.5,0,4100000,0,-0.5"

  # Normalize one remote tile in its own 256px grid
  vecnorm normalize --base-url "https://example.com/tiles" --z 14 --x 8362 --y 5956 --tile-pixels 256

  # Normalize many files concurrently into a directory
  vecnorm batch --output-dir ./out a.geojson b.geojson c.geojson

  # Normalize every local tile covering a bounding box
  vecnorm batch --base-path /data/tiles --zoom 12 --bbox "-74.0,40.7,-73.9,40.8" --output-dir ./out`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()

	// Global flags
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vecnorm.yaml)")

	// Source configuration flags
	flags.String("source-type", "auto", "data source type (auto, http, local)")
	flags.String("input-format", "auto", "input format (auto, geojson, mvt)")
	flags.String("base-url", "", "base URL for tile server (HTTP source)")
	flags.String("base-path", "", "base path for local tiles (local source)")
	flags.String("api-key", "", "API key for authentication (HTTP source)")
	flags.StringSlice("layers", nil, "only decode these tile layers")

	// Output flags
	flags.StringP("format", "f", "geojson", "output format (geojson, json)")
	flags.Bool("pretty", false, "pretty print JSON output")
	flags.Bool("compression", false, "compress output files")
	flags.Float64("simplify", 0, "Douglas-Peucker tolerance applied to output polygons (0 disables)")

	// Geometry flags
	flags.Int("quadrant-segments", 16, "segments used for a quarter circle when buffering")
	flags.StringSlice("line-buffer", nil, "buffer radius for line classes as class=radius (repeatable)")
	flags.StringSlice("point-buffer", nil, "buffer radius for point classes as class=radius (repeatable)")
	flags.String("geotransform", "", "affine pixel transform as 6 comma separated GDAL geotransform values")
	flags.Float64("tile-pixels", 0, "map into the pixel grid of the input tile with this extent")

	// Class inference flags
	flags.String("class-name-key", "", "property looked up in classes.map to infer class_id")

	// Processing flags
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.Int("concurrency", 4, "number of concurrent requests and batch workers")
	flags.Duration("timeout", 30*time.Second, "request timeout (HTTP source)")
	flags.Int("retries", 3, "number of retry attempts")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"source.type":               "source-type",
		"source.format":             "input-format",
		"server.base_url":           "base-url",
		"local.base_path":           "base-path",
		"server.api_key":            "api-key",
		"tiles.layers":              "layers",
		"output.format":             "format",
		"output.pretty":             "pretty",
		"output.compression":        "compression",
		"output.simplify":           "simplify",
		"buffers.quadrant_segments": "quadrant-segments",
		"classes.name_key":          "class-name-key",
		"logging.verbose":           "verbose",
		"logging.level":             "log-level",
		"logging.format":            "log-format",
		"batch.concurrency":         "concurrency",
		"server.timeout":            "timeout",
		"server.max_retries":        "retries",
	} {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(flag)))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".vecnorm" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".vecnorm")
	}

	// Environment variables
	viper.SetEnvPrefix("VECNORM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("using config file")
	} else if cfgFile != "" {
		cobra.CheckErr(err)
	}
}

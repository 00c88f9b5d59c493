// internal/config/config.go - Configuration management
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/valpere/vecnorm/internal"
	"github.com/valpere/vecnorm/pkg/vector"
)

// Config represents the complete application configuration
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Server    ServerConfig    `mapstructure:"server"`
	Local     LocalConfig     `mapstructure:"local"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
	Output    OutputConfig    `mapstructure:"output"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Network   NetworkConfig   `mapstructure:"network"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Buffers   BuffersConfig   `mapstructure:"buffers"`
	Transform TransformConfig `mapstructure:"transform"`
	Classes   ClassesConfig   `mapstructure:"classes"`
}

// SourceConfig determines where raw vector data comes from and how it is encoded
type SourceConfig struct {
	Type        string `mapstructure:"type"`
	DefaultType string `mapstructure:"default_type"`
	AutoDetect  bool   `mapstructure:"auto_detect"`
	Format      string `mapstructure:"format"`
}

// ServerConfig contains server configuration for HTTP sources
type ServerConfig struct {
	BaseURL     string            `mapstructure:"base_url"`
	APIKey      string            `mapstructure:"api_key"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	MaxRetries  int               `mapstructure:"max_retries"`
	URLTemplate string            `mapstructure:"url_template"`
}

// LocalConfig contains configuration for local file processing
type LocalConfig struct {
	BasePath     string `mapstructure:"base_path"`
	PathTemplate string `mapstructure:"path_template"`
	Extension    string `mapstructure:"extension"`
	Compressed   bool   `mapstructure:"compressed"`
}

// TilesConfig controls how vector tiles are decoded
type TilesConfig struct {
	Layers           []string `mapstructure:"layers"`
	Properties       []string `mapstructure:"properties"`
	CoordinateSystem string   `mapstructure:"coordinate_system"`
}

// OutputConfig contains output formatting configuration
type OutputConfig struct {
	Format      string  `mapstructure:"format"`
	Directory   string  `mapstructure:"directory"`
	Filename    string  `mapstructure:"filename"`
	Compression bool    `mapstructure:"compression"`
	Pretty      bool    `mapstructure:"pretty"`
	Stdout      bool    `mapstructure:"stdout"`
	Simplify    float64 `mapstructure:"simplify"`
}

// BatchConfig contains batch processing configuration
type BatchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	FailOnError bool          `mapstructure:"fail_on_error"`
}

// NetworkConfig contains network-related configuration
type NetworkConfig struct {
	ProxyURL         string        `mapstructure:"proxy_url"`
	UserAgent        string        `mapstructure:"user_agent"`
	KeepAlive        time.Duration `mapstructure:"keep_alive"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	IdleConnTimeout  time.Duration `mapstructure:"idle_conn_timeout"`
	DisableKeepAlive bool          `mapstructure:"disable_keep_alive"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Verbose  bool   `mapstructure:"verbose"`
	Progress bool   `mapstructure:"progress"`
}

// BuffersConfig holds the per-class buffer radii. Keys are class ids; they
// are strings because configuration map keys always are.
type BuffersConfig struct {
	Line             map[string]float64 `mapstructure:"line"`
	Point            map[string]float64 `mapstructure:"point"`
	QuadrantSegments int                `mapstructure:"quadrant_segments"`
}

// TransformConfig selects the transform used for pixel space output
type TransformConfig struct {
	Type         string    `mapstructure:"type"`
	GeoTransform []float64 `mapstructure:"geotransform"`
	TileExtent   float64   `mapstructure:"tile_extent"`
}

// ClassesConfig controls class id inference
type ClassesConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	IDKey     string         `mapstructure:"id_key"`
	NameKey   string         `mapstructure:"name_key"`
	Map       map[string]int `mapstructure:"map"`
	DefaultID *int           `mapstructure:"default_id"`
}

// Transform types
const (
	TransformNone   = "none"
	TransformAffine = "affine"
	TransformTile   = "tile"
)

// Load loads configuration from various sources
func Load() (*Config, error) {
	// Set default values
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults configures default values for all configuration options
func setDefaults() {
	// Source defaults
	viper.SetDefault("source.type", "auto")
	viper.SetDefault("source.default_type", "local")
	viper.SetDefault("source.auto_detect", true)
	viper.SetDefault("source.format", "auto")

	// Server defaults
	viper.SetDefault("server.timeout", 30*time.Second)
	viper.SetDefault("server.max_retries", 3)
	viper.SetDefault("server.url_template", "{base_url}/{z}/{x}/{y}.mvt")

	// Local file defaults
	viper.SetDefault("local.path_template", "{base_path}/{z}/{x}/{y}{ext}")
	viper.SetDefault("local.extension", ".mvt")
	viper.SetDefault("local.compressed", false)

	// Tile decoding defaults
	viper.SetDefault("tiles.coordinate_system", "wgs84")

	// Output defaults
	viper.SetDefault("output.format", "geojson")
	viper.SetDefault("output.directory", "./output")
	viper.SetDefault("output.pretty", false)
	viper.SetDefault("output.compression", false)
	viper.SetDefault("output.stdout", true)
	viper.SetDefault("output.simplify", 0.0)

	// Batch defaults
	viper.SetDefault("batch.concurrency", 4)
	viper.SetDefault("batch.timeout", 5*time.Minute)
	viper.SetDefault("batch.fail_on_error", false)

	// Network defaults
	viper.SetDefault("network.user_agent", "vecnorm/1.0")
	viper.SetDefault("network.keep_alive", 30*time.Second)
	viper.SetDefault("network.max_idle_conns", 100)
	viper.SetDefault("network.idle_conn_timeout", 90*time.Second)
	viper.SetDefault("network.disable_keep_alive", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stderr")
	viper.SetDefault("logging.verbose", false)
	viper.SetDefault("logging.progress", true)

	// Geometry defaults
	viper.SetDefault("buffers.quadrant_segments", 16)
	viper.SetDefault("transform.type", TransformNone)
	viper.SetDefault("transform.tile_extent", 256.0)

	// Class inference defaults
	viper.SetDefault("classes.enabled", false)
	viper.SetDefault("classes.id_key", vector.ClassIDKey)
}

// ToApplicationConfig converts Config to internal.ApplicationConfig
func (c *Config) ToApplicationConfig() *internal.ApplicationConfig {
	return &internal.ApplicationConfig{
		LogLevel:       c.Logging.Level,
		MaxConcurrency: c.Batch.Concurrency,
		RequestTimeout: c.Server.Timeout,
		RetryAttempts:  c.Server.MaxRetries,
		RetryDelay:     time.Second,
		SourceType:     c.DetermineSourceType(),
	}
}

// LineBuffers returns the configured line radii keyed by class id
func (c *Config) LineBuffers() (vector.ClassBuffers, error) {
	return parseClassBuffers(c.Buffers.Line)
}

// PointBuffers returns the configured point radii keyed by class id
func (c *Config) PointBuffers() (vector.ClassBuffers, error) {
	return parseClassBuffers(c.Buffers.Point)
}

func parseClassBuffers(raw map[string]float64) (vector.ClassBuffers, error) {
	buffers := make(vector.ClassBuffers, len(raw))
	for key, radius := range raw {
		id, err := cast.ToIntE(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("invalid class id %q: %w", key, err)
		}
		buffers[id] = radius
	}
	if err := buffers.Validate(); err != nil {
		return nil, err
	}
	return buffers, nil
}

// ParseBufferFlags parses "class=radius" pairs as given on the command line
func ParseBufferFlags(values []string) (map[string]float64, error) {
	out := make(map[string]float64, len(values))
	for _, value := range values {
		parts := strings.SplitN(value, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid buffer %q: expected class=radius", value)
		}
		id, err := cast.ToIntE(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid class id in %q: %w", value, err)
		}
		radius, err := cast.ToFloat64E(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid radius in %q: %w", value, err)
		}
		out[cast.ToString(id)] = radius
	}
	return out, nil
}

// GetTileURL builds a tile URL using the configured template for HTTP sources
func (c *Config) GetTileURL(z, x, y int) string {
	if c.Server.BaseURL == "" {
		return ""
	}
	template := c.Server.URLTemplate
	if template == "" {
		template = "{base_url}/{z}/{x}/{y}.mvt"
	}
	return expandTemplate(template, map[string]string{
		"base_url": strings.TrimRight(c.Server.BaseURL, "/"),
	}, z, x, y)
}

// GetTilePath builds a local file path using the configured template for local sources
func (c *Config) GetTilePath(z, x, y int) string {
	if c.Local.BasePath == "" {
		return ""
	}
	extension := c.Local.Extension
	if c.Local.Compressed {
		extension += ".gz"
	}
	template := c.Local.PathTemplate
	if template == "" {
		template = "{base_path}/{z}/{x}/{y}{ext}"
	}
	return expandTemplate(template, map[string]string{
		"base_path": strings.TrimRight(c.Local.BasePath, "/"),
		"ext":       extension,
	}, z, x, y)
}

func expandTemplate(template string, values map[string]string, z, x, y int) string {
	values["z"] = cast.ToString(z)
	values["x"] = cast.ToString(x)
	values["y"] = cast.ToString(y)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(values))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", values[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// DetermineSourceType automatically determines the source type based on configuration
func (c *Config) DetermineSourceType() internal.SourceType {
	switch c.Source.Type {
	case "http":
		return internal.SourceTypeHTTP
	case "local":
		return internal.SourceTypeLocal
	}

	// Auto-detection logic
	if c.Source.AutoDetect {
		if c.Local.BasePath != "" && c.Server.BaseURL == "" {
			return internal.SourceTypeLocal
		}
		if c.Server.BaseURL != "" && c.Local.BasePath == "" {
			return internal.SourceTypeHTTP
		}
	}

	// Default to configured default type
	if c.Source.DefaultType == "http" {
		return internal.SourceTypeHTTP
	}
	return internal.SourceTypeLocal
}

// DetermineFormat decides how a location is decoded when the format is "auto"
func (c *Config) DetermineFormat(location string) internal.InputFormat {
	switch strings.ToLower(c.Source.Format) {
	case "mvt", "pbf":
		return internal.InputFormatMVT
	case "geojson", "json":
		return internal.InputFormatGeoJSON
	}

	lower := strings.TrimSuffix(strings.ToLower(location), ".gz")
	if strings.HasSuffix(lower, ".mvt") || strings.HasSuffix(lower, ".pbf") {
		return internal.InputFormatMVT
	}
	return internal.InputFormatGeoJSON
}

// internal/config/validation.go - Configuration validation
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/afero"

	"github.com/valpere/vecnorm/internal"
)

// Validate validates the configuration structure and values
func Validate(config *Config) error {
	if err := validateSource(&config.Source); err != nil {
		return fmt.Errorf("source configuration invalid: %w", err)
	}

	if err := validateServer(&config.Server); err != nil {
		return fmt.Errorf("server configuration invalid: %w", err)
	}

	if err := validateTiles(&config.Tiles); err != nil {
		return fmt.Errorf("tiles configuration invalid: %w", err)
	}

	if err := validateOutput(&config.Output); err != nil {
		return fmt.Errorf("output configuration invalid: %w", err)
	}

	if err := validateBatch(&config.Batch); err != nil {
		return fmt.Errorf("batch configuration invalid: %w", err)
	}

	if err := validateNetwork(&config.Network); err != nil {
		return fmt.Errorf("network configuration invalid: %w", err)
	}

	if err := validateLogging(&config.Logging); err != nil {
		return fmt.Errorf("logging configuration invalid: %w", err)
	}

	if err := validateBuffers(config); err != nil {
		return fmt.Errorf("buffers configuration invalid: %w", err)
	}

	if err := validateTransform(&config.Transform); err != nil {
		return fmt.Errorf("transform configuration invalid: %w", err)
	}

	if err := validateClasses(&config.Classes); err != nil {
		return fmt.Errorf("classes configuration invalid: %w", err)
	}

	return nil
}

// validateSource validates source selection parameters
func validateSource(config *SourceConfig) error {
	validTypes := []string{"auto", "http", "local"}
	if !contains(validTypes, config.Type) {
		return fmt.Errorf("invalid type: %s, must be one of %v", config.Type, validTypes)
	}

	validFormats := []string{"auto", "geojson", "json", "mvt", "pbf"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("invalid format: %s, must be one of %v", config.Format, validFormats)
	}

	return nil
}

// validateServer validates server configuration parameters
func validateServer(config *ServerConfig) error {
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid base_url: scheme must be http or https")
		}
	}

	if config.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if config.URLTemplate == "" {
		return fmt.Errorf("url_template is required")
	}

	return nil
}

// validateTiles validates tile decoding parameters
func validateTiles(config *TilesConfig) error {
	validSystems := []string{"wgs84", "web-mercator", "tile"}
	if !contains(validSystems, config.CoordinateSystem) {
		return fmt.Errorf("invalid coordinate_system: %s, must be one of %v", config.CoordinateSystem, validSystems)
	}
	return nil
}

// validateOutput validates output configuration parameters
func validateOutput(config *OutputConfig) error {
	validFormats := []string{"geojson", "json"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("invalid format: %s, must be one of %v", config.Format, validFormats)
	}

	if config.Simplify < 0 {
		return fmt.Errorf("simplify must be non-negative")
	}

	return nil
}

// validateBatch validates batch processing configuration parameters
func validateBatch(config *BatchConfig) error {
	if config.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	if config.Concurrency > 1000 {
		return fmt.Errorf("concurrency must not exceed 1000")
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	return nil
}

// validateNetwork validates network configuration parameters
func validateNetwork(config *NetworkConfig) error {
	if config.ProxyURL != "" {
		if _, err := url.Parse(config.ProxyURL); err != nil {
			return fmt.Errorf("invalid proxy_url: %w", err)
		}
	}

	if config.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns must be non-negative")
	}

	if config.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}

	if config.KeepAlive < 0 {
		return fmt.Errorf("keep_alive must be non-negative")
	}

	if config.IdleConnTimeout < 0 {
		return fmt.Errorf("idle_conn_timeout must be non-negative")
	}

	return nil
}

// validateLogging validates logging configuration parameters
func validateLogging(config *LoggingConfig) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	if !contains(validLevels, config.Level) {
		return fmt.Errorf("invalid log level: %s, must be one of %v", config.Level, validLevels)
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("invalid log format: %s, must be one of %v", config.Format, validFormats)
	}

	validOutputs := []string{"stdout", "stderr"}
	if !contains(validOutputs, config.Output) {
		return fmt.Errorf("invalid log output: %s, must be one of %v", config.Output, validOutputs)
	}

	return nil
}

// validateBuffers validates the per-class radii
func validateBuffers(config *Config) error {
	if config.Buffers.QuadrantSegments <= 0 {
		return fmt.Errorf("quadrant_segments must be positive")
	}

	if _, err := config.LineBuffers(); err != nil {
		return fmt.Errorf("line: %w", err)
	}

	if _, err := config.PointBuffers(); err != nil {
		return fmt.Errorf("point: %w", err)
	}

	return nil
}

// validateTransform validates the pixel transform selection
func validateTransform(config *TransformConfig) error {
	switch config.Type {
	case TransformNone, "":
	case TransformAffine:
		if len(config.GeoTransform) != 6 {
			return fmt.Errorf("geotransform needs 6 values, got %d", len(config.GeoTransform))
		}
	case TransformTile:
		if config.TileExtent <= 0 {
			return fmt.Errorf("tile_extent must be positive")
		}
	default:
		return fmt.Errorf("invalid type: %s, must be one of %v", config.Type,
			[]string{TransformNone, TransformAffine, TransformTile})
	}
	return nil
}

// validateClasses validates class inference parameters
func validateClasses(config *ClassesConfig) error {
	if !config.Enabled {
		return nil
	}

	if config.IDKey == "" {
		return fmt.Errorf("id_key cannot be empty")
	}

	if len(config.Map) > 0 && config.NameKey == "" {
		return fmt.Errorf("name_key is required when a class map is configured")
	}

	return nil
}

// ValidateLocalDirectory checks that the configured base path is a readable directory
func ValidateLocalDirectory(fs afero.Fs, config *Config) error {
	if config.Local.BasePath == "" {
		return internal.NewError(internal.ErrorCodeConfig, "base_path is required for local sources", nil)
	}

	info, err := fs.Stat(config.Local.BasePath)
	if err != nil {
		return internal.NewError(internal.ErrorCodeNotFound,
			fmt.Sprintf("base_path does not exist: %s", config.Local.BasePath), err)
	}

	if !info.IsDir() {
		return internal.NewError(internal.ErrorCodeValidation,
			fmt.Sprintf("base_path is not a directory: %s", config.Local.BasePath), nil)
	}

	return nil
}

// contains checks if a string slice contains a specific string (case-insensitive)
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

// internal/output/types.go - Output handling types
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb/geojson"
)

// Format represents different output formats supported by the application
type Format string

const (
	FormatGeoJSON Format = "geojson"
	FormatJSON    Format = "json"
)

// Result is one normalized collection ready to be written
type Result struct {
	// Name identifies the input, e.g. a file name or a z/x/y tile id
	Name       string
	Collection *geojson.FeatureCollection
	Stats      *ItemStats
}

// ItemStats describes how a result was produced
type ItemStats struct {
	RawFeatures    int           `json:"raw_features"`
	OutputFeatures int           `json:"output_features"`
	Duration       time.Duration `json:"duration"`
}

// Writer defines the interface for writing normalized collections to various destinations
type Writer interface {
	Write(result *Result) error
	WriteBatch(results []*Result) error
	Close() error
}

// Formatter defines the interface for turning normalized collections into bytes
type Formatter interface {
	Format(result *Result) ([]byte, error)
	FormatBatch(results []*Result) ([]byte, error)
	ContentType() string
}

// Destination represents an output destination (file, stdout, etc.)
type Destination interface {
	io.WriteCloser
	Name() string
	Size() int64
}

// WriterConfig contains configuration for creating writers
type WriterConfig struct {
	Format      Format
	Pretty      bool
	Compression bool
	Metadata    bool
	// Simplify is the Douglas-Peucker tolerance in output units; 0 disables it
	Simplify float64
}

// FormatterConfig contains configuration for creating formatters
type FormatterConfig struct {
	Format       Format
	Pretty       bool
	IncludeStats bool
	Simplify     float64
}

// String returns a string representation of the format
func (f Format) String() string {
	return string(f)
}

// IsValid checks if the format is supported
func (f Format) IsValid() bool {
	switch f {
	case FormatGeoJSON, FormatJSON:
		return true
	default:
		return false
	}
}

// Extension returns the file extension used for the format
func (f Format) Extension() string {
	if f == FormatGeoJSON {
		return ".geojson"
	}
	return ".json"
}

// ParseFormat converts a configuration value into a Format
func ParseFormat(value string) (Format, error) {
	f := Format(value)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %s", value)
	}
	return f, nil
}

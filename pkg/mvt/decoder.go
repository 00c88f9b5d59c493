// pkg/mvt/decoder.go - Mapbox Vector Tile decoding into GeoJSON features
package mvt

import (
	"bytes"
	"fmt"

	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
	"github.com/rs/zerolog/log"
)

// LayerProperty is the property holding the source layer of a feature
const LayerProperty = "_layer"

// Coordinate system constants
const (
	CoordSystemWGS84       = "wgs84"
	CoordSystemWebMercator = "web-mercator"
	CoordSystemTile        = "tile"
)

// MaxZoom is the deepest zoom level accepted for tile coordinates
const MaxZoom = 22

var gzipMagic = []byte{0x1f, 0x8b}

// Decoder turns Mapbox Vector Tiles into GeoJSON feature collections
type Decoder struct {
	options *DecodeOptions
}

// DecodeOptions configures the decoding process
type DecodeOptions struct {
	LayerFilter      []string `json:"layer_filter,omitempty"`    // Only include specified layers
	PropertyFilter   []string `json:"property_filter,omitempty"` // Only include specified properties
	CoordinateSystem string   `json:"coordinate_system"`         // "wgs84", "web-mercator" or "tile"
}

// Metadata describes a decoded tile
type Metadata struct {
	Layers       []string `json:"layers"`
	FeatureCount int      `json:"feature_count"`
	Version      int      `json:"version"`
	Extent       int      `json:"extent"`
	TileID       string   `json:"tile_id"`
}

// TileID represents the tile coordinates and zoom level
type TileID struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// NewDecoder creates a decoder producing WGS84 coordinates
func NewDecoder() *Decoder {
	return &Decoder{
		options: &DecodeOptions{CoordinateSystem: CoordSystemWGS84},
	}
}

// NewDecoderWithOptions creates a decoder with custom options
func NewDecoderWithOptions(options *DecodeOptions) (*Decoder, error) {
	if options.CoordinateSystem == "" {
		options.CoordinateSystem = CoordSystemWGS84
	}
	if err := ValidateDecodeOptions(options); err != nil {
		return nil, fmt.Errorf("invalid decode options: %w", err)
	}

	return &Decoder{options: options}, nil
}

// Decode parses raw or gzipped tile data. Features without geometry are kept
// with a nil Geometry so callers can decide what to do with them.
func (d *Decoder) Decode(data []byte, tid TileID) (*geojson.FeatureCollection, *Metadata, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("empty tile data")
	}
	if err := tid.Validate(); err != nil {
		return nil, nil, err
	}

	var layers mvt.Layers
	var err error
	if bytes.HasPrefix(data, gzipMagic) {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal MVT data: %w", err)
	}

	if d.options.CoordinateSystem != CoordSystemTile {
		layers.ProjectToWGS84(tid.MapTile())
	}

	fc := geojson.NewFeatureCollection()
	metadata := &Metadata{TileID: tid.String()}

	for _, layer := range layers {
		metadata.Layers = append(metadata.Layers, layer.Name)
		if metadata.Extent == 0 {
			metadata.Extent = int(layer.Extent)
			metadata.Version = int(layer.Version)
		}

		if len(d.options.LayerFilter) > 0 && !contains(d.options.LayerFilter, layer.Name) {
			log.Debug().Str("layer", layer.Name).Str("tile", tid.String()).Msg("skipping filtered layer")
			continue
		}

		for _, feature := range layer.Features {
			fc.Append(d.convertFeature(feature, layer.Name))
		}
	}

	metadata.FeatureCount = len(fc.Features)
	return fc, metadata, nil
}

// convertFeature copies a tile feature, applying the property filter and the
// output coordinate system
func (d *Decoder) convertFeature(feature *geojson.Feature, layerName string) *geojson.Feature {
	properties := make(geojson.Properties, len(feature.Properties)+1)
	for key, value := range feature.Properties {
		if len(d.options.PropertyFilter) > 0 && !contains(d.options.PropertyFilter, key) {
			continue
		}
		properties[key] = value
	}
	properties[LayerProperty] = layerName

	out := &geojson.Feature{
		Type:       "Feature",
		ID:         feature.ID,
		Geometry:   feature.Geometry,
		Properties: properties,
	}

	if out.Geometry != nil && d.options.CoordinateSystem == CoordSystemWebMercator {
		out.Geometry = project.Geometry(out.Geometry, project.WGS84.ToMercator)
	}
	return out
}

// ValidateDecodeOptions validates the decode options
func ValidateDecodeOptions(options *DecodeOptions) error {
	switch options.CoordinateSystem {
	case CoordSystemWGS84, CoordSystemWebMercator, CoordSystemTile:
		return nil
	default:
		return fmt.Errorf("invalid coordinate system: %s, must be '%s', '%s' or '%s'",
			options.CoordinateSystem, CoordSystemWGS84, CoordSystemWebMercator, CoordSystemTile)
	}
}

// MapTile converts the id into an orb tile
func (tid TileID) MapTile() maptile.Tile {
	return maptile.New(uint32(tid.X), uint32(tid.Y), maptile.Zoom(tid.Z))
}

// String returns a string representation of the tile ID
func (tid TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", tid.Z, tid.X, tid.Y)
}

// Validate checks if the tile coordinates are valid
func (tid TileID) Validate() error {
	if tid.Z < 0 || tid.Z > MaxZoom {
		return fmt.Errorf("invalid zoom level %d: must be between 0 and %d", tid.Z, MaxZoom)
	}

	maxTile := 1 << uint(tid.Z)
	if tid.X < 0 || tid.X >= maxTile {
		return fmt.Errorf("invalid X coordinate %d for zoom %d: must be between 0 and %d", tid.X, tid.Z, maxTile-1)
	}

	if tid.Y < 0 || tid.Y >= maxTile {
		return fmt.Errorf("invalid Y coordinate %d for zoom %d: must be between 0 and %d", tid.Y, tid.Z, maxTile-1)
	}

	return nil
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

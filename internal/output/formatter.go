// internal/output/formatter.go - Output formatting implementation
package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
)

// SourceProperty names the input of a feature in merged batch output
const SourceProperty = "_source"

// GeoJSONFormatter formats results as GeoJSON FeatureCollections
type GeoJSONFormatter struct {
	pretty       bool
	includeStats bool
	tolerance    float64
}

// NewGeoJSONFormatter creates a new GeoJSON formatter
func NewGeoJSONFormatter(pretty, includeStats bool, tolerance float64) *GeoJSONFormatter {
	return &GeoJSONFormatter{
		pretty:       pretty,
		includeStats: includeStats,
		tolerance:    tolerance,
	}
}

// Format formats a single result as a FeatureCollection
func (f *GeoJSONFormatter) Format(result *Result) ([]byte, error) {
	if result.Collection == nil {
		return nil, fmt.Errorf("cannot format %s: no collection", result.Name)
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = simplifyFeatures(result.Collection.Features, f.tolerance)

	// Add metadata if requested
	if f.includeStats {
		fc.ExtraMembers = geojson.Properties{
			"_metadata": map[string]interface{}{
				"name":  result.Name,
				"stats": result.Stats,
			},
		}
	}

	return marshal(fc, f.pretty)
}

// FormatBatch merges several results into one FeatureCollection
func (f *GeoJSONFormatter) FormatBatch(results []*Result) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	var emptyResults int
	for _, r := range results {
		if r.Collection == nil {
			emptyResults++
			continue
		}

		for _, feature := range simplifyFeatures(r.Collection.Features, f.tolerance) {
			// Tag each feature with its input if metadata is enabled
			if f.includeStats {
				feature = withProperty(feature, SourceProperty, r.Name)
			}
			fc.Append(feature)
		}
	}

	// Add collection-level metadata
	if f.includeStats {
		fc.ExtraMembers = geojson.Properties{
			"_metadata": map[string]interface{}{
				"total_items":    len(results),
				"empty_items":    emptyResults,
				"total_features": len(fc.Features),
				"generated_at":   time.Now().UTC(),
			},
		}
	}

	return marshal(fc, f.pretty)
}

// ContentType returns the MIME type for GeoJSON
func (f *GeoJSONFormatter) ContentType() string {
	return "application/geo+json"
}

// JSONFormatter wraps results in JSON objects carrying their name and stats
type JSONFormatter struct {
	pretty       bool
	includeStats bool
	tolerance    float64
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(pretty, includeStats bool, tolerance float64) *JSONFormatter {
	return &JSONFormatter{
		pretty:       pretty,
		includeStats: includeStats,
		tolerance:    tolerance,
	}
}

// Format formats a single result as a JSON object
func (f *JSONFormatter) Format(result *Result) ([]byte, error) {
	return marshal(f.item(result), f.pretty)
}

// FormatBatch formats multiple results as a JSON object with an items array
func (f *JSONFormatter) FormatBatch(results []*Result) ([]byte, error) {
	items := make([]interface{}, 0, len(results))
	var features int
	for _, r := range results {
		items = append(items, f.item(r))
		if r.Collection != nil {
			features += len(r.Collection.Features)
		}
	}

	output := map[string]interface{}{
		"items": items,
	}

	if f.includeStats {
		output["summary"] = map[string]interface{}{
			"total_items":    len(results),
			"total_features": features,
			"generated_at":   time.Now().UTC(),
		}
	}

	return marshal(output, f.pretty)
}

func (f *JSONFormatter) item(result *Result) map[string]interface{} {
	output := map[string]interface{}{
		"name": result.Name,
		"data": nil,
	}

	if result.Collection != nil {
		fc := geojson.NewFeatureCollection()
		fc.Features = simplifyFeatures(result.Collection.Features, f.tolerance)
		output["data"] = fc
	}

	if f.includeStats && result.Stats != nil {
		output["metadata"] = result.Stats
	}

	return output
}

// ContentType returns the MIME type for JSON
func (f *JSONFormatter) ContentType() string {
	return "application/json"
}

// NewFormatter creates a formatter based on the specified configuration
func NewFormatter(config *FormatterConfig) (Formatter, error) {
	if config.Simplify < 0 {
		return nil, fmt.Errorf("simplify tolerance must be non-negative")
	}

	switch config.Format {
	case FormatGeoJSON:
		return NewGeoJSONFormatter(config.Pretty, config.IncludeStats, config.Simplify), nil
	case FormatJSON:
		return NewJSONFormatter(config.Pretty, config.IncludeStats, config.Simplify), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", config.Format)
	}
}

// simplifyFeatures returns copies of the features with simplified polygons.
// Polygons whose shell collapses are dropped, collapsed holes are removed.
// The input features are never modified.
func simplifyFeatures(features []*geojson.Feature, tolerance float64) []*geojson.Feature {
	if tolerance <= 0 {
		return features
	}

	dp := simplify.DouglasPeucker(tolerance)
	out := make([]*geojson.Feature, 0, len(features))
	for _, feature := range features {
		if feature.Geometry == nil {
			out = append(out, feature)
			continue
		}

		g := dp.Simplify(orb.Clone(feature.Geometry))
		if p, ok := g.(orb.Polygon); ok {
			g = dropCollapsedRings(p)
			if g == nil {
				continue
			}
		}

		out = append(out, &geojson.Feature{
			Type:       feature.Type,
			ID:         feature.ID,
			Geometry:   g,
			Properties: feature.Properties,
		})
	}
	return out
}

// dropCollapsedRings removes rings with fewer than four points, returning nil
// if the shell collapsed
func dropCollapsedRings(p orb.Polygon) orb.Geometry {
	if len(p) == 0 || len(p[0]) < 4 {
		return nil
	}

	kept := orb.Polygon{p[0]}
	for _, hole := range p[1:] {
		if len(hole) >= 4 {
			kept = append(kept, hole)
		}
	}
	return kept
}

// withProperty returns a copy of feature with one extra property
func withProperty(feature *geojson.Feature, key string, value interface{}) *geojson.Feature {
	props := make(geojson.Properties, len(feature.Properties)+1)
	for k, v := range feature.Properties {
		props[k] = v
	}
	props[key] = value

	return &geojson.Feature{
		Type:       feature.Type,
		ID:         feature.ID,
		Geometry:   feature.Geometry,
		Properties: props,
	}
}

func marshal(v interface{}, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

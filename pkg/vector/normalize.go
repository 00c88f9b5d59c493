// pkg/vector/normalize.go - Conversion of raw features into simple polygons
package vector

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/valpere/vecnorm/pkg/buffer"
)

// ClassIDKey is the property holding the class of a feature
const ClassIDKey = "class_id"

// Bufferer grows a single geometry by a radius. A zero radius applied to a
// polygon must repair it.
type Bufferer interface {
	Buffer(g orb.Geometry, radius float64) ([]orb.Polygon, error)
}

// Options configures Normalize
type Options struct {
	// LineBuffers holds the radius used for line strings of each class
	LineBuffers ClassBuffers

	// PointBuffers holds the radius used for points of each class
	PointBuffers ClassBuffers

	// Transformer maps the resulting polygons, nil keeps source coordinates
	Transformer Transformer

	// Bufferer defaults to buffer.New()
	Bufferer Bufferer
}

// Normalize turns every feature of raw into features holding a single simple
// polygon. Multi geometries are split into parts, points and lines are
// buffered by the radius of their class and polygons are repaired. Each
// output feature carries a copy of its source feature's properties. Features
// without coordinates produce no output.
func Normalize(raw *geojson.FeatureCollection, opts Options) (*geojson.FeatureCollection, error) {
	out := geojson.NewFeatureCollection()
	if raw == nil {
		return out, nil
	}

	bufferer := opts.Bufferer
	if bufferer == nil {
		bufferer = buffer.New()
	}

	for i, feature := range raw.Features {
		if feature == nil || !hasCoordinates(feature.Geometry) {
			log.Debug().Int("feature", i).Msg("skipping feature without coordinates")
			continue
		}

		parts, err := decompose(feature.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		for _, part := range parts {
			polygons, err := bufferPart(bufferer, part, feature.Properties, opts)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}

			for _, polygon := range polygons {
				if opts.Transformer != nil {
					polygon, err = transformPolygon(polygon, opts.Transformer)
					if err != nil {
						return nil, fmt.Errorf("feature %d: %w", i, err)
					}
				}

				f := geojson.NewFeature(polygon)
				f.Properties = copyProperties(feature.Properties)
				out.Append(f)
			}
		}
	}

	return out, nil
}

// decompose splits multi geometries into their parts
func decompose(g orb.Geometry) ([]orb.Geometry, error) {
	switch g := g.(type) {
	case orb.Point, orb.LineString, orb.Polygon:
		return []orb.Geometry{g}, nil
	case orb.MultiPoint:
		parts := make([]orb.Geometry, len(g))
		for i, p := range g {
			parts[i] = p
		}
		return parts, nil
	case orb.MultiLineString:
		parts := make([]orb.Geometry, len(g))
		for i, ls := range g {
			parts[i] = ls
		}
		return parts, nil
	case orb.MultiPolygon:
		parts := make([]orb.Geometry, len(g))
		for i, p := range g {
			parts[i] = p
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.GeoJSONType())
	}
}

func bufferPart(b Bufferer, part orb.Geometry, props geojson.Properties, opts Options) ([]orb.Polygon, error) {
	var radius float64
	var err error
	switch part.(type) {
	case orb.Point:
		radius, err = classRadius(props, opts.PointBuffers)
	case orb.LineString:
		radius, err = classRadius(props, opts.LineBuffers)
	case orb.Polygon:
		radius = 0
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, part.GeoJSONType())
	}
	if err != nil {
		return nil, err
	}

	polygons, err := b.Buffer(part, radius)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer %s by %v: %w", part.GeoJSONType(), radius, err)
	}
	return polygons, nil
}

// classRadius looks up the radius of the feature's class. A class that is
// present but cannot be a configuration key gets DefaultRadius, like any
// class without a configured buffer. Only a missing class is an error.
func classRadius(props geojson.Properties, buffers ClassBuffers) (float64, error) {
	classID, err := ClassID(props)
	switch {
	case errors.Is(err, ErrMissingClassID):
		return 0, err
	case err != nil:
		log.Debug().Interface("class_id", props[ClassIDKey]).Msg("no buffer for class, using the default radius")
		return DefaultRadius, nil
	}
	return buffers.Radius(classID), nil
}

// ClassID reads the integer class of a feature from its properties.
// JSON numbers and numeric strings are accepted.
func ClassID(props geojson.Properties) (int, error) {
	v, ok := props[ClassIDKey]
	if !ok || v == nil {
		return 0, ErrMissingClassID
	}

	switch n := v.(type) {
	case bool:
		return 0, fmt.Errorf("%w: %v", ErrInvalidClassID, v)
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidClassID, v)
		}
	case float32:
		if float64(n) != math.Trunc(float64(n)) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidClassID, v)
		}
	}

	id, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidClassID, v)
	}
	return id, nil
}

// hasCoordinates reports whether g holds at least one coordinate
func hasCoordinates(g orb.Geometry) bool {
	switch g := g.(type) {
	case nil:
		return false
	case orb.Point:
		return true
	case orb.MultiPoint:
		return len(g) > 0
	case orb.LineString:
		return len(g) > 0
	case orb.MultiLineString:
		for _, ls := range g {
			if len(ls) > 0 {
				return true
			}
		}
		return false
	case orb.Polygon:
		for _, r := range g {
			if len(r) > 0 {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, p := range g {
			if hasCoordinates(p) {
				return true
			}
		}
		return false
	default:
		// other kinds are rejected by decompose
		return true
	}
}

func copyProperties(props geojson.Properties) geojson.Properties {
	out := make(geojson.Properties, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

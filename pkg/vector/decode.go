// pkg/vector/decode.go - GeoJSON decoding that keeps track of absent coordinates
package vector

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
)

// DecodeCollection parses a GeoJSON document into a feature collection.
// A single Feature or a bare geometry is wrapped into a collection of one.
// Features whose geometry or coordinates are null or missing get a nil
// Geometry instead of the zero value orb would decode.
func DecodeCollection(data []byte) (*geojson.FeatureCollection, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrNotFeatureCollection)
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: document is not an object", ErrNotFeatureCollection)
	}

	fc := geojson.NewFeatureCollection()
	switch typ := doc.Get("type").String(); typ {
	case "FeatureCollection":
		var decodeErr error
		doc.Get("features").ForEach(func(_, value gjson.Result) bool {
			f, err := decodeFeature(value)
			if err != nil {
				decodeErr = fmt.Errorf("feature %d: %w", len(fc.Features), err)
				return false
			}
			fc.Append(f)
			return true
		})
		if decodeErr != nil {
			return nil, decodeErr
		}

	case "Feature":
		f, err := decodeFeature(doc)
		if err != nil {
			return nil, err
		}
		fc.Append(f)

	case geojson.TypePoint, geojson.TypeMultiPoint, geojson.TypeLineString,
		geojson.TypeMultiLineString, geojson.TypePolygon, geojson.TypeMultiPolygon:
		f := &geojson.Feature{Type: "Feature", Properties: geojson.Properties{}}
		if hasCoordinatePayload(doc) {
			g, err := geojson.UnmarshalGeometry([]byte(doc.Raw))
			if err != nil {
				return nil, fmt.Errorf("failed to decode geometry: %w", err)
			}
			f.Geometry = g.Geometry()
		}
		fc.Append(f)

	default:
		return nil, fmt.Errorf("%w: unexpected type %q", ErrNotFeatureCollection, typ)
	}

	return fc, nil
}

func decodeFeature(value gjson.Result) (*geojson.Feature, error) {
	if !value.IsObject() {
		return nil, fmt.Errorf("%w: feature is not an object", ErrNotFeatureCollection)
	}

	geometry := value.Get("geometry")
	if geometry.Exists() && geometry.Type != gjson.Null && hasCoordinatePayload(geometry) {
		f, err := geojson.UnmarshalFeature([]byte(value.Raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode feature: %w", err)
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		return f, nil
	}

	// orb would turn a null payload into a point at the origin
	f := &geojson.Feature{Type: "Feature", Properties: geojson.Properties{}}
	if id := value.Get("id"); id.Exists() {
		f.ID = id.Value()
	}
	if props := value.Get("properties"); props.IsObject() {
		if err := json.Unmarshal([]byte(props.Raw), &f.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode properties: %w", err)
		}
	}
	return f, nil
}

// hasCoordinatePayload reports whether a geometry object carries coordinates
func hasCoordinatePayload(geometry gjson.Result) bool {
	if geometry.Get("type").String() == (orb.Collection{}).GeoJSONType() {
		return geometry.Get("geometries").IsArray()
	}
	coords := geometry.Get("coordinates")
	return coords.Exists() && coords.Type != gjson.Null
}

// pkg/vector/errors.go - Errors returned while normalizing geometry
package vector

import "errors"

var (
	// ErrMissingClassID is returned when a point or line feature has no class_id property
	ErrMissingClassID = errors.New("missing key: class_id")

	// ErrInvalidClassID is returned when the class_id property is not an integer
	ErrInvalidClassID = errors.New("invalid class_id")

	// ErrUnsupportedGeometry is returned for geometry kinds other than points,
	// lines, polygons and their multi variants
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")

	// ErrNotFeatureCollection is returned when a document is not GeoJSON
	ErrNotFeatureCollection = errors.New("not a GeoJSON feature collection")
)

// pkg/vector/transform.go - Coordinate transform applied to normalized polygons
package vector

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Transformer maps source coordinates to pixel coordinates
type Transformer interface {
	MapToPixel(x, y float64) (float64, float64, error)
}

// TransformerFunc adapts a function to the Transformer interface
type TransformerFunc func(x, y float64) (float64, float64, error)

// MapToPixel calls f(x, y)
func (f TransformerFunc) MapToPixel(x, y float64) (float64, float64, error) {
	return f(x, y)
}

// transformPolygon maps every vertex of p through t into a new polygon
func transformPolygon(p orb.Polygon, t Transformer) (orb.Polygon, error) {
	result := make(orb.Polygon, len(p))
	for i, ring := range p {
		out := make(orb.Ring, len(ring))
		for j, point := range ring {
			x, y, err := t.MapToPixel(point[0], point[1])
			if err != nil {
				return nil, fmt.Errorf("failed to transform (%v, %v): %w", point[0], point[1], err)
			}
			out[j] = orb.Point{x, y}
		}
		result[i] = out
	}
	return result, nil
}

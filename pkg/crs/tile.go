// pkg/crs/tile.go - Pixel space of a web mercator tile
package crs

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

// DefaultTileExtent is the pixel size of a tile when none is given
const DefaultTileExtent = 256

// MaxLatitude is the northern limit of the web mercator projection
const MaxLatitude = 85.05112877980659

// ErrOutOfProjection is returned for latitudes web mercator cannot represent
var ErrOutOfProjection = errors.New("latitude outside web mercator range")

// Tile maps WGS84 longitude/latitude into the pixel grid of a tile, with the
// north-west corner at (0, 0) and the south-east corner at (Extent, Extent).
type Tile struct {
	Tile   maptile.Tile
	Extent float64

	min, max orb.Point
}

// NewTile creates the pixel space of a tile
func NewTile(t maptile.Tile, extent float64) *Tile {
	if extent <= 0 {
		extent = DefaultTileExtent
	}

	b := t.Bound()
	return &Tile{
		Tile:   t,
		Extent: extent,
		min:    project.WGS84.ToMercator(orb.Point{b.Min[0], b.Min[1]}),
		max:    project.WGS84.ToMercator(orb.Point{b.Max[0], b.Max[1]}),
	}
}

// MapToPixel returns the tile pixel of a longitude/latitude
func (t *Tile) MapToPixel(lon, lat float64) (float64, float64, error) {
	if math.Abs(lat) > MaxLatitude+1e-9 || math.IsNaN(lat) || math.IsNaN(lon) {
		return 0, 0, fmt.Errorf("%w: %v", ErrOutOfProjection, lat)
	}

	m := project.WGS84.ToMercator(orb.Point{lon, lat})
	px := (m[0] - t.min[0]) / (t.max[0] - t.min[0]) * t.Extent
	py := (t.max[1] - m[1]) / (t.max[1] - t.min[1]) * t.Extent
	return px, py, nil
}

// PixelToMap returns the longitude/latitude of a tile pixel
func (t *Tile) PixelToMap(px, py float64) (float64, float64) {
	m := orb.Point{
		t.min[0] + px/t.Extent*(t.max[0]-t.min[0]),
		t.max[1] - py/t.Extent*(t.max[1]-t.min[1]),
	}
	ll := project.Mercator.ToWGS84(m)
	return ll[0], ll[1]
}

// pkg/crs/affine.go - Affine geotransform between map and pixel coordinates
package crs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// ErrSingularTransform is returned when a geotransform cannot be inverted
var ErrSingularTransform = errors.New("singular geotransform")

// Affine maps pixel coordinates to map coordinates with a GDAL style
// geotransform: origin x, pixel width, row rotation, origin y, column
// rotation, pixel height.
type Affine struct {
	GeoTransform [6]float64
}

// NewAffine creates an Affine from a geotransform
func NewAffine(gt [6]float64) (*Affine, error) {
	a := &Affine{GeoTransform: gt}
	if a.det() == 0 || math.IsNaN(a.det()) {
		return nil, fmt.Errorf("%w: %v", ErrSingularTransform, gt)
	}
	return a, nil
}

// ParseGeoTransform parses six comma separated numbers
func ParseGeoTransform(s string) ([6]float64, error) {
	var gt [6]float64
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return gt, fmt.Errorf("geotransform needs 6 values, got %d", len(parts))
	}
	for i, p := range parts {
		v, err := cast.ToFloat64E(strings.TrimSpace(p))
		if err != nil {
			return gt, fmt.Errorf("invalid geotransform value %q: %w", p, err)
		}
		gt[i] = v
	}
	return gt, nil
}

// PixelToMap returns the map coordinates of a pixel position
func (a *Affine) PixelToMap(px, py float64) (float64, float64) {
	gt := a.GeoTransform
	return gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]
}

// MapToPixel returns the pixel position of map coordinates
func (a *Affine) MapToPixel(x, y float64) (float64, float64, error) {
	gt := a.GeoTransform
	det := a.det()
	if det == 0 {
		return 0, 0, fmt.Errorf("%w: %v", ErrSingularTransform, gt)
	}

	dx, dy := x-gt[0], y-gt[3]
	return (gt[5]*dx - gt[2]*dy) / det, (gt[1]*dy - gt[4]*dx) / det, nil
}

func (a *Affine) det() float64 {
	return a.GeoTransform[1]*a.GeoTransform[5] - a.GeoTransform[2]*a.GeoTransform[4]
}

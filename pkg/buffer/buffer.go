// pkg/buffer/buffer.go - Round buffering and polygon repair
package buffer

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
)

// DefaultQuadrantSegments is the number of segments used to approximate a
// quarter circle, the same default GEOS uses.
const DefaultQuadrantSegments = 16

var (
	// ErrNegativeRadius is returned for radii below zero or NaN
	ErrNegativeRadius = errors.New("negative buffer radius")

	// ErrUnsupportedGeometry is returned for anything that is not a Point, LineString or Polygon
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
)

// Bufferer grows single geometries into polygons by a radius.
// A zero radius applied to a polygon repairs self-intersections.
type Bufferer struct {
	quadrantSegments int
}

// Option configures a Bufferer
type Option func(*Bufferer)

// WithQuadrantSegments sets how many segments approximate a quarter circle
func WithQuadrantSegments(n int) Option {
	return func(b *Bufferer) {
		if n > 0 {
			b.quadrantSegments = n
		}
	}
}

// New creates a Bufferer with the given options
func New(opts ...Option) *Bufferer {
	b := &Bufferer{quadrantSegments: DefaultQuadrantSegments}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Buffer returns the simple polygons covering every point within radius of g.
// Points and line strings buffered by zero are empty. The result is never a
// multi geometry: disjoint parts are returned as separate polygons.
func (b *Bufferer) Buffer(g orb.Geometry, radius float64) ([]orb.Polygon, error) {
	if radius < 0 || math.IsNaN(radius) {
		return nil, fmt.Errorf("%w: %v", ErrNegativeRadius, radius)
	}

	switch g := g.(type) {
	case orb.Point:
		return b.bufferPoint(g, radius), nil
	case orb.LineString:
		return b.bufferLineString(g, radius), nil
	case orb.Polygon:
		return b.bufferPolygon(g, radius), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, typeName(g))
	}
}

// Repair resolves self-intersections of a polygon, equivalent to a zero buffer
func (b *Bufferer) Repair(p orb.Polygon) []orb.Polygon {
	return b.bufferPolygon(p, 0)
}

func (b *Bufferer) bufferPoint(p orb.Point, r float64) []orb.Polygon {
	if r == 0 {
		return nil
	}
	return []orb.Polygon{{b.circle(p, r)}}
}

func (b *Bufferer) bufferLineString(ls orb.LineString, r float64) []orb.Polygon {
	pts := dedupe(ls)
	if len(pts) == 0 || r == 0 {
		return nil
	}
	if len(pts) == 1 {
		return b.bufferPoint(pts[0], r)
	}

	parts := make([]geom.Polygon, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		parts = append(parts, toGeom(b.capsule(pts[i-1], pts[i], r)))
	}
	return toPolygons(unionAll(parts))
}

func (b *Bufferer) bufferPolygon(p orb.Polygon, r float64) []orb.Polygon {
	rings := make([]orb.Ring, 0, len(p))
	for i, ring := range p {
		ring = closeRing(orb.Ring(dedupe(orb.LineString(ring))))
		if len(ring) < 4 || collinear(ring) {
			if i == 0 {
				// no shell means no area, holes are irrelevant
				return nil
			}
			continue
		}
		rings = append(rings, ring)
	}
	if len(rings) == 0 {
		return nil
	}

	area := repair(rings)
	if r == 0 {
		return toPolygons(area)
	}

	parts := []geom.Polygon{area}
	for _, ring := range rings {
		for i := 1; i < len(ring); i++ {
			parts = append(parts, toGeom(b.capsule(ring[i-1], ring[i], r)))
		}
	}
	return toPolygons(unionAll(parts))
}

// step is the angle between two consecutive circle vertices
func (b *Bufferer) step() float64 {
	return math.Pi / float64(2*b.quadrantSegments)
}

// circle approximates a circle with a counter-clockwise ring whose vertices
// all lie on the circle
func (b *Bufferer) circle(c orb.Point, r float64) orb.Ring {
	n := 4 * b.quadrantSegments
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		ring = append(ring, b.gridVertex(c, r, i))
	}
	return append(ring, ring[0])
}

// capsule is the counter-clockwise outline of the segment a-b grown by r,
// with round caps at both ends
func (b *Bufferer) capsule(a, c orb.Point, r float64) orb.Ring {
	phi := math.Atan2(c[1]-a[1], c[0]-a[0])
	ring := make(orb.Ring, 0, 4*b.quadrantSegments+6)
	ring = b.arc(ring, c, r, phi-math.Pi/2, phi+math.Pi/2)
	ring = b.arc(ring, a, r, phi+math.Pi/2, phi+3*math.Pi/2)
	return append(ring, ring[0])
}

// arc appends the counter-clockwise arc from angle from to angle to.
// Interior vertices sit on the same angular grid as circle so that arcs of
// neighbouring capsules around a shared vertex produce identical points.
func (b *Bufferer) arc(ring orb.Ring, c orb.Point, r, from, to float64) orb.Ring {
	step := b.step()
	tol := step * 1e-6

	ring = append(ring, b.vertexAt(c, r, from))
	for k := math.Floor(from/step) + 1; k*step < to-tol; k++ {
		if k*step <= from+tol {
			continue
		}
		ring = append(ring, b.gridVertex(c, r, int(k)))
	}
	return append(ring, b.vertexAt(c, r, to))
}

// vertexAt returns the point at angle a, snapped to the angular grid when a
// falls on it
func (b *Bufferer) vertexAt(c orb.Point, r, a float64) orb.Point {
	k := a / b.step()
	if rk := math.Round(k); math.Abs(k-rk) < 1e-9 {
		return b.gridVertex(c, r, int(rk))
	}
	return orb.Point{c[0] + r*math.Cos(a), c[1] + r*math.Sin(a)}
}

func (b *Bufferer) gridVertex(c orb.Point, r float64, k int) orb.Point {
	n := 4 * b.quadrantSegments
	k = ((k % n) + n) % n
	a := float64(k) * b.step()
	return orb.Point{c[0] + r*math.Cos(a), c[1] + r*math.Sin(a)}
}

// dedupe drops consecutive duplicate points
func dedupe(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, 0, len(ls))
	for i, p := range ls {
		if i > 0 && p == out[len(out)-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// collinear reports whether every point of r lies on one line, so the ring
// encloses no area
func collinear(r orb.Ring) bool {
	a := r[0]
	for i := 1; i < len(r); i++ {
		if r[i] == a {
			continue
		}
		b := r[i]
		for _, p := range r[i+1:] {
			if (b[0]-a[0])*(p[1]-a[1])-(b[1]-a[1])*(p[0]-a[0]) != 0 {
				return false
			}
		}
		return true
	}
	return true
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

func typeName(g orb.Geometry) string {
	if g == nil {
		return "nil"
	}
	return g.GeoJSONType()
}

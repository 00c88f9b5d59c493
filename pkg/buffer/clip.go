// pkg/buffer/clip.go - Polygon clipping and assembly of simple polygons
package buffer

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// relative tolerance used for touching tests and sliver removal
const relativeTolerance = 1e-9

// toGeom converts a ring into a single path polygon. Clipper paths are
// implicitly closed, so a repeated last point is dropped.
func toGeom(r orb.Ring) geom.Polygon {
	n := len(r)
	if n > 1 && r[0] == r[n-1] {
		n--
	}

	path := make(geom.Path, n)
	for i := 0; i < n; i++ {
		path[i] = geom.Point{X: r[i][0], Y: r[i][1]}
	}
	return geom.Polygon{path}
}

// repair returns the area covered by the shell and by none of the holes.
// rings[0] is the shell.
func repair(rings []orb.Ring) geom.Polygon {
	area := resolve(rings[0])
	if len(rings) == 1 {
		return area
	}

	holes := make([]geom.Polygon, 0, len(rings)-1)
	for _, hole := range rings[1:] {
		holes = append(holes, resolve(hole))
	}
	return area.Difference(unionAll(holes)).(geom.Polygon)
}

// resolve clips a ring against a frame enclosing it. The clipper nodes the
// ring at its self-intersections and fills it by the even-odd rule, so a
// bowtie comes back as two lobes.
func resolve(r orb.Ring) geom.Polygon {
	b := r.Bound()
	pad := math.Max(b.Right()-b.Left(), b.Top()-b.Bottom()) + 1
	return toGeom(r).Intersection(toGeom(b.Pad(pad).ToRing())).(geom.Polygon)
}

// unionAll merges polygons pairwise so every clip works on inputs of similar size
func unionAll(parts []geom.Polygon) geom.Polygon {
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}

	mid := len(parts) / 2
	return unionAll(parts[:mid]).Union(unionAll(parts[mid:])).(geom.Polygon)
}

// toPolygons turns clipper output into simple polygons. The clipper returns
// bare contours, so each ring is classified as a shell or a hole by how many
// other rings contain it, and holes go to the smallest shell around them.
// Shells are counter-clockwise, holes clockwise.
func toPolygons(g geom.Polygon) []orb.Polygon {
	maxAbs := 1.0
	for _, path := range g {
		for _, p := range path {
			maxAbs = math.Max(maxAbs, math.Max(math.Abs(p.X), math.Abs(p.Y)))
		}
	}
	eps := maxAbs * relativeTolerance

	var rings []orb.Ring
	for _, path := range g {
		ring := make(orb.Ring, 0, len(path)+1)
		for _, p := range path {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		ring = orb.Ring(dedupe(orb.LineString(ring)))
		if n := len(ring); n > 1 && ring[0] == ring[n-1] {
			ring = ring[:n-1]
		}

		for _, loop := range splitPinches(ring) {
			loop = closeRing(loop)
			if len(loop) < 4 || math.Abs(planar.Area(loop)) <= eps*eps {
				continue
			}
			rings = append(rings, loop)
		}
	}
	if len(rings) == 0 {
		return nil
	}

	areas := make([]float64, len(rings))
	for i, r := range rings {
		areas[i] = math.Abs(planar.Area(r))
	}

	depth := make([]int, len(rings))
	parent := make([]int, len(rings))
	for i := range rings {
		parent[i] = -1
		for j := range rings {
			if i == j || areas[j] <= areas[i] || !ringInside(rings[i], rings[j], eps) {
				continue
			}
			depth[i]++
			if parent[i] < 0 || areas[j] < areas[parent[i]] {
				parent[i] = j
			}
		}
	}

	owner := make(map[int]int)
	var polygons []orb.Polygon
	for i, r := range rings {
		if depth[i]%2 != 0 {
			continue
		}
		if r.Orientation() != orb.CCW {
			r.Reverse()
		}
		owner[i] = len(polygons)
		polygons = append(polygons, orb.Polygon{r})
	}

	for i, r := range rings {
		if depth[i]%2 == 0 {
			continue
		}
		k, ok := owner[parent[i]]
		if !ok {
			continue
		}
		if r.Orientation() != orb.CW {
			r.Reverse()
		}
		polygons[k] = append(polygons[k], r)
	}

	sort.SliceStable(polygons, func(i, j int) bool {
		a, b := polygons[i].Bound().Min, polygons[j].Bound().Min
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})
	return polygons
}

// splitPinches cuts an open ring into separate loops wherever it revisits a
// vertex, as clipper contours may do at a point where two lobes touch
func splitPinches(ring orb.Ring) []orb.Ring {
	var loops []orb.Ring
	stack := make(orb.Ring, 0, len(ring))
	seen := make(map[orb.Point]int, len(ring))

	for _, p := range ring {
		if i, ok := seen[p]; ok {
			loops = append(loops, append(orb.Ring{}, stack[i:]...))
			for _, q := range stack[i+1:] {
				delete(seen, q)
			}
			stack = stack[:i+1]
			continue
		}
		seen[p] = len(stack)
		stack = append(stack, p)
	}

	return append(loops, stack)
}

// ringInside reports whether inner lies inside outer. Rings coming out of the
// clipper never cross, so one vertex off the boundary of outer decides.
func ringInside(inner, outer orb.Ring, eps float64) bool {
	for i := 0; i < len(inner)-1; i++ {
		if !onBoundary(outer, inner[i], eps) {
			return planar.RingContains(outer, inner[i])
		}
		mid := orb.Point{(inner[i][0] + inner[i+1][0]) / 2, (inner[i][1] + inner[i+1][1]) / 2}
		if !onBoundary(outer, mid, eps) {
			return planar.RingContains(outer, mid)
		}
	}
	return false
}

func onBoundary(r orb.Ring, p orb.Point, eps float64) bool {
	for i := 1; i < len(r); i++ {
		if segmentDistance(r[i-1], r[i], p) <= eps {
			return true
		}
	}
	return false
}

func segmentDistance(a, b, p orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	t := 0.0
	if l := dx*dx + dy*dy; l > 0 {
		t = math.Max(0, math.Min(1, ((p[0]-a[0])*dx+(p[1]-a[1])*dy)/l))
	}
	return math.Hypot(p[0]-a[0]-t*dx, p[1]-a[1]-t*dy)
}

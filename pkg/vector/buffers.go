// pkg/vector/buffers.go - Per-class buffer radii
package vector

import (
	"fmt"
	"math"
	"sort"
)

// DefaultRadius is used for classes without a configured buffer
const DefaultRadius = 1.0

// ClassBuffers maps class ids to buffer radii in input coordinate units
type ClassBuffers map[int]float64

// Radius returns the radius configured for classID, or DefaultRadius
func (cb ClassBuffers) Radius(classID int) float64 {
	if r, ok := cb[classID]; ok {
		return r
	}
	return DefaultRadius
}

// Validate checks that every radius is a finite non-negative number
func (cb ClassBuffers) Validate() error {
	ids := make([]int, 0, len(cb))
	for id := range cb {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		r := cb[id]
		if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return fmt.Errorf("invalid buffer radius %v for class %d: must be a non-negative number", r, id)
		}
	}
	return nil
}

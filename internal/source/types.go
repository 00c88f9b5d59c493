// internal/source/types.go - Raw data retrieval types
package source

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/valpere/vecnorm/pkg/mvt"
)

// Request describes one document to fetch. Location is a URL or file path;
// when it is empty the tile coordinates are used to build one.
type Request struct {
	Location string            `json:"location"`
	Z        int               `json:"z"`
	X        int               `json:"x"`
	Y        int               `json:"y"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Response represents the bytes returned for a request
type Response struct {
	Request    *Request      `json:"request"`
	Data       []byte        `json:"data"`
	Headers    http.Header   `json:"headers"`
	StatusCode int           `json:"status_code"`
	Size       int           `json:"size"`
	FetchTime  time.Duration `json:"fetch_time"`
	Error      error         `json:"error,omitempty"`
}

// ByteFetcher retrieves raw documents from a server or the file system
type ByteFetcher interface {
	Fetch(ctx context.Context, request *Request) (*Response, error)
	FetchWithRetry(ctx context.Context, request *Request) (*Response, error)
}

// TileRange represents a range of tiles to be processed
type TileRange struct {
	MinZ int `json:"min_z"`
	MaxZ int `json:"max_z"`
	MinX int `json:"min_x"`
	MaxX int `json:"max_x"`
	MinY int `json:"min_y"`
	MaxY int `json:"max_y"`
}

// NewTileRequest creates a request addressed by tile coordinates
func NewTileRequest(tid mvt.TileID, location string) *Request {
	return &Request{
		Location: location,
		Z:        tid.Z,
		X:        tid.X,
		Y:        tid.Y,
		Headers:  make(map[string]string),
	}
}

// TileID returns the tile coordinates of the request
func (r *Request) TileID() mvt.TileID {
	return mvt.TileID{Z: r.Z, X: r.X, Y: r.Y}
}

// String returns the location or the tile coordinates of the request
func (r *Request) String() string {
	if r.Location != "" {
		return r.Location
	}
	return r.TileID().String()
}

// NewTileRangeFromBounds returns the tiles at zoom z covering the WGS84 bound
func NewTileRangeFromBounds(bound orb.Bound, z int) (*TileRange, error) {
	if z < 0 || z > mvt.MaxZoom {
		return nil, fmt.Errorf("invalid zoom level %d: must be between 0 and %d", z, mvt.MaxZoom)
	}
	if bound.Min[0] > bound.Max[0] || bound.Min[1] > bound.Max[1] {
		return nil, fmt.Errorf("invalid bounds %v", bound)
	}

	zoom := maptile.Zoom(z)
	nw := maptile.At(orb.Point{bound.Min[0], clampLat(bound.Max[1])}, zoom)
	se := maptile.At(orb.Point{bound.Max[0], clampLat(bound.Min[1])}, zoom)

	last := 1<<uint(z) - 1
	return &TileRange{
		MinZ: z,
		MaxZ: z,
		MinX: min(int(nw.X), last),
		MaxX: min(int(se.X), last),
		MinY: min(int(nw.Y), last),
		MaxY: min(int(se.Y), last),
	}, nil
}

// Count returns the total number of tiles in the range
func (tr *TileRange) Count() int64 {
	var total int64
	for z := tr.MinZ; z <= tr.MaxZ; z++ {
		xRange := int64(tr.MaxX - tr.MinX + 1)
		yRange := int64(tr.MaxY - tr.MinY + 1)
		total += xRange * yRange
	}
	return total
}

// Tiles lists every tile of the range in z, x, y order
func (tr *TileRange) Tiles() []mvt.TileID {
	tiles := make([]mvt.TileID, 0, tr.Count())
	for z := tr.MinZ; z <= tr.MaxZ; z++ {
		for x := tr.MinX; x <= tr.MaxX; x++ {
			for y := tr.MinY; y <= tr.MaxY; y++ {
				tiles = append(tiles, mvt.TileID{Z: z, X: x, Y: y})
			}
		}
	}
	return tiles
}

func clampLat(lat float64) float64 {
	const maxLat = 85.05112877
	return math.Max(-maxLat, math.Min(maxLat, lat))
}

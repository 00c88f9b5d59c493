// pkg/vector/source.go - Lazily fetched vector source serving normalized geometry
package vector

import (
	"context"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// Fetcher retrieves the raw feature collection of a source
type Fetcher interface {
	FetchRaw(ctx context.Context) (*geojson.FeatureCollection, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context) (*geojson.FeatureCollection, error)

// FetchRaw calls f(ctx)
func (f FetcherFunc) FetchRaw(ctx context.Context) (*geojson.FeatureCollection, error) {
	return f(ctx)
}

// Source caches the raw collection of a Fetcher and serves normalized views
// of it. The raw collection is fetched on first use and kept for the lifetime
// of the Source; a failed fetch is retried on the next call.
type Source struct {
	fetcher      Fetcher
	lineBuffers  ClassBuffers
	pointBuffers ClassBuffers
	transformer  Transformer
	bufferer     Bufferer

	mu  sync.Mutex
	raw *geojson.FeatureCollection
}

// SourceOption configures a Source
type SourceOption func(*Source)

// WithLineBuffers sets the per-class radii used for line strings
func WithLineBuffers(cb ClassBuffers) SourceOption {
	return func(s *Source) {
		s.lineBuffers = cb
	}
}

// WithPointBuffers sets the per-class radii used for points
func WithPointBuffers(cb ClassBuffers) SourceOption {
	return func(s *Source) {
		s.pointBuffers = cb
	}
}

// WithTransformer sets the transform used for pixel space geometry
func WithTransformer(t Transformer) SourceOption {
	return func(s *Source) {
		s.transformer = t
	}
}

// WithBufferer replaces the default buffer implementation
func WithBufferer(b Bufferer) SourceOption {
	return func(s *Source) {
		s.bufferer = b
	}
}

// NewSource creates a Source reading from fetcher
func NewSource(fetcher Fetcher, opts ...SourceOption) *Source {
	s := &Source{fetcher: fetcher}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Raw returns the cached raw collection, fetching it on first use
func (s *Source) Raw(ctx context.Context) (*geojson.FeatureCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.raw != nil {
		return s.raw, nil
	}

	raw, err := s.fetcher.FetchRaw(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = geojson.NewFeatureCollection()
	}

	log.Debug().Int("features", len(raw.Features)).Msg("fetched raw collection")
	s.raw = raw
	return s.raw, nil
}

// Geometry returns the normalized collection. With toPixel set the
// configured transform is applied, otherwise coordinates stay in source space.
func (s *Source) Geometry(ctx context.Context, toPixel bool) (*geojson.FeatureCollection, error) {
	raw, err := s.Raw(ctx)
	if err != nil {
		return nil, err
	}

	opts := Options{
		LineBuffers:  s.lineBuffers,
		PointBuffers: s.pointBuffers,
		Bufferer:     s.bufferer,
	}
	if toPixel {
		opts.Transformer = s.transformer
	}
	return Normalize(raw, opts)
}

// internal/source/tile_source.go - Vector tiles merged into one raw vector source
package source

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/valpere/vecnorm/internal"
	"github.com/valpere/vecnorm/pkg/mvt"
)

// defaultTileConcurrency bounds the number of tiles fetched at once
const defaultTileConcurrency = 4

// TileSource fetches a set of tiles and concatenates their features in
// request order. Missing tiles are skipped; any other failure fails the fetch.
type TileSource struct {
	fetcher     ByteFetcher
	decoder     *mvt.Decoder
	requests    []*Request
	concurrency int
}

// NewTileSource creates a source decoding requests with decoder
func NewTileSource(fetcher ByteFetcher, decoder *mvt.Decoder, requests []*Request) *TileSource {
	return &TileSource{
		fetcher:     fetcher,
		decoder:     decoder,
		requests:    requests,
		concurrency: defaultTileConcurrency,
	}
}

// WithConcurrency sets how many tiles are fetched in parallel
func (s *TileSource) WithConcurrency(n int) *TileSource {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// FetchRaw implements vector.Fetcher
func (s *TileSource) FetchRaw(ctx context.Context) (*geojson.FeatureCollection, error) {
	results := make([]*geojson.FeatureCollection, len(s.requests))

	p := pool.New().
		WithMaxGoroutines(s.concurrency).
		WithContext(ctx).
		WithCancelOnError()

	for i, request := range s.requests {
		i, request := i, request
		p.Go(func(ctx context.Context) error {
			fc, err := s.fetchTile(ctx, request)
			if err != nil {
				return err
			}
			results[i] = fc
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	merged := geojson.NewFeatureCollection()
	for _, fc := range results {
		if fc == nil {
			continue
		}
		merged.Features = append(merged.Features, fc.Features...)
	}

	log.Debug().Int("tiles", len(s.requests)).Int("features", len(merged.Features)).Msg("merged tiles")
	return merged, nil
}

// fetchTile returns nil without error for a tile that does not exist
func (s *TileSource) fetchTile(ctx context.Context, request *Request) (*geojson.FeatureCollection, error) {
	tid := request.TileID()

	response, err := s.fetcher.FetchWithRetry(ctx, request)
	if err != nil {
		if internal.HasCode(err, internal.ErrorCodeNotFound) {
			log.Warn().Str("tile", tid.String()).Msg("tile not found, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("fetching tile %s: %w", tid, err)
	}

	if len(response.Data) == 0 {
		log.Debug().Str("tile", tid.String()).Msg("empty tile")
		return nil, nil
	}

	fc, metadata, err := s.decoder.Decode(response.Data, tid)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeProcessing, fmt.Sprintf("decoding tile %s", tid), err)
	}

	log.Debug().
		Str("tile", tid.String()).
		Strs("layers", metadata.Layers).
		Int("features", metadata.FeatureCount).
		Dur("fetch_time", response.FetchTime).
		Msg("decoded tile")

	return fc, nil
}

// internal/source/geojson_source.go - GeoJSON documents as raw vector sources
package source

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/valpere/vecnorm/internal"
	"github.com/valpere/vecnorm/pkg/vector"
)

// GeoJSONSource fetches one GeoJSON document and decodes it into a raw collection
type GeoJSONSource struct {
	fetcher ByteFetcher
	request *Request
}

// NewGeoJSONSource creates a source reading request through fetcher
func NewGeoJSONSource(fetcher ByteFetcher, request *Request) *GeoJSONSource {
	return &GeoJSONSource{
		fetcher: fetcher,
		request: request,
	}
}

// FetchRaw implements vector.Fetcher
func (s *GeoJSONSource) FetchRaw(ctx context.Context) (*geojson.FeatureCollection, error) {
	response, err := s.fetcher.FetchWithRetry(ctx, s.request)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", s.request, err)
	}

	fc, err := vector.DecodeCollection(response.Data)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeProcessing, fmt.Sprintf("decoding %s", s.request), err)
	}

	log.Debug().
		Str("location", s.request.String()).
		Int("bytes", response.Size).
		Int("features", len(fc.Features)).
		Dur("fetch_time", response.FetchTime).
		Msg("decoded GeoJSON document")

	return fc, nil
}

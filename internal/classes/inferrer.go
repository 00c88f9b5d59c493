// internal/classes/inferrer.go - Class id inference for raw features
package classes

import (
	"context"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/valpere/vecnorm/pkg/vector"
)

// Options controls how a class id is resolved for a feature
type Options struct {
	// IDKey is the property that may already hold an integer class id
	IDKey string
	// NameKey is the property whose value is looked up in Map
	NameKey string
	// Map translates class names to ids; names match case-insensitively
	Map map[string]int
	// DefaultID is used when neither key resolves; nil drops the feature
	DefaultID *int
}

// Inferrer wraps a vector.Fetcher and stores a resolved class id under
// vector.ClassIDKey on every point and line feature. Features whose class
// cannot be resolved are dropped. Polygon features pass through untouched
// because they are never buffered.
type Inferrer struct {
	fetcher  vector.Fetcher
	idKey    string
	nameKey  string
	names    map[string]int
	fallback *int
}

// NewInferrer creates an inferrer around fetcher
func NewInferrer(fetcher vector.Fetcher, opts Options) *Inferrer {
	idKey := opts.IDKey
	if idKey == "" {
		idKey = vector.ClassIDKey
	}

	names := make(map[string]int, len(opts.Map))
	for name, id := range opts.Map {
		names[strings.ToLower(name)] = id
	}

	return &Inferrer{
		fetcher:  fetcher,
		idKey:    idKey,
		nameKey:  opts.NameKey,
		names:    names,
		fallback: opts.DefaultID,
	}
}

// FetchRaw implements vector.Fetcher
func (i *Inferrer) FetchRaw(ctx context.Context) (*geojson.FeatureCollection, error) {
	raw, err := i.fetcher.FetchRaw(ctx)
	if err != nil || raw == nil {
		return raw, err
	}

	out := geojson.NewFeatureCollection()
	dropped := 0
	for _, f := range raw.Features {
		if isAreal(f.Geometry) {
			out.Append(f)
			continue
		}

		id, ok := i.Resolve(f.Properties)
		if !ok {
			dropped++
			log.Debug().Interface("properties", f.Properties).Msg("no class for feature, dropping")
			continue
		}

		props := make(geojson.Properties, len(f.Properties)+1)
		for k, v := range f.Properties {
			props[k] = v
		}
		props[vector.ClassIDKey] = id

		out.Append(&geojson.Feature{
			Type:       f.Type,
			ID:         f.ID,
			BBox:       f.BBox,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}

	if dropped > 0 {
		log.Info().Int("dropped", dropped).Int("kept", len(out.Features)).Msg("class inference dropped features")
	}
	return out, nil
}

// Resolve returns the class id for a property set
func (i *Inferrer) Resolve(props geojson.Properties) (int, bool) {
	if v, ok := props[i.idKey]; ok {
		if id, err := vector.ClassID(geojson.Properties{vector.ClassIDKey: v}); err == nil {
			return id, true
		}
	}

	if i.nameKey != "" {
		if v, ok := props[i.nameKey]; ok && v != nil {
			if id, ok := i.names[strings.ToLower(cast.ToString(v))]; ok {
				return id, true
			}
		}
	}

	if i.fallback != nil {
		return *i.fallback, true
	}
	return 0, false
}

func isAreal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// internal/source/factory.go - Fetcher factory implementation
package source

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/valpere/vecnorm/internal"
	"github.com/valpere/vecnorm/internal/classes"
	"github.com/valpere/vecnorm/internal/config"
	"github.com/valpere/vecnorm/pkg/mvt"
	"github.com/valpere/vecnorm/pkg/vector"
)

// FetcherFactory creates byte fetchers and vector sources from configuration
type FetcherFactory struct {
	config *config.Config
	fs     afero.Fs

	mu     sync.Mutex
	shared map[internal.SourceType]ByteFetcher
}

// NewFetcherFactory creates a new fetcher factory using the operating system's file system
func NewFetcherFactory(cfg *config.Config) *FetcherFactory {
	return NewFetcherFactoryWithFs(cfg, afero.NewOsFs())
}

// NewFetcherFactoryWithFs creates a fetcher factory reading local files from fs
func NewFetcherFactoryWithFs(cfg *config.Config, fs afero.Fs) *FetcherFactory {
	return &FetcherFactory{
		config: cfg,
		fs:     fs,
		shared: make(map[internal.SourceType]ByteFetcher),
	}
}

// CreateFetcherForType creates a fetcher for a specific source type
func (f *FetcherFactory) CreateFetcherForType(sourceType internal.SourceType) (ByteFetcher, error) {
	switch sourceType {
	case internal.SourceTypeHTTP:
		return NewHTTPFetcher(f.config), nil
	case internal.SourceTypeLocal:
		return NewLocalFetcherWithFs(f.fs, f.config), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// FetcherForLocation returns the shared fetcher matching a URL or file path
func (f *FetcherFactory) FetcherForLocation(location string) (ByteFetcher, error) {
	if isURL(location) {
		return f.sharedFetcher(internal.SourceTypeHTTP)
	}
	return f.sharedFetcher(internal.SourceTypeLocal)
}

// sharedFetcher returns one fetcher per source type so that HTTP connections
// are reused across sources
func (f *FetcherFactory) sharedFetcher(sourceType internal.SourceType) (ByteFetcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if fetcher, ok := f.shared[sourceType]; ok {
		return fetcher, nil
	}

	fetcher, err := f.CreateFetcherForType(sourceType)
	if err != nil {
		return nil, err
	}
	f.shared[sourceType] = fetcher
	return fetcher, nil
}

// ValidateConfiguration validates that the configuration supports the requested source type
func (f *FetcherFactory) ValidateConfiguration(sourceType internal.SourceType) error {
	switch sourceType {
	case internal.SourceTypeHTTP:
		if f.config.Server.BaseURL == "" {
			return fmt.Errorf("base_url is required for HTTP source")
		}
		if f.config.Server.URLTemplate == "" {
			return fmt.Errorf("url_template is required for HTTP source")
		}
	case internal.SourceTypeLocal:
		if err := config.ValidateLocalDirectory(f.fs, f.config); err != nil {
			return fmt.Errorf("local tile directory validation failed: %w", err)
		}
	default:
		return fmt.Errorf("unsupported source type: %s", sourceType)
	}

	return nil
}

// NewDocumentFetcher returns a vector.Fetcher for one GeoJSON or tile document
// given by URL or path
func (f *FetcherFactory) NewDocumentFetcher(location string) (vector.Fetcher, error) {
	fetcher, err := f.FetcherForLocation(location)
	if err != nil {
		return nil, err
	}

	var raw vector.Fetcher
	switch f.config.DetermineFormat(location) {
	case internal.InputFormatMVT:
		tid, ok := ParseTilePath(location)
		if !ok {
			return nil, fmt.Errorf("cannot determine tile coordinates of %s: expected a .../{z}/{x}/{y}.mvt location", location)
		}
		decoder, err := f.newDecoder()
		if err != nil {
			return nil, err
		}
		raw = NewTileSource(fetcher, decoder, []*Request{NewTileRequest(tid, location)})
	default:
		raw = NewGeoJSONSource(fetcher, &Request{Location: location})
	}

	return f.withClasses(raw), nil
}

// NewTileFetcher returns a vector.Fetcher merging the given tiles from the
// configured server or tile directory
func (f *FetcherFactory) NewTileFetcher(tileIDs []mvt.TileID) (vector.Fetcher, error) {
	sourceType := f.config.DetermineSourceType()
	if err := f.ValidateConfiguration(sourceType); err != nil {
		return nil, err
	}

	fetcher, err := f.sharedFetcher(sourceType)
	if err != nil {
		return nil, err
	}

	decoder, err := f.newDecoder()
	if err != nil {
		return nil, err
	}

	requests := make([]*Request, 0, len(tileIDs))
	for _, tid := range tileIDs {
		if err := tid.Validate(); err != nil {
			return nil, err
		}
		location := ""
		if sourceType == internal.SourceTypeHTTP {
			location = f.config.GetTileURL(tid.Z, tid.X, tid.Y)
		}
		requests = append(requests, NewTileRequest(tid, location))
	}

	tiles := NewTileSource(fetcher, decoder, requests).WithConcurrency(f.config.Batch.Concurrency)
	return f.withClasses(tiles), nil
}

func (f *FetcherFactory) newDecoder() (*mvt.Decoder, error) {
	return mvt.NewDecoderWithOptions(&mvt.DecodeOptions{
		LayerFilter:      f.config.Tiles.Layers,
		PropertyFilter:   f.config.Tiles.Properties,
		CoordinateSystem: f.config.Tiles.CoordinateSystem,
	})
}

func (f *FetcherFactory) withClasses(raw vector.Fetcher) vector.Fetcher {
	if !f.config.Classes.Enabled {
		return raw
	}
	return classes.NewInferrer(raw, classes.Options{
		IDKey:     f.config.Classes.IDKey,
		NameKey:   f.config.Classes.NameKey,
		Map:       f.config.Classes.Map,
		DefaultID: f.config.Classes.DefaultID,
	})
}

// ParseTilePath extracts z/x/y from the last three elements of a tile path or URL
func ParseTilePath(location string) (mvt.TileID, bool) {
	var tid mvt.TileID

	trimmed := location
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	parts := strings.Split(strings.ReplaceAll(trimmed, "\\", "/"), "/")
	if len(parts) < 3 {
		return tid, false
	}

	name := strings.TrimSuffix(parts[len(parts)-1], ".gz")
	if dot := strings.Index(name, "."); dot >= 0 {
		name = name[:dot]
	}

	if _, err := fmt.Sscanf(parts[len(parts)-3]+" "+parts[len(parts)-2]+" "+name, "%d %d %d", &tid.Z, &tid.X, &tid.Y); err != nil {
		return tid, false
	}
	return tid, tid.Validate() == nil
}

func isURL(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// internal/source/local_fetcher.go - Local file fetching implementation
package source

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/valpere/vecnorm/internal"
	"github.com/valpere/vecnorm/internal/config"
	"github.com/valpere/vecnorm/pkg/mvt"
)

// localRetries is the number of extra attempts for transient file system errors
const localRetries = 3

// LocalFetcher implements ByteFetcher for file system access
type LocalFetcher struct {
	fs     afero.Fs
	config *config.Config
}

// NewLocalFetcher creates a fetcher reading from the operating system's file system
func NewLocalFetcher(cfg *config.Config) *LocalFetcher {
	return NewLocalFetcherWithFs(afero.NewOsFs(), cfg)
}

// NewLocalFetcherWithFs creates a fetcher reading from fs
func NewLocalFetcherWithFs(fs afero.Fs, cfg *config.Config) *LocalFetcher {
	return &LocalFetcher{
		fs:     fs,
		config: cfg,
	}
}

// Fetch retrieves a document from the file system
func (f *LocalFetcher) Fetch(ctx context.Context, request *Request) (*Response, error) {
	start := time.Now()

	fail := func(code, message string, cause error) (*Response, error) {
		appErr := internal.NewError(code, message, cause)
		return &Response{
			Request:   request,
			FetchTime: time.Since(start),
			Error:     appErr,
		}, appErr
	}

	if err := ctx.Err(); err != nil {
		return fail(internal.ErrorCodeTimeout, "fetch cancelled", err)
	}

	// Build file path from request
	filePath, err := f.buildFilePath(request)
	if err != nil {
		return fail(internal.ErrorCodeValidation, "failed to build file path", err)
	}

	// Check if file exists
	fileInfo, err := f.fs.Stat(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fail(internal.ErrorCodeNotFound, fmt.Sprintf("file not found: %s", filePath), err)
		}
		if errors.Is(err, os.ErrPermission) {
			return fail(internal.ErrorCodePermission, fmt.Sprintf("cannot access file: %s", filePath), err)
		}
		return fail(internal.ErrorCodeFileSystem, fmt.Sprintf("cannot access file: %s", filePath), err)
	}

	// Check if it's a regular file
	if !fileInfo.Mode().IsRegular() {
		return fail(internal.ErrorCodeValidation, fmt.Sprintf("path is not a regular file: %s", filePath), nil)
	}

	// Open and read the file
	file, err := f.fs.Open(filePath)
	if err != nil {
		return fail(internal.ErrorCodeFileSystem, fmt.Sprintf("failed to open file: %s", filePath), err)
	}
	defer file.Close()

	// Handle compressed files
	var reader io.Reader = file
	isCompressed := isCompressedFile(filePath)
	if isCompressed {
		gzipReader, err := gzip.NewReader(file)
		if err != nil {
			return fail(internal.ErrorCodeProcessing, fmt.Sprintf("failed to create gzip reader for: %s", filePath), err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fail(internal.ErrorCodeFileSystem, fmt.Sprintf("failed to read file: %s", filePath), err)
	}

	response := &Response{
		Request:    request,
		Data:       data,
		StatusCode: 200, // Simulate HTTP 200 OK for consistency
		Size:       len(data),
		FetchTime:  time.Since(start),
	}

	// Add pseudo-headers for consistency with HTTP fetcher
	response.Headers = make(map[string][]string)
	response.Headers["Content-Length"] = []string{fmt.Sprintf("%d", len(data))}
	if isCompressed {
		response.Headers["Content-Encoding"] = []string{"gzip"}
	}

	return response, nil
}

// FetchWithRetry retries transient file system errors
func (f *LocalFetcher) FetchWithRetry(ctx context.Context, request *Request) (*Response, error) {
	var lastResponse *Response
	var lastErr error

	attempts := 0
	for attempt := 0; attempt <= localRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return lastResponse, ctx.Err()
			case <-time.After(time.Duration(attempt*100) * time.Millisecond):
			}
		}

		attempts++
		response, err := f.Fetch(ctx, request)
		if err == nil {
			return response, nil
		}

		lastResponse = response
		lastErr = err

		// Don't retry on certain error types
		if !f.shouldRetry(err) {
			break
		}
	}

	return lastResponse, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// buildFilePath constructs the file path from the request
func (f *LocalFetcher) buildFilePath(request *Request) (string, error) {
	if request.Location != "" {
		if filepath.IsAbs(request.Location) || f.config.Local.BasePath == "" {
			return request.Location, nil
		}
		// Relative path - combine with base path
		return filepath.Join(f.config.Local.BasePath, request.Location), nil
	}

	// Build path from coordinates using template
	if f.config.Local.BasePath == "" {
		return "", fmt.Errorf("base_path is required for coordinate-based file paths")
	}

	if err := request.TileID().Validate(); err != nil {
		return "", fmt.Errorf("invalid coordinates: %w", err)
	}

	return filepath.FromSlash(f.config.GetTilePath(request.Z, request.X, request.Y)), nil
}

// shouldRetry determines if a failed local file access should be retried
func (f *LocalFetcher) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Don't retry on file not found, permission or malformed data errors
	for _, code := range []string{
		internal.ErrorCodeNotFound,
		internal.ErrorCodePermission,
		internal.ErrorCodeValidation,
		internal.ErrorCodeProcessing,
	} {
		if internal.HasCode(err, code) {
			return false
		}
	}

	// Retry on file system errors that might be transient
	return true
}

// ListAvailableTiles scans the local directory structure to find available tiles
func (f *LocalFetcher) ListAvailableTiles() ([]mvt.TileID, error) {
	if f.config.Local.BasePath == "" {
		return nil, fmt.Errorf("base_path is required for tile listing")
	}

	var tiles []mvt.TileID

	err := afero.Walk(f.fs, f.config.Local.BasePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip directories
		if info.IsDir() {
			return nil
		}

		// Skip files that don't match the expected pattern
		tid, err := f.parseCoordinatesFromPath(path)
		if err != nil {
			return nil
		}

		tiles = append(tiles, tid)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan tile directory: %w", err)
	}

	return tiles, nil
}

// parseCoordinatesFromPath extracts tile coordinates from a {z}/{x}/{y}.ext path
func (f *LocalFetcher) parseCoordinatesFromPath(filePath string) (mvt.TileID, error) {
	var tid mvt.TileID

	relPath, err := filepath.Rel(f.config.Local.BasePath, filePath)
	if err != nil {
		return tid, err
	}

	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if len(parts) != 3 {
		return tid, fmt.Errorf("invalid path structure: %s", relPath)
	}

	// Remove extension(s)
	filename := parts[2]
	filename = strings.TrimSuffix(filename, ".gz")
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))

	if _, err := fmt.Sscanf(parts[0]+" "+parts[1]+" "+filename, "%d %d %d", &tid.Z, &tid.X, &tid.Y); err != nil {
		return tid, fmt.Errorf("invalid tile path: %s", relPath)
	}

	return tid, tid.Validate()
}

// isCompressedFile determines if a file is compressed based on its extension
func isCompressedFile(filePath string) bool {
	return strings.HasSuffix(strings.ToLower(filePath), ".gz")
}

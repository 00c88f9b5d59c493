// internal/output/writer.go - Output writing implementation
package output

import (
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// FileWriter writes output to a single file with optional compression
type FileWriter struct {
	formatter   Formatter
	destination Destination
	config      *WriterConfig
}

// NewFileWriter creates a new file-based writer
func NewFileWriter(fs afero.Fs, config *WriterConfig, destination string) (*FileWriter, error) {
	formatter, err := newFormatter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	dest, err := newFileDestination(fs, destination, config.Compression)
	if err != nil {
		return nil, fmt.Errorf("failed to create file destination: %w", err)
	}

	return &FileWriter{
		formatter:   formatter,
		destination: dest,
		config:      config,
	}, nil
}

// Write writes a single result to the output destination
func (w *FileWriter) Write(result *Result) error {
	data, err := w.formatter.Format(result)
	if err != nil {
		return fmt.Errorf("formatting failed: %w", err)
	}

	if _, err := w.destination.Write(data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	return nil
}

// WriteBatch writes multiple results merged into one document
func (w *FileWriter) WriteBatch(results []*Result) error {
	data, err := w.formatter.FormatBatch(results)
	if err != nil {
		return fmt.Errorf("batch formatting failed: %w", err)
	}

	if _, err := w.destination.Write(data); err != nil {
		return fmt.Errorf("batch write failed: %w", err)
	}

	return nil
}

// Close closes the writer and underlying destination
func (w *FileWriter) Close() error {
	return w.destination.Close()
}

// Name returns the path written to
func (w *FileWriter) Name() string {
	return w.destination.Name()
}

// StreamWriter writes output to a stream such as standard output
type StreamWriter struct {
	formatter Formatter
	out       io.Writer
}

// NewStreamWriter creates a writer emitting one document per line to out
func NewStreamWriter(config *WriterConfig, out io.Writer) (*StreamWriter, error) {
	formatter, err := newFormatter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	return &StreamWriter{formatter: formatter, out: out}, nil
}

// Write writes a single result to the stream
func (w *StreamWriter) Write(result *Result) error {
	data, err := w.formatter.Format(result)
	if err != nil {
		return fmt.Errorf("formatting failed: %w", err)
	}
	return w.writeLine(data)
}

// WriteBatch writes multiple results to the stream as one document
func (w *StreamWriter) WriteBatch(results []*Result) error {
	data, err := w.formatter.FormatBatch(results)
	if err != nil {
		return fmt.Errorf("batch formatting failed: %w", err)
	}
	return w.writeLine(data)
}

func (w *StreamWriter) writeLine(data []byte) error {
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write to stream failed: %w", err)
	}
	return nil
}

// Close is a no-op for stream writers
func (w *StreamWriter) Close() error {
	return nil
}

// MultiFileWriter writes each result to a separate file under a directory
type MultiFileWriter struct {
	fs        afero.Fs
	formatter Formatter
	baseDir   string
	config    *WriterConfig
}

// NewMultiFileWriter creates a writer that outputs each result to its own file
func NewMultiFileWriter(fs afero.Fs, config *WriterConfig, baseDir string) (*MultiFileWriter, error) {
	formatter, err := newFormatter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	// Ensure base directory exists
	if err := fs.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &MultiFileWriter{
		fs:        fs,
		formatter: formatter,
		baseDir:   baseDir,
		config:    config,
	}, nil
}

// Write writes a single result to its own file
func (w *MultiFileWriter) Write(result *Result) error {
	path, err := w.Path(result.Name)
	if err != nil {
		return err
	}

	data, err := w.formatter.Format(result)
	if err != nil {
		return fmt.Errorf("formatting failed: %w", err)
	}

	dest, err := newFileDestination(w.fs, path, w.config.Compression)
	if err != nil {
		return fmt.Errorf("failed to create file destination: %w", err)
	}

	_, err = dest.Write(data)
	return multierr.Append(err, dest.Close())
}

// WriteBatch writes each result in the batch to separate files
func (w *MultiFileWriter) WriteBatch(results []*Result) error {
	var errs error
	for _, result := range results {
		if err := w.Write(result); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to write %s: %w", result.Name, err))
		}
	}
	return errs
}

// Close is a no-op for multi-file writer
func (w *MultiFileWriter) Close() error {
	return nil
}

// Path returns the file a result name is written to. Names may contain
// slashes, e.g. z/x/y tile ids, which become subdirectories.
func (w *MultiFileWriter) Path(name string) (string, error) {
	base := strings.TrimSuffix(filepath.ToSlash(name), ".gz")
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimLeft(base, "/")
	if base == "" {
		return "", fmt.Errorf("cannot derive a file name from %q", name)
	}

	rel := filepath.Clean(filepath.FromSlash(base))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("name %q escapes the output directory", name)
	}

	ext := w.config.Format.Extension()
	if w.config.Compression {
		ext += ".gz"
	}
	return filepath.Join(w.baseDir, rel+ext), nil
}

// fileDestination implements the Destination interface for file output
type fileDestination struct {
	file   afero.File
	writer io.Writer
	gz     *gzip.Writer
	name   string
	size   int64
}

// newFileDestination creates a new file destination with optional compression
func newFileDestination(fs afero.Fs, path string, compression bool) (*fileDestination, error) {
	// Add .gz extension if not already present
	if compression && !strings.HasSuffix(path, ".gz") {
		path += ".gz"
	}

	// Ensure parent directory exists
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	dest := &fileDestination{
		file:   file,
		writer: file,
		name:   path,
	}
	if compression {
		dest.gz = gzip.NewWriter(file)
		dest.writer = dest.gz
	}
	return dest, nil
}

// Write implements io.Writer
func (d *fileDestination) Write(p []byte) (n int, err error) {
	n, err = d.writer.Write(p)
	d.size += int64(n)
	return n, err
}

// Close implements io.Closer
func (d *fileDestination) Close() error {
	var err error
	if d.gz != nil {
		err = d.gz.Close()
	}
	return multierr.Append(err, d.file.Close())
}

// Name returns the destination file path
func (d *fileDestination) Name() string {
	return d.name
}

// Size returns the number of bytes written before compression
func (d *fileDestination) Size() int64 {
	return d.size
}

// NewWriter creates the appropriate writer based on configuration. An empty
// destination or "-" writes to stdout.
func NewWriter(fs afero.Fs, config *WriterConfig, destination string, multiFile bool, stdout io.Writer) (Writer, error) {
	if destination == "" || destination == "-" {
		return NewStreamWriter(config, stdout)
	}

	if multiFile {
		return NewMultiFileWriter(fs, config, destination)
	}

	return NewFileWriter(fs, config, destination)
}

func newFormatter(config *WriterConfig) (Formatter, error) {
	return NewFormatter(&FormatterConfig{
		Format:       config.Format,
		Pretty:       config.Pretty,
		IncludeStats: config.Metadata,
		Simplify:     config.Simplify,
	})
}

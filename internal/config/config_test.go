package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/vecnorm/internal"
	"github.com/valpere/vecnorm/pkg/vector"
)

func loadWith(t *testing.T, values map[string]interface{}) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	for k, v := range values {
		viper.Set(k, v)
	}
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(t, nil)
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Source.Type)
	assert.Equal(t, 3, cfg.Server.MaxRetries)
	assert.Equal(t, 16, cfg.Buffers.QuadrantSegments)
	assert.Equal(t, TransformNone, cfg.Transform.Type)
	assert.Equal(t, vector.ClassIDKey, cfg.Classes.IDKey)
	assert.True(t, cfg.Output.Stdout)
	assert.Equal(t, internal.SourceTypeLocal, cfg.DetermineSourceType())
}

func TestLoadBuffers(t *testing.T) {
	cfg, err := loadWith(t, map[string]interface{}{
		"buffers.line":  map[string]interface{}{"1": 2.5, "4": 0},
		"buffers.point": map[string]interface{}{"3": 4},
	})
	require.NoError(t, err)

	lines, err := cfg.LineBuffers()
	require.NoError(t, err)
	assert.Equal(t, vector.ClassBuffers{1: 2.5, 4: 0}, lines)

	points, err := cfg.PointBuffers()
	require.NoError(t, err)
	assert.Equal(t, vector.ClassBuffers{3: 4}, points)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"negative radius", map[string]interface{}{"buffers.line": map[string]interface{}{"1": -2}}},
		{"non numeric class", map[string]interface{}{"buffers.point": map[string]interface{}{"road": 2}}},
		{"unknown transform", map[string]interface{}{"transform.type": "utm"}},
		{"short geotransform", map[string]interface{}{"transform.type": "affine", "transform.geotransform": []float64{1, 2}}},
		{"bad log level", map[string]interface{}{"logging.level": "loud"}},
		{"bad coordinate system", map[string]interface{}{"tiles.coordinate_system": "utm"}},
		{"zero concurrency", map[string]interface{}{"batch.concurrency": 0}},
		{"bad base url", map[string]interface{}{"server.base_url": "ftp://tiles"}},
		{"class map without name key", map[string]interface{}{"classes.enabled": true, "classes.map": map[string]interface{}{"road": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadWith(t, tt.values)
			assert.Error(t, err)
		})
	}
}

func TestParseBufferFlags(t *testing.T) {
	out, err := ParseBufferFlags([]string{"1=2.5", " 3 = 4 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"1": 2.5, "3": 4}, out)

	for _, bad := range []string{"1", "a=2", "1=b"} {
		_, err := ParseBufferFlags([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestTileLocations(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{BaseURL: "https://tiles.example.com/", URLTemplate: "{base_url}/{z}/{x}/{y}.mvt"},
		Local:  LocalConfig{BasePath: "/data/tiles", PathTemplate: "{base_path}/{z}/{x}/{y}{ext}", Extension: ".pbf", Compressed: true},
	}

	assert.Equal(t, "https://tiles.example.com/14/8362/5956.mvt", cfg.GetTileURL(14, 8362, 5956))
	assert.Equal(t, "/data/tiles/14/8362/5956.pbf.gz", cfg.GetTilePath(14, 8362, 5956))
	assert.Empty(t, (&Config{}).GetTileURL(1, 0, 0))
}

func TestDetermineSourceType(t *testing.T) {
	cfg := &Config{Source: SourceConfig{Type: "auto", AutoDetect: true, DefaultType: "local"}}
	cfg.Server.BaseURL = "https://tiles"
	assert.Equal(t, internal.SourceTypeHTTP, cfg.DetermineSourceType())

	cfg.Local.BasePath = "/tiles"
	assert.Equal(t, internal.SourceTypeLocal, cfg.DetermineSourceType())

	cfg.Source.Type = "http"
	assert.Equal(t, internal.SourceTypeHTTP, cfg.DetermineSourceType())
}

func TestDetermineFormat(t *testing.T) {
	cfg := &Config{Source: SourceConfig{Format: "auto"}}
	assert.Equal(t, internal.InputFormatMVT, cfg.DetermineFormat("tiles/1/0/0.mvt"))
	assert.Equal(t, internal.InputFormatMVT, cfg.DetermineFormat("tiles/1/0/0.PBF.gz"))
	assert.Equal(t, internal.InputFormatGeoJSON, cfg.DetermineFormat("labels.geojson"))

	cfg.Source.Format = "mvt"
	assert.Equal(t, internal.InputFormatMVT, cfg.DetermineFormat("labels.geojson"))
}

func TestValidateLocalDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/tiles/14", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/tiles/readme.txt", []byte("x"), 0o644))

	cfg := &Config{Local: LocalConfig{BasePath: "/tiles"}}
	assert.NoError(t, ValidateLocalDirectory(fs, cfg))

	cfg.Local.BasePath = "/missing"
	assert.True(t, internal.HasCode(ValidateLocalDirectory(fs, cfg), internal.ErrorCodeNotFound))

	cfg.Local.BasePath = "/tiles/readme.txt"
	assert.True(t, internal.HasCode(ValidateLocalDirectory(fs, cfg), internal.ErrorCodeValidation))
}

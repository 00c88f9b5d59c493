// pkg/mvt/decoder_test.go - Unit tests for MVT decoder
package mvt

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTile = TileID{Z: 14, X: 8362, Y: 5956}

// encodeTile builds tile bytes from WGS84 collections keyed by layer name
func encodeTile(t *testing.T, tid TileID, gzipped bool, collections map[string]*geojson.FeatureCollection) []byte {
	t.Helper()

	layers := mvt.NewLayers(collections)
	layers.ProjectToTile(tid.MapTile())

	var data []byte
	var err error
	if gzipped {
		data, err = mvt.MarshalGzipped(layers)
	} else {
		data, err = mvt.Marshal(layers)
	}
	require.NoError(t, err)
	return data
}

func sampleCollections(tid TileID) map[string]*geojson.FeatureCollection {
	center := tid.MapTile().Bound().Center()

	roads := geojson.NewFeatureCollection()
	road := geojson.NewFeature(orb.LineString{center, {center[0] + 0.001, center[1]}})
	road.Properties = geojson.Properties{"name": "Main", "kind": "primary"}
	roads.Append(road)

	places := geojson.NewFeatureCollection()
	place := geojson.NewFeature(center)
	place.Properties = geojson.Properties{"name": "Center"}
	places.Append(place)

	return map[string]*geojson.FeatureCollection{"roads": roads, "places": places}
}

func TestDecode(t *testing.T) {
	center := testTile.MapTile().Bound().Center()
	// one tile pixel at extent 4096
	tolerance := testTile.MapTile().Bound().Right() - testTile.MapTile().Bound().Left()

	for _, gzipped := range []bool{false, true} {
		data := encodeTile(t, testTile, gzipped, sampleCollections(testTile))

		fc, metadata, err := NewDecoder().Decode(data, testTile)
		require.NoError(t, err)
		require.Len(t, fc.Features, 2)

		assert.Equal(t, 2, metadata.FeatureCount)
		assert.Equal(t, "14/8362/5956", metadata.TileID)
		assert.ElementsMatch(t, []string{"roads", "places"}, metadata.Layers)
		assert.Equal(t, 4096, metadata.Extent)

		for _, f := range fc.Features {
			assert.Contains(t, []interface{}{"roads", "places"}, f.Properties[LayerProperty])
			require.NotNil(t, f.Geometry)

			c := f.Geometry.Bound().Min
			assert.InDelta(t, center[0], c[0], tolerance/1000)
			assert.InDelta(t, center[1], c[1], tolerance/1000)
		}
	}
}

func TestDecodeFilters(t *testing.T) {
	data := encodeTile(t, testTile, false, sampleCollections(testTile))

	decoder, err := NewDecoderWithOptions(&DecodeOptions{
		LayerFilter:    []string{"roads"},
		PropertyFilter: []string{"name"},
	})
	require.NoError(t, err)

	fc, metadata, err := decoder.Decode(data, testTile)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Len(t, metadata.Layers, 2)

	assert.Equal(t, geojson.Properties{"name": "Main", LayerProperty: "roads"}, fc.Features[0].Properties)
	assert.IsType(t, orb.LineString{}, fc.Features[0].Geometry)
}

func TestDecodeCoordinateSystems(t *testing.T) {
	data := encodeTile(t, testTile, false, sampleCollections(testTile))

	t.Run("tile", func(t *testing.T) {
		decoder, err := NewDecoderWithOptions(&DecodeOptions{CoordinateSystem: CoordSystemTile, LayerFilter: []string{"places"}})
		require.NoError(t, err)

		fc, _, err := decoder.Decode(data, testTile)
		require.NoError(t, err)
		require.Len(t, fc.Features, 1)

		p := fc.Features[0].Geometry.(orb.Point)
		assert.InDelta(t, 2048, p[0], 1)
		assert.InDelta(t, 2048, p[1], 1)
	})

	t.Run("web-mercator", func(t *testing.T) {
		decoder, err := NewDecoderWithOptions(&DecodeOptions{CoordinateSystem: CoordSystemWebMercator, LayerFilter: []string{"places"}})
		require.NoError(t, err)

		fc, _, err := decoder.Decode(data, testTile)
		require.NoError(t, err)
		require.Len(t, fc.Features, 1)

		p := fc.Features[0].Geometry.(orb.Point)
		assert.Greater(t, p[0], 180.0, "mercator x is in meters")
	})
}

func TestDecode_EmptyData(t *testing.T) {
	_, _, err := NewDecoder().Decode([]byte{}, testTile)
	require.Error(t, err)
	assert.Equal(t, "empty tile data", err.Error())
}

func TestDecode_InvalidTile(t *testing.T) {
	_, _, err := NewDecoder().Decode([]byte{0x1a, 0x00}, TileID{Z: 1, X: 2, Y: 0})
	assert.Error(t, err)
}

func TestNewDecoderWithOptions(t *testing.T) {
	_, err := NewDecoderWithOptions(&DecodeOptions{CoordinateSystem: "utm"})
	assert.Error(t, err)

	d, err := NewDecoderWithOptions(&DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, CoordSystemWGS84, d.options.CoordinateSystem)
}

func TestTileIDString(t *testing.T) {
	assert.Equal(t, "14/8362/5956", testTile.String())
}

func TestTileIDValidate(t *testing.T) {
	tests := []struct {
		name    string
		tid     TileID
		wantErr bool
	}{
		{"valid coordinates", TileID{14, 8362, 5956}, false},
		{"invalid zoom negative", TileID{-1, 0, 0}, true},
		{"invalid zoom too high", TileID{23, 0, 0}, true},
		{"invalid x negative", TileID{1, -1, 0}, true},
		{"invalid x too high", TileID{1, 2, 0}, true},
		{"invalid y negative", TileID{1, 0, -1}, true},
		{"invalid y too high", TileID{1, 0, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tid.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

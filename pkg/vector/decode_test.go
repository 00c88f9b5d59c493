package vector

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCollection(t *testing.T) {
	t.Run("Should decode a feature collection", func(t *testing.T) {
		data := []byte(`{
			"type": "FeatureCollection",
			"features": [
				{"type": "Feature", "id": 7, "geometry": {"type": "Point", "coordinates": [1, 2]}, "properties": {"class_id": 1}},
				{"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]}, "properties": {"class_id": 2}}
			]
		}`)

		fc, err := DecodeCollection(data)
		require.NoError(t, err)
		require.Len(t, fc.Features, 2)
		assert.Equal(t, orb.Point{1, 2}, fc.Features[0].Geometry)
		assert.Equal(t, 1.0, fc.Features[0].Properties["class_id"])
		assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, fc.Features[1].Geometry)
	})

	t.Run("Should mark absent coordinates as nil geometry", func(t *testing.T) {
		data := []byte(`{
			"type": "FeatureCollection",
			"features": [
				{"type": "Feature", "geometry": {"type": "Point", "coordinates": null}, "properties": {"class_id": 1}},
				{"type": "Feature", "geometry": {"type": "Polygon"}, "properties": {"class_id": 1}},
				{"type": "Feature", "geometry": null, "properties": {"class_id": 1}},
				{"type": "Feature", "properties": null}
			]
		}`)

		fc, err := DecodeCollection(data)
		require.NoError(t, err)
		require.Len(t, fc.Features, 4)
		for _, f := range fc.Features {
			assert.Nil(t, f.Geometry)
			assert.NotNil(t, f.Properties)
		}
		assert.Equal(t, 1.0, fc.Features[0].Properties["class_id"])

		out, err := Normalize(fc, Options{})
		require.NoError(t, err)
		assert.Empty(t, out.Features)
	})

	t.Run("Should wrap a single feature", func(t *testing.T) {
		fc, err := DecodeCollection([]byte(`{"type": "Feature", "geometry": {"type": "Point", "coordinates": [5, 6]}, "properties": {"class_id": 3}}`))
		require.NoError(t, err)
		require.Len(t, fc.Features, 1)
		assert.Equal(t, orb.Point{5, 6}, fc.Features[0].Geometry)
	})

	t.Run("Should wrap a bare geometry", func(t *testing.T) {
		fc, err := DecodeCollection([]byte(`{"type": "MultiPoint", "coordinates": [[0, 0], [1, 1]]}`))
		require.NoError(t, err)
		require.Len(t, fc.Features, 1)
		assert.Equal(t, orb.MultiPoint{{0, 0}, {1, 1}}, fc.Features[0].Geometry)
	})

	t.Run("Should keep geometry collections for the normalizer to reject", func(t *testing.T) {
		fc, err := DecodeCollection([]byte(`{"type": "Feature", "geometry": {"type": "GeometryCollection", "geometries": [{"type": "Point", "coordinates": [0, 0]}]}, "properties": {}}`))
		require.NoError(t, err)
		require.Len(t, fc.Features, 1)
		assert.IsType(t, orb.Collection{}, fc.Features[0].Geometry)

		_, err = Normalize(fc, Options{})
		assert.ErrorIs(t, err, ErrUnsupportedGeometry)

		fc, err = DecodeCollection([]byte(`{"type": "Feature", "geometry": {"type": "GeometryCollection", "geometries": null}, "properties": {}}`))
		require.NoError(t, err)
		require.Len(t, fc.Features, 1)
		assert.Nil(t, fc.Features[0].Geometry)
	})

	t.Run("Should reject other documents", func(t *testing.T) {
		for _, doc := range []string{`not json`, `[1, 2]`, `{"type": "Topology"}`, `{"type": "FeatureCollection", "features": [1]}`} {
			_, err := DecodeCollection([]byte(doc))
			assert.ErrorIs(t, err, ErrNotFeatureCollection, doc)
		}
	})

	t.Run("Should accept an empty collection", func(t *testing.T) {
		fc, err := DecodeCollection([]byte(`{"type": "FeatureCollection", "features": []}`))
		require.NoError(t, err)
		assert.Empty(t, fc.Features)
	})
}

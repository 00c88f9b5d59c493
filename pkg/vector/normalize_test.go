package vector

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// circleArea is the area of the 64-gon the default bufferer uses for a circle
func circleArea(r float64) float64 {
	return r * r * 32 * math.Sin(math.Pi/32)
}

func feature(g orb.Geometry, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties = props
	return f
}

func collection(features ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	return fc
}

func area(f *geojson.Feature) float64 {
	return math.Abs(planar.Area(f.Geometry))
}

// recordingBufferer returns a unit square per call and records the radii
type recordingBufferer struct {
	radii []float64
}

func (r *recordingBufferer) Buffer(g orb.Geometry, radius float64) ([]orb.Polygon, error) {
	r.radii = append(r.radii, radius)
	c := g.Bound().Center()
	return []orb.Polygon{{{
		{c[0], c[1]}, {c[0] + 1, c[1]}, {c[0] + 1, c[1] + 1}, {c[0], c[1] + 1}, {c[0], c[1]},
	}}}, nil
}

func TestNormalizePoint(t *testing.T) {
	t.Run("Should buffer a point by its class radius", func(t *testing.T) {
		raw := collection(feature(orb.Point{0, 0}, geojson.Properties{"class_id": 1.0, "name": "well"}))

		out, err := Normalize(raw, Options{PointBuffers: ClassBuffers{1: 5}})
		require.NoError(t, err)
		require.Len(t, out.Features, 1)

		f := out.Features[0]
		require.IsType(t, orb.Polygon{}, f.Geometry)
		assert.InDelta(t, circleArea(5), area(f), 1e-9)
		assert.InDelta(t, 25*math.Pi, area(f), 0.2)
		assert.Equal(t, geojson.Properties{"class_id": 1.0, "name": "well"}, f.Properties)
	})

	t.Run("Should fall back to a unit radius", func(t *testing.T) {
		raw := collection(feature(orb.Point{0, 0}, geojson.Properties{"class_id": 7}))

		out, err := Normalize(raw, Options{PointBuffers: ClassBuffers{1: 5}})
		require.NoError(t, err)
		require.Len(t, out.Features, 1)
		assert.InDelta(t, circleArea(1), area(out.Features[0]), 1e-9)
	})

	t.Run("Should produce nothing for a zero radius", func(t *testing.T) {
		raw := collection(feature(orb.Point{0, 0}, geojson.Properties{"class_id": 2}))

		out, err := Normalize(raw, Options{PointBuffers: ClassBuffers{2: 0}})
		require.NoError(t, err)
		assert.Empty(t, out.Features)
	})
}

func TestNormalizeRadiusSelection(t *testing.T) {
	rec := &recordingBufferer{}
	raw := collection(
		feature(orb.LineString{{0, 0}, {1, 0}}, geojson.Properties{"class_id": 1}),
		feature(orb.LineString{{0, 0}, {1, 0}}, geojson.Properties{"class_id": 2}),
		feature(orb.Point{0, 0}, geojson.Properties{"class_id": 1}),
		feature(orb.Point{0, 0}, geojson.Properties{"class_id": "3"}),
		feature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, geojson.Properties{}),
	)

	_, err := Normalize(raw, Options{
		LineBuffers:  ClassBuffers{1: 2.5},
		PointBuffers: ClassBuffers{1: 4, 3: 6},
		Bufferer:     rec,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 1, 4, 6, 0}, rec.radii)
}

func TestNormalizeLineString(t *testing.T) {
	raw := collection(feature(orb.LineString{{0, 0}, {10, 0}}, geojson.Properties{"class_id": 3}))

	out, err := Normalize(raw, Options{LineBuffers: ClassBuffers{3: 1}})
	require.NoError(t, err)
	require.Len(t, out.Features, 1)
	assert.Greater(t, area(out.Features[0]), 0.0)
	assert.InDelta(t, 20+circleArea(1), area(out.Features[0]), 1e-6)
}

func TestNormalizeMultiGeometries(t *testing.T) {
	tests := []struct {
		name  string
		geom  orb.Geometry
		parts int
	}{
		{"Should split multi points", orb.MultiPoint{{0, 0}, {10, 0}, {20, 0}}, 3},
		{"Should split multi line strings", orb.MultiLineString{{{0, 0}, {1, 0}}, {{5, 5}, {6, 5}}}, 2},
		{"Should split multi polygons", orb.MultiPolygon{
			{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
			{{{5, 5}, {6, 5}, {6, 6}, {5, 6}, {5, 5}}},
		}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingBufferer{}
			raw := collection(feature(tt.geom, geojson.Properties{"class_id": 1}))

			out, err := Normalize(raw, Options{Bufferer: rec})
			require.NoError(t, err)
			assert.Len(t, rec.radii, tt.parts)
			assert.Len(t, out.Features, tt.parts)
			for _, f := range out.Features {
				assert.Equal(t, geojson.TypePolygon, f.Geometry.GeoJSONType())
				assert.Equal(t, geojson.Properties{"class_id": 1}, f.Properties)
			}
		})
	}

	t.Run("Should produce only polygons with the default bufferer", func(t *testing.T) {
		raw := collection(
			feature(orb.MultiPoint{{0, 0}, {10, 0}}, geojson.Properties{"class_id": 1}),
			feature(orb.MultiPolygon{{{{0, 20}, {2, 20}, {2, 22}, {0, 22}, {0, 20}}}}, nil),
		)

		out, err := Normalize(raw, Options{})
		require.NoError(t, err)
		require.Len(t, out.Features, 3)
		for _, f := range out.Features {
			assert.IsType(t, orb.Polygon{}, f.Geometry)
		}
	})
}

func TestNormalizePolygonRepair(t *testing.T) {
	t.Run("Should split a bowtie into two polygons", func(t *testing.T) {
		bowtie := orb.Polygon{{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}}
		raw := collection(feature(bowtie, geojson.Properties{"kind": "field"}))

		out, err := Normalize(raw, Options{})
		require.NoError(t, err)
		require.Len(t, out.Features, 2)
		for _, f := range out.Features {
			assert.InDelta(t, 1, area(f), 1e-9)
			assert.Equal(t, geojson.Properties{"kind": "field"}, f.Properties)
		}
	})

	t.Run("Should be idempotent for valid polygons", func(t *testing.T) {
		raw := collection(
			feature(orb.Polygon{
				{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
				{{2, 2}, {2, 8}, {8, 8}, {8, 2}, {2, 2}},
			}, geojson.Properties{"class_id": 4}),
			feature(orb.Polygon{{{20, 0}, {24, 0}, {22, 3}, {20, 0}}}, geojson.Properties{"class_id": 5}),
		)

		first, err := Normalize(raw, Options{})
		require.NoError(t, err)
		second, err := Normalize(first, Options{})
		require.NoError(t, err)

		require.Len(t, second.Features, len(first.Features))
		for i := range first.Features {
			a := first.Features[i].Geometry.(orb.Polygon)
			b := second.Features[i].Geometry.(orb.Polygon)
			require.Len(t, b, len(a))
			for r := range a {
				assert.ElementsMatch(t, a[r][1:], b[r][1:])
			}
			assert.Equal(t, first.Features[i].Properties, second.Features[i].Properties)
		}
	})

	t.Run("Should not need a class for polygons", func(t *testing.T) {
		raw := collection(feature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, nil))

		out, err := Normalize(raw, Options{})
		require.NoError(t, err)
		require.Len(t, out.Features, 1)
		assert.NotNil(t, out.Features[0].Properties)
	})
}

func TestNormalizeAbsentCoordinates(t *testing.T) {
	raw := collection(
		feature(nil, geojson.Properties{"class_id": 1}),
		feature(orb.LineString{}, geojson.Properties{"class_id": 1}),
		feature(orb.MultiPolygon{}, geojson.Properties{}),
		feature(orb.Point{3, 3}, geojson.Properties{"class_id": 1}),
	)

	out, err := Normalize(raw, Options{})
	require.NoError(t, err)
	require.Len(t, out.Features, 1)
	assert.Less(t, len(out.Features), len(raw.Features))
	assert.True(t, out.Features[0].Geometry.Bound().Contains(orb.Point{3, 3}))
}

func TestNormalizeTransform(t *testing.T) {
	scale := TransformerFunc(func(x, y float64) (float64, float64, error) {
		return 2 * x, 2 * y, nil
	})
	line := orb.LineString{{0, 0}, {10, 0}}

	t.Run("Should transform after buffering", func(t *testing.T) {
		raw := collection(feature(line, geojson.Properties{"class_id": 1}))

		out, err := Normalize(raw, Options{LineBuffers: ClassBuffers{1: 1}, Transformer: scale})
		require.NoError(t, err)
		require.Len(t, out.Features, 1)

		bufferedThenScaled := area(out.Features[0])
		assert.InDelta(t, 4*(20+circleArea(1)), bufferedThenScaled, 1e-6)

		scaledFirst := collection(feature(orb.LineString{{0, 0}, {20, 0}}, geojson.Properties{"class_id": 1}))
		other, err := Normalize(scaledFirst, Options{LineBuffers: ClassBuffers{1: 1}})
		require.NoError(t, err)
		require.Len(t, other.Features, 1)
		assert.NotEqual(t, bufferedThenScaled, area(other.Features[0]))
	})

	t.Run("Should propagate transform errors", func(t *testing.T) {
		failing := TransformerFunc(func(x, y float64) (float64, float64, error) {
			return 0, 0, errors.New("outside raster")
		})
		raw := collection(feature(orb.Point{0, 0}, geojson.Properties{"class_id": 1}))

		_, err := Normalize(raw, Options{Transformer: failing})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outside raster")
	})
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		f    *geojson.Feature
		want error
	}{
		{"Should require a class for points", feature(orb.Point{0, 0}, geojson.Properties{}), ErrMissingClassID},
		{"Should require a class for lines", feature(orb.LineString{{0, 0}, {1, 1}}, nil), ErrMissingClassID},
		{"Should reject geometry collections", feature(orb.Collection{orb.Point{0, 0}}, nil), ErrUnsupportedGeometry},
		{"Should reject bounds", feature(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, nil), ErrUnsupportedGeometry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(collection(tt.f), Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "feature 0")
		})
	}
}

func TestNormalizeUnknownClassUsesDefaultRadius(t *testing.T) {
	buffers := ClassBuffers{1: 5, 2: 5}

	for _, classID := range []interface{}{"car", 2.5, true, 7} {
		rec := &recordingBufferer{}
		raw := collection(
			feature(orb.Point{0, 0}, geojson.Properties{"class_id": classID}),
			feature(orb.LineString{{0, 0}, {1, 0}}, geojson.Properties{"class_id": classID}),
		)

		out, err := Normalize(raw, Options{PointBuffers: buffers, LineBuffers: buffers, Bufferer: rec})
		require.NoError(t, err, classID)
		assert.Len(t, out.Features, 2, classID)
		assert.Equal(t, []float64{DefaultRadius, DefaultRadius}, rec.radii, classID)
		assert.Equal(t, classID, out.Features[0].Properties["class_id"])
	}

	out, err := Normalize(collection(feature(orb.Point{0, 0}, geojson.Properties{"class_id": "car"})), Options{PointBuffers: buffers})
	require.NoError(t, err)
	require.Len(t, out.Features, 1)
	assert.InDelta(t, circleArea(1), area(out.Features[0]), 1e-9)
}

func TestClassIDRejectsInvalidValues(t *testing.T) {
	for _, v := range []interface{}{1.5, "road", true} {
		_, err := ClassID(geojson.Properties{"class_id": v})
		assert.ErrorIs(t, err, ErrInvalidClassID, v)
	}

	id, err := ClassID(geojson.Properties{"class_id": "3"})
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestNormalizeDoesNotShareProperties(t *testing.T) {
	props := geojson.Properties{"class_id": 1}
	raw := collection(feature(orb.MultiPoint{{0, 0}, {10, 10}}, props))

	out, err := Normalize(raw, Options{})
	require.NoError(t, err)
	require.Len(t, out.Features, 2)

	out.Features[0].Properties["class_id"] = 9
	assert.Equal(t, 1, props["class_id"])
	assert.Equal(t, 1, out.Features[1].Properties["class_id"])
}

func TestClassBuffers(t *testing.T) {
	cb := ClassBuffers{1: 2.5, 2: 0}
	assert.Equal(t, 2.5, cb.Radius(1))
	assert.Equal(t, 0.0, cb.Radius(2))
	assert.Equal(t, DefaultRadius, cb.Radius(3))
	assert.Equal(t, DefaultRadius, ClassBuffers(nil).Radius(1))

	assert.NoError(t, cb.Validate())
	assert.Error(t, ClassBuffers{1: -1}.Validate())
	assert.Error(t, ClassBuffers{1: math.NaN()}.Validate())
}

func TestNormalizeNil(t *testing.T) {
	out, err := Normalize(nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, out.Features)
}

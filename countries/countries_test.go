package countries

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/fileblob"
)

func TestDefault(t *testing.T) {

	cfg, err := Default()
	require.NoError(t, err)

	uga, err := cfg.Lookup("uga")
	require.NoError(t, err)

	assert.Equal(t, "Uganda", uga.Name)
	assert.Equal(t, Bounds{MinLat: -1.5, MaxLat: 4.2, MinLon: 29.5, MaxLon: 35.0}, uga.Bounds)
	require.Len(t, uga.Regions, 12)
	assert.Equal(t, "KAM", uga.Regions[0].Code)
	assert.Equal(t, 35.0, uga.Regions[0].RadiusKm)
}

func TestLookupByName(t *testing.T) {

	cfg, err := Default()
	require.NoError(t, err)

	c, err := cfg.Lookup("KENYA")
	require.NoError(t, err)
	assert.Equal(t, "KEN", c.Code)
}

func TestLookupUnknown(t *testing.T) {

	cfg, err := Default()
	require.NoError(t, err)

	_, err = cfg.Lookup("xyz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCountry))

	var unknown *UnknownCountryError
	require.True(t, errors.As(err, &unknown))
	assert.Contains(t, unknown.Available, "UGA")
	assert.Contains(t, err.Error(), "XYZ")
}

func TestCountriesEmpty(t *testing.T) {

	cfg, err := Load([]byte(`{"countries": {}}`))
	require.NoError(t, err)

	list := cfg.Countries()
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestCountriesSorted(t *testing.T) {

	cfg, err := Default()
	require.NoError(t, err)

	list := cfg.Countries()
	require.NotEmpty(t, list)

	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Code, list[i].Code)
	}
}

func TestLoadInvalid(t *testing.T) {

	tests := map[string]string{
		"not json":        `{`,
		"missing table":   `{"places": {}}`,
		"missing bound":   `{"countries": {"AAA": {"name": "A", "bounds": {"min_lat": 0, "max_lat": 1, "min_lon": 0}}}}`,
		"inverted bounds": `{"countries": {"AAA": {"name": "A", "bounds": {"min_lat": 2, "max_lat": 1, "min_lon": 0, "max_lon": 1}}}}`,
		"bad radius":      `{"countries": {"AAA": {"name": "A", "bounds": {"min_lat": 0, "max_lat": 1, "min_lon": 0, "max_lon": 1}, "regions": {"R": {"name": "R", "center": [0.5, 0.5], "radius_km": 0}}}}}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLookupReturnsCopy(t *testing.T) {

	cfg, err := Default()
	require.NoError(t, err)

	a, err := cfg.Lookup("UGA")
	require.NoError(t, err)

	a.Regions[0].Name = "Changed"

	b, err := cfg.Lookup("UGA")
	require.NoError(t, err)
	assert.Equal(t, "Kampala", b.Regions[0].Name)
}

func TestBoundsContainsInclusive(t *testing.T) {

	b := Bounds{MinLat: -1.5, MaxLat: 4.2, MinLon: 29.5, MaxLon: 35.0}

	assert.True(t, b.Contains(-1.5, 29.5))
	assert.True(t, b.Contains(4.2, 35.0))
	assert.True(t, b.Contains(0, 32))
	assert.False(t, b.Contains(4.2001, 32))
	assert.False(t, b.Contains(0, 29.4999))

	assert.False(t, b.IsDegenerate())
	assert.True(t, Bounds{MinLat: 1, MaxLat: 1, MinLon: 0, MaxLon: 2}.IsDegenerate())

	ring := b.Ring()
	require.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4])
}

func TestOpen(t *testing.T) {

	ctx := context.Background()

	cfg, err := Open(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Countries())

	dir := t.TempDir()
	body := `{"countries": {"RWA": {"name": "Rwanda", "bounds": {"min_lat": -2.9, "max_lat": -1.0, "min_lon": 28.8, "max_lon": 30.9}}}}`

	err = os.WriteFile(filepath.Join(dir, "countries.json"), []byte(body), 0644)
	require.NoError(t, err)

	cfg, err = Open(ctx, "file://"+filepath.ToSlash(dir)+"/countries.json")
	require.NoError(t, err)

	c, err := cfg.Lookup("rwanda")
	require.NoError(t, err)
	assert.Equal(t, "RWA", c.Code)
	assert.Empty(t, c.Regions)

	_, err = Open(ctx, "file://"+filepath.ToSlash(dir)+"/missing.json")
	assert.Error(t, err)
}

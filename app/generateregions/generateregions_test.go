package generateregions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whosonfirst/go-openbuildings/countries"
)

func TestSelect(t *testing.T) {

	cfg, err := countries.Default()
	require.NoError(t, err)

	all, err := Select(cfg)
	require.NoError(t, err)

	require.Len(t, all, 1)
	assert.Equal(t, "UGA", all[0].Code)

	some, err := Select(cfg, "uganda", "KEN")
	require.NoError(t, err)

	require.Len(t, some, 2)
	assert.Equal(t, "UGA", some[0].Code)
	assert.Equal(t, "KEN", some[1].Code)

	_, err = Select(cfg, "Atlantis")
	assert.True(t, errors.Is(err, countries.ErrUnknownCountry))
}

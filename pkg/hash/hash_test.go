package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Parallel()

	h, err := HashPassword("pw123")
	require.NoError(t, err)
	assert.NotEqual(t, "pw123", h)
	assert.True(t, CheckPasswordHash("pw123", h))
	assert.False(t, CheckPasswordHash("pw124", h))

	again, err := HashPassword("pw123")
	require.NoError(t, err)
	assert.NotEqual(t, h, again, "hashes are salted")
}

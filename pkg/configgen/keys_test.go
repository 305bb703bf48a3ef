package configgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAESKeysLengthAndUniqueness(t *testing.T) {
	keys, err := generateAESKeys([]string{"n1", "n2", "n3"})
	require.NoError(t, err)
	require.Len(t, keys, 3)

	seen := make(map[string]bool)
	for name, key := range keys {
		assert.Len(t, key, aesKeySize)
		assert.False(t, seen[string(key)], "duplicate key for %s", name)
		seen[string(key)] = true
	}
}

func TestGenerateAESKeysEmptyInput(t *testing.T) {
	keys, err := generateAESKeys(nil)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

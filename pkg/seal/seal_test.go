package seal

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return k
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := randKey(t)
	plaintext := []byte("extClrMsg~~~hi~~~a~~~b~~~1~~~42~~~0")

	wire, err := Seal(plaintext, key)
	require.NoError(t, err)

	out, err := Open(wire, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestOpenFailsWithWrongKey(t *testing.T) {
	k1, k2 := randKey(t), randKey(t)
	wire, err := Seal([]byte("secret"), k1)
	require.NoError(t, err)

	_, err = Open(wire, k2)
	assert.ErrorIs(t, err, ErrNotForMe)
}

func TestOpenRejectsShortInput(t *testing.T) {
	key := randKey(t)
	_, err := Open([]byte("short"), key)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestWireLayoutHasFixedNonceAndTagSlots(t *testing.T) {
	key := randKey(t)
	wire, err := Seal([]byte("x"), key)
	require.NoError(t, err)
	assert.Equal(t, nonceLen+tagLen+1, len(wire))
}

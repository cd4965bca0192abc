package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultRoundTrip(t *testing.T) {
	v := NewVault(keyring.NewArrayKeyring(nil))

	require.NoError(t, v.Set(KeyRemoteAPIKey, "secret"))

	got, err := v.Get(KeyRemoteAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	require.NoError(t, v.Delete(KeyRemoteAPIKey))

	_, err = v.Get(KeyRemoteAPIKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVaultLookup(t *testing.T) {
	v := NewVault(keyring.NewArrayKeyring([]keyring.Item{
		{Key: KeyTheme, Data: []byte("dark")},
	}))

	value, ok, err := v.Lookup(KeyTheme)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", value)

	_, ok, err = v.Lookup(KeySession)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVaultDeleteMissing(t *testing.T) {
	v := NewVault(keyring.NewArrayKeyring(nil))
	assert.NoError(t, v.Delete("absent"))
}

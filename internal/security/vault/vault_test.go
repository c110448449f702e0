package vault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New("local-dev-key")
	require.NoError(t, err)

	plaintext := []byte(`{"password":"s3cret","host":"web01"}`)
	blob, err := v.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotContains(t, string(blob), "s3cret")

	got, err := v.Decrypt(blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptRejectsTamperedPayload(t *testing.T) {
	v, err := New("local-dev-key")
	require.NoError(t, err)

	blob, err := v.Encrypt([]byte("hello"))
	require.NoError(t, err)

	other, err := New("different-key")
	require.NoError(t, err)

	_, err = other.Decrypt(blob)
	require.ErrorIs(t, err, ErrDecryption)

	_, err = v.Decrypt([]byte("not-json"))
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("   ")
	require.ErrorIs(t, err, ErrInvalidKey)
}

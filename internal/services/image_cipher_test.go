package services

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"
)

func testCipher(t *testing.T) *ImageCipher {
	t.Helper()
	c, err := NewImageCipher(bytes.Repeat([]byte{0x42}, KeySize))
	require.NoError(t, err)
	return c
}

func TestImageCipher_roundTrip(t *testing.T) {
	c := testCipher(t)
	plaintext := []byte("jpeg bytes go here")

	sealed, err := c.Seal(plaintext)
	require.NoError(t, err)
	require.Len(t, sealed, SealedOverhead+len(plaintext))

	opened, err := c.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestImageCipher_layoutIsNonceTagCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, KeySize)
	c, err := NewImageCipher(key)
	require.NoError(t, err)
	plaintext := []byte("layout check")

	sealed, err := c.Seal(plaintext)
	require.NoError(t, err)

	nonce := sealed[:chacha20poly1305.NonceSizeX]
	tag := sealed[chacha20poly1305.NonceSizeX:SealedOverhead]
	ct := sealed[SealedOverhead:]

	aead, err := chacha20poly1305.NewX(key)
	require.NoError(t, err)
	opened, err := aead.Open(nil, nonce, append(append([]byte{}, ct...), tag...), imageAAD)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestImageCipher_freshNoncePerSeal(t *testing.T) {
	c := testCipher(t)
	a, err := c.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := c.Seal([]byte("same"))
	require.NoError(t, err)

	require.NotEqual(t, a[:chacha20poly1305.NonceSizeX], b[:chacha20poly1305.NonceSizeX])
	require.NotEqual(t, a, b)
}

func TestImageCipher_rejectsTampering(t *testing.T) {
	c := testCipher(t)
	sealed, err := c.Seal([]byte("do not touch"))
	require.NoError(t, err)

	for _, i := range []int{0, chacha20poly1305.NonceSizeX, len(sealed) - 1} {
		tampered := append([]byte{}, sealed...)
		tampered[i] ^= 0xff
		_, err := c.Open(tampered)
		require.Error(t, err, "byte %d", i)
	}

	_, err = c.Open(sealed[:SealedOverhead-1])
	require.ErrorIs(t, err, errSealedTooShort)

	other, err := NewImageCipher(bytes.Repeat([]byte{0x43}, KeySize))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	require.Error(t, err)
}

func TestParseKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, KeySize)

	t.Run("hex", func(t *testing.T) {
		key, generated, err := ParseKey(hex.EncodeToString(raw))
		require.NoError(t, err)
		require.False(t, generated)
		require.Equal(t, raw, key)
	})

	t.Run("base64", func(t *testing.T) {
		key, generated, err := ParseKey(base64.StdEncoding.EncodeToString(raw))
		require.NoError(t, err)
		require.False(t, generated)
		require.Equal(t, raw, key)
	})

	t.Run("passphrase is deterministic", func(t *testing.T) {
		a, generated, err := ParseKey("correct horse battery staple")
		require.NoError(t, err)
		require.False(t, generated)
		require.Len(t, a, KeySize)

		b, _, err := ParseKey("  correct horse battery staple  ")
		require.NoError(t, err)
		require.Equal(t, a, b)

		c, _, err := ParseKey("a different passphrase")
		require.NoError(t, err)
		require.NotEqual(t, a, c)
	})

	t.Run("empty generates random", func(t *testing.T) {
		a, generated, err := ParseKey("")
		require.NoError(t, err)
		require.True(t, generated)
		require.Len(t, a, KeySize)

		b, _, err := ParseKey("")
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("64 chars of non-hex is a passphrase", func(t *testing.T) {
		key, generated, err := ParseKey(string(bytes.Repeat([]byte{'z'}, 64)))
		require.NoError(t, err)
		require.False(t, generated)
		require.Len(t, key, KeySize)
	})
}

func TestChecksum(t *testing.T) {
	sum := Checksum([]byte("abc"))
	require.Len(t, sum, 64)
	require.Equal(t, sum, Checksum([]byte("abc")))
	require.NotEqual(t, sum, Checksum([]byte("abd")))
}

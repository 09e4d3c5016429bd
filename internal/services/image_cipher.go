package services

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the image encryption key size in bytes.
const KeySize = chacha20poly1305.KeySize

// SealedOverhead is nonce plus Poly1305 tag.
const SealedOverhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// imageAAD binds every ciphertext to this storage format. Changing it
// makes every stored image unreadable.
var imageAAD = []byte("gatehouse-capture-image-v1")

var hkdfInfoImageKey = []byte("gatehouse.image.key.v1")

var errSealedTooShort = errors.New("sealed image shorter than nonce and tag")

// ImageCipher encrypts image bytes with XChaCha20-Poly1305.
//
// Sealed layout:
//
//	[nonce: 24 bytes] [tag: 16 bytes] [ciphertext: N bytes]
type ImageCipher struct {
	aead cipher.AEAD
}

func NewImageCipher(key []byte) (*ImageCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create XChaCha20-Poly1305 cipher: %w", err)
	}
	return &ImageCipher{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (c *ImageCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// Seal yields ciphertext||tag; the stored layout puts the tag first.
	sealed := c.aead.Seal(nil, nonce, plaintext, imageAAD)
	ctLen := len(sealed) - chacha20poly1305.Overhead

	out := make([]byte, 0, SealedOverhead+ctLen)
	out = append(out, nonce...)
	out = append(out, sealed[ctLen:]...)
	out = append(out, sealed[:ctLen]...)
	return out, nil
}

// Open authenticates and decrypts a value produced by Seal.
func (c *ImageCipher) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < SealedOverhead {
		return nil, errSealedTooShort
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	tag := sealed[chacha20poly1305.NonceSizeX:SealedOverhead]
	ct := sealed[SealedOverhead:]

	joined := make([]byte, 0, len(ct)+len(tag))
	joined = append(joined, ct...)
	joined = append(joined, tag...)

	plaintext, err := c.aead.Open(nil, nonce, joined, imageAAD)
	if err != nil {
		return nil, fmt.Errorf("authenticate image: %w", err)
	}
	return plaintext, nil
}

// Checksum returns the hex BLAKE3-256 digest of data.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ParseKey turns the configured key into KeySize bytes. It accepts 64
// hex characters or standard base64 of 32 bytes; anything else is a
// passphrase stretched with HKDF-SHA256. An empty value yields a random
// key and generated=true.
func ParseKey(raw string) (key []byte, generated bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		key = make([]byte, KeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, false, fmt.Errorf("generate key: %w", err)
		}
		return key, true, nil
	}

	if len(raw) == hex.EncodedLen(KeySize) {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded, false, nil
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) == KeySize {
		return decoded, false, nil
	}

	reader := hkdf.New(sha256.New, []byte(raw), nil, hkdfInfoImageKey)
	key = make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, false, fmt.Errorf("derive key: %w", err)
	}
	return key, false, nil
}

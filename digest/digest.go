package digest

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Sizes are multiples of 3 so the base64 forms never carry padding.
const (
	Size             = 24 // digest bytes
	NonceSize        = 12 // nonce bytes
	EncodedSize      = Size / 3 * 4
	EncodedNonceSize = NonceSize / 3 * 4
)

// Sum hashes the parts joined by ':' and returns the raw digest.
func Sum(parts ...string) []byte {
	h, _ := blake2b.New(Size, nil)
	h.Write([]byte(strings.Join(parts, ":")))
	return h.Sum(nil)
}

// SumHex is Sum rendered as lower-case hex. HA1 and HA2 use this form.
func SumHex(parts ...string) string {
	return hex.EncodeToString(Sum(parts...))
}

// Keyed hashes the parts joined by ':' using secret as the BLAKE2b key.
// Secrets longer than the 64 byte key limit are first reduced with Sum.
func Keyed(secret string, parts ...string) []byte {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		key = Sum(secret)
	}
	h, err := blake2b.New(Size, key)
	if err != nil {
		panic(err)
	}
	h.Write([]byte(strings.Join(parts, ":")))
	return h.Sum(nil)
}

// Encode returns the base64 form of b.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Nonce returns a fresh base64 token of EncodedNonceSize characters.
func Nonce() (string, error) {
	b := make([]byte, NonceSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return Encode(b), nil
}

// Equal compares two encoded tokens in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

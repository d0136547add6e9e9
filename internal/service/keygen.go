package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const refidCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	keySegments    = 4
	keySegmentSize = 4 // random bytes per segment, rendered as 8 hex chars
	refidLength    = 16
)

// GenerateKey produces a licence key of the form
// XXXXXXXX-XXXXXXXX-XXXXXXXX-XXXXXXXX: four independent 4-byte
// cryptographically random values, hex encoded and upper-cased. Uniqueness is
// ultimately enforced by the database constraint, not here.
func GenerateKey() (string, error) {
	segments := make([]string, keySegments)
	for i := range segments {
		b := make([]byte, keySegmentSize)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		segments[i] = hex.EncodeToString(b)
	}
	return strings.ToUpper(strings.Join(segments, "-")), nil
}

// GenerateRefid produces the 16-character public-facing reference identifier.
func GenerateRefid() (string, error) {
	return randomString(refidLength, refidCharset)
}

func randomString(length int, charset string) (string, error) {
	b := make([]byte, length)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[num.Int64()]
	}
	return string(b), nil
}

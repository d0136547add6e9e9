package service

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"keyforge/internal/models"
)

// SignVerification generates a JWT over a successful verification so clients
// can hold a signed proof of validity for offline checks.
func SignVerification(privateKeyBase64 string, licence *models.Licence) (string, error) {
	if privateKeyBase64 == "" {
		return "", fmt.Errorf("private key is empty")
	}

	privateKeyBytes, err := base64.StdEncoding.DecodeString(privateKeyBase64)
	if err != nil {
		return "", fmt.Errorf("failed to decode private key: %w", err)
	}

	if len(privateKeyBytes) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("invalid private key size: %d", len(privateKeyBytes))
	}

	privateKey := ed25519.PrivateKey(privateKeyBytes)

	claims := jwt.MapClaims{
		"sub":     licence.Key,
		"iss":     "keyforge",
		"refid":   licence.Refid,
		"product": licence.ProductID.String(),
		"iat":     time.Now().Unix(),
	}

	if licence.ExpiresAt != nil {
		claims["exp"] = licence.ExpiresAt.Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

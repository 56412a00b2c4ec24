package vonage

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL bounds how long an application JWT is accepted.
const DefaultTokenTTL = 15 * time.Minute

// Claims is the application token shape the platform accepts for
// authenticated media fetches.
type Claims struct {
	jwt.RegisteredClaims

	ApplicationID string `json:"application_id"`
}

// TokenSigner issues RS256 application JWTs from the application private key.
type TokenSigner struct {
	applicationID string
	key           *rsa.PrivateKey
	ttl           time.Duration
}

func NewTokenSigner(applicationID string, privateKeyPEM []byte) (*TokenSigner, error) {
	if applicationID == "" {
		return nil, errors.New("VONAGE_APPLICATION_ID is required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("vonage: parse private key: %w", err)
	}
	return &TokenSigner{applicationID: applicationID, key: key, ttl: DefaultTokenTTL}, nil
}

// LoadTokenSigner reads the private key from path.
func LoadTokenSigner(applicationID, path string) (*TokenSigner, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vonage: read private key: %w", err)
	}
	return NewTokenSigner(applicationID, pem)
}

func (s *TokenSigner) Sign(now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		ApplicationID: s.applicationID,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return t.SignedString(s.key)
}

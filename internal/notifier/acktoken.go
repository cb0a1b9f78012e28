package notifier

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ackTokenTTL bounds how long a notification's acknowledgement link
// stays valid.
const ackTokenTTL = 7 * 24 * time.Hour

// AckClaims are the claims carried by a signed acknowledgement token.
type AckClaims struct {
	EventID string `json:"event_id"`
	jwt.RegisteredClaims
}

// AckTokenService signs and verifies acknowledgement-URL tokens so the
// ack endpoint can trust the event id without a session.
type AckTokenService struct {
	secret []byte
}

// NewAckTokenService creates a token service with the shared secret.
func NewAckTokenService(secret string) *AckTokenService {
	return &AckTokenService{secret: []byte(secret)}
}

// Issue signs a token for the given event id.
func (s *AckTokenService) Issue(eventID string, now time.Time) (string, error) {
	claims := AckClaims{
		EventID: eventID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "opswatch",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ackTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign ack token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the event id it was issued for.
func (s *AckTokenService) Verify(tokenString string) (string, error) {
	claims := &AckClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse ack token: %w", err)
	}
	if !token.Valid || claims.EventID == "" {
		return "", fmt.Errorf("invalid ack token")
	}
	return claims.EventID, nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSession = errors.New("invalid payment session token")

// SessionSigner mints and verifies the short-lived token that binds a
// hosted payment page to one order. The charge endpoint refuses requests
// whose token does not name the order being charged.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewSessionSigner(secret string, ttl time.Duration) *SessionSigner {
	return &SessionSigner{secret: []byte(secret), ttl: ttl}
}

type sessionClaims struct {
	OrderID   int64  `json:"order_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Issue creates a signed session token for the given order.
func (s *SessionSigner) Issue(sessionID string, orderID int64) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		OrderID:   orderID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("order:%d", orderID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the token signature and expiry and returns the order it
// authorizes.
func (s *SessionSigner) Verify(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.OrderID <= 0 {
		return 0, ErrInvalidSession
	}
	return claims.OrderID, nil
}

// Package auth issues and verifies bearer tokens and owns the credential
// rules for signup, login and password changes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/copassenger-api/internal/normalize"
)

var (
	// ErrInvalidToken covers bad signatures, unknown keys and expired tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMalformedToken is input that is not a JWT at all.
	ErrMalformedToken = errors.New("malformed token")
)

// JWTManager signs and validates JWT tokens used by the API. With several
// keys configured, new tokens are signed with the active key and carry its
// id in the "kid" header; tokens signed with any configured key still verify.
type JWTManager struct {
	keys      map[string][]byte // kid -> HMAC secret
	activeKid string            // "" means a single unnamed key
	duration  time.Duration     // token validity, 24h by default
}

// Claims is the custom JWT payload.
type Claims struct {
	UserID               string `json:"user_id"` // MongoDB ObjectID as hex
	Email                string `json:"email"`
	FullName             string `json:"full_name"`
	Role                 string `json:"role"`
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt
}

// NewJWTManager returns a manager with a single secret.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		keys:     map[string][]byte{"": []byte(secretKey)},
		duration: duration,
	}
}

// NewJWTManagerFromKeys returns a manager that signs with keys[activeKid]
// and accepts tokens signed by any key in keys.
func NewJWTManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *JWTManager {
	m := &JWTManager{keys: make(map[string][]byte, len(keys)), activeKid: activeKid, duration: duration}
	for kid, secret := range keys {
		m.keys[kid] = []byte(secret)
	}
	return m
}

// Duration reports how long issued tokens stay valid.
func (m *JWTManager) Duration() time.Duration { return m.duration }

// GenerateToken issues a signed token for a user.
func (m *JWTManager) GenerateToken(userID bson.ObjectID, email, fullName, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.duration)

	claims := &Claims{
		UserID:   userID.Hex(),
		Email:    normalize.Email(email), // claims always carry the canonical address
		FullName: fullName,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	secret, ok := m.keys[m.activeKid]
	if !ok {
		return "", time.Time{}, fmt.Errorf("signing key %q not configured", m.activeKid)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKid != "" {
		token.Header["kid"] = m.activeKid
	}

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims. It
// returns ErrMalformedToken or ErrInvalidToken, never a panic.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// keyFunc picks the secret named by the kid header, or the active key for
// tokens without one.
func (m *JWTManager) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		kid = m.activeKid
	}
	secret, ok := m.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return secret, nil
}

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestHashAndCheckPassword(t *testing.T) {
	pwd := "s3cr3t-password"
	hash, err := HashPassword(pwd)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if err := CheckPassword(hash, pwd); err != nil {
		t.Fatalf("CheckPassword failed when password should match: %v", err)
	}

	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatal("CheckPassword succeeded when it should have failed")
	}

	// same input, different salt
	hash2, _ := HashPassword(pwd)
	if hash == hash2 {
		t.Fatal("expected distinct hashes for the same password")
	}
}

func TestJWTManager_GenerateAndVerify(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	id := bson.NewObjectID()
	token, exp, err := m.GenerateToken(id, "test@example.com", "Test User", "USER")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %v", exp)
	}

	claims, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}

	if claims.UserID != id.Hex() || claims.Email != "test@example.com" || claims.FullName != "Test User" || claims.Role != "USER" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestJWTManager_NormalizeEmailClaim(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	token, _, err := m.GenerateToken(bson.NewObjectID(), "User.Case@Example.COM", "U", "USER")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}

	if claims.Email != "user.case@example.com" {
		t.Fatalf("expected normalized email in claims, got %s", claims.Email)
	}
}

func TestJWTManager_RejectsTamperedAndForeign(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)
	token, _, err := m.GenerateToken(bson.NewObjectID(), "a@example.com", "A", "USER")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	// swap the payload for one claiming admin rights, keep the signature
	parts := strings.Split(token, ".")
	forged, _, _ := NewJWTManager("other", time.Minute).GenerateToken(bson.NewObjectID(), "a@example.com", "A", "ADMIN")
	tampered := parts[0] + "." + strings.Split(forged, ".")[1] + "." + parts[2]
	if _, err := m.VerifyToken(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token: expected ErrInvalidToken, got %v", err)
	}

	// signed with a different secret
	if _, err := m.VerifyToken(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token: expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)
	token, _, err := m.GenerateToken(bson.NewObjectID(), "a@example.com", "A", "USER")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := m.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestJWTManager_Malformed(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute)
	for _, in := range []string{"", "not-a-token", "a.b", "...."} {
		if _, err := m.VerifyToken(in); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("VerifyToken(%q): expected ErrMalformedToken, got %v", in, err)
		}
	}
}

func TestJWTManager_RejectsOtherAlgorithms(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute)
	claims := &Claims{UserID: bson.NewObjectID().Hex(), RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for alg none, got %v", err)
	}
}

func TestJWTManager_Rotation(t *testing.T) {
	// create a manager with two keys and active kid "k2"
	keys := map[string]string{"k1": "secret-one", "k2": "secret-two"}
	m := NewJWTManagerFromKeys(keys, "k2", 5*time.Minute)

	id := bson.NewObjectID()

	tkn2, _, err := m.GenerateToken(id, "rot@example.com", "R", "USER")
	if err != nil {
		t.Fatalf("GenerateToken (k2) failed: %v", err)
	}
	if _, err := m.VerifyToken(tkn2); err != nil {
		t.Fatalf("VerifyToken (k2) failed: %v", err)
	}

	// a token issued while k1 was active still verifies after rotation
	mOld := NewJWTManagerFromKeys(keys, "k1", 5*time.Minute)
	tkn1, _, err := mOld.GenerateToken(id, "rot@example.com", "R", "USER")
	if err != nil {
		t.Fatalf("GenerateToken (k1) failed: %v", err)
	}
	if _, err := m.VerifyToken(tkn1); err != nil {
		t.Fatalf("VerifyToken (old k1) failed: %v", err)
	}

	// once k1 is retired its tokens are rejected
	retired := NewJWTManagerFromKeys(map[string]string{"k2": "secret-two"}, "k2", 5*time.Minute)
	if _, err := retired.VerifyToken(tkn1); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("retired key: expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTManager_UnknownActiveKid(t *testing.T) {
	m := NewJWTManagerFromKeys(map[string]string{"k1": "s"}, "k9", time.Minute)
	if _, _, err := m.GenerateToken(bson.NewObjectID(), "a@example.com", "A", "USER"); err == nil {
		t.Fatal("expected error for unknown active kid")
	}
}

// ABOUTME: Unit tests for JWT token issuing and verification
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens and claim validation

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-jwt-signing")

func TestJWTIssuer_ValidToken(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	token, err := issuer.Issue(42, "ana@example.com")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	id, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if id.UserID != 42 {
		t.Errorf("Verify() user = %d, want 42", id.UserID)
	}
	if id.Email != "ana@example.com" {
		t.Errorf("Verify() email = %q, want %q", id.Email, "ana@example.com")
	}
}

func TestJWTIssuer_InvalidToken(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				token, _ := NewJWTIssuer([]byte("different-secret"), time.Hour).Issue(1, "")
				return token
			}(),
		},
		{
			name: "non-numeric subject",
			token: func() string {
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					"sub": "principal-abc",
					"exp": time.Now().Add(time.Hour).Unix(),
				}).SignedString(testSecret)
				return token
			}(),
		},
		{
			name: "none algorithm",
			token: func() string {
				token, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
					"sub": "1",
				}).SignedString(jwt.UnsafeAllowNoneSignatureType)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token)
			if err == nil {
				t.Fatal("Verify() should fail")
			}
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTIssuer_MissingSubject(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "ana@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	_, err = issuer.Verify(token)
	if !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
	}
}

func TestJWTIssuer_ExpiredToken(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Minute)
	issued := time.Now()
	issuer.now = func() time.Time { return issued }

	token, err := issuer.Issue(7, "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	issuer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = issuer.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTIssuer_DefaultTTL(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, 0)
	if issuer.ttl != DefaultTokenTTL {
		t.Errorf("ttl = %v, want %v", issuer.ttl, DefaultTokenTTL)
	}
}

func TestJWTIssuer_DifferentUsers(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, time.Hour)

	for _, userID := range []int64{1, 2, 1 << 40} {
		token, err := issuer.Issue(userID, "")
		if err != nil {
			t.Fatalf("Issue(%d) error = %v", userID, err)
		}
		id, err := issuer.Verify(token)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if id.UserID != userID {
			t.Errorf("Verify() user = %d, want %d", id.UserID, userID)
		}
	}
}

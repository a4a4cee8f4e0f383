package jwt

import (
	"errors"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"sn-sync/backend/config"
)

const testSecret = "test-secret-key-for-unit-testing-2026"

func newTestManager() *Manager {
	return NewManager(&config.AuthConfig{JWTSecret: testSecret})
}

func sign(t *testing.T, method jwtv5.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	token, err := jwtv5.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("签名失败: %v", err)
	}
	return token
}

func validClaims(ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		UserID:     "user-1",
		Role:       "super_admin",
		EmployeeID: "1001",
		TokenType:  "access",
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        "jti-1",
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestParseToken_Valid(t *testing.T) {
	m := newTestManager()
	token := sign(t, jwtv5.SigningMethodHS256, []byte(testSecret), validClaims(15*time.Minute))

	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken 失败: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("期望 UserID=user-1，实际=%s", claims.UserID)
	}
	if claims.Role != "super_admin" {
		t.Errorf("期望 Role=super_admin，实际=%s", claims.Role)
	}
	if claims.EmployeeID != "1001" {
		t.Errorf("期望 EmployeeID=1001，实际=%s", claims.EmployeeID)
	}
}

func TestParseToken_Expired(t *testing.T) {
	m := newTestManager()
	token := sign(t, jwtv5.SigningMethodHS256, []byte(testSecret), validClaims(-time.Minute))

	_, err := m.ParseToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("期望 ErrTokenExpired，实际=%v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	m := newTestManager()
	token := sign(t, jwtv5.SigningMethodHS256, []byte("another-secret-key-0000000"), validClaims(time.Minute))

	_, err := m.ParseToken(token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("期望 ErrTokenInvalid，实际=%v", err)
	}
}

func TestParseToken_RejectsRefreshToken(t *testing.T) {
	m := newTestManager()
	claims := validClaims(time.Minute)
	claims.TokenType = "refresh"
	token := sign(t, jwtv5.SigningMethodHS256, []byte(testSecret), claims)

	if _, err := m.ParseToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("期望 ErrTokenInvalid，实际=%v", err)
	}
}

func TestParseToken_RequiresExpiry(t *testing.T) {
	m := newTestManager()
	claims := validClaims(time.Minute)
	claims.ExpiresAt = nil
	token := sign(t, jwtv5.SigningMethodHS256, []byte(testSecret), claims)

	if _, err := m.ParseToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("期望 ErrTokenInvalid，实际=%v", err)
	}
}

func TestParseToken_Garbage(t *testing.T) {
	m := newTestManager()
	if _, err := m.ParseToken("not.a.token"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("期望 ErrTokenInvalid，实际=%v", err)
	}
}

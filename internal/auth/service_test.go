package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(jwtConfig)
}

func TestIssueToken_RejectsBlankUserID(t *testing.T) {
	svc := newTestAuthService(t)

	if _, err := svc.IssueToken("   ", "Asha"); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestIssueAndValidate(t *testing.T) {
	svc := newTestAuthService(t)

	token, err := svc.IssueToken("u1", "Asha")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Identity() != "u1" || claims.Name != "Asha" || claims.Subject != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateToken_RejectsForeignSecretAndIssuer(t *testing.T) {
	svc := newTestAuthService(t)

	other := NewService(&JWTConfig{Secret: []byte("other"), Issuer: "test", Audience: "test", TTL: time.Hour})
	token, _ := other.IssueToken("u1", "")
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expected signature error")
	}

	wrongIssuer := NewService(&JWTConfig{Secret: []byte("test-secret-change-me"), Issuer: "elsewhere", Audience: "test", TTL: time.Hour})
	token, _ = wrongIssuer.IssueToken("u1", "")
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expected issuer error")
	}
}

func TestValidateToken_AcceptsSubjectOnly(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s")}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u9",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Identity() != "u9" {
		t.Fatalf("expected subject fallback, got %q", claims.Identity())
	}
}

func TestInspect(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("unknown-to-client"), TTL: time.Hour}
	token, err := GenerateToken(cfg, "u1", "Asha")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := Inspect(token, time.Now())
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if claims.Identity() != "u1" {
		t.Fatalf("unexpected identity %q", claims.Identity())
	}

	if _, err := Inspect(token, time.Now().Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := Inspect("not-a-jwt", time.Now()); err == nil {
		t.Fatal("expected decode error")
	}
}

package services

import (
	"testing"

	"github.com/regscout/regscout-backend/internal/platform/logger"
)

func newTestAuth(t *testing.T) AuthService {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	auth, err := NewAuthService(logger.NewNop())
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return auth
}

func TestFingerprintTokenRoundTrip(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.IssueFingerprintToken("visitor-abc123")
	if err != nil {
		t.Fatalf("IssueFingerprintToken: %v", err)
	}

	claims, err := auth.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.Fingerprint != "visitor-abc123" || claims.IsAdmin || claims.Code != "" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.IssueAdminToken("RS-ADMIN123", "visitor-abc123")
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}

	claims, err := auth.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !claims.IsAdmin || claims.Code != "RS-ADMIN123" || claims.Fingerprint != "visitor-abc123" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestDecodeRejectsTamperedToken(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.IssueFingerprintToken("visitor-abc123")
	if err != nil {
		t.Fatalf("IssueFingerprintToken: %v", err)
	}

	if _, err := auth.Decode(token + "x"); err == nil {
		t.Fatal("Decode accepted a tampered token")
	}
	if _, err := auth.Decode("not-a-token"); err == nil {
		t.Fatal("Decode accepted garbage")
	}
}

func TestDecodeRejectsForeignSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret-a")
	authA, err := NewAuthService(logger.NewNop())
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	token, err := authA.IssueFingerprintToken("visitor-abc123")
	if err != nil {
		t.Fatalf("IssueFingerprintToken: %v", err)
	}

	t.Setenv("JWT_SECRET", "secret-b")
	authB, err := NewAuthService(logger.NewNop())
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	if _, err := authB.Decode(token); err == nil {
		t.Fatal("Decode accepted a token signed with a different secret")
	}
}

func TestNewAuthServiceRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := NewAuthService(logger.NewNop()); err == nil {
		t.Fatal("NewAuthService succeeded without JWT_SECRET")
	}
}

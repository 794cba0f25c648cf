package auth

import (
	"testing"
	"time"

	"github.com/communityfix/maintenance-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("round-trip-secret")

	signed, err := tm.GenerateToken("user-1", domain.RoleTechnician, "c-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := tm.ParseToken(signed)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", claims.UserID)
	}
	if claims.Role != domain.RoleTechnician {
		t.Errorf("Role = %q, want technician", claims.Role)
	}
	if claims.CommunityID != "c-1" {
		t.Errorf("CommunityID = %q, want c-1", claims.CommunityID)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenManager("issuer-secret")
	verifier := NewTokenManager("other-secret")

	signed, err := issuer.GenerateToken("user-1", domain.RoleResident, "c-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := verifier.ParseToken(signed); err == nil {
		t.Fatal("expected verification failure with a different secret")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("expired-secret")

	signed, err := tm.GenerateToken("user-1", domain.RoleManager, "c-1", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := tm.ParseToken(signed); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

package auth

import (
	"slices"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens, err := NewTokens("test-secret", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}

	signed, expiresAt, err := tokens.Issue("user-42", []string{"Admin", "student", "admin"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}

	claims, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if !slices.Contains(claims.Roles, "admin") || !slices.Contains(claims.Roles, "student") {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles were not deduplicated: %v", claims.Roles)
	}
}

func TestTokenExpiry(t *testing.T) {
	current := time.Now().UTC()
	tokens, err := NewTokens("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	tokens.WithClock(func() time.Time { return current })

	signed, _, err := tokens.Issue("user-1", []string{"student"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := tokens.Verify(signed); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	a, _ := NewTokens("secret-a", time.Minute)
	b, _ := NewTokens("secret-b", time.Minute)

	signed, _, err := a.Issue("user-1", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(signed); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokensRequireSecret(t *testing.T) {
	if _, err := NewTokens("  ", time.Minute); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

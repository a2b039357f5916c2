package auth

import (
	"testing"
	"time"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	address := "0:1111111111111111111111111111111111111111111111111111111111111111"

	token, err := GenerateToken(address, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Address != address {
		t.Errorf("Address = %q, want %q", claims.Address, address)
	}
	if claims.Issuer != "otcdesk" {
		t.Errorf("Issuer = %q", claims.Issuer)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("0:abc", "secret-a", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseToken("secret-b", token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestParseTokenExpired(t *testing.T) {
	token, err := GenerateToken("0:abc", "secret", time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseToken("secret", token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestParseTokenGarbage(t *testing.T) {
	if _, err := ParseToken("secret", "not-a-jwt"); err == nil {
		t.Error("expected error for malformed token")
	}
}

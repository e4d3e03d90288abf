package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/trackbeam/trackbeam-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "trackbeam-test",
		ExpirationMinutes: 60,
	}
}

func TestMintAndParseOperatorToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()

	signed, err := MintOperatorToken(cfg, now, "ops@example.com")
	if err != nil {
		t.Fatalf("MintOperatorToken: %v", err)
	}
	claims, err := ParseOperatorToken(cfg, signed)
	if err != nil {
		t.Fatalf("ParseOperatorToken: %v", err)
	}
	if claims.Subject != "ops@example.com" {
		t.Fatalf("expected subject ops@example.com, got %q", claims.Subject)
	}
	if claims.Role != RoleOperator {
		t.Fatalf("expected role %q, got %q", RoleOperator, claims.Role)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
}

func TestParseOperatorTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	signed, err := MintOperatorToken(cfg, time.Now().Add(-2*time.Hour), "ops@example.com")
	if err != nil {
		t.Fatalf("MintOperatorToken: %v", err)
	}
	if _, err := ParseOperatorToken(cfg, signed); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseOperatorTokenRejectsWrongIssuer(t *testing.T) {
	mintCfg := testJWTConfig()
	signed, err := MintOperatorToken(mintCfg, time.Now(), "ops@example.com")
	if err != nil {
		t.Fatalf("MintOperatorToken: %v", err)
	}
	parseCfg := mintCfg
	parseCfg.Issuer = "someone-else"
	if _, err := ParseOperatorToken(parseCfg, signed); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestParseOperatorTokenRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	signed, err := MintOperatorToken(cfg, time.Now(), "ops@example.com")
	if err != nil {
		t.Fatalf("MintOperatorToken: %v", err)
	}
	bad := cfg
	bad.Secret = "other-secret"
	if _, err := ParseOperatorToken(bad, signed); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
	if !strings.Contains(signed, ".") {
		t.Fatal("expected a compact jwt")
	}
}

func TestMintOperatorTokenRequiresSubject(t *testing.T) {
	if _, err := MintOperatorToken(testJWTConfig(), time.Now(), ""); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

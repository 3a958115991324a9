package auth

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, "0xAbCd000000000000000000000000000000000001", 2*time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Address != "0xabcd000000000000000000000000000000000001" {
		t.Fatalf("expected lowercase address claim, got %q", claims.Address)
	}
	if claims.Exp-claims.IssuedAt != 7200 {
		t.Fatalf("expected 2h validity, got %d seconds", claims.Exp-claims.IssuedAt)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, "0xabc", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(secret, issued); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issued, err := IssueToken([]byte("secret"), "0xabc", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken([]byte("other"), issued); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsTamperedPayload(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, "0xabc", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	parts := strings.Split(issued, ".")
	tampered := parts[0][:len(parts[0])-2] + "AA." + parts[1]
	if _, err := ParseToken(secret, tampered); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsMalformedStructure(t *testing.T) {
	for _, token := range []string{"", "justonepart", "a.b.c", "!!!.???"} {
		if _, err := ParseToken([]byte("secret"), token); err != ErrInvalidToken {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("password stored in the clear")
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token := issuer.Issue("alice")
	username, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if username != "alice" {
		t.Errorf("username = %q, want alice", username)
	}
}

func TestTokenIssuerDefaultTTL(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 0)
	if issuer.ttl != 24*time.Hour {
		t.Errorf("ttl = %v, want 24h default for zero", issuer.ttl)
	}

	// A negative ttl is deliberate (pre-expired tokens) and must be kept.
	issuer = NewTokenIssuer("test-secret", -time.Minute)
	if issuer.ttl != -time.Minute {
		t.Errorf("ttl = %v, want -1m preserved", issuer.ttl)
	}
}

func TestTokenExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token := issuer.Issue("alice")
	if _, err := issuer.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("secret-a", time.Hour)
	other := NewTokenIssuer("secret-b", time.Hour)

	token := issuer.Issue("alice")
	if _, err := other.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenTampered(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token := issuer.Issue("alice")
	_, sig, _ := strings.Cut(token, ".")
	forged := "Ym9ifDk5OTk5OTk5OTk." + sig
	if _, err := issuer.Verify(forged); err == nil {
		t.Error("tampered payload accepted")
	}
}

func TestTokenMalformed(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	for _, token := range []string{"", "no-dot", "a.b.c", "!!!.sig"} {
		if _, err := issuer.Verify(token); err == nil {
			t.Errorf("Verify(%q) accepted", token)
		}
	}
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	if _, ok := s.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}

	s.Set(ctx, "some email text", []byte(`{"label":"Phishing"}`))
	got, ok := s.Get(ctx, "some email text")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(got) != `{"label":"Phishing"}` {
		t.Errorf("got %q", got)
	}
}

func TestMemoryStore_ExactKeySemantics(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	s.Set(ctx, "Visit https://example.com", []byte("a"))

	// Case and whitespace variants must miss: keys are the raw text.
	variants := []string{
		"visit https://example.com",
		"Visit https://example.com ",
		" Visit https://example.com",
	}
	for _, v := range variants {
		if _, ok := s.Get(ctx, v); ok {
			t.Errorf("variant %q should miss the cache", v)
		}
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(mr.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, ok := s.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}

	s.Set(ctx, "scan me", []byte("payload"))
	got, ok := s.Get(ctx, "scan me")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(got) != "payload" {
		t.Errorf("got %q, want %q", got, "payload")
	}
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(mr.Addr(), time.Second)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	s.Set(ctx, "ephemeral", []byte("x"))

	mr.FastForward(2 * time.Second)

	if _, ok := s.Get(ctx, "ephemeral"); ok {
		t.Error("entry should have expired")
	}
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	if _, err := NewRedisStore("127.0.0.1:1", time.Minute); err == nil {
		t.Error("expected connection error for closed port")
	}
}

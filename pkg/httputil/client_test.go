package httputil

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestClientSingleton(t *testing.T) {
	c1 := Client(TierMedium)
	c2 := Client(TierMedium)

	if c1 != c2 {
		t.Error("Client() should return the same instance for same tier")
	}

	fast := Client(TierFast)
	slow := Client(TierSlow)

	if fast == slow {
		t.Error("Different tiers should return different clients")
	}
}

func TestClientTimeouts(t *testing.T) {
	tests := []struct {
		tier    TimeoutTier
		want    time.Duration
		getFunc func() *http.Client
	}{
		{TierFast, 5 * time.Second, FastClient},
		{TierMedium, 30 * time.Second, MediumClient},
		{TierSlow, 60 * time.Second, SlowClient},
	}

	for _, tt := range tests {
		c := tt.getFunc()
		if c.Timeout != tt.want {
			t.Errorf("Tier %d: got timeout %v, want %v", tt.tier, c.Timeout, tt.want)
		}
	}
}

func TestReadResponseBody_Limit(t *testing.T) {
	payload := strings.Repeat("x", 100)
	body, err := ReadResponseBody(bytes.NewBufferString(payload), 10)
	if err != nil {
		t.Fatalf("ReadResponseBody failed: %v", err)
	}
	if len(body) != 10 {
		t.Errorf("got %d bytes, want 10 (limited)", len(body))
	}
}

func TestReadResponseBody_DefaultLimit(t *testing.T) {
	body, err := ReadResponseBody(bytes.NewBufferString("hello"), 0)
	if err != nil {
		t.Fatalf("ReadResponseBody failed: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("got %q, want %q", body, "hello")
	}
}

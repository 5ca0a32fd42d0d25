package ml

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestRuleEngine_TrustedDomain(t *testing.T) {
	e := NewRuleEngine()

	report := e.Scan("Please sign in at https://google.com/login to continue")
	if !report.Trusted {
		t.Error("google.com should be trusted")
	}
	if len(report.Findings) != 0 {
		t.Errorf("trusted candidate should produce no findings, got %v", report.Findings)
	}
	if report.Adjustment != 0 {
		t.Errorf("Adjustment = %v, want 0", report.Adjustment)
	}
}

func TestRuleEngine_TrustedSubdomain(t *testing.T) {
	e := NewRuleEngine()

	report := e.Scan("Go to accounts.google.com for settings")
	if !report.Trusted {
		t.Error("subdomains of trusted entries should be trusted")
	}
}

func TestRuleEngine_IPLiteral(t *testing.T) {
	e := NewRuleEngine()

	report := e.Scan("Update your details at http://192.168.1.1/login now")
	if report.Trusted {
		t.Error("IP destination must not be trusted")
	}
	if report.CriticalFlags != 1 {
		t.Errorf("CriticalFlags = %d, want 1", report.CriticalFlags)
	}
	if report.Adjustment != ipLiteralAdjustment {
		t.Errorf("Adjustment = %v, want %v", report.Adjustment, ipLiteralAdjustment)
	}
	if len(report.Findings) != 1 {
		t.Fatalf("Findings = %v, want exactly one", report.Findings)
	}
}

func TestRuleEngine_RiskyTLD(t *testing.T) {
	e := NewRuleEngine()

	report := e.Scan("Claim your prize at http://free-money.tk/claim")
	if report.CriticalFlags != 0 {
		t.Errorf("CriticalFlags = %d, want 0 (TLD finding is non-critical)", report.CriticalFlags)
	}
	if report.Adjustment != riskyTLDAdjustment {
		t.Errorf("Adjustment = %v, want %v", report.Adjustment, riskyTLDAdjustment)
	}
}

func TestRuleEngine_AdjustmentsAccumulate(t *testing.T) {
	e := NewRuleEngine()

	report := e.Scan("See http://10.0.0.5/a and also http://scam.ml/b")
	want := ipLiteralAdjustment + riskyTLDAdjustment
	if math.Abs(report.Adjustment-want) > 1e-9 {
		t.Errorf("Adjustment = %v, want %v", report.Adjustment, want)
	}
	if len(report.Findings) != 2 {
		t.Errorf("Findings = %v, want 2 entries", report.Findings)
	}
}

// Trust raised by an earlier URL does not suppress later findings; the fuser
// decides what the trust flag means.
func TestRuleEngine_TrustDoesNotSuppressLaterFindings(t *testing.T) {
	e := NewRuleEngine()

	report := e.Scan("Your google.com account expires, renew at http://renew-account.tk/x")
	if !report.Trusted {
		t.Error("text should be marked trusted")
	}
	if report.Adjustment != riskyTLDAdjustment {
		t.Errorf("Adjustment = %v, want %v (later candidate still analyzed)", report.Adjustment, riskyTLDAdjustment)
	}
}

func TestRuleEngine_NakedDomain(t *testing.T) {
	e := NewRuleEngine()

	report := e.Scan("visit evil-login.gq today")
	if len(report.Findings) != 1 {
		t.Fatalf("naked domain not extracted: %v", report.Findings)
	}
}

func TestRuleEngine_NoURLs(t *testing.T) {
	e := NewRuleEngine()

	report := e.Scan("Hi team, the meeting moved to 3pm. Thanks!")
	if report.Trusted || report.Adjustment != 0 || len(report.Findings) != 0 || report.CriticalFlags != 0 {
		t.Errorf("plain text should yield a zero report, got %+v", report)
	}
}

func TestBareDomain(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"HTTPS://Accounts.Google.COM/signin?x=1", "accounts.google.com"},
		{"http://192.168.1.1/login", "192.168.1.1"},
		{"example.com/path#frag", "example.com"},
		{"example.com:8080/path", "example.com"},
		{"example.com.", "example.com"},
	}
	for _, tt := range tests {
		if got := bareDomain(tt.in); got != tt.want {
			t.Errorf("bareDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRuleEngine_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "trusted_domains:\n  - internal.corp\nrisky_tlds:\n  - .evil\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	e, err := NewRuleEngineFromFile(path)
	if err != nil {
		t.Fatalf("NewRuleEngineFromFile: %v", err)
	}

	report := e.Scan("see https://docs.internal.corp/wiki")
	if !report.Trusted {
		t.Error("override trusted domain not honored")
	}

	report = e.Scan("download from http://payload.evil/x")
	if report.Adjustment != riskyTLDAdjustment {
		t.Errorf("override risky TLD not honored: %+v", report)
	}

	// Default tables must be replaced, not merged.
	report = e.Scan("see https://google.com/login")
	if report.Trusted {
		t.Error("default trusted list should be replaced by overrides")
	}
}

func TestRuleEngine_FileMissing(t *testing.T) {
	if _, err := NewRuleEngineFromFile("/nonexistent/rules.yaml"); err == nil {
		t.Error("expected error for missing rules file")
	}
}

package ml

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Heuristic score adjustments. These accumulate additively across findings
// and are added to the neural phishing probability by the fuser.
const (
	ipLiteralAdjustment = 0.40
	riskyTLDAdjustment  = 0.20
	// trustOverrideAdjustment replaces the accumulated score when a trusted
	// domain is present and no critical flags were raised.
	trustOverrideAdjustment = -0.60
)

// Pre-compiled patterns, shared across all requests.
var (
	// reURLCandidate matches scheme-prefixed URLs, naked domains, and
	// IP-literal destinations. Deliberately permissive: the per-candidate
	// analysis decides what matters.
	reURLCandidate = regexp.MustCompile(`(?i)\b(?:https?://)?(?:(?:\d{1,3}\.){3}\d{1,3}|(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,})(?::\d+)?(?:/[^\s<>"']*)?`)

	// reIPv4Host validates dotted-quad hosts with octets 0-255, not just any
	// dotted number.
	reIPv4Host = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])\.){3}(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])$`)
)

// defaultTrustedDomains is the built-in allowlist of mainstream domains
// exempt from threat flagging. Subdomains of an entry are trusted too.
var defaultTrustedDomains = []string{
	"google.com", "gmail.com", "youtube.com",
	"microsoft.com", "outlook.com", "live.com", "office.com",
	"apple.com", "icloud.com",
	"amazon.com", "paypal.com", "netflix.com",
	"facebook.com", "instagram.com", "whatsapp.com",
	"twitter.com", "x.com", "linkedin.com",
	"github.com", "dropbox.com", "adobe.com",
	"yahoo.com", "chase.com", "bankofamerica.com",
	"wellsfargo.com", "citibank.com", "hsbc.com", "barclays.co.uk",
}

// defaultRiskyTLDs lists top-level domains with disproportionate abuse rates.
var defaultRiskyTLDs = []string{
	"tk", "ml", "ga", "cf", "gq",
	"xyz", "top", "zip", "mov", "click", "link", "work", "loan",
}

// ruleFile is the YAML shape of an optional rules override file.
type ruleFile struct {
	TrustedDomains []string `yaml:"trusted_domains"`
	RiskyTLDs      []string `yaml:"risky_tlds"`
}

// RuleReport is the outcome of one heuristic scan.
type RuleReport struct {
	// Findings in scan order, human readable.
	Findings []string
	// Adjustment is the accumulated score delta for the fuser.
	Adjustment float64
	// Trusted is set when any URL candidate resolved to an allowlisted
	// domain. Trust is a global short-circuit for the whole text.
	Trusted bool
	// CriticalFlags counts critical findings (IP-literal destinations).
	CriticalFlags int
}

// RuleEngine is the deterministic URL/domain scanner layered under the
// neural classifier. It operates on the literal text only; no DNS, no
// network.
//
// Known quirk, kept deliberately pending product review: a trusted match
// anywhere in the text marks the whole text trusted, and the fuser's trust
// override applies whenever no critical flags were raised, even if other
// candidates in the same text carried non-critical findings. Mixed-content
// mail that name-drops a trusted brand next to a risky-TLD link is therefore
// under-flagged.
type RuleEngine struct {
	trusted   []string
	riskyTLDs []string
}

// NewRuleEngine creates an engine with the built-in tables.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{
		trusted:   defaultTrustedDomains,
		riskyTLDs: defaultRiskyTLDs,
	}
}

// NewRuleEngineFromFile creates an engine with tables overridden from a YAML
// file. Missing keys keep their built-in defaults.
func NewRuleEngineFromFile(path string) (*RuleEngine, error) {
	engine := NewRuleEngine()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules file: %w", err)
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("rules file: %w", err)
	}

	if len(rf.TrustedDomains) > 0 {
		engine.trusted = normalizeAll(rf.TrustedDomains)
	}
	if len(rf.RiskyTLDs) > 0 {
		engine.riskyTLDs = normalizeAll(rf.RiskyTLDs)
	}
	log.Printf("[RULES] Loaded overrides from %s (%d trusted, %d risky TLDs)",
		path, len(engine.trusted), len(engine.riskyTLDs))
	return engine, nil
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, ".")))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Scan extracts URL-like candidates from text and evaluates each one.
// Trusted candidates set the global trust flag and skip threat analysis;
// every non-trusted candidate is analyzed regardless of trust raised by an
// earlier candidate.
func (e *RuleEngine) Scan(text string) RuleReport {
	var report RuleReport

	for _, candidate := range reURLCandidate.FindAllString(text, -1) {
		domain := bareDomain(candidate)
		if domain == "" {
			continue
		}

		if e.isTrusted(domain) {
			report.Trusted = true
			continue
		}

		if reIPv4Host.MatchString(domain) {
			report.Findings = append(report.Findings,
				fmt.Sprintf("Critical: IP-based destination (%s)", domain))
			report.Adjustment += ipLiteralAdjustment
			report.CriticalFlags++
			continue
		}

		if tld := e.riskyTLD(domain); tld != "" {
			report.Findings = append(report.Findings,
				fmt.Sprintf("Suspicious: high-risk TLD .%s (%s)", tld, domain))
			report.Adjustment += riskyTLDAdjustment
		}
	}

	return report
}

// bareDomain normalizes a URL candidate to its bare host: NFKC fold,
// lowercase, scheme/path/query/fragment/port stripped.
func bareDomain(candidate string) string {
	s := strings.ToLower(norm.NFKC.String(candidate))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, ".")
}

// isTrusted reports whether domain equals or is a subdomain of an
// allowlisted entry.
func (e *RuleEngine) isTrusted(domain string) bool {
	for _, t := range e.trusted {
		if domain == t || strings.HasSuffix(domain, "."+t) {
			return true
		}
	}
	return false
}

// riskyTLD returns the matching high-risk TLD, or empty. IP literals never
// match (their last label is numeric).
func (e *RuleEngine) riskyTLD(domain string) string {
	i := strings.LastIndexByte(domain, '.')
	if i < 0 {
		return ""
	}
	last := domain[i+1:]
	for _, tld := range e.riskyTLDs {
		if last == tld {
			return tld
		}
	}
	return ""
}

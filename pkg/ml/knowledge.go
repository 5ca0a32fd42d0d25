package ml

import "strings"

// kbEntry maps trigger keywords to a canned security explanation.
type kbEntry struct {
	Topic    string
	Keywords []string
	Answer   string
}

// knowledgeBase is the offline backstop for the assistant: a fixed table
// scanned in declared order, first substring match wins. It must stay fully
// deterministic and require no network access.
//
// Order matters: more specific topics come before the general ones that
// share a keyword (e.g. "spear phishing" before "phishing").
var knowledgeBase = []kbEntry{
	{
		Topic:    "spear_phishing",
		Keywords: []string{"spear phishing", "spear-phishing"},
		Answer:   "Spear phishing is a targeted phishing attack aimed at a specific person or organization. The attacker researches the victim first, so the message references real names, projects, or vendors. Treat unexpected requests for money or credentials with suspicion even when they look personal, and verify through a separate channel.",
	},
	{
		Topic:    "phishing",
		Keywords: []string{"phishing", "phish"},
		Answer:   "Phishing is a social-engineering attack where criminals impersonate a trusted party (a bank, employer, or service provider) to trick you into revealing credentials, payment details, or installing malware. Warning signs include urgency, mismatched sender domains, and links that don't go where they claim. Never enter a password on a page you reached from an email link.",
	},
	{
		Topic:    "suspicious_links",
		Keywords: []string{"link", "url", "domain"},
		Answer:   "Before clicking a link, hover over it and compare the real destination with the visible text. Watch for look-alike domains (paypa1.com), IP-address destinations, and unusual top-level domains. When in doubt, type the official address into your browser yourself instead of following the link.",
	},
	{
		Topic:    "passwords",
		Keywords: []string{"password", "credential"},
		Answer:   "Use a unique, randomly generated password for every account and store them in a password manager. Legitimate organizations never ask for your password by email. If you suspect a password was phished, change it immediately and enable two-factor authentication.",
	},
	{
		Topic:    "two_factor",
		Keywords: []string{"2fa", "mfa", "two-factor", "two factor", "multi-factor"},
		Answer:   "Two-factor authentication (2FA) adds a second proof of identity beyond your password, such as an authenticator app code or hardware key. Even if attackers phish your password, 2FA usually stops them. Prefer app- or hardware-based codes over SMS, which can be hijacked via SIM swapping.",
	},
	{
		Topic:    "https",
		Keywords: []string{"https", "ssl", "tls", "padlock"},
		Answer:   "The padlock icon only means the connection is encrypted - it says nothing about who is on the other end. Phishing sites routinely use valid HTTPS certificates. Check the actual domain name in the address bar, not the padlock.",
	},
	{
		Topic:    "attachments",
		Keywords: []string{"attachment", "invoice", "macro"},
		Answer:   "Malicious attachments are a common phishing payload, especially fake invoices and documents asking you to enable macros. Never enable macros for a document you weren't expecting, and verify surprising attachments with the sender through another channel before opening them.",
	},
	{
		Topic:    "reporting",
		Keywords: []string{"report", "victim", "clicked", "what should i do", "what do i do"},
		Answer:   "If you clicked a phishing link or entered credentials: change the affected password immediately, enable 2FA, and notify your IT/security team. Report the phishing message to your email provider and, where applicable, to the impersonated organization. Acting within the first hour greatly limits the damage.",
	},
}

// kbGenericFallback is returned when no knowledge-base keyword matches.
const kbGenericFallback = "I can help with questions about phishing, suspicious links, passwords, two-factor authentication, and what to do after clicking a malicious link. Could you rephrase your question using one of those topics?"

// LookupKnowledge scans the knowledge base in declared order and returns the
// first entry whose keyword occurs in the message (case-insensitive
// substring), or the generic fallback.
func LookupKnowledge(message string) (answer string, matched bool) {
	lower := strings.ToLower(message)
	for _, entry := range knowledgeBase {
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				return entry.Answer, true
			}
		}
	}
	return kbGenericFallback, false
}

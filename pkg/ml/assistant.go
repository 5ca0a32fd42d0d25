package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/phishguard-ai/phishguard/pkg/httputil"
)

const geminiEndpointFmt = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

const assistantSystemPrompt = "You are an expert Cybersecurity Assistant. Your goal is to help users identify phishing " +
	"and provide actionable security advice. Be professional, concise, and helpful."

// Assistant turns verdicts and attributed tokens into natural-language prose
// via an external generative-language API, with deterministic offline
// fallbacks. Callers never see a hard failure: every external-call wrapper
// returns an explicit (text, error) pair and the fallback path is an
// explicit branch, never an implicit recovery.
type Assistant struct {
	apiKey   string
	model    string
	client   *http.Client
	semantic *SemanticKB // optional embedding-backed retrieval, may be nil
}

// AssistantConfig configures the narrative assistant.
type AssistantConfig struct {
	// APIKey for the generative-language API. Empty means offline-only.
	APIKey string
	// Model identifier (default: gemini-1.5-flash).
	Model string
}

// NewAssistant creates an assistant. semantic may be nil; when provided and
// ready it is preferred over the keyword table for chat fallback answers.
func NewAssistant(cfg AssistantConfig, semantic *SemanticKB) *Assistant {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	return &Assistant{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   httputil.SlowClient(),
		semantic: semantic,
	}
}

// Online reports whether an external credential is configured.
func (a *Assistant) Online() bool {
	return a.apiKey != ""
}

// ExplainThreat produces a prose explanation for a verdict and its top
// attributed tokens. Returns the text and whether the offline fallback was
// used.
func (a *Assistant) ExplainThreat(ctx context.Context, label string, features []Feature) (string, bool) {
	if a.Online() {
		var suspicious []string
		for _, f := range features {
			if f.Score > 0 {
				suspicious = append(suspicious, "'"+f.Token+"'")
			}
		}
		prompt := fmt.Sprintf(
			"A machine learning model detected this text as '%s'. "+
				"The suspicious features identified are: %s. "+
				"Please explain in simple terms why these words might indicate a phishing attempt "+
				"and give 3 quick safety tips.",
			label, strings.Join(suspicious, ", "))

		text, err := a.generate(ctx, prompt)
		if err == nil {
			return text, false
		}
		log.Printf("[ASSISTANT] explain_threat falling back to offline template: %v", err)
	}
	return fallbackExplain(label), true
}

// Chat answers a free-form security question, optionally grounded in the
// context of the current scan. Returns the text and whether the offline
// fallback was used.
func (a *Assistant) Chat(ctx context.Context, message, scanContext string) (string, bool) {
	if a.Online() {
		prompt := fmt.Sprintf("%s\n\nContext about the current scan: %s\n\nUser Question: %s",
			assistantSystemPrompt, scanContext, message)

		text, err := a.generate(ctx, prompt)
		if err == nil {
			return text, false
		}
		log.Printf("[ASSISTANT] chat falling back to knowledge base: %v", err)
	}

	// Offline path: semantic retrieval when an embedder is available,
	// deterministic keyword table otherwise.
	if a.semantic != nil && a.semantic.IsReady() {
		if answer, ok := a.semantic.Query(ctx, message); ok {
			return answer, true
		}
	}
	answer, _ := LookupKnowledge(message)
	return answer, true
}

// fallbackExplain is the deterministic explanation keyed only on the label.
func fallbackExplain(label string) string {
	if label == LabelPhishing {
		return "This message was classified as phishing. It contains patterns our model associates with " +
			"credential-theft attempts, such as urgent or threatening language, requests for sensitive " +
			"information, or suspicious links. Safety tips: (1) do not click any links or open attachments, " +
			"(2) never enter credentials on a page reached from this message, (3) report it to your " +
			"security team or email provider and delete it."
	}
	return "This message was classified as legitimate. Our model found no strong phishing indicators. " +
		"Stay cautious anyway: verify unexpected requests for money or credentials through a separate " +
		"channel, check that link destinations match their visible text, and keep two-factor " +
		"authentication enabled on important accounts."
}

// --- generative-language plumbing ---

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// generate calls the generateContent endpoint and returns the first
// candidate's text. All failures come back as errors; the caller decides
// the fallback.
func (a *Assistant) generate(ctx context.Context, prompt string) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("no API key configured")
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf(geminiEndpointFmt, a.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generative API call: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		errBody, _ := httputil.ReadErrorBody(resp.Body)
		return "", fmt.Errorf("generative API status %d: %s", resp.StatusCode, truncateForLog(string(errBody), 200))
	}

	respBody, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generative API returned no candidates")
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("generative API returned empty text")
	}
	return text, nil
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

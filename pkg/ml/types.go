// Package ml implements the PhishGuard detection core: a transformer
// phishing classifier, a deterministic heuristic rule engine, the fuser that
// combines both into a single calibrated verdict, perturbation-based token
// attribution, and the narrative assistant.
package ml

// Classification labels. Index 1 of the model output is the phishing class.
const (
	LabelLegitimate = "Legitimate"
	LabelPhishing   = "Phishing"
)

// Distribution is the softmax probability distribution over the two classes.
// Legitimate + Phishing always sums to 1.
type Distribution struct {
	Legitimate float64 `json:"legitimate"`
	Phishing   float64 `json:"phishing"`
}

// ClassificationResult is the final fused verdict for one input text.
// Immutable once returned; cached by exact input text.
type ClassificationResult struct {
	// Label is "Legitimate" or "Phishing".
	Label string `json:"label"`
	// Probability is the confidence of the reported label, i.e. always
	// Distribution.Legitimate for Legitimate and Distribution.Phishing
	// for Phishing.
	Probability float64 `json:"probability"`
	// Distribution holds both class probabilities.
	Distribution Distribution `json:"distribution"`
	// Findings lists heuristic findings in scan order.
	Findings []string `json:"findings"`
	// ThreatMarkerCount is the number of heuristic findings.
	ThreatMarkerCount int `json:"threat_marker_count"`
	// EngineTag names the path that produced the verdict.
	EngineTag string `json:"engine_tag"`
}

// Feature is one attributed token with its contribution toward the
// phishing class. Positive scores push toward Phishing.
type Feature struct {
	Token string  `json:"token"`
	Score float64 `json:"score"`
}

// Attribution result statuses.
const (
	AttributionSuccess = "success"
	AttributionError   = "error"
)

// AttributionResult holds the ranked token attribution for one input.
type AttributionResult struct {
	TopFeatures []Feature `json:"top_features"`
	BaseValue   float64   `json:"base_value"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// DiagnosticErrorSentinel is the result returned when attribution fails.
// Attribution failure never propagates to the caller.
func DiagnosticErrorSentinel(err error) *AttributionResult {
	res := &AttributionResult{
		TopFeatures: []Feature{{Token: "Diagnostic Error", Score: 0}},
		BaseValue:   0,
		Status:      AttributionError,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

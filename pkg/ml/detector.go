package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/phishguard-ai/phishguard/pkg/cache"
)

// Engine tags reported on results.
const (
	engineTagFused    = "neural+heuristics"
	engineTagFastPath = "fast-path"
)

// Fused probability bounds. Heuristic adjustments never push the phishing
// probability to exactly 0 or 1; the trust override clamps harder.
const (
	fuseFloor  = 0.001
	fuseCeil   = 0.999
	trustClamp = 0.01
)

// Detector fuses the neural classifier with the heuristic rule engine into
// a single calibrated verdict, with a verdict cache in front.
//
// The whitelist override exists because the neural model alone is known to
// mis-flag benign mainstream-domain content; the TLD/IP heuristics exist
// because a general-purpose pretrained model under-weights structural URL
// risk signals.
type Detector struct {
	classifier Classifier
	rules      *RuleEngine
	cache      cache.Store
}

// NewDetector creates a detector. cache may be nil, which disables caching
// (every call recomputes).
func NewDetector(classifier Classifier, rules *RuleEngine, store cache.Store) *Detector {
	if rules == nil {
		rules = NewRuleEngine()
	}
	return &Detector{classifier: classifier, rules: rules, cache: store}
}

// Predict classifies text and returns the fused verdict. The second return
// value reports whether the verdict was served from cache, so callers can
// track hit rates without the cache mutating the stored verdict.
//
// Precedence: empty input short-circuits to Legitimate; a cache hit is
// returned unchanged; a trusted domain with zero critical flags overrides
// both the model and the accumulated heuristic score; otherwise heuristic
// adjustments shift the model probability within (0.001, 0.999).
//
// The only error path is neural-engine load/inference failure.
func (d *Detector) Predict(ctx context.Context, text string) (*ClassificationResult, bool, error) {
	if strings.TrimSpace(text) == "" {
		return &ClassificationResult{
			Label:             LabelLegitimate,
			Probability:       1.0,
			Distribution:      Distribution{Legitimate: 1.0, Phishing: 0.0},
			Findings:          []string{},
			ThreatMarkerCount: 0,
			EngineTag:         engineTagFastPath,
		}, false, nil
	}

	if cached, ok := d.cacheGet(ctx, text); ok {
		return cached, true, nil
	}

	dist, err := d.classifier.ClassifyRaw(ctx, text)
	if err != nil {
		return nil, false, fmt.Errorf("predict: %w", err)
	}
	p := dist.Phishing

	report := d.rules.Scan(text)

	if report.Trusted && report.CriticalFlags == 0 {
		// Whitelist dominance: trusted content is capped regardless of the
		// model's opinion, and the override replaces any accumulated
		// heuristic score, including non-critical findings.
		if p > trustClamp {
			p = trustClamp
		}
		p += trustOverrideAdjustment
		if p < fuseFloor {
			p = fuseFloor
		}
	} else if report.Adjustment != 0 {
		p += report.Adjustment
		if p < fuseFloor {
			p = fuseFloor
		}
		if p > fuseCeil {
			p = fuseCeil
		}
	}

	// Strict greater-than: exactly 0.5 resolves to Legitimate.
	label := LabelLegitimate
	probability := 1 - p
	if p > 0.5 {
		label = LabelPhishing
		probability = p
	}

	findings := report.Findings
	if findings == nil {
		findings = []string{}
	}

	result := &ClassificationResult{
		Label:             label,
		Probability:       probability,
		Distribution:      Distribution{Legitimate: 1 - p, Phishing: p},
		Findings:          findings,
		ThreatMarkerCount: len(findings),
		EngineTag:         engineTagFused,
	}

	d.cacheSet(ctx, text, result)
	return result, false, nil
}

func (d *Detector) cacheGet(ctx context.Context, text string) (*ClassificationResult, bool) {
	if d.cache == nil {
		return nil, false
	}
	b, ok := d.cache.Get(ctx, text)
	if !ok {
		return nil, false
	}
	var result ClassificationResult
	if err := json.Unmarshal(b, &result); err != nil {
		log.Printf("[DETECTOR] Dropping corrupt cache entry: %v", err)
		return nil, false
	}
	return &result, true
}

func (d *Detector) cacheSet(ctx context.Context, text string, result *ClassificationResult) {
	if d.cache == nil {
		return
	}
	b, err := json.Marshal(result)
	if err != nil {
		log.Printf("[DETECTOR] Failed to serialize verdict for cache: %v", err)
		return
	}
	d.cache.Set(ctx, text, b)
}

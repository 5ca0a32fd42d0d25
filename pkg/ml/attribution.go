package ml

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/phishguard-ai/phishguard/pkg/httputil"
)

// maskToken replaces hidden tokens in perturbed variants. BERT-family
// tokenizers map it to their mask embedding instead of shifting positions.
const maskToken = "[MASK]"

// maxAttributedTokens bounds the permutation walk. Attribution cost grows
// with samples*tokens model calls, and the classifier truncates at 512
// subwords anyway, so the tail of very long inputs carries no signal.
const maxAttributedTokens = 128

// structuralTokens are stripped from attribution output.
var structuralTokens = map[string]bool{
	"[CLS]": true, "[SEP]": true, "[PAD]": true, "[MASK]": true,
}

// AttributionConfig tunes the Shapley sampling.
type AttributionConfig struct {
	// Workers bounds concurrent attribution computations.
	Workers int
	// Samples is the number of token permutations averaged per request.
	// More samples, tighter estimates, linearly more model calls.
	Samples int
	// TopK is the number of ranked tokens returned.
	TopK int
}

// DefaultAttributionConfig returns the production defaults.
func DefaultAttributionConfig() AttributionConfig {
	return AttributionConfig{Workers: 2, Samples: 24, TopK: 12}
}

// AttributionEngine computes per-token contributions toward the phishing
// class with a model-agnostic permutation Shapley estimate: tokens are
// revealed one at a time in random order, each reveal's marginal effect on
// the classifier's phishing softmax is credited to that token, and
// contributions are averaged over permutations.
//
// The computation is CPU-heavy and runs on a bounded worker pool so it never
// blocks concurrent classification; the calling request suspends until its
// worker finishes. Failures of any kind degrade to the "Diagnostic Error"
// sentinel - attribution never fails the overall explain request.
type AttributionEngine struct {
	scorer  BatchScorer
	workers *httputil.Semaphore
	config  AttributionConfig

	// Lazy readiness probe: constructed once on first use, re-attempted on
	// the next call if the probe failed.
	mu    sync.Mutex
	ready bool
}

// NewAttributionEngine creates an engine over the given scorer.
func NewAttributionEngine(scorer BatchScorer, cfg AttributionConfig) *AttributionEngine {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Samples <= 0 {
		cfg.Samples = 24
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 12
	}
	return &AttributionEngine{
		scorer:  scorer,
		workers: httputil.NewSemaphore(cfg.Workers),
		config:  cfg,
	}
}

// ensureReady forces the underlying model to load before any perturbation
// work is queued. A failed probe leaves the engine unready so the next call
// retries.
func (e *AttributionEngine) ensureReady(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}

	log.Printf("[ATTRIBUTION] Initializing diagnostic engine...")
	if _, err := e.scorer.PhishingScores(ctx, []string{maskToken}); err != nil {
		return fmt.Errorf("attribution init: %w", err)
	}
	e.ready = true
	log.Printf("[ATTRIBUTION] Diagnostic engine ready")
	return nil
}

// Explain computes the ranked token attribution for text. It never returns
// an error: every failure path yields the sentinel result instead.
func (e *AttributionEngine) Explain(ctx context.Context, text string) *AttributionResult {
	if err := ctx.Err(); err != nil {
		return DiagnosticErrorSentinel(err)
	}
	if err := e.ensureReady(ctx); err != nil {
		log.Printf("[ATTRIBUTION] Init failed: %v", err)
		return DiagnosticErrorSentinel(err)
	}

	resultCh := make(chan *AttributionResult, 1)
	go func() {
		// Heavy work queues behind the worker semaphore; the enclosing
		// request just waits. Workers are not cancelled mid-computation -
		// a hung computation blocks only its own request.
		if err := e.workers.Acquire(ctx); err != nil {
			resultCh <- DiagnosticErrorSentinel(err)
			return
		}
		defer e.workers.Release()
		resultCh <- e.compute(text)
	}()

	select {
	case res := <-resultCh:
		return res
	case <-ctx.Done():
		return DiagnosticErrorSentinel(ctx.Err())
	}
}

// compute runs the Shapley estimate. Model calls use the background context:
// the computation itself is all-or-nothing and not cancellable.
func (e *AttributionEngine) compute(text string) *AttributionResult {
	ctx := context.Background()

	tokens := strings.Fields(text)
	if len(tokens) > maxAttributedTokens {
		tokens = tokens[:maxAttributedTokens]
	}

	baseline, err := e.scoreOne(ctx, maskAll(len(tokens)))
	if err != nil {
		return DiagnosticErrorSentinel(err)
	}

	if len(tokens) == 0 {
		return &AttributionResult{
			TopFeatures: []Feature{},
			BaseValue:   baseline,
			Status:      AttributionSuccess,
		}
	}

	contributions := make([]float64, len(tokens))

	// Deterministic per input: same text, same permutations, same scores.
	seed := fnv.New64a()
	_, _ = seed.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(seed.Sum64())))

	for s := 0; s < e.config.Samples; s++ {
		perm := rng.Perm(len(tokens))

		// One batch scores every prefix of the permutation: variant i has
		// the first i permuted tokens revealed, the rest masked.
		variants := make([]string, len(tokens))
		revealed := make([]bool, len(tokens))
		for i, tokenIdx := range perm {
			revealed[tokenIdx] = true
			variants[i] = renderVariant(tokens, revealed)
		}

		scores, err := e.scorer.PhishingScores(ctx, variants)
		if err != nil {
			return DiagnosticErrorSentinel(err)
		}
		if len(scores) != len(variants) {
			return DiagnosticErrorSentinel(fmt.Errorf("scorer returned %d scores for %d variants", len(scores), len(variants)))
		}

		prev := baseline
		for i, tokenIdx := range perm {
			contributions[tokenIdx] += scores[i] - prev
			prev = scores[i]
		}
	}

	features := make([]Feature, 0, len(tokens))
	for i, tok := range tokens {
		clean := strings.TrimSpace(tok)
		if clean == "" || structuralTokens[clean] {
			continue
		}
		features = append(features, Feature{
			Token: clean,
			Score: contributions[i] / float64(e.config.Samples),
		})
	}

	sort.SliceStable(features, func(i, j int) bool {
		return abs(features[i].Score) > abs(features[j].Score)
	})
	if len(features) > e.config.TopK {
		features = features[:e.config.TopK]
	}

	return &AttributionResult{
		TopFeatures: features,
		BaseValue:   baseline,
		Status:      AttributionSuccess,
	}
}

func (e *AttributionEngine) scoreOne(ctx context.Context, text string) (float64, error) {
	scores, err := e.scorer.PhishingScores(ctx, []string{text})
	if err != nil {
		return 0, err
	}
	if len(scores) == 0 {
		return 0, fmt.Errorf("scorer returned no scores")
	}
	return scores[0], nil
}

// renderVariant joins tokens with hidden positions replaced by the mask.
func renderVariant(tokens []string, revealed []bool) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		if revealed[i] {
			parts[i] = tok
		} else {
			parts[i] = maskToken
		}
	}
	return strings.Join(parts, " ")
}

// maskAll renders the fully-masked input used as the attribution baseline.
func maskAll(n int) string {
	if n == 0 {
		return maskToken
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = maskToken
	}
	return strings.Join(parts, " ")
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

package ml

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
)

// wordScorer scores texts by the presence of trigger words: each trigger
// present adds its weight to a small base score. Weights are summed in
// sorted key order so the float result is bit-identical across calls, which
// the determinism test depends on.
type wordScorer struct {
	weights map[string]float64
}

func (w *wordScorer) PhishingScores(ctx context.Context, texts []string) ([]float64, error) {
	words := make([]string, 0, len(w.weights))
	for word := range w.weights {
		words = append(words, word)
	}
	sort.Strings(words)

	scores := make([]float64, len(texts))
	for i, text := range texts {
		score := 0.05
		for _, word := range words {
			if strings.Contains(text, word) {
				score += w.weights[word]
			}
		}
		scores[i] = score
	}
	return scores, nil
}

// failingScorer fails the first failures calls, then behaves like inner.
type failingScorer struct {
	mu       sync.Mutex
	failures int
	inner    BatchScorer
}

func (f *failingScorer) PhishingScores(ctx context.Context, texts []string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("inference backend unavailable")
	}
	return f.inner.PhishingScores(ctx, texts)
}

func testScorer() *wordScorer {
	return &wordScorer{weights: map[string]float64{"urgent": 0.5, "password": 0.3}}
}

func TestAttribution_RanksTriggerTokens(t *testing.T) {
	e := NewAttributionEngine(testScorer(), AttributionConfig{Workers: 1, Samples: 8, TopK: 12})

	res := e.Explain(context.Background(), "urgent please send your password today")
	if res.Status != AttributionSuccess {
		t.Fatalf("Status = %q (%s), want success", res.Status, res.Error)
	}
	if len(res.TopFeatures) == 0 {
		t.Fatal("no features returned")
	}
	if res.TopFeatures[0].Token != "urgent" {
		t.Errorf("top feature = %q, want \"urgent\"", res.TopFeatures[0].Token)
	}
	if res.TopFeatures[0].Score <= 0 {
		t.Errorf("trigger token score = %v, want positive", res.TopFeatures[0].Score)
	}
	if len(res.TopFeatures) > 1 && res.TopFeatures[1].Token != "password" {
		t.Errorf("second feature = %q, want \"password\"", res.TopFeatures[1].Token)
	}
	// Ranking is by absolute score, descending.
	for i := 1; i < len(res.TopFeatures); i++ {
		if abs(res.TopFeatures[i].Score) > abs(res.TopFeatures[i-1].Score) {
			t.Errorf("features not sorted by |score|: %v", res.TopFeatures)
		}
	}
}

func TestAttribution_BaselineIsFullyMasked(t *testing.T) {
	e := NewAttributionEngine(testScorer(), AttributionConfig{Workers: 1, Samples: 4, TopK: 12})

	res := e.Explain(context.Background(), "urgent request")
	if res.Status != AttributionSuccess {
		t.Fatalf("Status = %q, want success", res.Status)
	}
	// The fully-masked variant contains no trigger words, so its score is the
	// scorer's base value.
	if res.BaseValue != 0.05 {
		t.Errorf("BaseValue = %v, want 0.05", res.BaseValue)
	}
}

func TestAttribution_TopKTruncation(t *testing.T) {
	e := NewAttributionEngine(testScorer(), AttributionConfig{Workers: 1, Samples: 4, TopK: 3})

	res := e.Explain(context.Background(), "one two three four five six seven eight")
	if res.Status != AttributionSuccess {
		t.Fatalf("Status = %q, want success", res.Status)
	}
	if len(res.TopFeatures) > 3 {
		t.Errorf("got %d features, want at most 3", len(res.TopFeatures))
	}
}

func TestAttribution_Deterministic(t *testing.T) {
	e := NewAttributionEngine(testScorer(), AttributionConfig{Workers: 1, Samples: 6, TopK: 12})

	text := "urgent action needed on your password account"
	a := e.Explain(context.Background(), text)
	b := e.Explain(context.Background(), text)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same input produced different attributions:\n%+v\n%+v", a, b)
	}
}

func TestAttribution_EmptyText(t *testing.T) {
	e := NewAttributionEngine(testScorer(), DefaultAttributionConfig())

	res := e.Explain(context.Background(), "")
	if res.Status != AttributionSuccess {
		t.Fatalf("Status = %q, want success for empty text", res.Status)
	}
	if len(res.TopFeatures) != 0 {
		t.Errorf("TopFeatures = %v, want empty", res.TopFeatures)
	}
}

func TestAttribution_SentinelOnScorerFailure(t *testing.T) {
	scorer := &failingScorer{failures: 1 << 30, inner: testScorer()}
	e := NewAttributionEngine(scorer, DefaultAttributionConfig())

	res := e.Explain(context.Background(), "urgent password")
	if res.Status != AttributionError {
		t.Fatalf("Status = %q, want error", res.Status)
	}
	if len(res.TopFeatures) != 1 || res.TopFeatures[0].Token != "Diagnostic Error" || res.TopFeatures[0].Score != 0 {
		t.Errorf("sentinel features = %v", res.TopFeatures)
	}
	if res.Error == "" {
		t.Error("sentinel should carry the failure detail")
	}
}

func TestAttribution_InitRetriedAfterFailure(t *testing.T) {
	scorer := &failingScorer{failures: 1, inner: testScorer()}
	e := NewAttributionEngine(scorer, AttributionConfig{Workers: 1, Samples: 4, TopK: 12})

	first := e.Explain(context.Background(), "urgent")
	if first.Status != AttributionError {
		t.Fatalf("first Status = %q, want error (readiness probe fails)", first.Status)
	}
	second := e.Explain(context.Background(), "urgent")
	if second.Status != AttributionSuccess {
		t.Errorf("second Status = %q (%s), want success after retry", second.Status, second.Error)
	}
}

func TestAttribution_CancelledContext(t *testing.T) {
	e := NewAttributionEngine(testScorer(), AttributionConfig{Workers: 1, Samples: 4, TopK: 12})

	// Warm the readiness probe with a live context first.
	if res := e.Explain(context.Background(), "warm"); res.Status != AttributionSuccess {
		t.Fatalf("warmup failed: %+v", res)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Explain(ctx, "urgent password")
	if res.Status != AttributionError {
		t.Errorf("Status = %q, want error for cancelled context", res.Status)
	}
}

func TestAttribution_ConcurrentRequests(t *testing.T) {
	e := NewAttributionEngine(testScorer(), AttributionConfig{Workers: 2, Samples: 4, TopK: 12})

	var wg sync.WaitGroup
	results := make([]*AttributionResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Explain(context.Background(), "urgent please confirm your password now")
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if res.Status != AttributionSuccess {
			t.Errorf("request %d: Status = %q (%s)", i, res.Status, res.Error)
		}
	}
}

func TestRenderVariant(t *testing.T) {
	tokens := []string{"a", "b", "c"}
	got := renderVariant(tokens, []bool{true, false, true})
	if got != "a [MASK] c" {
		t.Errorf("renderVariant = %q, want %q", got, "a [MASK] c")
	}
}

func TestMaskAll(t *testing.T) {
	if got := maskAll(0); got != maskToken {
		t.Errorf("maskAll(0) = %q, want single mask", got)
	}
	if got := maskAll(3); got != "[MASK] [MASK] [MASK]" {
		t.Errorf("maskAll(3) = %q", got)
	}
}

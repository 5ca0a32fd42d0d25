package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/phishguard-ai/phishguard/pkg/httputil"
)

// semanticThreshold is the default minimum cosine similarity for a
// knowledge-base answer to be considered a match.
const semanticThreshold float32 = 0.55

// SemanticKB retrieves knowledge-base answers by embedding similarity
// instead of keyword matching. It is strictly optional: construction and
// loading require a reachable Ollama embedder, and when either fails the
// assistant falls back to the deterministic keyword table.
type SemanticKB struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32
	mu         sync.RWMutex
	ready      bool
}

// newOllamaEmbeddingFunc embeds text through Ollama's /api/embeddings
// endpoint.
func newOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := httputil.MediumClient()

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody := map[string]string{
			"model":  model,
			"prompt": text,
		}
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/embeddings", bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		defer httputil.DrainAndClose(resp.Body)

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("ollama embedding status %d", resp.StatusCode)
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return result.Embedding, nil
	}
}

// pingOllama checks that an Ollama server answers at baseURL, so a
// misconfigured URL fails at construction instead of on the first embedding.
func pingOllama(baseURL string) error {
	resp, err := httputil.FastClient().Get(baseURL + "/api/tags")
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", baseURL, err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama at %s answered status %d", baseURL, resp.StatusCode)
	}
	return nil
}

// NewSemanticKB creates a knowledge base backed by an in-memory vector store
// with Ollama embeddings. threshold is the minimum cosine similarity for a
// match; zero or negative selects the default.
func NewSemanticKB(ollamaURL string, threshold float32) (*SemanticKB, error) {
	if err := pingOllama(ollamaURL); err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = semanticThreshold
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection("security_topics", nil, newOllamaEmbeddingFunc("embeddinggemma", ollamaURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &SemanticKB{db: db, collection: collection, threshold: threshold}, nil
}

// LoadEntries embeds the knowledge-base table into the vector store. This is
// the call that actually requires Ollama to be running.
func (kb *SemanticKB) LoadEntries(ctx context.Context) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	docs := make([]chromem.Document, len(knowledgeBase))
	for i, entry := range knowledgeBase {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("topic_%d", i),
			Content: entry.Topic + ": " + strings.Join(entry.Keywords, ", "),
			Metadata: map[string]string{
				"topic":  entry.Topic,
				"answer": entry.Answer,
			},
		}
	}

	// Sequential (1 worker) to avoid overwhelming the Ollama API.
	if err := kb.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add knowledge entries: %w", err)
	}

	kb.ready = true
	log.Printf("[ASSISTANT] Semantic knowledge base loaded (%d topics)", len(docs))
	return nil
}

// IsReady reports whether entries were loaded successfully.
func (kb *SemanticKB) IsReady() bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.ready
}

// Query returns the best-matching answer for a message, or false when no
// entry clears the similarity threshold or the query fails. A false return
// sends the assistant to the keyword table.
func (kb *SemanticKB) Query(ctx context.Context, message string) (string, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	if !kb.ready {
		return "", false
	}

	results, err := kb.collection.Query(ctx, strings.ToLower(message), 1, nil, nil)
	if err != nil {
		log.Printf("[ASSISTANT] Semantic query failed: %v", err)
		return "", false
	}
	if len(results) == 0 || results[0].Similarity < kb.threshold {
		return "", false
	}
	return results[0].Metadata["answer"], true
}

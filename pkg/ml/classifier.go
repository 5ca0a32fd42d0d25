package ml

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

// ClassifierConfig configures the neural phishing classifier.
type ClassifierConfig struct {
	// ModelName is the HuggingFace model identifier, used to download the
	// model when ModelPath does not exist.
	ModelName string

	// ModelPath is the local path to the ONNX model directory.
	ModelPath string

	// OnnxLibraryPath is the directory containing libonnxruntime.so.
	// Empty means the pure Go backend is used (slower, no dependencies).
	OnnxLibraryPath string
}

// DefaultClassifierConfig returns the configuration for the fine-tuned
// BERT phishing model consumed as a pretrained artifact.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ModelName: "ElSlay/BERT-Phishing-Email-Model",
		ModelPath: "./models/bert-phishing",
	}
}

// Classifier is the contract the fuser needs from the neural engine.
type Classifier interface {
	ClassifyRaw(ctx context.Context, text string) (Distribution, error)
}

// BatchScorer is the contract the attribution engine needs: phishing-class
// softmax scores for a batch of perturbed texts.
type BatchScorer interface {
	PhishingScores(ctx context.Context, texts []string) ([]float64, error)
}

// PhishingClassifier wraps a hugot text-classification pipeline over a
// pretrained BERT phishing model. Input is truncated by the pipeline to the
// model's 512-subword window; truncation is silent and deterministic.
//
// The model is loaded lazily on first use. Concurrent first calls serialize
// on the load mutex so the weights load exactly once; a failed load leaves
// the classifier unloaded and is retried on the next call. Once loaded, the
// pipeline is shared read-only across all calls.
type PhishingClassifier struct {
	config   ClassifierConfig
	mu       sync.RWMutex
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
	ready    bool
}

// NewPhishingClassifier creates an unloaded classifier. No model I/O happens
// until the first classification call.
func NewPhishingClassifier(cfg ClassifierConfig) *PhishingClassifier {
	if cfg.ModelName == "" && cfg.ModelPath == "" {
		cfg = DefaultClassifierConfig()
	}
	return &PhishingClassifier{config: cfg}
}

// IsReady reports whether the model has been loaded.
func (c *PhishingClassifier) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// ensureLoaded loads the model on first call. Idempotent; safe for
// concurrent callers. On failure all partially-created resources are
// released so a later call can retry cleanly.
func (c *PhishingClassifier) ensureLoaded() error {
	c.mu.RLock()
	if c.ready {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}

	session, err := c.createSession()
	if err != nil {
		return fmt.Errorf("neural engine session: %w", err)
	}

	modelPath, err := c.resolveModelPath()
	if err != nil {
		_ = session.Destroy()
		return fmt.Errorf("neural engine model: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "phishing-classifier",
	})
	if err != nil {
		_ = session.Destroy()
		return fmt.Errorf("neural engine pipeline: %w", err)
	}

	c.session = session
	c.pipeline = pipeline
	c.ready = true
	log.Printf("[ML] Neural engine ready (model: %s)", modelPath)
	return nil
}

// createSession prefers the ONNX Runtime backend and falls back to the pure
// Go backend when the runtime library is unavailable.
func (c *PhishingClassifier) createSession() (*hugot.Session, error) {
	if c.config.OnnxLibraryPath != "" {
		session, err := hugot.NewORTSession(
			options.WithOnnxLibraryPath(c.config.OnnxLibraryPath),
		)
		if err == nil {
			log.Printf("[ML] Using ONNX Runtime backend")
			return session, nil
		}
		log.Printf("[ML] ONNX Runtime unavailable, falling back to Go backend: %v", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Go session: %w", err)
	}
	return session, nil
}

// resolveModelPath ensures the model artifact is available locally,
// downloading it by name when the configured path is missing.
func (c *PhishingClassifier) resolveModelPath() (string, error) {
	if c.config.ModelPath != "" {
		if _, err := os.Stat(filepath.Join(c.config.ModelPath, "model.onnx")); err == nil {
			return c.config.ModelPath, nil
		}
	}

	if c.config.ModelName == "" {
		return "", fmt.Errorf("no model path or name configured")
	}

	modelsDir := "./models"
	if c.config.ModelPath != "" {
		modelsDir = filepath.Dir(c.config.ModelPath)
	}
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create models directory: %w", err)
	}

	log.Printf("[ML] Downloading model %s...", c.config.ModelName)
	modelPath, err := hugot.DownloadModel(c.config.ModelName, modelsDir, hugot.NewDownloadOptions())
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	log.Printf("[ML] Model downloaded to %s", modelPath)
	return modelPath, nil
}

// phishingLabel reports whether a model label string names the phishing
// class. Fine-tunes of the same architecture disagree on label spelling.
func phishingLabel(label string) bool {
	switch strings.ToLower(label) {
	case "phishing", "label_1", "spam", "malicious":
		return true
	default:
		return false
	}
}

// ClassifyRaw runs the model on one text and returns the softmax
// distribution over {legitimate, phishing}. The two logits are
// complementary, so the top-class score determines both entries.
func (c *PhishingClassifier) ClassifyRaw(ctx context.Context, text string) (Distribution, error) {
	dists, err := c.classifyBatch(ctx, []string{text})
	if err != nil {
		return Distribution{}, err
	}
	return dists[0], nil
}

// PhishingScores returns the phishing-class probability for each text.
// Used by the attribution engine to score perturbed variants in bulk.
func (c *PhishingClassifier) PhishingScores(ctx context.Context, texts []string) ([]float64, error) {
	dists, err := c.classifyBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(dists))
	for i, d := range dists {
		scores[i] = d.Phishing
	}
	return scores, nil
}

func (c *PhishingClassifier) classifyBatch(_ context.Context, texts []string) ([]Distribution, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	result, err := c.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	dists := make([]Distribution, len(texts))
	for i := range texts {
		if i >= len(result.ClassificationOutputs) || len(result.ClassificationOutputs[i]) == 0 {
			return nil, fmt.Errorf("classifier returned no output for input %d", i)
		}
		out := result.ClassificationOutputs[i][0]
		score := float64(out.Score)
		if phishingLabel(out.Label) {
			dists[i] = Distribution{Legitimate: 1 - score, Phishing: score}
		} else {
			dists[i] = Distribution{Legitimate: score, Phishing: 1 - score}
		}
	}
	return dists, nil
}

// Close releases the underlying session.
func (c *PhishingClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready = false
	c.pipeline = nil
	if c.session != nil {
		session := c.session
		c.session = nil
		if err := session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	return nil
}

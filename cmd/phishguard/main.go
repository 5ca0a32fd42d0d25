package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/phishguard-ai/phishguard/pkg/cache"
	"github.com/phishguard-ai/phishguard/pkg/config"
	"github.com/phishguard-ai/phishguard/pkg/ml"
	"github.com/phishguard-ai/phishguard/pkg/server"
	"github.com/phishguard-ai/phishguard/pkg/store"
)

const Version = "1.0.0"

// Service holds the assembled detection components.
// Everything beyond the classifier is optional and degrades gracefully.
type Service struct {
	classifier  *ml.PhishingClassifier
	detector    *ml.Detector
	attribution *ml.AttributionEngine
	assistant   *ml.Assistant
	store       *store.Store
	config      *config.Config
}

// NewService wires the components from config, logging what is enabled.
func NewService(cfg *config.Config) *Service {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	classifier := ml.NewPhishingClassifier(ml.ClassifierConfig{
		ModelName:       cfg.ModelName,
		ModelPath:       cfg.ModelPath,
		OnnxLibraryPath: cfg.OnnxLibraryPath,
	})
	log.Printf("✓ Neural engine configured (model: %s, lazy load)", cfg.ModelName)

	rules := ml.NewRuleEngine()
	if cfg.RulesFile != "" {
		loaded, err := ml.NewRuleEngineFromFile(cfg.RulesFile)
		if err != nil {
			log.Printf("○ Rule overrides ignored (load failed: %v)", err)
		} else {
			rules = loaded
			log.Printf("✓ Rule overrides loaded from %s", cfg.RulesFile)
		}
	}

	var verdictCache cache.Store
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisStore(cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			log.Printf("○ Redis cache disabled (connect failed: %v), using in-memory cache", err)
			verdictCache = cache.NewMemoryStore(cfg.CacheTTL)
		} else {
			verdictCache = redisCache
			log.Printf("✓ Verdict cache enabled (Redis at %s)", cfg.RedisAddr)
		}
	} else {
		verdictCache = cache.NewMemoryStore(cfg.CacheTTL)
		log.Printf("✓ Verdict cache enabled (in-memory, TTL %s)", cfg.CacheTTL)
	}

	s := &Service{
		classifier: classifier,
		detector:   ml.NewDetector(classifier, rules, verdictCache),
		attribution: ml.NewAttributionEngine(classifier, ml.AttributionConfig{
			Workers: cfg.AttributionWorkers,
			Samples: cfg.AttributionSamples,
			TopK:    cfg.AttributionTopK,
		}),
		config: cfg,
	}

	// Semantic knowledge base - optional, needs a running Ollama embedder
	var semantic *ml.SemanticKB
	if cfg.SemanticKB && cfg.OllamaBaseURL != "" {
		kb, err := ml.NewSemanticKB(cfg.OllamaBaseURL, float32(cfg.SemanticThreshold))
		if err != nil {
			log.Printf("○ Semantic knowledge base disabled (init failed: %v)", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			if err := kb.LoadEntries(ctx); err != nil {
				log.Printf("○ Semantic knowledge base disabled (load failed: %v)", err)
			} else {
				semantic = kb
				log.Printf("✓ Semantic knowledge base enabled (Ollama at %s)", cfg.OllamaBaseURL)
			}
			cancel()
		}
	}

	s.assistant = ml.NewAssistant(ml.AssistantConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	}, semantic)
	if s.assistant.Online() {
		log.Printf("✓ Narrative assistant enabled (model: %s)", cfg.GeminiModel)
	} else {
		log.Println("○ Narrative assistant offline (no API key), deterministic fallbacks only")
	}

	// Persistence - optional, accounts/history need PostgreSQL
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		st, err := store.Connect(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Printf("○ Accounts disabled (database connect failed: %v)", err)
		} else {
			s.store = st
			log.Println("✓ Accounts enabled (PostgreSQL)")
		}
	} else {
		log.Println("○ Accounts disabled (no DATABASE_URL)")
	}

	return s
}

func (s *Service) Close() {
	if s.store != nil {
		s.store.Close()
	}
	if err := s.classifier.Close(); err != nil {
		log.Printf("classifier close: %v", err)
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := ""
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runServer(port)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: phishguard scan <text>")
			os.Exit(1)
		}
		runScan(strings.Join(os.Args[2:], " "))
	case "explain":
		if len(os.Args) < 3 {
			fmt.Println("Usage: phishguard explain <text>")
			os.Exit(1)
		}
		runExplain(strings.Join(os.Args[2:], " "))
	case "models":
		listModels()
	case "version":
		fmt.Printf("PhishGuard v%s\n", Version)
		fmt.Println("Explainable phishing detection API")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("PhishGuard v%s - Explainable phishing detection\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  phishguard serve [port]     Start the HTTP API (default: 8000)")
	fmt.Println("  phishguard scan <text>      Classify text from the command line")
	fmt.Println("  phishguard explain <text>   Classify and attribute suspicious tokens")
	fmt.Println("  phishguard models           List locally available ML models")
	fmt.Println("  phishguard version          Show version")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  phishguard serve 8080")
	fmt.Println("  phishguard scan \"Urgent: verify your account at http://192.168.1.1\"")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  PHISHGUARD_MODEL_PATH    Path to ONNX model directory")
	fmt.Println("  PHISHGUARD_REDIS_ADDR    Redis address for the shared verdict cache")
	fmt.Println("  GEMINI_API_KEY           Credential for narrative explanations")
	fmt.Println("  DATABASE_URL             PostgreSQL DSN for accounts and history")
	fmt.Println("  PHISHGUARD_TOKEN_SECRET  HMAC secret for bearer tokens (required in production)")
}

func runServer(port string) {
	cfg := config.NewDefaultConfig()
	cfg.MustValidate()
	if port != "" {
		cfg.Port = port
	}

	svc := NewService(cfg)
	defer svc.Close()

	app := server.New(cfg, svc.detector, svc.attribution, svc.assistant, svc.store, Version).App()

	log.Printf("PhishGuard API starting on :%s", cfg.Port)
	log.Printf("Endpoints:")
	log.Printf("  GET  /health        - Health check")
	log.Printf("  GET  /stats         - Service counters")
	log.Printf("  POST /predict       - Classify text")
	log.Printf("  POST /explain       - Classify with token attribution and narrative")
	log.Printf("  POST /chat          - Security assistant")
	log.Printf("  POST /auth/*        - Accounts (register, login, me, profile)")
	log.Printf("  GET  /history       - Scan history")
	log.Printf("  POST /inbox/*       - IMAP inbox test and scan")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}

func runScan(text string) {
	cfg := config.NewLocalConfig()
	svc := NewService(cfg)
	defer svc.Close()

	result, _, err := svc.detector.Predict(context.Background(), text)
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}
	printJSON(result)
}

func runExplain(text string) {
	cfg := config.NewLocalConfig()
	svc := NewService(cfg)
	defer svc.Close()

	ctx := context.Background()
	verdict, _, err := svc.detector.Predict(ctx, text)
	if err != nil {
		log.Fatalf("explain failed: %v", err)
	}
	attribution := svc.attribution.Explain(ctx, text)
	explanation, _ := svc.assistant.ExplainThreat(ctx, verdict.Label, attribution.TopFeatures)

	printJSON(map[string]any{
		"verdict":     verdict,
		"attribution": attribution,
		"explanation": explanation,
	})
}

func listModels() {
	models := ml.ListAvailableModels()
	if len(models) == 0 {
		fmt.Println("No ML models found.")
		fmt.Println("")
		fmt.Println("The model downloads automatically on first scan, or set")
		fmt.Println("PHISHGUARD_MODEL_PATH to a directory containing model.onnx.")
		return
	}

	fmt.Println("Available ML Models:")
	fmt.Println("")
	for _, m := range models {
		fmt.Printf("  %s\n", m.Name)
		fmt.Printf("    Path: %s\n", m.Path)
		fmt.Printf("    License: %s\n", m.License)
		fmt.Printf("    Size: %s\n", m.Size)
		fmt.Println()
	}
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

// Package server exposes the detection engine over HTTP.
package server

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/phishguard-ai/phishguard/pkg/auth"
	"github.com/phishguard-ai/phishguard/pkg/config"
	"github.com/phishguard-ai/phishguard/pkg/mail"
	"github.com/phishguard-ai/phishguard/pkg/ml"
	"github.com/phishguard-ai/phishguard/pkg/store"
	"github.com/phishguard-ai/phishguard/pkg/telemetry"
)

// Server wires the detection components into HTTP handlers. Persistence is
// optional: with a nil store the account and history endpoints answer 503
// and everything else runs stateless.
type Server struct {
	cfg         *config.Config
	detector    *ml.Detector
	attribution *ml.AttributionEngine
	assistant   *ml.Assistant
	store       *store.Store
	tokens      *auth.TokenIssuer
	stats       *telemetry.Collector
	version     string
}

// New creates a server over already-constructed components. store may be nil.
func New(cfg *config.Config, detector *ml.Detector, attribution *ml.AttributionEngine, assistant *ml.Assistant, st *store.Store, version string) *Server {
	return &Server{
		cfg:         cfg,
		detector:    detector,
		attribution: attribution,
		assistant:   assistant,
		store:       st,
		tokens:      auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL),
		stats:       telemetry.NewCollector(),
		version:     version,
	}
}

// App builds the fiber application with all routes registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "PhishGuard",
	})

	app.Get("/health", s.handleHealth)
	app.Get("/stats", s.handleStats)

	app.Post("/predict", s.handlePredict)
	app.Post("/explain", s.handleExplain)
	app.Post("/chat", s.handleChat)

	app.Post("/auth/register", s.handleRegister)
	app.Post("/auth/login", s.handleLogin)
	app.Get("/auth/me", s.requireAuth(s.handleMe))
	app.Put("/auth/profile", s.requireAuth(s.handleUpdateProfile))
	app.Get("/history", s.requireAuth(s.handleHistory))

	app.Post("/inbox/test", s.handleInboxTest)
	app.Post("/inbox/scan", s.handleInboxScan)

	return app
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"version":  s.version,
		"accounts": s.store != nil,
	})
}

func (s *Server) handleStats(c fiber.Ctx) error {
	return c.JSON(s.stats.Snapshot())
}

// --- detection endpoints ---

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePredict(c fiber.Ctx) error {
	var req textRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	start := time.Now()
	result, cached, err := s.detector.Predict(c.Context(), req.Text)
	if err != nil {
		log.Printf("[SERVER] predict failed: %v", err)
		return c.Status(503).JSON(fiber.Map{"error": "detection engine unavailable"})
	}
	s.stats.TrackPredict(time.Since(start), cached)

	s.recordScan(c, req.Text, result)
	return c.JSON(result)
}

func (s *Server) handleExplain(c fiber.Ctx) error {
	var req textRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	start := time.Now()
	verdict, _, err := s.detector.Predict(c.Context(), req.Text)
	if err != nil {
		log.Printf("[SERVER] explain predict failed: %v", err)
		return c.Status(503).JSON(fiber.Map{"error": "detection engine unavailable"})
	}

	attribution := s.attribution.Explain(c.Context(), req.Text)
	s.stats.TrackExplain(time.Since(start), attribution.Status == ml.AttributionError)

	explanation, fallback := s.assistant.ExplainThreat(c.Context(), verdict.Label, attribution.TopFeatures)

	s.recordScan(c, req.Text, verdict)
	return c.JSON(fiber.Map{
		"verdict":              verdict,
		"attribution":          attribution,
		"explanation":          explanation,
		"explanation_fallback": fallback,
	})
}

func (s *Server) handleChat(c fiber.Ctx) error {
	var req struct {
		Message string `json:"message"`
		Context string `json:"context"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(400).JSON(fiber.Map{"error": "message field is required"})
	}

	start := time.Now()
	answer, fallback := s.assistant.Chat(c.Context(), req.Message, req.Context)
	s.stats.TrackChat(time.Since(start), fallback)

	return c.JSON(fiber.Map{
		"response": answer,
		"fallback": fallback,
	})
}

// --- account endpoints ---

const userKey = "phishguard_user"

// requireAuth verifies the bearer token and loads the account before h runs.
func (s *Server) requireAuth(h fiber.Handler) fiber.Handler {
	return func(c fiber.Ctx) error {
		if s.store == nil {
			return errAccountsDisabled(c)
		}

		header := c.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing bearer token"})
		}

		username, err := s.tokens.Verify(token)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		user, err := s.store.GetUserByUsername(c.Context(), username)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return c.Status(401).JSON(fiber.Map{"error": "unknown account"})
			}
			log.Printf("[SERVER] auth lookup failed: %v", err)
			return c.Status(503).JSON(fiber.Map{"error": "account store unavailable"})
		}

		c.Locals(userKey, user)
		return h(c)
	}
}

func currentUser(c fiber.Ctx) *store.User {
	u, _ := c.Locals(userKey).(*store.User)
	return u
}

func errAccountsDisabled(c fiber.Ctx) error {
	return c.Status(503).JSON(fiber.Map{"error": "accounts unavailable: no database configured"})
}

func (s *Server) handleRegister(c fiber.Ctx) error {
	if s.store == nil {
		return errAccountsDisabled(c)
	}

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 8 {
		return c.Status(400).JSON(fiber.Map{"error": "username and a password of at least 8 characters are required"})
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("[SERVER] password hash failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}

	user, err := s.store.CreateUser(c.Context(), req.Username, strings.TrimSpace(req.Email), hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return c.Status(409).JSON(fiber.Map{"error": "username already taken"})
		}
		log.Printf("[SERVER] create user failed: %v", err)
		return c.Status(503).JSON(fiber.Map{"error": "account store unavailable"})
	}

	return c.Status(201).JSON(fiber.Map{
		"user":  user,
		"token": s.tokens.Issue(user.Username),
	})
}

func (s *Server) handleLogin(c fiber.Ctx) error {
	if s.store == nil {
		return errAccountsDisabled(c)
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	user, err := s.store.GetUserByUsername(c.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(401).JSON(fiber.Map{"error": "invalid credentials"})
		}
		log.Printf("[SERVER] login lookup failed: %v", err)
		return c.Status(503).JSON(fiber.Map{"error": "account store unavailable"})
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return c.Status(401).JSON(fiber.Map{"error": "invalid credentials"})
	}

	return c.JSON(fiber.Map{
		"user":  user,
		"token": s.tokens.Issue(user.Username),
	})
}

func (s *Server) handleMe(c fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

func (s *Server) handleUpdateProfile(c fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	hash := ""
	if req.Password != "" {
		if len(req.Password) < 8 {
			return c.Status(400).JSON(fiber.Map{"error": "password must be at least 8 characters"})
		}
		var err error
		hash, err = auth.HashPassword(req.Password)
		if err != nil {
			log.Printf("[SERVER] password hash failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "internal error"})
		}
	}

	user := currentUser(c)
	if err := s.store.UpdateUser(c.Context(), user.ID, strings.TrimSpace(req.Email), hash); err != nil {
		log.Printf("[SERVER] profile update failed: %v", err)
		return c.Status(503).JSON(fiber.Map{"error": "account store unavailable"})
	}
	return c.JSON(fiber.Map{"status": "updated"})
}

func (s *Server) handleHistory(c fiber.Ctx) error {
	user := currentUser(c)
	limit := fiber.Query[int](c, "limit", 50)

	records, err := s.store.ListScansByUser(c.Context(), user.ID, limit)
	if err != nil {
		log.Printf("[SERVER] history lookup failed: %v", err)
		return c.Status(503).JSON(fiber.Map{"error": "account store unavailable"})
	}
	return c.JSON(fiber.Map{"scans": records})
}

// recordScan persists a verdict to the caller's history when the request
// carries a valid token and a store is configured. Detection endpoints stay
// usable without either, so failures only log.
func (s *Server) recordScan(c fiber.Ctx, text string, result *ml.ClassificationResult) {
	if s.store == nil {
		return
	}
	token, ok := strings.CutPrefix(c.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return
	}
	username, err := s.tokens.Verify(token)
	if err != nil {
		return
	}
	user, err := s.store.GetUserByUsername(c.Context(), username)
	if err != nil {
		return
	}

	record := &store.ScanRecord{
		UserID:      user.ID,
		InputText:   text,
		Label:       result.Label,
		Probability: result.Probability,
		Findings:    result.Findings,
		EngineTag:   result.EngineTag,
	}
	if err := s.store.InsertScan(c.Context(), record); err != nil {
		log.Printf("[SERVER] scan history insert failed: %v", err)
	}
}

// --- inbox endpoints ---

func (s *Server) handleInboxTest(c fiber.Ctx) error {
	var creds mail.Credentials
	if err := c.Bind().Body(&creds); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if creds.Email == "" || creds.Password == "" {
		return c.Status(400).JSON(fiber.Map{"error": "email and password are required"})
	}

	if err := mail.TestConnection(creds); err != nil {
		log.Printf("[SERVER] inbox connection test failed: %v", err)
		return c.Status(401).JSON(fiber.Map{"connected": false, "error": "could not connect to mailbox"})
	}
	return c.JSON(fiber.Map{"connected": true})
}

func (s *Server) handleInboxScan(c fiber.Ctx) error {
	var req struct {
		mail.Credentials
		Limit int `json:"limit"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		return c.Status(400).JSON(fiber.Map{"error": "email and password are required"})
	}

	messages, err := mail.FetchRecent(req.Credentials, req.Limit)
	if err != nil {
		log.Printf("[SERVER] inbox fetch failed: %v", err)
		return c.Status(502).JSON(fiber.Map{"error": "could not fetch messages"})
	}

	type scannedMessage struct {
		mail.Message
		Verdict *ml.ClassificationResult `json:"verdict"`
	}

	scanned := make([]scannedMessage, 0, len(messages))
	for _, msg := range messages {
		text := msg.Subject + "\n" + msg.Body
		start := time.Now()
		verdict, cached, err := s.detector.Predict(c.Context(), text)
		if err != nil {
			return c.Status(503).JSON(fiber.Map{"error": fmt.Sprintf("detection failed on message %s", msg.ID)})
		}
		s.stats.TrackPredict(time.Since(start), cached)
		scanned = append(scanned, scannedMessage{Message: msg, Verdict: verdict})
	}

	return c.JSON(fiber.Map{"messages": scanned})
}

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/lendfast/drawbridge/internal/auth"
	"github.com/lendfast/drawbridge/internal/database"
	"github.com/lendfast/drawbridge/internal/handlers"
	"github.com/lendfast/drawbridge/internal/identity"
	"github.com/lendfast/drawbridge/internal/limiter"
	middlewareCustom "github.com/lendfast/drawbridge/internal/middleware"
	"github.com/lendfast/drawbridge/internal/models"
	"github.com/lendfast/drawbridge/internal/routes"
	"github.com/lendfast/drawbridge/internal/services"
	pkghttp "github.com/lendfast/drawbridge/pkg/http"
	pkglogger "github.com/lendfast/drawbridge/pkg/logger"
)

const testJWTSecret = "test-secret-32-characters-long-for-testing"

// testMFAEncryptionKey is exactly 32 bytes for AES-256
var testMFAEncryptionKey = []byte("test-mfa-encryption-key-32-chars")

// stubAccount is one provider account the stub accepts credentials for
type stubAccount struct {
	ID       string
	Email    string
	Password string
	Role     string
}

// stubFactor is one provider MFA factor with a fixed accepted code
type stubFactor struct {
	Email string
	Code  string
}

// StubIdentityProvider fakes the hosted identity provider over HTTP, so the
// real client path (request shape, apikey header, error decoding) is
// exercised without network access.
type StubIdentityProvider struct {
	Server *httptest.Server

	mu            sync.Mutex
	accounts      map[string]stubAccount
	factors       map[string]stubFactor
	tokenCalls    int
	recoverEmails []string
}

// NewStubIdentityProvider starts the stub and returns it
func NewStubIdentityProvider() *StubIdentityProvider {
	s := &StubIdentityProvider{
		accounts: make(map[string]stubAccount),
		factors:  make(map[string]stubFactor),
	}

	r := chi.NewRouter()
	r.Post("/token", s.handleToken)
	r.Post("/signup", s.handleSignup)
	r.Post("/recover", s.handleRecover)
	r.Post("/factors/{factorID}/challenge", s.handleChallenge)
	r.Post("/factors/{factorID}/verify", s.handleVerify)

	s.Server = httptest.NewServer(r)
	return s
}

// Close shuts the stub down
func (s *StubIdentityProvider) Close() {
	s.Server.Close()
}

// RegisterAccount adds a provider account and returns its user ID
func (s *StubIdentityProvider) RegisterAccount(email, password, role string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.accounts[email] = stubAccount{ID: id, Email: email, Password: password, Role: role}
	return id
}

// RegisterFactor adds an MFA factor that accepts one fixed code and returns
// the factor ID
func (s *StubIdentityProvider) RegisterFactor(email, code string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "factor-" + uuid.NewString()[:8]
	s.factors[id] = stubFactor{Email: email, Code: code}
	return id
}

// TokenCalls reports how many password grants reached the provider. Lockout
// tests use it to prove refused attempts never left the service.
func (s *StubIdentityProvider) TokenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCalls
}

// RecoverEmails returns the addresses reset emails were requested for
func (s *StubIdentityProvider) RecoverEmails() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recoverEmails...)
}

func (s *StubIdentityProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeProviderError(w, http.StatusBadRequest, "bad_json", "could not parse request")
		return
	}

	s.mu.Lock()
	s.tokenCalls++
	acct, ok := s.accounts[req.Email]
	s.mu.Unlock()

	if !ok || acct.Password != req.Password {
		s.writeProviderError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
		return
	}

	s.writeSession(w, acct)
}

func (s *StubIdentityProvider) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeProviderError(w, http.StatusBadRequest, "bad_json", "could not parse request")
		return
	}

	s.mu.Lock()
	_, exists := s.accounts[req.Email]
	var acct stubAccount
	if !exists {
		acct = stubAccount{ID: uuid.NewString(), Email: req.Email, Password: req.Password, Role: models.RoleBorrower}
		s.accounts[req.Email] = acct
	}
	s.mu.Unlock()

	if exists {
		s.writeProviderError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}

	s.writeSession(w, acct)
}

func (s *StubIdentityProvider) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	s.recoverEmails = append(s.recoverEmails, req.Email)
	s.mu.Unlock()

	writeStubJSON(w, http.StatusOK, map[string]string{})
}

func (s *StubIdentityProvider) handleChallenge(w http.ResponseWriter, r *http.Request) {
	factorID := chi.URLParam(r, "factorID")

	s.mu.Lock()
	_, ok := s.factors[factorID]
	s.mu.Unlock()

	if !ok {
		s.writeProviderError(w, http.StatusUnprocessableEntity, "factor_not_found", "Factor not found")
		return
	}

	writeStubJSON(w, http.StatusOK, map[string]any{
		"id":         "chal-" + uuid.NewString()[:8],
		"expires_at": time.Now().Add(5 * time.Minute).Unix(),
	})
}

func (s *StubIdentityProvider) handleVerify(w http.ResponseWriter, r *http.Request) {
	factorID := chi.URLParam(r, "factorID")

	var req struct {
		ChallengeID string `json:"challenge_id"`
		Code        string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeProviderError(w, http.StatusBadRequest, "bad_json", "could not parse request")
		return
	}

	s.mu.Lock()
	factor, ok := s.factors[factorID]
	var acct stubAccount
	if ok {
		acct = s.accounts[factor.Email]
	}
	s.mu.Unlock()

	if !ok || req.Code != factor.Code {
		s.writeProviderError(w, http.StatusUnprocessableEntity, "invalid_code", "Invalid verification code")
		return
	}

	s.writeSession(w, acct)
}

func (s *StubIdentityProvider) writeSession(w http.ResponseWriter, acct stubAccount) {
	writeStubJSON(w, http.StatusOK, map[string]any{
		"access_token":  "provider-access-" + acct.ID,
		"refresh_token": "provider-refresh-" + acct.ID,
		"token_type":    "bearer",
		"expires_in":    3600,
		"user": map[string]any{
			"id":    acct.ID,
			"email": acct.Email,
			"app_metadata": map[string]any{
				"role": acct.Role,
			},
		},
	})
}

func (s *StubIdentityProvider) writeProviderError(w http.ResponseWriter, status int, code, msg string) {
	writeStubJSON(w, status, map[string]string{
		"error_code": code,
		"msg":        msg,
	})
}

func writeStubJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// CapturedAlert is one lockout notification the recording alerter received
type CapturedAlert struct {
	Email       string
	ActionClass string
	RetryAfter  time.Duration
}

// RecordingAlerter implements services.LockoutAlerter and captures alerts
// for assertions
type RecordingAlerter struct {
	mu     sync.Mutex
	alerts []CapturedAlert
}

// SendLockoutAlert records the alert
func (a *RecordingAlerter) SendLockoutAlert(ctx context.Context, email, actionClass string, retryAfter time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.alerts = append(a.alerts, CapturedAlert{Email: email, ActionClass: actionClass, RetryAfter: retryAfter})
	return nil
}

// Alerts returns a copy of everything captured so far
func (a *RecordingAlerter) Alerts() []CapturedAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]CapturedAlert(nil), a.alerts...)
}

// TestServer wires the full HTTP stack against a real database, a stub
// identity provider, and a recording alerter
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Provider *StubIdentityProvider
	Alerts   *RecordingAlerter

	Tracker      *limiter.Tracker
	TokenManager *auth.TokenManager

	logger *slog.Logger
}

// NewTestServer builds the production wiring around the given database. The
// only substitutions are the provider stub and the alert recorder.
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	provider := NewStubIdentityProvider()

	rateLimitRepo, auditRepo, mfaRepo, executor := InitializeRepositories(db)

	tokenManager := auth.NewTokenManager(testJWTSecret, 15*time.Minute, 5*time.Minute)

	totpManager, err := auth.NewTOTPManager(testMFAEncryptionKey, "Drawbridge Test")
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to create TOTP manager: %w", err)
	}

	idpClient := identity.NewClient(identity.Config{
		BaseURL: provider.Server.URL,
		APIKey:  "test-anon-key",
		Timeout: 5 * time.Second,
	}, logger)

	tracker := limiter.NewTracker()

	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditRepo, auditLogger, logger)

	throttleService := services.NewThrottleService(rateLimitRepo, services.DefaultThrottleConfig(), logger)

	// Zero delay keeps the suite fast; timing equalization has its own unit
	// coverage
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	alerts := &RecordingAlerter{}
	notifier := limiter.NewLogNotifier(logger)

	authService := services.NewAuthService(idpClient, tracker, tokenManager, timingDelay, auditService, alerts, notifier, logger)
	mfaService := services.NewMFAService(mfaRepo, totpManager, tokenManager, tracker, auditService, notifier, logger)
	consoleService := services.NewConsoleService(executor, throttleService, auditService, logger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: []string{}}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	mfaHandler := handlers.NewMFAHandler(mfaService)
	consoleHandler := handlers.NewConsoleHandler(consoleService, ipConfig)
	auditHandler := handlers.NewAuditHandler(auditService)
	throttleHandler := handlers.NewThrottleHandler(throttleService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Wide flood screen so per-principal budget tests exercise the attempt
	// tracker rather than the per-IP limiter; every request comes from
	// 127.0.0.1 here
	routes.RegisterRoutes(r, authHandler, mfaHandler, consoleHandler, auditHandler, throttleHandler, tokenManager,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: 1000})

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		Provider:     provider,
		Alerts:       alerts,
		Tracker:      tracker,
		TokenManager: tokenManager,
		logger:       logger,
	}, nil
}

// Close shuts down the HTTP server and the provider stub
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Provider != nil {
		ts.Provider.Close()
	}
}

// MintAdminToken returns a signed access token for an admin identity
func (ts *TestServer) MintAdminToken(userID uuid.UUID, email string) (string, error) {
	return ts.TokenManager.GenerateAccessToken(userID.String(), email, models.RoleAdmin)
}

// Request makes a JSON request against the test server
func (ts *TestServer) Request(method, path string, body any, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated JSON request
func (ts *TestServer) RequestWithAuth(method, path, token string, body any) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// ParseJSONResponse decodes a response body into target and closes the body
func ParseJSONResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrorCode extracts the machine-readable code from an error response
func ErrorCode(resp *http.Response) (string, error) {
	var errResp pkghttp.ErrorResponse
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", err
	}
	return errResp.Error, nil
}

package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lendfast/drawbridge/internal/auth"
	"github.com/lendfast/drawbridge/internal/identity"
	"github.com/lendfast/drawbridge/internal/limiter"
	"github.com/lendfast/drawbridge/internal/models"
)

// IdentityProvider defines the interface to the hosted auth provider
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, email, password string) (*identity.Session, error)
	SendPasswordReset(ctx context.Context, email string) error
	OAuthRedirectURL(provider, redirectTo string) string
	ChallengeMFA(ctx context.Context, factorID string) (*identity.Challenge, error)
	VerifyMFA(ctx context.Context, factorID, challengeID, code string) (*identity.Session, error)
}

// LockoutAlerter defines the interface for lockout security notifications
type LockoutAlerter interface {
	SendLockoutAlert(ctx context.Context, email, actionClass string, retryAfter time.Duration) error
}

// UserResponse represents the authenticated principal in HTTP responses
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token,omitempty"`
	TokenType    string        `json:"token_type,omitempty"`
	ExpiresIn    int           `json:"expires_in,omitempty"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	User         *UserResponse `json:"user,omitempty"`
}

// AuthService runs the gated authentication flows. Every attempt passes the
// local tracker before the hosted provider is contacted: a locked-out
// principal is refused without burning a provider call, and a successful
// sign-in forgives the accumulated failures.
type AuthService struct {
	provider IdentityProvider
	tracker  *limiter.Tracker
	tm       *auth.TokenManager
	timing   *auth.TimingDelay
	audit    *AuditService
	alerts   LockoutAlerter
	notifier limiter.Notifier
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService. alerts and notifier may be nil;
// lockouts then go unannounced but are still enforced.
func NewAuthService(provider IdentityProvider, tracker *limiter.Tracker, tm *auth.TokenManager, timing *auth.TimingDelay, audit *AuditService, alerts LockoutAlerter, notifier limiter.Notifier, logger *slog.Logger) *AuthService {
	return &AuthService{
		provider: provider,
		tracker:  tracker,
		tm:       tm,
		timing:   timing,
		audit:    audit,
		alerts:   alerts,
		notifier: notifier,
		logger:   logger,
	}
}

// Login authenticates a user against the hosted provider, gated by the
// login attempt budget.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*AuthResponse, error) {
	started := time.Now()

	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrUnauthorized
	}

	decision, limitErr := s.gate(ctx, limiter.ActionLogin, email, &ipAddress, &userAgent)
	if limitErr != nil {
		s.timing.WaitFrom(ctx, started, false)
		return nil, limitErr
	}

	session, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		outErr := s.mapProviderError(err, models.ErrUnauthorized)
		reason := failureReasonFor(outErr)
		s.audit.LogAuthEvent(ctx, models.AuditEventTypeLogin, email, false, &reason, &ipAddress, &userAgent, models.AuditMetadata{
			"remaining_attempts": decision.Remaining,
		})
		s.logger.Info("login failed", slog.String("reason", reason))
		s.timing.WaitFrom(ctx, started, false)
		return nil, outErr
	}

	// Success forgives the accumulated failed attempts
	s.tracker.Reset(limiter.KeyFor(limiter.ActionLogin, email))

	resp, err := s.mintResponse(session)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", session.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthEvent(ctx, models.AuditEventTypeLogin, email, true, nil, &ipAddress, &userAgent, nil)
	s.logger.Info("user logged in", slog.String("user_id", session.UserID))
	s.timing.WaitFrom(ctx, started, true)

	return resp, nil
}

// SignUp registers a new account with the hosted provider, gated by the
// signup budget.
func (s *AuthService) SignUp(ctx context.Context, email, password, ipAddress, userAgent string) (*AuthResponse, error) {
	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		return nil, models.ErrBadRequest
	}

	if _, limitErr := s.gate(ctx, limiter.ActionSignup, email, &ipAddress, &userAgent); limitErr != nil {
		return nil, limitErr
	}

	session, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		outErr := s.mapProviderError(err, models.ErrConflict)
		reason := failureReasonFor(outErr)
		s.audit.LogAuthEvent(ctx, models.AuditEventTypeSignup, email, false, &reason, &ipAddress, &userAgent, nil)
		s.logger.Info("signup failed", slog.String("reason", reason))
		return nil, outErr
	}

	s.tracker.Reset(limiter.KeyFor(limiter.ActionSignup, email))
	s.audit.LogAuthEvent(ctx, models.AuditEventTypeSignup, email, true, nil, &ipAddress, &userAgent, nil)
	s.logger.Info("user signed up", slog.String("user_id", session.UserID))

	// Providers configured for email confirmation return no session yet
	if session.AccessToken == "" {
		return &AuthResponse{User: sessionUser(session)}, nil
	}

	resp, err := s.mintResponse(session)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", session.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return resp, nil
}

// RequestPasswordReset asks the provider to send a reset email, gated by the
// passwordReset budget. The response never reveals whether the address
// exists; each request consumes budget regardless.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, ipAddress, userAgent string) error {
	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		return models.ErrBadRequest
	}

	if _, limitErr := s.gate(ctx, limiter.ActionPasswordReset, email, &ipAddress, &userAgent); limitErr != nil {
		return limitErr
	}

	if err := s.provider.SendPasswordReset(ctx, email); err != nil {
		var apiErr *identity.APIError
		if errors.As(err, &apiErr) {
			// Provider rejections stay invisible to the caller so the
			// endpoint cannot be used to probe for accounts
			s.logger.Info("password reset rejected by provider", slog.Int("status", apiErr.Status))
		} else {
			s.logger.Error("password reset request failed", slog.Any("error", err))
			return models.ErrInternalServer
		}
	}

	s.audit.LogAuthEvent(ctx, models.AuditEventTypePasswordReset, email, true, nil, &ipAddress, &userAgent, nil)
	return nil
}

// OAuthSignInURL builds the provider redirect for an OAuth sign-in, gated by
// the oauthSignIn budget keyed per client address.
func (s *AuthService) OAuthSignInURL(ctx context.Context, oauthProvider, redirectTo, ipAddress string) (string, error) {
	if oauthProvider == "" {
		return "", models.ErrBadRequest
	}

	if _, limitErr := s.gate(ctx, limiter.ActionOAuthSignIn, ipAddress, &ipAddress, nil); limitErr != nil {
		return "", limitErr
	}

	s.audit.LogAuthEvent(ctx, models.AuditEventTypeOAuthSignIn, ipAddress, true, nil, &ipAddress, nil, models.AuditMetadata{
		"provider": oauthProvider,
	})

	return s.provider.OAuthRedirectURL(oauthProvider, redirectTo), nil
}

// ChallengeMFA starts a provider-side MFA challenge, gated by the
// mfaChallenge budget keyed per factor.
func (s *AuthService) ChallengeMFA(ctx context.Context, factorID, ipAddress string) (*identity.Challenge, error) {
	if factorID == "" {
		return nil, models.ErrBadRequest
	}

	if _, limitErr := s.gate(ctx, limiter.ActionMFAChallenge, factorID, &ipAddress, nil); limitErr != nil {
		return nil, limitErr
	}

	challenge, err := s.provider.ChallengeMFA(ctx, factorID)
	if err != nil {
		outErr := s.mapProviderError(err, models.ErrUnauthorized)
		reason := failureReasonFor(outErr)
		s.audit.LogAuthEvent(ctx, models.AuditEventTypeMFAChallenge, factorID, false, &reason, &ipAddress, nil, nil)
		return nil, outErr
	}

	s.audit.LogAuthEvent(ctx, models.AuditEventTypeMFAChallenge, factorID, true, nil, &ipAddress, nil, nil)
	return challenge, nil
}

// VerifyMFA completes a provider-side MFA challenge, gated by the mfaVerify
// budget keyed per factor. Success forgives prior failed verifications.
func (s *AuthService) VerifyMFA(ctx context.Context, factorID, challengeID, code, ipAddress string) (*AuthResponse, error) {
	started := time.Now()

	if factorID == "" || code == "" {
		return nil, models.ErrBadRequest
	}

	if _, limitErr := s.gate(ctx, limiter.ActionMFAVerify, factorID, &ipAddress, nil); limitErr != nil {
		s.timing.WaitFrom(ctx, started, false)
		return nil, limitErr
	}

	session, err := s.provider.VerifyMFA(ctx, factorID, challengeID, code)
	if err != nil {
		outErr := s.mapProviderError(err, models.ErrMFACodeInvalid)
		reason := failureReasonFor(outErr)
		s.audit.LogAuthEvent(ctx, models.AuditEventTypeMFAVerify, factorID, false, &reason, &ipAddress, nil, nil)
		s.timing.WaitFrom(ctx, started, false)
		return nil, outErr
	}

	s.tracker.Reset(limiter.KeyFor(limiter.ActionMFAVerify, factorID))
	s.audit.LogAuthEvent(ctx, models.AuditEventTypeMFAVerify, factorID, true, nil, &ipAddress, nil, nil)

	resp, err := s.mintResponse(session)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", session.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.timing.WaitFrom(ctx, started, true)
	return resp, nil
}

// gate runs one attempt through the local tracker. A denial returns a
// *models.RateLimitError carrying the remaining wait; the lockout transition
// additionally raises the audit record and the security alert.
func (s *AuthService) gate(ctx context.Context, action limiter.Action, principal string, ipAddress, userAgent *string) (limiter.Decision, error) {
	cfg := s.tracker.ConfigFor(action)
	key := limiter.KeyFor(action, principal)

	wasLocked := s.tracker.IsLockedOut(key)
	decision := s.tracker.CheckAndRecord(key, &cfg)
	if decision.Allowed {
		return decision, nil
	}

	if !wasLocked {
		s.audit.LogLockout(ctx, principal, string(action), decision.RetryAfter)
		if cfg.Notify && s.alerts != nil {
			if err := s.alerts.SendLockoutAlert(ctx, principal, string(action), decision.RetryAfter); err != nil {
				s.logger.Error("failed to send lockout alert", slog.Any("error", err))
			}
		}
	} else {
		reason := "locked_out"
		s.audit.LogAuthEvent(ctx, auditEventFor(action), principal, false, &reason, ipAddress, userAgent, models.AuditMetadata{
			"retry_after_secs": int(decision.RetryAfter.Seconds()),
		})
	}

	if s.notifier != nil {
		for _, notice := range decision.Notices {
			s.notifier.Notify(notice)
		}
	}

	return decision, &models.RateLimitError{
		RetryAfter: decision.RetryAfter,
		ResetAt:    time.Now().Add(decision.RetryAfter),
	}
}

// mapProviderError folds a provider response into the error taxonomy:
// credential rejections become authFailure, anything else means the provider
// itself is unwell.
func (s *AuthService) mapProviderError(err error, authFailure error) error {
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) && apiErr.IsAuthFailure() {
		return authFailure
	}
	s.logger.Error("identity provider request failed", slog.Any("error", err))
	return models.ErrInternalServer
}

func (s *AuthService) mintResponse(session *identity.Session) (*AuthResponse, error) {
	role := session.Role
	if role == "" {
		role = models.RoleBorrower
	}

	accessToken, err := s.tm.GenerateAccessToken(session.UserID, session.Email, role)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.tm.AccessTokenExpiry().Seconds()),
		RefreshToken: session.RefreshToken,
		User: &UserResponse{
			ID:    session.UserID,
			Email: session.Email,
			Role:  role,
		},
	}, nil
}

func sessionUser(session *identity.Session) *UserResponse {
	role := session.Role
	if role == "" {
		role = models.RoleBorrower
	}
	return &UserResponse{
		ID:    session.UserID,
		Email: session.Email,
		Role:  role,
	}
}

func auditEventFor(action limiter.Action) string {
	switch action {
	case limiter.ActionLogin:
		return models.AuditEventTypeLogin
	case limiter.ActionSignup:
		return models.AuditEventTypeSignup
	case limiter.ActionPasswordReset:
		return models.AuditEventTypePasswordReset
	case limiter.ActionOAuthSignIn:
		return models.AuditEventTypeOAuthSignIn
	case limiter.ActionMFAChallenge:
		return models.AuditEventTypeMFAChallenge
	case limiter.ActionMFAVerify:
		return models.AuditEventTypeMFAVerify
	default:
		return string(action)
	}
}

func failureReasonFor(err error) string {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return "invalid_credentials"
	case errors.Is(err, models.ErrConflict):
		return "already_registered"
	case errors.Is(err, models.ErrMFACodeInvalid):
		return "invalid_code"
	default:
		return "provider_error"
	}
}

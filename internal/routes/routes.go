package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/lendfast/drawbridge/internal/auth"
	"github.com/lendfast/drawbridge/internal/handlers"
	"github.com/lendfast/drawbridge/internal/middleware"
	"github.com/lendfast/drawbridge/internal/models"
)

// RegisterRoutes registers all application routes.
//
// The admin surface is layered: every /admin route needs a valid access
// token with the admin role, and the console write path additionally needs
// the elevated token a step-up mints. Manual throttle blocks sit behind the
// same elevation because they mutate shared defensive state.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	mfaHandler *handlers.MFAHandler,
	consoleHandler *handlers.ConsoleHandler,
	auditHandler *handlers.AuditHandler,
	throttleHandler *handlers.ThrottleHandler,
	tokenManager *auth.TokenManager,
	authRateLimit middleware.RateLimitConfig,
) {
	router.Group(func(r chi.Router) {
		// Flood screen in front of the credential endpoints
		r.Use(middleware.RateLimitByIP(authRateLimit))

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/signup", authHandler.SignUp)
		r.Post("/auth/password-reset", authHandler.RequestPasswordReset)
		r.Get("/auth/oauth/{provider}/url", authHandler.OAuthSignIn)
		r.Post("/auth/mfa/challenge", authHandler.ChallengeMFA)
		r.Post("/auth/mfa/verify", authHandler.VerifyMFA)
	})

	// Admin routes - authentication and role required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(auth.RequireRole(models.RoleAdmin))

		// Device management and step-up run on an access token; step-up is
		// how the elevated token is obtained in the first place
		r.Post("/admin/mfa/enroll", mfaHandler.Enroll)
		r.Post("/admin/mfa/activate", mfaHandler.Activate)
		r.Post("/admin/mfa/step-up", mfaHandler.StepUp)
		r.Post("/admin/mfa/step-up/recovery", mfaHandler.StepUpWithRecoveryCode)
		r.Get("/admin/mfa/status", mfaHandler.Status)
		r.Delete("/admin/mfa", mfaHandler.Disenroll)

		r.Get("/admin/audit/actors/{id}", auditHandler.GetActorTrail)
		r.Get("/admin/audit/principals/{key}", auditHandler.GetPrincipalTrail)
		r.Get("/admin/audit/events/{type}", auditHandler.GetEventTrail)
		r.Get("/admin/audit/failures", auditHandler.GetRecentFailures)

		// Console and manual throttle control need a fresh step-up
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireElevated())

			r.Post("/admin/console/mutate", consoleHandler.Mutate)
			r.Post("/admin/console/query", consoleHandler.Query)

			r.Post("/admin/throttle/blocks", throttleHandler.Block)
			r.Delete("/admin/throttle/blocks/{identifier}", throttleHandler.Unblock)
		})
	})
}

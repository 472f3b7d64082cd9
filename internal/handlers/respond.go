package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lendfast/drawbridge/internal/auth"
	"github.com/lendfast/drawbridge/internal/limiter"
	"github.com/lendfast/drawbridge/internal/models"
	pkghttp "github.com/lendfast/drawbridge/pkg/http"
)

// writeRateLimited renders a denied attempt as a 429. The RateLimitError
// carries the retry horizon; the message shows the wait the way the portal
// displays it.
func writeRateLimited(w http.ResponseWriter, err error) {
	var rle *models.RateLimitError
	if errors.As(err, &rle) {
		message := "Too many attempts. Try again in " + limiter.FormatRemaining(rle.RetryAfter) + "."
		pkghttp.WriteRateLimited(w, rle.RetryAfter, rle.ResetAt, message)
		return
	}
	pkghttp.WriteRateLimited(w, time.Minute, time.Time{}, "Too many attempts. Please try again later.")
}

// actorFromRequest resolves the authenticated actor's UUID and claims from
// the request context. Returns false after writing a 401 when the route was
// reached without AuthMiddleware or with malformed claims.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, *models.TokenClaims, bool) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return uuid.Nil, nil, false
	}

	actorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return uuid.Nil, nil, false
	}

	return actorID, claims, true
}

package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TestPrincipal generates unique borrower credentials so parallel tests
// never collide on stub provider accounts or tracker keys.
func TestPrincipal(suffix string) (email, password string) {
	email = fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
	password = "CorrectHorse9Battery!"
	return
}

// NewTestAdmin returns a fresh admin identity. Admin accounts live in the
// hosted provider, so tests only need an ID and email that agree between
// token claims and database rows.
func NewTestAdmin() (uuid.UUID, string) {
	id := uuid.New()
	return id, fmt.Sprintf("admin-%s@lendfast.example", id.String()[:8])
}

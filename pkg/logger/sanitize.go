package logger

import (
	"strings"
)

// sensitiveQueryParams are matched as substrings on purpose: "reset_token",
// "apikey", "recovery_code" and friends all hit their base form.
var sensitiveQueryParams = []string{
	"password",
	"token",
	"secret",
	"code",
	"recovery",
	"api_key",
	"apikey",
	"email",
	"auth",
}

// SanitizedPrincipal masks a tracker principal key for log output. Keys are
// shaped "action:principal"; the action class is kept and the principal is
// masked. A bare principal (no action prefix) is masked whole.
func SanitizedPrincipal(key string) string {
	action, principal, found := strings.Cut(key, ":")
	if !found {
		return maskPrincipal(key)
	}
	return action + ":" + maskPrincipal(principal)
}

// SanitizedEmail masks an email address for log output, keeping the first
// character of the local part and the final domain label ("j***@*******.com").
func SanitizedEmail(email string) string {
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" || domain == "" {
		return "[invalid-email]"
	}

	masked := string(local[0])
	if len(local) > 1 {
		masked += strings.Repeat("*", len(local)-1)
	}

	if i := strings.LastIndex(domain, "."); i > 0 {
		domain = strings.Repeat("*", i) + domain[i:]
	} else {
		domain = strings.Repeat("*", len(domain))
	}

	return masked + "@" + domain
}

// maskPrincipal masks a single principal. Emails keep their first character
// and TLD; opaque identifiers (factor IDs, client IPs) keep a short prefix
// so correlated events stay distinguishable in the feed.
func maskPrincipal(principal string) string {
	if principal == "" {
		return ""
	}
	if strings.Contains(principal, "@") {
		return SanitizedEmail(principal)
	}

	const keep = 4
	if len(principal) <= keep {
		return strings.Repeat("*", len(principal))
	}
	return principal[:keep] + strings.Repeat("*", len(principal)-keep)
}

// SanitizeQueryString reports whether a raw query string carries parameters
// that must never reach the request log.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveQueryParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}

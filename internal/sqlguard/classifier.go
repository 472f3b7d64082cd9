// Package sqlguard classifies raw SQL statements submitted to the admin
// console before they are allowed anywhere near a connection. Classification
// is deliberately conservative: anything it cannot positively identify as a
// plain read or row-level write is blocked rather than guessed at.
package sqlguard

import "strings"

// Class is the category a statement falls into.
type Class int

const (
	// ClassBlocked statements are never executed.
	ClassBlocked Class = iota
	// ClassRead statements may run on the read endpoint only.
	ClassRead
	// ClassWrite statements may run on the mutate endpoint only.
	ClassWrite
)

// String returns the class name used in logs and audit records.
func (c Class) String() string {
	switch c {
	case ClassRead:
		return "read"
	case ClassWrite:
		return "write"
	default:
		return "blocked"
	}
}

// blockedFragments match destructive or privilege-changing operations
// anywhere in a statement, not just at the start, so they cannot be smuggled
// in behind an innocent prefix. The trailing spaces keep identifiers like
// "role_grants" from matching.
var blockedFragments = []string{
	"DROP ",
	"TRUNCATE",
	"ALTER ROLE",
	"ALTER USER",
	"CREATE ROLE",
	"CREATE USER",
	"GRANT ",
	"REVOKE ",
	"COPY ",
}

var readPrefixes = []string{"SELECT", "SHOW", "EXPLAIN"}

var writePrefixes = []string{"INSERT", "UPDATE", "DELETE"}

// Classify categorizes a raw SQL statement. The statement is uppercased and
// trimmed, checked against the blocklist first, then matched on its leading
// verb. Unknown verbs are blocked.
func Classify(statement string) Class {
	normalized := strings.ToUpper(strings.TrimSpace(statement))
	if normalized == "" {
		return ClassBlocked
	}

	for _, fragment := range blockedFragments {
		if strings.Contains(normalized, fragment) {
			return ClassBlocked
		}
	}

	switch {
	case hasAnyPrefix(normalized, readPrefixes):
		return ClassRead
	case hasAnyPrefix(normalized, writePrefixes):
		return ClassWrite
	default:
		return ClassBlocked
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

package repositories

import "strings"

// isUniqueViolation reports whether err is a unique-constraint violation
// from either the sqlite or postgres driver. GORM does not normalize driver
// errors, so callers that need to turn a constraint violation into
// ErrConflict match on the driver-specific substrings directly, the same way
// the teacher's destination/policy repositories do.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}

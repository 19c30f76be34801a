package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// IsUniqueViolation reports whether the provided error references a unique
// violation. When constraintName is provided, the constraint must match too.
// sqlite test databases only surface the violation in the message text.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	if pg, ok := pkgerrors.AsPGError(err); ok {
		if pg.Code != pkgerrors.PGUniqueViolation {
			return false
		}
		if constraintName == "" {
			return true
		}
		if pg.Constraint != "" {
			return pg.Constraint == constraintName
		}
		return strings.Contains(err.Error(), constraintName)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

package repository

import (
	"errors"

	"github.com/lib/pq"
)

// pq error code for unique constraint violations.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a duplicate-key failure.
// These are the only persistence errors worth retrying: two racing
// idempotent creates can both miss the lookup and collide on insert.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

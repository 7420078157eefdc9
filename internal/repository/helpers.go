package repository

import (
	"errors"

	"github.com/lib/pq"
)

// isUniqueViolation reports a Postgres unique-constraint failure (23505).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

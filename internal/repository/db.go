package repository

import (
	"errors"

	"github.com/lib/pq"
)

type scanner interface {
	Scan(dest ...any) error
}

// Postgres error codes the repositories translate into domain errors.
const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

func isPgCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

func IsUniqueViolation(err error) bool {
	return isPgCode(err, pgUniqueViolation)
}

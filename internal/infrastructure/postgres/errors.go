package postgres

import (
	"errors"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlstateSerialization = "40001"
	sqlstateDeadlock      = "40P01"
	sqlstateLockTimeout   = "55P03"
)

// mapErr turns driver errors into domain errors. Lock contention becomes a
// retryable state conflict; everything else is a persistence failure.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerialization, sqlstateDeadlock, sqlstateLockTimeout:
			return domain.ErrConcurrentUpdate("game is busy, retry", err)
		}
	}
	return domain.ErrPersistence(op, err)
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

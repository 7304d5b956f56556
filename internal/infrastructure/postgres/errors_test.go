package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr("op", nil))

	for _, code := range []string{sqlstateSerialization, sqlstateDeadlock, sqlstateLockTimeout} {
		err := mapErr("lock game", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: code}))
		assert.True(t, domain.IsCode(err, domain.CodeStateConflict), code)
		assert.True(t, domain.IsRetryable(err), code)
	}

	err := mapErr("save game", &pgconn.PgError{Code: "23514"})
	assert.True(t, domain.IsCode(err, domain.CodePersistence))
	assert.False(t, domain.IsRetryable(err))

	err = mapErr("save game", errors.New("conn reset"))
	assert.True(t, domain.IsCode(err, domain.CodePersistence))

	nf := domain.ErrNotFound("game not found")
	assert.Same(t, nf, mapErr("any", nf))
}

func TestValidUUID(t *testing.T) {
	assert.True(t, validUUID("6f1c2a8e-4a8b-4f7e-9a52-0d1b5a0c9e11"))
	assert.False(t, validUUID("game-1"))
	assert.False(t, validUUID(""))
}

package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/vedran77/pulsechat/internal/repository"
)

func TestMapError(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "channels_name_key"}
	assert.ErrorIs(t, mapError(unique), repository.ErrDuplicate)
	assert.ErrorIs(t, mapError(fmt.Errorf("insert: %w", unique)), repository.ErrDuplicate)

	fk := &pgconn.PgError{Code: "23503"}
	assert.Same(t, error(fk), mapError(fk))

	assert.NoError(t, mapError(nil))
}

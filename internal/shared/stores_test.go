package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecer struct {
	err  error
	sql  []string
	args [][]any
}

func (s *stubExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.sql = append(s.sql, sql)
	s.args = append(s.args, args)
	return pgconn.CommandTag{}, s.err
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	db := &stubExecer{}
	store := NewIdempotencyStore(db)

	require.NoError(t, store.CheckAndInsert(ctx, "abc", "records"))
	assert.Equal(t, "abc", db.args[0][0])

	assert.Error(t, store.CheckAndInsert(ctx, "", "records"))
	assert.Error(t, store.CheckAndInsert(ctx, "abc", ""))

	db.err = &pgconn.PgError{Code: "23505"}
	assert.ErrorIs(t, store.CheckAndInsert(ctx, "abc", "records"), ErrIdempotencyConflict)

	db.err = errors.New("boom")
	err := store.CheckAndInsert(ctx, "abc", "records")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrIdempotencyConflict)

	var nilStore *IdempotencyStore
	assert.Error(t, nilStore.CheckAndInsert(ctx, "abc", "records"))
	assert.NoError(t, nilStore.Delete(ctx, "abc"))
}

func TestAuditLogger(t *testing.T) {
	ctx := context.Background()
	db := &stubExecer{}
	logger := NewAuditLogger(db)

	err := logger.Record(ctx, AuditLog{ActorID: 1, Action: "sync.force", Entity: "dashboard", EntityID: "05/03/2026", Meta: map[string]any{"accepted": 12}})
	require.NoError(t, err)
	require.Len(t, db.args, 1)
	assert.Equal(t, []byte(`{"accepted":12}`), db.args[0][4])

	assert.Error(t, logger.Record(ctx, AuditLog{Action: "x"}))
}

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWithTransaction(t *testing.T) {
	t.Run("commits and exposes the tx", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM mc_questions").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		tm := NewTransactionManagerAdapter(db, zap.NewNop())
		err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
			exec := GetExecutor(ctx, db)
			assert.NotSame(t, db, exec)
			_, err := exec.ExecContext(ctx, "DELETE FROM mc_questions")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		tm := NewTransactionManagerAdapter(db, zap.NewNop())
		boom := errors.New("boom")
		err := tm.WithTransaction(context.Background(), func(ctx context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and repanics", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		tm := NewTransactionManagerAdapter(db, zap.NewNop())
		assert.PanicsWithValue(t, "bad state", func() {
			_ = tm.WithTransaction(context.Background(), func(ctx context.Context) error { panic("bad state") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("without a transaction the db is used", func(t *testing.T) {
		db, _ := setupTestDB(t)
		assert.Same(t, db, GetExecutor(context.Background(), db))
	})
}

package session

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestPostgresGetScansSession(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	active := created.Add(5 * time.Minute)

	mock.ExpectQuery("SELECT state, mode, collected_data").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"state", "mode", "collected_data", "created_at", "last_active_at"}).
			AddRow("COLLECT_NAME", ModeLeadCapture, []byte(`{"parent_type":"New Parent"}`), created, active))

	sess, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", sess.UserID)
	require.Equal(t, "COLLECT_NAME", sess.State)
	require.Equal(t, "New Parent", sess.CollectedData["parent_type"])
	require.Equal(t, active, sess.LastActiveAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissingReturnsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT state, mode, collected_data").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"state", "mode", "collected_data", "created_at", "last_active_at"}))

	_, err := store.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPutUpserts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO chat_sessions").
		WithArgs("user-1", "SCHOOL_TYPE", ModeLeadCapture, []byte(`{"parent_type":"New Parent"}`), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Put(context.Background(), Session{
		UserID:        "user-1",
		State:         "SCHOOL_TYPE",
		Mode:          ModeLeadCapture,
		CollectedData: map[string]string{"parent_type": "New Parent"},
		CreatedAt:     now,
		LastActiveAt:  now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPutRequiresUserID(t *testing.T) {
	store, _ := newMockStore(t)
	err := store.Put(context.Background(), Session{})
	require.Error(t, err)
}

func TestPostgresDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM chat_sessions").
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.Delete(context.Background(), "user-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

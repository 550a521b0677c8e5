package inquiry

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostgresEmitterInsertsRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO inquiries").
		WithArgs("user-1", "New Parent", "Boarding", "Priya Sharma", "9876543210", created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	emitter := NewPostgresEmitter(mock, zap.NewNop())
	err = emitter.Emit(context.Background(), Inquiry{
		UserID:     "user-1",
		ParentType: "New Parent",
		SchoolType: "Boarding",
		Name:       "Priya Sharma",
		Mobile:     "9876543210",
		CreatedAt:  created,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogEmitterNeverFails(t *testing.T) {
	emitter := NewLogEmitter(zap.NewNop())
	err := emitter.Emit(context.Background(), Inquiry{UserID: "user-1", Name: "Priya Sharma"})
	require.NoError(t, err)
}

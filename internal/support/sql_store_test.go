package support

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var escalationCols = []string{"id", "conversation_id", "reason", "status", "created_at", "resolved_at"}

func TestSQLStoreCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	convID := uuid.New()
	reason := "billing question"
	mock.ExpectExec("INSERT INTO escalations").
		WithArgs(sqlmock.AnyArg(), convID, &reason, "PENDING", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &Escalation{ConversationID: convID, Reason: &reason}
	require.NoError(t, store.Create(context.Background(), e))
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, StatusPending, e.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	id := uuid.New()
	convID := uuid.New()
	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM escalations WHERE status = ANY\\(\\$1\\)").
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows(escalationCols).
			AddRow(id.String(), convID.String(), "needs a human", "PENDING", created, nil))

	list, err := store.List(context.Background(), []Status{StatusPending}, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, convID, list[0].ConversationID)
	assert.Equal(t, "needs a human", list[0].ReasonOrEmpty())
	assert.Nil(t, list[0].ResolvedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreResolveAlreadyResolved(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	id := uuid.New()
	resolvedAt := time.Now().UTC()
	mock.ExpectQuery("UPDATE escalations").
		WithArgs(id, "RESOLVED", sqlmock.AnyArg(), "PENDING").
		WillReturnRows(sqlmock.NewRows(escalationCols))
	mock.ExpectQuery("SELECT (.+) FROM escalations WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(escalationCols).
			AddRow(id.String(), uuid.NewString(), nil, "RESOLVED", resolvedAt, resolvedAt))

	_, err = store.Resolve(context.Background(), id, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreResolveMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	id := uuid.New()
	mock.ExpectQuery("UPDATE escalations").WillReturnRows(sqlmock.NewRows(escalationCols))
	mock.ExpectQuery("SELECT (.+) FROM escalations WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(escalationCols))

	_, err = store.Resolve(context.Background(), id, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreResolveForConversation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	convID := uuid.New()
	mock.ExpectExec("UPDATE escalations").
		WithArgs(convID, "RESOLVED", sqlmock.AnyArg(), "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.ResolveForConversation(context.Background(), convID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

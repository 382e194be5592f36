package faq

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"parking", "available"}, Keywords("Is parking available?"))
	assert.Equal(t, []string{"pix"}, Keywords("pix"))
	assert.Equal(t, []string{"ok"}, Keywords("ok"))
	assert.Empty(t, Keywords("   "))
}

func TestInMemorySearchOrdersAndCaps(t *testing.T) {
	insurance := "payment"
	repo := NewInMemoryRepository(
		Entry{Question: "Do you accept insurance?", Answer: "Yes, most plans.", Category: &insurance, Order: 2, Active: true},
		Entry{Question: "Payment methods?", Answer: "Card, cash and insurance reimbursement.", Category: &insurance, Order: 1, Active: true},
		Entry{Question: "Old insurance policy", Answer: "Retired", Order: 0, Active: false},
		Entry{Question: "Where to park?", Answer: "Street parking.", Order: 3, Active: true},
		Entry{Question: "Insurance A", Answer: "x", Order: 4, Active: true},
		Entry{Question: "Insurance B", Answer: "x", Order: 5, Active: true},
	)

	got, err := repo.Search(context.Background(), Keywords("insurance"), "", 10)
	require.NoError(t, err)
	require.Len(t, got, MaxResults)
	assert.Equal(t, "Payment methods?", got[0].Question)
	assert.Equal(t, "Do you accept insurance?", got[1].Question)

	byCategory, err := repo.Search(context.Background(), Keywords("insurance"), "PAYMENT", 3)
	require.NoError(t, err)
	assert.Len(t, byCategory, 2)
}

func TestPostgresSearch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id := uuid.New()
	mock.ExpectQuery("FROM faqs").
		WithArgs([]string{"%parking%"}, (*string)(nil), 3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "question", "answer", "category", "sort_order"}).
			AddRow(id, "Where to park?", "Street parking.", (*string)(nil), 1))

	got, err := repo.Search(context.Background(), []string{"parking"}, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

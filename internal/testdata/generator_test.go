package testdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/stmtsync/internal/database/repository"
)

type ledger struct {
	accounts []repository.Account
	txs      []repository.Transaction
}

func (l *ledger) UpsertAccount(_ context.Context, a repository.Account) error {
	l.accounts = append(l.accounts, a)
	return nil
}

func (l *ledger) InsertTransaction(_ context.Context, t repository.Transaction) error {
	l.txs = append(l.txs, t)
	return nil
}

func TestSeed(t *testing.T) {
	l := &ledger{}
	now := time.Date(2025, 4, 30, 15, 0, 0, 0, time.UTC)
	id, err := Seed(context.Background(), l, Options{UserID: "u1", Count: 12, Seed: 7, Now: now})
	require.NoError(t, err)
	require.Len(t, l.accounts, 1)
	assert.Equal(t, id, l.accounts[0].ID)
	require.Len(t, l.txs, 12)

	for _, tx := range l.txs {
		assert.Equal(t, id, tx.AccountID)
		assert.Equal(t, "u1", tx.UserID)
		assert.Equal(t, repository.CaptureManual, tx.CaptureMethod)
		assert.True(t, tx.CategorySource.UserAssigned())
		require.NotNil(t, tx.CategoryID)
		assert.True(t, tx.Amount.IsPositive())
		assert.True(t, tx.Direction.Valid())
		assert.False(t, tx.Date.After(now))
		assert.Nil(t, tx.IdempotencyKey)
	}
}

func TestSeedDeterministic(t *testing.T) {
	now := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	a, b := &ledger{}, &ledger{}
	_, err := Seed(context.Background(), a, Options{UserID: "u1", Count: 5, Seed: 42, Now: now})
	require.NoError(t, err)
	_, err = Seed(context.Background(), b, Options{UserID: "u1", Count: 5, Seed: 42, Now: now})
	require.NoError(t, err)
	for i := range a.txs {
		assert.Equal(t, a.txs[i].RawDescription, b.txs[i].RawDescription)
		assert.True(t, a.txs[i].Amount.Equal(b.txs[i].Amount))
		assert.Equal(t, a.txs[i].Date, b.txs[i].Date)
	}
}

func TestSeedRequiresUser(t *testing.T) {
	_, err := Seed(context.Background(), &ledger{}, Options{})
	assert.Error(t, err)
}

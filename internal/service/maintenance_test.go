package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/stmtsync/internal/database"
	"github.com/jask/stmtsync/internal/database/repository"
)

func TestMaintenanceResetScopesToUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	_, err = database.RunMigrations(dbPath, migrations)
	require.NoError(t, err)
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := repository.NewStore(db)
	for _, tx := range []repository.Transaction{
		{ID: "a", UserID: "u1", AccountID: "acc1", Amount: decimal.NewFromInt(1), Direction: repository.DirectionInflow, Currency: "COP", Date: day(1, 1), RawDescription: "x", CaptureMethod: repository.CaptureManual},
		{ID: "b", UserID: "u1", AccountID: "acc1", Amount: decimal.NewFromInt(1), Direction: repository.DirectionInflow, Currency: "COP", Date: day(1, 1), RawDescription: "x", CaptureMethod: repository.CaptureManual},
		{ID: "c", UserID: "u2", AccountID: "acc2", Amount: decimal.NewFromInt(1), Direction: repository.DirectionInflow, Currency: "COP", Date: day(1, 1), RawDescription: "x", CaptureMethod: repository.CaptureManual},
	} {
		require.NoError(t, store.InsertTransaction(ctx, tx))
	}
	require.NoError(t, store.MarkReconciled(ctx, "u1", "a", "b"))
	_, err = store.UpsertCategoryRule(ctx, "u1", "rappi", "food")
	require.NoError(t, err)

	m := &MaintenanceService{DB: db}
	require.NoError(t, m.Reset(ctx, "u1"))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&n))
	require.Equal(t, 1, n)
	rules, err := store.ListCategoryRules(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, rules)
}

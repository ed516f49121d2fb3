package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/stmtsync/internal/database"
)

// MaintenanceService houses destructive ops actions for the sqlite store.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset wipes one user's ledger, snapshots, rules and reviews. The schema
// and other users' data are left intact.
func (s *MaintenanceService) Reset(ctx context.Context, userID string) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		// Break self references first so transactions can go in any order.
		if _, err := tx.ExecContext(ctx, "UPDATE transactions SET reconciled_into_id = NULL WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("reset reconciliation links: %w", err)
		}
		tables := []string{
			"pending_reviews",
			"category_rules",
			"statement_snapshots",
			"transactions",
			"accounts",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t+" WHERE user_id = ?", userID); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	})
}

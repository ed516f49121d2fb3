package postgres

import (
	"context"

	"github.com/jask/stmtsync/internal/database/repository"
)

func (s *Store) UpsertAccount(ctx context.Context, a repository.Account) error {
	_, err := s.Pool.Exec(ctx, `
	INSERT INTO accounts(id, user_id, name, institution, account_type)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
	 name = EXCLUDED.name,
	 institution = EXCLUDED.institution,
	 account_type = EXCLUDED.account_type,
	 updated_at = now()
	`, a.ID, a.UserID, a.Name, a.Institution, a.AccountType)
	return err
}

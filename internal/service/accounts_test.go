package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/stmtsync/internal/database/repository"
)

type recordingAccounts struct {
	upserts []repository.Account
}

func (r *recordingAccounts) UpsertAccount(_ context.Context, a repository.Account) error {
	r.upserts = append(r.upserts, a)
	return nil
}

func TestAccountResolver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	accounts := &recordingAccounts{}
	r := &AccountResolver{Accounts: accounts, UserID: testUser}

	id1, err := r.Resolve(ctx, "Bancolombia", "credit_card", "4321")
	require.NoError(t, err)
	id2, err := r.Resolve(ctx, " bancolombia ", "credit_card", "4321")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Len(t, accounts.upserts, 1)
	require.Equal(t, "bancolombia credit card 4321", accounts.upserts[0].Name)

	other, err := r.Resolve(ctx, "bancolombia", "savings", "12345678901")
	require.NoError(t, err)
	require.NotEqual(t, id1, other)
	require.Equal(t, "bancolombia savings 8901", accounts.upserts[1].Name)

	// Ids are stable across resolvers.
	fresh := &AccountResolver{Accounts: &recordingAccounts{}, UserID: testUser}
	again, err := fresh.Resolve(ctx, "BANCOLOMBIA", "credit_card", "4321")
	require.NoError(t, err)
	require.Equal(t, id1, again)

	_, err = r.Resolve(ctx, "bancolombia", "savings", " ")
	require.Error(t, err)
}

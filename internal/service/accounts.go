package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jask/stmtsync/internal/database/repository"
)

// AccountResolver maps a bank account reference from a statement to a
// stable account id, creating the account on first sight.
type AccountResolver struct {
	Accounts AccountWriter
	UserID   string

	mu    sync.Mutex
	cache map[string]string
}

// Resolve returns the id of the user's account at bank identified by ref
// (account number or card last four).
func (r *AccountResolver) Resolve(ctx context.Context, bank, accountType, ref string) (string, error) {
	bank = strings.ToLower(strings.TrimSpace(bank))
	ref = strings.TrimSpace(ref)
	if bank == "" || ref == "" {
		return "", errors.New("bank and account reference required")
	}
	key := strings.Join([]string{r.UserID, bank, accountType, ref}, "|")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		r.cache = make(map[string]string)
	}
	if id, ok := r.cache[key]; ok {
		return id, nil
	}
	acct := repository.Account{
		ID:          deterministicAccountID(key),
		UserID:      r.UserID,
		Name:        accountName(bank, accountType, ref),
		Institution: bank,
		AccountType: accountType,
	}
	if err := r.Accounts.UpsertAccount(ctx, acct); err != nil {
		return "", err
	}
	r.cache[key] = acct.ID
	return acct.ID, nil
}

func accountName(bank, accountType, ref string) string {
	if len(ref) > 4 {
		ref = ref[len(ref)-4:]
	}
	name := bank
	if accountType != "" {
		name += " " + strings.ReplaceAll(accountType, "_", " ")
	}
	return name + " " + ref
}

func deterministicAccountID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(key))).String()
}

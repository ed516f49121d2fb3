// Package fingerprint derives the deterministic identifiers used to keep
// statement imports idempotent and to cluster installment purchases.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentGroupPrefix marks installment group ids in key spaces shared
// with other identifiers.
const InstallmentGroupPrefix = "inst_"

const fieldSep = "|"

// KeyInput is the set of fields an idempotency key is derived from.
// Optional fields are left at their zero value when unknown.
type KeyInput struct {
	Provider              string
	ProviderTransactionID string
	Date                  time.Time
	Amount                decimal.Decimal
	RawDescription        string
	InstallmentIndex      *int
}

// IdempotencyKey returns the lowercase hex SHA-256 of the "|"-joined fields
// in fixed order. The result depends only on the inputs.
func IdempotencyKey(in KeyInput) string {
	idx := ""
	if in.InstallmentIndex != nil {
		idx = strconv.Itoa(*in.InstallmentIndex)
	}
	date := ""
	if !in.Date.IsZero() {
		date = in.Date.Format(time.DateOnly)
	}
	return digest(
		in.Provider,
		in.ProviderTransactionID,
		date,
		in.Amount.StringFixed(2),
		in.RawDescription,
		idx,
	)
}

// InstallmentGroupID clusters the installments of one purchase across
// statements of the same account.
func InstallmentGroupID(accountID, description string, amount decimal.Decimal) string {
	return InstallmentGroupPrefix + digest(
		accountID,
		strings.ToUpper(strings.TrimSpace(description)),
		amount.StringFixed(2),
	)
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, fieldSep)))
	return hex.EncodeToString(sum[:])
}

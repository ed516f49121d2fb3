// Package statement decodes the document parser's output into import
// batches.
package statement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/stmtsync/internal/database/repository"
	"github.com/jask/stmtsync/internal/service"
)

// Statement types reported by the parser.
const (
	TypeSavings    = "savings"
	TypeCreditCard = "credit_card"
)

const defaultCurrency = "COP"

// Date is a calendar date in YYYY-MM-DD form.
type Date struct{ time.Time }

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d *Date) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

type Transaction struct {
	Date                Date             `json:"date"`
	Description         string           `json:"description"`
	Amount              decimal.Decimal  `json:"amount"`
	Direction           string           `json:"direction"`
	Balance             *decimal.Decimal `json:"balance"`
	Currency            string           `json:"currency"`
	AuthorizationNumber *string          `json:"authorization_number"`
	Installments        *string          `json:"installments"`
}

type Summary struct {
	PreviousBalance     *decimal.Decimal `json:"previous_balance"`
	TotalCredits        *decimal.Decimal `json:"total_credits"`
	TotalDebits         *decimal.Decimal `json:"total_debits"`
	FinalBalance        *decimal.Decimal `json:"final_balance"`
	PurchasesAndCharges *decimal.Decimal `json:"purchases_and_charges"`
	InterestCharged     *decimal.Decimal `json:"interest_charged"`
}

type CreditCardMetadata struct {
	CreditLimit      *decimal.Decimal `json:"credit_limit"`
	AvailableCredit  *decimal.Decimal `json:"available_credit"`
	InterestRate     *decimal.Decimal `json:"interest_rate"`
	LateInterestRate *decimal.Decimal `json:"late_interest_rate"`
	TotalPaymentDue  *decimal.Decimal `json:"total_payment_due"`
	MinimumPayment   *decimal.Decimal `json:"minimum_payment"`
	PaymentDueDate   *Date            `json:"payment_due_date"`
}

// Statement is one parsed bank or card statement.
type Statement struct {
	Bank               string              `json:"bank"`
	StatementType      string              `json:"statement_type"`
	AccountNumber      *string             `json:"account_number"`
	CardLastFour       *string             `json:"card_last_four"`
	PeriodFrom         *Date               `json:"period_from"`
	PeriodTo           *Date               `json:"period_to"`
	Currency           string              `json:"currency"`
	Summary            *Summary            `json:"summary"`
	CreditCardMetadata *CreditCardMetadata `json:"credit_card_metadata"`
	Transactions       []Transaction       `json:"transactions"`
}

// AccountRef is the number identifying the statement's account: the card's
// last four digits for cards, the account number otherwise.
func (s Statement) AccountRef() string {
	if s.StatementType == TypeCreditCard && s.CardLastFour != nil && *s.CardLastFour != "" {
		return *s.CardLastFour
	}
	if s.AccountNumber != nil && *s.AccountNumber != "" {
		return *s.AccountNumber
	}
	if s.CardLastFour != nil {
		return *s.CardLastFour
	}
	return ""
}

// Decode reads either a {"statements": [...]} envelope, a bare array or a
// single statement object.
func Decode(r io.Reader) ([]Statement, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty statement document")
	}
	if raw[0] == '[' {
		var out []Statement
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode statements: %w", err)
		}
		return out, nil
	}

	var envelope struct {
		Statements json.RawMessage `json:"statements"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode statement document: %w", err)
	}
	if len(envelope.Statements) > 0 {
		var out []Statement
		if err := json.Unmarshal(envelope.Statements, &out); err != nil {
			return nil, fmt.Errorf("decode statements: %w", err)
		}
		return out, nil
	}
	var one Statement
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("decode statement: %w", err)
	}
	return []Statement{one}, nil
}

// ResolveFunc returns the account id a statement's lines belong to.
type ResolveFunc func(ctx context.Context, s Statement) (string, error)

// BatchOptions identifies who and what a batch is imported for.
type BatchOptions struct {
	UserID         string
	Provider       string
	SourceFilename string
	// AccountRef stands in for statements that report neither an account
	// number nor card digits.
	AccountRef string
}

// ToBatch converts parsed statements into one import batch.
func ToBatch(ctx context.Context, docs []Statement, opts BatchOptions, resolve ResolveFunc) (service.ImportBatch, error) {
	batch := service.ImportBatch{UserID: opts.UserID, Provider: opts.Provider}
	for i, doc := range docs {
		if doc.AccountRef() == "" && opts.AccountRef != "" {
			ref := opts.AccountRef
			doc.AccountNumber = &ref
		}
		accountID, err := resolve(ctx, doc)
		if err != nil {
			return service.ImportBatch{}, fmt.Errorf("statement %d account: %w", i, err)
		}
		currency := strings.ToUpper(strings.TrimSpace(doc.Currency))
		if currency == "" {
			currency = defaultCurrency
		}

		var first, last time.Time
		for _, t := range doc.Transactions {
			batch.Transactions = append(batch.Transactions, toImported(accountID, currency, t))
			if first.IsZero() || t.Date.Before(first) {
				first = t.Date.Time
			}
			if t.Date.After(last) {
				last = t.Date.Time
			}
		}

		meta := service.StatementMeta{
			AccountID:      accountID,
			PeriodFrom:     first,
			PeriodTo:       last,
			StatementType:  doc.StatementType,
			Currency:       currency,
			SourceFilename: opts.SourceFilename,
		}
		if doc.PeriodFrom != nil {
			meta.PeriodFrom = doc.PeriodFrom.Time
		}
		if doc.PeriodTo != nil {
			meta.PeriodTo = doc.PeriodTo.Time
		}
		if meta.PeriodFrom.IsZero() || meta.PeriodTo.IsZero() {
			// No period and no lines to infer one from.
			continue
		}
		if s := doc.Summary; s != nil {
			meta.PreviousBalance = s.PreviousBalance
			meta.FinalBalance = s.FinalBalance
			meta.TotalCredits = s.TotalCredits
			meta.TotalDebits = s.TotalDebits
			meta.PurchasesAndCharges = s.PurchasesAndCharges
			meta.InterestCharged = s.InterestCharged
		}
		if cc := doc.CreditCardMetadata; cc != nil {
			meta.CreditLimit = cc.CreditLimit
			meta.AvailableCredit = cc.AvailableCredit
			meta.InterestRate = cc.InterestRate
			meta.LateInterestRate = cc.LateInterestRate
			meta.TotalPaymentDue = cc.TotalPaymentDue
			meta.MinimumPayment = cc.MinimumPayment
			meta.PaymentDueDate = cc.PaymentDueDate.ptr()
		}
		batch.Statements = append(batch.Statements, meta)
	}
	return batch, nil
}

func toImported(accountID, currency string, t Transaction) repository.ImportedTransaction {
	it := repository.ImportedTransaction{
		AccountID:      accountID,
		Amount:         t.Amount,
		Direction:      repository.Direction(strings.ToUpper(strings.TrimSpace(t.Direction))),
		Currency:       currency,
		Date:           t.Date.Time,
		RawDescription: strings.TrimSpace(t.Description),
	}
	if c := strings.ToUpper(strings.TrimSpace(t.Currency)); c != "" {
		it.Currency = c
	}
	if t.AuthorizationNumber != nil {
		it.ProviderTransactionID = strings.TrimSpace(*t.AuthorizationNumber)
	}
	if t.Installments != nil {
		it.Installments = *t.Installments
	}
	return it
}

package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the money flow of a transaction relative to the account.
type Direction string

const (
	DirectionInflow  Direction = "INFLOW"
	DirectionOutflow Direction = "OUTFLOW"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionInflow || d == DirectionOutflow
}

// CategorySource records who assigned a transaction's category.
type CategorySource string

const (
	CategorySourceUserCreated   CategorySource = "user_created"
	CategorySourceUserOverride  CategorySource = "user_override"
	CategorySourceSystemDefault CategorySource = "system_default"
	CategorySourceRule          CategorySource = "rule"
	CategorySourceImport        CategorySource = "import"
)

// UserAssigned reports whether the category reflects deliberate human intent.
func (s CategorySource) UserAssigned() bool {
	return s == CategorySourceUserCreated || s == CategorySourceUserOverride
}

// Capture methods.
const (
	CaptureManual          = "manual"
	CaptureStatementImport = "pdf_import"
)

// Account represents an account row.
type Account struct {
	ID          string
	UserID      string
	Name        string
	Institution string
	AccountType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transaction represents a transaction row.
type Transaction struct {
	ID                 string
	UserID             string
	AccountID          string
	Amount             decimal.Decimal
	Direction          Direction
	Currency           string
	Date               time.Time
	RawDescription     string
	CleanDescription   *string
	MerchantName       *string
	CategoryID         *string
	CategorySource     CategorySource
	Notes              *string
	CaptureMethod      string
	CaptureConfidence  *float64
	IdempotencyKey     *string
	InstallmentGroupID *string
	InstallmentIndex   *int
	InstallmentTotal   *int
	ReconciledIntoID   *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ImportedTransaction is one statement line handed over by the document
// parser. It is never stored as-is.
type ImportedTransaction struct {
	AccountID             string
	Amount                decimal.Decimal
	Direction             Direction
	Currency              string
	Date                  time.Time
	RawDescription        string
	CategoryID            *string
	Confidence            *float64
	Notes                 *string
	ProviderTransactionID string
	Installments          string
}

// MetadataPatch is the category/notes outcome of merging two records.
type MetadataPatch struct {
	CategoryID     *string
	CategorySource CategorySource
	Notes          *string
	CaptureMethod  string
}

// StatementSnapshot represents one statement period summary for an account.
type StatementSnapshot struct {
	ID             string
	UserID         string
	AccountID      string
	PeriodFrom     time.Time
	PeriodTo       time.Time
	StatementType  string
	Currency       string
	SourceFilename string

	PreviousBalance     *decimal.Decimal
	FinalBalance        *decimal.Decimal
	TotalCredits        *decimal.Decimal
	TotalDebits         *decimal.Decimal
	PurchasesAndCharges *decimal.Decimal
	InterestCharged     *decimal.Decimal

	CreditLimit      *decimal.Decimal
	AvailableCredit  *decimal.Decimal
	InterestRate     *decimal.Decimal
	LateInterestRate *decimal.Decimal
	TotalPaymentDue  *decimal.Decimal
	MinimumPayment   *decimal.Decimal
	PaymentDueDate   *time.Time

	TransactionCount int
	ImportedCount    int
	SkippedCount     int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CategoryRule maps a normalized merchant pattern to a category.
type CategoryRule struct {
	ID         string
	UserID     string
	Pattern    string
	CategoryID string
	MatchCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Review statuses.
const (
	ReviewPending   = "pending"
	ReviewMerged    = "merged"
	ReviewDismissed = "dismissed"
)

// PendingReview is an imported transaction waiting for a human to confirm
// which existing record, if any, it duplicates.
type PendingReview struct {
	ID            string
	UserID        string
	TransactionID string
	CandidateID   string
	Score         float64
	Status        string
	CreatedAt     time.Time
}

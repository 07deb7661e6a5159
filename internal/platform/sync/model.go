package sync

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider names, used in logs and in synthesized adjustment ids
const (
	ProviderTrueLayer  = "truelayer"
	ProviderTrading212 = "trading212"
)

// AccountKind distinguishes bank/card provider accounts; it drives the balance sign convention
type AccountKind string

const (
	KindCard    AccountKind = "CARD"
	KindAccount AccountKind = "ACCOUNT"
)

// Valid reports whether k is a known account kind
func (k AccountKind) Valid() bool {
	return k == KindCard || k == KindAccount
}

// SourceRef selects the provider account a spec reads from.
// Implementations: BankAccountRef, InvestmentAccountRef.
type SourceRef interface {
	Provider() string
	AccountID() string
	sourceRef()
}

// BankAccountRef points to a bank/card provider account (transaction stream + balance)
type BankAccountRef struct {
	ID string
}

func (r BankAccountRef) Provider() string  { return ProviderTrueLayer }
func (r BankAccountRef) AccountID() string { return r.ID }
func (BankAccountRef) sourceRef()          {}

// InvestmentAccountRef points to an investment provider account (balance only)
type InvestmentAccountRef struct {
	ID string
}

func (r InvestmentAccountRef) Provider() string  { return ProviderTrading212 }
func (r InvestmentAccountRef) AccountID() string { return r.ID }
func (InvestmentAccountRef) sourceRef()          {}

// MapConfig holds per-spec transaction mapping options
type MapConfig struct {
	InvertAmount bool
}

// AccountSyncSpec is one configured reconciliation unit. Read once per run, never mutated.
type AccountSyncSpec struct {
	Name                 string
	Source               SourceRef
	DestinationAccountID string
	MapConfig            MapConfig
}

// NewAccountSyncSpec builds a spec from the flat configuration shape, enforcing
// that exactly one of trueLayerAccountID and trading212AccountID is set.
func NewAccountSyncSpec(name, trueLayerAccountID, trading212AccountID, destinationAccountID string, mapConfig MapConfig) (AccountSyncSpec, error) {
	spec := AccountSyncSpec{
		Name:                 name,
		DestinationAccountID: destinationAccountID,
		MapConfig:            mapConfig,
	}

	switch {
	case trueLayerAccountID != "" && trading212AccountID != "":
		return AccountSyncSpec{}, &ConfigurationError{Spec: name, Reason: "both truelayerAccountId and trading212AccountId are set"}
	case trueLayerAccountID != "":
		spec.Source = BankAccountRef{ID: trueLayerAccountID}
	case trading212AccountID != "":
		spec.Source = InvestmentAccountRef{ID: trading212AccountID}
	}

	if err := spec.Validate(); err != nil {
		return AccountSyncSpec{}, err
	}
	return spec, nil
}

// Validate checks the spec is structurally complete
func (s AccountSyncSpec) Validate() error {
	if s.Name == "" {
		return &ConfigurationError{Reason: "sync entry name is required"}
	}
	if s.Source == nil {
		return &ConfigurationError{Spec: s.Name, Reason: "one of truelayerAccountId or trading212AccountId is required"}
	}
	if s.Source.AccountID() == "" {
		return &ConfigurationError{Spec: s.Name, Reason: "source account id is empty"}
	}
	if s.DestinationAccountID == "" {
		return &ConfigurationError{Spec: s.Name, Reason: "destination account id is required"}
	}
	return nil
}

// BankAccount is a bank/card provider account
type BankAccount struct {
	ID   string
	Name string
	Kind AccountKind
}

// InvestmentAccount is an investment provider account
type InvestmentAccount struct {
	ID       string
	Name     string
	Currency string
}

// LedgerAccount is an account in the personal-finance ledger
type LedgerAccount struct {
	ID   string
	Name string
}

// RawTransaction is a provider-native transaction. Amount is signed, in major units.
type RawTransaction struct {
	Timestamp        time.Time
	Description      string
	Amount           decimal.Decimal
	ExternalID       string
	MerchantName     string
	CounterpartyName string
}

// NormalizedTransaction is a ledger-native transaction ready for import.
// Amount is in minor units; ExternalID is the idempotency key.
type NormalizedTransaction struct {
	DestinationAccountID string
	Date                 string // YYYY-MM-DD
	Amount               int64
	PayeeName            string
	Note                 string
	ExternalID           string
	Cleared              bool
}

// ImportResult reports what the ledger did with an import batch
type ImportResult struct {
	Added          int
	Updated        int
	UpdatedPreview int
	Errors         int
}

// InvestmentBalance is the investment provider's authoritative account value
type InvestmentBalance struct {
	Total    decimal.Decimal
	Currency string
}

// BalanceSnapshot pairs provider and ledger balances for one bank account
type BalanceSnapshot struct {
	ProviderBalance decimal.Decimal // major units
	LedgerBalance   int64           // minor units
	SignMultiplier  int64           // -1 for CARD, +1 otherwise
}

// AccountFailure records an entry that could not be processed under the continue policy
type AccountFailure struct {
	Name string
	Err  error
}

// RunResult is the run summary. It is a value: each processed entry produces
// a new RunResult through With, nothing mutates it in place.
type RunResult struct {
	RunID             uuid.UUID
	StartedAt         time.Time
	FinishedAt        time.Time
	AccountSyncs      int
	NewTransactions   int
	BalanceMismatches int
	MismatchedBanks   []string
	Failed            []AccountFailure
}

// EntryOutcome is what processing one AccountSyncSpec contributes to the run
type EntryOutcome struct {
	Name     string
	Added    int
	Mismatch bool
	Err      error
}

// With folds one entry outcome into the summary and returns the new summary
func (r RunResult) With(o EntryOutcome) RunResult {
	next := r
	next.MismatchedBanks = append([]string(nil), r.MismatchedBanks...)
	next.Failed = append([]AccountFailure(nil), r.Failed...)

	if o.Err != nil {
		next.Failed = append(next.Failed, AccountFailure{Name: o.Name, Err: o.Err})
		return next
	}

	next.AccountSyncs++
	next.NewTransactions += o.Added
	if o.Mismatch {
		next.BalanceMismatches++
		next.MismatchedBanks = append(next.MismatchedBanks, o.Name)
	}
	return next
}

// HasIssues reports whether the run needs the operator's attention
func (r RunResult) HasIssues() bool {
	return r.BalanceMismatches > 0 || len(r.Failed) > 0
}

// Notification is what the notifier collaborator posts
type Notification struct {
	Title    string
	Body     string
	Tags     []string
	Priority int
}

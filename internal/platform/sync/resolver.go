package sync

// ResolvedSource is the concrete provider account a spec resolved to.
// Implementations: ResolvedBank, ResolvedInvestment.
type ResolvedSource interface {
	resolvedSource()
}

// ResolvedBank is a resolved bank/card provider account
type ResolvedBank struct {
	Account BankAccount
}

func (ResolvedBank) resolvedSource() {}

// ResolvedInvestment is a resolved investment provider account
type ResolvedInvestment struct {
	Account InvestmentAccount
}

func (ResolvedInvestment) resolvedSource() {}

// ResolvedAccounts is the (source, destination) pair for one spec
type ResolvedAccounts struct {
	Source      ResolvedSource
	Destination LedgerAccount
}

// AccountResolver maps specs to concrete accounts using lists fetched once per run.
// A nil provider list means that provider is not configured.
type AccountResolver struct {
	ledger     map[string]LedgerAccount
	bank       map[string]BankAccount
	investment map[string]InvestmentAccount
}

// NewAccountResolver indexes the ledger account list. Provider lists are added
// with WithBankAccounts / WithInvestmentAccounts once they are fetched.
func NewAccountResolver(ledgerAccounts []LedgerAccount) *AccountResolver {
	r := &AccountResolver{ledger: make(map[string]LedgerAccount, len(ledgerAccounts))}
	for _, a := range ledgerAccounts {
		r.ledger[a.ID] = a
	}
	return r
}

// WithBankAccounts indexes the bank/card provider account list
func (r *AccountResolver) WithBankAccounts(accounts []BankAccount) *AccountResolver {
	r.bank = make(map[string]BankAccount, len(accounts))
	for _, a := range accounts {
		r.bank[a.ID] = a
	}
	return r
}

// WithInvestmentAccounts indexes the investment provider account list
func (r *AccountResolver) WithInvestmentAccounts(accounts []InvestmentAccount) *AccountResolver {
	r.investment = make(map[string]InvestmentAccount, len(accounts))
	for _, a := range accounts {
		r.investment[a.ID] = a
	}
	return r
}

// ResolveDestination finds the spec's ledger account
func (r *AccountResolver) ResolveDestination(spec AccountSyncSpec) (LedgerAccount, error) {
	if err := spec.Validate(); err != nil {
		return LedgerAccount{}, err
	}
	dest, ok := r.ledger[spec.DestinationAccountID]
	if !ok {
		return LedgerAccount{}, &ConfigurationError{
			Spec:   spec.Name,
			Ref:    spec.DestinationAccountID,
			Reason: "ledger account not found, check your sync config",
		}
	}
	return dest, nil
}

// Resolve finds both accounts for a spec, failing on the first unknown reference
func (r *AccountResolver) Resolve(spec AccountSyncSpec) (ResolvedAccounts, error) {
	dest, err := r.ResolveDestination(spec)
	if err != nil {
		return ResolvedAccounts{}, err
	}

	switch ref := spec.Source.(type) {
	case BankAccountRef:
		if r.bank == nil {
			return ResolvedAccounts{}, &ConfigurationError{Spec: spec.Name, Ref: ref.ID, Reason: "truelayer provider is not configured"}
		}
		acc, ok := r.bank[ref.ID]
		if !ok {
			return ResolvedAccounts{}, &ConfigurationError{Spec: spec.Name, Ref: ref.ID, Reason: "truelayer account not found, check your sync config"}
		}
		return ResolvedAccounts{Source: ResolvedBank{Account: acc}, Destination: dest}, nil

	case InvestmentAccountRef:
		if r.investment == nil {
			return ResolvedAccounts{}, &ConfigurationError{Spec: spec.Name, Ref: ref.ID, Reason: "trading212 provider is not configured"}
		}
		acc, ok := r.investment[ref.ID]
		if !ok {
			return ResolvedAccounts{}, &ConfigurationError{Spec: spec.Name, Ref: ref.ID, Reason: "trading212 account not found, check your sync config"}
		}
		return ResolvedAccounts{Source: ResolvedInvestment{Account: acc}, Destination: dest}, nil

	default:
		return ResolvedAccounts{}, &ConfigurationError{Spec: spec.Name, Reason: "unsupported source reference"}
	}
}

package main

import (
	"context"

	es "github.com/aldenhall/eventstore"
)

// AccountService orchestrates command handling using repository + store.
type AccountService struct {
	repo  *AccountRepository
	store *es.EventStore
}

// NewAccountService wires a repository and store together.
func NewAccountService(store *es.EventStore) *AccountService {
	return &AccountService{
		repo:  NewAccountRepository(store),
		store: store,
	}
}

// Handle executes a command end-to-end: load -> Handle -> append.
func (s *AccountService) Handle(ctx context.Context, cmd any, md es.Metadata) error {
	id := extractAccountID(cmd)
	acc, err := s.repo.Load(ctx, id)
	if err != nil {
		return err
	}

	if err := acc.Handle(cmd); err != nil {
		return err
	}

	return s.repo.Save(ctx, acc, md)
}

// TotalDeposited rebuilds the sum of every MoneyDeposited amount ever
// recorded, across all accounts, by visiting the global timeline filtered
// to that payload type. This is the criteria-based projection-rebuild path
// (VisitEventsMatching), distinct from ReadEvents' per-aggregate replay.
func (s *AccountService) TotalDeposited(ctx context.Context) (int64, error) {
	var total int64
	criteria := s.store.NewCriteriaBuilder().Property(es.PropertyType).Equals("MoneyDeposited")
	err := s.store.VisitEventsMatching(ctx, criteria, es.VisitorFunc(func(msg es.EventMessage) error {
		if deposit, ok := msg.Payload.(MoneyDeposited); ok {
			total += deposit.Amount
		}
		return nil
	}))
	if err != nil {
		return 0, err
	}
	return total, nil
}

// extractAccountID is a tiny helper for this sample. In a real app, prefer
// a command interface exposing AggregateID().
func extractAccountID(cmd any) string {
	switch c := cmd.(type) {
	case OpenAccountCommand:
		return c.AccountID
	case DepositCommand:
		return c.AccountID
	default:
		return ""
	}
}

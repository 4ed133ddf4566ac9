package main

import (
	"fmt"

	es "github.com/aldenhall/eventstore"
)

// Account is the aggregate root that enforces domain rules and emits events.
// It embeds eventstore.Base for identity, versioning, and the
// Raise/Apply/Flush bookkeeping.
type Account struct {
	es.Base

	owner   string
	balance int64
	opened  bool
}

func accountStreamID(accountID string) string { return "Account:" + accountID }

// NewAccount constructs a not-yet-opened aggregate for accountID.
func NewAccount(accountID string) *Account {
	a := &Account{}
	a.Init(accountStreamID(accountID), a.apply)
	return a
}

func (a *Account) Balance() int64 { return a.balance }

// Handle routes a command to domain logic and raises the resulting events.
func (a *Account) Handle(cmd any) error {
	switch c := cmd.(type) {
	case OpenAccountCommand:
		if a.opened {
			return fmt.Errorf("account already opened")
		}
		if c.AccountID == "" {
			return fmt.Errorf("empty account id")
		}
		if c.Initial < 0 {
			return fmt.Errorf("initial balance cannot be negative")
		}
		a.Raise(AccountOpened{AccountID: c.AccountID, Owner: c.Owner, Initial: c.Initial}, nil)
		return nil

	case DepositCommand:
		if !a.opened {
			return fmt.Errorf("account not opened")
		}
		if c.Amount <= 0 {
			return fmt.Errorf("invalid deposit amount")
		}
		a.Raise(MoneyDeposited{Amount: c.Amount}, nil)
		return nil
	}

	return fmt.Errorf("unknown command type %T", cmd)
}

// apply mutates in-memory state from a single domain event payload. It also
// accepts AccountSnapshot, the state baked into a snapshot row, applied the
// same way a regular event would be during replay.
func (a *Account) apply(e es.DomainEvent) {
	switch ev := e.(type) {
	case AccountOpened:
		a.owner = ev.Owner
		a.balance = ev.Initial
		a.opened = true
	case MoneyDeposited:
		a.balance += ev.Amount
	case AccountSnapshot:
		a.owner = ev.Owner
		a.balance = ev.Balance
		a.opened = true
	}
}

var _ es.Aggregate = (*Account)(nil)

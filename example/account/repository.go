package main

import (
	"context"
	"errors"

	es "github.com/aldenhall/eventstore"
)

// snapshotEvery controls how often Save archives a snapshot, purely a demo
// policy (every 3rd committed event).
const snapshotEvery = 3

// AccountRepository loads and saves Account aggregates using an EventStore.
type AccountRepository struct {
	store *es.EventStore
}

// NewAccountRepository creates a repository backed by the given store.
func NewAccountRepository(store *es.EventStore) *AccountRepository {
	return &AccountRepository{store: store}
}

// Load fetches and rehydrates an Account by its ID. A missing stream yields
// a fresh, unopened aggregate rather than an error, so callers can Handle an
// OpenAccountCommand against it directly.
func (r *AccountRepository) Load(ctx context.Context, id string) (*Account, error) {
	a := NewAccount(id)

	stream, err := r.store.ReadEvents(ctx, accountStreamID(id))
	if err != nil {
		var notFound *es.EventStreamNotFoundError
		if errors.As(err, &notFound) {
			return a, nil
		}
		return nil, err
	}
	defer stream.Close()

	for {
		msg, ok, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if snap, isSnapshot := msg.Payload.(AccountSnapshot); isSnapshot {
			a.apply(snap)
			a.SetVersion(int64(msg.SequenceNumber) + 1)
			continue
		}
		a.Apply(msg.Payload)
	}

	return a, nil
}

// Save persists the aggregate's pending events, then archives a snapshot
// every snapshotEvery events.
func (r *AccountRepository) Save(ctx context.Context, a *Account, md es.Metadata) error {
	events, _ := a.Flush()
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		events[i].MetaData = events[i].MetaData.Merge(md)
	}
	if err := r.store.AppendEvents(ctx, events...); err != nil {
		return err
	}

	if a.Version()%snapshotEvery == 0 {
		snap := r.store.NewEventMessage(a.AggregateIdentifier(), uint64(a.Version()-1), buildSnapshot(a), md)
		if err := r.store.AppendSnapshotEvent(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// Package storesmem is an in-memory EntryStore implementation (§4.B). It is
// concurrency-safe and suitable for tests, prototypes, and local runs.
// Events and snapshots are kept in-process and are lost on restart.
//
// Grounded on the teacher's stores/mem/mem_store.go, generalized from a flat
// per-stream event slice into the row model (domain rows, snapshot rows,
// pruning, criteria evaluation) described in §3-§4.B.
package storesmem

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	es "github.com/aldenhall/eventstore"
)

// Store is an in-memory EntryStore.
type Store struct {
	mu              sync.RWMutex
	domain          map[string][]es.DomainRow
	snapshots       map[string][]es.SnapshotRow
	domainEventIDs  map[string]struct{}
	snapEventIDs    map[string]struct{}
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		domain:         make(map[string][]es.DomainRow),
		snapshots:      make(map[string][]es.SnapshotRow),
		domainEventIDs: make(map[string]struct{}),
		snapEventIDs:   make(map[string]struct{}),
	}
}

// DuplicateKeyError is returned by PersistEvent/PersistSnapshot when either
// uniqueness invariant (event identifier, or aggregateIdentifier+sequence
// number) is violated (§3 invariants 1-2).
type DuplicateKeyError struct {
	Table               string
	AggregateIdentifier string
	SequenceNumber      uint64
}

func (e *DuplicateKeyError) Error() string {
	return "storesmem: duplicate key in " + e.Table + " for aggregate " + e.AggregateIdentifier
}

// PersistEvent implements eventstore.EntryStore.
func (s *Store) PersistEvent(_ context.Context, row es.DomainRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.domainEventIDs[row.EventIdentifier]; exists {
		return &DuplicateKeyError{Table: "domain_event_entry", AggregateIdentifier: row.AggregateIdentifier, SequenceNumber: row.SequenceNumber}
	}
	for _, r := range s.domain[row.AggregateIdentifier] {
		if r.SequenceNumber == row.SequenceNumber {
			return &DuplicateKeyError{Table: "domain_event_entry", AggregateIdentifier: row.AggregateIdentifier, SequenceNumber: row.SequenceNumber}
		}
	}

	s.domain[row.AggregateIdentifier] = append(s.domain[row.AggregateIdentifier], row)
	s.domainEventIDs[row.EventIdentifier] = struct{}{}
	return nil
}

// PersistSnapshot implements eventstore.EntryStore.
func (s *Store) PersistSnapshot(_ context.Context, row es.SnapshotRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.snapEventIDs[row.EventIdentifier]; exists {
		return &DuplicateKeyError{Table: "snapshot_event_entry", AggregateIdentifier: row.AggregateIdentifier, SequenceNumber: row.SequenceNumber}
	}
	for _, r := range s.snapshots[row.AggregateIdentifier] {
		if r.SequenceNumber == row.SequenceNumber {
			return &DuplicateKeyError{Table: "snapshot_event_entry", AggregateIdentifier: row.AggregateIdentifier, SequenceNumber: row.SequenceNumber}
		}
	}

	s.snapshots[row.AggregateIdentifier] = append(s.snapshots[row.AggregateIdentifier], row)
	s.snapEventIDs[row.EventIdentifier] = struct{}{}
	return nil
}

// FetchAggregateStream implements eventstore.EntryStore.
func (s *Store) FetchAggregateStream(_ context.Context, aggregateID string, firstSeq uint64, batchSize int) (es.Cursor, error) {
	s.mu.RLock()
	rows := s.domain[aggregateID]
	filtered := make([]es.DomainRow, 0, len(rows))
	for _, r := range rows {
		if r.SequenceNumber >= firstSeq {
			filtered = append(filtered, r)
		}
	}
	s.mu.RUnlock()

	return es.NewBatchCursor(offsetFetcher(filtered), batchSize, nil), nil
}

// LoadLastSnapshotEvent implements eventstore.EntryStore.
func (s *Store) LoadLastSnapshotEvent(_ context.Context, aggregateID string) (es.SnapshotRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.snapshots[aggregateID]
	if len(rows) == 0 {
		return es.SnapshotRow{}, false, nil
	}
	best := rows[0]
	for _, r := range rows[1:] {
		if r.SequenceNumber > best.SequenceNumber {
			best = r
		}
	}
	return best, true, nil
}

// PruneSnapshots implements eventstore.EntryStore.
func (s *Store) PruneSnapshots(_ context.Context, aggregateID string, keepN int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.snapshots[aggregateID]
	if len(rows) <= keepN {
		return nil
	}

	type indexed struct {
		idx int
		row es.SnapshotRow
	}
	ordered := make([]indexed, len(rows))
	for i, r := range rows {
		ordered[i] = indexed{idx: i, row: r}
	}
	// Newest sequence number first; ties broken by insertion order via the
	// stable sort preserving original relative order.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].row.SequenceNumber > ordered[j].row.SequenceNumber
	})
	if keepN < 0 {
		keepN = 0
	}
	kept := ordered[:keepN]
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].idx < kept[j].idx })

	keptRows := make([]es.SnapshotRow, len(kept))
	keptSet := make(map[string]struct{}, len(kept))
	for i, k := range kept {
		keptRows[i] = k.row
		keptSet[k.row.EventIdentifier] = struct{}{}
	}
	for _, r := range rows {
		if _, ok := keptSet[r.EventIdentifier]; !ok {
			delete(s.snapEventIDs, r.EventIdentifier)
		}
	}
	s.snapshots[aggregateID] = keptRows
	return nil
}

// Visit implements eventstore.EntryStore.
func (s *Store) Visit(_ context.Context, criteria es.Criteria, batchSize int) (es.Cursor, error) {
	s.mu.RLock()
	var all []es.DomainRow
	for _, rows := range s.domain {
		for _, r := range rows {
			if es.Matches(criteria, r) {
				all = append(all, r)
			}
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].TimestampMillis != all[j].TimestampMillis {
			return all[i].TimestampMillis < all[j].TimestampMillis
		}
		if all[i].AggregateIdentifier != all[j].AggregateIdentifier {
			return all[i].AggregateIdentifier < all[j].AggregateIdentifier
		}
		return all[i].SequenceNumber < all[j].SequenceNumber
	})

	return es.NewBatchCursor(offsetFetcher(all), batchSize, nil), nil
}

// DefaultExceptionResolver implements eventstore.DefaultResolverProvider.
func (s *Store) DefaultExceptionResolver() es.PersistenceExceptionResolver {
	return exceptionResolver{}
}

type exceptionResolver struct{}

func (exceptionResolver) IsDuplicateKeyViolation(err error) bool {
	var dup *DuplicateKeyError
	return errors.As(err, &dup)
}

// offsetFetcher adapts an already-materialized, already-ordered slice into
// a BatchFetcher, so the in-memory backend honors the same lazy-batch
// Cursor contract as the SQL-backed stores even though the whole result is
// resident in memory up front.
func offsetFetcher(rows []es.DomainRow) es.BatchFetcher {
	offset := 0
	return func(_ context.Context, batchSize int) ([]es.DomainRow, error) {
		if offset >= len(rows) {
			return nil, nil
		}
		end := offset + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[offset:end]
		offset = end
		return batch, nil
	}
}

var (
	_ es.EntryStore              = (*Store)(nil)
	_ es.DefaultResolverProvider = (*Store)(nil)
)

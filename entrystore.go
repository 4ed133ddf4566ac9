package eventstore

import "context"

// EntryStore is the physical-storage abstraction the facade delegates CRUD
// to (§4.B). Each operation takes the implicit session/connection carried by
// ctx from the caller's own transaction — the core never begins, commits, or
// rolls back a transaction itself (§5).
//
// Implementations: stores/mem, package storesmem (in-memory, for
// tests/prototypes); stores/pgx, package storespgx (jackc/pgx/v5);
// stores/sql, package storessql (database/sql + lib/pq).
type EntryStore interface {
	// PersistEvent inserts one domain row. Implementations must surface a
	// uniqueness violation (on eventIdentifier, or on
	// (aggregateIdentifier, sequenceNumber)) as an error recognizable by a
	// PersistenceExceptionResolver.
	PersistEvent(ctx context.Context, row DomainRow) error

	// PersistSnapshot inserts one snapshot row, with the same uniqueness
	// semantics as PersistEvent.
	PersistSnapshot(ctx context.Context, row SnapshotRow) error

	// FetchAggregateStream returns an ordered forward cursor over domain
	// rows for aggregateID with sequenceNumber >= firstSeq, strictly
	// ascending by sequenceNumber, batched by batchSize.
	FetchAggregateStream(ctx context.Context, aggregateID string, firstSeq uint64, batchSize int) (Cursor, error)

	// LoadLastSnapshotEvent returns the snapshot row with the highest
	// sequenceNumber for aggregateID, or found=false if none exists.
	LoadLastSnapshotEvent(ctx context.Context, aggregateID string) (row SnapshotRow, found bool, err error)

	// PruneSnapshots deletes all but the newest keepN snapshots for
	// aggregateID, ordered by sequenceNumber descending, ties broken by
	// insertion order.
	PruneSnapshots(ctx context.Context, aggregateID string, keepN int) error

	// Visit returns a forward cursor over all domain rows matching
	// criteria (criteria may be nil, meaning "all rows"), ordered by
	// timestamp ascending, ties broken by (aggregateIdentifier,
	// sequenceNumber) ascending. Batched identically to
	// FetchAggregateStream.
	Visit(ctx context.Context, criteria Criteria, batchSize int) (Cursor, error)
}

// Package storespgx is a PostgreSQL EntryStore backed by jackc/pgx/v5. It
// streams rows directly off pgx.Rows rather than re-issuing LIMIT/OFFSET
// queries per batch (see cursor.go), the native pgx idiom for cursor-style
// consumption.
//
// Grounded on the teacher's stores/pgx/pgx_store.go (pool, query/scan shape)
// and stores/pgx/pgx_errors.go (SQLSTATE-based unique-violation detection),
// generalized onto the domain_event_entry/snapshot_event_entry schema
// described in SPEC_FULL.md §6.
package storespgx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	sq "github.com/Masterminds/squirrel"
	pkgerrors "github.com/pkg/errors"

	es "github.com/aldenhall/eventstore"
)

// Store is an EntryStore backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing *pgxpool.Pool. The caller owns the pool's lifecycle
// (Close it when the application shuts down).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// PersistEvent implements eventstore.EntryStore.
func (s *Store) PersistEvent(ctx context.Context, row es.DomainRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO domain_event_entry
			(event_identifier, aggregate_identifier, sequence_number, timestamp_millis,
			 payload_type, payload_revision, payload, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		row.EventIdentifier, row.AggregateIdentifier, row.SequenceNumber, row.TimestampMillis,
		row.PayloadType.Name, row.PayloadType.Revision, row.Payload, row.MetaData,
	)
	if err != nil {
		return pkgerrors.Wrap(err, "storespgx: insert domain_event_entry")
	}
	return nil
}

// PersistSnapshot implements eventstore.EntryStore.
func (s *Store) PersistSnapshot(ctx context.Context, row es.SnapshotRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshot_event_entry
			(event_identifier, aggregate_identifier, sequence_number, timestamp_millis,
			 payload_type, payload_revision, payload, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		row.EventIdentifier, row.AggregateIdentifier, row.SequenceNumber, row.TimestampMillis,
		row.PayloadType.Name, row.PayloadType.Revision, row.Payload, row.MetaData,
	)
	if err != nil {
		return pkgerrors.Wrap(err, "storespgx: insert snapshot_event_entry")
	}
	return nil
}

// FetchAggregateStream implements eventstore.EntryStore, streaming directly
// off a single open pgx.Rows rather than re-querying per batch.
func (s *Store) FetchAggregateStream(ctx context.Context, aggregateID string, firstSeq uint64, batchSize int) (es.Cursor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_identifier, aggregate_identifier, sequence_number, timestamp_millis,
		       payload_type, payload_revision, payload, meta_data
		FROM domain_event_entry
		WHERE aggregate_identifier = $1 AND sequence_number >= $2
		ORDER BY sequence_number ASC
	`, aggregateID, firstSeq)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storespgx: query domain_event_entry")
	}
	return newRowsCursor(rows, batchSize), nil
}

// LoadLastSnapshotEvent implements eventstore.EntryStore.
func (s *Store) LoadLastSnapshotEvent(ctx context.Context, aggregateID string) (es.SnapshotRow, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT event_identifier, aggregate_identifier, sequence_number, timestamp_millis,
		       payload_type, payload_revision, payload, meta_data
		FROM snapshot_event_entry
		WHERE aggregate_identifier = $1
		ORDER BY sequence_number DESC
		LIMIT 1
	`, aggregateID)

	var r es.SnapshotRow
	var typeName, typeRevision string
	if err := row.Scan(&r.EventIdentifier, &r.AggregateIdentifier, &r.SequenceNumber, &r.TimestampMillis,
		&typeName, &typeRevision, &r.Payload, &r.MetaData); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return es.SnapshotRow{}, false, nil
		}
		return es.SnapshotRow{}, false, pkgerrors.Wrap(err, "storespgx: scan snapshot_event_entry")
	}
	r.PayloadType = es.PayloadType{Name: typeName, Revision: typeRevision}
	return r, true, nil
}

// PruneSnapshots implements eventstore.EntryStore: keeps the newest keepN
// snapshots for aggregateID (by sequence_number descending) and deletes the
// rest.
func (s *Store) PruneSnapshots(ctx context.Context, aggregateID string, keepN int) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM snapshot_event_entry
		WHERE aggregate_identifier = $1
		  AND event_identifier NOT IN (
		      SELECT event_identifier FROM snapshot_event_entry
		      WHERE aggregate_identifier = $1
		      ORDER BY sequence_number DESC
		      LIMIT $2
		  )
	`, aggregateID, keepN)
	if err != nil {
		return pkgerrors.Wrap(err, "storespgx: prune snapshot_event_entry")
	}
	return nil
}

// Visit implements eventstore.EntryStore.
func (s *Store) Visit(ctx context.Context, criteria es.Criteria, batchSize int) (es.Cursor, error) {
	builder := sq.Select(
		"event_identifier", "aggregate_identifier", "sequence_number", "timestamp_millis",
		"payload_type", "payload_revision", "payload", "meta_data",
	).From("domain_event_entry").
		Where(es.ToSquirrel(criteria)).
		OrderBy("timestamp_millis ASC", "aggregate_identifier ASC", "sequence_number ASC").
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storespgx: build visit query")
	}

	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storespgx: query visit")
	}
	return newRowsCursor(rows, batchSize), nil
}

// DefaultExceptionResolver implements eventstore.DefaultResolverProvider.
func (s *Store) DefaultExceptionResolver() es.PersistenceExceptionResolver {
	return exceptionResolver{}
}

type exceptionResolver struct{}

func (exceptionResolver) IsDuplicateKeyViolation(err error) bool {
	return pgErrorCode(err) == "23505"
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var (
	_ es.EntryStore              = (*Store)(nil)
	_ es.DefaultResolverProvider = (*Store)(nil)
)

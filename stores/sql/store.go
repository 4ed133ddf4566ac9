// Package storessql is a database/sql + lib/pq EntryStore, for applications
// that already manage their connections through database/sql rather than a
// pgx pool. Unlike storespgx's native pgx.Rows streaming, batches are
// fetched by re-issuing a LIMIT/OFFSET query per page through
// eventstore.NewBatchCursor, the idiom Loofy147-LibraNexus's go-eventstore
// and vimeda-goengine's manifest both reach for over database/sql.
//
// Grounded on Loofy147-LibraNexus/go-eventstore/eventstore.go (query/scan
// shape, *pq.Error code check) and the teacher's row/codec split.
package storessql

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"

	es "github.com/aldenhall/eventstore"
)

// Store is an EntryStore backed by a database/sql connection, using
// lib/pq-flavored placeholders ($1, $2, ...).
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB. The caller owns the DB's lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// PersistEvent implements eventstore.EntryStore.
func (s *Store) PersistEvent(ctx context.Context, row es.DomainRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_event_entry
			(event_identifier, aggregate_identifier, sequence_number, timestamp_millis,
			 payload_type, payload_revision, payload, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		row.EventIdentifier, row.AggregateIdentifier, row.SequenceNumber, row.TimestampMillis,
		row.PayloadType.Name, row.PayloadType.Revision, row.Payload, row.MetaData,
	)
	if err != nil {
		return pkgerrors.Wrap(err, "storessql: insert domain_event_entry")
	}
	return nil
}

// PersistSnapshot implements eventstore.EntryStore.
func (s *Store) PersistSnapshot(ctx context.Context, row es.SnapshotRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshot_event_entry
			(event_identifier, aggregate_identifier, sequence_number, timestamp_millis,
			 payload_type, payload_revision, payload, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		row.EventIdentifier, row.AggregateIdentifier, row.SequenceNumber, row.TimestampMillis,
		row.PayloadType.Name, row.PayloadType.Revision, row.Payload, row.MetaData,
	)
	if err != nil {
		return pkgerrors.Wrap(err, "storessql: insert snapshot_event_entry")
	}
	return nil
}

// FetchAggregateStream implements eventstore.EntryStore via LIMIT/OFFSET
// paging over eventstore.NewBatchCursor.
func (s *Store) FetchAggregateStream(ctx context.Context, aggregateID string, firstSeq uint64, batchSize int) (es.Cursor, error) {
	offset := 0
	fetch := func(ctx context.Context, n int) ([]es.DomainRow, error) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT event_identifier, aggregate_identifier, sequence_number, timestamp_millis,
			       payload_type, payload_revision, payload, meta_data
			FROM domain_event_entry
			WHERE aggregate_identifier = $1 AND sequence_number >= $2
			ORDER BY sequence_number ASC
			LIMIT $3 OFFSET $4
		`, aggregateID, firstSeq, n, offset)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "storessql: query domain_event_entry")
		}
		defer rows.Close()

		batch, err := scanDomainRows(rows)
		if err != nil {
			return nil, err
		}
		offset += len(batch)
		return batch, nil
	}
	return es.NewBatchCursor(fetch, batchSize, nil), nil
}

// LoadLastSnapshotEvent implements eventstore.EntryStore.
func (s *Store) LoadLastSnapshotEvent(ctx context.Context, aggregateID string) (es.SnapshotRow, bool, error) {
	row := s.db.QueryRowContext(ctx, `
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
		if errors.Is(err, sql.ErrNoRows) {
			return es.SnapshotRow{}, false, nil
		}
		return es.SnapshotRow{}, false, pkgerrors.Wrap(err, "storessql: scan snapshot_event_entry")
	}
	r.PayloadType = es.PayloadType{Name: typeName, Revision: typeRevision}
	return r, true, nil
}

// PruneSnapshots implements eventstore.EntryStore.
func (s *Store) PruneSnapshots(ctx context.Context, aggregateID string, keepN int) error {
	_, err := s.db.ExecContext(ctx, `
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
		return pkgerrors.Wrap(err, "storessql: prune snapshot_event_entry")
	}
	return nil
}

// Visit implements eventstore.EntryStore via LIMIT/OFFSET paging.
func (s *Store) Visit(ctx context.Context, criteria es.Criteria, batchSize int) (es.Cursor, error) {
	offset := 0
	fetch := func(ctx context.Context, n int) ([]es.DomainRow, error) {
		builder := sq.Select(
			"event_identifier", "aggregate_identifier", "sequence_number", "timestamp_millis",
			"payload_type", "payload_revision", "payload", "meta_data",
		).From("domain_event_entry").
			Where(es.ToSquirrel(criteria)).
			OrderBy("timestamp_millis ASC", "aggregate_identifier ASC", "sequence_number ASC").
			Limit(uint64(n)).Offset(uint64(offset)).
			PlaceholderFormat(sq.Dollar)

		sqlStr, args, err := builder.ToSql()
		if err != nil {
			return nil, pkgerrors.Wrap(err, "storessql: build visit query")
		}

		rows, err := s.db.QueryContext(ctx, sqlStr, args...)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "storessql: query visit")
		}
		defer rows.Close()

		batch, err := scanDomainRows(rows)
		if err != nil {
			return nil, err
		}
		offset += len(batch)
		return batch, nil
	}
	return es.NewBatchCursor(fetch, batchSize, nil), nil
}

// DefaultExceptionResolver implements eventstore.DefaultResolverProvider.
func (s *Store) DefaultExceptionResolver() es.PersistenceExceptionResolver {
	return exceptionResolver{}
}

type exceptionResolver struct{}

func (exceptionResolver) IsDuplicateKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func scanDomainRows(rows *sql.Rows) ([]es.DomainRow, error) {
	var out []es.DomainRow
	for rows.Next() {
		var r es.DomainRow
		var typeName, typeRevision string
		if err := rows.Scan(&r.EventIdentifier, &r.AggregateIdentifier, &r.SequenceNumber, &r.TimestampMillis,
			&typeName, &typeRevision, &r.Payload, &r.MetaData); err != nil {
			return nil, pkgerrors.Wrap(err, "storessql: scan domain_event_entry")
		}
		r.PayloadType = es.PayloadType{Name: typeName, Revision: typeRevision}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "storessql: iterate domain_event_entry")
	}
	return out, nil
}

var (
	_ es.EntryStore              = (*Store)(nil)
	_ es.DefaultResolverProvider = (*Store)(nil)
)

package storespgx

import (
	"context"

	"github.com/jackc/pgx/v5"

	es "github.com/aldenhall/eventstore"
)

// rowsCursor adapts a pgx.Rows directly into an eventstore.Cursor. Unlike
// storesmem/storessql, there is no LIMIT/OFFSET re-querying per batch: pgx
// already streams rows lazily off the wire, so batchSize is accepted only
// for interface symmetry and otherwise unused.
type rowsCursor struct {
	rows   pgx.Rows
	cur    es.DomainRow
	err    error
	closed bool
}

func newRowsCursor(rows pgx.Rows, _ int) es.Cursor {
	return &rowsCursor{rows: rows}
}

func (c *rowsCursor) Next(_ context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = err
		}
		_ = c.Close()
		return false
	}

	var row es.DomainRow
	var typeName, typeRevision string
	if err := c.rows.Scan(
		&row.EventIdentifier, &row.AggregateIdentifier, &row.SequenceNumber, &row.TimestampMillis,
		&typeName, &typeRevision, &row.Payload, &row.MetaData,
	); err != nil {
		c.err = err
		_ = c.Close()
		return false
	}
	row.PayloadType = es.PayloadType{Name: typeName, Revision: typeRevision}
	c.cur = row
	return true
}

func (c *rowsCursor) Row() es.DomainRow { return c.cur }

func (c *rowsCursor) Err() error { return c.err }

func (c *rowsCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.rows.Close()
	return nil
}

var _ es.Cursor = (*rowsCursor)(nil)

package eventstore

import "context"

// Cursor is a forward-only, batched iterator over DomainRow values, returned
// by EntryStore.FetchAggregateStream and EntryStore.Visit (§4.B). Callers
// must call Close when done, even if they never call Next — the
// resource-closure contract (AXON-321-style) requires every statement and
// result set opened for the call to be released on close or exhaustion,
// including the empty-stream path.
type Cursor interface {
	// Next advances the cursor and reports whether a row is available. On
	// false, check Err to distinguish "exhausted" from "failed".
	Next(ctx context.Context) bool

	// Row returns the row last advanced to by Next. Only valid after Next
	// returned true.
	Row() DomainRow

	// Err returns the first error encountered, if any.
	Err() error

	// Close releases all resources associated with the cursor. Close is
	// idempotent and safe to call multiple times, and is called
	// automatically on exhaustion.
	Close() error
}

// BatchFetcher retrieves the next batch of up to batchSize rows. Returning
// fewer than batchSize rows (including zero) signals exhaustion to
// NewBatchCursor. Implementations typically close this page's own
// statement/rows before returning (see the LIMIT/OFFSET chunking in
// stores/sql, package storessql).
type BatchFetcher func(ctx context.Context, batchSize int) ([]DomainRow, error)

// NewBatchCursor adapts a BatchFetcher into a Cursor that hides batch
// boundaries from the caller: rows from one batch are delivered one at a
// time, and the next batch is only fetched lazily once the buffered one is
// drained (§4.B: "each batch fetched lazily on demand to bound memory").
// closeFn, if non-nil, is invoked exactly once, the first time the cursor is
// closed explicitly or exhausts.
func NewBatchCursor(fetch BatchFetcher, batchSize int, closeFn func() error) Cursor {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &batchCursor{fetch: fetch, batchSize: batchSize, closeFn: closeFn}
}

type batchCursor struct {
	fetch     BatchFetcher
	batchSize int
	buf       []DomainRow
	idx       int
	err       error
	exhausted bool
	closed    bool
	closeFn   func() error
}

func (c *batchCursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if c.idx < len(c.buf) {
		c.idx++
		return true
	}
	if c.exhausted {
		_ = c.Close()
		return false
	}

	rows, err := c.fetch(ctx, c.batchSize)
	if err != nil {
		c.err = err
		_ = c.Close()
		return false
	}
	if len(rows) == 0 {
		c.exhausted = true
		_ = c.Close()
		return false
	}
	if len(rows) < c.batchSize {
		c.exhausted = true
	}
	c.buf = rows
	c.idx = 1
	return true
}

func (c *batchCursor) Row() DomainRow {
	return c.buf[c.idx-1]
}

func (c *batchCursor) Err() error {
	return c.err
}

func (c *batchCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// emptyCursor is a Cursor over zero rows, for a call that can be answered
// without touching storage. It is unexported and no code in this module
// calls it.
func emptyCursor() Cursor {
	return NewBatchCursor(func(context.Context, int) ([]DomainRow, error) {
		return nil, nil
	}, 1, nil)
}

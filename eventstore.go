package eventstore

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// DefaultResolverProvider is an optional capability an EntryStore backend
// may implement to supply its own default PersistenceExceptionResolver,
// matching §4.F's "dataSource (optional) — when supplied, the default
// exception resolver is derived from it": here the EntryStore itself is the
// dataSource. storesmem, storespgx, and storessql all implement it.
type DefaultResolverProvider interface {
	DefaultExceptionResolver() PersistenceExceptionResolver
}

// EventStore is the public facade (§4.F): append, appendSnapshotEvent,
// readEvents (three arities), visitEvents (two arities), and
// newCriteriaBuilder. It is safe for concurrent use by multiple goroutines;
// its only mutable state is the configuration below and the clock, both
// published atomically (§5).
type EventStore struct {
	entry      EntryStore
	serializer *Serializer
	logger     *logrus.Logger
	clock      *Clock

	batchSize            atomic.Int64
	maxSnapshotsArchived atomic.Value // holds snapshotCap
	upcasterChain        atomic.Value // holds chainHolder
	resolver             atomic.Value // holds resolverHolder
	extractor            atomic.Value // holds metadataExtractorHolder
}

type snapshotCap struct {
	n   int
	set bool
}

// chainHolder and resolverHolder box an interface value before it goes into
// an atomic.Value. atomic.Value.Store panics with "store of inconsistently
// typed value" if two calls store different concrete types, and
// WithUpcasterChain/WithPersistenceExceptionResolver exist precisely so a
// caller can supply their own concrete implementation — one that can never
// be the same concrete type as the backend's default. Boxing in a
// single-field struct keeps the type Store sees constant regardless of what
// implementation is inside, the same trick metadataExtractorHolder already
// uses below.
type chainHolder struct {
	c UpcasterChain
}

type resolverHolder struct {
	r PersistenceExceptionResolver
}

// metadataExtractorHolder lets a nil MetadataExtractor still be stored in an
// atomic.Value, which panics on a bare untyped nil.
type metadataExtractorHolder struct {
	fn MetadataExtractor
}

// Option configures an EventStore at construction time. Mutating options
// after concurrent traffic has started is undefined (§5).
type Option func(*EventStore)

// WithBatchSize sets the cursor prefetch size (default 100, must be >= 1).
func WithBatchSize(n int) Option {
	return func(es *EventStore) {
		if n < 1 {
			n = 1
		}
		es.batchSize.Store(int64(n))
	}
}

// WithMaxSnapshotsArchived sets the pruning cap applied after every
// successful AppendSnapshotEvent (default: unbounded).
func WithMaxSnapshotsArchived(n int) Option {
	return func(es *EventStore) {
		if n < 1 {
			n = 1
		}
		es.maxSnapshotsArchived.Store(snapshotCap{n: n, set: true})
	}
}

// WithPersistenceExceptionResolver installs the exception translator
// (§4.G). When not supplied, the entry store's own resolver is used if it
// implements DefaultResolverProvider; otherwise, or when r is nil, integrity
// violations pass through untranslated.
func WithPersistenceExceptionResolver(r PersistenceExceptionResolver) Option {
	return func(es *EventStore) {
		if r == nil {
			r = nopResolver{}
		}
		es.resolver.Store(resolverHolder{r: r})
	}
}

// WithUpcasterChain installs the upcaster chain (default: identity).
func WithUpcasterChain(c UpcasterChain) Option {
	return func(es *EventStore) {
		es.upcasterChain.Store(chainHolder{c: c})
	}
}

// WithSerializer overrides the default (empty) Serializer. Most
// applications call this to register their event codecs.
func WithSerializer(s *Serializer) Option {
	return func(es *EventStore) {
		es.serializer = s
	}
}

// WithClock overrides the per-instance clock (default: the process-wide
// clock, see Now/SetClock).
func WithClock(c *Clock) Option {
	return func(es *EventStore) {
		es.clock = c
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(es *EventStore) {
		es.logger = l
	}
}

// WithMetadataExtractor installs a MetadataExtractor consulted on every
// AppendEvents/AppendSnapshotEvent call: extracted metadata is merged under
// the event's own Metadata, so explicit keys set via Raise/NewEventMessage
// always take precedence over ambient ones (tenant_id, user_id,
// correlation_id, and similar request-scoped values).
func WithMetadataExtractor(ex MetadataExtractor) Option {
	return func(es *EventStore) {
		es.extractor.Store(metadataExtractorHolder{fn: ex})
	}
}

// NewEventMessage stamps a new EventMessage at construction time, using this
// store's clock (§3 invariant 4, §4.H) and a generated event identifier.
// Aggregates call this (directly or via Base.Raise) rather than building an
// EventMessage by hand, so the timestamp is fixed once and never
// recomputed at persistence time.
func (es *EventStore) NewEventMessage(aggregateID string, seq uint64, payload DomainEvent, md Metadata) EventMessage {
	return newEventMessage(es.clock, aggregateID, seq, payload, md)
}

// New constructs an EventStore backed by entry. If entry implements
// DefaultResolverProvider, its resolver becomes the default — equivalent to
// spec.md §4.F's "dataSource (optional)" hook — and
// WithPersistenceExceptionResolver can still override it.
func New(entry EntryStore, opts ...Option) *EventStore {
	es := &EventStore{
		entry:      entry,
		serializer: NewSerializer(),
		logger:     logrus.StandardLogger(),
		clock:      defaultClock,
	}
	es.batchSize.Store(100)
	es.maxSnapshotsArchived.Store(snapshotCap{})
	es.upcasterChain.Store(chainHolder{c: identityChain})
	es.extractor.Store(metadataExtractorHolder{})

	if provider, ok := entry.(DefaultResolverProvider); ok {
		es.resolver.Store(resolverHolder{r: provider.DefaultExceptionResolver()})
	} else {
		es.resolver.Store(resolverHolder{r: nopResolver{}})
	}

	for _, opt := range opts {
		opt(es)
	}
	return es
}

func (es *EventStore) chain() UpcasterChain {
	return es.upcasterChain.Load().(chainHolder).c
}

func (es *EventStore) snapshotCap() snapshotCap {
	return es.maxSnapshotsArchived.Load().(snapshotCap)
}

func (es *EventStore) exceptionResolver() PersistenceExceptionResolver {
	return es.resolver.Load().(resolverHolder).r
}

// resolveMetaData merges any ambient metadata the configured extractor
// derives from ctx underneath the event's own explicit metadata.
func (es *EventStore) resolveMetaData(ctx context.Context, explicit Metadata) Metadata {
	holder := es.extractor.Load().(metadataExtractorHolder)
	if holder.fn == nil {
		return explicit
	}
	return holder.fn(ctx).Merge(explicit)
}

// NewCriteriaBuilder returns a fresh builder scoped to this store's column
// vocabulary (§4.C, §4.F).
func (es *EventStore) NewCriteriaBuilder() CriteriaBuilder {
	return NewCriteriaBuilder()
}

// AppendEvents serializes and persists events, in order, for a single
// aggregate (§4.F). On an integrity violation the exception translator is
// consulted; a recognized duplicate key becomes a *ConcurrencyError, and
// anything else is propagated, wrapped with a message referencing the
// offending domain-event row.
func (es *EventStore) AppendEvents(ctx context.Context, events ...EventMessage) error {
	resolver := es.exceptionResolver()
	for _, event := range events {
		payload, err := es.serializer.Serialize(event.Payload, event.PayloadType)
		if err != nil {
			return err
		}
		metaBytes, err := EncodeMetaData(es.resolveMetaData(ctx, event.MetaData))
		if err != nil {
			return err
		}
		row := NewDomainRow(event, payload, metaBytes)

		if err := es.entry.PersistEvent(ctx, row); err != nil {
			if resolver.IsDuplicateKeyViolation(err) {
				return &ConcurrencyError{
					AggregateIdentifier: row.AggregateIdentifier,
					SequenceNumber:      row.SequenceNumber,
				}
			}
			return errors.Wrapf(
				err,
				"eventstore: domain_event_entry: append event %s for aggregate %s at sequence %d",
				row.EventIdentifier, row.AggregateIdentifier, row.SequenceNumber,
			)
		}
	}
	return nil
}

// AppendSnapshotEvent serializes and persists one snapshot row, then, if
// maxSnapshotsArchived is configured, prunes older snapshots for the same
// aggregate down to that cap (§4.F, §3 invariant 3).
func (es *EventStore) AppendSnapshotEvent(ctx context.Context, event EventMessage) error {
	resolver := es.exceptionResolver()

	payload, err := es.serializer.Serialize(event.Payload, event.PayloadType)
	if err != nil {
		return err
	}
	metaBytes, err := EncodeMetaData(es.resolveMetaData(ctx, event.MetaData))
	if err != nil {
		return err
	}
	row := NewSnapshotRow(event, payload, metaBytes)

	if err := es.entry.PersistSnapshot(ctx, row); err != nil {
		if resolver.IsDuplicateKeyViolation(err) {
			return &ConcurrencyError{
				AggregateIdentifier: row.AggregateIdentifier,
				SequenceNumber:      row.SequenceNumber,
				Message: fmt.Sprintf(
					"eventstore: concurrency error appending snapshot for aggregate %s at sequence %d",
					row.AggregateIdentifier, row.SequenceNumber,
				),
			}
		}
		return errors.Wrapf(
			err,
			"eventstore: snapshot_event_entry: append snapshot for aggregate %s at sequence %d",
			row.AggregateIdentifier, row.SequenceNumber,
		)
	}

	if cap := es.snapshotCap(); cap.set {
		if err := es.entry.PruneSnapshots(ctx, row.AggregateIdentifier, cap.n); err != nil {
			return errors.Wrapf(err, "eventstore: prune snapshots for aggregate %s", row.AggregateIdentifier)
		}
		es.logger.WithFields(logrus.Fields{
			"aggregateIdentifier": row.AggregateIdentifier,
			"keep":                cap.n,
		}).Debug("eventstore: pruned snapshots")
	}
	return nil
}

// ReadEvents returns the full event stream for aggregateID: a snapshot (if
// present and deserializable) followed by subsequent events, or the full
// stream from sequence 0 otherwise (§4.E).
func (es *EventStore) ReadEvents(ctx context.Context, aggregateID string) (*Stream, error) {
	return es.readEvents(ctx, aggregateID, nil, nil)
}

// ReadEventsFrom returns events for aggregateID starting at firstSeq
// (inclusive), ignoring any snapshot entirely (§4.E step 2).
func (es *EventStore) ReadEventsFrom(ctx context.Context, aggregateID string, firstSeq uint64) (*Stream, error) {
	return es.readEvents(ctx, aggregateID, &firstSeq, nil)
}

// ReadEventsRange returns events for aggregateID in [firstSeq, lastSeq],
// ignoring any snapshot (§4.E steps 2-3).
func (es *EventStore) ReadEventsRange(ctx context.Context, aggregateID string, firstSeq, lastSeq uint64) (*Stream, error) {
	return es.readEvents(ctx, aggregateID, &firstSeq, &lastSeq)
}

func (es *EventStore) readEvents(ctx context.Context, aggregateID string, firstSeq, lastSeq *uint64) (*Stream, error) {
	batchSize := int(es.batchSize.Load())

	var startSeq uint64
	var snapshotMsg *EventMessage

	if firstSeq == nil {
		snap, found, err := es.entry.LoadLastSnapshotEvent(ctx, aggregateID)
		if err != nil {
			return nil, errors.Wrap(err, "eventstore: load snapshot")
		}
		if found {
			msg, derr := decodeRow(snap.asDomainRow(), es.serializer)
			if derr != nil {
				es.logger.WithError(derr).WithField("aggregateIdentifier", aggregateID).
					Warn("eventstore: snapshot failed to deserialize, falling back to full stream")
				startSeq = 0
			} else {
				snapshotMsg = &msg
				startSeq = snap.SequenceNumber + 1
			}
		}
	} else {
		startSeq = *firstSeq
	}

	cursor, err := es.entry.FetchAggregateStream(ctx, aggregateID, startSeq, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "eventstore: fetch aggregate stream")
	}

	stream := newStream(cursor, es.chain(), es.serializer, false)
	if snapshotMsg != nil {
		stream.prependSnapshot(*snapshotMsg)
	}
	if lastSeq != nil {
		stream.setUpperBound(*lastSeq)
	}

	if snapshotMsg == nil {
		has, herr := stream.HasNext(ctx)
		if herr != nil {
			_ = stream.Close()
			return nil, herr
		}
		if !has {
			_ = stream.Close()
			return nil, &EventStreamNotFoundError{AggregateIdentifier: aggregateID}
		}
	}

	return stream, nil
}

// VisitEvents visits every persisted domain row in timestamp order
// (§4.F, §8 property 5).
func (es *EventStore) VisitEvents(ctx context.Context, visitor EventVisitor) error {
	return es.visit(ctx, nil, visitor)
}

// VisitEventsMatching visits every persisted domain row matching criteria,
// in timestamp order (§4.F, §8 property 6).
func (es *EventStore) VisitEventsMatching(ctx context.Context, criteria Criteria, visitor EventVisitor) error {
	return es.visit(ctx, criteria, visitor)
}

func (es *EventStore) visit(ctx context.Context, criteria Criteria, visitor EventVisitor) error {
	batchSize := int(es.batchSize.Load())
	cursor, err := es.entry.Visit(ctx, criteria, batchSize)
	if err != nil {
		return errors.Wrap(err, "eventstore: visit")
	}

	stream := newStream(cursor, es.chain(), es.serializer, true)
	defer stream.Close()

	for {
		msg, ok, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if unresolved, isUnresolved := msg.Payload.(*UnresolvedPayload); isUnresolved {
			es.logger.WithError(unresolved.Err).WithFields(logrus.Fields{
				"aggregateIdentifier": msg.AggregateIdentifier,
				"sequenceNumber":      msg.SequenceNumber,
			}).Warn("eventstore: visiting event with unresolved payload type")
		}
		if err := visitor.DoWithEvent(msg); err != nil {
			return err
		}
	}
}

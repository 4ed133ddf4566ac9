package eventstore

// Base is an embeddable helper implementing the Aggregate boilerplate.
// Semantics:
//   - Apply(e): mutate state via applier and bump version by 1. Does NOT
//     enqueue.
//   - Raise(e, md): stamp a new EventMessage (event identifier, timestamp
//     from the clock, sequence number = current version), Apply it, and
//     enqueue the stamped message for persistence.
//   - Version(): current version INCLUDING pending events.
//   - Flush(): returns pending events and clears them; also returns
//     expectedVersion = currentVersion - len(pending_before).
type Base struct {
	id      string
	version int64
	pending []EventMessage
	applier func(DomainEvent)
	clock   *Clock
}

// Init sets the aggregate identifier and the state-mutation function
// (applier). The clock defaults to the process-wide clock (Now/SetClock);
// use InitWithClock to inject a different one (tests typically don't need
// to — SetClock already covers that process-wide).
func (b *Base) Init(aggregateID string, applier func(DomainEvent)) {
	b.InitWithClock(aggregateID, applier, defaultClock)
}

// InitWithClock is Init but with an explicit Clock, for aggregates that
// need a clock independent of the process-wide default.
func (b *Base) InitWithClock(aggregateID string, applier func(DomainEvent), clock *Clock) {
	b.id = aggregateID
	b.applier = applier
	b.clock = clock
}

// AggregateIdentifier returns this aggregate's unique identifier.
func (b *Base) AggregateIdentifier() string { return b.id }

// SetAggregateIdentifier overrides the identifier (e.g. when the first
// event assigns it).
func (b *Base) SetAggregateIdentifier(id string) { b.id = id }

// SetApplier replaces the state-mutation function.
func (b *Base) SetApplier(applier func(DomainEvent)) { b.applier = applier }

// SetVersion forces the current version (used when restoring from a
// snapshot). No pending events are affected.
func (b *Base) SetVersion(v int64) { b.version = v }

// Apply mutates state by a single domain event payload and advances the
// version by 1. Used for replay (rehydration) and for confirming events
// already committed.
func (b *Base) Apply(e DomainEvent) {
	if b.applier != nil {
		b.applier(e)
	}
	b.version++
}

// Raise stamps payload into a new EventMessage (sequence number = current
// version, timestamp from the clock, a fresh event identifier), applies it,
// and enqueues it into the pending buffer. Call Flush to obtain and clear
// pending events for persistence.
func (b *Base) Raise(payload DomainEvent, md Metadata) {
	msg := newEventMessage(b.clock, b.id, uint64(b.version), payload, md)
	b.Apply(payload)
	b.pending = append(b.pending, msg)
}

// Flush returns all uncommitted events and clears the pending buffer.
// expectedVersion = currentVersion - len(pendingBeforeFlush).
func (b *Base) Flush() (events []EventMessage, expectedVersion int64) {
	events = b.pending
	expectedVersion = b.version - int64(len(events))
	b.pending = nil
	return
}

// Version returns the current version INCLUDING pending events.
func (b *Base) Version() int64 { return b.version }

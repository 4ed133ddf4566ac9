package eventstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a semantic alias for the opaque payload carried by an
// EventMessage or applied to an Aggregate. It mirrors how domain code refers
// to "the event" without caring about envelope fields.
type DomainEvent = any

// PayloadType identifies the logical shape of a serialized payload: a name
// plus a revision. Upcasters are keyed on this tuple (§4.D).
type PayloadType struct {
	Name     string
	Revision string
}

func (t PayloadType) String() string {
	return fmt.Sprintf("%s#%s", t.Name, t.Revision)
}

// EventMessage is the immutable, in-memory representation of a single
// persisted (or about-to-be-persisted) domain event.
type EventMessage struct {
	EventIdentifier     string
	AggregateIdentifier string
	SequenceNumber      uint64
	Timestamp           time.Time
	PayloadType         PayloadType
	Payload             DomainEvent
	MetaData            Metadata
}

// namedType is implemented by events that declare their own logical type
// name, e.g. `func (AccountOpened) EventType() string { return "AccountOpened" }`.
type namedType interface {
	EventType() string
}

// revisioned is implemented by events that declare a non-zero revision.
type revisioned interface {
	PayloadRevision() string
}

// PayloadTypeOf derives the PayloadType for a raw domain event payload.
// Types that implement EventType() string use that name; otherwise the Go
// type name is used (e.g. "account.AccountOpened"). Revision defaults to
// "0" unless the payload implements PayloadRevision() string.
func PayloadTypeOf(e DomainEvent) PayloadType {
	name := fmt.Sprintf("%T", e)
	if n, ok := e.(namedType); ok {
		name = n.EventType()
	}
	revision := "0"
	if r, ok := e.(revisioned); ok {
		revision = r.PayloadRevision()
	}
	return PayloadType{Name: name, Revision: revision}
}

// newEventMessage stamps a new EventMessage using clock for its timestamp
// and a freshly generated event identifier (§3 invariant 4, §4.H). Shared by
// EventStore.NewEventMessage and Base.Raise.
func newEventMessage(clock *Clock, aggregateID string, seq uint64, payload DomainEvent, md Metadata) EventMessage {
	if clock == nil {
		clock = defaultClock
	}
	return EventMessage{
		EventIdentifier:     uuid.NewString(),
		AggregateIdentifier: aggregateID,
		SequenceNumber:      seq,
		Timestamp:           clock.Now(),
		PayloadType:         PayloadTypeOf(payload),
		Payload:             payload,
		MetaData:            md,
	}
}

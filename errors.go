package eventstore

import "fmt"

var (
	// ErrConcurrency is the sentinel matched by errors.Is(err, ErrConcurrency)
	// whenever an append collides with an existing (aggregateId, sequenceNumber)
	// or an existing snapshot at the same key (§7 ConcurrencyError).
	ErrConcurrency = fmt.Errorf("eventstore: concurrency error")

	// ErrEventStreamNotFound is the sentinel for EventStreamNotFoundError.
	ErrEventStreamNotFound = fmt.Errorf("eventstore: event stream not found")

	// ErrUnknownSerializedType is the sentinel for UnknownSerializedTypeError.
	ErrUnknownSerializedType = fmt.Errorf("eventstore: unknown serialized type")
)

// ConcurrencyError signals that an append collided with an existing row:
// either the (aggregateId, sequenceNumber) uniqueness invariant or the
// eventIdentifier uniqueness invariant was violated (§3 invariants 1-2).
type ConcurrencyError struct {
	AggregateIdentifier string
	SequenceNumber      uint64
	Message             string
}

func (e *ConcurrencyError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf(
		"eventstore: concurrency error on aggregate %s at sequence %d",
		e.AggregateIdentifier, e.SequenceNumber,
	)
}

// Is allows errors.Is(err, ErrConcurrency) to match this type.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrency
}

// EventStreamNotFoundError signals that readEvents was called for an
// aggregate with no domain rows and no snapshot (§7).
type EventStreamNotFoundError struct {
	AggregateIdentifier string
}

func (e *EventStreamNotFoundError) Error() string {
	return fmt.Sprintf("eventstore: event stream not found for aggregate %s", e.AggregateIdentifier)
}

// Is allows errors.Is(err, ErrEventStreamNotFound) to match this type.
func (e *EventStreamNotFoundError) Is(target error) bool {
	return target == ErrEventStreamNotFound
}

// UnknownSerializedTypeError signals that a row's payload type could not be
// resolved to a registered codec during deserialization (§4.D, §7).
type UnknownSerializedTypeError struct {
	PayloadType PayloadType
}

func (e *UnknownSerializedTypeError) Error() string {
	return fmt.Sprintf("eventstore: unknown serialized type %s", e.PayloadType)
}

// Is allows errors.Is(err, ErrUnknownSerializedType) to match this type.
func (e *UnknownSerializedTypeError) Is(target error) bool {
	return target == ErrUnknownSerializedType
}

// UnresolvedPayload is installed as EventMessage.Payload when visitEvents
// tolerates an unknown serialized type (§4.D: "the visitor sees an event
// whose payload reification is deferred and does not fail the scan"). It
// implements error so callers that type-assert on it can inspect Err.
type UnresolvedPayload struct {
	Type PayloadType
	Err  error
}

func (u *UnresolvedPayload) Error() string {
	return u.Err.Error()
}

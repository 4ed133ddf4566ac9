package eventstore

import "time"

// UpcastingContext carries the original row's identity fields into an
// Upcaster, so fan-out events can share the source event's identity while
// diverging in payload and payload type (§4.D).
type UpcastingContext struct {
	EventIdentifier     string
	AggregateIdentifier string
	SequenceNumber      uint64
	Timestamp           time.Time
	MetaData            Metadata
}

// Upcaster transforms a serialized payload of an older revision into zero or
// more serialized payloads of a newer revision. Fan-in/fan-out are both
// allowed: a single stored event may become several events at read time, or
// be filtered out entirely by returning no outputs.
type Upcaster interface {
	// CanUpcast reports whether this upcaster handles the given (type,
	// revision) tuple. Only matching rows are passed to Upcast.
	CanUpcast(t PayloadType) bool

	// Upcast transforms obj, producing zero or more replacement serialized
	// payloads.
	Upcast(obj SerializedObject, ctx UpcastingContext) ([]SerializedObject, error)
}

// UpcasterChain runs a sequence of Upcasters over a single serialized
// payload, feeding each stage's output into the next.
type UpcasterChain interface {
	Upcast(obj SerializedObject, ctx UpcastingContext) ([]SerializedObject, error)
}

type upcasterChain struct {
	stages []Upcaster
}

// NewUpcasterChain builds an UpcasterChain that applies stages in order.
// Passing no stages yields the identity chain (every row passes through
// unchanged), which is also the default when an EventStore is configured
// without WithUpcasterChain.
func NewUpcasterChain(stages ...Upcaster) UpcasterChain {
	return &upcasterChain{stages: stages}
}

func (c *upcasterChain) Upcast(obj SerializedObject, ctx UpcastingContext) ([]SerializedObject, error) {
	current := []SerializedObject{obj}
	for _, stage := range c.stages {
		var next []SerializedObject
		for _, item := range current {
			if !stage.CanUpcast(item.Type) {
				next = append(next, item)
				continue
			}
			out, err := stage.Upcast(item, ctx)
			if err != nil {
				return nil, err
			}
			next = append(next, out...)
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	return current, nil
}

// identityChain is used whenever no upcaster chain is configured.
var identityChain = NewUpcasterChain()

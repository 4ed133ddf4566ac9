package eventstore

import "context"

// Stream is the lazy, forward-only, single-pass sequence of EventMessage
// values returned by ReadEvents/ReadEventsFrom/ReadEventsRange and driven
// internally by VisitEvents (§4.E). It is not restartable and not safe to
// share across goroutines.
//
// A Stream performs snapshot-then-events handoff, per-row upcaster fan-out,
// and lazy deserialization: none of that work happens until the caller asks
// for the next element, via a one-element peek buffer.
type Stream struct {
	cursor    Cursor
	chain     UpcasterChain
	serializer *Serializer
	tolerant  bool
	upperBound *uint64

	prepended []EventMessage // the decoded snapshot, if any; consumed first

	pending []SerializedObject // buffered upcaster fan-out outputs awaiting decode
	pendingCtx UpcastingContext

	peeked    *EventMessage
	peekedErr error
	hasPeeked bool

	closed bool
}

func newStream(cursor Cursor, chain UpcasterChain, serializer *Serializer, tolerant bool) *Stream {
	if chain == nil {
		chain = identityChain
	}
	return &Stream{cursor: cursor, chain: chain, serializer: serializer, tolerant: tolerant}
}

// prependSnapshot installs an already-decoded snapshot message as the first
// element of the stream (§4.E step 1).
func (s *Stream) prependSnapshot(msg EventMessage) {
	s.prepended = append(s.prepended, msg)
}

// setUpperBound stops iteration once a domain row with sequenceNumber >
// seq would be produced (§4.E step 3). It has no effect on the prepended
// snapshot.
func (s *Stream) setUpperBound(seq uint64) {
	s.upperBound = &seq
}

// HasNext reports whether a further call to Next would succeed, prefetching
// at most one element to find out.
func (s *Stream) HasNext(ctx context.Context) (bool, error) {
	if s.hasPeeked {
		return s.peeked != nil && s.peekedErr == nil, s.peekedErr
	}
	msg, err := s.fetchNext(ctx)
	s.peeked = msg
	s.peekedErr = err
	s.hasPeeked = true
	if err != nil {
		return false, err
	}
	return msg != nil, nil
}

// Next returns the next EventMessage with ok=true, or an error. Calling
// HasNext first is optional: once the stream is exhausted, Next returns a
// zero EventMessage, ok=false and a nil error, mirroring a drained channel
// read.
func (s *Stream) Next(ctx context.Context) (EventMessage, bool, error) {
	if !s.hasPeeked {
		msg, err := s.fetchNext(ctx)
		s.peeked = msg
		s.peekedErr = err
		s.hasPeeked = true
	}
	msg, err := s.peeked, s.peekedErr
	s.peeked = nil
	s.peekedErr = nil
	s.hasPeeked = false
	if err != nil {
		return EventMessage{}, false, err
	}
	if msg == nil {
		return EventMessage{}, false, nil
	}
	return *msg, true, nil
}

// Close releases the underlying cursor. Safe to call multiple times.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cursor.Close()
}

// fetchNext produces the next decoded EventMessage, or (nil, nil) when the
// stream is exhausted.
func (s *Stream) fetchNext(ctx context.Context) (*EventMessage, error) {
	if len(s.prepended) > 0 {
		msg := s.prepended[0]
		s.prepended = s.prepended[1:]
		return &msg, nil
	}

	for {
		if len(s.pending) > 0 {
			obj := s.pending[0]
			s.pending = s.pending[1:]
			msg, err := s.decode(obj, s.pendingCtx)
			if err != nil {
				return nil, err
			}
			if msg == nil {
				// tolerant path chose to skip; keep pulling.
				continue
			}
			return msg, nil
		}

		if !s.cursor.Next(ctx) {
			if err := s.cursor.Err(); err != nil {
				return nil, err
			}
			return nil, nil
		}
		row := s.cursor.Row()
		if s.upperBound != nil && row.SequenceNumber > *s.upperBound {
			_ = s.cursor.Close()
			return nil, nil
		}

		ctxOut := UpcastingContext{
			EventIdentifier:     row.EventIdentifier,
			AggregateIdentifier: row.AggregateIdentifier,
			SequenceNumber:      row.SequenceNumber,
			Timestamp:           FromEpochMillis(row.TimestampMillis),
			MetaData:            nil, // filled in below once decoded
		}
		meta, err := DecodeMetaData(row.MetaData)
		if err != nil {
			return nil, err
		}
		ctxOut.MetaData = meta

		outputs, err := s.chain.Upcast(row.serializedPayload(), ctxOut)
		if err != nil {
			return nil, err
		}
		if len(outputs) == 0 {
			continue
		}
		s.pending = outputs
		s.pendingCtx = ctxOut
	}
}

// decode turns one upcaster output into an EventMessage, honoring the
// readEvents-vs-visitEvents distinction for unknown serialized types
// (§4.D, §7). Returning (nil, nil) means "skip this output" (tolerant mode
// chose to proceed past an error that was absorbed elsewhere — currently
// unused but kept symmetric with fetchNext's skip path).
func (s *Stream) decode(obj SerializedObject, ctx UpcastingContext) (*EventMessage, error) {
	payload, err := s.serializer.Deserialize(obj)
	if err != nil {
		if _, ok := err.(*UnknownSerializedTypeError); ok && s.tolerant {
			msg := EventMessage{
				EventIdentifier:     ctx.EventIdentifier,
				AggregateIdentifier: ctx.AggregateIdentifier,
				SequenceNumber:      ctx.SequenceNumber,
				Timestamp:           ctx.Timestamp,
				PayloadType:         obj.Type,
				Payload:             &UnresolvedPayload{Type: obj.Type, Err: err},
				MetaData:            ctx.MetaData,
			}
			return &msg, nil
		}
		return nil, err
	}
	msg := EventMessage{
		EventIdentifier:     ctx.EventIdentifier,
		AggregateIdentifier: ctx.AggregateIdentifier,
		SequenceNumber:      ctx.SequenceNumber,
		Timestamp:           ctx.Timestamp,
		PayloadType:         obj.Type,
		Payload:             payload,
		MetaData:            ctx.MetaData,
	}
	return &msg, nil
}

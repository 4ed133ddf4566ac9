// Package storetest is a backend-agnostic compliance suite for
// eventstore.EntryStore implementations. It is run against storesmem, and
// against storespgx when DATABASE_URL is set; storessql is not run through
// it.
// Each subtest runs in parallel, so a Factory must hand back a fresh,
// isolated store (or at least an isolated aggregate-identifier namespace).
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	es "github.com/aldenhall/eventstore"
)

type Opened struct{ ID string }

func (Opened) EventType() string { return "Opened" }

type Added struct{ N int }

func (Added) EventType() string { return "Added" }

type AddedV2 struct {
	N     int
	Units string
}

func (AddedV2) EventType() string       { return "Added" }
func (AddedV2) PayloadRevision() string { return "2" }

// Factory creates a fresh EntryStore for a single subtest.
type Factory func(t *testing.T) es.EntryStore

func serializer() *es.Serializer {
	s := es.NewSerializer()
	s.RegisterCurrent("Opened", es.JSONCodec[Opened]())
	s.RegisterCurrent("Added", es.JSONCodec[Added]())
	s.Register("Added", "2", es.JSONCodec[AddedV2]())
	return s
}

// Run executes the full compliance suite against newEntry.
func Run(t *testing.T, newEntry Factory) {
	t.Run("round trip preserves order and payload", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := es.New(newEntry(t), es.WithSerializer(serializer()))
		aggregateID := "Account:1"

		events := []es.EventMessage{
			store.NewEventMessage(aggregateID, 0, Opened{ID: "1"}, es.Metadata{"actor": "alice"}),
			store.NewEventMessage(aggregateID, 1, Added{N: 5}, nil),
			store.NewEventMessage(aggregateID, 2, Added{N: 7}, nil),
		}
		if err := store.AppendEvents(ctx, events...); err != nil {
			t.Fatalf("append: %v", err)
		}

		stream, err := store.ReadEvents(ctx, aggregateID)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		defer stream.Close()

		var got []es.EventMessage
		for {
			msg, ok, err := stream.Next(ctx)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if !ok {
				break
			}
			got = append(got, msg)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 events, got %d", len(got))
		}
		if _, ok := got[0].Payload.(Opened); !ok {
			t.Fatalf("expected first payload Opened, got %T", got[0].Payload)
		}
		if got[0].MetaData["actor"] != "alice" {
			t.Fatalf("expected metadata to round-trip, got %v", got[0].MetaData)
		}
		for i, msg := range got {
			if msg.SequenceNumber != uint64(i) {
				t.Fatalf("expected sequence %d, got %d", i, msg.SequenceNumber)
			}
		}
	})

	t.Run("duplicate sequence number is a concurrency error", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := es.New(newEntry(t), es.WithSerializer(serializer()))
		aggregateID := "Account:2"

		first := store.NewEventMessage(aggregateID, 0, Opened{ID: "2"}, nil)
		if err := store.AppendEvents(ctx, first); err != nil {
			t.Fatalf("append: %v", err)
		}

		dup := store.NewEventMessage(aggregateID, 0, Added{N: 1}, nil)
		err := store.AppendEvents(ctx, dup)

		var conflict *es.ConcurrencyError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected *ConcurrencyError, got %v", err)
		}
	})

	t.Run("snapshot cut-over resumes after the snapshot sequence", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := es.New(newEntry(t), es.WithSerializer(serializer()))
		aggregateID := "Account:3"

		for i := uint64(0); i < 4; i++ {
			msg := store.NewEventMessage(aggregateID, i, Added{N: int(i)}, nil)
			if err := store.AppendEvents(ctx, msg); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}
		snap := store.NewEventMessage(aggregateID, 2, Opened{ID: "snapshot-at-2"}, nil)
		if err := store.AppendSnapshotEvent(ctx, snap); err != nil {
			t.Fatalf("append snapshot: %v", err)
		}

		stream, err := store.ReadEvents(ctx, aggregateID)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		defer stream.Close()

		msg, ok, err := stream.Next(ctx)
		if err != nil || !ok {
			t.Fatalf("expected snapshot message, got ok=%v err=%v", ok, err)
		}
		if _, isOpened := msg.Payload.(Opened); !isOpened {
			t.Fatalf("expected first yielded message to be the snapshot payload, got %T", msg.Payload)
		}

		var rest []es.EventMessage
		for {
			msg, ok, err := stream.Next(ctx)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if !ok {
				break
			}
			rest = append(rest, msg)
		}
		if len(rest) != 1 {
			t.Fatalf("expected exactly 1 event after the snapshot (sequence 3), got %d", len(rest))
		}
		if rest[0].SequenceNumber != 3 {
			t.Fatalf("expected sequence 3 after snapshot, got %d", rest[0].SequenceNumber)
		}
	})

	t.Run("ReadEventsRange bounds the stream", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := es.New(newEntry(t), es.WithSerializer(serializer()))
		aggregateID := "Account:4"

		for i := uint64(0); i < 5; i++ {
			msg := store.NewEventMessage(aggregateID, i, Added{N: int(i)}, nil)
			if err := store.AppendEvents(ctx, msg); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}

		stream, err := store.ReadEventsRange(ctx, aggregateID, 1, 2)
		if err != nil {
			t.Fatalf("read range: %v", err)
		}
		defer stream.Close()

		var got []es.EventMessage
		for {
			msg, ok, err := stream.Next(ctx)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if !ok {
				break
			}
			got = append(got, msg)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 events in [1,2], got %d", len(got))
		}
		if got[0].SequenceNumber != 1 || got[1].SequenceNumber != 2 {
			t.Fatalf("unexpected sequence numbers: %+v", got)
		}
	})

	t.Run("visit fans out upcast events and counts each output", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()

		chain := es.NewUpcasterChain(splittingUpcaster{})
		store := es.New(newEntry(t), es.WithSerializer(serializer()), es.WithUpcasterChain(chain))
		aggregateID := "Account:5"

		msg := store.NewEventMessage(aggregateID, 0, Added{N: 10}, nil)
		if err := store.AppendEvents(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}

		var count int
		err := store.VisitEventsMatching(ctx, store.NewCriteriaBuilder().Property(es.PropertyAggregateIdentifier).Equals(aggregateID),
			es.VisitorFunc(func(es.EventMessage) error {
				count++
				return nil
			}))
		if err != nil {
			t.Fatalf("visit: %v", err)
		}
		if count != 2 {
			t.Fatalf("expected the upcaster's 2-way fan-out to be visited as 2 events, got %d", count)
		}
	})

	t.Run("visit upcasts a stored revision into its current shape", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		entry := newEntry(t)
		aggregateID := "Account:9"

		writer := es.New(entry, es.WithSerializer(serializer()))
		msg := writer.NewEventMessage(aggregateID, 0, Added{N: 3}, nil)
		if err := writer.AppendEvents(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}

		chain := es.NewUpcasterChain(addedToV2Upcaster{})
		reader := es.New(entry, es.WithSerializer(serializer()), es.WithUpcasterChain(chain))

		var got []es.EventMessage
		err := reader.VisitEventsMatching(ctx, reader.NewCriteriaBuilder().Property(es.PropertyAggregateIdentifier).Equals(aggregateID),
			es.VisitorFunc(func(m es.EventMessage) error {
				got = append(got, m)
				return nil
			}))
		if err != nil {
			t.Fatalf("visit: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected exactly 1 upcasted event, got %d", len(got))
		}
		v2, ok := got[0].Payload.(AddedV2)
		if !ok {
			t.Fatalf("expected payload upcasted to AddedV2, got %T", got[0].Payload)
		}
		if v2.N != 3 || v2.Units != "widgets" {
			t.Fatalf("unexpected upcasted payload: %+v", v2)
		}
	})

	t.Run("visit filters by timestamp", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := es.New(newEntry(t), es.WithSerializer(serializer()))
		aggregateID := "Account:6"

		es.SetClock(func() time.Time { return time.Unix(1000, 0).UTC() })
		early := store.NewEventMessage(aggregateID, 0, Added{N: 1}, nil)
		if err := store.AppendEvents(ctx, early); err != nil {
			t.Fatalf("append early: %v", err)
		}
		es.SetClock(func() time.Time { return time.Unix(2000, 0).UTC() })
		late := store.NewEventMessage(aggregateID, 1, Added{N: 2}, nil)
		if err := store.AppendEvents(ctx, late); err != nil {
			t.Fatalf("append late: %v", err)
		}
		es.SetClock(func() time.Time { return time.Now().UTC() })

		var got []es.EventMessage
		err := store.VisitEventsMatching(ctx,
			es.And(
				store.NewCriteriaBuilder().Property(es.PropertyAggregateIdentifier).Equals(aggregateID),
				store.NewCriteriaBuilder().Property(es.PropertyTimestamp).GreaterThanEquals(time.Unix(1500, 0).UTC()),
			),
			es.VisitorFunc(func(msg es.EventMessage) error {
				got = append(got, msg)
				return nil
			}))
		if err != nil {
			t.Fatalf("visit: %v", err)
		}
		if len(got) != 1 || got[0].SequenceNumber != 1 {
			t.Fatalf("expected only the late event, got %+v", got)
		}
	})

	t.Run("pruning keeps only the newest snapshots", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		entry := newEntry(t)
		store := es.New(entry, es.WithSerializer(serializer()), es.WithMaxSnapshotsArchived(1))
		aggregateID := "Account:7"

		for i := uint64(0); i < 3; i++ {
			snap := store.NewEventMessage(aggregateID, i, Opened{ID: "snap"}, nil)
			if err := store.AppendSnapshotEvent(ctx, snap); err != nil {
				t.Fatalf("append snapshot %d: %v", i, err)
			}
		}

		row, found, err := entry.LoadLastSnapshotEvent(ctx, aggregateID)
		if err != nil {
			t.Fatalf("load last snapshot: %v", err)
		}
		if !found {
			t.Fatalf("expected a snapshot to remain after pruning")
		}
		if row.SequenceNumber != 2 {
			t.Fatalf("expected the newest snapshot (sequence 2) to survive pruning, got %d", row.SequenceNumber)
		}
	})

	t.Run("reading an empty stream returns EventStreamNotFoundError", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := es.New(newEntry(t), es.WithSerializer(serializer()))

		_, err := store.ReadEvents(ctx, "Account:does-not-exist")
		var notFound *es.EventStreamNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected *EventStreamNotFoundError, got %v", err)
		}
	})

	t.Run("an unresolvable domain row fails ReadEvents but is tolerated by VisitEvents", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		entry := newEntry(t)
		store := es.New(entry, es.WithSerializer(serializer()))
		aggregateID := "Account:10"

		known := store.NewEventMessage(aggregateID, 0, Opened{ID: "10"}, nil)
		if err := store.AppendEvents(ctx, known); err != nil {
			t.Fatalf("append known: %v", err)
		}

		unknown := store.NewEventMessage(aggregateID, 1, Opened{ID: "unused"}, nil)
		unknown.PayloadType = es.PayloadType{Name: "NoSuchType", Revision: "0"}
		metaBytes, err := es.EncodeMetaData(nil)
		if err != nil {
			t.Fatalf("encode metadata: %v", err)
		}
		row := es.NewDomainRow(unknown, es.SerializedObject{Type: unknown.PayloadType, Data: []byte("{}")}, metaBytes)
		if err := entry.PersistEvent(ctx, row); err != nil {
			t.Fatalf("persist unresolvable row: %v", err)
		}

		// ReadEvents must surface the deserialization failure to the caller
		// once consumption reaches that row (§4.D/§7).
		stream, err := store.ReadEvents(ctx, aggregateID)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		defer stream.Close()

		if _, _, err := stream.Next(ctx); err != nil {
			t.Fatalf("expected the known first event to read cleanly, got %v", err)
		}
		_, _, err = stream.Next(ctx)
		var unknownType *es.UnknownSerializedTypeError
		if !errors.As(err, &unknownType) {
			t.Fatalf("expected *UnknownSerializedTypeError reading the unresolvable row, got %v", err)
		}

		// VisitEvents must instead tolerate the same row, surfacing an
		// UnresolvedPayload and continuing to count every other event.
		var got []es.EventMessage
		err = store.VisitEventsMatching(ctx, store.NewCriteriaBuilder().Property(es.PropertyAggregateIdentifier).Equals(aggregateID),
			es.VisitorFunc(func(msg es.EventMessage) error {
				got = append(got, msg)
				return nil
			}))
		if err != nil {
			t.Fatalf("visit: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected both rows to be visited despite the unresolvable one, got %d", len(got))
		}
		unresolved, ok := got[1].Payload.(*es.UnresolvedPayload)
		if !ok {
			t.Fatalf("expected the second row's payload to be *UnresolvedPayload, got %T", got[1].Payload)
		}
		if unresolved.Type.Name != "NoSuchType" {
			t.Fatalf("expected UnresolvedPayload to carry the unresolved type, got %+v", unresolved.Type)
		}
	})

	t.Run("an undeserializable snapshot falls back to the full stream", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		entry := newEntry(t)
		store := es.New(entry, es.WithSerializer(serializer()))
		aggregateID := "Account:8"

		badSnapshot := store.NewEventMessage(aggregateID, 0, Opened{ID: "will not resolve"}, nil)
		badSnapshot.PayloadType = es.PayloadType{Name: "NoSuchType", Revision: "0"}
		metaBytes, err := es.EncodeMetaData(nil)
		if err != nil {
			t.Fatalf("encode metadata: %v", err)
		}
		row := es.NewSnapshotRow(badSnapshot, es.SerializedObject{Type: badSnapshot.PayloadType, Data: []byte("{}")}, metaBytes)
		if err := entry.PersistSnapshot(ctx, row); err != nil {
			t.Fatalf("persist bad snapshot: %v", err)
		}

		for i := uint64(0); i < 2; i++ {
			msg := store.NewEventMessage(aggregateID, i, Added{N: int(i)}, nil)
			if err := store.AppendEvents(ctx, msg); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}

		stream, err := store.ReadEvents(ctx, aggregateID)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		defer stream.Close()

		var got []es.EventMessage
		for {
			msg, ok, err := stream.Next(ctx)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if !ok {
				break
			}
			got = append(got, msg)
		}
		if len(got) != 2 {
			t.Fatalf("expected the full 2-event stream since the snapshot could not deserialize, got %d", len(got))
		}
		if got[0].SequenceNumber != 0 {
			t.Fatalf("expected the fallback to start at sequence 0, got %d", got[0].SequenceNumber)
		}
	})
}

// splittingUpcaster turns every Added#0 row into two Added#0 rows, modeling
// a payload split across a schema migration.
type splittingUpcaster struct{}

func (splittingUpcaster) CanUpcast(t es.PayloadType) bool {
	return t.Name == "Added" && t.Revision == "0"
}

func (splittingUpcaster) Upcast(obj es.SerializedObject, _ es.UpcastingContext) ([]es.SerializedObject, error) {
	return []es.SerializedObject{obj, obj}, nil
}

// addedToV2Upcaster migrates a stored Added#0 row into the AddedV2 shape
// (payload type "Added", revision "2"), the same kind of single-field
// schema growth a real event's payload accrues over time.
type addedToV2Upcaster struct{}

func (addedToV2Upcaster) CanUpcast(t es.PayloadType) bool {
	return t.Name == "Added" && t.Revision == "0"
}

func (addedToV2Upcaster) Upcast(obj es.SerializedObject, _ es.UpcastingContext) ([]es.SerializedObject, error) {
	var old Added
	if err := json.Unmarshal(obj.Data, &old); err != nil {
		return nil, err
	}
	data, err := json.Marshal(AddedV2{N: old.N, Units: "widgets"})
	if err != nil {
		return nil, err
	}
	return []es.SerializedObject{{Type: es.PayloadType{Name: "Added", Revision: "2"}, Data: data}}, nil
}

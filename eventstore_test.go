package eventstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	es "github.com/aldenhall/eventstore"
	storesmem "github.com/aldenhall/eventstore/stores/mem"
)

type accountOpened struct{ ID string }

func (accountOpened) EventType() string { return "AccountOpened" }

func newTestStore(t *testing.T) *es.EventStore {
	t.Helper()
	s := es.NewSerializer()
	s.RegisterCurrent("AccountOpened", es.JSONCodec[accountOpened]())
	return es.New(storesmem.New(), es.WithSerializer(s))
}

func TestEventStore_AppendAndReadEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	aggregateID := "Account:1"

	msg := store.NewEventMessage(aggregateID, 0, accountOpened{ID: "1"}, es.Metadata{"actor": "alice"})
	require.NoError(t, store.AppendEvents(ctx, msg))

	stream, err := store.ReadEvents(ctx, aggregateID)
	require.NoError(t, err)
	defer stream.Close()

	got, ok, err := stream.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, accountOpened{ID: "1"}, got.Payload)
	require.Equal(t, "alice", got.MetaData["actor"])

	_, ok, err = stream.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEventStore_AppendEvents_DuplicateSequenceIsConcurrencyError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	aggregateID := "Account:2"

	first := store.NewEventMessage(aggregateID, 0, accountOpened{ID: "2"}, nil)
	require.NoError(t, store.AppendEvents(ctx, first))

	dup := store.NewEventMessage(aggregateID, 0, accountOpened{ID: "2-again"}, nil)
	err := store.AppendEvents(ctx, dup)

	var conflict *es.ConcurrencyError
	require.True(t, errors.As(err, &conflict))
	require.True(t, errors.Is(err, es.ErrConcurrency))
}

func TestEventStore_ReadEvents_MissingAggregateIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.ReadEvents(ctx, "Account:missing")

	var notFound *es.EventStreamNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.True(t, errors.Is(err, es.ErrEventStreamNotFound))
}

func TestEventStore_VisitEvents_SeesEveryAggregate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AppendEvents(ctx, store.NewEventMessage("Account:3", 0, accountOpened{ID: "3"}, nil)))
	require.NoError(t, store.AppendEvents(ctx, store.NewEventMessage("Account:4", 0, accountOpened{ID: "4"}, nil)))

	var seen []string
	err := store.VisitEvents(ctx, es.VisitorFunc(func(m es.EventMessage) error {
		seen = append(seen, m.AggregateIdentifier)
		return nil
	}))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Account:3", "Account:4"}, seen)
}

type tenantKey struct{}

func TestEventStore_MetadataExtractor_ExplicitKeysWinOverExtracted(t *testing.T) {
	ctx := context.WithValue(context.Background(), tenantKey{}, "tenant-42")
	entry := storesmem.New()
	s := es.NewSerializer()
	s.RegisterCurrent("AccountOpened", es.JSONCodec[accountOpened]())
	store := es.New(entry, es.WithSerializer(s), es.WithMetadataExtractor(func(ctx context.Context) es.Metadata {
		tenant, _ := ctx.Value(tenantKey{}).(string)
		return es.Metadata{"tenant_id": tenant, "source": "extractor"}
	}))

	aggregateID := "Account:6"
	msg := store.NewEventMessage(aggregateID, 0, accountOpened{ID: "6"}, es.Metadata{"source": "explicit"})
	require.NoError(t, store.AppendEvents(ctx, msg))

	stream, err := store.ReadEvents(ctx, aggregateID)
	require.NoError(t, err)
	defer stream.Close()

	got, ok, err := stream.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tenant-42", got.MetaData["tenant_id"])
	require.Equal(t, "explicit", got.MetaData["source"], "explicit metadata must win over the extractor's")
}

func TestEventStore_AppendSnapshotEvent_PrunesToConfiguredCap(t *testing.T) {
	ctx := context.Background()
	entry := storesmem.New()
	s := es.NewSerializer()
	s.RegisterCurrent("AccountOpened", es.JSONCodec[accountOpened]())
	store := es.New(entry, es.WithSerializer(s), es.WithMaxSnapshotsArchived(1))

	aggregateID := "Account:5"
	for i := uint64(0); i < 3; i++ {
		snap := store.NewEventMessage(aggregateID, i, accountOpened{ID: "snap"}, nil)
		require.NoError(t, store.AppendSnapshotEvent(ctx, snap))
	}

	row, found, err := entry.LoadLastSnapshotEvent(ctx, aggregateID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), row.SequenceNumber)
}

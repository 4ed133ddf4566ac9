package storessql_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	es "github.com/aldenhall/eventstore"
	storessql "github.com/aldenhall/eventstore/stores/sql"
)

func TestStore_PersistEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := storessql.New(db)
	row := es.DomainRow{
		EventIdentifier:     "evt-1",
		AggregateIdentifier: "Account:1",
		SequenceNumber:      0,
		TimestampMillis:     1000,
		PayloadType:         es.PayloadType{Name: "Opened", Revision: "0"},
		Payload:             []byte(`{}`),
		MetaData:            []byte(`null`),
	}

	mock.ExpectExec("INSERT INTO domain_event_entry").
		WithArgs(row.EventIdentifier, row.AggregateIdentifier, row.SequenceNumber, row.TimestampMillis,
			row.PayloadType.Name, row.PayloadType.Revision, row.Payload, row.MetaData).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.PersistEvent(context.Background(), row))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PersistEvent_DuplicateKeyIsRecognizedByResolver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := storessql.New(db)
	row := es.DomainRow{
		EventIdentifier:     "evt-2",
		AggregateIdentifier: "Account:1",
		SequenceNumber:      0,
		PayloadType:         es.PayloadType{Name: "Opened", Revision: "0"},
		Payload:             []byte(`{}`),
		MetaData:            []byte(`null`),
	}

	mock.ExpectExec("INSERT INTO domain_event_entry").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err = store.PersistEvent(context.Background(), row)
	require.Error(t, err)

	resolver := store.DefaultExceptionResolver()
	require.True(t, resolver.IsDuplicateKeyViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FetchAggregateStream_PagesUntilShortBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := storessql.New(db)
	cols := []string{
		"event_identifier", "aggregate_identifier", "sequence_number", "timestamp_millis",
		"payload_type", "payload_revision", "payload", "meta_data",
	}

	mock.ExpectQuery("SELECT (.+) FROM domain_event_entry").
		WithArgs("Account:1", uint64(0), 2, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("evt-1", "Account:1", uint64(0), int64(1000), "Opened", "0", []byte(`{}`), []byte(`null`)).
			AddRow("evt-2", "Account:1", uint64(1), int64(1001), "Added", "0", []byte(`{}`), []byte(`null`)))

	mock.ExpectQuery("SELECT (.+) FROM domain_event_entry").
		WithArgs("Account:1", uint64(0), 2, 2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("evt-3", "Account:1", uint64(2), int64(1002), "Added", "0", []byte(`{}`), []byte(`null`)))

	ctx := context.Background()
	cursor, err := store.FetchAggregateStream(ctx, "Account:1", 0, 2)
	require.NoError(t, err)
	defer cursor.Close()

	var seqs []uint64
	for cursor.Next(ctx) {
		seqs = append(seqs, cursor.Row().SequenceNumber)
	}
	require.NoError(t, cursor.Err())
	require.Equal(t, []uint64{0, 1, 2}, seqs)
	require.NoError(t, mock.ExpectationsWereMet())
}

package eventstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	es "github.com/aldenhall/eventstore"
)

func TestMatches_ComparisonOperators(t *testing.T) {
	row := es.DomainRow{
		AggregateIdentifier: "Account:1",
		TimestampMillis:     1500,
		PayloadType:         es.PayloadType{Name: "Added", Revision: "0"},
	}
	b := es.NewCriteriaBuilder()

	require.True(t, es.Matches(b.Property(es.PropertyAggregateIdentifier).Equals("Account:1"), row))
	require.False(t, es.Matches(b.Property(es.PropertyAggregateIdentifier).Equals("Account:2"), row))
	require.True(t, es.Matches(b.Property(es.PropertyTimestamp).GreaterThan(int64(1000)), row))
	require.True(t, es.Matches(b.Property(es.PropertyTimestamp).LessThanEquals(int64(1500)), row))
	require.False(t, es.Matches(b.Property(es.PropertyTimestamp).LessThan(int64(1500)), row))
	require.True(t, es.Matches(b.Property(es.PropertyType).In("Opened", "Added"), row))
	require.False(t, es.Matches(b.Property(es.PropertyType).In("Opened"), row))
}

func TestMatches_TimeValueComparesAsEpochMillis(t *testing.T) {
	row := es.DomainRow{TimestampMillis: es.ToEpochMillis(time.Unix(100, 0).UTC())}
	b := es.NewCriteriaBuilder()

	require.True(t, es.Matches(b.Property(es.PropertyTimestamp).Equals(time.Unix(100, 0).UTC()), row))
	require.False(t, es.Matches(b.Property(es.PropertyTimestamp).Equals(time.Unix(101, 0).UTC()), row))
}

func TestMatches_AndOr(t *testing.T) {
	row := es.DomainRow{AggregateIdentifier: "Account:1", TimestampMillis: 500}
	b := es.NewCriteriaBuilder()

	and := es.And(
		b.Property(es.PropertyAggregateIdentifier).Equals("Account:1"),
		b.Property(es.PropertyTimestamp).GreaterThan(int64(1000)),
	)
	require.False(t, es.Matches(and, row))

	or := es.Or(
		b.Property(es.PropertyAggregateIdentifier).Equals("Account:2"),
		b.Property(es.PropertyTimestamp).LessThan(int64(1000)),
	)
	require.True(t, es.Matches(or, row))

	require.True(t, es.Matches(es.And(), row), "And() with no terms matches everything")
	require.False(t, es.Matches(es.Or(), row), "Or() with no terms matches nothing")
}

func TestMatches_NilCriteriaMatchesEverything(t *testing.T) {
	require.True(t, es.Matches(nil, es.DomainRow{}))
}

func TestToSquirrel_BuildsParameterisedWhere(t *testing.T) {
	b := es.NewCriteriaBuilder()
	c := es.And(
		b.Property(es.PropertyAggregateIdentifier).Equals("Account:1"),
		b.Property(es.PropertyType).IsNotNull(),
	)

	sqlStr, args, err := es.ToSquirrel(c).ToSql()
	require.NoError(t, err)
	require.Contains(t, sqlStr, "aggregate_identifier")
	require.Contains(t, sqlStr, "IS NOT NULL")
	require.Contains(t, args, "Account:1")
}

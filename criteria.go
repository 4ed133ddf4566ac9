package eventstore

import (
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Property names a DomainRow column the criteria engine can filter on
// (§4.C). Implementations are free to extend this set for their own schema,
// but the core only ever builds these three.
type Property string

const (
	PropertyTimestamp           Property = "timeStamp"
	PropertyType                Property = "type"
	PropertyAggregateIdentifier Property = "aggregateIdentifier"
)

// sqlColumns maps a Property to the column name used by the SQL backends'
// shared schema (§6). Both storespgx and storessql use this mapping, so a
// Criteria built once runs unchanged against either backend.
var sqlColumns = map[Property]string{
	PropertyTimestamp:           "timestamp_millis",
	PropertyType:                "payload_type",
	PropertyAggregateIdentifier: "aggregate_identifier",
}

type comparisonOp int

const (
	opEquals comparisonOp = iota
	opNotEquals
	opLessThan
	opLessThanEquals
	opGreaterThan
	opGreaterThanEquals
	opIn
	opIsNull
	opIsNotNull
)

type logicalOp int

const (
	opAnd logicalOp = iota
	opOr
)

// Criteria is a composable, side-effect-free predicate over DomainRow
// columns (§4.C). It is evaluated server-side by SQL backends (via
// ToSquirrel) and directly in Go by the in-memory backend (via Matches).
type Criteria interface {
	isCriteria()
}

// Comparison is a single leaf predicate: a property compared against a
// value (or, for In, a slice of values).
type Comparison struct {
	Property Property
	Op       comparisonOp
	Value    any
}

func (Comparison) isCriteria() {}

// Combinator is an and/or conjunction/disjunction of sub-criteria.
type Combinator struct {
	Op    logicalOp
	Terms []Criteria
}

func (Combinator) isCriteria() {}

// And combines criteria with logical AND. And() with no terms matches
// everything (a neutral true).
func And(terms ...Criteria) Criteria {
	return Combinator{Op: opAnd, Terms: terms}
}

// Or combines criteria with logical OR. Or() with no terms matches nothing.
func Or(terms ...Criteria) Criteria {
	return Combinator{Op: opOr, Terms: terms}
}

// CriteriaBuilder is the entry point for building Criteria, scoped to the
// entry store's column vocabulary (§4.C, §4.F newCriteriaBuilder).
type CriteriaBuilder struct{}

// NewCriteriaBuilder returns a fresh builder.
func NewCriteriaBuilder() CriteriaBuilder {
	return CriteriaBuilder{}
}

// Property starts a comparison against the named column.
func (CriteriaBuilder) Property(p Property) PropertyCriteriaBuilder {
	return PropertyCriteriaBuilder{prop: p}
}

// PropertyCriteriaBuilder builds a single Comparison leaf against one
// property.
type PropertyCriteriaBuilder struct {
	prop Property
}

func (b PropertyCriteriaBuilder) Equals(v any) Criteria {
	return Comparison{Property: b.prop, Op: opEquals, Value: v}
}

func (b PropertyCriteriaBuilder) NotEquals(v any) Criteria {
	return Comparison{Property: b.prop, Op: opNotEquals, Value: v}
}

func (b PropertyCriteriaBuilder) LessThan(v any) Criteria {
	return Comparison{Property: b.prop, Op: opLessThan, Value: v}
}

func (b PropertyCriteriaBuilder) LessThanEquals(v any) Criteria {
	return Comparison{Property: b.prop, Op: opLessThanEquals, Value: v}
}

func (b PropertyCriteriaBuilder) GreaterThan(v any) Criteria {
	return Comparison{Property: b.prop, Op: opGreaterThan, Value: v}
}

func (b PropertyCriteriaBuilder) GreaterThanEquals(v any) Criteria {
	return Comparison{Property: b.prop, Op: opGreaterThanEquals, Value: v}
}

func (b PropertyCriteriaBuilder) In(values ...any) Criteria {
	return Comparison{Property: b.prop, Op: opIn, Value: values}
}

func (b PropertyCriteriaBuilder) IsNull() Criteria {
	return Comparison{Property: b.prop, Op: opIsNull}
}

func (b PropertyCriteriaBuilder) IsNotNull() Criteria {
	return Comparison{Property: b.prop, Op: opIsNotNull}
}

// comparable converts a Comparison's Value (or In's values) into the form
// matching a DomainRow's storage representation: time.Time -> epoch millis,
// everything else passed through.
func comparable(v any) any {
	if t, ok := v.(time.Time); ok {
		return ToEpochMillis(t)
	}
	return v
}

// ToSquirrel converts a Criteria tree into a squirrel Sqlizer usable as a
// parameterised SQL WHERE fragment (§4.C: "for SQL backends, a parameterised
// WHERE fragment"). Both storespgx and storessql share this conversion.
func ToSquirrel(c Criteria) sq.Sqlizer {
	if c == nil {
		return sq.Expr("1=1")
	}
	switch v := c.(type) {
	case Comparison:
		col := sqlColumns[v.Property]
		switch v.Op {
		case opEquals:
			return sq.Eq{col: comparable(v.Value)}
		case opNotEquals:
			return sq.NotEq{col: comparable(v.Value)}
		case opLessThan:
			return sq.Lt{col: comparable(v.Value)}
		case opLessThanEquals:
			return sq.LtOrEq{col: comparable(v.Value)}
		case opGreaterThan:
			return sq.Gt{col: comparable(v.Value)}
		case opGreaterThanEquals:
			return sq.GtOrEq{col: comparable(v.Value)}
		case opIn:
			values := v.Value.([]any)
			converted := make([]any, len(values))
			for i, val := range values {
				converted[i] = comparable(val)
			}
			return sq.Eq{col: converted}
		case opIsNull:
			return sq.Expr(col + " IS NULL")
		case opIsNotNull:
			return sq.Expr(col + " IS NOT NULL")
		}
	case Combinator:
		parts := make([]sq.Sqlizer, 0, len(v.Terms))
		for _, t := range v.Terms {
			parts = append(parts, ToSquirrel(t))
		}
		switch v.Op {
		case opAnd:
			if len(parts) == 0 {
				return sq.Expr("1=1")
			}
			return sq.And(parts)
		case opOr:
			if len(parts) == 0 {
				return sq.Expr("1=0")
			}
			return sq.Or(parts)
		}
	}
	return sq.Expr("1=1")
}

// Matches evaluates a Criteria tree directly against a DomainRow, the path
// used by the in-memory backend instead of emitting SQL.
func Matches(c Criteria, row DomainRow) bool {
	if c == nil {
		return true
	}
	switch v := c.(type) {
	case Comparison:
		return matchComparison(v, row)
	case Combinator:
		switch v.Op {
		case opAnd:
			for _, t := range v.Terms {
				if !Matches(t, row) {
					return false
				}
			}
			return true
		case opOr:
			if len(v.Terms) == 0 {
				return false
			}
			for _, t := range v.Terms {
				if Matches(t, row) {
					return true
				}
			}
			return false
		}
	}
	return true
}

func rowValue(p Property, row DomainRow) any {
	switch p {
	case PropertyTimestamp:
		return row.TimestampMillis
	case PropertyType:
		return row.PayloadType.Name
	case PropertyAggregateIdentifier:
		return row.AggregateIdentifier
	default:
		return nil
	}
}

func matchComparison(c Comparison, row DomainRow) bool {
	switch c.Op {
	case opIsNull:
		return rowValue(c.Property, row) == nil
	case opIsNotNull:
		return rowValue(c.Property, row) != nil
	}

	actual := rowValue(c.Property, row)

	if c.Op == opIn {
		values, _ := c.Value.([]any)
		for _, v := range values {
			if compareEqual(actual, comparable(v)) {
				return true
			}
		}
		return false
	}

	expected := comparable(c.Value)
	switch c.Op {
	case opEquals:
		return compareEqual(actual, expected)
	case opNotEquals:
		return !compareEqual(actual, expected)
	case opLessThan, opLessThanEquals, opGreaterThan, opGreaterThanEquals:
		return compareOrdered(actual, expected, c.Op)
	}
	return false
}

func compareEqual(a, b any) bool {
	return a == b
}

// compareOrdered supports the two value kinds the row model actually
// produces: int64 (timestamp millis, via comparable) and string (type name,
// aggregate identifier).
func compareOrdered(a, b any, op comparisonOp) bool {
	switch av := a.(type) {
	case int64:
		bv, ok := b.(int64)
		if !ok {
			return false
		}
		return orderedResult(int64Cmp(av, bv), op)
	case string:
		bv, ok := b.(string)
		if !ok {
			return false
		}
		return orderedResult(stringCmp(av, bv), op)
	}
	return false
}

func int64Cmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func stringCmp(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func orderedResult(cmp int, op comparisonOp) bool {
	switch op {
	case opLessThan:
		return cmp < 0
	case opLessThanEquals:
		return cmp <= 0
	case opGreaterThan:
		return cmp > 0
	case opGreaterThanEquals:
		return cmp >= 0
	}
	return false
}

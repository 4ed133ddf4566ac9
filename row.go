package eventstore

import "time"

// DomainRow is the persisted form of an EventMessage (§3). Identity is
// EventIdentifier (globally unique); the ordering key is
// (AggregateIdentifier, SequenceNumber), also unique.
type DomainRow struct {
	EventIdentifier     string
	AggregateIdentifier string
	SequenceNumber      uint64
	TimestampMillis     int64
	PayloadType         PayloadType
	Payload             []byte
	MetaData            []byte
}

// SnapshotRow has the same columns as DomainRow (§3) but lives in a parallel
// table/collection. A snapshot at SequenceNumber s represents the aggregate
// state as of having applied all events with sequence number <= s.
type SnapshotRow struct {
	EventIdentifier     string
	AggregateIdentifier string
	SequenceNumber      uint64
	TimestampMillis     int64
	PayloadType         PayloadType
	Payload             []byte
	MetaData            []byte
}

// asDomainRow lets the stream assembler treat a snapshot row like any other
// row when it needs to share decoding logic.
func (r SnapshotRow) asDomainRow() DomainRow {
	return DomainRow(r)
}

// ToEpochMillis is the canonical instant -> epoch-millis conversion used
// everywhere a timestamp crosses the row boundary (row codec and criteria
// engine alike), matching the EventEntryFactory.resolveDateTimeValue hook
// described in §6.
func ToEpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromEpochMillis reverses ToEpochMillis.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// NewDomainRow builds a DomainRow from an event message and its already
// serialized payload and metadata (§4.A). Identity fields are copied
// verbatim; the timestamp is recorded as epoch-millis, fixed at the event's
// own construction time, never at persistence time.
func NewDomainRow(msg EventMessage, payload SerializedObject, metaData []byte) DomainRow {
	return DomainRow{
		EventIdentifier:     msg.EventIdentifier,
		AggregateIdentifier: msg.AggregateIdentifier,
		SequenceNumber:      msg.SequenceNumber,
		TimestampMillis:     ToEpochMillis(msg.Timestamp),
		PayloadType:         payload.Type,
		Payload:             payload.Data,
		MetaData:            metaData,
	}
}

// NewSnapshotRow is NewDomainRow's counterpart for snapshot persistence.
func NewSnapshotRow(msg EventMessage, payload SerializedObject, metaData []byte) SnapshotRow {
	return SnapshotRow(NewDomainRow(msg, payload, metaData))
}

// serializedPayload reconstructs the SerializedObject embedded in a row, the
// input to deserialization/upcasting.
func (r DomainRow) serializedPayload() SerializedObject {
	return SerializedObject{Type: r.PayloadType, Data: r.Payload}
}

// decodeRow turns a persisted row back into an EventMessage, without
// upcasting. It is used for the snapshot row, which is never upcast; domain
// rows are decoded by Stream.decode after the upcaster chain has run.
func decodeRow(row DomainRow, serializer *Serializer) (EventMessage, error) {
	meta, err := DecodeMetaData(row.MetaData)
	if err != nil {
		return EventMessage{}, err
	}
	payload, err := serializer.Deserialize(row.serializedPayload())
	if err != nil {
		return EventMessage{}, err
	}
	return EventMessage{
		EventIdentifier:     row.EventIdentifier,
		AggregateIdentifier: row.AggregateIdentifier,
		SequenceNumber:      row.SequenceNumber,
		Timestamp:           FromEpochMillis(row.TimestampMillis),
		PayloadType:         row.PayloadType,
		Payload:             payload,
		MetaData:            meta,
	}, nil
}

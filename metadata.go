package eventstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Metadata carries contextual information that accompanies an event.
// Typical keys include tenant_id, user_id, correlation_id, and trace_id.
// Once attached to a persisted EventMessage, its keys are immutable.
type Metadata map[string]any

// Merge returns a new Metadata that combines the receiver with the given
// maps. It is safe to call on a nil receiver. Later maps take precedence
// over earlier ones. The receiver is not modified.
func (m Metadata) Merge(ms ...Metadata) Metadata {
	out := make(Metadata)

	for k, v := range m {
		out[k] = v
	}
	for _, other := range ms {
		for k, v := range other {
			out[k] = v
		}
	}
	return out
}

// MetadataExtractor builds Metadata from a context. Applications can supply
// their own extractor that knows about private context keys (tenant_id,
// user_id, correlation_id, trace_id, etc.).
type MetadataExtractor func(ctx context.Context) Metadata

// EncodeMetaData serializes Metadata to its persisted byte representation.
func EncodeMetaData(m Metadata) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "eventstore: encode metadata")
	}
	return b, nil
}

// DecodeMetaData reverses EncodeMetaData. A nil/empty input decodes to nil.
func DecodeMetaData(b []byte) (Metadata, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "eventstore: decode metadata")
	}
	return m, nil
}

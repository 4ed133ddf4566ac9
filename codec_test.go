package eventstore_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	es "github.com/aldenhall/eventstore"
)

type widgetCreated struct {
	Name string
}

func TestSerializer_RoundTrip(t *testing.T) {
	s := es.NewSerializer()
	s.RegisterCurrent("WidgetCreated", es.JSONCodec[widgetCreated]())

	t_ := es.PayloadType{Name: "WidgetCreated", Revision: "0"}
	obj, err := s.Serialize(widgetCreated{Name: "bolt"}, t_)
	require.NoError(t, err)
	require.Equal(t, t_, obj.Type)

	v, err := s.Deserialize(obj)
	require.NoError(t, err)
	require.Equal(t, widgetCreated{Name: "bolt"}, v)
}

func TestSerializer_UnresolvedTypeIsDistinguishable(t *testing.T) {
	s := es.NewSerializer()
	_, err := s.Deserialize(es.SerializedObject{Type: es.PayloadType{Name: "Nope", Revision: "0"}, Data: []byte(`{}`)})

	var unresolved *es.UnknownSerializedTypeError
	require.True(t, errors.As(err, &unresolved))
	require.True(t, errors.Is(err, es.ErrUnknownSerializedType))
	require.False(t, s.Resolvable(es.PayloadType{Name: "Nope", Revision: "0"}))
}

func TestPayloadTypeOf_DefaultsToGoTypeNameAndRevisionZero(t *testing.T) {
	pt := es.PayloadTypeOf(widgetCreated{})
	require.Equal(t, "0", pt.Revision)
	require.Contains(t, pt.Name, "widgetCreated")
}

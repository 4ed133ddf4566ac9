package storesmem_test

import (
	"testing"

	es "github.com/aldenhall/eventstore"
	storesmem "github.com/aldenhall/eventstore/stores/mem"
	"github.com/aldenhall/eventstore/internal/storetest"
)

func TestStore_Compliance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) es.EntryStore {
		t.Helper()
		return storesmem.New()
	})
}

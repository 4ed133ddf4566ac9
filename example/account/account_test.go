package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	es "github.com/aldenhall/eventstore"
	storesmem "github.com/aldenhall/eventstore/stores/mem"
)

func newTestService(t *testing.T) *AccountService {
	t.Helper()
	store := es.New(storesmem.New(), es.WithSerializer(newSerializer()), es.WithMaxSnapshotsArchived(2))
	return NewAccountService(store)
}

func TestAccountService_OpenAndDeposit(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	md := es.Metadata{"tenant_id": "t1"}

	require.NoError(t, svc.Handle(ctx, OpenAccountCommand{AccountID: "1", Owner: "Taro", Initial: 1000}, md))
	require.NoError(t, svc.Handle(ctx, DepositCommand{AccountID: "1", Amount: 500}, md))

	acc, err := svc.repo.Load(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, int64(1500), acc.Balance())
	require.Equal(t, int64(2), acc.Version())
}

func TestAccountService_RejectsDoubleOpen(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Handle(ctx, OpenAccountCommand{AccountID: "2", Owner: "Hanako", Initial: 0}, nil))
	err := svc.Handle(ctx, OpenAccountCommand{AccountID: "2", Owner: "Hanako", Initial: 0}, nil)
	require.Error(t, err)
}

func TestAccountService_SnapshotCutOverDuringReplay(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Handle(ctx, OpenAccountCommand{AccountID: "3", Owner: "Jiro", Initial: 100}, nil))
	for i := 0; i < 4; i++ {
		require.NoError(t, svc.Handle(ctx, DepositCommand{AccountID: "3", Amount: 10}, nil))
	}

	acc, err := svc.repo.Load(ctx, "3")
	require.NoError(t, err)
	require.Equal(t, int64(140), acc.Balance())
	require.Equal(t, int64(5), acc.Version())
}

func TestAccountService_TotalDeposited_AggregatesAcrossAccounts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Handle(ctx, OpenAccountCommand{AccountID: "4", Owner: "A", Initial: 0}, nil))
	require.NoError(t, svc.Handle(ctx, OpenAccountCommand{AccountID: "5", Owner: "B", Initial: 0}, nil))
	require.NoError(t, svc.Handle(ctx, DepositCommand{AccountID: "4", Amount: 100}, nil))
	require.NoError(t, svc.Handle(ctx, DepositCommand{AccountID: "5", Amount: 250}, nil))

	total, err := svc.TotalDeposited(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(350), total)
}

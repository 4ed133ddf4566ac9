package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	es "github.com/aldenhall/eventstore"
	storesmem "github.com/aldenhall/eventstore/stores/mem"
	storespgx "github.com/aldenhall/eventstore/stores/pgx"
)

func newSerializer() *es.Serializer {
	s := es.NewSerializer()
	s.RegisterCurrent("AccountOpened", es.JSONCodec[AccountOpened]())
	s.RegisterCurrent("MoneyDeposited", es.JSONCodec[MoneyDeposited]())
	s.RegisterCurrent("AccountSnapshot", es.JSONCodec[AccountSnapshot]())
	return s
}

func newEntryStore(ctx context.Context) es.EntryStore {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return storesmem.New()
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	return storespgx.New(pool)
}

func main() {
	ctx := context.Background()

	store := es.New(newEntryStore(ctx),
		es.WithSerializer(newSerializer()),
		es.WithMaxSnapshotsArchived(3),
	)

	svc := NewAccountService(store)
	id := uuid.NewString()

	md := es.Metadata{"tenant_id": "t1", "user_id": "u1"}

	// 1) Open account
	open := OpenAccountCommand{AccountID: id, Owner: "Taro", Initial: 1000}
	if err := svc.Handle(ctx, open, md); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Account opened: %+v\n", open)

	// 2) Deposit
	deposit := DepositCommand{AccountID: id, Amount: 500}
	if err := svc.Handle(ctx, deposit, md); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Account deposited: %+v\n", deposit)

	// 3) Load and show balance (rehydrate)
	acc, err := NewAccountRepository(store).Load(ctx, id)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Restored account %s: balance=%d (version=%d)\n", id, acc.Balance(), acc.Version())

	// 4) Rebuild a projection across every account via VisitEventsMatching
	total, err := svc.TotalDeposited(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Total deposited across all accounts: %d\n", total)
}

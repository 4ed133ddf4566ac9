package main

// AccountSnapshot is the persisted state shape stored in snapshot rows. It
// is registered with the Serializer like any other payload type and applied
// by Account.apply during replay, the same way a regular domain event is.
type AccountSnapshot struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
}

func (AccountSnapshot) EventType() string { return "AccountSnapshot" }

// buildSnapshot captures the aggregate's current state for
// AppendSnapshotEvent.
func buildSnapshot(a *Account) AccountSnapshot {
	return AccountSnapshot{Owner: a.owner, Balance: a.balance}
}

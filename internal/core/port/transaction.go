package port

import "context"

// Stores groups the repositories bound to a single transaction.
type Stores struct {
	Users  UserRepository
	Ledger TokenLedgerRepository
	Store  StoreRepository
}

// TxManager runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketDataGateway supplies current bid/ask/last for a set of instrument codes.
// A failure or a missing code aborts the caller's whole sweep.
type MarketDataGateway interface {
	Quote(ctx context.Context, codes []string) (map[string]Quote, error)
}

// OrderStore persists orders and maintains the pending-by-instrument index.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	// CancelOrder removes a pending order and returns it as it was before removal.
	CancelOrder(ctx context.Context, id string) (*Order, error)
	// MarkExecuted flips a pending order to executed. It returns ErrOrderNotPending
	// when the order was settled or cancelled concurrently.
	MarkExecuted(ctx context.Context, o *Order) error
	PendingForInstrument(ctx context.Context, instrument string) ([]*Order, error)
	DistinctInstrumentsWithPending(ctx context.Context) ([]string, error)
	ListOrders(ctx context.Context, accountID string, executed *bool) ([]*Order, error)
}

// Ledger persists account cash movements.
type Ledger interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
	ReserveOnCreate(ctx context.Context, a *Account, o *Order) error
	RefundOnCancel(ctx context.Context, a *Account, o *Order) error
	ApplyFill(ctx context.Context, a *Account, o *Order, unitDelta decimal.Decimal) error
}

// Store is an OrderStore and Ledger sharing one transaction boundary.
type Store interface {
	OrderStore
	Ledger
	// Atomic runs fn inside a transaction. Nothing fn wrote is visible if it returns an error.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}

// FillPublisher fans executed fills out to downstream consumers.
type FillPublisher interface {
	PublishFill(ctx context.Context, f Fill) error
	Close() error
}

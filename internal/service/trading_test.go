package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/infra/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setupStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.NewStorage(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTrading(t *testing.T) (*TradingService, *storage.Storage) {
	t.Helper()
	store := setupStore(t)
	return NewTradingService(store, d("50000"), d("20"), nil), store
}

// execute fills o at price without touching cash, standing in for a sweep.
func execute(t *testing.T, store *storage.Storage, o *domain.Order, price string) {
	t.Helper()
	filled := *o
	filled.Price = d(price)
	filled.Timestamp = time.Now().UTC()
	require.NoError(t, store.MarkExecuted(context.Background(), &filled))
}

func TestTradingService_CreateAccount(t *testing.T) {
	svc, _ := newTrading(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, " Alice@Example.com ", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", a.Email)
	assert.True(t, a.Cash.Equal(d("50000")))

	got, err := svc.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Nickname)

	_, err = svc.CreateAccount(ctx, "alice@example.com", "again")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateAccount(ctx, "  ", "blank")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateAccount(ctx, "no-at-sign", "bad")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTradingService_SubmitBuyReservesCash(t *testing.T) {
	svc, _ := newTrading(t)
	ctx := context.Background()
	a, err := svc.CreateAccount(ctx, "buyer@example.com", "")
	require.NoError(t, err)

	o, err := svc.SubmitOrder(ctx, OrderRequest{
		AccountID:  a.ID,
		Type:       "BUY",
		Subtype:    "limit",
		Instrument: " bhp ",
		Price:      d("40.00"),
		Quantity:   100,
	})
	require.NoError(t, err)

	assert.Equal(t, "BHP", o.Instrument)
	assert.Equal(t, domain.OrderTypeBuy, o.Type)
	assert.True(t, o.Fee.Equal(d("20")))
	assert.False(t, o.Executed)
	// 50000 - 20 - 4000
	assert.True(t, o.CashHistory.Equal(d("45980")))

	acc, err := svc.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, acc.Cash.Equal(d("45980")))
}

func TestTradingService_SubmitRejections(t *testing.T) {
	svc, _ := newTrading(t)
	ctx := context.Background()
	a, err := svc.CreateAccount(ctx, "reject@example.com", "")
	require.NoError(t, err)
	zero := d("0")
	negative := d("-1")

	tests := []struct {
		name string
		req  OrderRequest
		want error
	}{
		{"bad type", OrderRequest{AccountID: a.ID, Type: "hold", Subtype: "limit", Instrument: "BHP", Price: d("1"), Quantity: 1}, domain.ErrValidation},
		{"bad subtype", OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "iceberg", Instrument: "BHP", Price: d("1"), Quantity: 1}, domain.ErrValidation},
		{"empty instrument", OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "limit", Instrument: " ", Price: d("1"), Quantity: 1}, domain.ErrValidation},
		{"zero quantity", OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "limit", Instrument: "BHP", Price: d("1"), Quantity: 0}, domain.ErrValidation},
		{"negative fee", OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "limit", Instrument: "BHP", Price: d("1"), Quantity: 1, Fee: &negative}, domain.ErrValidation},
		{"insufficient funds", OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "limit", Instrument: "BHP", Price: d("500.01"), Quantity: 100, Fee: &zero}, domain.ErrValidation},
		{"insufficient shares", OrderRequest{AccountID: a.ID, Type: "sell", Subtype: "market", Instrument: "BHP", Price: d("1"), Quantity: 1}, domain.ErrValidation},
		{"unknown account", OrderRequest{AccountID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Type: "buy", Subtype: "limit", Instrument: "BHP", Price: d("1"), Quantity: 1}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitOrder(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	acc, err := svc.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, acc.Cash.Equal(d("50000")), "rejected submissions must not move cash")

	orders, err := svc.ListOrders(ctx, a.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestTradingService_ExactFundsAccepted(t *testing.T) {
	store := setupStore(t)
	svc := NewTradingService(store, d("120"), d("20"), nil)
	ctx := context.Background()
	a, err := svc.CreateAccount(ctx, "exact@example.com", "")
	require.NoError(t, err)

	o, err := svc.SubmitOrder(ctx, OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "market", Instrument: "CBA", Price: d("10"), Quantity: 10})
	require.NoError(t, err)
	assert.True(t, o.CashHistory.IsZero())
}

func TestTradingService_SellRequiresHoldings(t *testing.T) {
	svc, store := newTrading(t)
	ctx := context.Background()
	a, err := svc.CreateAccount(ctx, "seller@example.com", "")
	require.NoError(t, err)

	buy, err := svc.SubmitOrder(ctx, OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "limit", Instrument: "WES", Price: d("50"), Quantity: 10})
	require.NoError(t, err)

	// Pending buys are not sellable.
	_, err = svc.SubmitOrder(ctx, OrderRequest{AccountID: a.ID, Type: "sell", Subtype: "limit", Instrument: "WES", Price: d("55"), Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	execute(t, store, buy, "50")

	_, err = svc.SubmitOrder(ctx, OrderRequest{AccountID: a.ID, Type: "sell", Subtype: "limit", Instrument: "wes", Price: d("55"), Quantity: 6})
	require.NoError(t, err)

	// 4 left after the pending sell of 6.
	_, err = svc.SubmitOrder(ctx, OrderRequest{AccountID: a.ID, Type: "sell", Subtype: "limit", Instrument: "WES", Price: d("55"), Quantity: 5})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.SubmitOrder(ctx, OrderRequest{AccountID: a.ID, Type: "sell", Subtype: "stop", Instrument: "WES", Price: d("45"), Quantity: 4})
	assert.NoError(t, err)
}

func TestTradingService_CancelOrder(t *testing.T) {
	svc, store := newTrading(t)
	ctx := context.Background()
	a, err := svc.CreateAccount(ctx, "cancel@example.com", "")
	require.NoError(t, err)

	t.Run("pending buy refunds notional, keeps fee", func(t *testing.T) {
		o, err := svc.SubmitOrder(ctx, OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "limit", Instrument: "BHP", Price: d("10"), Quantity: 100})
		require.NoError(t, err)

		cancelled, err := svc.CancelOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.ID, cancelled.ID)

		acc, err := svc.GetAccount(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, acc.Cash.Equal(d("49980")), "cash %s", acc.Cash)

		_, err = store.GetOrder(ctx, o.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("executed order is illegal state", func(t *testing.T) {
		o, err := svc.SubmitOrder(ctx, OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "limit", Instrument: "BHP", Price: d("10"), Quantity: 1})
		require.NoError(t, err)
		execute(t, store, o, "10")

		before, err := svc.GetAccount(ctx, a.ID)
		require.NoError(t, err)

		_, err = svc.CancelOrder(ctx, o.ID)
		var ise *domain.IllegalStateError
		require.True(t, errors.As(err, &ise))
		assert.Equal(t, "executed", ise.State)

		after, err := svc.GetAccount(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, after.Cash.Equal(before.Cash))
	})

	t.Run("unknown order is reference error", func(t *testing.T) {
		_, err := svc.CancelOrder(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = svc.CancelOrder(ctx, "not-an-id")
		var re *domain.ReferenceError
		assert.True(t, errors.As(err, &re))
	})
}

func TestTradingService_CancelOwnedOrder(t *testing.T) {
	svc, _ := newTrading(t)
	ctx := context.Background()
	owner, err := svc.CreateAccount(ctx, "owner@example.com", "")
	require.NoError(t, err)
	other, err := svc.CreateAccount(ctx, "other@example.com", "")
	require.NoError(t, err)

	o, err := svc.SubmitOrder(ctx, OrderRequest{AccountID: owner.ID, Type: "buy", Subtype: "limit", Instrument: "BHP", Price: d("1"), Quantity: 1})
	require.NoError(t, err)

	_, err = svc.CancelOwnedOrder(ctx, other.ID, o.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.CancelOwnedOrder(ctx, owner.ID, o.ID)
	assert.NoError(t, err)
}

func TestTradingService_ListOrders(t *testing.T) {
	svc, store := newTrading(t)
	ctx := context.Background()
	a, err := svc.CreateAccount(ctx, "list@example.com", "")
	require.NoError(t, err)

	first, err := svc.SubmitOrder(ctx, OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "limit", Instrument: "BHP", Price: d("1"), Quantity: 1})
	require.NoError(t, err)
	second, err := svc.SubmitOrder(ctx, OrderRequest{AccountID: a.ID, Type: "buy", Subtype: "limit", Instrument: "CBA", Price: d("1"), Quantity: 1})
	require.NoError(t, err)
	execute(t, store, first, "1")

	all, err := svc.ListOrders(ctx, a.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)

	pending := false
	open, err := svc.ListOrders(ctx, a.ID, &pending)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, second.ID, open[0].ID)

	_, err = svc.ListOrders(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

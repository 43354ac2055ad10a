package service

import (
	"context"
	"log/slog"
	"strings"

	"stock_sim/internal/domain"

	"github.com/shopspring/decimal"
)

// OrderRequest is a client order submission. A nil Fee takes the configured brokerage fee.
type OrderRequest struct {
	AccountID  string              `json:"account_id"`
	Type       domain.OrderType    `json:"type"`
	Subtype    domain.OrderSubtype `json:"subtype"`
	Instrument string              `json:"instrument"`
	Price      decimal.Decimal     `json:"price"`
	Quantity   int64               `json:"quantity"`
	Fee        *decimal.Decimal    `json:"fee,omitempty"`
}

// TradingService handles account and order lifecycle requests. Every mutation runs inside
// one store transaction so the order and the account cash move together.
type TradingService struct {
	store       domain.Store
	initialCash decimal.Decimal
	defaultFee  decimal.Decimal
	logger      *slog.Logger
}

// NewTradingService creates a TradingService.
func NewTradingService(store domain.Store, initialCash, defaultFee decimal.Decimal, logger *slog.Logger) *TradingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradingService{
		store:       store,
		initialCash: initialCash,
		defaultFee:  defaultFee,
		logger:      logger,
	}
}

// CreateAccount opens an account funded with the initial cash.
func (s *TradingService) CreateAccount(ctx context.Context, email, nickname string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.NewValidationError("email", "is required")
	}
	if !strings.Contains(email, "@") {
		return nil, domain.NewValidationError("email", "is malformed")
	}

	a := &domain.Account{
		Email:    email,
		Nickname: strings.TrimSpace(nickname),
		Cash:     s.initialCash,
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("Account created",
		slog.String("account_id", a.ID),
		slog.String("email", a.Email),
	)
	return a, nil
}

// GetAccount returns an account by id.
func (s *TradingService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.store.GetAccount(ctx, accountID)
}

// GetOrder returns an order by id.
func (s *TradingService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// ListOrders returns the orders of an account in creation order. A nil executed lists all.
func (s *TradingService) ListOrders(ctx context.Context, accountID string, executed *bool) ([]*domain.Order, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx, accountID, executed)
}

// SubmitOrder validates and records a pending order, charging the fee and, for buys,
// holding the notional. Buys need cash for notional plus fee; sells need sellable shares.
func (s *TradingService) SubmitOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	o := &domain.Order{
		AccountID:  req.AccountID,
		Type:       domain.OrderType(strings.ToLower(string(req.Type))),
		Subtype:    domain.OrderSubtype(strings.ToLower(string(req.Subtype))),
		Instrument: domain.NormalizeInstrument(req.Instrument),
		Price:      req.Price,
		Quantity:   req.Quantity,
		Fee:        s.defaultFee,
	}
	if req.Fee != nil {
		o.Fee = *req.Fee
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		acc, err := tx.GetAccount(ctx, o.AccountID)
		if err != nil {
			return err
		}

		if o.IsBuy() {
			if !acc.CanAfford(o.Notional().Add(o.Fee)) {
				return domain.NewValidationError("cash", "insufficient funds")
			}
		} else {
			orders, err := tx.ListOrders(ctx, acc.ID, nil)
			if err != nil {
				return err
			}
			if o.Quantity > SellableShares(orders)[o.Instrument] {
				return domain.NewValidationError("quantity", "insufficient shares")
			}
		}

		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		return tx.ReserveOnCreate(ctx, acc, o)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order submitted",
		slog.String("order_id", o.ID),
		slog.String("account_id", o.AccountID),
		slog.String("instrument", o.Instrument),
		slog.String("type", string(o.Type)),
		slog.String("subtype", string(o.Subtype)),
		slog.Int64("quantity", o.Quantity),
		slog.String("price", o.Price.String()),
	)
	return o, nil
}

// CancelOrder removes a pending order and refunds its buy hold. The fee is kept.
func (s *TradingService) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.cancel(ctx, orderID, "")
}

// CancelOwnedOrder cancels orderID only if it belongs to accountID. Another account's
// order is reported as unknown.
func (s *TradingService) CancelOwnedOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	return s.cancel(ctx, orderID, accountID)
}

func (s *TradingService) cancel(ctx context.Context, orderID, owner string) (*domain.Order, error) {
	var cancelled *domain.Order
	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		if owner != "" {
			o, err := tx.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if o.AccountID != owner {
				return &domain.ReferenceError{Kind: "order", Ref: orderID}
			}
		}

		o, err := tx.CancelOrder(ctx, orderID)
		if err != nil {
			return err
		}
		acc, err := tx.GetAccount(ctx, o.AccountID)
		if err != nil {
			return err
		}
		if err := tx.RefundOnCancel(ctx, acc, o); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order cancelled",
		slog.String("order_id", cancelled.ID),
		slog.String("account_id", cancelled.AccountID),
	)
	return cancelled, nil
}

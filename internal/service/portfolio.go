package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"stock_sim/internal/domain"

	"github.com/shopspring/decimal"
)

// Holding is the net position of one instrument.
type Holding struct {
	Instrument    string          `json:"instrument"`
	Quantity      int64           `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"` // average over executed buys
}

// Holdings nets executed buys against executed sells per instrument. Instruments with no
// shares left are omitted. The result is sorted by instrument.
func Holdings(orders []*domain.Order) []Holding {
	type acc struct {
		qty    int64
		bought int64
		cost   decimal.Decimal
	}
	byCode := make(map[string]*acc)
	for _, o := range orders {
		if !o.Executed {
			continue
		}
		a, ok := byCode[o.Instrument]
		if !ok {
			a = &acc{}
			byCode[o.Instrument] = a
		}
		if o.IsBuy() {
			a.qty += o.Quantity
			a.bought += o.Quantity
			a.cost = a.cost.Add(o.Notional())
		} else {
			a.qty -= o.Quantity
		}
	}

	out := make([]Holding, 0, len(byCode))
	for code, a := range byCode {
		if a.qty <= 0 {
			continue
		}
		h := Holding{Instrument: code, Quantity: a.qty}
		if a.bought > 0 {
			h.PurchasePrice = a.cost.DivRound(decimal.NewFromInt(a.bought), 4)
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Instrument < out[j].Instrument
	})
	return out
}

// SellableShares returns holdings minus the quantities of pending sells, per instrument.
func SellableShares(orders []*domain.Order) map[string]int64 {
	out := make(map[string]int64)
	for _, h := range Holdings(orders) {
		out[h.Instrument] = h.Quantity
	}
	for _, o := range orders {
		if o.IsPending() && !o.IsBuy() {
			out[o.Instrument] -= o.Quantity
		}
	}
	return out
}

// PendingValue sums price × quantity over pending buys.
func PendingValue(orders []*domain.Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		if o.IsPending() && o.IsBuy() {
			total = total.Add(o.Notional())
		}
	}
	return total
}

// Portfolio is the valued position of one account.
type Portfolio struct {
	AccountID string          `json:"account_id"`
	Email     string          `json:"email"`
	Nickname  string          `json:"nickname"`
	Cash      decimal.Decimal `json:"cash"`
	Holdings  []Holding       `json:"holdings"`
	Shares    decimal.Decimal `json:"shares"`
	Pending   decimal.Decimal `json:"pending"`
	Total     decimal.Decimal `json:"total"`
}

// PortfolioService values accounts against the market.
type PortfolioService struct {
	store   domain.Store
	gateway domain.MarketDataGateway
	logger  *slog.Logger
}

// NewPortfolioService creates a PortfolioService.
func NewPortfolioService(store domain.Store, gateway domain.MarketDataGateway, logger *slog.Logger) *PortfolioService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortfolioService{store: store, gateway: gateway, logger: logger}
}

// Holdings returns the net positions of an account.
func (s *PortfolioService) Holdings(ctx context.Context, accountID string) ([]Holding, error) {
	orders, err := s.orders(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return Holdings(orders), nil
}

// SellableShares returns what an account may still sell, per instrument.
func (s *PortfolioService) SellableShares(ctx context.Context, accountID string) (map[string]int64, error) {
	orders, err := s.orders(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return SellableShares(orders), nil
}

// PendingValue returns the notional held by pending buys of an account.
func (s *PortfolioService) PendingValue(ctx context.Context, accountID string) (decimal.Decimal, error) {
	orders, err := s.orders(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return PendingValue(orders), nil
}

func (s *PortfolioService) orders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx, accountID, nil)
}

// Leaderboard values every account at the last trade price, highest total first.
// All held instruments are quoted in a single gateway call.
func (s *PortfolioService) Leaderboard(ctx context.Context) ([]Portfolio, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	board := make([]Portfolio, 0, len(accounts))
	codes := make(map[string]struct{})
	for _, a := range accounts {
		orders, err := s.store.ListOrders(ctx, a.ID, nil)
		if err != nil {
			return nil, err
		}
		p := Portfolio{
			AccountID: a.ID,
			Email:     a.Email,
			Nickname:  a.Nickname,
			Cash:      a.Cash,
			Holdings:  Holdings(orders),
			Pending:   PendingValue(orders),
		}
		for _, h := range p.Holdings {
			codes[h.Instrument] = struct{}{}
		}
		board = append(board, p)
	}

	quotes := map[string]domain.Quote{}
	if len(codes) > 0 {
		list := make([]string, 0, len(codes))
		for c := range codes {
			list = append(list, c)
		}
		sort.Strings(list)
		quotes, err = s.gateway.Quote(ctx, list)
		if err != nil {
			s.logger.Warn("Leaderboard valuation failed", slog.Any("error", err))
			return nil, fmt.Errorf("leaderboard: %w", err)
		}
	}

	for i := range board {
		p := &board[i]
		p.Shares = decimal.Zero
		for _, h := range p.Holdings {
			p.Shares = p.Shares.Add(quotes[h.Instrument].Last.Mul(decimal.NewFromInt(h.Quantity)))
		}
		p.Total = p.Cash.Add(p.Shares).Add(p.Pending)
	}

	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Total.GreaterThan(board[j].Total)
	})
	return board, nil
}

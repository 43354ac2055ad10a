package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stock_sim/internal/depth"
	"stock_sim/internal/domain"
	"stock_sim/pkg/id"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite-backed order store, ledger and depth repository.
type Storage struct {
	db *gorm.DB
}

var _ domain.Store = (*Storage)(nil)
var _ depth.Repository = (*Storage)(nil)

// NewStorage opens (or creates) the database at dbPath and migrates the schema.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection keeps transactions from contending.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.Account{}, &domain.Order{}, &depthRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Atomic runs fn in one transaction. Nested calls use savepoints.
func (s *Storage) Atomic(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Storage{db: tx})
	})
}

// ======================================================================================
// Order Operations
// ======================================================================================

// CreateOrder validates and inserts a pending order.
func (s *Storage) CreateOrder(ctx context.Context, o *domain.Order) error {
	o.Instrument = domain.NormalizeInstrument(o.Instrument)
	if err := o.Validate(); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = id.New()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	o.Executed = false

	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetOrder returns the order with the given id.
func (s *Storage) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if !id.Valid(orderID) {
		return nil, &domain.ReferenceError{Kind: "order", Ref: orderID}
	}
	var o domain.Order
	err := s.db.WithContext(ctx).First(&o, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.ReferenceError{Kind: "order", Ref: orderID}
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// CancelOrder deletes a pending order and returns its last state.
func (s *Storage) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Executed {
		return nil, &domain.IllegalStateError{Ref: orderID, State: o.State(), Op: "cancel"}
	}

	res := s.db.WithContext(ctx).
		Where("id = ? AND executed = ?", orderID, false).
		Delete(&domain.Order{})
	if res.Error != nil {
		return nil, fmt.Errorf("cancel order: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		// Filled between the read and the delete.
		return nil, &domain.IllegalStateError{Ref: orderID, State: "executed", Op: "cancel"}
	}
	return o, nil
}

// MarkExecuted flips a pending order to executed, recording its fill price and time.
func (s *Storage) MarkExecuted(ctx context.Context, o *domain.Order) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ? AND executed = ?", o.ID, false).
		Updates(map[string]any{
			"executed":  true,
			"price":     o.Price,
			"timestamp": o.Timestamp,
		})
	if res.Error != nil {
		return fmt.Errorf("mark order executed: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("order %s: %w", o.ID, domain.ErrOrderNotPending)
	}
	o.Executed = true
	return nil
}

// PendingForInstrument returns the pending orders of one instrument, oldest first.
// Served by idx_orders_pending.
func (s *Storage) PendingForInstrument(ctx context.Context, instrument string) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := s.db.WithContext(ctx).
		Where("executed = ? AND instrument = ?", false, domain.NormalizeInstrument(instrument)).
		Order("timestamp, id").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("pending orders for %s: %w", instrument, err)
	}
	return orders, nil
}

// DistinctInstrumentsWithPending returns the sorted codes having at least one pending order.
func (s *Storage) DistinctInstrumentsWithPending(ctx context.Context) ([]string, error) {
	var codes []string
	err := s.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("executed = ?", false).
		Distinct().
		Order("instrument").
		Pluck("instrument", &codes).Error
	if err != nil {
		return nil, fmt.Errorf("distinct pending instruments: %w", err)
	}
	return codes, nil
}

// ListOrders returns the orders of an account in creation order. A nil executed lists all.
func (s *Storage) ListOrders(ctx context.Context, accountID string, executed *bool) ([]*domain.Order, error) {
	q := s.db.WithContext(ctx).Where("account_id = ?", accountID)
	if executed != nil {
		q = q.Where("executed = ?", *executed)
	}
	var orders []*domain.Order
	if err := q.Order("id").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ======================================================================================
// Ledger Operations
// ======================================================================================

// CreateAccount inserts a new account. A duplicate email is a validation error.
func (s *Storage) CreateAccount(ctx context.Context, a *domain.Account) error {
	if a.ID == "" {
		a.ID = id.New()
	}
	err := s.db.WithContext(ctx).Create(a).Error
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return domain.NewValidationError("email", "already registered")
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetAccount returns the account with the given id.
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if !id.Valid(accountID) {
		return nil, &domain.ReferenceError{Kind: "account", Ref: accountID}
	}
	var a domain.Account
	err := s.db.WithContext(ctx).First(&a, "id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.ReferenceError{Kind: "account", Ref: accountID}
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// ListAccounts returns every account, oldest first.
func (s *Storage) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	var accounts []*domain.Account
	if err := s.db.WithContext(ctx).Order("id").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// ReserveOnCreate charges the fee and buy hold of a new order and stamps its cash history.
func (s *Storage) ReserveOnCreate(ctx context.Context, a *domain.Account, o *domain.Order) error {
	a.Reserve(o)
	o.CashHistory = a.Cash
	if err := s.saveCash(ctx, a); err != nil {
		return err
	}
	return s.saveCashHistory(ctx, o)
}

// RefundOnCancel credits back the hold of a cancelled pending buy.
func (s *Storage) RefundOnCancel(ctx context.Context, a *domain.Account, o *domain.Order) error {
	a.Refund(o)
	return s.saveCash(ctx, a)
}

// ApplyFill adjusts cash by quantity × unitDelta and stamps the order. Call it inside Atomic
// together with MarkExecuted.
func (s *Storage) ApplyFill(ctx context.Context, a *domain.Account, o *domain.Order, unitDelta decimal.Decimal) error {
	a.ApplyFill(o, unitDelta)
	if err := s.saveCash(ctx, a); err != nil {
		return err
	}
	return s.saveCashHistory(ctx, o)
}

func (s *Storage) saveCash(ctx context.Context, a *domain.Account) error {
	a.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{"cash": a.Cash, "updated_at": a.UpdatedAt})
	if res.Error != nil {
		return fmt.Errorf("save account cash: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return &domain.ReferenceError{Kind: "account", Ref: a.ID}
	}
	return nil
}

func (s *Storage) saveCashHistory(ctx context.Context, o *domain.Order) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ?", o.ID).
		Update("cash_history", o.CashHistory)
	if res.Error != nil {
		return fmt.Errorf("save cash history: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return &domain.ReferenceError{Kind: "order", Ref: o.ID}
	}
	return nil
}

// ======================================================================================
// Depth Operations
// ======================================================================================

type depthRow struct {
	Instrument string          `gorm:"primaryKey;size:16"`
	Bids       string          `gorm:"type:text;not null"`
	Asks       string          `gorm:"type:text;not null"`
	MaxBid     decimal.Decimal `gorm:"type:text;not null"`
	MinAsk     decimal.Decimal `gorm:"type:text;not null"`
	UpdatedAt  time.Time
}

func (depthRow) TableName() string {
	return "depth_records"
}

// LoadDepth returns the stored record, or nil when the instrument has none.
func (s *Storage) LoadDepth(ctx context.Context, instrument string) (*depth.Record, error) {
	var row depthRow
	err := s.db.WithContext(ctx).First(&row, "instrument = ?", instrument).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}

	bids, err := depth.DecodeSide(depth.Bid, []byte(row.Bids))
	if err != nil {
		return nil, err
	}
	asks, err := depth.DecodeSide(depth.Ask, []byte(row.Asks))
	if err != nil {
		return nil, err
	}
	return &depth.Record{
		Instrument: row.Instrument,
		Bids:       bids,
		Asks:       asks,
		MaxBid:     row.MaxBid,
		MinAsk:     row.MinAsk,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// SaveDepth upserts the record of r.Instrument.
func (s *Storage) SaveDepth(ctx context.Context, r *depth.Record) error {
	bids, err := r.Bids.MarshalJSON()
	if err != nil {
		return err
	}
	asks, err := r.Asks.MarshalJSON()
	if err != nil {
		return err
	}
	row := depthRow{
		Instrument: r.Instrument,
		Bids:       string(bids),
		Asks:       string(asks),
		MaxBid:     r.MaxBid,
		MinAsk:     r.MinAsk,
		UpdatedAt:  r.UpdatedAt,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

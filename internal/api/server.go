// Package api exposes the simulator over REST and websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"stock_sim/internal/depth"
	"stock_sim/internal/domain"
	"stock_sim/internal/engine"
	"stock_sim/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
)

// Services are the operations the server routes to.
type Services struct {
	Depth     *depth.Service
	Trading   *service.TradingService
	Portfolio *service.PortfolioService
	Sweeper   engine.Sweeper
}

// ErrorRecorder counts failed requests.
type ErrorRecorder interface {
	RecordError()
}

// Server handles REST and websocket traffic.
type Server struct {
	svc     Services
	router  *mux.Router
	hub     *Hub
	metrics http.Handler
	errors  ErrorRecorder
	origins []string
	logger  *slog.Logger
}

const shutdownTimeout = 10 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithErrorRecorder counts internal errors.
func WithErrorRecorder(r ErrorRecorder) Option {
	return func(s *Server) { s.errors = r }
}

// WithAllowedOrigins sets the CORS origins. The default allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server over svc, pushing updates through hub.
func NewServer(svc Services, hub *Hub, opts ...Option) *Server {
	s := &Server{
		svc:     svc,
		router:  mux.NewRouter(),
		hub:     hub,
		origins: []string{"*"},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Depth
	api.HandleFunc("/depth", s.handleGetOrCreateDepth).Methods(http.MethodPost)
	api.HandleFunc("/depth/{code}", s.handleGetDepth).Methods(http.MethodGet)

	// Accounts
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/orders", s.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/holdings", s.handleHoldings).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)

	// Orders
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods(http.MethodDelete)

	// Engine
	api.HandleFunc("/sweep", s.handleSweep).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// Handler returns the router wrapped in CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("API server stopping...")
		return srv.Shutdown(shutdownCtx)
	}
}

// ==============================
// Request types
// ==============================

// DepthRequest asks for the depth of one instrument at a new best bid/ask.
type DepthRequest struct {
	Instrument string          `json:"instrument"`
	MaxBid     decimal.Decimal `json:"max_bid"`
	MinAsk     decimal.Decimal `json:"min_ask"`
	AvgVolume  decimal.Decimal `json:"avg_volume"`
}

// AccountRequest opens an account.
type AccountRequest struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

// SweepRequest triggers a sweep. Force ignores the trading window.
type SweepRequest struct {
	Force bool `json:"force"`
}

// HoldingsResponse is the position view of one account.
type HoldingsResponse struct {
	Holdings     []service.Holding `json:"holdings"`
	Sellable     map[string]int64  `json:"sellable"`
	PendingValue decimal.Decimal   `json:"pending_value"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetOrCreateDepth(w http.ResponseWriter, r *http.Request) {
	var req DepthRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.svc.Depth.GetOrCreateDepth(r.Context(), req.Instrument, req.MaxBid, req.MinAsk, req.AvgVolume)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetDepth(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Depth.GetDepth(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.svc.Trading.CreateAccount(r.Context(), req.Email, req.Nickname)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Trading.GetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	var executed *bool
	switch r.URL.Query().Get("state") {
	case "":
	case "pending":
		v := false
		executed = &v
	case "executed":
		v := true
		executed = &v
	default:
		s.respondErr(w, domain.NewValidationError("state", "must be pending or executed"))
		return
	}

	orders, err := s.svc.Trading.ListOrders(r.Context(), mux.Vars(r)["id"], executed)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	ctx := r.Context()

	holdings, err := s.svc.Portfolio.Holdings(ctx, accountID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	sellable, err := s.svc.Portfolio.SellableShares(ctx, accountID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	pending, err := s.svc.Portfolio.PendingValue(ctx, accountID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, HoldingsResponse{Holdings: holdings, Sellable: sellable, PendingValue: pending})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.svc.Portfolio.Leaderboard(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, board)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req service.OrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	o, err := s.svc.Trading.SubmitOrder(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.Trading.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// handleCancelOrder cancels a pending order. With ?account_id= the order must belong to
// that account.
func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	var (
		o   *domain.Order
		err error
	)
	if owner := r.URL.Query().Get("account_id"); owner != "" {
		o, err = s.svc.Trading.CancelOwnedOrder(r.Context(), owner, orderID)
	} else {
		o, err = s.svc.Trading.CancelOrder(r.Context(), orderID)
	}
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	report, err := s.svc.Sweeper.RunSweep(r.Context(), req.Force)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"ws_clients": s.hub.Clients(),
	})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// respondErr maps domain errors to HTTP statuses. Anything unrecognised is a 500.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		if s.errors != nil {
			s.errors.RecordError()
		}
		s.logger.Error("Request failed", slog.Any("error", err))
		respondError(w, status, "internal error", "")
		return
	}
	respondError(w, status, http.StatusText(status), err.Error())
}

// StatusFor returns the HTTP status of err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIllegalState), errors.Is(err, domain.ErrMarketClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSON(w, status, ErrorResponse{Error: error, Message: message})
}

package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"stock_sim/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	// DefaultUserAgent identifies the simulator to quote providers.
	DefaultUserAgent = "stocksim/1.0"

	defaultBatchSize = 100
)

// quoteResponse is one element of the provider's JSON array.
type quoteResponse struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Last   decimal.Decimal `json:"last"`
}

// HTTPQuoteGateway fetches quotes with GET <url>?symbols=A,B,... Requests are batched and
// never retried: the first failure is returned and the sweep aborts.
type HTTPQuoteGateway struct {
	apiURL     string
	batchSize  int
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.MarketDataGateway = (*HTTPQuoteGateway)(nil)

// NewHTTPQuoteGateway creates a gateway for apiURL.
func NewHTTPQuoteGateway(apiURL string, batchSize int, timeout time.Duration, logger *slog.Logger) *HTTPQuoteGateway {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPQuoteGateway{
		apiURL:    apiURL,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Quote returns one quote per requested code. A code missing from the response is an error.
func (g *HTTPQuoteGateway) Quote(ctx context.Context, codes []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(codes))
	for start := 0; start < len(codes); start += g.batchSize {
		end := min(start+g.batchSize, len(codes))
		if err := g.fetchBatch(ctx, codes[start:end], out); err != nil {
			return nil, &domain.GatewayError{Op: "quote", Err: err}
		}
	}

	if missing := missingCodes(codes, out); len(missing) > 0 {
		return nil, &domain.GatewayError{Op: "quote", Err: fmt.Errorf("no quote for %s", strings.Join(missing, ","))}
	}
	return out, nil
}

func (g *HTTPQuoteGateway) fetchBatch(ctx context.Context, codes []string, out map[string]domain.Quote) error {
	u, err := url.Parse(g.apiURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("symbols", strings.Join(codes, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var data []quoteResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return err
	}

	for _, r := range data {
		code := domain.NormalizeInstrument(r.Symbol)
		out[code] = domain.Quote{Instrument: code, Bid: r.Bid, Ask: r.Ask, Last: r.Last}
	}
	g.logger.Debug("quotes fetched", slog.Int("requested", len(codes)), slog.Int("received", len(data)))
	return nil
}

// StaticQuoteGateway serves fixed quotes, for offline runs and tests.
type StaticQuoteGateway struct {
	quotes map[string]domain.Quote
}

var _ domain.MarketDataGateway = (*StaticQuoteGateway)(nil)

// NewStaticQuoteGateway creates a gateway over configured quotes.
func NewStaticQuoteGateway(quotes map[string]StaticQuote) *StaticQuoteGateway {
	g := &StaticQuoteGateway{quotes: make(map[string]domain.Quote, len(quotes))}
	for code, q := range quotes {
		code = domain.NormalizeInstrument(code)
		g.quotes[code] = domain.Quote{Instrument: code, Bid: q.Bid, Ask: q.Ask, Last: q.Last}
	}
	return g
}

// Quote returns the configured quotes. Unknown codes fail like a provider outage.
func (g *StaticQuoteGateway) Quote(ctx context.Context, codes []string) (map[string]domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.GatewayError{Op: "quote", Err: err}
	}
	out := make(map[string]domain.Quote, len(codes))
	for _, c := range codes {
		if q, ok := g.quotes[c]; ok {
			out[c] = q
		}
	}
	if missing := missingCodes(codes, out); len(missing) > 0 {
		return nil, &domain.GatewayError{Op: "quote", Err: errors.New("no quote for " + strings.Join(missing, ","))}
	}
	return out, nil
}

func missingCodes(codes []string, got map[string]domain.Quote) []string {
	var missing []string
	for _, c := range codes {
		if _, ok := got[c]; !ok {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	return missing
}

// NewQuoteGateway builds the gateway selected by cfg.MarketData.Provider.
func NewQuoteGateway(cfg *Config, logger *slog.Logger) domain.MarketDataGateway {
	if cfg.MarketData.Provider == "static" {
		return NewStaticQuoteGateway(cfg.MarketData.Static)
	}
	return NewHTTPQuoteGateway(
		cfg.MarketData.URL,
		cfg.MarketData.BatchSize,
		time.Duration(cfg.MarketData.TimeoutSec)*time.Second,
		logger,
	)
}

package brokerclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradeguard/internal/domain"
	"tradeguard/internal/observability/metrics"
	"tradeguard/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// defaultPointSize is used for symbols missing from the configured table.
	defaultPointSize = 0.01
)

// Client implements the ports.BrokerClient interface using the go-binance
// library. The surface is read-only: quotes, equity and position counts. No
// order endpoints are exposed.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	pointSizes           map[string]float64
	quoteCacheTTL        time.Duration

	cacheMu    sync.Mutex
	quoteCache map[string]*domain.Quote
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
	PointSizes           map[string]float64
	QuoteCacheTTL        time.Duration // Zero disables quote caching
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
		// Allow creation for public endpoints, but log warning.
		// Authentication errors will occur if private endpoints are called.
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	// Default reconnect settings if not provided
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		pointSizes:           cfg.PointSizes,
		quoteCacheTTL:        cfg.QuoteCacheTTL,
		quoteCache:           make(map[string]*domain.Quote),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrSymbolNotFound
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2014: // API-key format invalid
			mappedErr = ports.ErrInvalidAPIKeys
		case -2015: // Invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrInvalidAPIKeys // Could also be PermissionDenied
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetQuote retrieves the best bid/ask for a symbol via the book ticker
// endpoint. Results are cached per symbol for the configured TTL so repeated
// gate evaluations within a cycle do not hammer the API.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if cached := c.cachedQuote(symbol); cached != nil {
		return cached, nil
	}

	quote, err := c.fetchQuote(ctx, symbol)
	if err != nil {
		metrics.IncQuoteFailure(symbol)
		return nil, err
	}
	c.storeQuote(quote)
	return quote, nil
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	op := "GetQuote"

	tickers, err := c.futuresClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("%s failed: %w: no book ticker for symbol %s", op, ports.ErrQuoteUnavailable, symbol)
		c.logger.Error(ctx, err, op+" returned no data", map[string]interface{}{"symbol": symbol})
		return nil, err
	}

	ticker := tickers[0]
	bid, err := strconv.ParseFloat(ticker.BidPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse bid price '%s': %w", ticker.BidPrice, err)
		return nil, c.handleError(ctx, parseErr, op)
	}
	ask, err := strconv.ParseFloat(ticker.AskPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse ask price '%s': %w", ticker.AskPrice, err)
		return nil, c.handleError(ctx, parseErr, op)
	}

	return &domain.Quote{
		Symbol: symbol,
		Bid:    bid,
		Ask:    ask,
		Point:  c.pointFor(symbol),
		Time:   time.Now().UTC(),
	}, nil
}

// GetEquity retrieves the account equity for the given quote asset. Margin
// balance is used rather than wallet balance so unrealized losses count
// against the drawdown limits immediately.
func (c *Client) GetEquity(ctx context.Context, asset string) (float64, error) {
	op := "GetEquity"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset == asset {
			equity, err := strconv.ParseFloat(bal.MarginBalance, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse margin balance '%s' for asset %s: %w", bal.MarginBalance, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return equity, nil
		}
	}

	// Asset not found in the account details
	err = fmt.Errorf("asset %s not found in account balance", asset)
	return 0, c.handleError(ctx, err, op) // Wrap with handleError for logging
}

// GetPositionCounts retrieves the number of open positions, total and per
// symbol, from the position-risk list.
func (c *Client) GetPositionCounts(ctx context.Context) (domain.PositionCounts, error) {
	op := "GetPositionCounts"

	positions, err := c.futuresClient.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return domain.PositionCounts{PerSymbol: make(map[string]int)}, c.handleError(ctx, err, op)
	}

	counts := countPositions(positions)
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"total": counts.Total})
	return counts, nil
}

// countPositions tallies the nonzero entries of a position-risk list. Entries
// with a zero position amount are not positions.
func countPositions(positions []*futures.PositionRisk) domain.PositionCounts {
	counts := domain.PositionCounts{PerSymbol: make(map[string]int)}
	for _, pos := range positions {
		amount, _ := strconv.ParseFloat(pos.PositionAmt, 64) // Ignore error, default to 0
		if amount == 0 {
			continue
		}
		counts.Total++
		counts.PerSymbol[pos.Symbol]++
	}
	return counts
}

// Ping checks the connectivity to the exchange API, retrying transient
// failures up to the configured attempt limit.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	var lastErr error
	for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
		err := c.futuresClient.NewPingService().Do(ctx)
		if err == nil {
			c.logger.Debug(ctx, op+" successful")
			return nil
		}
		lastErr = err
		if attempt < c.maxReconnectAttempts {
			c.logger.Warn(ctx, op+" failed, retrying", map[string]interface{}{
				"attempt": attempt,
				"delay":   c.reconnectDelay.String(),
			})
			select {
			case <-time.After(c.reconnectDelay):
			case <-ctx.Done():
				return c.handleError(ctx, ctx.Err(), op)
			}
		}
	}
	return c.handleError(ctx, fmt.Errorf("ping failed after %d attempts: %w", c.maxReconnectAttempts, lastErr), op)
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	// Convert milliseconds to time.Time
	return time.UnixMilli(serverTimeMs), nil
}

// cachedQuote returns a still-fresh cached quote for the symbol, or nil.
func (c *Client) cachedQuote(symbol string) *domain.Quote {
	if c.quoteCacheTTL <= 0 {
		return nil
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	quote, ok := c.quoteCache[symbol]
	if !ok || time.Since(quote.Time) >= c.quoteCacheTTL {
		return nil
	}
	return quote
}

func (c *Client) storeQuote(quote *domain.Quote) {
	if c.quoteCacheTTL <= 0 {
		return
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.quoteCache[quote.Symbol] = quote
}

// pointFor looks up the symbol's point size, falling back to the default for
// unconfigured symbols.
func (c *Client) pointFor(symbol string) float64 {
	if size, ok := c.pointSizes[symbol]; ok && size > 0 {
		return size
	}
	return defaultPointSize
}

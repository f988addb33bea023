package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"stock-threshold-alerts/internal/version"
)

const (
	chartPath = "/v8/finance/chart/"
	quotePath = "/v7/finance/quote"
)

// YahooOptions parameterise the Yahoo Finance client.
type YahooOptions struct {
	BaseURL           string
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
}

// Yahoo fetches prices from the Yahoo Finance chart and quote endpoints.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewYahoo constructs a Yahoo client.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "yahoo_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		baseURL: baseURL,
	}
}

// FastPrice returns the chart meta regularMarketPrice, the cheapest snapshot field.
func (y *Yahoo) FastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	result, err := y.chart(ctx, symbol, "1d", "1d")
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !result.Meta.RegularMarketPrice.Valid {
		return decimal.Decimal{}, fmt.Errorf("fast price for %s: %w", symbol, ErrNoData)
	}
	return result.Meta.RegularMarketPrice.Decimal, nil
}

// Quote returns the quote document for symbol.
func (y *Yahoo) Quote(ctx context.Context, symbol string) (QuoteDocument, error) {
	query := url.Values{}
	query.Set("symbols", symbol)

	var payload quoteResponse
	if err := y.get(ctx, y.baseURL+quotePath+"?"+query.Encode(), &payload); err != nil {
		return QuoteDocument{}, err
	}
	if payload.QuoteResponse.Error != nil {
		return QuoteDocument{}, payload.QuoteResponse.Error
	}

	for _, item := range payload.QuoteResponse.Result {
		if !strings.EqualFold(item.Symbol, symbol) {
			continue
		}
		return QuoteDocument{
			Price:         item.RegularMarketPrice,
			PreviousClose: item.RegularMarketPreviousClose,
		}, nil
	}
	return QuoteDocument{}, fmt.Errorf("quote for %s: %w", symbol, ErrNoData)
}

// Candles returns the bars for period/interval with null closes dropped.
func (y *Yahoo) Candles(ctx context.Context, symbol, period, interval string) ([]Candle, error) {
	result, err := y.chart(ctx, symbol, period, interval)
	if err != nil {
		return nil, err
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}

	closes := result.Indicators.Quote[0].Close
	candles := make([]Candle, 0, len(closes))
	for i, c := range closes {
		if !c.Valid || i >= len(result.Timestamp) {
			continue
		}
		candles = append(candles, Candle{
			Time:  time.Unix(result.Timestamp[i], 0).UTC(),
			Close: c.Decimal,
		})
	}
	return candles, nil
}

func (y *Yahoo) chart(ctx context.Context, symbol, period, interval string) (chartResult, error) {
	query := url.Values{}
	query.Set("range", period)
	query.Set("interval", interval)
	endpoint := y.baseURL + chartPath + url.PathEscape(symbol) + "?" + query.Encode()

	var payload chartResponse
	if err := y.get(ctx, endpoint, &payload); err != nil {
		return chartResult{}, err
	}
	if payload.Chart.Error != nil {
		return chartResult{}, payload.Chart.Error
	}
	if len(payload.Chart.Result) == 0 {
		return chartResult{}, fmt.Errorf("chart for %s: %w", symbol, ErrNoData)
	}
	return payload.Chart.Result[0], nil
}

func (y *Yahoo) get(ctx context.Context, endpoint string, out any) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create yahoo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return fmt.Errorf("send yahoo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read yahoo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode yahoo response: %w", err)
	}
	return nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string              `json:"symbol"`
		Currency           string              `json:"currency"`
		RegularMarketPrice decimal.NullDecimal `json:"regularMarketPrice"`
		ChartPreviousClose decimal.NullDecimal `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []decimal.NullDecimal `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string              `json:"symbol"`
			RegularMarketPrice         decimal.NullDecimal `json:"regularMarketPrice"`
			RegularMarketPreviousClose decimal.NullDecimal `json:"regularMarketPreviousClose"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"quoteResponse"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *apiError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("yahoo api error (%s): %s", e.Code, e.Description)
	}
	return fmt.Sprintf("yahoo api error (%s)", e.Code)
}

func parseHTTPError(status int, payload []byte) error {
	var wrapped struct {
		Chart struct {
			Error *apiError `json:"error"`
		} `json:"chart"`
		Finance struct {
			Error *apiError `json:"error"`
		} `json:"finance"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil {
		if wrapped.Chart.Error != nil {
			return fmt.Errorf("yahoo http %d: %w", status, wrapped.Chart.Error)
		}
		if wrapped.Finance.Error != nil {
			return fmt.Errorf("yahoo http %d: %w", status, wrapped.Finance.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("yahoo http %d: %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("yahoo http %d", status)
}

var _ QuoteProvider = (*Yahoo)(nil)

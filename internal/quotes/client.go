// Package quotes talks to the external stock quote provider and supplies the
// synthetic fallback used when the provider keeps failing.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the provider answers 429; the API surfaces
// it as-is instead of folding it into a generic upstream failure.
var ErrRateLimited = errors.New("quote provider rate limited")

// Quote is one normalized provider record. Numeric fields stay strings here;
// parsing happens at the store boundary.
type Quote struct {
	Ticker           string
	Name             string
	Category         string
	Price            string
	ChangeAmount     string
	ChangePercentage string
	Volume           string
	LatestTradingDay string
	Raw              string
}

// Source produces a quote for one symbol.
type Source interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(baseURL, apiKey string, timeout time.Duration, requestsPerSecond float64) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 0.5
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

type globalQuotePayload struct {
	Symbol           string `json:"01. symbol"`
	Price            string `json:"05. price"`
	Volume           string `json:"06. volume"`
	LatestTradingDay string `json:"07. latest trading day"`
	Change           string `json:"09. change"`
	ChangePercent    string `json:"10. change percent"`
}

type globalQuoteResponse struct {
	GlobalQuote globalQuotePayload `json:"Global Quote"`
}

type moverEntry struct {
	Ticker           string `json:"ticker"`
	Type             string `json:"type"`
	Price            string `json:"price"`
	ChangeAmount     string `json:"change_amount"`
	ChangePercentage string `json:"change_percentage"`
	Volume           string `json:"volume"`
}

type topMoversResponse struct {
	MostActivelyTraded []moverEntry `json:"most_actively_traded"`
}

// Quote fetches a single symbol via GLOBAL_QUOTE. It waits on the request
// budget first, so sequential per-symbol loops stay under the provider's
// rate allowance.
func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}
	raw, err := c.get(ctx, url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
		"apikey":   {c.apiKey},
	})
	if err != nil {
		return Quote{}, err
	}
	var out globalQuoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Quote{}, fmt.Errorf("decode global quote for %s: %w", symbol, err)
	}
	if strings.TrimSpace(out.GlobalQuote.Symbol) == "" {
		return Quote{}, fmt.Errorf("empty global quote for %s", symbol)
	}
	gq := out.GlobalQuote
	return Quote{
		Ticker:           gq.Symbol,
		Price:            gq.Price,
		ChangeAmount:     gq.Change,
		ChangePercentage: gq.ChangePercent,
		Volume:           gq.Volume,
		LatestTradingDay: gq.LatestTradingDay,
		Raw:              string(raw),
	}, nil
}

// TopMovers fetches the market-wide most-actively-traded scan.
func (c *Client) TopMovers(ctx context.Context) ([]Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	raw, err := c.get(ctx, url.Values{
		"function": {"TOP_GAINERS_LOSERS"},
		"apikey":   {c.apiKey},
	})
	if err != nil {
		return nil, err
	}
	var out topMoversResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode top movers: %w", err)
	}
	if len(out.MostActivelyTraded) == 0 {
		return nil, errors.New("top movers response carried no entries")
	}
	quotes := make([]Quote, 0, len(out.MostActivelyTraded))
	for _, m := range out.MostActivelyTraded {
		quotes = append(quotes, Quote{
			Ticker:           m.Ticker,
			Category:         m.Type,
			Price:            m.Price,
			ChangeAmount:     m.ChangeAmount,
			ChangePercentage: m.ChangePercentage,
			Volume:           m.Volume,
			Raw:              string(raw),
		})
	}
	return quotes, nil
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("quote status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read quote body: %w", err)
	}
	return raw, nil
}

// Package source implements the per-feed HTTP contracts and polling driver
// described for the sampler pool: a tagged variant for the supported price
// feeds, request construction and response parsing keyed by that tag, and a
// SourceDriver loop that polls with exponential backoff and appends
// validated samples into a RateHistory.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/concordium/euro2ccd-oracle/internal/ratehistory"
	"github.com/concordium/euro2ccd-oracle/internal/scalarmath"
)

// Kind tags which feed variant a Source is. New feeds are added by
// extending this variant plus buildRequest/parseResponse, not by adding a
// subclass.
type Kind int

const (
	Bitfinex Kind = iota
	CoinGecko
	CoinMarketCap
	LiveCoinWatch
	TestSource
)

func (k Kind) String() string {
	switch k {
	case Bitfinex:
		return "bitfinex"
	case CoinGecko:
		return "coingecko"
	case CoinMarketCap:
		return "coinmarketcap"
	case LiveCoinWatch:
		return "livecoinwatch"
	case TestSource:
		return "test"
	default:
		return "unknown"
	}
}

// Source describes one enabled feed: its tag, stable label, and any
// variant-specific parameters (API key, test URL).
type Source struct {
	Kind   Kind
	Label  string
	APIKey string // CoinMarketCap, LiveCoinWatch
	URL    string // TestSource
}

// buildRequest constructs the variant-specific HTTP request per spec §6.
func (s Source) buildRequest(ctx context.Context) (*http.Request, error) {
	switch s.Kind {
	case Bitfinex:
		body := bytes.NewBufferString(`{"ccy1":"CCD","ccy2":"EUR"}`)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api-pub.bitfinex.com/v2/calc/fx", body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil

	case CoinGecko:
		url := "https://api.coingecko.com/api/v3/simple/price?ids=concordium&vs_currencies=eur"
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)

	case LiveCoinWatch:
		body := bytes.NewBufferString(`{"currency":"EUR","code":"CCD","meta":false}`)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.livecoinwatch.com/coins/single", body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", s.APIKey)
		return req, nil

	case CoinMarketCap:
		url := "https://pro-api.coinmarketcap.com/v2/cryptocurrency/quotes/latest?convert=EUR&symbol=CCD"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-CMC_PRO_API_KEY", s.APIKey)
		return req, nil

	case TestSource:
		return http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)

	default:
		return nil, fmt.Errorf("source: unknown kind %v", s.Kind)
	}
}

type bitfinexResponse []float64

type coingeckoResponse struct {
	Concordium struct {
		EUR float64 `json:"eur"`
	} `json:"concordium"`
}

type livecoinwatchResponse struct {
	Rate float64 `json:"rate"`
}

type coinmarketcapResponse struct {
	Status struct {
		ErrorCode    int     `json:"error_code"`
		ErrorMessage *string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Quote struct {
			EUR struct {
				Price float64 `json:"price"`
			} `json:"EUR"`
		} `json:"quote"`
	} `json:"data"`
}

type testSourceResponse []float64

// coinMarketCapCCDID is the numeric asset id Concordium is listed under on
// CoinMarketCap.
const coinMarketCapCCDID = "18031"

// parseResponse extracts the scalar EUR-per-CCD price from a 2xx body using
// the variant-specific JSON shape.
func (s Source) parseResponse(body []byte) (float64, error) {
	switch s.Kind {
	case Bitfinex:
		var r bitfinexResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return 0, fmt.Errorf("bitfinex: %w", err)
		}
		if len(r) == 0 {
			return 0, fmt.Errorf("bitfinex: empty response")
		}
		return r[0], nil

	case CoinGecko:
		var r coingeckoResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return 0, fmt.Errorf("coingecko: %w", err)
		}
		return r.Concordium.EUR, nil

	case LiveCoinWatch:
		var r livecoinwatchResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return 0, fmt.Errorf("livecoinwatch: %w", err)
		}
		return r.Rate, nil

	case CoinMarketCap:
		var r coinmarketcapResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return 0, fmt.Errorf("coinmarketcap: %w", err)
		}
		if r.Status.ErrorCode != 0 {
			msg := ""
			if r.Status.ErrorMessage != nil {
				msg = *r.Status.ErrorMessage
			}
			return 0, fmt.Errorf("coinmarketcap: error %d: %s", r.Status.ErrorCode, msg)
		}
		entry, ok := r.Data[coinMarketCapCCDID]
		if !ok {
			return 0, fmt.Errorf("coinmarketcap: missing asset %s in response", coinMarketCapCCDID)
		}
		return entry.Quote.EUR.Price, nil

	case TestSource:
		var r testSourceResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return 0, fmt.Errorf("test source: %w", err)
		}
		if len(r) == 0 {
			return 0, fmt.Errorf("test source: empty response")
		}
		return r[0], nil

	default:
		return 0, fmt.Errorf("source: unknown kind %v", s.Kind)
	}
}

// validate rejects NaN, infinite, and negative scalars per §3's Sample
// invariant.
func validate(price float64) error {
	if math.IsNaN(price) {
		return fmt.Errorf("source: sample is NaN")
	}
	if math.IsInf(price, 0) {
		return fmt.Errorf("source: sample is infinite")
	}
	if price < 0 {
		return fmt.Errorf("source: sample %f is negative", price)
	}
	return nil
}

// AuditRecorder receives every accepted raw sample; implemented by
// internal/audit.Sink. Optional — nil means audit is disabled.
type AuditRecorder interface {
	RecordSample(ctx context.Context, label string, price float64, at time.Time) error
}

// StatsRecorder receives the metric events a SourceDriver emits.
type StatsRecorder interface {
	ObserveRead(label string, price float64)
	IncFailedReads(label string)
	ResetFailedReads(label string)
}

// Driver polls one Source on PullInterval, retrying with exponential
// backoff within a single poll cycle, and appends validated samples to its
// RateHistory. RequestsPerSecond caps the token-bucket rate a retry burst
// may hit the upstream API at, independent of the inter-attempt backoff
// delay — grounded in the teacher's per-provider rate.Limiter use in
// internal/infrastructure/providers/ratelimit.go.
type Driver struct {
	Src               Source
	History           *ratehistory.History
	Client            *http.Client
	PullInterval      time.Duration
	Backoff           BackoffConfig
	RequestsPerSecond rate.Limit
	Audit             AuditRecorder
	Stats             StatsRecorder
	Log               zerolog.Logger

	limiterOnce sync.Once
	limiter     *rate.Limiter
}

func (d *Driver) rateLimiter() *rate.Limiter {
	d.limiterOnce.Do(func() {
		limit := d.RequestsPerSecond
		if limit <= 0 {
			limit = rate.Limit(1)
		}
		d.limiter = rate.NewLimiter(limit, 1)
	})
	return d.limiter
}

// Run blocks, polling Src every PullInterval until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pollWithBackoff(ctx)
		}
	}
}

// pollWithBackoff performs one poll cycle: one attempt plus up to MaxRetries
// retries, doubling delay from InitialDelay between them. Terminal failure after the
// budget is exhausted skips this cycle without poisoning history.
func (d *Driver) pollWithBackoff(ctx context.Context) {
	bc := NewBackoffCalculator(d.Backoff.InitialDelay, d.Backoff.MaxDelay, 2)

	var lastErr error
	for attempt := 0; attempt <= d.Backoff.MaxRetries; attempt++ {
		price, err := d.attempt(ctx)
		if err == nil {
			if d.Stats != nil {
				d.Stats.ResetFailedReads(d.Src.Label)
			}
			d.onSuccess(ctx, price)
			return
		}
		lastErr = err
		d.Log.Warn().Str("source", d.Src.Label).Err(err).Int("attempt", attempt).Msg("read failed")
		if attempt == d.Backoff.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(bc.NextDelay()):
		}
	}

	if d.Stats != nil {
		d.Stats.IncFailedReads(d.Src.Label)
	}
	d.Log.Error().Str("source", d.Src.Label).Err(lastErr).Msg("read attempts exhausted, skipping cycle")
}

func (d *Driver) attempt(ctx context.Context) (float64, error) {
	if err := d.rateLimiter().Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := d.Src.buildRequest(ctx)
	if err != nil {
		return 0, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("non-2xx status %d", resp.StatusCode)
	}

	price, err := d.Src.parseResponse(body)
	if err != nil {
		return 0, err
	}
	if err := validate(price); err != nil {
		return 0, err
	}
	return price, nil
}

func (d *Driver) onSuccess(ctx context.Context, price float64) {
	if d.Stats != nil {
		d.Stats.ObserveRead(d.Src.Label, price)
	}
	if d.Audit != nil {
		if err := d.Audit.RecordSample(ctx, d.Src.Label, price, time.Now()); err != nil {
			d.Log.Error().Err(err).Msg("failed to audit sample")
		}
	}

	rate, err := scalarmath.SampleToRate(price)
	if err != nil {
		d.Log.Error().Str("source", d.Src.Label).Err(err).Msg("sample rejected during conversion")
		return
	}
	d.History.PushBack(rate)
}

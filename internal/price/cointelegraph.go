package price

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// DefaultTickerURL is the public CoinTelegraph ticker.
const DefaultTickerURL = "https://ticker-api.cointelegraph.com/rates/?full=true"

// CoinTelegraph fetches quotes from the CoinTelegraph ticker API. The reply
// holds data.<CRYPTO>.<FIAT>.price for every pair.
type CoinTelegraph struct {
	url    string
	client *http.Client
}

// NewCoinTelegraph creates an oracle reading from url.
func NewCoinTelegraph(url string, timeout time.Duration) *CoinTelegraph {
	if url == "" {
		url = DefaultTickerURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinTelegraph{url: url, client: &http.Client{Timeout: timeout}}
}

// Snapshot fetches every quote into a table.
func (c *CoinTelegraph) Snapshot(ctx context.Context) (*RateTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticker returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read ticker response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("ticker response is not JSON")
	}
	return parseTicker(body)
}

func parseTicker(body []byte) (*RateTable, error) {
	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return nil, fmt.Errorf("ticker response has no data object")
	}

	t := NewRateTable()
	for _, crypto := range CryptoCurrencies {
		for _, fiat := range FiatCurrencies {
			p := data.Get(string(crypto) + "." + string(fiat) + ".price")
			if !p.Exists() {
				continue
			}
			v, err := decimal.NewFromString(p.String())
			if err != nil || !v.IsPositive() {
				log.Debugf("Skipping ticker quote %s/%s: %q", crypto, fiat, p.String())
				continue
			}
			t.Set(crypto, fiat, v)
		}
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("ticker response has no usable quotes")
	}
	return t, nil
}

// Price implements Oracle with a fresh fetch.
func (c *CoinTelegraph) Price(ctx context.Context, from, to Currency) (decimal.Decimal, error) {
	if from.IsFiat() && to.IsFiat() && from != to {
		return decimal.Zero, fmt.Errorf("%w: %s to %s", ErrNoRate, from, to)
	}
	t, err := c.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Price(ctx, from, to)
}

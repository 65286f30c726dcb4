package polygon

import (
	"context"
	"fmt"
	"time"
)

// Bar represents one daily OHLCV bar.
type Bar struct {
	Ticker string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

type groupedResponse struct {
	Results []struct {
		Ticker    string  `json:"T"`
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
		Timestamp int64   `json:"t"`
	} `json:"results"`
}

type rangeResponse struct {
	Results []struct {
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
		Timestamp int64   `json:"t"`
	} `json:"results"`
}

// GroupedDaily fetches whole-market daily bars for one day.
// Only one grouped fetch may be in flight at a time.
func (c *Client) GroupedDaily(ctx context.Context, day time.Time) ([]Bar, error) {
	c.groupedMu.Lock()
	defer c.groupedMu.Unlock()

	url := fmt.Sprintf("%s/v2/aggs/grouped/locale/us/market/stocks/%s?adjusted=true&apiKey=%s",
		c.cfg.BaseURL, day.Format("2006-01-02"), c.cfg.APIKey)

	var resp groupedResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("grouped daily %s: %w", day.Format("2006-01-02"), err)
	}

	bars := make([]Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, Bar{
			Ticker: r.Ticker,
			Date:   day,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}

	c.logger.WithFields(map[string]interface{}{
		"date":  day.Format("2006-01-02"),
		"count": len(bars),
	}).Debug("Fetched grouped daily bars")

	return bars, nil
}

// TickerRange fetches per-ticker daily bars for [from, to]. Used for the
// benchmark guarantee and for option-symbol price lookups; option symbols
// are passed in their full form (e.g. "O:AAPL260116C00210000").
func (c *Client) TickerRange(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	url := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s?adjusted=true&apiKey=%s",
		c.cfg.BaseURL, ticker, from.Format("2006-01-02"), to.Format("2006-01-02"), c.cfg.APIKey)

	var resp rangeResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("ticker range %s: %w", ticker, err)
	}

	bars := make([]Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, Bar{
			Ticker: ticker,
			Date:   time.UnixMilli(r.Timestamp).UTC().Truncate(24 * time.Hour),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}

	return bars, nil
}

// DailyBar fetches the single bar for ticker on day, or nil when the day
// has no bar.
func (c *Client) DailyBar(ctx context.Context, ticker string, day time.Time) (*Bar, error) {
	bars, err := c.TickerRange(ctx, ticker, day, day)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}

	bar := bars[0]
	bar.Date = day
	return &bar, nil
}

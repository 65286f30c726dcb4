package polygon

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Contract represents one option contract from the reference endpoint.
type Contract struct {
	Symbol       string  // full option ticker, e.g. "O:AAPL260116C00210000"
	Underlying   string
	ContractType string // "call" or "put"
	Strike       float64
	Expiration   time.Time
}

// ContractQuery narrows the reference contract search.
type ContractQuery struct {
	Underlying    string
	ContractType  string
	ExpirationGTE time.Time
	ExpirationLTE time.Time
	StrikeGTE     float64
	StrikeLTE     float64
	Limit         int
}

type contractsResponse struct {
	Results []struct {
		Ticker         string  `json:"ticker"`
		UnderlyingTick string  `json:"underlying_ticker"`
		StrikePrice    float64 `json:"strike_price"`
		ExpirationDate string  `json:"expiration_date"`
		ContractType   string  `json:"contract_type"`
	} `json:"results"`
}

// SearchContracts queries the option contract reference set.
func (c *Client) SearchContracts(ctx context.Context, q ContractQuery) ([]Contract, error) {
	params := url.Values{}
	params.Set("underlying_ticker", q.Underlying)
	params.Set("contract_type", q.ContractType)
	params.Set("expiration_date.gte", q.ExpirationGTE.Format("2006-01-02"))
	params.Set("expiration_date.lte", q.ExpirationLTE.Format("2006-01-02"))
	params.Set("strike_price.gte", strconv.FormatFloat(q.StrikeGTE, 'f', -1, 64))
	params.Set("strike_price.lte", strconv.FormatFloat(q.StrikeLTE, 'f', -1, 64))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("apiKey", c.cfg.APIKey)

	fullURL := fmt.Sprintf("%s/v3/reference/options/contracts?%s", c.cfg.BaseURL, params.Encode())

	var resp contractsResponse
	if err := c.getJSON(ctx, fullURL, &resp); err != nil {
		return nil, fmt.Errorf("search contracts %s: %w", q.Underlying, err)
	}

	contracts := make([]Contract, 0, len(resp.Results))
	for _, r := range resp.Results {
		exp, err := time.Parse("2006-01-02", r.ExpirationDate)
		if err != nil {
			continue
		}
		contracts = append(contracts, Contract{
			Symbol:       r.Ticker,
			Underlying:   r.UnderlyingTick,
			ContractType: r.ContractType,
			Strike:       r.StrikePrice,
			Expiration:   exp,
		})
	}

	c.logger.WithFields(map[string]interface{}{
		"underlying": q.Underlying,
		"type":       q.ContractType,
		"count":      len(contracts),
	}).Debug("Fetched option contracts")

	return contracts, nil
}

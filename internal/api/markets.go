package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// GetCoinMarkets fetches one page of coin market data and returns the
// undecoded body, so callers can archive and validate the exact payload.
func (c *Client) GetCoinMarkets(ctx context.Context, opts MarketsOptions) ([]byte, error) {
	query := url.Values{}
	query.Set("sparkline", "false")

	if opts.VsCurrency != "" {
		query.Set("vs_currency", opts.VsCurrency)
	}
	if opts.Order != "" {
		query.Set("order", opts.Order)
	}
	if opts.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}

	body, err := c.doRequest(ctx, "/coins/markets", query)
	if err != nil {
		return nil, fmt.Errorf("get coin markets: %w", err)
	}
	return body, nil
}

// Ping checks that the API is reachable.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	body, err := c.doRequest(ctx, "/ping", nil)
	if err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	var resp PingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal ping response: %w", err)
	}
	return &resp, nil
}

package api

// MarketsOptions selects one page of GET /coins/markets.
type MarketsOptions struct {
	VsCurrency string // e.g. "usd"
	Order      string // e.g. "market_cap_desc"
	PerPage    int
	Page       int
}

// PingResponse from GET /ping
type PingResponse struct {
	GeckoSays string `json:"gecko_says"`
}

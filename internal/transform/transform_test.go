package transform

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/crypto-etl/internal/model"
)

var runAt = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func bitcoin() model.RawRecord {
	return model.RawRecord{
		"id":               "bitcoin",
		"symbol":           "btc",
		"name":             "Bitcoin",
		"current_price":    json.Number("50000.0"),
		"market_cap":       json.Number("1000000000000"),
		"total_volume":     json.Number("50000000000"),
		"price_change_24h": json.Number("1500.0"),
		"market_cap_rank":  json.Number("1"),
		"image":            "https://example.com/btc.png",
	}
}

func TestTransform_Bitcoin(t *testing.T) {
	got, err := Transform([]model.RawRecord{bitcoin()}, runAt)
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := model.Snapshot{
		CoinID:          "bitcoin",
		Symbol:          "BTC",
		Name:            "Bitcoin",
		CurrentPrice:    50000.0,
		MarketCap:       1000000000000,
		TotalVolume:     50000000000,
		PriceChange24h:  1500.0,
		MarketCapRank:   1,
		VolatilityScore: 75000000000000.0,
		ExtractedAt:     runAt,
	}
	assert.Equal(t, want, got[0])
}

func TestTransform_NullDefaults(t *testing.T) {
	rec := model.RawRecord{
		"id":               "obscure",
		"symbol":           "obs",
		"name":             "Obscure",
		"current_price":    nil,
		"market_cap":       nil,
		"total_volume":     nil,
		"price_change_24h": nil,
		"market_cap_rank":  nil,
	}

	got, err := Transform([]model.RawRecord{rec}, runAt)
	require.NoError(t, err)
	require.Len(t, got, 1)

	s := got[0]
	assert.Equal(t, 0.0, s.CurrentPrice)
	assert.Equal(t, int64(0), s.MarketCap)
	assert.Equal(t, int64(0), s.TotalVolume)
	assert.Equal(t, 0.0, s.PriceChange24h)
	assert.Equal(t, model.UnrankedSentinel, s.MarketCapRank)
	assert.Equal(t, 0.0, s.VolatilityScore)
}

func TestTransform_AbsentOptionalFields(t *testing.T) {
	rec := model.RawRecord{
		"id":            "minimal",
		"symbol":        "min",
		"name":          "Minimal",
		"current_price": json.Number("1.25"),
		"market_cap":    json.Number("10"),
	}

	got, err := Transform([]model.RawRecord{rec}, runAt)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got[0].TotalVolume)
	assert.Equal(t, model.UnrankedSentinel, got[0].MarketCapRank)
	assert.Equal(t, 1.25, got[0].CurrentPrice)
}

func TestTransform_Volatility(t *testing.T) {
	tests := []struct {
		name   string
		change json.Number
		volume json.Number
		want   float64
	}{
		{"positive change", "2.5", "1000", 2500},
		{"negative change is absolute", "-2.5", "1000", 2500},
		{"zero change", "0", "99999999999", 0},
		{"zero volume", "-12.75", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := bitcoin()
			rec["price_change_24h"] = tt.change
			rec["total_volume"] = tt.volume

			got, err := Transform([]model.RawRecord{rec}, runAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got[0].VolatilityScore)
			assert.GreaterOrEqual(t, got[0].VolatilityScore, 0.0)
		})
	}
}

func TestTransform_CoercesNumericStrings(t *testing.T) {
	rec := bitcoin()
	rec["current_price"] = "50000.5"
	rec["market_cap"] = " 1000 "
	rec["total_volume"] = 12.9
	rec["market_cap_rank"] = "3"

	got, err := Transform([]model.RawRecord{rec}, runAt)
	require.NoError(t, err)

	assert.Equal(t, 50000.5, got[0].CurrentPrice)
	assert.Equal(t, int64(1000), got[0].MarketCap)
	assert.Equal(t, int64(12), got[0].TotalVolume, "fractions truncate")
	assert.Equal(t, 3, got[0].MarketCapRank)
}

func TestTransform_UniformTimestamp(t *testing.T) {
	raw := make([]model.RawRecord, 0, 20)
	for i := 0; i < 20; i++ {
		rec := bitcoin()
		rec["id"] = "coin-" + string(rune('a'+i))
		raw = append(raw, rec)
	}

	got, err := Transform(raw, runAt)
	require.NoError(t, err)
	require.Len(t, got, 20)
	for _, s := range got {
		assert.True(t, s.ExtractedAt.Equal(runAt), "%s stamped %v", s.CoinID, s.ExtractedAt)
	}
}

func TestTransform_FailsWholeBatch(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(model.RawRecord)
		wantMsg string
	}{
		{
			name:    "garbage price",
			mutate:  func(r model.RawRecord) { r["current_price"] = "n/a" },
			wantMsg: `field "current_price"`,
		},
		{
			name:    "boolean volume",
			mutate:  func(r model.RawRecord) { r["total_volume"] = true },
			wantMsg: `field "total_volume": unsupported type bool`,
		},
		{
			name:    "market cap overflow",
			mutate:  func(r model.RawRecord) { r["market_cap"] = json.Number("1e30") },
			wantMsg: "overflows int64",
		},
		{
			name:    "price beyond float64",
			mutate:  func(r model.RawRecord) { r["current_price"] = json.Number("1e400") },
			wantMsg: `field "current_price": overflows float64`,
		},
		{
			name: "price change beyond float64 with zero volume",
			mutate: func(r model.RawRecord) {
				r["price_change_24h"] = json.Number("-1e400")
				r["total_volume"] = json.Number("0")
			},
			wantMsg: `field "price_change_24h": overflows float64`,
		},
		{
			name:    "huge exponent",
			mutate:  func(r model.RawRecord) { r["market_cap"] = json.Number("1e10000000") },
			wantMsg: `field "market_cap": magnitude out of range`,
		},
		{
			name:    "tiny exponent",
			mutate:  func(r model.RawRecord) { r["current_price"] = "1e-10000000" },
			wantMsg: `field "current_price": magnitude out of range`,
		},
		{
			name: "volatility overflow",
			mutate: func(r model.RawRecord) {
				r["price_change_24h"] = json.Number("1e300")
				r["total_volume"] = json.Number("9000000000000000000")
			},
			wantMsg: "volatility score overflows float64",
		},
		{
			name:    "negative price",
			mutate:  func(r model.RawRecord) { r["current_price"] = json.Number("-1") },
			wantMsg: `field "current_price": negative value`,
		},
		{
			name:    "negative market cap",
			mutate:  func(r model.RawRecord) { r["market_cap"] = json.Number("-5") },
			wantMsg: `field "market_cap": negative value`,
		},
		{
			name:    "negative volume",
			mutate:  func(r model.RawRecord) { r["total_volume"] = "-5" },
			wantMsg: `field "total_volume": negative value`,
		},
		{
			name:    "negative rank",
			mutate:  func(r model.RawRecord) { r["market_cap_rank"] = json.Number("-2") },
			wantMsg: `field "market_cap_rank": -2 out of range`,
		},
		{
			name:    "empty id",
			mutate:  func(r model.RawRecord) { r["id"] = "" },
			wantMsg: `field "id" must be a non-empty string`,
		},
		{
			name:    "non-string name",
			mutate:  func(r model.RawRecord) { r["name"] = []any{"x"} },
			wantMsg: `field "name": expected string`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := bitcoin()
			bad["id"] = "bad"
			tt.mutate(bad)

			got, err := Transform([]model.RawRecord{bitcoin(), bad, bitcoin()}, runAt)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.Equal(t, model.KindTransform, model.KindOf(err))
			assert.Contains(t, err.Error(), "coin 1")
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestTransform_HugeExponentFailsFast(t *testing.T) {
	rec := bitcoin()
	rec["market_cap"] = json.Number("1e10000000")

	start := time.Now()
	_, err := Transform([]model.RawRecord{rec}, runAt)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Less(t, len(err.Error()), 200, "error message must not carry the raw number")
}

func TestTransform_ZeroRankIsUnranked(t *testing.T) {
	rec := bitcoin()
	rec["market_cap_rank"] = json.Number("0")

	got, err := Transform([]model.RawRecord{rec}, runAt)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.UnrankedSentinel, got[0].MarketCapRank)
}

func TestTransform_DoesNotMutateInput(t *testing.T) {
	rec := model.RawRecord{
		"id":            "x",
		"symbol":        "x",
		"name":          "X",
		"current_price": nil,
		"market_cap":    json.Number("5"),
	}
	before := len(rec)

	_, err := Transform([]model.RawRecord{rec}, runAt)
	require.NoError(t, err)

	assert.Len(t, rec, before)
	assert.Nil(t, rec["current_price"])
	assert.Equal(t, "x", rec["symbol"])
}

func TestTransform_Empty(t *testing.T) {
	got, err := Transform(nil, runAt)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNormalize_PassesOtherFieldsThrough(t *testing.T) {
	out := normalize(model.RawRecord{"id": "x", "ath": nil, "price_change_percentage_24h": nil})

	v, ok := out["ath"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, 0.0, out[FieldPriceChangePct24h])
	assert.Equal(t, int64(model.UnrankedSentinel), out[FieldMarketCapRank])
}

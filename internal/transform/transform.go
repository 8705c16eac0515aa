package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/crypto-etl/internal/model"
)

// Upstream field names.
const (
	FieldID                = "id"
	FieldSymbol            = "symbol"
	FieldName              = "name"
	FieldCurrentPrice      = "current_price"
	FieldMarketCap         = "market_cap"
	FieldTotalVolume       = "total_volume"
	FieldPriceChange24h    = "price_change_24h"
	FieldPriceChangePct24h = "price_change_percentage_24h"
	FieldMarketCapRank     = "market_cap_rank"
)

// nullDefaults is applied to absent or null fields. Fields not listed pass
// through unchanged, null included.
var nullDefaults = map[string]any{
	FieldCurrentPrice:      0.0,
	FieldPriceChange24h:    0.0,
	FieldPriceChangePct24h: 0.0,
	FieldMarketCap:         int64(0),
	FieldTotalVolume:       int64(0),
	FieldMarketCapRank:     int64(model.UnrankedSentinel),
}

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// maxExponent bounds the decimal exponent and digit count of any upstream
// number. float64 tops out near 1e308, so nothing valid comes close.
const maxExponent = 1000

// numbers holds a record's numeric fields after coercion.
type numbers struct {
	currentPrice   float64
	priceChange24h float64
	marketCap      int64
	totalVolume    int64
	marketCapRank  int
}

// Transform converts raw records into snapshots stamped with extractedAt.
// It fails as a whole if any record cannot be converted.
func Transform(raw []model.RawRecord, extractedAt time.Time) ([]model.Snapshot, error) {
	snapshots := make([]model.Snapshot, 0, len(raw))

	for i, rec := range raw {
		normalized := normalize(rec)

		nums, err := coerce(normalized)
		if err != nil {
			return nil, model.NewError(model.KindTransform, "transform",
				fmt.Errorf("coin %d (%s): %w", i, rec.ID(), err))
		}

		snap, err := project(normalized, nums)
		if err != nil {
			return nil, model.NewError(model.KindTransform, "transform",
				fmt.Errorf("coin %d (%s): %w", i, rec.ID(), err))
		}

		snap.VolatilityScore = Volatility(nums.priceChange24h, nums.totalVolume)
		if math.IsInf(snap.VolatilityScore, 0) {
			return nil, model.Errorf(model.KindTransform, "transform",
				"coin %d (%s): volatility score overflows float64", i, rec.ID())
		}
		snap.ExtractedAt = extractedAt
		snapshots = append(snapshots, snap)
	}

	return snapshots, nil
}

// Volatility is the absolute 24h price change weighted by traded volume.
func Volatility(priceChange24h float64, totalVolume int64) float64 {
	return math.Abs(priceChange24h) * float64(totalVolume)
}

// normalize returns a copy of rec with null defaults applied.
func normalize(rec model.RawRecord) model.RawRecord {
	out := maps.Clone(rec)
	if out == nil {
		out = make(model.RawRecord, len(nullDefaults))
	}
	for field, def := range nullDefaults {
		if v, ok := out[field]; !ok || v == nil {
			out[field] = def
		}
	}
	return out
}

func coerce(rec model.RawRecord) (numbers, error) {
	var (
		n   numbers
		err error
	)
	if n.currentPrice, err = floatField(rec, FieldCurrentPrice); err != nil {
		return n, err
	}
	if n.currentPrice < 0 {
		return n, fmt.Errorf("field %q: negative value", FieldCurrentPrice)
	}
	if n.priceChange24h, err = floatField(rec, FieldPriceChange24h); err != nil {
		return n, err
	}
	if n.marketCap, err = intField(rec, FieldMarketCap); err != nil {
		return n, err
	}
	if n.marketCap < 0 {
		return n, fmt.Errorf("field %q: negative value", FieldMarketCap)
	}
	if n.totalVolume, err = intField(rec, FieldTotalVolume); err != nil {
		return n, err
	}
	if n.totalVolume < 0 {
		return n, fmt.Errorf("field %q: negative value", FieldTotalVolume)
	}
	rank, err := intField(rec, FieldMarketCapRank)
	if err != nil {
		return n, err
	}
	switch {
	case rank == 0:
		// Upstream reports 0 for coins it has not ranked.
		rank = model.UnrankedSentinel
	case rank < 0 || rank > math.MaxInt32:
		return n, fmt.Errorf("field %q: %d out of range", FieldMarketCapRank, rank)
	}
	n.marketCapRank = int(rank)
	return n, nil
}

func project(rec model.RawRecord, n numbers) (model.Snapshot, error) {
	id, ok := rec[FieldID].(string)
	if !ok || id == "" {
		return model.Snapshot{}, fmt.Errorf("field %q must be a non-empty string", FieldID)
	}
	symbol, err := stringField(rec, FieldSymbol)
	if err != nil {
		return model.Snapshot{}, err
	}
	name, err := stringField(rec, FieldName)
	if err != nil {
		return model.Snapshot{}, err
	}

	return model.Snapshot{
		CoinID:         id,
		Symbol:         strings.ToUpper(symbol),
		Name:           name,
		CurrentPrice:   n.currentPrice,
		MarketCap:      n.marketCap,
		TotalVolume:    n.totalVolume,
		PriceChange24h: n.priceChange24h,
		MarketCapRank:  n.marketCapRank,
	}, nil
}

func floatField(rec model.RawRecord, field string) (float64, error) {
	d, err := toDecimal(rec[field])
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", field, err)
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("field %q: overflows float64", field)
	}
	return f, nil
}

// intField truncates fractional values toward zero.
func intField(rec model.RawRecord, field string) (int64, error) {
	d, err := toDecimal(rec[field])
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", field, err)
	}
	if d.GreaterThan(maxInt64) || d.LessThan(minInt64) {
		return 0, fmt.Errorf("field %q: overflows int64", field)
	}
	return d.IntPart(), nil
}

func stringField(rec model.RawRecord, field string) (string, error) {
	switch v := rec[field].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("field %q: expected string, got %T", field, v)
	}
}

// toDecimal converts a decoded JSON value. Textual numbers are bounded in
// magnitude before any arithmetic touches them.
func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return parseDecimal(n.String())
	case string:
		return parseDecimal(strings.TrimSpace(n))
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, fmt.Errorf("not finite: %v", n)
		}
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported type %T", v)
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.New("not numeric")
	}
	if e := d.Exponent(); e > maxExponent || e < -maxExponent || d.NumDigits() > maxExponent {
		return decimal.Decimal{}, errors.New("magnitude out of range")
	}
	return d, nil
}

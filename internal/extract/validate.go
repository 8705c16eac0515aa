package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rickgao/crypto-etl/internal/model"
)

// RequiredFields must be present (possibly null) on every coin object.
var RequiredFields = []string{"id", "symbol", "name", "current_price", "market_cap"}

// Validate decodes a /coins/markets payload and checks its shape. The whole
// payload is rejected if any single coin is malformed.
func Validate(body []byte) ([]model.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, model.NewError(model.KindValidation, "validate", fmt.Errorf("decode payload: %w", err))
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, model.Errorf(model.KindValidation, "validate", "unexpected data after JSON array")
	}

	items, ok := payload.([]any)
	if !ok {
		return nil, model.Errorf(model.KindValidation, "validate", "expected a JSON array of coins, got %s", jsonKind(payload))
	}
	if len(items) == 0 {
		return nil, model.Errorf(model.KindValidation, "validate", "no coins returned")
	}

	records := make([]model.RawRecord, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, model.Errorf(model.KindValidation, "validate", "coin %d: expected object, got %s", i, jsonKind(item))
		}
		rec := model.RawRecord(obj)
		for _, field := range RequiredFields {
			if _, present := rec[field]; !present {
				return nil, model.Errorf(model.KindValidation, "validate", "coin %d (%s): missing required field %q", i, rec.ID(), field)
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// symbolsSchema rejects structurally broken symbol files before any field
// level validation runs. Semantic checks (layer ordering, spread bounds) stay
// in SymbolConfig.validate.
const symbolsSchema = `{
  "type": "object",
  "required": ["symbols"],
  "properties": {
    "symbols": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["symbol", "max_inventory_notional", "strategy"],
        "properties": {
          "symbol": {"type": "string", "minLength": 1},
          "base_currency": {"type": "string"},
          "quote_currency": {"type": "string"},
          "tick_size": {"type": "number", "minimum": 0},
          "qty_step": {"type": "number", "minimum": 0},
          "min_order_value": {"type": "number", "minimum": 0},
          "leverage": {"type": "integer", "minimum": 0},
          "max_inventory_notional": {"type": "number", "exclusiveMinimum": 0},
          "strategy": {
            "type": "object",
            "required": ["base_spread_pct", "base_order_qty"],
            "properties": {
              "base_spread_pct": {"type": "number", "exclusiveMinimum": 0},
              "min_profit_spread_pct": {"type": "number", "minimum": 0},
              "base_order_qty": {"type": "number", "exclusiveMinimum": 0},
              "layers": {
                "type": "array",
                "items": {
                  "type": "object",
                  "properties": {
                    "offset_pct": {"type": "number", "minimum": 0},
                    "size_multiplier": {"type": "number", "exclusiveMinimum": 0}
                  }
                }
              }
            }
          },
          "risk": {"type": "object"}
        }
      }
    }
  }
}`

var compiledSymbolsSchema = jsonschema.MustCompileString("symbols.json", symbolsSchema)

func validateSymbolsDocument(doc any) error {
	// Round-trip through encoding/json so YAML scalar types line up with what
	// the schema validator expects.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("symbols document is not JSON-compatible: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(raw, &jsonDoc); err != nil {
		return fmt.Errorf("symbols document round-trip failed: %w", err)
	}
	if err := compiledSymbolsSchema.Validate(jsonDoc); err != nil {
		var ve *jsonschema.ValidationError
		if ok := asValidationError(err, &ve); ok {
			return fmt.Errorf("symbols file rejected by schema: %s", strings.TrimSpace(ve.Error()))
		}
		return fmt.Errorf("symbols file rejected by schema: %w", err)
	}
	return nil
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

package decision

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// decisionSchema 只做结构检查；动作取值和订单完整性由 Validate 处理，
// 以便把未知动作降级为 WAIT 而不是解析失败。
const decisionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "definitions": {
    "num": {"type": ["number", "string", "null"]},
    "strList": {"type": ["array", "string", "null"], "items": {"type": ["string", "number"]}}
  },
  "properties": {
    "action": {"type": ["string", "null"]},
    "next_run_at_utc": {"type": ["string", "null"]},
    "setup_id": {"type": ["string", "number", "null"]},
    "levels_update": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": ["string", "null"]},
          "price": {"$ref": "#/definitions/num"},
          "zone_top": {"$ref": "#/definitions/num"},
          "zone_bottom": {"$ref": "#/definitions/num"},
          "timeframe": {"type": ["string", "null"]},
          "metadata": {"type": ["object", "null"]}
        }
      }
    },
    "order_intent": {
      "type": ["object", "null"],
      "properties": {
        "type": {"type": ["string", "null"]},
        "price": {"$ref": "#/definitions/num"},
        "stop_loss": {"$ref": "#/definitions/num"},
        "take_profit": {"$ref": "#/definitions/num"},
        "risk_pct": {"$ref": "#/definitions/num"},
        "lot_size": {"$ref": "#/definitions/num"}
      }
    },
    "reason_codes": {"$ref": "#/definitions/strList"},
    "state_update": {"type": ["object", "null"]},
    "next_requested_timeframes": {"$ref": "#/definitions/strList"},
    "summary": {"type": ["string", "null"]},
    "key_points": {"$ref": "#/definitions/strList"}
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("decision.json", strings.NewReader(decisionSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("decision.json")
	})
	return schemaCompiled, schemaErr
}

// CheckSchema validates a decoded JSON document against the decision shape.
func CheckSchema(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile decision schema: %w", err)
	}
	return s.Validate(doc)
}

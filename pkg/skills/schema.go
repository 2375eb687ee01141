// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"fmt"
	"math"
	"sort"
)

// ValidateArgs checks args against a JSON-Schema-subset object schema:
// "required", per-property "type" (string, number, integer, boolean, object,
// array), "minimum" on numeric properties, and "additionalProperties": false.
// It returns one message per violation so a caller can report every problem
// at once. A nil or empty schema accepts anything.
func ValidateArgs(schema, args map[string]any) []string {
	if len(schema) == 0 {
		return nil
	}
	var details []string
	properties, _ := schema["properties"].(map[string]any)

	for _, name := range requiredFields(schema) {
		if _, ok := args[name]; !ok {
			details = append(details, fmt.Sprintf("missing required argument %q", name))
		}
	}

	allowExtra := additionalAllowed(schema)
	for _, key := range sortedKeys(args) {
		raw, declared := properties[key]
		if !declared {
			if !allowExtra {
				details = append(details, fmt.Sprintf("unexpected argument %q", key))
			}
			continue
		}
		prop, _ := raw.(map[string]any)
		if prop == nil {
			continue
		}
		value := args[key]
		if typeName, _ := prop["type"].(string); typeName != "" && !matchesType(typeName, value) {
			details = append(details, fmt.Sprintf("argument %q must be of type %s", key, typeName))
			continue
		}
		if min, ok := numericValue(prop["minimum"]); ok {
			if n, isNum := numericValue(value); isNum && n < min {
				details = append(details, fmt.Sprintf("argument %q must be >= %v", key, min))
			}
		}
	}
	return details
}

func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, item := range req {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// additionalAllowed follows the JSON Schema default: extra properties are
// accepted unless the schema sets "additionalProperties": false.
func additionalAllowed(schema map[string]any) bool {
	if v, ok := schema["additionalProperties"].(bool); ok {
		return v
	}
	return true
}

func matchesType(name string, value any) bool {
	switch name {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch n := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		case float32:
			return float64(n) == math.Trunc(float64(n))
		default:
			return false
		}
	case "number":
		_, ok := numericValue(value)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		// Unknown type names are not enforced.
		return true
	}
}

func numericValue(value any) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

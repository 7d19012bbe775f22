package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/aalvaropc/vgate/internal/domain"
)

// Select evaluates a JSONPath expression against the JSON form of a stored run
// and renders the match as text. Scalars print bare; objects and multi-element
// arrays print as compact JSON.
//
//	$.verdict
//	$.cells[?(@.status == "failed")].cell.toolchain
func Select(run domain.GateRun, expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("query: empty jsonpath expression")
	}

	doc, err := toDocument(run)
	if err != nil {
		return "", fmt.Errorf("query: %w", err)
	}

	val, err := jsonpath.Get(expr, doc)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", expr, err)
	}
	if isEmptyValue(val) {
		return "", fmt.Errorf("query %s: no value found", expr)
	}

	return toString(val)
}

// toDocument round-trips through encoding/json so the expression sees the same
// field names as the stored file.
func toDocument(run domain.GateRun) (any, error) {
	b, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func toString(v any) (string, error) {
	if arr, ok := v.([]any); ok {
		if len(arr) == 1 {
			return toString(arr[0])
		}
		b, err := json.Marshal(arr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return fmt.Sprint(t), nil
	case bool:
		return fmt.Sprint(t), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

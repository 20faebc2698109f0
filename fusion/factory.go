package fusion

import (
	"errors"
	"strconv"
	"strings"
)

// NewStrategy constructs a strategy by name. It returns the strategy and a sanitized param map.
func NewStrategy(name string, params map[string]any) (Strategy, map[string]any, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		normalized = "rrf"
	}
	if params == nil {
		params = map[string]any{}
	}

	switch normalized {
	case "rrf":
		k := lookupInt(params, "k")
		if k <= 0 {
			k = 60
		}
		return NewRRFStrategy(k), map[string]any{"k": k}, nil
	case "weighted":
		weights := parseStringFloatMap(params["weights"])
		return NewWeightedStrategy(weights), map[string]any{"weights": weights}, nil
	case "linear":
		weights := parseFloatSlice(params["weights"])
		return NewLinearCombinationStrategy(weights), map[string]any{"weights": weights}, nil
	case "distribution":
		baseName := "rrf"
		if v, ok := params["base"].(string); ok && v != "" {
			baseName = v
		}
		base, _, err := NewStrategy(baseName, params)
		if err != nil {
			return nil, nil, err
		}
		return NewDistributionBasedStrategy(base), params, nil
	default:
		return nil, nil, errors.New("unsupported fusion strategy: " + normalized)
	}
}

func lookupInt(params map[string]any, key string) int {
	if params == nil {
		return 0
	}
	switch v := params[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func parseStringFloatMap(v any) map[string]float64 {
	out := map[string]float64{}
	switch m := v.(type) {
	case map[string]float64:
		return m
	case map[string]any:
		for k, raw := range m {
			if f, ok := toFloat(raw); ok {
				out[k] = f
			}
		}
	}
	return out
}

func parseFloatSlice(v any) []float64 {
	switch s := v.(type) {
	case []float64:
		return s
	case []any:
		out := make([]float64, 0, len(s))
		for _, raw := range s {
			if f, ok := toFloat(raw); ok {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	case string:
		if parsed, err := strconv.ParseFloat(f, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

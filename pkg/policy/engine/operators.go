package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// evaluateOperator applies c's operator to the extracted field value.
func evaluateOperator(c *Condition, actual string) bool {
	switch c.Operator {
	case OpEquals:
		return evaluateEqual(actual, c.Value)
	case OpContains:
		return strings.Contains(actual, stringify(c.Value))
	case OpRegex:
		return c.re != nil && c.re.MatchString(actual)
	case OpGreaterThan:
		n, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		return err == nil && n > c.number
	case OpLessThan:
		n, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		return err == nil && n < c.number
	default:
		return false
	}
}

// evaluateEqual compares numerically when both sides are numbers and as
// strings otherwise.
func evaluateEqual(actual string, expected any) bool {
	if expectedNum, ok := toFloat64(expected); ok {
		if actualNum, err := strconv.ParseFloat(strings.TrimSpace(actual), 64); err == nil {
			return actualNum == expectedNum
		}
	}
	return actual == stringify(expected)
}

// toFloat64 converts numeric values, including numeric strings, to float64.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// stringify renders a value the way it is compared against field values.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

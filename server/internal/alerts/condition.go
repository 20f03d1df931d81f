package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kalfix/kalfix/server/internal/metrics"
)

// condition is a parsed "field operator value" rule expression.
type condition struct {
	field     string
	op        string
	threshold float64
}

// parseCondition parses a rule condition string.
//
// Supported expressions (field operator value):
//
//	loss_rate > 5
//	efficiency < 80
//	throughput_per_hour < 100
//	gross < 500
//	net < 400
//	loss >= 50
//
// Operators: > >= < <= ==.
func parseCondition(cond string) (condition, error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	c := condition{field: parts[0], op: parts[1]}
	if _, ok := fields[c.field]; !ok {
		return condition{}, fmt.Errorf("condition %q: unknown field %q", cond, c.field)
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", cond, c.op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: threshold: %w", cond, err)
	}
	c.threshold = v
	return c, nil
}

// fields maps a field name to its value in the shift metrics. The boolean
// is false when the value is undefined (efficiency without a goal); such a
// condition never fires.
var fields = map[string]func(m metrics.ShiftMetrics) (float64, bool){
	"loss_rate":           func(m metrics.ShiftMetrics) (float64, bool) { return m.LossRate, true },
	"throughput_per_hour": func(m metrics.ShiftMetrics) (float64, bool) { return m.ThroughputPerHour, true },
	"gross":               func(m metrics.ShiftMetrics) (float64, bool) { return float64(m.Gross), true },
	"net":                 func(m metrics.ShiftMetrics) (float64, bool) { return float64(m.Net), true },
	"loss":                func(m metrics.ShiftMetrics) (float64, bool) { return float64(m.Loss), true },
	"efficiency": func(m metrics.ShiftMetrics) (float64, bool) {
		if m.Efficiency == nil {
			return 0, false
		}
		return *m.Efficiency, true
	},
}

// eval returns (fires, triggering value).
func (c condition) eval(m metrics.ShiftMetrics) (bool, float64) {
	v, ok := fields[c.field](m)
	if !ok {
		return false, 0
	}
	return compareFloat(v, c.op, c.threshold), v
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}

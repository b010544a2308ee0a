package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

// ErrUnknownOperator is returned when a check names an operator outside the fixed set.
var ErrUnknownOperator = errors.New("unknown operator")

// Operator is the closed set of comparison operators a check may use.
type Operator int

const (
	OpEquals Operator = iota + 1
	OpIn
	OpInSet
	OpGT
	OpGTE
	OpRegex
	OpNotRegex
	OpBetweenHours
)

var operatorNames = map[Operator]string{
	OpEquals:       "equals",
	OpIn:           "in",
	OpInSet:        "in_set",
	OpGT:           "gt",
	OpGTE:          "gte",
	OpRegex:        "regex",
	OpNotRegex:     "not_regex",
	OpBetweenHours: "between_hours",
}

func (o Operator) String() string {
	if s, ok := operatorNames[o]; ok {
		return s
	}
	return "Operator(" + strconv.Itoa(int(o)) + ")"
}

// ParseOperator maps an operator name to its Operator. Matching is case-insensitive.
func ParseOperator(s string) (Operator, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for op, n := range operatorNames {
		if n == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownOperator, s)
}

// Check is the authored form of one leaf condition.
type Check struct {
	Field string `yaml:"field" json:"field"`
	Op    string `yaml:"op" json:"op"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// Condition is a compiled Check. It is immutable and safe for concurrent use.
type Condition struct {
	Field string
	Op    Operator

	text  string
	set   []string
	num   float64
	re    *regexp.Regexp
	start int
	end   int
}

// CompileCheck validates a Check and prepares it for evaluation.
func CompileCheck(c Check) (Condition, error) {
	op, err := ParseOperator(c.Op)
	if err != nil {
		return Condition{}, err
	}
	cond := Condition{Field: strings.TrimSpace(c.Field), Op: op}
	if cond.Field == "" {
		if op != OpBetweenHours {
			return Condition{}, fmt.Errorf("%s: field is required", op)
		}
		cond.Field = "timestamp"
	}

	switch op {
	case OpEquals:
		if c.Value == nil {
			return Condition{}, fmt.Errorf("equals: value is required")
		}
		cond.text = toText(c.Value)
	case OpIn, OpInSet:
		items, ok := toList(c.Value)
		if !ok {
			return Condition{}, fmt.Errorf("%s: value must be a list", op)
		}
		for _, it := range items {
			cond.set = append(cond.set, toText(it))
		}
	case OpGT, OpGTE:
		n, ok := toFloat(c.Value)
		if !ok {
			return Condition{}, fmt.Errorf("%s: value must be numeric, got %v", op, c.Value)
		}
		cond.num = n
	case OpRegex, OpNotRegex:
		pat, ok := c.Value.(string)
		if !ok {
			return Condition{}, fmt.Errorf("%s: value must be a pattern string", op)
		}
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return Condition{}, fmt.Errorf("%s: %w", op, err)
		}
		cond.re = re
	case OpBetweenHours:
		start, end, err := hourWindow(c.Value)
		if err != nil {
			return Condition{}, err
		}
		cond.start, cond.end = start, end
	}
	return cond, nil
}

// Eval reports whether the event satisfies the condition.
// Missing values take the operator's default: 0 for gt/gte, "" for regex.
func (c Condition) Eval(ev model.LogEvent) bool {
	v, present := ev.Lookup(c.Field)

	switch c.Op {
	case OpEquals:
		return present && strings.EqualFold(toText(v), c.text)
	case OpIn, OpInSet:
		if !present {
			return false
		}
		got := toText(v)
		for _, s := range c.set {
			if strings.EqualFold(got, s) {
				return true
			}
		}
		return false
	case OpGT, OpGTE:
		n := 0.0
		if present {
			n, _ = toFloat(v)
		}
		if c.Op == OpGT {
			return n > c.num
		}
		return n >= c.num
	case OpRegex, OpNotRegex:
		s := ""
		if present {
			s = toText(v)
		}
		hit := c.re.MatchString(s)
		if c.Op == OpRegex {
			return hit
		}
		return !hit
	case OpBetweenHours:
		if !present {
			return false
		}
		h, ok := hourOf(toText(v))
		if !ok {
			return false
		}
		return InWindow(h, c.start, c.end)
	}
	return false
}

// InWindow reports whether hour falls in [start, end). When start > end
// the window wraps midnight.
func InWindow(hour, start, end int) bool {
	if start <= end {
		return start <= hour && hour < end
	}
	return hour >= start || hour < end
}

func hourWindow(v any) (int, int, error) {
	items, ok := toList(v)
	if !ok || len(items) != 2 {
		return 0, 0, fmt.Errorf("between_hours: value must be [start, end]")
	}
	var out [2]int
	for i, it := range items {
		f, ok := toFloat(it)
		if !ok || f != float64(int(f)) || f < 0 || f > 24 {
			return 0, 0, fmt.Errorf("between_hours: %v is not an hour in 0..24", it)
		}
		out[i] = int(f)
	}
	return out[0], out[1], nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// hourOf extracts the UTC hour of an ISO-8601 timestamp. Timestamps without
// an offset are read as UTC.
func hourOf(ts string) (int, bool) {
	ts = strings.TrimSpace(ts)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC().Hour(), true
		}
	}
	return 0, false
}

func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

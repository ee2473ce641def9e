package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/crm-pipeline/internal/model"
)

type valueKind int

const (
	kindNumber valueKind = iota
	kindDate
)

type fieldSpec struct {
	column   string
	kind     valueKind
	nullable bool
}

var fields = map[Field]fieldSpec{
	FieldTotalSpends: {column: "total_spends", kind: kindNumber},
	FieldVisits:      {column: "visits", kind: kindNumber},
	FieldLastVisit:   {column: "last_visit", kind: kindDate, nullable: true},
}

// listArity marks operators taking one or more operands.
const listArity = -1

// arity is the number of literal operands each operator takes.
var arity = map[Operator]int{
	OpEqual:        1,
	OpNotEqual:     1,
	OpLess:         1,
	OpGreater:      1,
	OpLessEqual:    1,
	OpGreaterEqual: 1,
	OpBetween:      2,
	OpNotBetween:   2,
	OpIn:           listArity,
	OpNotIn:        listArity,
	OpNull:         0,
	OpNotNull:      0,
}

// resolved is a Condition with its field looked up and its literal coerced.
type resolved struct {
	spec fieldSpec
	op   Operator
	nums []float64
	days []time.Time
}

func resolve(c *Condition, path string) (*resolved, error) {
	if c == nil {
		return nil, newError(path, ErrInvalidNode, "nil condition")
	}
	spec, ok := fields[c.Field]
	if !ok {
		return nil, newError(path, ErrUnknownField, "%q", c.Field)
	}
	n, ok := arity[c.Operator]
	if !ok {
		return nil, newError(path, ErrUnknownOperator, "%q", c.Operator)
	}

	var raw []any
	switch n {
	case 0:
	case 1:
		raw = []any{c.Value}
	case 2:
		pair, err := splitPair(c.Value)
		if err != nil {
			return nil, newError(path, ErrInvalidValue, "%s on %s: %v", c.Operator, c.Field, err)
		}
		raw = pair
	case listArity:
		list, err := splitList(c.Value)
		if err != nil {
			return nil, newError(path, ErrInvalidValue, "%s on %s: %v", c.Operator, c.Field, err)
		}
		if len(list) == 0 {
			return nil, newError(path, ErrInvalidValue, "%s on %s: empty list", c.Operator, c.Field)
		}
		raw = list
	}

	r := &resolved{spec: spec, op: c.Operator}
	for _, v := range raw {
		switch spec.kind {
		case kindNumber:
			f, err := toNumber(v)
			if err != nil {
				return nil, newError(path, ErrInvalidValue, "%s: %v", c.Field, err)
			}
			r.nums = append(r.nums, f)
		case kindDate:
			d, err := toDay(v)
			if err != nil {
				return nil, newError(path, ErrInvalidValue, "%s: %v", c.Field, err)
			}
			r.days = append(r.days, d)
		}
	}
	return r, nil
}

func toNumber(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%v (%T) is not a number", v, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

func toDay(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return truncateDay(d), nil
	case string:
		t, err := model.ParseDay(d)
		if err != nil {
			return time.Time{}, err
		}
		return truncateDay(t), nil
	default:
		return time.Time{}, fmt.Errorf("%v (%T) is not a date", v, v)
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// splitPair accepts [lo, hi] in any slice form or the "lo,hi" string form.
func splitPair(v any) ([]any, error) {
	out, err := splitList(v)
	if err != nil {
		return nil, err
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("expected 2 values, got %d", len(out))
	}
	return out, nil
}

// splitList accepts a slice or a comma separated string. Blank string
// entries are skipped.
func splitList(v any) ([]any, error) {
	var out []any
	switch p := v.(type) {
	case []any:
		out = p
	case []string:
		for _, s := range p {
			out = append(out, s)
		}
	case []float64:
		for _, f := range p {
			out = append(out, f)
		}
	case []int:
		for _, i := range p {
			out = append(out, i)
		}
	case string:
		for _, s := range strings.Split(p, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	return out, nil
}

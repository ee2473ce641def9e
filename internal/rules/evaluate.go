package rules

import (
	"time"

	"github.com/unclebandit/crm-pipeline/internal/model"
)

// Evaluate reports whether c satisfies n. A missing lastVisit fails every
// comparison, including != and notBetween; only null matches it.
func Evaluate(n Node, c model.Customer) (bool, error) {
	if err := Validate(n); err != nil {
		return false, err
	}
	return evaluate(n, &c, "$")
}

// Filter keeps the customers matching n, preserving order.
func Filter(n Node, customers []model.Customer) ([]model.Customer, error) {
	if err := Validate(n); err != nil {
		return nil, err
	}
	out := make([]model.Customer, 0, len(customers))
	for i := range customers {
		c := customers[i]
		ok, err := evaluate(n, &c, "$")
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func evaluate(n Node, c *model.Customer, path string) (bool, error) {
	switch v := n.(type) {
	case Group:
		return evaluateGroup(&v, c, path)
	case *Group:
		return evaluateGroup(v, c, path)
	case Condition:
		return evaluateCondition(&v, c, path)
	case *Condition:
		return evaluateCondition(v, c, path)
	default:
		return false, newError(path, ErrInvalidNode, "%T", n)
	}
}

func evaluateGroup(g *Group, c *model.Customer, path string) (bool, error) {
	if g == nil {
		return false, newError(path, ErrInvalidNode, "nil group")
	}
	var result bool
	switch g.Combinator {
	case And:
		result = true
		for i, child := range g.Rules {
			ok, err := evaluate(child, c, childPath(path, i))
			if err != nil {
				return false, err
			}
			if !ok {
				result = false
				break
			}
		}
	case Or:
		result = len(g.Rules) == 0
		for i, child := range g.Rules {
			ok, err := evaluate(child, c, childPath(path, i))
			if err != nil {
				return false, err
			}
			if ok {
				result = true
				break
			}
		}
	default:
		return false, newError(path, ErrUnknownCombinator, "%q", g.Combinator)
	}
	if g.Not {
		return !result, nil
	}
	return result, nil
}

func evaluateCondition(cond *Condition, c *model.Customer, path string) (bool, error) {
	r, err := resolve(cond, path)
	if err != nil {
		return false, err
	}

	switch cond.Field {
	case FieldTotalSpends:
		return compareNumber(r, c.TotalSpends, true), nil
	case FieldVisits:
		return compareNumber(r, float64(c.Visits), true), nil
	case FieldLastVisit:
		if c.LastVisit == nil {
			return compareDay(r, time.Time{}, false), nil
		}
		return compareDay(r, truncateDay(*c.LastVisit), true), nil
	}
	return false, newError(path, ErrUnknownField, "%q", cond.Field)
}

func compareNumber(r *resolved, v float64, present bool) bool {
	switch r.op {
	case OpNull:
		return !present
	case OpNotNull:
		return present
	}
	if !present {
		return false
	}
	switch r.op {
	case OpEqual:
		return v == r.nums[0]
	case OpNotEqual:
		return v != r.nums[0]
	case OpLess:
		return v < r.nums[0]
	case OpGreater:
		return v > r.nums[0]
	case OpLessEqual:
		return v <= r.nums[0]
	case OpGreaterEqual:
		return v >= r.nums[0]
	case OpBetween:
		return r.nums[0] <= v && v <= r.nums[1]
	case OpNotBetween:
		return v < r.nums[0] || v > r.nums[1]
	case OpIn, OpNotIn:
		found := false
		for _, n := range r.nums {
			if v == n {
				found = true
				break
			}
		}
		return found == (r.op == OpIn)
	}
	return false
}

func compareDay(r *resolved, v time.Time, present bool) bool {
	switch r.op {
	case OpNull:
		return !present
	case OpNotNull:
		return present
	}
	if !present {
		return false
	}
	switch r.op {
	case OpEqual:
		return v.Equal(r.days[0])
	case OpNotEqual:
		return !v.Equal(r.days[0])
	case OpLess:
		return v.Before(r.days[0])
	case OpGreater:
		return v.After(r.days[0])
	case OpLessEqual:
		return !v.After(r.days[0])
	case OpGreaterEqual:
		return !v.Before(r.days[0])
	case OpBetween:
		return !v.Before(r.days[0]) && !v.After(r.days[1])
	case OpNotBetween:
		return v.Before(r.days[0]) || v.After(r.days[1])
	case OpIn, OpNotIn:
		found := false
		for _, d := range r.days {
			if v.Equal(d) {
				found = true
				break
			}
		}
		return found == (r.op == OpIn)
	}
	return false
}

package rules

import (
	"fmt"
	"strings"
)

var sqlOperators = map[Operator]string{
	OpEqual:        "=",
	OpNotEqual:     "<>",
	OpLess:         "<",
	OpGreater:      ">",
	OpLessEqual:    "<=",
	OpGreaterEqual: ">=",
	OpBetween:      "BETWEEN",
	OpNotBetween:   "NOT BETWEEN",
	OpIn:           "IN",
	OpNotIn:        "NOT IN",
}

// ToSQL translates n into a Postgres boolean expression over the customers
// table. Placeholders are numbered from firstArg. Comparisons on nullable
// columns are wrapped in COALESCE(..., FALSE) so that NOT behaves the way
// Evaluate does.
func ToSQL(n Node, firstArg int) (string, []any, error) {
	if err := Validate(n); err != nil {
		return "", nil, err
	}
	if firstArg < 1 {
		firstArg = 1
	}
	b := &sqlBuilder{next: firstArg}
	clause, err := b.node(n, "$")
	if err != nil {
		return "", nil, err
	}
	return clause, b.args, nil
}

type sqlBuilder struct {
	args []any
	next int
}

func (b *sqlBuilder) bind(v any, cast string) string {
	b.args = append(b.args, v)
	p := fmt.Sprintf("$%d::%s", b.next, cast)
	b.next++
	return p
}

func (b *sqlBuilder) node(n Node, path string) (string, error) {
	switch v := n.(type) {
	case Group:
		return b.group(&v, path)
	case *Group:
		return b.group(v, path)
	case Condition:
		return b.condition(&v, path)
	case *Condition:
		return b.condition(v, path)
	default:
		return "", newError(path, ErrInvalidNode, "%T", n)
	}
}

func (b *sqlBuilder) group(g *Group, path string) (string, error) {
	var joiner string
	switch g.Combinator {
	case And:
		joiner = " AND "
	case Or:
		joiner = " OR "
	default:
		return "", newError(path, ErrUnknownCombinator, "%q", g.Combinator)
	}

	clause := "TRUE"
	if len(g.Rules) > 0 {
		parts := make([]string, 0, len(g.Rules))
		for i, child := range g.Rules {
			part, err := b.node(child, childPath(path, i))
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		clause = "(" + strings.Join(parts, joiner) + ")"
	}
	if g.Not {
		return "NOT " + clause, nil
	}
	return clause, nil
}

func (b *sqlBuilder) condition(c *Condition, path string) (string, error) {
	r, err := resolve(c, path)
	if err != nil {
		return "", err
	}
	col := r.spec.column

	switch r.op {
	case OpNull:
		return col + " IS NULL", nil
	case OpNotNull:
		return col + " IS NOT NULL", nil
	}

	var operands []string
	switch r.spec.kind {
	case kindNumber:
		for _, f := range r.nums {
			operands = append(operands, b.bind(f, "double precision"))
		}
	case kindDate:
		for _, d := range r.days {
			operands = append(operands, b.bind(d.Format("2006-01-02"), "date"))
		}
	}

	op, ok := sqlOperators[r.op]
	if !ok {
		return "", newError(path, ErrUnknownOperator, "%q", r.op)
	}
	var expr string
	if r.op == OpIn || r.op == OpNotIn {
		expr = fmt.Sprintf("%s %s (%s)", col, op, strings.Join(operands, ", "))
	} else if len(operands) == 2 {
		expr = fmt.Sprintf("%s %s %s AND %s", col, op, operands[0], operands[1])
	} else {
		expr = fmt.Sprintf("%s %s %s", col, op, operands[0])
	}
	if r.spec.nullable {
		return "COALESCE(" + expr + ", FALSE)", nil
	}
	return expr, nil
}

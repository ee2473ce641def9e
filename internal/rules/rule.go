// Package rules models the audience predicate a campaign is built from.
//
// A rule tree is either a Group, which combines child nodes with "and" or
// "or", or a Condition, which compares one customer field against a literal.
// Trees are decoded from the query-builder JSON shape with Parse, checked with
// Validate, evaluated in memory with Evaluate and translated to a Postgres
// WHERE clause with ToSQL. All three walk the same variant and reject unknown
// fields, operators and combinators with a *Error.
package rules

import (
	"errors"
	"fmt"
)

type Field string

const (
	FieldTotalSpends Field = "totalSpends"
	FieldVisits      Field = "visits"
	FieldLastVisit   Field = "lastVisit"
)

type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
	OpBetween      Operator = "between"
	OpNotBetween   Operator = "notBetween"
	OpIn           Operator = "in"
	OpNotIn        Operator = "notIn"
	OpNull         Operator = "null"
	OpNotNull      Operator = "notNull"
)

type Combinator string

const (
	And Combinator = "and"
	Or  Combinator = "or"
)

// maxDepth bounds group nesting.
const maxDepth = 32

// Node is either a Group or a Condition.
type Node interface {
	node()
}

// Group combines its children. An empty group matches every customer.
type Group struct {
	Combinator Combinator
	Not        bool
	Rules      []Node
}

// Condition compares a single customer field against Value.
type Condition struct {
	Field    Field
	Operator Operator
	Value    any
}

func (Group) node()     {}
func (Condition) node() {}

var (
	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownOperator   = errors.New("unknown operator")
	ErrUnknownCombinator = errors.New("unknown combinator")
	ErrInvalidValue      = errors.New("invalid value")
	ErrInvalidNode       = errors.New("invalid rule node")
)

// Error locates a rule problem inside the tree.
type Error struct {
	Path   string
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("rules: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("rules: %s: %v: %s", e.Path, e.Err, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(path string, kind error, format string, args ...any) *Error {
	return &Error{Path: path, Err: kind, Detail: fmt.Sprintf(format, args...)}
}

func childPath(path string, i int) string {
	return fmt.Sprintf("%s.rules[%d]", path, i)
}

// Validate walks the whole tree and returns the first problem found.
func Validate(n Node) error {
	return validate(n, "$", 0)
}

func validate(n Node, path string, depth int) error {
	switch v := n.(type) {
	case Group:
		return validateGroup(&v, path, depth)
	case *Group:
		return validateGroup(v, path, depth)
	case Condition:
		_, err := resolve(&v, path)
		return err
	case *Condition:
		_, err := resolve(v, path)
		return err
	default:
		return newError(path, ErrInvalidNode, "%T", n)
	}
}

func validateGroup(g *Group, path string, depth int) error {
	if g == nil {
		return newError(path, ErrInvalidNode, "nil group")
	}
	if depth > maxDepth {
		return newError(path, ErrInvalidNode, "nesting deeper than %d", maxDepth)
	}
	if g.Combinator != And && g.Combinator != Or {
		return newError(path, ErrUnknownCombinator, "%q", g.Combinator)
	}
	for i, child := range g.Rules {
		if err := validate(child, childPath(path, i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

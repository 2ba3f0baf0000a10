// Package condition implements the boolean condition trees used by action
// preconditions, effect guards and dependency constraints, and their
// three-valued evaluation against attributes whose values may be uncertain.
package condition

import (
	"fmt"
	"strings"

	"github.com/nvandessel/qualsim/internal/attribute"
)

// Operator is a comparison applied by a leaf condition.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpGT        Operator = "gt"
	OpGTE       Operator = "gte"
	OpLT        Operator = "lt"
	OpLTE       Operator = "lte"
)

// ParseOperator accepts the operator names and their symbols ("==", ">=").
func ParseOperator(s string) (Operator, error) {
	switch strings.TrimSpace(s) {
	case "equals", "eq", "==":
		return OpEquals, nil
	case "not_equals", "ne", "!=":
		return OpNotEquals, nil
	case "in":
		return OpIn, nil
	case "not_in":
		return OpNotIn, nil
	case "gt", ">":
		return OpGT, nil
	case "gte", ">=":
		return OpGTE, nil
	case "lt", "<":
		return OpLT, nil
	case "lte", "<=":
		return OpLTE, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// Negate returns the operator whose truth value is always the opposite.
func (o Operator) Negate() Operator {
	switch o {
	case OpEquals:
		return OpNotEquals
	case OpNotEquals:
		return OpEquals
	case OpIn:
		return OpNotIn
	case OpNotIn:
		return OpIn
	case OpGT:
		return OpLTE
	case OpGTE:
		return OpLT
	case OpLT:
		return OpGTE
	case OpLTE:
		return OpGT
	default:
		return o
	}
}

// Symbol is the operator's rendering in failure messages.
func (o Operator) Symbol() string {
	switch o {
	case OpEquals:
		return "=="
	case OpNotEquals:
		return "!="
	case OpIn:
		return "in"
	case OpNotIn:
		return "not in"
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	default:
		return string(o)
	}
}

func (o Operator) multiValued() bool {
	return o == OpIn || o == OpNotIn
}

// Kind distinguishes leaves from the logical combinators.
type Kind string

const (
	KindAttr Kind = "attr"
	KindAnd  Kind = "and"
	KindOr   Kind = "or"
	KindNot  Kind = "not"
)

// Condition is a node of a condition tree. Leaves compare one attribute with
// one or more levels; and/or/not combine children.
type Condition struct {
	Kind     Kind
	Target   attribute.Path
	Operator Operator
	Values   []string
	Children []Condition
}

// Attr builds a leaf condition.
func Attr(target attribute.Path, op Operator, values ...string) Condition {
	return Condition{Kind: KindAttr, Target: target, Operator: op, Values: values}
}

// And builds a conjunction. An empty conjunction is true.
func And(children ...Condition) Condition {
	return Condition{Kind: KindAnd, Children: children}
}

// Or builds a disjunction. An empty disjunction is false.
func Or(children ...Condition) Condition {
	return Condition{Kind: KindOr, Children: children}
}

// Not negates a condition.
func Not(child Condition) Condition {
	return Condition{Kind: KindNot, Children: []Condition{child}}
}

// Validate checks the shape of the tree: leaves need a target and the right
// number of values for their operator, not has exactly one child.
func (c Condition) Validate() error {
	switch c.Kind {
	case KindAttr:
		if c.Target.Attribute == "" {
			return fmt.Errorf("condition target is required")
		}
		switch {
		case c.Operator.multiValued():
			if len(c.Values) == 0 {
				return fmt.Errorf("%s %s: at least one value is required", c.Target, c.Operator)
			}
		case c.Operator.Negate() == c.Operator:
			return fmt.Errorf("%s: unknown operator %q", c.Target, c.Operator)
		default:
			if len(c.Values) != 1 {
				return fmt.Errorf("%s %s: exactly one value is required, got %d", c.Target, c.Operator, len(c.Values))
			}
		}
	case KindAnd, KindOr:
		for i, ch := range c.Children {
			if err := ch.Validate(); err != nil {
				return fmt.Errorf("%s[%d]: %w", c.Kind, i, err)
			}
		}
	case KindNot:
		if len(c.Children) != 1 {
			return fmt.Errorf("not: exactly one child is required, got %d", len(c.Children))
		}
		return c.Children[0].Validate()
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	return nil
}

// Leaves returns every leaf in depth-first order.
func (c Condition) Leaves() []Condition {
	if c.Kind == KindAttr {
		return []Condition{c}
	}
	var out []Condition
	for _, ch := range c.Children {
		out = append(out, ch.Leaves()...)
	}
	return out
}

func (c Condition) String() string {
	switch c.Kind {
	case KindAttr:
		if c.Operator.multiValued() {
			return fmt.Sprintf("%s %s {%s}", c.Target, c.Operator.Symbol(), strings.Join(c.Values, ", "))
		}
		return fmt.Sprintf("%s %s %s", c.Target, c.Operator.Symbol(), strings.Join(c.Values, ", "))
	case KindNot:
		if len(c.Children) == 1 {
			return "not (" + c.Children[0].String() + ")"
		}
		return "not ()"
	case KindAnd, KindOr:
		parts := make([]string, len(c.Children))
		for i, ch := range c.Children {
			parts[i] = ch.String()
		}
		sep := " and "
		if c.Kind == KindOr {
			sep = " or "
		}
		return "(" + strings.Join(parts, sep) + ")"
	default:
		return "<invalid condition>"
	}
}

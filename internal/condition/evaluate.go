package condition

import (
	"errors"
	"fmt"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/quantity"
)

// ErrUnknownLevel is returned when a condition references a level that is not
// part of the target attribute's quantity space.
var ErrUnknownLevel = errors.New("level not in quantity space")

// Truth is a three-valued truth value.
type Truth int

const (
	False Truth = iota
	True
	Indeterminate
)

func (t Truth) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "indeterminate"
	}
}

// Result is the outcome of evaluating a condition. For False, Leaf is the
// first leaf that failed; for Indeterminate, the first leaf whose attribute
// value is not determined. Leaf is always in normalized form.
type Result struct {
	Truth Truth
	Leaf  *Condition
	Path  attribute.Path
}

// Resolver looks up the current value of an attribute and its quantity space.
type Resolver interface {
	Resolve(path attribute.Path) (attribute.Value, *quantity.Space, error)
}

// Normalize pushes negations down to the leaves using De Morgan's laws.
// Double negations cancel and negated leaves get the opposite operator, so
// the result contains no not nodes.
func Normalize(c Condition) Condition {
	return normalize(c, false)
}

func normalize(c Condition, negated bool) Condition {
	switch c.Kind {
	case KindAttr:
		out := c
		out.Values = append([]string(nil), c.Values...)
		if negated {
			out.Operator = c.Operator.Negate()
		}
		return out
	case KindNot:
		if len(c.Children) != 1 {
			return c
		}
		return normalize(c.Children[0], !negated)
	case KindAnd, KindOr:
		kind := c.Kind
		if negated {
			if kind == KindAnd {
				kind = KindOr
			} else {
				kind = KindAnd
			}
		}
		children := make([]Condition, len(c.Children))
		for i, ch := range c.Children {
			children[i] = normalize(ch, negated)
		}
		return Condition{Kind: kind, Children: children}
	default:
		return c
	}
}

// Evaluate evaluates c against the attribute values provided by r. Leaves
// whose attribute holds a candidate set or is unknown are Indeterminate; the
// evaluator never picks a default. And/or follow Kleene logic.
func Evaluate(c Condition, r Resolver) (Result, error) {
	n := Normalize(c)
	return eval(&n, r)
}

func eval(c *Condition, r Resolver) (Result, error) {
	switch c.Kind {
	case KindAttr:
		return evalLeaf(c, r)
	case KindAnd:
		var pending *Result
		for i := range c.Children {
			res, err := eval(&c.Children[i], r)
			if err != nil {
				return Result{}, err
			}
			switch res.Truth {
			case False:
				return res, nil
			case Indeterminate:
				if pending == nil {
					pending = &res
				}
			}
		}
		if pending != nil {
			return *pending, nil
		}
		return Result{Truth: True}, nil
	case KindOr:
		var pending, failed *Result
		for i := range c.Children {
			res, err := eval(&c.Children[i], r)
			if err != nil {
				return Result{}, err
			}
			switch res.Truth {
			case True:
				return res, nil
			case Indeterminate:
				if pending == nil {
					pending = &res
				}
			case False:
				if failed == nil {
					failed = &res
				}
			}
		}
		if pending != nil {
			return *pending, nil
		}
		if failed != nil {
			return *failed, nil
		}
		return Result{Truth: False}, nil
	default:
		return Result{}, fmt.Errorf("cannot evaluate condition of kind %q", c.Kind)
	}
}

func evalLeaf(c *Condition, r Resolver) (Result, error) {
	value, space, err := r.Resolve(c.Target)
	if err != nil {
		return Result{}, fmt.Errorf("evaluating %s: %w", c, err)
	}
	if err := checkLevels(c, space); err != nil {
		return Result{}, err
	}
	leaf := *c
	if !value.IsConcrete() {
		return Result{Truth: Indeterminate, Leaf: &leaf, Path: c.Target}, nil
	}
	ok, err := EvaluateLeafValue(leaf, value.Level(), space)
	if err != nil {
		return Result{}, err
	}
	if ok {
		return Result{Truth: True, Leaf: &leaf, Path: c.Target}, nil
	}
	return Result{Truth: False, Leaf: &leaf, Path: c.Target}, nil
}

func checkLevels(c *Condition, space *quantity.Space) error {
	for _, v := range c.Values {
		if !space.Contains(v) {
			return fmt.Errorf("%s: %q in %s: %w", c.Target, v, space, ErrUnknownLevel)
		}
	}
	return nil
}

// EvaluateLeafValue evaluates a single leaf as if its attribute held level.
// Ordering operators compare positions in the quantity space.
func EvaluateLeafValue(leaf Condition, level string, space *quantity.Space) (bool, error) {
	if leaf.Kind != KindAttr {
		return false, fmt.Errorf("not a leaf condition: %s", leaf)
	}
	if !space.Contains(level) {
		return false, fmt.Errorf("%s: actual %q in %s: %w", leaf.Target, level, space, ErrUnknownLevel)
	}
	if err := checkLevels(&leaf, space); err != nil {
		return false, err
	}

	switch leaf.Operator {
	case OpEquals, OpNotEquals, OpIn, OpNotIn:
		found := false
		for _, v := range leaf.Values {
			if v == level {
				found = true
				break
			}
		}
		if leaf.Operator == OpEquals || leaf.Operator == OpIn {
			return found, nil
		}
		return !found, nil
	}

	if len(leaf.Values) != 1 {
		return false, fmt.Errorf("%s %s: exactly one value is required", leaf.Target, leaf.Operator)
	}
	actual, want := space.Index(level), space.Index(leaf.Values[0])
	switch leaf.Operator {
	case OpGT:
		return actual > want, nil
	case OpGTE:
		return actual >= want, nil
	case OpLT:
		return actual < want, nil
	case OpLTE:
		return actual <= want, nil
	default:
		return false, fmt.Errorf("%s: unknown operator %q", leaf.Target, leaf.Operator)
	}
}

// Describe renders a non-true result for rejection messages, e.g.
// "battery.level != empty (actual: empty)".
func Describe(res Result, r Resolver) string {
	if res.Leaf == nil {
		if res.Truth == True {
			return "condition holds"
		}
		return "condition is " + res.Truth.String()
	}
	actual := "?"
	if r != nil {
		if v, _, err := r.Resolve(res.Leaf.Target); err == nil {
			actual = v.String()
		}
	}
	return fmt.Sprintf("%s (actual: %s)", res.Leaf, actual)
}

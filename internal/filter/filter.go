package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Operator is a SCIM-style comparison token.
type Operator string

const (
	Contains   Operator = "co"
	StartsWith Operator = "sw"
	EndsWith   Operator = "ew"
	Equals     Operator = "eq"
	NotEquals  Operator = "ne"
)

var (
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrUnknownOperator  = errors.New("unknown operator")
	ErrMalformed        = errors.New("malformed filter")
)

// Operators lists the supported operators in display order.
func Operators() []Operator {
	return []Operator{Contains, StartsWith, EndsWith, Equals, NotEquals}
}

// ParseOperator accepts both the SCIM token and the long name
// ("contains", "startsWith", ...).
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "co", "contains":
		return Contains, nil
	case "sw", "startswith":
		return StartsWith, nil
	case "ew", "endswith":
		return EndsWith, nil
	case "eq", "equals":
		return Equals, nil
	case "ne", "notequals":
		return NotEquals, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownOperator, s)
}

// Predicate is a declarative (attribute, operator, value) test.
type Predicate struct {
	Attribute string   `json:"attribute" yaml:"attribute"`
	Operator  Operator `json:"operator" yaml:"operator"`
	Value     string   `json:"value" yaml:"value"`
}

// String renders the predicate in the filter query mini-language,
// e.g. `displayName sw admin`.
func (p Predicate) String() string {
	v := p.Value
	if v == "" || strings.ContainsAny(v, " \t\"") {
		v = strconv.Quote(v)
	}
	return fmt.Sprintf("%s %s %s", p.Attribute, p.Operator, v)
}

// Parse reads `<attribute> <operator> <value>`. The value may be double
// quoted; unquoted values run to the end of the input.
func Parse(s string) (Predicate, error) {
	s = strings.TrimSpace(s)
	attr, rest, ok := strings.Cut(s, " ")
	if !ok || attr == "" {
		return Predicate{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	rest = strings.TrimLeft(rest, " ")
	opToken, value, ok := strings.Cut(rest, " ")
	if !ok {
		return Predicate{}, fmt.Errorf("%w: missing value in %q", ErrMalformed, s)
	}
	op, err := ParseOperator(opToken)
	if err != nil {
		return Predicate{}, err
	}
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, `"`) {
		unq, err := strconv.Unquote(value)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: bad quoted value %s", ErrMalformed, value)
		}
		value = unq
	}
	return Predicate{Attribute: attr, Operator: op, Value: value}, nil
}

// eval applies op to an attribute value. contains/sw/ew fold case,
// eq/ne compare exactly.
func eval(op Operator, have, want string) bool {
	switch op {
	case Contains:
		return strings.Contains(strings.ToLower(have), strings.ToLower(want))
	case StartsWith:
		return strings.HasPrefix(strings.ToLower(have), strings.ToLower(want))
	case EndsWith:
		return strings.HasSuffix(strings.ToLower(have), strings.ToLower(want))
	case Equals:
		return have == want
	case NotEquals:
		return have != want
	}
	return false
}

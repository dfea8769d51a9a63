package filter

import (
	"fmt"
	"strings"
)

// Field exposes one searchable attribute of T.
type Field[T any] struct {
	Name  string
	Value func(T) string
}

// Schema is the attribute allow-list a feature declares for its items.
type Schema[T any] struct {
	defaultAttr string
	order       []string
	fields      map[string]func(T) string
}

// ValidationError reports an invalid search input against the field that
// should show it inline.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid marks the error as a client-side validation failure.
func (e *ValidationError) Invalid() bool { return true }

// NewSchema builds a schema. defaultAttr must be one of fields; it is used
// by the single-box search.
func NewSchema[T any](defaultAttr string, fields ...Field[T]) *Schema[T] {
	s := &Schema[T]{defaultAttr: defaultAttr, fields: make(map[string]func(T) string, len(fields))}
	for _, f := range fields {
		if _, dup := s.fields[f.Name]; dup {
			panic("filter: duplicate field " + f.Name)
		}
		s.order = append(s.order, f.Name)
		s.fields[f.Name] = f.Value
	}
	if _, ok := s.fields[defaultAttr]; !ok {
		panic("filter: default attribute " + defaultAttr + " not declared")
	}
	return s
}

// Attributes returns the allow-list in declaration order.
func (s *Schema[T]) Attributes() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Default returns the single-box search attribute.
func (s *Schema[T]) Default() string { return s.defaultAttr }

// Has reports whether attr is on the allow-list.
func (s *Schema[T]) Has(attr string) bool {
	_, ok := s.fields[attr]
	return ok
}

// Value reads attr from item.
func (s *Schema[T]) Value(item T, attr string) (string, bool) {
	fn, ok := s.fields[attr]
	if !ok {
		return "", false
	}
	return fn(item), true
}

// Search resolves a raw search box term to a predicate on the default
// attribute.
func (s *Schema[T]) Search(term string) Predicate {
	return Predicate{Attribute: s.defaultAttr, Operator: Contains, Value: strings.TrimSpace(term)}
}

// Build constructs an advanced-search predicate, rejecting attributes
// outside the allow-list.
func (s *Schema[T]) Build(attr, op, value string) (Predicate, error) {
	return s.Normalize(Predicate{Attribute: strings.TrimSpace(attr), Operator: Operator(op), Value: value})
}

// Normalize checks p against the allow-list and returns it with the
// operator in its short form, so "contains" becomes "co".
func (s *Schema[T]) Normalize(p Predicate) (Predicate, error) {
	if !s.Has(p.Attribute) {
		return Predicate{}, &ValidationError{Field: "attribute", Err: fmt.Errorf("%w %q", ErrUnknownAttribute, p.Attribute)}
	}
	op, err := ParseOperator(string(p.Operator))
	if err != nil {
		return Predicate{}, &ValidationError{Field: "operator", Err: err}
	}
	p.Operator = op
	return p, nil
}

// Validate checks p against the allow-list.
func (s *Schema[T]) Validate(p Predicate) error {
	_, err := s.Normalize(p)
	return err
}

// Matches reports whether item satisfies p. It never mutates item.
func (s *Schema[T]) Matches(item T, p Predicate) bool {
	have, ok := s.Value(item, p.Attribute)
	if !ok {
		return false
	}
	op, err := ParseOperator(string(p.Operator))
	if err != nil {
		return false
	}
	return eval(op, have, p.Value)
}

// Compare orders a and b by key: case-folded first, then byte order, so
// the result is a total order.
func (s *Schema[T]) Compare(a, b T, key string) int {
	av, _ := s.Value(a, key)
	bv, _ := s.Value(b, key)
	if c := strings.Compare(strings.ToLower(av), strings.ToLower(bv)); c != 0 {
		return c
	}
	return strings.Compare(av, bv)
}

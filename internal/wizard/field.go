package wizard

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// Values holds one step's form values keyed by field name.
type Values map[string]string

// Clone returns a copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Field describes one form input of a step.
type Field struct {
	Name     string         `json:"name"`
	Label    string         `json:"label"`
	Help     string         `json:"help,omitempty"`
	Required bool           `json:"required"`
	Pattern  *regexp.Regexp `json:"-"`
	URL      bool           `json:"url,omitempty"`
	Secret   bool           `json:"secret,omitempty"`
	Default  string         `json:"default,omitempty"`
	Options  []string       `json:"options,omitempty"`
}

func (f Field) check(v string) string {
	if strings.TrimSpace(v) == "" {
		if f.Required {
			return "is required"
		}
		return ""
	}
	if f.Pattern != nil && !f.Pattern.MatchString(v) {
		return "has an invalid format"
	}
	if f.URL {
		u, err := url.ParseRequestURI(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "must be an http(s) URL"
		}
	}
	if len(f.Options) > 0 && !slices.Contains(f.Options, v) {
		return "must be one of " + strings.Join(f.Options, ", ")
	}
	return ""
}

// ValidationError lists per-field problems of one step. It is shown inline
// and never sent to the alert sink.
type ValidationError struct {
	Step   string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", name, e.Fields[name]))
	}
	return fmt.Sprintf("step %s: %s", e.Step, strings.Join(parts, "; "))
}

// Invalid marks the error as a client-side validation failure.
func (e *ValidationError) Invalid() bool { return true }

// Invalidf builds a single-field validation error for step validators.
func Invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: fmt.Sprintf(format, args...)}}
}

// clean keeps only declared fields, applies defaults and checks each one.
func clean(step string, fields []Field, in Values) (Values, error) {
	out := make(Values, len(fields))
	var bad map[string]string
	for _, f := range fields {
		v, ok := in[f.Name]
		if !ok || v == "" {
			v = f.Default
		}
		if msg := f.check(v); msg != "" {
			if bad == nil {
				bad = map[string]string{}
			}
			bad[f.Name] = msg
			continue
		}
		if v != "" {
			out[f.Name] = v
		}
	}
	if bad != nil {
		return nil, &ValidationError{Step: step, Fields: bad}
	}
	return out, nil
}

package alert

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a user-visible notification.
type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

// Alert is one user-visible feedback event.
type Alert struct {
	Level       Level     `json:"level"`
	Message     string    `json:"message"`
	Description string    `json:"description"`
	Source      string    `json:"source,omitempty"`
	Time        time.Time `json:"time"`
}

// Text is a message/description pair used as a localized fallback.
type Text struct {
	Message     string
	Description string
}

// Sink receives alerts.
type Sink interface {
	Add(a Alert)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Alert)

func (f SinkFunc) Add(a Alert) { f(a) }

// Discard drops every alert.
var Discard Sink = SinkFunc(func(Alert) {})

// Described is implemented by errors carrying a structured server body.
type Described interface {
	error
	ErrorDescription() string
	ErrorMessage() string
	ErrorDetail() string
}

// FromError builds an error alert for err. The description prefers the
// server description, then detail, then message, then the fallback.
func FromError(err error, fallback Text) Alert {
	a := Alert{Level: Error, Message: fallback.Message, Description: fallback.Description}
	var d Described
	if !errors.As(err, &d) {
		return a
	}
	if m := strings.TrimSpace(d.ErrorMessage()); m != "" {
		a.Message = m
	}
	for _, candidate := range []string{d.ErrorDescription(), d.ErrorDetail(), d.ErrorMessage()} {
		if c := strings.TrimSpace(candidate); c != "" {
			a.Description = c
			break
		}
	}
	return a
}

// Succeeded builds a success alert from text.
func Succeeded(t Text) Alert {
	return Alert{Level: Success, Message: t.Message, Description: t.Description}
}

// Recorder keeps alerts in memory.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *Recorder) Add(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

// Alerts returns a copy of everything recorded so far.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Count returns how many alerts of level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.alerts {
		if a.Level == level {
			n++
		}
	}
	return n
}

// LogSink writes alerts to a logger.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s LogSink) Add(a Alert) {
	if a.Source != "" {
		s.logger().Printf("[%s] %s: %s - %s", a.Level, a.Source, a.Message, a.Description)
		return
	}
	s.logger().Printf("[%s] %s - %s", a.Level, a.Message, a.Description)
}

// Multi fans an alert out to every sink.
type Multi []Sink

func (m Multi) Add(a Alert) {
	for _, s := range m {
		if s != nil {
			s.Add(a)
		}
	}
}

// WithSource stamps every alert with source and the current time before
// forwarding it.
func WithSource(s Sink, source string) Sink {
	return SinkFunc(func(a Alert) {
		if a.Source == "" {
			a.Source = source
		}
		if a.Time.IsZero() {
			a.Time = time.Now().UTC()
		}
		s.Add(a)
	})
}

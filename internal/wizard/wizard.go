// Package wizard drives multi-step create flows whose steps may depend on
// earlier answers.
package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/wso2/identity-apps-sub079/internal/alert"
)

var (
	ErrLastStep    = errors.New("already at the last step")
	ErrNotLastStep = errors.New("finish is only allowed at the last step")
	ErrClosed      = errors.New("wizard closed")
	ErrBusy        = errors.New("submission in progress")
)

// State is the lifecycle of a wizard instance.
type State string

const (
	StateOpen      State = "open"
	StateSubmitted State = "submitted"
	StateClosed    State = "closed"
)

// Collected is the data gathered so far, keyed by step name and kept in
// step order.
type Collected struct {
	order []string
	data  map[string]Values
}

// Get returns the values recorded for step.
func (c Collected) Get(step string) (Values, bool) {
	v, ok := c.data[step]
	return v, ok
}

// Value returns one field of one step, or "".
func (c Collected) Value(step, field string) string {
	return c.data[step][field]
}

// Steps lists steps with recorded data in order.
func (c Collected) Steps() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len is the number of recorded steps.
func (c Collected) Len() int { return len(c.order) }

func (c Collected) MarshalJSON() ([]byte, error) {
	if c.data == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.data)
}

func (c *Collected) set(step string, v Values, steps []Step) {
	if c.data == nil {
		c.data = map[string]Values{}
	}
	c.data[step] = v
	c.order = c.order[:0:0]
	for _, s := range steps {
		if _, ok := c.data[s.Name]; ok {
			c.order = append(c.order, s.Name)
		}
	}
}

func (c *Collected) drop(step string) {
	delete(c.data, step)
	for i, name := range c.order {
		if name == step {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			return
		}
	}
}

func (c Collected) clone() Collected {
	out := Collected{order: make([]string, len(c.order)), data: make(map[string]Values, len(c.data))}
	copy(out.order, c.order)
	for k, v := range c.data {
		out.data[k] = v.Clone()
	}
	return out
}

// Merge flattens every recorded step into one Values map. Later steps
// override earlier ones on name clashes.
func Merge(c Collected) Values {
	out := Values{}
	for _, step := range c.order {
		for k, v := range c.data[step] {
			out[k] = v
		}
	}
	return out
}

// Step is one page of a wizard.
type Step struct {
	Name  string
	Title string
	// Fields computes the form from data collected by earlier steps.
	Fields func(Collected) []Field
	// Validate runs after field checks. A *ValidationError is shown inline;
	// any other error is treated as a remote failure and alerted.
	Validate func(ctx context.Context, v Values, c Collected) error
	// When hides the step unless it returns true. Nil means always shown.
	When func(Collected) bool
}

func (s Step) active(c Collected) bool {
	return s.When == nil || s.When(c)
}

func (s Step) fields(c Collected) []Field {
	if s.Fields == nil {
		return nil
	}
	return s.Fields(c)
}

// Definition describes a wizard producing payload P.
type Definition[P any] struct {
	Name  string
	Steps []Step
	// Build assembles the payload from every active step.
	Build  func(Collected) (P, error)
	Submit func(ctx context.Context, payload P) error

	Success alert.Text
	Failure alert.Text
	// OnSuccess runs after a successful submission, typically to refresh a
	// list.
	OnSuccess func(P)
	Logger    *log.Logger
}

// StepView is the rendering of the current step.
type StepView struct {
	Wizard string  `json:"wizard"`
	Name   string  `json:"name"`
	Title  string  `json:"title"`
	Index  int     `json:"index"`
	Count  int     `json:"count"`
	First  bool    `json:"first"`
	Last   bool    `json:"last"`
	Fields []Field `json:"fields"`
	Values Values  `json:"values,omitempty"`
	State  State   `json:"state"`
}

// Flow is a wizard with its payload type erased.
type Flow interface {
	Current() StepView
	Next(ctx context.Context, v Values) error
	Previous()
	Finish(ctx context.Context, v Values) error
	Cancel()
	State() State
	Collected() Collected
}

// Wizard is one open instance of a Definition. It is safe for concurrent
// use.
type Wizard[P any] struct {
	def  Definition[P]
	sink alert.Sink

	life   context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	index int
	data  Collected
	state State
	busy  bool
}

var _ Flow = (*Wizard[struct{}])(nil)

// Open starts a wizard at the first step with nothing collected.
func Open[P any](def Definition[P], sink alert.Sink) *Wizard[P] {
	if len(def.Steps) == 0 {
		panic("wizard: definition " + def.Name + " has no steps")
	}
	if def.Build == nil || def.Submit == nil {
		panic("wizard: definition " + def.Name + " needs Build and Submit")
	}
	if sink == nil {
		sink = alert.Discard
	}
	life, cancel := context.WithCancel(context.Background())
	return &Wizard[P]{def: def, sink: sink, life: life, cancel: cancel, state: StateOpen}
}

func (w *Wizard[P]) logger() *log.Logger {
	if w.def.Logger != nil {
		return w.def.Logger
	}
	return log.Default()
}

// active returns the steps currently shown; callers hold mu.
func (w *Wizard[P]) active() []Step {
	out := make([]Step, 0, len(w.def.Steps))
	for _, s := range w.def.Steps {
		if s.active(w.data) {
			out = append(out, s)
		}
	}
	return out
}

// prune drops data of steps that are no longer shown; callers hold mu.
func (w *Wizard[P]) prune() {
	for {
		changed := false
		for _, s := range w.def.Steps {
			if _, ok := w.data.Get(s.Name); ok && !s.active(w.data) {
				w.data.drop(s.Name)
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// Current renders the active step.
func (w *Wizard[P]) Current() StepView {
	w.mu.Lock()
	defer w.mu.Unlock()
	steps := w.active()
	idx := min(w.index, len(steps)-1)
	s := steps[idx]
	v := StepView{
		Wizard: w.def.Name,
		Name:   s.Name,
		Title:  s.Title,
		Index:  idx,
		Count:  len(steps),
		First:  idx == 0,
		Last:   idx == len(steps)-1,
		Fields: s.fields(w.data),
		State:  w.state,
	}
	if prev, ok := w.data.Get(s.Name); ok {
		v.Values = prev.Clone()
	}
	return v
}

// record validates v against the current step and stores it; callers
// hold mu, which is released while the step validator runs.
func (w *Wizard[P]) record(ctx context.Context, v Values) error {
	steps := w.active()
	s := steps[w.index]
	snapshot := w.data.clone()
	cleaned, err := clean(s.Name, s.fields(snapshot), v)
	if err != nil {
		return err
	}
	if s.Validate != nil {
		w.mu.Unlock()
		vctx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(w.life, cancel)
		err = s.Validate(vctx, cleaned, snapshot)
		stop()
		cancel()
		w.mu.Lock()
		if w.state != StateOpen {
			return ErrClosed
		}
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				if ve.Step == "" {
					ve.Step = s.Name
				}
				return ve
			}
			w.logger().Printf("wizard %s: validate %s: %v", w.def.Name, s.Name, err)
			w.sink.Add(alert.FromError(err, w.def.Failure))
			return err
		}
	}
	w.data.set(s.Name, cleaned, w.def.Steps)
	w.prune()
	return nil
}

// Next validates v and advances. On error the step index and collected
// data are unchanged.
func (w *Wizard[P]) Next(ctx context.Context, v Values) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateOpen {
		return ErrClosed
	}
	if w.busy {
		return ErrBusy
	}
	if w.lastDeclared() {
		return ErrLastStep
	}
	w.busy = true
	defer func() { w.busy = false }()
	before := w.data.clone()
	if err := w.record(ctx, v); err != nil {
		return err
	}
	if w.index >= len(w.active())-1 {
		w.data = before
		return ErrLastStep
	}
	w.index++
	return nil
}

// lastDeclared reports whether the current step is the last declared step,
// so no answer could make a later one appear; callers hold mu.
func (w *Wizard[P]) lastDeclared() bool {
	steps := w.active()
	name := steps[min(w.index, len(steps)-1)].Name
	return w.def.Steps[len(w.def.Steps)-1].Name == name
}

// Previous goes back one step without validation.
func (w *Wizard[P]) Previous() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateOpen || w.busy {
		return
	}
	if w.index > 0 {
		w.index--
	}
}

// Finish records the last step, builds the payload and submits it. On
// failure one alert is emitted and the wizard stays open at the last step.
func (w *Wizard[P]) Finish(ctx context.Context, v Values) error {
	w.mu.Lock()
	if w.state != StateOpen {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.busy {
		w.mu.Unlock()
		return ErrBusy
	}
	if w.index != len(w.active())-1 {
		w.mu.Unlock()
		return ErrNotLastStep
	}
	w.busy = true
	before := w.data.clone()
	if err := w.record(ctx, v); err != nil {
		w.busy = false
		w.mu.Unlock()
		return err
	}
	if w.index != len(w.active())-1 {
		w.data = before
		w.busy = false
		w.mu.Unlock()
		return ErrNotLastStep
	}
	payload, err := w.def.Build(w.data.clone())
	if err != nil {
		w.busy = false
		w.mu.Unlock()
		return fmt.Errorf("build %s payload: %w", w.def.Name, err)
	}
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.life, cancel)
	defer stop()
	err = w.def.Submit(ctx, payload)

	w.mu.Lock()
	w.busy = false
	if w.state != StateOpen {
		w.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		w.mu.Unlock()
		w.logger().Printf("wizard %s: submit failed: %v", w.def.Name, err)
		w.sink.Add(alert.FromError(err, w.def.Failure))
		return err
	}
	w.state = StateSubmitted
	w.mu.Unlock()
	w.cancel()

	w.sink.Add(alert.Succeeded(w.def.Success))
	if w.def.OnSuccess != nil {
		w.def.OnSuccess(payload)
	}
	return nil
}

// Cancel discards collected data and closes the wizard without any remote
// call. An in-flight submission is cancelled and its result ignored.
func (w *Wizard[P]) Cancel() {
	w.mu.Lock()
	if w.state == StateOpen {
		w.state = StateClosed
	}
	w.data = Collected{}
	w.index = 0
	w.mu.Unlock()
	w.cancel()
}

// State returns the lifecycle state.
func (w *Wizard[P]) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Collected returns a copy of the data gathered so far.
func (w *Wizard[P]) Collected() Collected {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.data.clone()
}

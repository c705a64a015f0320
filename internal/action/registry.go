// Package action implements the typed capability registry the agent runtime
// dispatches browser and evidence actions through.
package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SideEffect declares how an action touches the shared browser session.
type SideEffect int

const (
	// Unspecified is the zero value and is rejected at registration.
	Unspecified SideEffect = iota
	// ReadOnly actions only observe the active page.
	ReadOnly
	// Mutating actions may navigate or change page state.
	Mutating
)

func (s SideEffect) String() string {
	switch s {
	case ReadOnly:
		return "read-only"
	case Mutating:
		return "mutating"
	default:
		return "unspecified"
	}
}

var (
	// ErrInvalidAction is returned by Register for an action that fails its checks.
	ErrInvalidAction = errors.New("invalid action")
	// ErrDuplicateAction is returned by Register when the name is already taken.
	ErrDuplicateAction = errors.New("duplicate action")
	// ErrUnknownAction is returned by Invoke for an unregistered name.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidInput is returned by Invoke when arguments fail the input schema.
	ErrInvalidInput = errors.New("invalid action input")
)

// Result is what an action hands back to the runtime.
type Result struct {
	// Content is the text the runtime shows to the reasoner.
	Content string
	// IncludeInMemory keeps Content in the runtime's working memory for later steps.
	IncludeInMemory bool
	// Value is the typed payload produced by the action, if any.
	Value any
}

// Handler executes an action with schema-valid raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Action is a registered capability.
type Action struct {
	Name        string
	Description string
	SideEffect  SideEffect
	// InputSchema is a JSON Schema document for the arguments object.
	InputSchema string
	Handler     Handler

	schema *gojsonschema.Schema
}

// Schema returns the decoded input schema.
func (a Action) Schema() map[string]any {
	var m map[string]any
	_ = json.Unmarshal([]byte(a.InputSchema), &m)
	return m
}

// Registry maps action names to handlers. It is not safe for concurrent
// registration; the runtime invokes actions from a single goroutine.
type Registry struct {
	actions map[string]*Action
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Action)}
}

// Register validates a and adds it to the registry.
func (r *Registry) Register(a Action) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAction)
	}
	if _, ok := r.actions[a.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateAction, a.Name)
	}
	if a.SideEffect != ReadOnly && a.SideEffect != Mutating {
		return fmt.Errorf("%w: %q has no side-effect class", ErrInvalidAction, a.Name)
	}
	if a.Handler == nil {
		return fmt.Errorf("%w: %q has no handler", ErrInvalidAction, a.Name)
	}
	if strings.TrimSpace(a.InputSchema) == "" {
		return fmt.Errorf("%w: %q has no input schema", ErrInvalidAction, a.Name)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(a.InputSchema))
	if err != nil {
		return fmt.Errorf("%w: %q input schema: %v", ErrInvalidAction, a.Name, err)
	}
	a.schema = schema

	r.actions[a.Name] = &a
	r.order = append(r.order, a.Name)
	return nil
}

// MustRegister is Register that panics on error. Use it for built-in actions only.
func (r *Registry) MustRegister(a Action) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	a, ok := r.actions[name]
	if !ok {
		return Action{}, false
	}
	return *a, true
}

// Describe lists registered actions in registration order.
func (r *Registry) Describe() []Action {
	out := make([]Action, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.actions[name])
	}
	return out
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.order)
}

// Invoke validates args against the action's input schema and calls its handler.
// Empty args are treated as an empty object.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	a, ok := r.actions[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}

	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}

	res, err := a.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q: %v", ErrInvalidInput, name, err)
	}
	if !res.Valid() {
		errs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			errs = append(errs, e.String())
		}
		sort.Strings(errs)
		return Result{}, fmt.Errorf("%w: %q: %s", ErrInvalidInput, name, strings.Join(errs, "; "))
	}

	return a.Handler(ctx, args)
}

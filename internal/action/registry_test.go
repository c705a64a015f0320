package action

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const echoSchema = `{
  "type": "object",
  "properties": {"text": {"type": "string"}},
  "required": ["text"],
  "additionalProperties": false
}`

func echoHandler(_ context.Context, args json.RawMessage) (Result, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, err
	}
	return Result{Content: in.Text, IncludeInMemory: true}, nil
}

func TestRegister_Checks(t *testing.T) {
	t.Parallel()

	valid := Action{Name: "echo", SideEffect: ReadOnly, InputSchema: echoSchema, Handler: echoHandler}

	tests := []struct {
		name    string
		mutate  func(a *Action)
		wantErr error
	}{
		{name: "valid", mutate: func(*Action) {}},
		{name: "empty name", mutate: func(a *Action) { a.Name = "  " }, wantErr: ErrInvalidAction},
		{name: "no side effect", mutate: func(a *Action) { a.SideEffect = Unspecified }, wantErr: ErrInvalidAction},
		{name: "nil handler", mutate: func(a *Action) { a.Handler = nil }, wantErr: ErrInvalidAction},
		{name: "no schema", mutate: func(a *Action) { a.InputSchema = "" }, wantErr: ErrInvalidAction},
		{name: "broken schema", mutate: func(a *Action) { a.InputSchema = `{"type": 12}` }, wantErr: ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := valid
			tt.mutate(&a)
			err := NewRegistry().Register(a)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := Action{Name: "echo", SideEffect: ReadOnly, InputSchema: echoSchema, Handler: echoHandler}
	require.NoError(t, r.Register(a))
	err := r.Register(a)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateAction)
	assert.Equal(t, 1, r.Len())
}

func TestInvoke(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister(Action{Name: "echo", SideEffect: ReadOnly, InputSchema: echoSchema, Handler: echoHandler})

	res, err := r.Invoke(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Content)
	assert.True(t, res.IncludeInMemory)

	_, err = r.Invoke(context.Background(), "echo", json.RawMessage(`{"text":1}`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = r.Invoke(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = r.Invoke(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDescribe_PreservesOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		r.MustRegister(Action{Name: name, SideEffect: Mutating, InputSchema: `{"type":"object"}`, Handler: echoHandler})
	}

	var names []string
	for _, a := range r.Describe() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)

	a, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, Mutating, a.SideEffect)
	assert.Equal(t, "object", a.Schema()["type"])
}

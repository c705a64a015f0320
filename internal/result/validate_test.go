package result

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingDoc = `{
  "analysis": [
    {"journey": "Add a todo", "passing": true, "steps": ["opened app", "typed text", "clicked add"], "failure": null}
  ],
  "qualityEvaluation": {"rating": 8, "summary": "Solid", "categories": [{"name": "Functionality", "message": ""}]}
}`

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "passing journey", raw: passingDoc},
		{
			name: "failing journey with failure",
			raw: `{"analysis":[{"journey":"Checkout","passing":false,"steps":["open cart"],
				"failure":{"step":1,"observed":"500","expected":"cart","screenshot":"evidence-1"}}],
				"qualityEvaluation":{"rating":3,"summary":"broken","categories":[]}}`,
		},
		{
			name: "wrapped in prose",
			raw:  "Here is the result:\n" + passingDoc + "\nthanks",
		},
		{
			name:    "rating zero",
			raw:     `{"analysis":[],"qualityEvaluation":{"rating":0,"summary":"","categories":[]}}`,
			wantErr: true,
		},
		{
			name:    "rating eleven",
			raw:     `{"analysis":[],"qualityEvaluation":{"rating":11,"summary":"","categories":[]}}`,
			wantErr: true,
		},
		{
			name: "failing without failure",
			raw: `{"analysis":[{"journey":"a","passing":false,"steps":[],"failure":null}],
				"qualityEvaluation":{"rating":5,"summary":"","categories":[]}}`,
			wantErr: true,
		},
		{
			name: "passing with failure",
			raw: `{"analysis":[{"journey":"a","passing":true,"steps":[],
				"failure":{"step":1,"observed":"","expected":"","screenshot":""}}],
				"qualityEvaluation":{"rating":5,"summary":"","categories":[]}}`,
			wantErr: true,
		},
		{
			name: "failure step zero",
			raw: `{"analysis":[{"journey":"a","passing":false,"steps":[],
				"failure":{"step":0,"observed":"","expected":"","screenshot":""}}],
				"qualityEvaluation":{"rating":5,"summary":"","categories":[]}}`,
			wantErr: true,
		},
		{
			name:    "missing quality evaluation",
			raw:     `{"analysis":[]}`,
			wantErr: true,
		},
		{name: "empty", raw: "  ", wantErr: true},
		{name: "not json", raw: "done!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrSchemaViolation))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParse_DecodesFields(t *testing.T) {
	t.Parallel()

	out, err := Parse([]byte(passingDoc))
	require.NoError(t, err)
	require.Len(t, out.Analysis, 1)
	assert.Equal(t, "Add a todo", out.Analysis[0].Journey)
	assert.Equal(t, []string{"opened app", "typed text", "clicked add"}, out.Analysis[0].Steps)
	assert.Nil(t, out.Analysis[0].Failure)
	assert.Equal(t, 8, out.QualityEvaluation.Rating)
	assert.True(t, out.Passed())
}

func TestCheckJourneys(t *testing.T) {
	t.Parallel()

	out := AgentOutput{Analysis: []UserJourneyAnalysis{{Journey: "b"}, {Journey: "a"}}}

	assert.Empty(t, CheckJourneys([]string{"b", "a"}, out))
	assert.Len(t, CheckJourneys([]string{"a", "b"}, out), 2)
	assert.Len(t, CheckJourneys([]string{"b"}, out), 1)
}

func TestPropertyNames(t *testing.T) {
	t.Parallel()

	names := PropertyNames()
	for _, want := range []string{
		"analysis", "journey", "passing", "steps", "failure", "step", "observed", "expected",
		"screenshot", "qualityEvaluation", "rating", "summary", "categories", "name", "message",
	} {
		assert.Contains(t, names, want)
	}
}

func TestOutcome_MarshalJSON(t *testing.T) {
	t.Parallel()

	out, err := Parse([]byte(passingDoc))
	require.NoError(t, err)

	b, err := json.Marshal(Succeeded(out))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"failure":null`)
	assert.NotContains(t, string(b), `"errors"`)

	b, err = json.Marshal(Failed("step 1: timeout", "max steps (1) reached without a final answer"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"errors":["step 1: timeout","max steps (1) reached without a final answer"]}`, string(b))

	b, err = json.Marshal(Failed())
	require.NoError(t, err)
	var doc map[string][]string
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.NotEmpty(t, doc["errors"])
	assert.NotContains(t, doc, "analysis")
}

package result

import "encoding/json"

// Outcome is the result of a run: either a structured answer or an ordered
// list of errors. Exactly one of the two is ever set.
type Outcome struct {
	output *AgentOutput
	errors []string
}

// Succeeded wraps a schema-valid final answer.
func Succeeded(out AgentOutput) Outcome {
	return Outcome{output: &out}
}

// Failed builds an error outcome. An empty error list is replaced with a
// generic entry so consumers always see at least one diagnostic.
func Failed(errs ...string) Outcome {
	if len(errs) == 0 {
		errs = []string{"run ended without a structured final answer"}
	}
	cp := make([]string, len(errs))
	copy(cp, errs)
	return Outcome{errors: cp}
}

// Output returns the final answer and true for a successful outcome.
func (o Outcome) Output() (AgentOutput, bool) {
	if o.output == nil {
		return AgentOutput{}, false
	}
	return *o.output, true
}

// Errors returns the error list of a failed outcome, nil otherwise.
func (o Outcome) Errors() []string {
	return o.errors
}

// IsSuccess reports whether the outcome carries a final answer.
func (o Outcome) IsSuccess() bool {
	return o.output != nil
}

type errorDocument struct {
	Errors []string `json:"errors"`
}

// MarshalJSON renders the AgentOutput document or {"errors":[...]}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.output != nil {
		return json.Marshal(o.output)
	}
	errs := o.errors
	if errs == nil {
		errs = []string{}
	}
	return json.Marshal(errorDocument{Errors: errs})
}

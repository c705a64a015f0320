package result

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

// ErrSchemaViolation is returned when a final answer does not conform to AgentOutput.
var ErrSchemaViolation = errors.New("schema violation")

// Schema returns the JSON Schema of AgentOutput.
func Schema() string {
	return schemaJSON
}

// SchemaMap returns the JSON Schema of AgentOutput decoded into a generic map.
func SchemaMap() map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &m); err != nil {
		panic(fmt.Sprintf("result: embedded schema is invalid: %v", err))
	}
	return m
}

// PropertyNames returns every property name declared anywhere in the schema, sorted.
func PropertyNames() []string {
	seen := make(map[string]struct{})
	collectProperties(SchemaMap(), seen)
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func collectProperties(node any, seen map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		if props, ok := v["properties"].(map[string]any); ok {
			for name, child := range props {
				seen[name] = struct{}{}
				collectProperties(child, seen)
			}
		}
		if items, ok := v["items"]; ok {
			collectProperties(items, seen)
		}
	case []any:
		for _, child := range v {
			collectProperties(child, seen)
		}
	}
}

// Parse validates raw against the AgentOutput schema and its semantic invariants
// and decodes it. Any violation is reported as ErrSchemaViolation.
func Parse(raw []byte) (AgentOutput, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return AgentOutput{}, fmt.Errorf("%w: empty final answer", ErrSchemaViolation)
	}
	if !json.Valid(raw) {
		extracted, ok := ExtractJSON(raw)
		if !ok || !json.Valid(extracted) {
			return AgentOutput{}, fmt.Errorf("%w: final answer is not valid JSON", ErrSchemaViolation)
		}
		raw = extracted
	}

	res, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schemaJSON), gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return AgentOutput{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !res.Valid() {
		errs := make([]string, 0, len(res.Errors()))
		for _, schemaErr := range res.Errors() {
			errs = append(errs, schemaErr.String())
		}
		sort.Strings(errs)
		return AgentOutput{}, fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(errs, "; "))
	}

	var out AgentOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return AgentOutput{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if err := out.Validate(); err != nil {
		return AgentOutput{}, err
	}
	return out, nil
}

// Validate checks the invariants that JSON Schema alone does not express.
func (o AgentOutput) Validate() error {
	if r := o.QualityEvaluation.Rating; r < 1 || r > 10 {
		return fmt.Errorf("%w: qualityEvaluation.rating %d is outside [1,10]", ErrSchemaViolation, r)
	}
	for i, a := range o.Analysis {
		switch {
		case !a.Passing && a.Failure == nil:
			return fmt.Errorf("%w: analysis[%d] %q is failing but has no failure details", ErrSchemaViolation, i, a.Journey)
		case a.Passing && a.Failure != nil:
			return fmt.Errorf("%w: analysis[%d] %q is passing but has failure details", ErrSchemaViolation, i, a.Journey)
		case a.Failure != nil && a.Failure.Step < 1:
			return fmt.Errorf("%w: analysis[%d] %q failure.step must be >= 1", ErrSchemaViolation, i, a.Journey)
		}
	}
	return nil
}

// CheckJourneys compares the analysed journeys with the requested ones and
// returns human-readable warnings. One entry per journey in input order is the
// expected shape, but the runtime owns that contract so mismatches are not errors.
func CheckJourneys(journeys []string, o AgentOutput) []string {
	var warnings []string
	if len(o.Analysis) != len(journeys) {
		warnings = append(warnings, fmt.Sprintf("analysis has %d entries, expected %d", len(o.Analysis), len(journeys)))
	}
	n := min(len(journeys), len(o.Analysis))
	for i := 0; i < n; i++ {
		if o.Analysis[i].Journey != journeys[i] {
			warnings = append(warnings, fmt.Sprintf("analysis[%d] is %q, expected %q", i, o.Analysis[i].Journey, journeys[i]))
		}
	}
	return warnings
}

// ExtractJSON returns the outermost {...} span of data.
func ExtractJSON(data []byte) ([]byte, bool) {
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start == -1 || end == -1 || start >= end {
		return nil, false
	}
	return data[start : end+1], true
}

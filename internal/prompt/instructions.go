package prompt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/metalagman/evalrunner/internal/evidence"
	"github.com/metalagman/evalrunner/internal/result"
)

//go:embed system.md
var systemTemplate string

// DefaultInstructions returns the built-in operating instructions, rendered.
func DefaultInstructions() string {
	doc, err := RenderInstructions(systemTemplate)
	if err != nil {
		panic(fmt.Sprintf("prompt: built-in instructions do not render: %v", err))
	}
	return doc
}

// LoadInstructions reads an instructions document from path verbatim.
// Template syntax in it is left alone.
func LoadInstructions(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read instructions: %w", err)
	}
	return string(data), nil
}

// RenderInstructions expands {{ .OutputSchema }} and {{ .EvidenceAction }} in doc.
// Only the built-in document goes through it.
func RenderInstructions(doc string) (string, error) {
	tmpl, err := template.New("instructions").Option("missingkey=error").Parse(doc)
	if err != nil {
		return "", fmt.Errorf("parse instructions template: %w", err)
	}

	schema, err := prettySchema()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct {
		OutputSchema   string
		EvidenceAction string
	}{
		OutputSchema:   schema,
		EvidenceAction: evidence.ActionName,
	}); err != nil {
		return "", fmt.Errorf("execute instructions template: %w", err)
	}
	return buf.String(), nil
}

// CheckConformance returns the AgentOutput property names and action names
// that doc never mentions. An empty result means doc is schema-compatible.
func CheckConformance(doc string) []string {
	var missing []string
	for _, name := range result.PropertyNames() {
		if !strings.Contains(doc, name) {
			missing = append(missing, name)
		}
	}
	if !strings.Contains(doc, evidence.ActionName) {
		missing = append(missing, evidence.ActionName)
	}
	return missing
}

func prettySchema() (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(result.Schema()), "", "  "); err != nil {
		return "", fmt.Errorf("indent output schema: %w", err)
	}
	return buf.String(), nil
}

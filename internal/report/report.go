// Package report turns a result document into a human-readable summary.
package report

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/metalagman/evalrunner/internal/result"
)

// ErrUnknownDocument is returned for input that is neither a verdict nor an error list.
var ErrUnknownDocument = errors.New("not a result document")

// Verdict classifies a result document.
type Verdict string

// Verdicts.
const (
	VerdictPassed Verdict = "PASSED"
	VerdictFailed Verdict = "FAILED"
	VerdictError  Verdict = "ERROR"
)

type document struct {
	output *result.AgentOutput
	errors []string
}

func decode(doc []byte) (document, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return document{}, fmt.Errorf("%w: %w", ErrUnknownDocument, err)
	}
	if raw, ok := fields["errors"]; ok {
		var errs []string
		if err := json.Unmarshal(raw, &errs); err != nil {
			return document{}, fmt.Errorf("%w: errors: %w", ErrUnknownDocument, err)
		}
		return document{errors: errs}, nil
	}
	if _, ok := fields["analysis"]; !ok {
		return document{}, ErrUnknownDocument
	}
	var out result.AgentOutput
	if err := json.Unmarshal(doc, &out); err != nil {
		return document{}, fmt.Errorf("%w: %w", ErrUnknownDocument, err)
	}
	return document{output: &out}, nil
}

func (d document) verdict() Verdict {
	switch {
	case d.output == nil:
		return VerdictError
	case d.output.Passed():
		return VerdictPassed
	default:
		return VerdictFailed
	}
}

// Markdown renders doc as markdown and reports its verdict.
func Markdown(doc []byte) (string, Verdict, error) {
	d, err := decode(doc)
	if err != nil {
		return "", "", err
	}

	var b strings.Builder
	b.WriteString("# Verification report\n\n")
	if d.output == nil {
		b.WriteString("The run ended without a verdict.\n\n## Errors\n\n")
		for _, e := range d.errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		return b.String(), VerdictError, nil
	}

	out := d.output
	passed := 0
	for _, a := range out.Analysis {
		if a.Passing {
			passed++
		}
	}
	fmt.Fprintf(&b, "**Journeys passing:** %d/%d  \n", passed, len(out.Analysis))
	fmt.Fprintf(&b, "**Rating:** %d/10\n\n", out.QualityEvaluation.Rating)
	if s := strings.TrimSpace(out.QualityEvaluation.Summary); s != "" {
		b.WriteString(s + "\n\n")
	}

	b.WriteString("## Journeys\n\n")
	for _, a := range out.Analysis {
		status := "PASS"
		if !a.Passing {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "### [%s] %s\n\n", status, a.Journey)
		for i, s := range a.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
		if len(a.Steps) > 0 {
			b.WriteString("\n")
		}
		if f := a.Failure; f != nil {
			fmt.Fprintf(&b, "**Failure at step %d**\n\n", f.Step)
			fmt.Fprintf(&b, "- Observed: %s\n", f.Observed)
			fmt.Fprintf(&b, "- Expected: %s\n", f.Expected)
			fmt.Fprintf(&b, "- Screenshot: %s\n\n", describeScreenshot(f.Screenshot))
		}
	}

	if len(out.QualityEvaluation.Categories) > 0 {
		b.WriteString("## Quality\n\n| Category | Finding |\n|---|---|\n")
		for _, c := range out.QualityEvaluation.Categories {
			msg := c.Message
			if strings.TrimSpace(msg) == "" {
				msg = "No issues"
			}
			fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(c.Name), escapeCell(msg))
		}
	}
	return b.String(), d.verdict(), nil
}

func describeScreenshot(s string) string {
	if s == "" {
		return "none"
	}
	if len(s) > 64 {
		if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
			return fmt.Sprintf("embedded PNG (%d bytes)", len(raw))
		}
	}
	return "`" + s + "`"
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// Banner returns the styled verdict line.
func Banner(v Verdict) string {
	color := lipgloss.Color("#22863a")
	switch v {
	case VerdictFailed:
		color = lipgloss.Color("#d73a49")
	case VerdictError:
		color = lipgloss.Color("#b08800")
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#ffffff")).
		Background(color).
		Padding(0, 1).
		Render(string(v))
}

// Render renders doc for a terminal of the given width.
func Render(doc []byte, width int) (string, error) {
	md, verdict, err := Markdown(doc)
	if err != nil {
		return "", err
	}
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithWordWrap(width),
		glamour.WithStandardStyle("dark"),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	body, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return Banner(verdict) + "\n" + body, nil
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/metalagman/evalrunner/internal/browser"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash-lite-preview-02-05"

// ErrToolNameCollision is returned by Decide when two actions share a function name.
var ErrToolNameCollision = errors.New("tool name collision")

// GeminiConfig configures GeminiReasoner.
type GeminiConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	// Temperature is passed through when set.
	Temperature *float32
}

// GeminiReasoner asks a Gemini model for the next action using function calling.
type GeminiReasoner struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiReasoner creates a Gemini API client.
func NewGeminiReasoner(ctx context.Context, cfg GeminiConfig) (*GeminiReasoner, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiReasoner{client: client, cfg: cfg}, nil
}

// Decide sends one generateContent request and maps function calls back to
// registry action names.
func (g *GeminiReasoner) Decide(ctx context.Context, req Request) (Decision, Usage, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(req.Actions))
	names := make(map[string]string, len(req.Actions))
	for _, a := range req.Actions {
		fn := ToolName(a.Name)
		if prev, ok := names[fn]; ok {
			return Decision{}, Usage{}, fmt.Errorf("%w: %q and %q both map to %q", ErrToolNameCollision, prev, a.Name, fn)
		}
		names[fn] = a.Name
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 fn,
			Description:          describe(a.Name, a.Description, fn),
			ParametersJsonSchema: toolSchema(a.Schema()),
		})
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: decls}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny},
		},
		Temperature: g.cfg.Temperature,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents(req), config)
	if err != nil {
		return Decision{}, Usage{}, fmt.Errorf("generate content: %w", err)
	}

	var usage Usage
	if md := resp.UsageMetadata; md != nil {
		usage = Usage{
			PromptTokens: int(md.PromptTokenCount),
			OutputTokens: int(md.CandidatesTokenCount),
			TotalTokens:  int(md.TotalTokenCount),
		}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Decision{}, usage, errors.New("model returned no candidates")
	}

	var dec Decision
	var thought strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		switch {
		case p.FunctionCall != nil:
			name, ok := names[p.FunctionCall.Name]
			if !ok {
				name = p.FunctionCall.Name
			}
			args := json.RawMessage("{}")
			if p.FunctionCall.Args != nil {
				raw, err := json.Marshal(p.FunctionCall.Args)
				if err != nil {
					return Decision{}, usage, fmt.Errorf("encode arguments of %s: %w", name, err)
				}
				args = raw
			}
			dec.Calls = append(dec.Calls, Call{ID: p.FunctionCall.ID, Name: name, Args: args})
		case p.Text != "" && !p.Thought:
			thought.WriteString(p.Text)
		}
	}
	dec.Thought = strings.TrimSpace(thought.String())
	return dec, usage, nil
}

func contents(req Request) []*genai.Content {
	var b strings.Builder
	b.WriteString("## Memory\n")
	b.WriteString(req.Memory)
	b.WriteString("\n\n")
	if len(req.Results) > 0 {
		b.WriteString("## Previous action results\n")
		for _, r := range req.Results {
			b.WriteString(r)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "## Current step\nStep %d.\n\n", req.Step)
	b.WriteString(FormatState(req.State))

	parts := []*genai.Part{genai.NewPartFromText(b.String())}
	if len(req.Screenshot) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Screenshot, "image/png"))
	}

	return []*genai.Content{
		genai.NewContentFromText(req.Task, genai.RoleUser),
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
}

// FormatState renders the page state as the reasoner sees it.
func FormatState(st browser.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current URL: %s\nPage title: %s\nInteractive elements:\n", st.URL, st.Title)
	if len(st.Elements) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range st.Elements {
		fmt.Fprintf(&b, "[%d]<%s", e.Index, e.Tag)
		if e.Type != "" {
			fmt.Fprintf(&b, " type=%q", e.Type)
		}
		if e.Role != "" {
			fmt.Fprintf(&b, " role=%q", e.Role)
		}
		if e.Href != "" {
			fmt.Fprintf(&b, " href=%q", e.Href)
		}
		fmt.Fprintf(&b, ">%s</%s>\n", e.Text, e.Tag)
	}
	return b.String()
}

// ToolName converts an action name into a valid function name: lowercase
// letters, digits and underscores, at most 64 characters.
func ToolName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore && b.Len() > 0:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		out = "action"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "a_" + out
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

func describe(name, description, fn string) string {
	if name == fn {
		return description
	}
	return fmt.Sprintf("%s (action %q)", description, name)
}

// toolSchema drops keywords the function-calling schema does not accept.
func toolSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if k == "$schema" || k == "title" {
			continue
		}
		out[k] = v
	}
	return out
}

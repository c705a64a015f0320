// Package evidence implements the failure screenshot action the agent calls
// when a user journey deviates from its expectations.
package evidence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/evalrunner/internal/action"
	"github.com/metalagman/evalrunner/internal/browser"
)

// ActionName is the name the action is advertised under.
const ActionName = "Take User Journey failure screenshot"

const inputSchema = `{
  "type": "object",
  "properties": {
    "expectation": {"type": "string", "description": "What the journey expected to see."},
    "actual": {"type": "string", "description": "What was actually observed."},
    "description": {"type": "string", "description": "The journey and context of the failure."}
  },
  "required": ["expectation", "actual", "description"]
}`

// Request is the action input.
type Request struct {
	Expectation string `json:"expectation"`
	Actual      string `json:"actual"`
	Description string `json:"description"`
}

// Record is a captured piece of evidence.
type Record struct {
	Request
	Base64Screenshot string `json:"base64Screenshot"`
	ID               string `json:"id"`
}

// Action captures the active page on behalf of the agent.
type Action struct {
	page  browser.Page
	store *Store
}

// New returns an evidence action reading from page and storing into store.
func New(page browser.Page, store *Store) *Action {
	return &Action{page: page, store: store}
}

// Definition returns the registry entry for the action.
func (a *Action) Definition() action.Action {
	return action.Action{
		Name:        ActionName,
		Description: "Capture a full-page screenshot of the current page as evidence for a failed user journey. Returns an evidence identifier to use as failure.screenshot.",
		SideEffect:  action.ReadOnly,
		InputSchema: inputSchema,
		Handler:     a.handle,
	}
}

// Register adds the action to reg.
func (a *Action) Register(reg *action.Registry) error {
	return reg.Register(a.Definition())
}

// Capture takes exactly one screenshot of the active page and stores it.
// Capture errors are returned as is; there are no retries.
func (a *Action) Capture(ctx context.Context, req Request) (Record, error) {
	img, err := a.page.Screenshot(ctx, browser.ScreenshotOptions{
		FullPage:          true,
		DisableAnimations: true,
		Format:            browser.PNG,
	})
	if err != nil {
		return Record{}, fmt.Errorf("capture evidence: %w", err)
	}

	rec := Record{
		Request:          req,
		Base64Screenshot: base64.StdEncoding.EncodeToString(img),
	}
	rec, err = a.store.Add(rec, img)
	if err != nil {
		return Record{}, err
	}

	log.Info().Str("id", rec.ID).Str("description", req.Description).Int("bytes", len(img)).Msg("Evidence captured")
	return rec, nil
}

func (a *Action) handle(ctx context.Context, args json.RawMessage) (action.Result, error) {
	var req Request
	if err := json.Unmarshal(args, &req); err != nil {
		return action.Result{}, fmt.Errorf("decode evidence request: %w", err)
	}

	rec, err := a.Capture(ctx, req)
	if err != nil {
		return action.Result{}, err
	}

	return action.Result{
		Content:         fmt.Sprintf("Successfully took screenshot. Evidence identifier: %s", rec.ID),
		IncludeInMemory: true,
		Value:           rec,
	}, nil
}

package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/metalagman/evalrunner/internal/action"
)

// Built-in action names.
const (
	ActionNavigate    = "navigate"
	ActionClick       = "click"
	ActionInputText   = "input_text"
	ActionScroll      = "scroll"
	ActionGoBack      = "go_back"
	ActionWait        = "wait"
	ActionExtractText = "extract_text"
)

const maxExtractedText = 8000

// RegisterActions registers the built-in browser actions for page into reg.
func RegisterActions(reg *action.Registry, page Page) error {
	for _, a := range Actions(page) {
		if err := reg.Register(a); err != nil {
			return fmt.Errorf("register %s: %w", a.Name, err)
		}
	}
	return nil
}

// Actions returns the built-in browser actions bound to page.
func Actions(page Page) []action.Action {
	return []action.Action{
		{
			Name:        ActionNavigate,
			Description: "Open a URL in the current tab.",
			SideEffect:  action.Mutating,
			InputSchema: `{"type":"object","properties":{"url":{"type":"string","minLength":1}},"required":["url"]}`,
			Handler: func(ctx context.Context, args json.RawMessage) (action.Result, error) {
				var in struct {
					URL string `json:"url"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return action.Result{}, err
				}
				if err := page.Navigate(ctx, in.URL); err != nil {
					return action.Result{}, err
				}
				return action.Result{Content: "Navigated to " + in.URL, IncludeInMemory: true}, nil
			},
		},
		{
			Name:        ActionClick,
			Description: "Click the interactive element with the given index.",
			SideEffect:  action.Mutating,
			InputSchema: `{"type":"object","properties":{"index":{"type":"integer","minimum":1}},"required":["index"]}`,
			Handler: func(ctx context.Context, args json.RawMessage) (action.Result, error) {
				var in struct {
					Index int `json:"index"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return action.Result{}, err
				}
				if err := page.Click(ctx, in.Index); err != nil {
					return action.Result{}, err
				}
				return action.Result{Content: fmt.Sprintf("Clicked element %d", in.Index), IncludeInMemory: true}, nil
			},
		},
		{
			Name:        ActionInputText,
			Description: "Replace the value of the input element with the given index.",
			SideEffect:  action.Mutating,
			InputSchema: `{"type":"object","properties":{"index":{"type":"integer","minimum":1},"text":{"type":"string"}},"required":["index","text"]}`,
			Handler: func(ctx context.Context, args json.RawMessage) (action.Result, error) {
				var in struct {
					Index int    `json:"index"`
					Text  string `json:"text"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return action.Result{}, err
				}
				if err := page.Type(ctx, in.Index, in.Text); err != nil {
					return action.Result{}, err
				}
				return action.Result{Content: fmt.Sprintf("Typed %q into element %d", in.Text, in.Index), IncludeInMemory: true}, nil
			},
		},
		{
			Name:        ActionScroll,
			Description: "Scroll the page vertically by a number of pixels. Negative values scroll up.",
			SideEffect:  action.Mutating,
			InputSchema: `{"type":"object","properties":{"pixels":{"type":"integer"}},"required":["pixels"]}`,
			Handler: func(ctx context.Context, args json.RawMessage) (action.Result, error) {
				var in struct {
					Pixels int `json:"pixels"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return action.Result{}, err
				}
				if err := page.Scroll(ctx, in.Pixels); err != nil {
					return action.Result{}, err
				}
				return action.Result{Content: fmt.Sprintf("Scrolled by %d pixels", in.Pixels), IncludeInMemory: true}, nil
			},
		},
		{
			Name:        ActionGoBack,
			Description: "Go back to the previous page in history.",
			SideEffect:  action.Mutating,
			InputSchema: `{"type":"object"}`,
			Handler: func(ctx context.Context, _ json.RawMessage) (action.Result, error) {
				if err := page.Back(ctx); err != nil {
					return action.Result{}, err
				}
				return action.Result{Content: "Went back", IncludeInMemory: true}, nil
			},
		},
		{
			Name:        ActionWait,
			Description: "Wait for the page to update, up to 10 seconds.",
			SideEffect:  action.Mutating,
			InputSchema: `{"type":"object","properties":{"seconds":{"type":"integer","minimum":1,"maximum":10}},"required":["seconds"]}`,
			Handler: func(ctx context.Context, args json.RawMessage) (action.Result, error) {
				var in struct {
					Seconds int `json:"seconds"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return action.Result{}, err
				}
				t := time.NewTimer(time.Duration(in.Seconds) * time.Second)
				defer t.Stop()
				select {
				case <-ctx.Done():
					return action.Result{}, ctx.Err()
				case <-t.C:
				}
				return action.Result{Content: fmt.Sprintf("Waited %d seconds", in.Seconds)}, nil
			},
		},
		{
			Name:        ActionExtractText,
			Description: "Return the visible text of the current page.",
			SideEffect:  action.ReadOnly,
			InputSchema: `{"type":"object"}`,
			Handler: func(ctx context.Context, _ json.RawMessage) (action.Result, error) {
				text, err := page.Text(ctx)
				if err != nil {
					return action.Result{}, err
				}
				return action.Result{Content: truncateText(text, maxExtractedText)}, nil
			},
		},
	}
}

// truncateText cuts s to at most limit bytes on a rune boundary.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n[truncated]"
}

package browser

import (
	"context"
	"sync"
)

// FakePage is an in-memory Page for tests. It records calls and returns the
// configured state and screenshot.
type FakePage struct {
	mu sync.Mutex

	PageState State
	PageText  string
	Image     []byte
	Err       error

	Calls       []string
	Screenshots []ScreenshotOptions
}

var _ Page = (*FakePage)(nil)

func (f *FakePage) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
	return f.Err
}

// Navigate records the call and updates the URL.
func (f *FakePage) Navigate(_ context.Context, url string) error {
	if err := f.record("navigate " + url); err != nil {
		return err
	}
	f.mu.Lock()
	f.PageState.URL = url
	f.mu.Unlock()
	return nil
}

// Click records the call.
func (f *FakePage) Click(_ context.Context, index int) error {
	if index < 1 || index > len(f.PageState.Elements) {
		return ErrElementNotFound
	}
	return f.record("click")
}

// Type records the call.
func (f *FakePage) Type(_ context.Context, index int, _ string) error {
	if index < 1 || index > len(f.PageState.Elements) {
		return ErrElementNotFound
	}
	return f.record("type")
}

// Scroll records the call.
func (f *FakePage) Scroll(context.Context, int) error { return f.record("scroll") }

// Back records the call.
func (f *FakePage) Back(context.Context) error { return f.record("back") }

// Text returns PageText.
func (f *FakePage) Text(context.Context) (string, error) {
	if err := f.record("text"); err != nil {
		return "", err
	}
	return f.PageText, nil
}

// State returns PageState.
func (f *FakePage) State(context.Context) (State, error) {
	if err := f.record("state"); err != nil {
		return State{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PageState, nil
}

// Screenshot returns Image.
func (f *FakePage) Screenshot(_ context.Context, opts ScreenshotOptions) ([]byte, error) {
	if err := f.record("screenshot"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Screenshots = append(f.Screenshots, opts)
	return f.Image, nil
}

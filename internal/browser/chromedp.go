package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

const indexAttr = "data-evalrunner-index"

// restoreTimeout bounds the animation restore that runs after the step context may be gone.
const restoreTimeout = 2 * time.Second

// Options configures the chromedp session.
type Options struct {
	Headless     bool
	ExecPath     string
	WindowWidth  int
	WindowHeight int
	// SettleDelay is waited after mutating actions so the page can react.
	SettleDelay time.Duration
}

// DefaultOptions returns headless 1280x1024 with a short settle delay.
func DefaultOptions() Options {
	return Options{
		Headless:     true,
		WindowWidth:  1280,
		WindowHeight: 1024,
		SettleDelay:  500 * time.Millisecond,
	}
}

// ChromePage is a Page backed by a single chromedp tab.
type ChromePage struct {
	mu     sync.Mutex
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// Launch starts a browser and opens one blank tab. Close releases both.
func Launch(ctx context.Context, opts Options) (*ChromePage, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// First Run starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	log.Debug().Bool("headless", opts.Headless).Msg("browser started")

	return &ChromePage{
		opts: opts,
		ctx:  tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}, nil
}

// Close shuts the browser down.
func (p *ChromePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	return err
}

// run executes actions on the tab, bounded by the caller's context.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.closed {
		return ErrClosed
	}

	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *ChromePage) settle(ctx context.Context) {
	if p.opts.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(p.opts.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Navigate opens url in the tab.
func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	p.settle(ctx)
	return nil
}

// Click clicks the element with the given index from the last State.
func (p *ChromePage) Click(ctx context.Context, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.selector(ctx, index)
	if err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click element %d: %w", index, err)
	}
	p.settle(ctx)
	return nil
}

// Type clears the element with the given index and types text into it.
func (p *ChromePage) Type(ctx context.Context, index int, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.selector(ctx, index)
	if err != nil {
		return err
	}
	if err := p.run(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("type into element %d: %w", index, err)
	}
	p.settle(ctx)
	return nil
}

// Scroll scrolls the window vertically by pixels. Negative scrolls up.
func (p *ChromePage) Scroll(ctx context.Context, pixels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf("(window.scrollBy(0, %d), true)", pixels), &ok)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// Back navigates one entry back in history.
func (p *ChromePage) Back(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.run(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("go back: %w", err)
	}
	p.settle(ctx)
	return nil
}

// Text returns the visible text of the page body.
func (p *ChromePage) Text(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var text string
	if err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

// State indexes the interactive elements of the page and returns them with
// the current URL and title.
func (p *ChromePage) State(ctx context.Context) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var st State
	if err := p.run(ctx,
		chromedp.Location(&st.URL),
		chromedp.Title(&st.Title),
		chromedp.Evaluate(indexElementsJS, &st.Elements),
	); err != nil {
		return State{}, fmt.Errorf("read page state: %w", err)
	}
	return st, nil
}

// Screenshot captures the page as PNG.
func (p *ChromePage) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if opts.Format != "" && opts.Format != PNG {
		return nil, fmt.Errorf("screenshot: unsupported format %q", opts.Format)
	}

	var ignored bool
	if opts.DisableAnimations {
		if err := p.run(ctx, chromedp.Evaluate(disableAnimationsJS, &ignored)); err != nil {
			return nil, fmt.Errorf("disable animations: %w", err)
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
			defer cancel()
			if err := p.run(rctx, chromedp.Evaluate(restoreAnimationsJS, &ignored)); err != nil {
				log.Debug().Err(err).Msg("restore animations")
			}
		}()
	}

	var buf []byte
	var capture chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if opts.FullPage {
		// Quality 100 selects PNG encoding.
		capture = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, capture); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *ChromePage) selector(ctx context.Context, index int) (string, error) {
	sel := "[" + indexAttr + `="` + strconv.Itoa(index) + `"]`
	var found bool
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf("document.querySelector(%q) !== null", sel), &found)); err != nil {
		return "", fmt.Errorf("resolve element %d: %w", index, err)
	}
	if !found {
		return "", fmt.Errorf("%w: index %d", ErrElementNotFound, index)
	}
	return sel, nil
}

const indexElementsJS = `(() => {
  const attr = "` + indexAttr + `";
  document.querySelectorAll("[" + attr + "]").forEach(el => el.removeAttribute(attr));
  const selector = "a[href], button, input, select, textarea, [role=button], [role=link], [role=checkbox], [onclick], [contenteditable=true]";
  const out = [];
  let i = 0;
  document.querySelectorAll(selector).forEach(el => {
    const r = el.getBoundingClientRect();
    const style = window.getComputedStyle(el);
    if (r.width === 0 || r.height === 0 || style.visibility === "hidden" || style.display === "none") {
      return;
    }
    i++;
    el.setAttribute(attr, String(i));
    out.push({
      index: i,
      tag: el.tagName.toLowerCase(),
      text: (el.innerText || el.value || el.getAttribute("aria-label") || el.getAttribute("placeholder") || "").trim().slice(0, 120),
      role: el.getAttribute("role") || "",
      type: el.getAttribute("type") || "",
      href: el.getAttribute("href") || ""
    });
  });
  return out;
})()`

const disableAnimationsJS = `(() => {
  if (document.getElementById("evalrunner-no-animations")) { return true; }
  const s = document.createElement("style");
  s.id = "evalrunner-no-animations";
  s.textContent = "*, *::before, *::after { animation: none !important; transition: none !important; caret-color: transparent !important; }";
  document.head.appendChild(s);
  return true;
})()`

const restoreAnimationsJS = `(() => {
  const s = document.getElementById("evalrunner-no-animations");
  if (s) { s.remove(); }
  return true;
})()`

package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
)

const (
	pollInterval = 250 * time.Millisecond

	// idleExpr is true once the document is complete and no ASP.NET partial
	// postback is in flight.
	idleExpr = `document.readyState === "complete" &&
!(window.Sys && Sys.WebForms && Sys.WebForms.PageRequestManager &&
  Sys.WebForms.PageRequestManager.getInstance().get_isInAsyncPostBack())`

	// stampExpr marks the current document before a submit and hooks the
	// end of UpdatePanel postbacks. A full reload drops the marker.
	stampExpr = `(function() {
  window.__ewbStamp = true;
  window.__ewbAsyncDone = false;
  if (window.Sys && Sys.WebForms && Sys.WebForms.PageRequestManager && !window.__ewbHooked) {
    Sys.WebForms.PageRequestManager.getInstance().add_endRequest(function() { window.__ewbAsyncDone = true; });
    window.__ewbHooked = true;
  }
  return true;
})()`

	submitStateExpr = `({stamp: !!window.__ewbStamp, asyncDone: window.__ewbAsyncDone === true, idle: (` + idleExpr + `)})`
)

// submitState is polled after a submit click.
type submitState struct {
	Stamp     bool `json:"stamp"`
	AsyncDone bool `json:"asyncDone"`
	Idle      bool `json:"idle"`
}

// settled is true after a full reload (marker gone) or a finished partial
// postback, once the page is idle either way.
func (s submitState) settled() bool {
	return s.Idle && (!s.Stamp || s.AsyncDone)
}

// Browser owns the Chrome process and the first tab.
type Browser struct {
	allocCancel context.CancelFunc
	page        *chromePage
	logger      *slog.Logger
}

// NewBrowser starts Chrome with the configured flags and opens one tab.
func NewBrowser(cfg config.BrowserConfig, logger *slog.Logger) (*Browser, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", true))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	opts = append(opts, chromedp.WindowSize(1366, 900))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chromedp error", "detail", fmt.Sprintf(format, args...))
		}))

	// First Run launches the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("Browser started", "headless", cfg.Headless)
	return &Browser{
		allocCancel: allocCancel,
		page:        &chromePage{tabCtx: tabCtx, cancel: tabCancel, logger: logger},
		logger:      logger,
	}, nil
}

// Page returns the browser's first tab.
func (b *Browser) Page() Page {
	return b.page
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	err := b.page.Close()
	b.allocCancel()
	return err
}

type chromePage struct {
	tabCtx context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// scope derives a context on the tab that also ends with ctx.
func (p *chromePage) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		prev := cancel
		cancel = func() { cancelDeadline(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := p.scope(ctx)
	defer cancel()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) WaitIdle(ctx context.Context) error {
	return p.waitFor(ctx, idleExpr)
}

// waitFor evaluates expr until it is true. Evaluation errors are retried
// because a postback destroys the execution context under the query.
func (p *chromePage) waitFor(ctx context.Context, expr string) error {
	return p.poll(ctx, func(runCtx context.Context) bool {
		var ok bool
		return chromedp.Run(runCtx, chromedp.Evaluate(expr, &ok)) == nil && ok
	})
}

// poll runs check every pollInterval until it reports true. Evaluation
// errors during a navigation count as not yet.
func (p *chromePage) poll(ctx context.Context, check func(context.Context) bool) error {
	runCtx, cancel := p.scope(ctx)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if check(runCtx) {
			return nil
		}
		select {
		case <-runCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return runCtx.Err()
		case <-ticker.C:
		}
	}
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *chromePage) WaitVisible(ctx context.Context, sel string) error {
	return p.run(ctx, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

func (p *chromePage) Probe(ctx context.Context, sel string, timeout time.Duration) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.run(probeCtx, chromedp.WaitVisible(sel, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return false, nil
	default:
		return false, err
	}
}

func (p *chromePage) Click(ctx context.Context, sel string) error {
	return p.run(ctx, chromedp.Click(sel, chromedp.ByQuery))
}

func (p *chromePage) Submit(ctx context.Context, sel string) error {
	if err := p.run(ctx, chromedp.Evaluate(stampExpr, nil), chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return err
	}
	return p.poll(ctx, func(runCtx context.Context) bool {
		var st submitState
		return chromedp.Run(runCtx, chromedp.Evaluate(submitStateExpr, &st)) == nil && st.settled()
	})
}

func (p *chromePage) Type(ctx context.Context, sel, value string) error {
	return p.run(ctx, chromedp.SendKeys(sel, value, chromedp.ByQuery))
}

func (p *chromePage) SetValue(ctx context.Context, sel, value string) error {
	return p.run(ctx, chromedp.SetValue(sel, value, chromedp.ByQuery))
}

func (p *chromePage) Select(ctx context.Context, sel, value string) error {
	js := fmt.Sprintf(`(function() {
  const el = document.querySelector(%q);
  if (!el) return false;
  el.value = %q;
  el.dispatchEvent(new Event("change", { bubbles: true }));
  return el.value === %q;
})()`, sel, value, value)

	var ok bool
	if err := p.run(ctx, chromedp.WaitReady(sel, chromedp.ByQuery), chromedp.Evaluate(js, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("option %q not available in %s", value, sel)
	}
	return nil
}

func (p *chromePage) Text(ctx context.Context, sel string) (string, error) {
	var text string
	err := p.run(ctx, chromedp.TextContent(sel, &text, chromedp.ByQuery))
	return strings.TrimSpace(text), err
}

func (p *chromePage) OuterHTML(ctx context.Context, sel string) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML(sel, &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Download(ctx context.Context, sel, dst string) error {
	runCtx, cancel := p.scope(ctx)
	defer cancel()

	dir := filepath.Dir(dst)
	done := make(chan *browser.EventDownloadProgress, 1)
	var guid string
	chromedp.ListenTarget(runCtx, func(ev any) {
		switch ev := ev.(type) {
		case *browser.EventDownloadWillBegin:
			guid = ev.GUID
		case *browser.EventDownloadProgress:
			if ev.State != browser.DownloadProgressStateCompleted && ev.State != browser.DownloadProgressStateCanceled {
				return
			}
			if guid != "" && ev.GUID != guid {
				return
			}
			select {
			case done <- ev:
			default:
			}
		}
	})

	err := chromedp.Run(runCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
		chromedp.Click(sel, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to start download: %w", err)
	}

	select {
	case ev := <-done:
		if ev.State == browser.DownloadProgressStateCanceled {
			return fmt.Errorf("download %s was canceled", ev.GUID)
		}
		if err := os.Rename(filepath.Join(dir, ev.GUID), dst); err != nil {
			return fmt.Errorf("failed to save download as %s: %w", dst, err)
		}
		return nil
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return runCtx.Err()
	}
}

func (p *chromePage) ClickAwaitDialog(ctx context.Context, sel, fallback string) (bool, error) {
	runCtx, cancel := p.scope(ctx)
	defer cancel()

	accepted := make(chan error, 1)
	chromedp.ListenTarget(runCtx, func(ev any) {
		if _, ok := ev.(*cdppage.EventJavascriptDialogOpening); !ok {
			return
		}
		// Handling must not block the event loop.
		go func() {
			err := chromedp.Run(runCtx, cdppage.HandleJavaScriptDialog(true))
			select {
			case accepted <- err:
			default:
			}
		}()
	})

	if err := chromedp.Run(runCtx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return false, fmt.Errorf("failed to click %s: %w", sel, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-accepted:
			if err != nil {
				return false, fmt.Errorf("failed to accept dialog: %w", err)
			}
			p.logger.Info("JavaScript dialog accepted")
			return true, nil
		case <-runCtx.Done():
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, runCtx.Err()
		case <-ticker.C:
			var nodes []*cdp.Node
			if err := chromedp.Run(runCtx, chromedp.Nodes(fallback, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
				// The page may be mid-postback; try again on the next tick.
				continue
			}
			if len(nodes) > 0 {
				return false, nil
			}
		}
	}
}

func (p *chromePage) OpenTab(ctx context.Context, sel string) (Page, error) {
	listenCtx, stopListening := context.WithCancel(p.tabCtx)
	defer stopListening()
	created := chromedp.WaitNewTarget(listenCtx, func(info *target.Info) bool {
		return info.Type == "page"
	})

	if err := p.Click(ctx, sel); err != nil {
		return nil, err
	}

	var id target.ID
	select {
	case id = <-created:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tabCtx, cancel := chromedp.NewContext(p.tabCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to new tab: %w", err)
	}
	p.logger.Info("Attached to new tab", "target", id.String())
	return &chromePage{tabCtx: tabCtx, cancel: cancel, logger: p.logger}, nil
}

func (p *chromePage) BringToFront(ctx context.Context) error {
	return p.run(ctx, cdppage.BringToFront())
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

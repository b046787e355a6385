package portal

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

var _ Page = (*fakePage)(nil)

// fakeDOM is what the fake page shows at one URL.
type fakeDOM struct {
	visible map[string]bool
	texts   map[string]string
	html    map[string]string
	dialog  bool
}

// fakePage is a scripted Page. Behaviour is looked up by the URL last
// navigated to; the report page uses the empty URL.
type fakePage struct {
	mu sync.Mutex

	doms      map[string]*fakeDOM
	current   string
	locations []string
	values    map[string]string
	calls     []string

	// exports says which state group codes have an export button.
	exports map[string]bool
	// failures maps "op sel" or "op sel=value" to an error.
	failures map[string]error

	newTab    *fakePage
	navigated []string
	front     bool
	closed    bool
}

func newFakePage() *fakePage {
	return &fakePage{
		doms:     map[string]*fakeDOM{"": newDOM()},
		values:   map[string]string{},
		exports:  map[string]bool{},
		failures: map[string]error{},
	}
}

func newDOM() *fakeDOM {
	return &fakeDOM{visible: map[string]bool{}, texts: map[string]string{}, html: map[string]string{}}
}

func (p *fakePage) dom() *fakeDOM {
	if d, ok := p.doms[p.current]; ok {
		return d
	}
	return newDOM()
}

func (p *fakePage) record(op string, args ...string) error {
	call := op
	for _, a := range args {
		call += " " + a
	}
	p.calls = append(p.calls, call)
	if err, ok := p.failures[call]; ok {
		return err
	}
	return nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("navigate", url); err != nil {
		return err
	}
	p.current = url
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) WaitIdle(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record("idle")
}

func (p *fakePage) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.locations) > 0 {
		loc := p.locations[0]
		if len(p.locations) > 1 {
			p.locations = p.locations[1:]
		}
		return loc, nil
	}
	return p.current, nil
}

func (p *fakePage) WaitVisible(ctx context.Context, sel string) error {
	p.mu.Lock()
	visible := p.dom().visible[sel]
	err := p.record("wait", sel)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if !visible {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakePage) Probe(_ context.Context, sel string, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("probe", sel); err != nil {
		return false, err
	}
	if sel == SelExport {
		return p.exports[p.values[SelState]], nil
	}
	return p.dom().visible[sel], nil
}

func (p *fakePage) Click(_ context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record("click", sel)
}

func (p *fakePage) Submit(_ context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record("submit", sel)
}

func (p *fakePage) Type(_ context.Context, sel, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("type", sel); err != nil {
		return err
	}
	p.values[sel] += value
	return nil
}

func (p *fakePage) SetValue(_ context.Context, sel, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("set", sel+"="+value); err != nil {
		return err
	}
	p.values[sel] = value
	return nil
}

func (p *fakePage) Select(_ context.Context, sel, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("select", sel+"="+value); err != nil {
		return err
	}
	p.values[sel] = value
	return nil
}

func (p *fakePage) Text(_ context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("text", sel); err != nil {
		return "", err
	}
	return p.dom().texts[sel], nil
}

func (p *fakePage) OuterHTML(_ context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("html", sel); err != nil {
		return "", err
	}
	html, ok := p.dom().html[sel]
	if !ok {
		return "", fmt.Errorf("no node for %s", sel)
	}
	return html, nil
}

func (p *fakePage) Download(_ context.Context, sel, dst string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("download", sel+"="+p.values[SelState]); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("<table><tr><th>EWB No.</th></tr></table>"), 0644)
}

func (p *fakePage) ClickAwaitDialog(ctx context.Context, sel, fallback string) (bool, error) {
	p.mu.Lock()
	d := p.dom()
	err := p.record("click-dialog", sel)
	p.mu.Unlock()
	switch {
	case err != nil:
		return false, err
	case d.dialog:
		return true, nil
	case d.visible[fallback]:
		return false, nil
	}
	<-ctx.Done()
	return false, ctx.Err()
}

func (p *fakePage) OpenTab(_ context.Context, sel string) (Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("open-tab", sel); err != nil {
		return nil, err
	}
	if p.newTab == nil {
		return nil, fmt.Errorf("no tab opened")
	}
	return p.newTab, nil
}

func (p *fakePage) BringToFront(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.front = true
	return p.record("front")
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) called(call string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == call {
			return true
		}
	}
	return false
}

// fakeSignal replays URLs, repeating the last one.
type fakeSignal struct {
	mu   sync.Mutex
	urls []string
	hits int
}

func (s *fakeSignal) Location(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++
	if len(s.urls) == 0 {
		return "", fmt.Errorf("no page")
	}
	u := s.urls[0]
	if len(s.urls) > 1 {
		s.urls = s.urls[1:]
	}
	return u, nil
}

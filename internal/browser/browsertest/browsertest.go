// Package browsertest provides recording browser doubles for routine and gateway tests.
package browsertest

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/scrape-gateway/internal/browser"
)

// Operation names recorded by Page.
const (
	OpNavigate    = "navigate"
	OpExists      = "exists"
	OpClick       = "click"
	OpWaitVisible = "waitVisible"
	OpType        = "type"
	OpPressEnter  = "pressEnter"
	OpContent     = "content"
)

// Call captures one page interaction.
type Call struct {
	Op       string
	URL      string
	Selector string
	Text     string
	Timeout  time.Duration
}

// Page records every interaction and replays canned results.
type Page struct {
	// HTML is returned by Content.
	HTML string
	// Present lists selectors Exists reports as matching.
	Present map[string]bool
	// Errors maps an operation name to the error it should return.
	Errors map[string]error
	// Block lists operations that never complete on their own; they return
	// once their timeout or ctx ends, like a wait for a node that stays hidden.
	Block map[string]bool

	mu    sync.Mutex
	calls []Call
}

// NewPage returns a Page serving html.
func NewPage(html string) *Page {
	return &Page{HTML: html}
}

var _ browser.Page = (*Page)(nil)

func (p *Page) record(call Call) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return p.Errors[call.Op]
}

// Calls returns a copy of the recorded interactions in order.
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsFor filters the recorded interactions by operation.
func (p *Page) CallsFor(op string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record(Call{Op: OpNavigate, URL: url, Timeout: timeout})
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := p.record(Call{Op: OpExists, Selector: selector}); err != nil {
		return false, err
	}
	return p.Present[selector], nil
}

func (p *Page) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.record(Call{Op: OpClick, Selector: selector, Timeout: timeout}); err != nil {
		return err
	}
	return p.block(ctx, OpClick, timeout)
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.record(Call{Op: OpWaitVisible, Selector: selector, Timeout: timeout}); err != nil {
		return err
	}
	return p.block(ctx, OpWaitVisible, timeout)
}

// block parks a Block-listed operation until timeout (when positive) or ctx ends.
func (p *Page) block(ctx context.Context, op string, timeout time.Duration) error {
	p.mu.Lock()
	blocked := p.Block[op]
	p.mu.Unlock()
	if !blocked {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record(Call{Op: OpType, Selector: selector, Text: text})
}

func (p *Page) PressEnter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record(Call{Op: OpPressEnter})
}

func (p *Page) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.record(Call{Op: OpContent}); err != nil {
		return "", err
	}
	return p.HTML, nil
}

// Session hands out a shared Page and counts Close calls.
type Session struct {
	page *Page

	mu     sync.Mutex
	closes int
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Page() browser.Page {
	return s.page
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Closes reports how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Launcher returns Sessions wrapping Page, or LaunchErr when set.
type Launcher struct {
	Page      *Page
	LaunchErr error

	mu       sync.Mutex
	sessions []*Session
	attempts int
}

// NewLauncher returns a Launcher whose sessions all drive page.
func NewLauncher(page *Page) *Launcher {
	return &Launcher{Page: page}
}

var _ browser.Launcher = (*Launcher)(nil)

func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page := l.Page
	if page == nil {
		page = NewPage("")
	}
	s := &Session{page: page}
	l.sessions = append(l.sessions, s)
	return s, nil
}

// Attempts reports how many times Launch was called.
func (l *Launcher) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

// Sessions returns the sessions launched so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Session, len(l.sessions))
	copy(out, l.sessions)
	return out
}

// OpenSessions counts sessions that have not been closed.
func (l *Launcher) OpenSessions() int {
	open := 0
	for _, s := range l.Sessions() {
		if s.Closes() == 0 {
			open++
		}
	}
	return open
}

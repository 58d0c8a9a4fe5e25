package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
)

const (
	lifecycleInit = "init"
	// lifecycleNetworkAlmostIdle fires once no more than two connections stay open for 500ms.
	lifecycleNetworkAlmostIdle = "networkAlmostIdle"
)

// lifecycle tracks main-frame lifecycle events so Navigate can wait for a quiet network.
type lifecycle struct {
	mu        sync.Mutex
	mainFrame cdp.FrameID
	loader    cdp.LoaderID
	idle      bool
	changed   chan struct{}
}

func newLifecycle() *lifecycle {
	return &lifecycle{changed: make(chan struct{}, 1)}
}

func (l *lifecycle) captureMainFrame(ctx context.Context) error {
	tree, err := page.GetFrameTree().Do(ctx)
	if err != nil {
		return fmt.Errorf("get frame tree: %w", err)
	}
	if tree == nil || tree.Frame == nil {
		return fmt.Errorf("get frame tree: no main frame")
	}
	l.mu.Lock()
	l.mainFrame = tree.Frame.ID
	l.mu.Unlock()
	return nil
}

func (l *lifecycle) handle(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mainFrame != "" && e.FrameID != l.mainFrame {
		return
	}
	switch e.Name {
	case lifecycleInit:
		l.loader = e.LoaderID
		l.idle = false
	case lifecycleNetworkAlmostIdle:
		if l.loader == "" || e.LoaderID != l.loader {
			return
		}
		l.idle = true
		select {
		case l.changed <- struct{}{}:
		default:
		}
	}
}

// reset forgets the previous document so stale idle events are ignored.
func (l *lifecycle) reset() {
	l.mu.Lock()
	l.loader = ""
	l.idle = false
	l.mu.Unlock()
	select {
	case <-l.changed:
	default:
	}
}

func (l *lifecycle) isIdle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.idle
}

func (l *lifecycle) waitIdle(ctx context.Context) error {
	for {
		if l.isIdle() {
			return nil
		}
		select {
		case <-l.changed:
		case <-ctx.Done():
			return fmt.Errorf("network never settled: %w", ctx.Err())
		}
	}
}

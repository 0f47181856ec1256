// Package engine renders a page in headless Chrome and evaluates an
// accessibility rule set against the settled DOM.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/iaccessible/internal/domain/scans"
)

// ErrClosed is returned by GetCompliance after Close.
var ErrClosed = errors.New("accessibility engine already closed")

const defaultIdleAfter = 500 * time.Millisecond

type Options struct {
	ExecPath    string
	Headless    bool
	IdleAfter   time.Duration
	RuleArchive string
	Policies    []string
	Logger      *zap.Logger
}

func (o Options) ruleArchive() string {
	if o.RuleArchive == "" {
		return "latest"
	}
	return o.RuleArchive
}

func (o Options) policies() []string {
	if len(o.Policies) == 0 {
		return []string{"WCAG_2_1"}
	}
	return o.Policies
}

func (o Options) idleAfter() time.Duration {
	if o.IdleAfter <= 0 {
		return defaultIdleAfter
	}
	return o.IdleAfter
}

// Checker is one browser session. The browser is started on the first
// GetCompliance call and torn down by Close.
type Checker struct {
	opts Options
	log  *zap.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closed        bool
}

func NewChecker(opts Options) *Checker {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{opts: opts, log: log}
}

// NewFactory returns a factory handing out a fresh Checker per scan.
func NewFactory(opts Options) domain.EngineFactory {
	return func() domain.Engine { return NewChecker(opts) }
}

// GetCompliance renders target, waits for the network to go idle and returns
// the evaluated report. Cancelling ctx aborts the render.
func (c *Checker) GetCompliance(ctx context.Context, target, label string) (*domain.Report, error) {
	start := time.Now()
	bctx, err := c.acquire()
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, c.cancelBrowser)
	defer stop()

	src, finalURL, err := render(bctx, target, c.opts.idleAfter())
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("rendering %s: %w", target, err)
	}
	if finalURL == "" || finalURL == "about:blank" {
		finalURL = target
	}
	c.log.Debug("page rendered", zap.String("url", finalURL), zap.Int("bytes", len(src)))

	report, err := evaluate(src, finalURL, start, c.opts)
	if err != nil {
		return nil, err
	}
	report.Label = label
	return report, nil
}

// Close releases the browser. It is safe to call when nothing was started.
func (c *Checker) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.browserCtx == nil {
		return nil
	}
	err := chromedp.Cancel(c.browserCtx)
	c.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing browser: %w", err)
	}
	return nil
}

func (c *Checker) acquire() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.browserCtx != nil {
		return c.browserCtx, nil
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", c.opts.Headless))
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	c.allocCancel = allocCancel
	c.browserCtx = browserCtx
	c.browserCancel = browserCancel
	c.log.Debug("browser session allocated", zap.Bool("headless", c.opts.Headless))
	return browserCtx, nil
}

func (c *Checker) cancelBrowser() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCancel != nil {
		c.browserCancel()
	}
}

func render(ctx context.Context, target string, idleAfter time.Duration) (src, finalURL string, err error) {
	idle := watchNetworkIdle(ctx, idleAfter)
	if err := chromedp.Run(ctx, network.Enable(), chromedp.Navigate(target)); err != nil {
		return "", "", err
	}
	idle.kick()

	select {
	case <-idle.done:
	case <-ctx.Done():
		return "", "", ctx.Err()
	}

	err = chromedp.Run(ctx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &src, chromedp.ByQuery),
	)
	return src, finalURL, err
}

// idleWatcher closes done once no request has been in flight for idleAfter.
type idleWatcher struct {
	after time.Duration
	done  chan struct{}
	once  sync.Once

	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	timer    *time.Timer
}

func watchNetworkIdle(ctx context.Context, after time.Duration) *idleWatcher {
	w := &idleWatcher{
		after:    after,
		done:     make(chan struct{}),
		inflight: map[network.RequestID]struct{}{},
	}
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			w.started(e.RequestID)
		case *network.EventLoadingFinished:
			w.finished(e.RequestID)
		case *network.EventLoadingFailed:
			w.finished(e.RequestID)
		}
	})
	return w
}

func (w *idleWatcher) started(id network.RequestID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inflight[id] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *idleWatcher) finished(id network.RequestID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, id)
	if len(w.inflight) == 0 {
		w.arm()
	}
}

// kick arms the timer for pages that were already quiet after navigation.
func (w *idleWatcher) kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.inflight) == 0 {
		w.arm()
	}
}

// arm must be called with mu held.
func (w *idleWatcher) arm() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.after, func() {
		w.mu.Lock()
		n := len(w.inflight)
		w.mu.Unlock()
		if n == 0 {
			w.once.Do(func() { close(w.done) })
		}
	})
}

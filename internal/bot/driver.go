package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/allanbts17/zoom-meeting-bot/internal/browser"
)

// Runner abstracts the automation driver so the lifecycle state machine is
// testable without a browser. The production implementation is chromedp.
type Runner interface {
	// Launch starts the browser and its single page.
	Launch(ctx context.Context) error
	// Run executes actions against the page. A deadline on ctx bounds the
	// whole sequence.
	Run(ctx context.Context, actions ...chromedp.Action) error
	// Evaluate runs a JavaScript expression in the page, awaiting promise
	// resolution, and decodes the result into res.
	Evaluate(ctx context.Context, expr string, res interface{}) error
	// Close tears down the page, the browser, and launcher resources.
	// Idempotent.
	Close(ctx context.Context) error
}

// chromedpRunner drives one browser and one page over CDP.
type chromedpRunner struct {
	launcher browser.Launcher
	log      zerolog.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	pageCtx     context.Context
	pageCancel  context.CancelFunc
	closed      bool
}

// NewRunner creates the chromedp-backed runner.
func NewRunner(launcher browser.Launcher, log zerolog.Logger) Runner {
	return &chromedpRunner{launcher: launcher, log: log}
}

func (r *chromedpRunner) Launch(ctx context.Context) error {
	// The browser outlives the launching request, so the allocator hangs
	// off the background context; ctx only bounds startup.
	allocCtx, allocCancel, err := r.launcher.Allocate(context.Background())
	if err != nil {
		return fmt.Errorf("allocate browser: %w", err)
	}
	r.allocCtx = allocCtx
	r.allocCancel = allocCancel

	r.pageCtx, r.pageCancel = chromedp.NewContext(allocCtx)

	startCtx := r.pageCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithDeadline(startCtx, deadline)
		defer cancel()
	}

	// An empty run forces the browser process to actually start.
	if err := chromedp.Run(startCtx); err != nil {
		r.Close(ctx)
		return fmt.Errorf("start browser: %w", err)
	}
	return nil
}

func (r *chromedpRunner) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := r.pageCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (r *chromedpRunner) Evaluate(ctx context.Context, expr string, res interface{}) error {
	return r.Run(ctx, chromedp.Evaluate(expr, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (r *chromedpRunner) Close(ctx context.Context) error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.pageCancel != nil {
		r.pageCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return r.launcher.Close(ctx)
}

// waitURLContains polls the page location until it contains fragment.
// Bounded by the surrounding context deadline.
func waitURLContains(fragment string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			var loc string
			if err := chromedp.Location(&loc).Do(ctx); err != nil {
				return err
			}
			if strings.Contains(loc, fragment) {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(250 * time.Millisecond):
			}
		}
	})
}

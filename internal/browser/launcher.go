// Package browser produces chromedp allocators for meeting sessions,
// either by starting Chrome locally or by attaching to a Dockerized
// instance.
package browser

import (
	"context"

	"github.com/chromedp/chromedp"
)

// Launcher yields the exec/remote allocator a session attaches to.
type Launcher interface {
	// Allocate returns an allocator context. The returned cancel func
	// releases the allocator; Close releases launcher-owned resources
	// (e.g. a container).
	Allocate(ctx context.Context) (context.Context, context.CancelFunc, error)
	Close(ctx context.Context) error
}

// Options shape one browser launch.
type Options struct {
	Headless    bool
	UserDataDir string
}

// LocalLauncher starts Chrome on this host with synthetic-media permissions
// pre-granted, so programmatic capture requests are never blocked by a
// permission prompt or a missing physical device.
type LocalLauncher struct {
	opts Options
}

// NewLocalLauncher creates a local launcher.
func NewLocalLauncher(opts Options) *LocalLauncher {
	return &LocalLauncher{opts: opts}
}

func (l *LocalLauncher) Allocate(ctx context.Context) (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", l.opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("use-fake-device-for-media-stream", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.WindowSize(1280, 720),
	)
	if l.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(l.opts.UserDataDir))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	return allocCtx, cancel, nil
}

func (l *LocalLauncher) Close(ctx context.Context) error { return nil }

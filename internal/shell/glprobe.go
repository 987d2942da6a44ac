package shell

import (
	"context"
	"log"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

const glProbeUA = "AtriumProbe/1.0"

// glProbe attempts to acquire a canvas drawing context under the known
// context names inside a real headless browser engine. It backs the
// /probe/webgl diagnostic and can stand in for a client-reported
// rendering-context signal when none is available.
type glProbe struct {
	allocator context.Context
	cancel    context.CancelFunc
	logger    *log.Logger
}

type glProbeResult struct {
	Supported bool            `json:"supported"`
	Contexts  map[string]bool `json:"contexts"`
}

const glProbeScript = `(() => {
	const names = ["webgl2", "webgl", "experimental-webgl"];
	const out = {};
	const canvas = document.createElement("canvas");
	for (const name of names) {
		try {
			out[name] = !!canvas.getContext(name);
		} catch (e) {
			out[name] = false;
		}
	}
	return out;
})()`

func newGLProbe(logger *log.Logger) (*glProbe, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &glProbe{
		allocator: allocCtx,
		cancel:    cancel,
		logger:    logger,
	}, nil
}

func (p *glProbe) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Check runs the context-acquisition script and reports per-name results.
func (p *glProbe) Check(ctx context.Context, timeout time.Duration) (glProbeResult, error) {
	taskCtx, cancelBrowser := chromedp.NewContext(p.allocator)
	defer cancelBrowser()

	if ctx != nil {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithCancel(taskCtx)
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-taskCtx.Done():
			}
		}()
		defer cancel()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(taskCtx, timeout)
		defer cancel()
	}

	contexts := map[string]bool{}
	err := chromedp.Run(taskCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(glProbeUA).Do(ctx)
		}),
		chromedp.Navigate("about:blank"),
		chromedp.Evaluate(glProbeScript, &contexts),
	)
	if err != nil {
		return glProbeResult{}, err
	}
	res := glProbeResult{Contexts: contexts}
	for _, ok := range contexts {
		if ok {
			res.Supported = true
			break
		}
	}
	return res, nil
}

package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"teamcal/internal/config"
	appLog "teamcal/internal/log"
	"teamcal/internal/popover"
)

// Default capture parameters. These match the snapshot defaults of the
// config.
const (
	DefaultWidth      = 1280
	DefaultHeight     = 800
	DefaultTimeoutSec = 30
)

// ReadySelector is set by the /calendar page once the grid is rendered.
const ReadySelector = `[data-ready="true"]`

// CalendarSelector is the root element of the /calendar page.
const CalendarSelector = "#calendar"

var (
	ErrNoURL        = errors.New("capture: URL is required")
	ErrNoOutputPath = errors.New("capture: OutputPath is required")
)

// CaptureOptions defines parameters for a Chromium-based screenshot capture.
type CaptureOptions struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/calendar".
	URL string

	// OutputPath is where the PNG screenshot will be written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

// OptionsFromConfig builds capture options for pageURL from the snapshot
// section of cfg.
func OptionsFromConfig(cfg *config.Config, pageURL string) CaptureOptions {
	return CaptureOptions{
		URL:        pageURL,
		OutputPath: cfg.Snapshot.OutputPath,
		Width:      cfg.Snapshot.Width,
		Height:     cfg.Snapshot.Height,
		Timeout:    time.Duration(cfg.Snapshot.TimeoutSec) * time.Second,
	}
}

func (o *CaptureOptions) applyDefaults() error {
	if o.URL == "" {
		return ErrNoURL
	}
	if o.OutputPath == "" {
		return ErrNoOutputPath
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return nil
}

// Result describes a finished capture.
type Result struct {
	Path string
	// Calendar is the rendered size of the calendar root. Measured is false
	// when the page did not expose it.
	Calendar popover.Size
	Measured bool
}

// CaptureCalendarPNG launches a headless Chromium instance via chromedp,
// navigates to opts.URL, waits for `[data-ready="true"]`, measures the
// calendar root and writes a full-page PNG screenshot.
func CaptureCalendarPNG(parentCtx context.Context, opts CaptureOptions) (Result, error) {
	if err := opts.applyDefaults(); err != nil {
		return Result{}, err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(300 * time.Millisecond),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return Result{}, fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	res := Result{Path: opts.OutputPath}
	res.Calendar, res.Measured = NewBrowserMeasurer(ctx).Measure(CalendarSelector)

	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&png, 100)); err != nil {
		return Result{}, fmt.Errorf("capture: screenshot failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("capture: failed to create output dir: %w", err)
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return Result{}, fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("capture: wrote PNG", "path", opts.OutputPath, "bytes", len(png),
		"calendar_w", res.Calendar.Width, "calendar_h", res.Calendar.Height)
	return res, nil
}

// BrowserMeasurer measures elements of the page loaded in a chromedp
// context. It implements popover.Measurer.
type BrowserMeasurer struct {
	ctx     context.Context
	timeout time.Duration
}

// NewBrowserMeasurer binds a measurer to a chromedp context.
func NewBrowserMeasurer(ctx context.Context) *BrowserMeasurer {
	return &BrowserMeasurer{ctx: ctx, timeout: 2 * time.Second}
}

// Measure reports the bounding box size of the first element matching the
// CSS selector target. Missing elements and zero boxes report ok=false.
func (m *BrowserMeasurer) Measure(target string) (popover.Size, bool) {
	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	var size popover.Size
	if err := chromedp.Run(ctx, chromedp.Evaluate(measureScript(target), &size)); err != nil {
		appLog.Debug("capture: measure failed", "target", target, "err", err)
		return popover.Size{}, false
	}
	if size.Width <= 0 || size.Height <= 0 {
		return popover.Size{}, false
	}
	return size, true
}

// measureScript returns a JS expression yielding {width, height}, or zeros
// when nothing matches.
func measureScript(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return {width: 0, height: 0};
  const r = el.getBoundingClientRect();
  return {width: r.width, height: r.height};
})()`, quoted)
}

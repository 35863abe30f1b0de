// Package tesseract implements the ocr.Engine contract in-process on top of
// the gosseract binding, as an alternative to the subprocess vision helper.
// Jobs fan out to a bounded pool of workers, each with its own short-lived
// tesseract client, and results surface through the same streaming Collect
// semantics the other engines use.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/semaphore"

	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

const (
	// DefaultCollectTimeout bounds the wait for each next result.
	DefaultCollectTimeout = 5 * time.Minute

	eventBuffer = 64

	stateNotStarted = "not-started"
	stateRunning    = "running"
	stateStopped    = "stopped"
)

type event struct {
	result ocr.PageResult
	err    error
}

// Engine recognizes pages with libtesseract. The zero value is not usable;
// construct with New.
type Engine struct {
	workers        int
	collectTimeout time.Duration
	log            observability.Logger

	mu     sync.Mutex
	state  string
	events chan event
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithWorkers bounds concurrent recognitions. Defaults to runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithLogger routes the engine's diagnostics to log.
func WithLogger(log observability.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithCollectTimeout overrides the per-result wait used by Collect.
func WithCollectTimeout(d time.Duration) Option {
	return func(e *Engine) { e.collectTimeout = d }
}

// New builds a tesseract-backed engine. Nothing is checked until Start.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers:        runtime.NumCPU(),
		collectTimeout: DefaultCollectTimeout,
		log:            observability.NopLogger{},
		state:          stateNotStarted,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return "tesseract" }

// Start probes the tesseract installation and readies the worker pool.
func (e *Engine) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case stateRunning:
		return nil
	case stateStopped:
		return &ocr.UnavailableError{State: e.state}
	}
	if _, err := gosseract.GetAvailableLanguages(); err != nil {
		return &ocr.ConfigError{Path: "tesseract", Err: err}
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.events = make(chan event, eventBuffer)
	e.sem = semaphore.NewWeighted(int64(e.workers))
	e.state = stateRunning
	e.log.Debug("tesseract engine started", observability.Int("workers", e.workers))
	return nil
}

// Send queues one page for recognition. The page is processed by the worker
// pool; its result or failure surfaces through Collect.
func (e *Engine) Send(job ocr.Job) error {
	e.mu.Lock()
	if e.state != stateRunning {
		st := e.state
		e.mu.Unlock()
		return &ocr.UnavailableError{State: st}
	}
	e.wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			return // stopped while queued
		}
		res, err := e.recognize(job)
		e.sem.Release(1)
		ev := event{result: res}
		if err != nil {
			ev = event{err: fmt.Errorf("tesseract page %d: %w", job.PageIndex, err)}
		}
		select {
		case e.events <- ev:
		case <-e.ctx.Done():
			e.log.Debug("dropping result after stop", observability.Int("page", job.PageIndex))
		}
	}()
	return nil
}

// Collect streams up to expected results as workers finish them, with the
// same terminal semantics as the subprocess client: a recognition failure,
// per-result timeout, or context cancellation ends the batch.
func (e *Engine) Collect(ctx context.Context, expected int) (<-chan ocr.PageResult, <-chan error) {
	results := make(chan ocr.PageResult)
	errs := make(chan error)
	e.mu.Lock()
	st := e.state
	events := e.events
	timeout := e.collectTimeout
	e.mu.Unlock()
	go func() {
		defer close(results)
		defer close(errs)
		if st != stateRunning {
			errs <- &ocr.UnavailableError{State: st}
			return
		}
		if expected <= 0 {
			return
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		collected := 0
		for collected < expected {
			select {
			case ev := <-events:
				if ev.err != nil {
					errs <- ev.err
					return
				}
				select {
				case results <- ev.result:
					collected++
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
				timer.Reset(timeout)
			case <-timer.C:
				errs <- &ocr.TimeoutError{Collected: collected, Expected: expected, Wait: timeout}
				return
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return results, errs
}

// Stop cancels queued work, waits for in-flight recognitions, and marks the
// engine stopped. Idempotent, callable from any state.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != stateRunning {
		e.state = stateStopped
		e.mu.Unlock()
		return nil
	}
	e.state = stateStopped
	cancel := e.cancel
	e.mu.Unlock()
	cancel()
	e.wg.Wait()
	return nil
}

func (e *Engine) recognize(job ocr.Job) (ocr.PageResult, error) {
	c := gosseract.NewClient()
	defer c.Close()
	if err := c.SetImage(job.ImagePath); err != nil {
		return ocr.PageResult{}, fmt.Errorf("set image: %w", err)
	}
	if langs := Codes(job.Languages); len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return ocr.PageResult{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if job.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(job.DPI)); err != nil {
			return ocr.PageResult{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	width, height := job.Width, job.Height
	if width <= 0 || height <= 0 {
		var err error
		width, height, err = imageSize(job.ImagePath)
		if err != nil {
			return ocr.PageResult{}, err
		}
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return ocr.PageResult{}, fmt.Errorf("bounding boxes: %w", err)
	}
	return ocr.PageResult{
		PageIndex: job.PageIndex,
		Width:     width,
		Height:    height,
		Items:     itemsFromBoxes(boxes, width, height),
	}, nil
}

// itemsFromBoxes converts tesseract's top-left pixel rectangles into the
// normalized bottom-left boxes of the engine contract.
func itemsFromBoxes(boxes []gosseract.BoundingBox, widthPx, heightPx int) []ocr.TextItem {
	if widthPx <= 0 || heightPx <= 0 {
		return nil
	}
	w, h := float64(widthPx), float64(heightPx)
	items := make([]ocr.TextItem, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		items = append(items, ocr.TextItem{
			Text: text,
			BBox: ocr.BoundingBox{
				X: float64(b.Box.Min.X) / w,
				Y: 1 - float64(b.Box.Max.Y)/h,
				W: float64(b.Box.Dx()) / w,
				H: float64(b.Box.Dy()) / h,
			},
			Confidence: b.Confidence / 100,
		})
	}
	return items
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image size: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

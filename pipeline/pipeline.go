// Package pipeline assembles rendering, recognition, and overlay composition
// into document-level operations: text extraction from PDFs or image sets,
// and searchable-PDF production.
//
// Stages run pipelined: each page is submitted for recognition as soon as it
// is rendered, and results are gathered once the whole batch is in flight.
// Engines are single-use, so the configured engine is consumed by the first
// operation that recognizes text; construct a fresh Pipeline per run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/ocrkit/document"
	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr"
	"github.com/wudi/ocrkit/overlay"
	"github.com/wudi/ocrkit/render"
)

// DefaultDPI is the rasterization resolution used when Config.DPI is unset.
const DefaultDPI = 300

// MergeStrategy selects how the recognized text layer meets the original
// document.
type MergeStrategy string

const (
	// MergeStamp stamps the text layer onto the original pages, leaving
	// everything else in the file untouched. The default.
	MergeStamp MergeStrategy = "stamp"
	// MergeRebuild re-draws every page into a fresh document via template
	// import. More tolerant of damaged files, but drops page rotation flags
	// and interactive features.
	MergeRebuild MergeStrategy = "rebuild"
)

// Config carries everything a Pipeline needs. The zero value is not usable:
// Engine is required.
type Config struct {
	// Engine performs text recognition. Engines are single-use, so one
	// Pipeline performs at most one recognition pass.
	Engine ocr.Engine

	// DPI is the rasterization resolution for PDF pages. Values <= 0 fall
	// back to DefaultDPI. Ignored when Passthrough is set.
	DPI int
	// Passthrough skips rasterization and recognizes the images embedded in
	// the PDF as-is. Pages without a usable embedded image are skipped.
	Passthrough bool
	// Workers bounds concurrent page rendering and image probing. Defaults
	// to runtime.NumCPU.
	Workers int

	// Languages are BCP-47 recognition hints. Empty keeps the engine
	// defaults.
	Languages []string
	// RecognitionLevel selects the speed/accuracy trade-off. Empty means
	// accurate.
	RecognitionLevel ocr.RecognitionLevel
	// CPUOnly keeps recognition off the GPU.
	CPUOnly bool
	// AutoDetectLanguage lets the engine choose languages itself.
	AutoDetectLanguage bool

	// Pages restricts processing to a zero-based subset. Nil means all.
	Pages []int
	// SkipPages removes pages from the selection.
	SkipPages []int

	// WorkDir receives intermediate page images and is kept afterwards.
	// Empty means a throwaway directory under the system temp dir.
	WorkDir string
	// SidecarPath, when set, receives the recognized plain text of every
	// page, separated by form feeds, next to the searchable PDF.
	SidecarPath string

	// Font configures the overlay text layer.
	Font overlay.FontConfig
	// Merge selects the text-layer merge strategy. Defaults to MergeStamp.
	Merge MergeStrategy

	Logger observability.Logger
	Tracer observability.Tracer
}

// Summary reports what CreateSearchablePDF produced.
type Summary struct {
	// Pages is the number of pages that went through recognition. Pages
	// that produced zero text items still count.
	Pages int
	// Items is the total number of recognized text fragments.
	Items int
	// Skipped lists the zero-based pages that were selected but produced no
	// recognition result, in ascending order.
	Skipped []int
	// SidecarPath echoes Config.SidecarPath when a sidecar was written.
	SidecarPath string
}

// Pipeline runs OCR over documents and images. Not safe for concurrent use.
type Pipeline struct {
	cfg    Config
	log    observability.Logger
	tracer observability.Tracer
}

// New validates cfg and builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Engine == nil {
		return nil, errors.New("pipeline: an ocr engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	if cfg.Merge == "" {
		cfg.Merge = MergeStamp
	}
	return &Pipeline{cfg: cfg, log: cfg.Logger, tracer: cfg.Tracer}, nil
}

// ExtractText recognizes the selected pages of a PDF and returns the results
// in page order. Per-page rasterization failures do not abort the batch:
// the remaining results are returned together with the joined page errors,
// so callers may keep partial output.
func (p *Pipeline) ExtractText(ctx context.Context, pdfPath string) ([]ocr.PageResult, error) {
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.extract_text")
	defer span.Finish()

	b, err := p.recognizePDF(ctx, pdfPath)
	if b == nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag(observability.MetricPagesTotal, len(b.results))
	if joined := errors.Join(append([]error{err}, b.pageErrs...)...); joined != nil {
		span.SetError(joined)
		return b.results, joined
	}
	return b.results, nil
}

// CreateSearchablePDF recognizes a PDF and writes a copy with an invisible,
// selectable text layer. Pages that fail to render are left without a text
// layer and reported in Summary.Skipped; an engine failure aborts the run,
// since the output would silently lack text for an unknown span of pages.
func (p *Pipeline) CreateSearchablePDF(ctx context.Context, pdfPath, outPath string) (*Summary, error) {
	start := time.Now()
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.searchable_pdf")
	defer span.Finish()

	b, err := p.recognizePDF(ctx, pdfPath)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	for _, pageErr := range b.pageErrs {
		p.log.Warn("page left without text layer", observability.Error("error", pageErr))
	}

	comp := overlay.New(overlay.Config{Font: p.cfg.Font, Logger: p.log})
	items := 0
	got := make(map[int]bool, len(b.results))
	for _, res := range b.results {
		if res.PageIndex < 0 || res.PageIndex >= len(b.info.Pages) {
			p.log.Warn("dropping result for page outside document",
				observability.Int("page", res.PageIndex))
			continue
		}
		if err := comp.AddPage(res.PageIndex, res, p.dpi(), b.info.Pages[res.PageIndex]); err != nil {
			span.SetError(err)
			return nil, err
		}
		got[res.PageIndex] = true
		items += len(res.Items)
	}
	var skipped []int
	for _, page := range b.selected {
		if !got[page] {
			skipped = append(skipped, page)
		}
	}

	mergeStart := time.Now()
	switch p.cfg.Merge {
	case MergeRebuild:
		err = comp.Rebuild(pdfPath, outPath)
	default:
		err = comp.WriteFinal(pdfPath, outPath)
	}
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag(observability.MetricWriteTime, time.Since(mergeStart))

	sum := &Summary{Pages: len(got), Items: items, Skipped: skipped}
	if p.cfg.SidecarPath != "" {
		if err := writeSidecar(p.cfg.SidecarPath, b.info.PageCount, b.results); err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("write sidecar: %w", err)
		}
		sum.SidecarPath = p.cfg.SidecarPath
	}

	span.SetTag(observability.MetricPagesTotal, sum.Pages)
	span.SetTag(observability.MetricPagesSkipped, len(sum.Skipped))
	span.SetTag(observability.MetricItemsTotal, sum.Items)
	p.log.Info("searchable pdf written",
		observability.String("output", outPath),
		observability.Int("pages", sum.Pages),
		observability.Int("items", sum.Items),
		observability.Int("skipped", len(sum.Skipped)),
		observability.Duration("elapsed", time.Since(start)))
	return sum, nil
}

// ExtractTextFromImages recognizes standalone image files. Each image becomes
// its own page: results use zero-based indexes in input order. Dimensions are
// probed up front so bounding boxes can be denormalized later; a single
// unreadable image fails the whole call before any recognition starts.
func (p *Pipeline) ExtractTextFromImages(ctx context.Context, paths []string) ([]ocr.PageResult, error) {
	if len(paths) == 0 {
		return nil, errors.New("pipeline: no images to recognize")
	}
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.extract_images")
	defer span.Finish()

	pages := make([]render.PageImage, len(paths))
	var g errgroup.Group
	if p.cfg.Workers > 0 {
		g.SetLimit(p.cfg.Workers)
	}
	for i, path := range paths {
		g.Go(func() error {
			w, h, err := render.ImageSize(path)
			if err != nil {
				return fmt.Errorf("probe %s: %w", path, err)
			}
			pages[i] = render.PageImage{
				Page:       i,
				Path:       path,
				Width:      w,
				Height:     h,
				TotalPages: len(paths),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetError(err)
		return nil, err
	}

	engine := p.cfg.Engine
	if err := engine.Start(ctx); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("start %s engine: %w", engine.Name(), err)
	}
	defer p.stopEngine(engine)

	opts := p.jobOptions()
	for _, img := range pages {
		if err := engine.Send(ocr.JobFromPage(img, opts...)); err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("send image %d: %w", img.Page, err)
		}
	}
	results, err := ocr.Gather(ctx, engine, len(pages))
	span.SetTag(observability.MetricPagesTotal, len(results))
	if err != nil {
		span.SetError(err)
	}
	return results, err
}

// ExtractTextFromImageDir recognizes every image file in dir, in lexical
// filename order. Files whose extension is not one of png, jpg, jpeg, tiff,
// or bmp are ignored; it is an error if nothing remains.
func (p *Pipeline) ExtractTextFromImageDir(ctx context.Context, dir string) ([]ocr.PageResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("pipeline: no images found in %s", dir)
	}
	return p.ExtractTextFromImages(ctx, paths)
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".bmp":  true,
}

// batch is the intermediate product of one recognition pass over a PDF.
type batch struct {
	info     *document.Info
	selected []int // zero-based pages picked for processing, ascending
	sent     []render.PageImage
	results  []ocr.PageResult
	pageErrs []error
}

// recognizePDF renders the selected pages and runs them through the engine.
// A non-nil batch may accompany a terminal engine error so callers can keep
// the partial results.
func (p *Pipeline) recognizePDF(ctx context.Context, pdfPath string) (*batch, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.recognize")
	defer span.Finish()
	start := time.Now()

	info, err := document.Inspect(pdfPath)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	selected := document.ResolvePages(info.PageCount, p.cfg.Pages, p.cfg.SkipPages)
	if len(selected) == 0 {
		return nil, fmt.Errorf("pipeline: no pages selected in %s", pdfPath)
	}
	p.log.Info("processing document",
		observability.String("input", pdfPath),
		observability.String("pages", document.FormatPageList(selected)),
		observability.Int("dpi", p.dpi()))

	dir, cleanup, err := p.workDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	engine := p.cfg.Engine
	if err := engine.Start(ctx); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("start %s engine: %w", engine.Name(), err)
	}
	defer p.stopEngine(engine)

	images, renderErrs, _, err := render.Stream(ctx, render.Config{
		Path:    pdfPath,
		DPI:     p.dpi(),
		Workers: p.cfg.Workers,
		Pages:   selected,
		Dir:     dir,
		Logger:  p.log,
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	b := &batch{info: info, selected: selected}
	opts := p.jobOptions()
	for img := range images {
		if err := engine.Send(ocr.JobFromPage(img, opts...)); err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("send page %d: %w", img.Page, err)
		}
		b.sent = append(b.sent, img)
	}
	for pageErr := range renderErrs {
		b.pageErrs = append(b.pageErrs, pageErr)
	}
	span.SetTag(observability.MetricRenderTime, time.Since(start))

	b.results, err = ocr.Gather(ctx, engine, len(b.sent))
	span.SetTag(observability.MetricRecognizeTime, time.Since(start))
	if err != nil {
		span.SetError(err)
	}
	p.log.Debug("batch recognized",
		observability.Int("sent", len(b.sent)),
		observability.Int("results", len(b.results)),
		observability.Int("page_errors", len(b.pageErrs)),
		observability.Duration("elapsed", time.Since(start)))
	return b, err
}

func (p *Pipeline) stopEngine(engine ocr.Engine) {
	if err := engine.Stop(); err != nil {
		p.log.Warn("engine stop failed",
			observability.String("engine", engine.Name()),
			observability.Error("error", err))
	}
}

// dpi resolves the effective rendering resolution: 0 in passthrough mode,
// DefaultDPI when unset.
func (p *Pipeline) dpi() int {
	if p.cfg.Passthrough {
		return 0
	}
	if p.cfg.DPI <= 0 {
		return DefaultDPI
	}
	return p.cfg.DPI
}

func (p *Pipeline) jobOptions() []ocr.JobOption {
	var opts []ocr.JobOption
	if len(p.cfg.Languages) > 0 {
		opts = append(opts, ocr.WithLanguages(p.cfg.Languages...))
	}
	if p.cfg.RecognitionLevel != "" {
		opts = append(opts, ocr.WithRecognitionLevel(p.cfg.RecognitionLevel))
	}
	if p.cfg.CPUOnly {
		opts = append(opts, ocr.WithCPUOnly(true))
	}
	if p.cfg.AutoDetectLanguage {
		opts = append(opts, ocr.WithAutoDetectLanguage(true))
	}
	return opts
}

// workDir returns the directory for intermediate page images and a cleanup
// func. A configured WorkDir is created if needed and kept; a generated temp
// directory is removed once the batch is done with it.
func (p *Pipeline) workDir() (string, func(), error) {
	if p.cfg.WorkDir != "" {
		if err := os.MkdirAll(p.cfg.WorkDir, 0o755); err != nil {
			return "", nil, err
		}
		return p.cfg.WorkDir, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "ocrkit-")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// writeSidecar writes the recognized text of all pages to path, one segment
// per document page separated by form feeds. Pages without results leave an
// empty segment, so segment N always belongs to page N.
func writeSidecar(path string, pageCount int, results []ocr.PageResult) error {
	texts := make([]string, pageCount)
	for _, res := range results {
		if res.PageIndex < 0 || res.PageIndex >= pageCount {
			continue
		}
		lines := make([]string, 0, len(res.Items))
		for _, item := range res.Items {
			if item.Text != "" {
				lines = append(lines, item.Text)
			}
		}
		texts[res.PageIndex] = strings.Join(lines, "\n")
	}
	return os.WriteFile(path, []byte(strings.Join(texts, "\f")), 0o644)
}

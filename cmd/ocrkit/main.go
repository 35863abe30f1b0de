package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wudi/ocrkit/document"
	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr"
	"github.com/wudi/ocrkit/ocr/tesseract"
	"github.com/wudi/ocrkit/ocr/vision"
	"github.com/wudi/ocrkit/overlay"
	"github.com/wudi/ocrkit/pipeline"
)

type options struct {
	input      string
	output     string
	dpi        int
	workers    int
	pages      []int
	skipPages  []int
	languages  []string
	enginePath string
	tesseract  bool
	textOnly   bool
	sidecar    string
	images     []string
	imageDir   string
	fast       bool
	cpuOnly    bool
	autoLang   bool
	merge      pipeline.MergeStrategy
	fontTTF    string
	timeout    time.Duration
	verbose    bool
	quiet      bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ocrkit: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "ocrkit: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: ocrkit -input scan.pdf -output searchable.pdf [flags]\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.input, "input", "", "Input PDF file or directory of PDFs")
	flag.StringVar(&opts.input, "i", "", "Shorthand for -input")
	flag.StringVar(&opts.output, "output", "", "Output PDF file or directory; JSON path in image mode")
	flag.StringVar(&opts.output, "o", "", "Shorthand for -output")
	dpi := flag.Int("dpi", envInt("OCRKIT_DPI", pipeline.DefaultDPI), "Render resolution; 0 recognizes the embedded page images as-is")
	flag.IntVar(&opts.workers, "workers", envInt("OCRKIT_WORKERS", runtime.NumCPU()), "Concurrent page renders")
	pages := flag.String("pages", "", "1-based pages to process, e.g. 1,3,5-10")
	skip := flag.String("skip-pages", "", "1-based pages to exclude")
	languages := flag.String("languages", "", "Comma-separated language hints (BCP-47 tags or tesseract codes)")
	flag.StringVar(&opts.enginePath, "engine", envStr("OCRKIT_ENGINE", ""), "Path to the vision OCR helper binary")
	flag.BoolVar(&opts.tesseract, "tesseract", false, "Recognize with the in-process tesseract engine")
	flag.BoolVar(&opts.textOnly, "text", false, "Extract text only and print JSON to stdout")
	flag.StringVar(&opts.sidecar, "sidecar", "", "Write the recognized plain text to this file")
	imageList := flag.String("images", "", "Comma-separated image files to recognize instead of a PDF")
	flag.StringVar(&opts.imageDir, "image-dir", "", "Recognize every image in this directory")
	flag.BoolVar(&opts.fast, "fast", false, "Trade recognition accuracy for speed")
	flag.BoolVar(&opts.cpuOnly, "cpu-only", false, "Keep recognition off the GPU")
	flag.BoolVar(&opts.autoLang, "auto-language", false, "Let the engine detect languages itself")
	merge := flag.String("merge", string(pipeline.MergeStamp), "Text layer merge strategy: stamp or rebuild")
	flag.StringVar(&opts.fontTTF, "font-ttf", "", "TTF font for the text layer (required for CJK text)")
	flag.DurationVar(&opts.timeout, "timeout", envDur("OCRKIT_TIMEOUT", 2*time.Minute), "Recognition collect timeout")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.BoolVar(&opts.quiet, "quiet", false, "Log errors only")
	flag.Parse()

	if *dpi < 0 {
		return options{}, fmt.Errorf("-dpi must not be negative, got %d", *dpi)
	}
	opts.dpi = *dpi

	var err error
	if *pages != "" {
		if opts.pages, err = document.ParsePageList(*pages); err != nil {
			return options{}, fmt.Errorf("-pages: %w", err)
		}
	}
	if *skip != "" {
		if opts.skipPages, err = document.ParsePageList(*skip); err != nil {
			return options{}, fmt.Errorf("-skip-pages: %w", err)
		}
	}
	opts.languages = mapLanguages(splitList(*languages))
	opts.images = splitList(*imageList)

	opts.merge = pipeline.MergeStrategy(*merge)
	if opts.merge != pipeline.MergeStamp && opts.merge != pipeline.MergeRebuild {
		return options{}, fmt.Errorf("-merge must be %q or %q, got %q", pipeline.MergeStamp, pipeline.MergeRebuild, *merge)
	}

	if opts.tesseract && opts.enginePath != "" {
		return options{}, errors.New("choose one of -engine and -tesseract")
	}
	if !opts.tesseract && opts.enginePath == "" {
		return options{}, errors.New("an OCR engine is required: set -engine (or OCRKIT_ENGINE) or pass -tesseract")
	}
	if opts.verbose && opts.quiet {
		return options{}, errors.New("choose one of -v and -quiet")
	}

	imageMode := len(opts.images) > 0 || opts.imageDir != ""
	if imageMode {
		if len(opts.images) > 0 && opts.imageDir != "" {
			return options{}, errors.New("choose one of -images and -image-dir")
		}
		return opts, nil
	}
	if opts.input == "" {
		flag.Usage()
		return options{}, errors.New("missing -input")
	}
	if !opts.textOnly && opts.output == "" {
		flag.Usage()
		return options{}, errors.New("missing -output")
	}
	return opts, nil
}

func run(opts options) error {
	log := newLogger(opts)
	ctx := context.Background()

	// Engines are single-use, so every operation gets a fresh pipeline.
	makePipeline := func(sidecar string) (*pipeline.Pipeline, error) {
		return pipeline.New(pipeline.Config{
			Engine:             makeEngine(opts, log),
			DPI:                opts.dpi,
			Passthrough:        opts.dpi == 0,
			Workers:            opts.workers,
			Languages:          opts.languages,
			RecognitionLevel:   recognitionLevel(opts),
			CPUOnly:            opts.cpuOnly,
			AutoDetectLanguage: opts.autoLang,
			Pages:              opts.pages,
			SkipPages:          opts.skipPages,
			SidecarPath:        sidecar,
			Font:               fontConfig(opts),
			Merge:              opts.merge,
			Logger:             log,
		})
	}

	switch {
	case len(opts.images) > 0:
		return runImages(ctx, makePipeline, opts.images, opts.output)
	case opts.imageDir != "":
		paths, err := collectImages(opts.imageDir)
		if err != nil {
			return err
		}
		return runImages(ctx, makePipeline, paths, opts.output)
	case opts.textOnly:
		return runText(ctx, makePipeline, opts.input)
	default:
		return runSearchable(ctx, makePipeline, opts, log)
	}
}

func makeEngine(opts options, log observability.Logger) ocr.Engine {
	if opts.tesseract {
		return tesseract.New(
			tesseract.WithWorkers(opts.workers),
			tesseract.WithCollectTimeout(opts.timeout),
			tesseract.WithLogger(log),
		)
	}
	return vision.New(opts.enginePath,
		vision.WithCollectTimeout(opts.timeout),
		vision.WithLogger(log),
	)
}

func runSearchable(ctx context.Context, makePipeline func(string) (*pipeline.Pipeline, error), opts options, log observability.Logger) error {
	info, err := os.Stat(opts.input)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if !info.IsDir() {
		return searchableOne(ctx, makePipeline, opts.input, opts.output, opts.sidecar, log)
	}

	if opts.sidecar != "" {
		return errors.New("-sidecar needs a single input PDF")
	}
	pdfs, err := filepath.Glob(filepath.Join(opts.input, "*.pdf"))
	if err != nil {
		return err
	}
	if len(pdfs) == 0 {
		return fmt.Errorf("no PDF files in %s", opts.input)
	}
	if err := os.MkdirAll(opts.output, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, pdf := range pdfs {
		stem := strings.TrimSuffix(filepath.Base(pdf), filepath.Ext(pdf))
		out := filepath.Join(opts.output, stem+"_ocr.pdf")
		if err := searchableOne(ctx, makePipeline, pdf, out, "", log); err != nil {
			return fmt.Errorf("%s: %w", pdf, err)
		}
	}
	return nil
}

func searchableOne(ctx context.Context, makePipeline func(string) (*pipeline.Pipeline, error), in, out, sidecar string, log observability.Logger) error {
	p, err := makePipeline(sidecar)
	if err != nil {
		return err
	}
	sum, err := p.CreateSearchablePDF(ctx, in, out)
	if err != nil {
		return err
	}
	if len(sum.Skipped) > 0 {
		log.Warn("pages left without a text layer",
			observability.String("pages", document.FormatPageList(sum.Skipped)))
	}
	return nil
}

func runText(ctx context.Context, makePipeline func(string) (*pipeline.Pipeline, error), pdfPath string) error {
	p, err := makePipeline("")
	if err != nil {
		return err
	}
	results, err := p.ExtractText(ctx, pdfPath)
	if err != nil {
		return err
	}
	records := make([]pageRecord, 0, len(results))
	for _, res := range results {
		records = append(records, pageRecord{
			PageIndex: res.PageIndex,
			Width:     res.Width,
			Height:    res.Height,
			Items:     flattenItems(res.Items),
		})
	}
	return emitJSON(os.Stdout, records)
}

func runImages(ctx context.Context, makePipeline func(string) (*pipeline.Pipeline, error), paths []string, output string) error {
	p, err := makePipeline("")
	if err != nil {
		return err
	}
	results, err := p.ExtractTextFromImages(ctx, paths)
	if err != nil {
		return err
	}
	records := make([]imageRecord, 0, len(results))
	for _, res := range results {
		var name string
		if res.PageIndex >= 0 && res.PageIndex < len(paths) {
			name = filepath.Base(paths[res.PageIndex])
		}
		records = append(records, imageRecord{
			Image:  name,
			Width:  res.Width,
			Height: res.Height,
			Items:  flattenItems(res.Items),
		})
	}
	if output == "" {
		return emitJSON(os.Stdout, records)
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := emitJSON(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// itemRecord flattens a text item for output: box coordinates sit next to the
// text instead of nesting.
type itemRecord struct {
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Confidence float64 `json:"confidence"`
}

type pageRecord struct {
	PageIndex int          `json:"page_index"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Items     []itemRecord `json:"items"`
}

type imageRecord struct {
	Image  string       `json:"image"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Items  []itemRecord `json:"items"`
}

func flattenItems(items []ocr.TextItem) []itemRecord {
	out := make([]itemRecord, 0, len(items))
	for _, item := range items {
		out = append(out, itemRecord{
			Text:       item.Text,
			X:          item.BBox.X,
			Y:          item.BBox.Y,
			W:          item.BBox.W,
			H:          item.BBox.H,
			Confidence: item.Confidence,
		})
	}
	return out
}

func emitJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".bmp":  true,
}

func collectImages(dir string) ([]string, error) {
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
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	return paths, nil
}

func newLogger(opts options) observability.Logger {
	lg := logrus.New()
	lg.SetOutput(os.Stderr)
	lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	switch {
	case opts.verbose:
		lg.SetLevel(logrus.DebugLevel)
	case opts.quiet:
		lg.SetLevel(logrus.ErrorLevel)
	default:
		lg.SetLevel(logrus.InfoLevel)
	}
	return observability.NewLogrus(lg)
}

func recognitionLevel(opts options) ocr.RecognitionLevel {
	if opts.fast {
		return ocr.LevelFast
	}
	return ocr.LevelAccurate
}

func fontConfig(opts options) overlay.FontConfig {
	font := overlay.DefaultFont()
	if opts.fontTTF != "" {
		font.TTFPath = opts.fontTTF
	}
	return font
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// mapLanguages normalizes language hints to BCP-47; tesseract-style codes
// like eng or chi_sim are translated, anything else passes through.
func mapLanguages(specs []string) []string {
	if len(specs) == 0 {
		return nil
	}
	out := make([]string, 0, len(specs))
	for _, spec := range specs {
		out = append(out, tesseract.ToBCP47(spec))
	}
	return out
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

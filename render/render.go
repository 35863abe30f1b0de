// Package render turns PDF pages into page images for recognition. Pages are
// rasterized through Poppler's pdftoppm at a caller-chosen DPI, or, in
// passthrough mode, the largest image embedded in each page is extracted
// as-is so scanned documents keep their original pixels.
//
// Stream fans pages out to a bounded worker pool and emits images in
// completion order; consumers that care about page order sort afterwards.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/semaphore"

	"github.com/wudi/ocrkit/observability"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// PageImage is one page ready for recognition. Width and Height are pixel
// dimensions; DPI is the render resolution, or 0 when the image came out of
// the PDF untouched.
type PageImage struct {
	Page       int // zero-based
	Path       string
	Width      int
	Height     int
	DPI        int
	TotalPages int
}

// PageError reports a single page that could not be rendered. Other pages
// are unaffected.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string { return fmt.Sprintf("render page %d: %v", e.Page, e.Err) }
func (e *PageError) Unwrap() error { return e.Err }

// Config controls one Stream call.
type Config struct {
	// Path is the source PDF.
	Path string
	// DPI selects rasterization resolution; 0 switches to passthrough
	// extraction of embedded images.
	DPI int
	// Workers bounds concurrent page renders. Defaults to runtime.NumCPU.
	Workers int
	// Pages restricts rendering to a zero-based subset. Nil means all pages.
	Pages []int
	// Dir is the scratch directory for page images. The caller owns its
	// lifetime; empty means a fresh directory under the system temp dir.
	Dir string
	// Logger defaults to the nop logger.
	Logger observability.Logger
}

// Stream renders the selected pages concurrently. It returns the image
// channel, a channel of per-page failures, and the document's total page
// count. Both channels close once all work has finished.
//
// Failure semantics differ by mode: a rasterization failure is a hard,
// page-scoped *PageError; a passthrough page without a usable embedded image
// is skipped with a debug log and produces neither an image nor an error.
func Stream(ctx context.Context, cfg Config) (<-chan PageImage, <-chan error, int, error) {
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	if cfg.Path == "" {
		return nil, nil, 0, errors.New("render: no input path")
	}
	total, err := api.PageCountFile(cfg.Path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("count pages of %s: %w", cfg.Path, err)
	}
	pages := selectPages(total, cfg.Pages)
	dir := cfg.Dir
	if dir == "" {
		dir, err = os.MkdirTemp("", "ocrkit-pages-")
		if err != nil {
			return nil, nil, 0, fmt.Errorf("scratch dir: %w", err)
		}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	images := make(chan PageImage, workers)
	errs := make(chan error, len(pages)+1)
	go func() {
		defer close(images)
		defer close(errs)
		sem := semaphore.NewWeighted(int64(workers))
		var wg sync.WaitGroup
		for _, page := range pages {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				defer sem.Release(1)
				if cfg.DPI > 0 {
					started := time.Now()
					img, err := rasterizePage(ctx, cfg.Path, dir, p, total, cfg.DPI)
					if err != nil {
						errs <- &PageError{Page: p, Err: err}
						return
					}
					log.Debug("page rasterized",
						observability.Int("page", p),
						observability.Int("width", img.Width),
						observability.Int("height", img.Height),
						observability.Duration("took", time.Since(started)))
					emit(ctx, images, img)
					return
				}
				img, ok := extractPageImage(cfg.Path, dir, p, total, log)
				if ok {
					emit(ctx, images, img)
				}
			}(page)
		}
		wg.Wait()
	}()
	return images, errs, total, nil
}

func emit(ctx context.Context, images chan<- PageImage, img PageImage) {
	select {
	case images <- img:
	case <-ctx.Done():
	}
}

// selectPages resolves the zero-based subset against the document, dropping
// duplicates and out-of-range indexes. Nil selects every page.
func selectPages(total int, subset []int) []int {
	if subset == nil {
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i
		}
		return pages
	}
	seen := make(map[int]struct{}, len(subset))
	pages := make([]int, 0, len(subset))
	for _, p := range subset {
		if p < 0 || p >= total {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// rasterizePage renders one page with pdftoppm. Poppler names its output
// after the one-based page number with version-dependent zero padding, so
// the result is located by probing the padded candidates.
func rasterizePage(ctx context.Context, pdfPath, dir string, page, total, dpi int) (PageImage, error) {
	oneBased := page + 1
	prefix := filepath.Join(dir, fmt.Sprintf("p%06d", oneBased))
	args := []string{
		"-png",
		"-r", strconv.Itoa(dpi),
		"-f", strconv.Itoa(oneBased),
		"-l", strconv.Itoa(oneBased),
		pdfPath,
		prefix,
	}
	cmd := exec.CommandContext(ctx, "pdftoppm", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return PageImage{}, fmt.Errorf("pdftoppm: %w: %s", err, msg)
		}
		return PageImage{}, fmt.Errorf("pdftoppm: %w", err)
	}
	path, err := findRendered(prefix, oneBased)
	if err != nil {
		return PageImage{}, err
	}
	w, h, err := ImageSize(path)
	if err != nil {
		return PageImage{}, err
	}
	return PageImage{Page: page, Path: path, Width: w, Height: h, DPI: dpi, TotalPages: total}, nil
}

func findRendered(prefix string, page int) (string, error) {
	for width := 1; width <= 6; width++ {
		candidate := fmt.Sprintf("%s-%0*d.png", prefix, width, page)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", err
	}
	if len(matches) > 0 {
		return matches[0], nil
	}
	return "", fmt.Errorf("rendered image not found for page %d", page)
}

// extractPageImage pulls the page's embedded images out with pdfcpu and
// keeps the largest by pixel area. Pages without a usable image are skipped.
func extractPageImage(pdfPath, dir string, page, total int, log observability.Logger) (PageImage, bool) {
	pageDir := filepath.Join(dir, fmt.Sprintf("embedded-%d", page))
	if err := os.MkdirAll(pageDir, 0o755); err != nil {
		log.Debug("passthrough scratch dir failed",
			observability.Int("page", page), observability.Error("error", err))
		return PageImage{}, false
	}
	oneBased := page + 1
	if err := api.ExtractImagesFile(pdfPath, pageDir, []string{strconv.Itoa(oneBased)}, nil); err != nil {
		log.Debug("image extraction failed",
			observability.Int("page", page), observability.Error("error", err))
		return PageImage{}, false
	}
	matches, err := filepath.Glob(filepath.Join(pageDir, "*"))
	if err != nil {
		log.Debug("image glob failed",
			observability.Int("page", page), observability.Error("error", err))
		return PageImage{}, false
	}
	var best PageImage
	bestArea := 0
	for _, m := range matches {
		w, h, err := ImageSize(m)
		if err != nil {
			// unsupported codec, keep looking
			continue
		}
		if area := w * h; area > bestArea {
			bestArea = area
			best = PageImage{Page: page, Path: m, Width: w, Height: h, DPI: 0, TotalPages: total}
		}
	}
	if bestArea == 0 {
		log.Debug("page has no embedded image", observability.Int("page", page))
		return PageImage{}, false
	}
	return best, true
}

// ImageSize probes an image's pixel dimensions without decoding it fully.
func ImageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image size of %s: %w", filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}

// Package overlay builds the invisible text layer that makes scanned pages
// searchable. Recognized boxes become transparent text fragments positioned
// over the original glyphs; the fragments are then merged with the source
// document, by default by stamping them onto the original pages so content,
// metadata and rotation survive untouched.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"codeberg.org/go-pdf/fpdf/contrib/gofpdi"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/wudi/ocrkit/coords"
	"github.com/wudi/ocrkit/document"
	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr"
	"github.com/wudi/ocrkit/render"
)

// stampDesc pins the stamp to the page origin so the fragment's own
// coordinates are authoritative.
const stampDesc = "pos:bl, off:0 0, scale:1 abs, rot:0"

const defaultFamily = "Helvetica"

// FontConfig selects the face used for the hidden text layer.
type FontConfig struct {
	// Family names a core PDF font, or the family registered for TTFPath.
	Family string
	// Style is "", "B", "I" or "BI".
	Style string
	// TTFPath registers a UTF-8 font, needed for non-Latin text.
	TTFPath string
	// MinSize is the smallest font size used for tiny boxes.
	MinSize float64
	// BaselineRise lifts the baseline by this fraction of the box height.
	BaselineRise float64
}

// DefaultFont returns the font used when the caller does not care.
func DefaultFont() FontConfig {
	return FontConfig{Family: defaultFamily, MinSize: 6, BaselineRise: 0.15}
}

// Config controls a Compositor.
type Config struct {
	Font   FontConfig
	Logger observability.Logger
}

type fragment struct {
	res  ocr.PageResult
	dpi  int
	page document.Page
}

// Compositor accumulates per-page text layers and writes them into a
// searchable PDF. Not safe for concurrent use.
type Compositor struct {
	font      FontConfig
	family    string
	log       observability.Logger
	fragments map[int]fragment
}

func New(cfg Config) *Compositor {
	font := cfg.Font
	if font.MinSize <= 0 {
		font.MinSize = 6
	}
	if font.BaselineRise <= 0 {
		font.BaselineRise = 0.15
	}
	family := font.Family
	if family == "" {
		family = defaultFamily
	}
	if font.TTFPath != "" && family == defaultFamily {
		family = "overlay"
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Compositor{
		font:      font,
		family:    family,
		log:       log,
		fragments: make(map[int]fragment),
	}
}

// AddPage records the text layer for one page. The result's boxes are
// normalized against an image of res.Width x res.Height pixels rendered at
// dpi (0 for embedded images measured in points); page carries the original
// page's geometry. At most one layer per page.
func (c *Compositor) AddPage(pageIndex int, res ocr.PageResult, dpi int, page document.Page) error {
	if _, dup := c.fragments[pageIndex]; dup {
		return fmt.Errorf("overlay: page %d already has a text layer", pageIndex)
	}
	if len(res.Items) > 0 && (res.Width <= 0 || res.Height <= 0) {
		return fmt.Errorf("overlay: page %d image dimensions %dx%d", pageIndex, res.Width, res.Height)
	}
	c.fragments[pageIndex] = fragment{res: res, dpi: dpi, page: page}
	c.log.Debug("overlay fragment added",
		observability.Int("page", pageIndex),
		observability.Int("items", len(res.Items)))
	return nil
}

// Pages returns the page indexes that carry a text layer, sorted.
func (c *Compositor) Pages() []int {
	pages := make([]int, 0, len(c.fragments))
	for p := range c.fragments {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// WriteFinal stamps the accumulated text layers onto inPath and writes the
// result to outPath. Pages without a layer pass through; the original
// content, metadata and page rotation are preserved by construction. With no
// layers at all the input is copied verbatim.
func (c *Compositor) WriteFinal(inPath, outPath string) error {
	pages := c.Pages()
	if len(pages) == 0 {
		return copyFile(inPath, outPath)
	}
	tmp, err := os.CreateTemp("", "ocrkit-overlay-*.pdf")
	if err != nil {
		return fmt.Errorf("overlay temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	doc := c.buildFragmentDoc(pages)
	if err := doc.OutputFileAndClose(tmpPath); err != nil {
		return fmt.Errorf("write overlay fragments: %w", err)
	}

	stamps := make(map[int]*model.Watermark, len(pages))
	for pos, pageIdx := range pages {
		wm, err := api.PDFWatermark(fmt.Sprintf("%s:%d", tmpPath, pos+1), stampDesc, true, false, pdftypes.POINTS)
		if err != nil {
			return fmt.Errorf("overlay stamp for page %d: %w", pageIdx, err)
		}
		stamps[pageIdx+1] = wm
	}
	if err := api.AddWatermarksMapFile(inPath, outPath, stamps, nil); err != nil {
		return fmt.Errorf("stamp text layers onto %s: %w", filepath.Base(inPath), err)
	}
	c.log.Debug("overlay stamped", observability.Int("pages", len(pages)))
	return nil
}

// Rebuild writes a new document instead of stamping: every original page is
// imported as a template and the text layer is drawn on top. This is the
// fallback for files the stamper rejects, and it is lossy: imported
// templates drop page-level attributes such as /Rotate, bookmarks and
// annotations. The text layer applies the same rotation correction as the
// content it covers, so the two stay aligned.
func (c *Compositor) Rebuild(inPath, outPath string) (err error) {
	// the page importer panics on structures it cannot parse
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rebuild %s: %v", filepath.Base(inPath), r)
		}
	}()
	info, err := document.Inspect(inPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(inPath), err)
	}

	out := fpdf.New("P", "pt", "", "")
	c.registerFont(out)
	copyMetadata(out, info.Meta)
	importer := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(data))

	for i := 0; i < info.PageCount; i++ {
		page := info.Pages[i]
		out.AddPageFormat("P", fpdf.SizeType{Wd: page.Width, Ht: page.Height})
		tpl := importer.ImportPageFromStream(out, &rs, i+1, "/MediaBox")
		importer.UseImportedTemplate(out, tpl, 0, 0, page.Width, 0)
		if frag, ok := c.fragments[i]; ok {
			c.drawTextLayer(out, frag)
		}
	}
	if err := out.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("rebuild %s: %w", filepath.Base(outPath), err)
	}
	return nil
}

// AssembleFromImages builds a fresh sandwich PDF: each page image becomes a
// full-bleed page with its text layer drawn on top. Image-mode output, no
// source document required.
func AssembleFromImages(cfg Config, pages []render.PageImage, results []ocr.PageResult, outPath string) error {
	c := New(cfg)
	byPage := make(map[int]ocr.PageResult, len(results))
	for _, res := range results {
		byPage[res.PageIndex] = res
	}

	out := fpdf.New("P", "pt", "", "")
	c.registerFont(out)
	for _, img := range pages {
		wPt, hPt := float64(img.Width), float64(img.Height)
		if img.DPI > 0 {
			wPt = wPt * 72 / float64(img.DPI)
			hPt = hPt * 72 / float64(img.DPI)
		}
		out.AddPageFormat("P", fpdf.SizeType{Wd: wPt, Ht: hPt})
		path, err := placeableImage(img.Path)
		if err != nil {
			return fmt.Errorf("page %d image: %w", img.Page, err)
		}
		out.ImageOptions(path, 0, 0, wPt, hPt, false, fpdf.ImageOptions{}, 0, "")
		if res, ok := byPage[img.Page]; ok {
			c.drawTextLayer(out, fragment{
				res:  res,
				dpi:  img.DPI,
				page: document.Page{Width: wPt, Height: hPt},
			})
		}
	}
	if err := out.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("assemble %s: %w", filepath.Base(outPath), err)
	}
	return nil
}

func (c *Compositor) buildFragmentDoc(pages []int) *fpdf.Fpdf {
	doc := fpdf.New("P", "pt", "", "")
	c.registerFont(doc)
	for _, pageIdx := range pages {
		frag := c.fragments[pageIdx]
		doc.AddPageFormat("P", fpdf.SizeType{Wd: frag.page.Width, Ht: frag.page.Height})
		c.drawTextLayer(doc, frag)
	}
	return doc
}

func (c *Compositor) registerFont(pdf *fpdf.Fpdf) {
	if c.font.TTFPath != "" {
		pdf.AddUTF8Font(c.family, c.font.Style, c.font.TTFPath)
	}
}

// drawTextLayer draws one page's recognized text invisibly onto the current
// page. Boxes live in the rendered image's space; on rotated pages that
// space is the rotated one, so the whole layer is wrapped in the correction
// matrix that maps it back onto the unrotated page.
func (c *Compositor) drawTextLayer(pdf *fpdf.Fpdf, frag fragment) {
	pageH := frag.page.Height
	if frag.page.Rotation != 0 {
		m := coords.OverlayCorrection(frag.page.Rotation, frag.page.Width, frag.page.Height)
		pdf.TransformBegin()
		pdf.Transform(fpdf.TransformMatrix{A: m[0], B: m[1], C: m[2], D: m[3], E: m[4], F: m[5]})
	}
	pdf.SetAlpha(0, "Normal")
	for _, item := range frag.res.Items {
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		px := coords.FromNormalized(item.BBox.X, item.BBox.Y, item.BBox.W, item.BBox.H,
			frag.res.Width, frag.res.Height)
		pt := px.ToPoints(frag.dpi)
		size := math.Max(c.font.MinSize, math.Floor(pt.H))
		pdf.SetFont(c.family, c.font.Style, size)
		// fpdf measures y from the top of the page
		x := pt.X
		y := pageH - (pt.Y + c.font.BaselineRise*pt.H)
		measured := pdf.GetStringWidth(item.Text)
		if measured > 0 && pt.W > 0 {
			pdf.TransformBegin()
			pdf.TransformScaleX(pt.W/measured*100, x, y)
			pdf.Text(x, y, item.Text)
			pdf.TransformEnd()
		} else {
			pdf.Text(x, y, item.Text)
		}
	}
	pdf.SetAlpha(1, "Normal")
	if frag.page.Rotation != 0 {
		pdf.TransformEnd()
	}
}

func copyMetadata(pdf *fpdf.Fpdf, meta document.Metadata) {
	if meta.Title != "" {
		pdf.SetTitle(meta.Title, true)
	}
	if meta.Author != "" {
		pdf.SetAuthor(meta.Author, true)
	}
	if meta.Subject != "" {
		pdf.SetSubject(meta.Subject, true)
	}
	if meta.Keywords != "" {
		pdf.SetKeywords(meta.Keywords, true)
	}
	if meta.Creator != "" {
		pdf.SetCreator(meta.Creator, true)
	}
}

// placeableImage returns a path fpdf can embed, converting formats it does
// not read (tiff, bmp) to PNG next to the original.
func placeableImage(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return path, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	out := path + ".png"
	g, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := png.Encode(g, img); err != nil {
		g.Close()
		return "", fmt.Errorf("convert %s: %w", filepath.Base(path), err)
	}
	if err := g.Close(); err != nil {
		return "", err
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

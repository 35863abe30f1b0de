package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"codeberg.org/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/tiff"

	"github.com/wudi/ocrkit/document"
	"github.com/wudi/ocrkit/ocr"
	"github.com/wudi/ocrkit/render"
)

func letterPage() document.Page { return document.Page{Width: 612, Height: 792} }

// pageResult spreads the words evenly across one line of a w x h pixel page.
func pageResult(idx, w, h int, words ...string) ocr.PageResult {
	res := ocr.PageResult{PageIndex: idx, Width: w, Height: h}
	for i, word := range words {
		res.Items = append(res.Items, ocr.TextItem{
			Text:       word,
			BBox:       ocr.BoundingBox{X: float64(i) / float64(len(words)), Y: 0.5, W: 0.8 / float64(len(words)), H: 0.05},
			Confidence: 0.9,
		})
	}
	return res
}

func writeFixturePDF(t *testing.T, pages int) string {
	t.Helper()
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetTitle("Ledger 2024", false)
	pdf.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		pdf.Text(100, 100, "original content")
	}
	path := filepath.Join(t.TempDir(), "fixture.pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatalf("write fixture pdf: %v", err)
	}
	return path
}

func writeFixturePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * y) % 256)})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close png: %v", err)
	}
	return path
}

func TestAddPageRejectsDuplicates(t *testing.T) {
	c := New(Config{})
	res := pageResult(0, 2550, 3300, "hello")
	if err := c.AddPage(0, res, 300, letterPage()); err != nil {
		t.Fatalf("first AddPage: %v", err)
	}
	if err := c.AddPage(0, res, 300, letterPage()); err == nil {
		t.Fatal("duplicate page accepted")
	}
	if got := c.Pages(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("Pages() = %v", got)
	}
}

func TestAddPageRejectsBadDimensions(t *testing.T) {
	c := New(Config{})
	res := pageResult(0, 0, 0, "hello")
	if err := c.AddPage(0, res, 300, letterPage()); err == nil {
		t.Fatal("zero-size image accepted with items")
	}
}

func TestDrawTextLayerEmitsInvisibleText(t *testing.T) {
	c := New(Config{})
	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetCompression(false)
	c.registerFont(pdf)
	pdf.AddPageFormat("P", fpdf.SizeType{Wd: 612, Ht: 792})
	c.drawTextLayer(pdf, fragment{res: pageResult(0, 2550, 3300, "Ledger"), dpi: 300, page: letterPage()})
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("output: %v", err)
	}
	s := buf.String()
	if !strings.Contains(s, "(Ledger) Tj") {
		t.Fatal("fragment stream does not draw the recognized text")
	}
	if !strings.Contains(s, " gs") {
		t.Fatal("fragment stream sets no graphics state for transparency")
	}
}

func TestDrawTextLayerAppliesRotationCorrection(t *testing.T) {
	c := New(Config{})
	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetCompression(false)
	pdf.AddPageFormat("P", fpdf.SizeType{Wd: 612, Ht: 792})
	frag := fragment{
		res:  pageResult(0, 3300, 2550, "Side"),
		dpi:  300,
		page: document.Page{Width: 612, Height: 792, Rotation: 90},
	}
	c.drawTextLayer(pdf, frag)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("output: %v", err)
	}
	s := buf.String()
	// the 90 degree correction is [0 -1 1 0 0 792]
	if !strings.Contains(s, "-1.0000") || !strings.Contains(s, "792.0000") {
		t.Fatal("rotation correction matrix missing from fragment stream")
	}
}

func TestWriteFinalPreservesDocument(t *testing.T) {
	src := writeFixturePDF(t, 2)
	c := New(Config{})
	if err := c.AddPage(0, pageResult(0, 2550, 3300, "hello", "world"), 300, letterPage()); err != nil {
		t.Fatalf("add page: %v", err)
	}
	out := filepath.Join(t.TempDir(), "searchable.pdf")
	if err := c.WriteFinal(src, out); err != nil {
		t.Fatalf("write final: %v", err)
	}
	count, err := api.PageCountFile(out)
	if err != nil {
		t.Fatalf("page count: %v", err)
	}
	if count != 2 {
		t.Fatalf("page count = %d, want 2", count)
	}
	info, err := document.Inspect(out)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.Meta.Title != "Ledger 2024" {
		t.Fatalf("title = %q, want original metadata preserved", info.Meta.Title)
	}
}

func TestWriteFinalWithoutLayersCopiesInput(t *testing.T) {
	src := writeFixturePDF(t, 1)
	out := filepath.Join(t.TempDir(), "copy.pdf")
	if err := New(Config{}).WriteFinal(src, out); err != nil {
		t.Fatalf("write final: %v", err)
	}
	want, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("output differs from input without any text layer")
	}
}

func TestRebuildKeepsPagesAndMetadata(t *testing.T) {
	src := writeFixturePDF(t, 2)
	c := New(Config{})
	if err := c.AddPage(1, pageResult(1, 2550, 3300, "hello"), 300, letterPage()); err != nil {
		t.Fatalf("add page: %v", err)
	}
	out := filepath.Join(t.TempDir(), "rebuilt.pdf")
	if err := c.Rebuild(src, out); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	count, err := api.PageCountFile(out)
	if err != nil {
		t.Fatalf("page count: %v", err)
	}
	if count != 2 {
		t.Fatalf("page count = %d, want 2", count)
	}
	info, err := document.Inspect(out)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.Meta.Title != "Ledger 2024" {
		t.Fatalf("title = %q, want metadata copied", info.Meta.Title)
	}
}

func TestAssembleFromImages(t *testing.T) {
	dir := t.TempDir()
	pages := []render.PageImage{
		{Page: 0, Path: writeFixturePNG(t, dir, "p0.png", 300, 150), Width: 300, Height: 150, DPI: 300, TotalPages: 2},
		{Page: 1, Path: writeFixturePNG(t, dir, "p1.png", 200, 100), Width: 200, Height: 100, DPI: 0, TotalPages: 2},
	}
	results := []ocr.PageResult{
		pageResult(0, 300, 150, "alpha"),
		pageResult(1, 200, 100, "beta"),
	}
	out := filepath.Join(dir, "sandwich.pdf")
	if err := AssembleFromImages(Config{}, pages, results, out); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	info, err := document.Inspect(out)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.PageCount != 2 {
		t.Fatalf("page count = %d, want 2", info.PageCount)
	}
	// 300x150px at 300 DPI is a 72x36pt page; DPI 0 keeps pixels as points
	if p := info.Pages[0]; p.Width < 71.5 || p.Width > 72.5 || p.Height < 35.5 || p.Height > 36.5 {
		t.Fatalf("page 0 = %+v, want 72x36", p)
	}
	if p := info.Pages[1]; p.Width < 199.5 || p.Width > 200.5 || p.Height < 99.5 || p.Height > 100.5 {
		t.Fatalf("page 1 = %+v, want 200x100", p)
	}
}

func TestPlaceableImageConvertsTiff(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "page.tif")
	img := image.NewGray(image.Rect(0, 0, 60, 40))
	f, err := os.Create(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatalf("encode tiff: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := placeableImage(src)
	if err != nil {
		t.Fatalf("placeable: %v", err)
	}
	if got != src+".png" {
		t.Fatalf("converted path = %q", got)
	}
	w, h, err := render.ImageSize(got)
	if err != nil {
		t.Fatalf("converted image: %v", err)
	}
	if w != 60 || h != 40 {
		t.Fatalf("converted dims = %dx%d, want 60x40", w, h)
	}

	plain := writeFixturePNG(t, dir, "as-is.png", 10, 10)
	if got, err := placeableImage(plain); err != nil || got != plain {
		t.Fatalf("png passthrough = %q, %v", got, err)
	}
}

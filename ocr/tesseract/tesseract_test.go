package tesseract

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/ocrkit/ocr"
)

// ensureTesseractAvailable checks that the tesseract binary is reachable.
func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestCodes(t *testing.T) {
	got := Codes([]string{"zh-Hans", "zh-Hant", "en-US"})
	want := []string{"chi_sim", "chi_tra", "eng"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Codes() = %v, want %v", got, want)
	}
	if got := Codes([]string{"en", "en-US", "en-GB"}); !reflect.DeepEqual(got, []string{"eng"}) {
		t.Fatalf("expected collapsed variants, got %v", got)
	}
	if got := Codes([]string{"frk"}); !reflect.DeepEqual(got, []string{"frk"}) {
		t.Fatalf("native codes should pass through, got %v", got)
	}
	if Codes(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestLanguageRoundTrip(t *testing.T) {
	for code := range tagByTess {
		if got := FromBCP47(ToBCP47(code)); got != code {
			t.Fatalf("round trip for %s gave %s", code, got)
		}
	}
	if got := ToBCP47("custom"); got != "custom" {
		t.Fatalf("unknown code should pass through, got %s", got)
	}
}

func TestItemsFromBoxes(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(100, 200, 300, 250), Word: "Hello", Confidence: 90},
		{Box: image.Rect(0, 0, 10, 10), Word: "  ", Confidence: 99},
	}
	items := itemsFromBoxes(boxes, 1000, 1000)
	if len(items) != 1 {
		t.Fatalf("expected blank words dropped, got %d items", len(items))
	}
	it := items[0]
	if it.Text != "Hello" || it.Confidence != 0.9 {
		t.Fatalf("unexpected item: %+v", it)
	}
	want := ocr.BoundingBox{X: 0.1, Y: 0.75, W: 0.2, H: 0.05}
	if it.BBox != want {
		t.Fatalf("bbox = %+v, want %+v", it.BBox, want)
	}
}

func TestSendBeforeStart(t *testing.T) {
	e := New()
	var unavailable *ocr.UnavailableError
	if err := e.Send(ocr.Job{}); !errors.As(err, &unavailable) {
		t.Fatalf("Send = %v, want UnavailableError", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	e := New()
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	var unavailable *ocr.UnavailableError
	if err := e.Start(context.Background()); !errors.As(err, &unavailable) {
		t.Fatalf("Start after Stop = %v, want UnavailableError", err)
	}
}

func TestEngineRecognizesPage(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 200, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString("Hello PDF")

	path := filepath.Join(t.TempDir(), "page-0.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close image: %v", err)
	}

	e := New(WithWorkers(2))
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop()
	job := ocr.Job{
		PageIndex: 0,
		ImagePath: path,
		Width:     200,
		Height:    80,
		DPI:       300,
		Languages: []string{"en-US"},
	}
	if err := e.Send(job); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	results, err := ocr.Gather(ctx, e, 1)
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(results) != 1 || results[0].PageIndex != 0 {
		t.Fatalf("unexpected results: %+v", results)
	}
	var words []string
	for _, it := range results[0].Items {
		words = append(words, strings.ToLower(it.Text))
		b := it.BBox
		if b.X < 0 || b.Y < 0 || b.X+b.W > 1.000001 || b.Y+b.H > 1.000001 {
			t.Fatalf("box out of range: %+v", b)
		}
	}
	joined := strings.Join(words, " ")
	if !strings.Contains(joined, "hello") || !strings.Contains(joined, "pdf") {
		t.Fatalf("unexpected OCR output: %q", joined)
	}
}

package coords

import (
	"math"
	"testing"
)

func nearly(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func rectNearly(got, want Rect) bool {
	return nearly(got.X, want.X) && nearly(got.Y, want.Y) && nearly(got.W, want.W) && nearly(got.H, want.H)
}

func TestNormalizedBoxToPoints(t *testing.T) {
	// A box centered in a 1000x1000 render at 300 dpi.
	px := FromNormalized(0.5, 0.5, 0.2, 0.1, 1000, 1000)
	if !rectNearly(px, Rect{X: 500, Y: 500, W: 200, H: 100}) {
		t.Fatalf("pixel rect = %+v", px)
	}
	pt := px.ToPoints(300)
	if !rectNearly(pt, Rect{X: 120, Y: 120, W: 48, H: 24}) {
		t.Fatalf("point rect = %+v", pt)
	}
}

func TestToPointsZeroDPIKeepsPixels(t *testing.T) {
	r := Rect{X: 10, Y: 20, W: 30, H: 40}
	if got := r.ToPoints(0); got != r {
		t.Fatalf("dpi 0: got %+v, want %+v", got, r)
	}
	if got := r.ToPoints(-1); got != r {
		t.Fatalf("dpi -1: got %+v, want %+v", got, r)
	}
}

func TestMultiplyOrder(t *testing.T) {
	// Rotate then translate is not translate then rotate.
	rt := RotateDeg(90).Multiply(Translate(10, 0))
	p := rt.Apply(Point{X: 1, Y: 0})
	if !nearly(p.X, 10) || !nearly(p.Y, 1) {
		t.Fatalf("rotate-then-translate: got %+v", p)
	}
	tr := Translate(10, 0).Multiply(RotateDeg(90))
	p = tr.Apply(Point{X: 1, Y: 0})
	if !nearly(p.X, 0) || !nearly(p.Y, 11) {
		t.Fatalf("translate-then-rotate: got %+v", p)
	}
}

func TestInverseRoundTrip(t *testing.T) {
	m := RotateDeg(37).Multiply(Translate(5, -3)).Multiply(Scale(2, 0.5))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("inverse: %v", err)
	}
	p := m.Multiply(inv).Apply(Point{X: 12.5, Y: -7})
	if !nearly(p.X, 12.5) || !nearly(p.Y, -7) {
		t.Fatalf("round trip moved point: %+v", p)
	}
	if _, err := Scale(0, 0).Inverse(); err == nil {
		t.Fatal("expected error for singular matrix")
	}
}

func TestOverlayCorrectionComposition(t *testing.T) {
	// Each case must equal its rotate-then-translate composition.
	w, h := 612.0, 792.0
	cases := []struct {
		rotation int
		want     Matrix
	}{
		{0, Identity()},
		{90, RotateDeg(-90).Multiply(Translate(0, h))},
		{180, RotateDeg(-180).Multiply(Translate(w, h))},
		{270, RotateDeg(-270).Multiply(Translate(w, 0))},
		{360, Identity()},
		{-90, RotateDeg(-270).Multiply(Translate(w, 0))},
	}
	for _, tc := range cases {
		got := OverlayCorrection(tc.rotation, w, h)
		for i := range got {
			if !nearly(got[i], tc.want[i]) {
				t.Fatalf("rotation %d: got %v, want %v", tc.rotation, got, tc.want)
			}
		}
	}
}

func TestOverlayCorrectionLandsOnPage(t *testing.T) {
	// Overlay content for a rotated letter page is authored against the
	// rendered 792x612 image; corrected corners must stay on the 612x792
	// media box.
	m := OverlayCorrection(90, 612, 792)
	overlay := Rect{X: 0, Y: 0, W: 792, H: 612}
	for _, c := range overlay.Corners() {
		p := m.Apply(c)
		if p.X < -1e-9 || p.X > 612+1e-9 || p.Y < -1e-9 || p.Y > 792+1e-9 {
			t.Fatalf("corner %+v mapped off page to %+v", c, p)
		}
	}
	// The image origin is the bottom-left of the rotated view; it must map
	// to the top-left of the unrotated content.
	p := m.Apply(Point{X: 0, Y: 0})
	if !nearly(p.X, 0) || !nearly(p.Y, 792) {
		t.Fatalf("origin mapped to %+v, want (0, 792)", p)
	}
}

func TestNormalizeRotation(t *testing.T) {
	cases := map[int]int{0: 0, 90: 90, 180: 180, 270: 270, 360: 0, 450: 90, -90: 270, -180: 180, -270: 90}
	for in, want := range cases {
		if got := NormalizeRotation(in); got != want {
			t.Fatalf("NormalizeRotation(%d) = %d, want %d", in, got, want)
		}
	}
}

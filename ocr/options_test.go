package ocr

import (
	"reflect"
	"testing"

	"github.com/wudi/ocrkit/render"
)

func TestJobFromPageDefaults(t *testing.T) {
	img := render.PageImage{
		Page:       3,
		Path:       "/tmp/page-3.png",
		Width:      2550,
		Height:     3300,
		DPI:        300,
		TotalPages: 10,
	}
	job := JobFromPage(img)
	if job.PageIndex != 3 || job.ImagePath != "/tmp/page-3.png" {
		t.Fatalf("unexpected job identity: %+v", job)
	}
	if job.Width != 2550 || job.Height != 3300 || job.DPI != 300 {
		t.Fatalf("unexpected job geometry: %+v", job)
	}
	if !reflect.DeepEqual(job.Languages, DefaultLanguages()) {
		t.Fatalf("unexpected languages: %+v", job.Languages)
	}
	if job.Level != LevelAccurate {
		t.Fatalf("unexpected level: %q", job.Level)
	}
	if job.CPUOnly || job.AutoDetectLanguage {
		t.Fatalf("boolean knobs should default off: %+v", job)
	}
}

func TestJobOptions(t *testing.T) {
	langs := []string{"en-US"}
	job := JobFromPage(render.PageImage{Page: 0, DPI: 300},
		WithLanguages(langs...),
		WithRecognitionLevel(LevelFast),
		WithCPUOnly(true),
		WithAutoDetectLanguage(true),
		WithJobDPI(150),
	)
	langs[0] = "mutated"
	if !reflect.DeepEqual(job.Languages, []string{"en-US"}) {
		t.Fatalf("languages were not copied: %+v", job.Languages)
	}
	if job.Level != LevelFast {
		t.Fatalf("unexpected level: %q", job.Level)
	}
	if !job.CPUOnly || !job.AutoDetectLanguage {
		t.Fatalf("boolean knobs not applied: %+v", job)
	}
	if job.DPI != 150 {
		t.Fatalf("unexpected dpi: %d", job.DPI)
	}
}

package ocr

import "github.com/wudi/ocrkit/render"

// JobFromPage builds a recognition job for a rendered page. Jobs default to
// the standard languages and accurate recognition; options override.
func JobFromPage(img render.PageImage, opts ...JobOption) Job {
	job := Job{
		PageIndex: img.Page,
		ImagePath: img.Path,
		Width:     img.Width,
		Height:    img.Height,
		DPI:       img.DPI,
		Languages: DefaultLanguages(),
		Level:     LevelAccurate,
	}
	for _, opt := range opts {
		opt(&job)
	}
	return job
}

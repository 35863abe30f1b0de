package ocr

import "context"

// BoundingBox locates recognized text on a page image. Coordinates are
// fractions of the image dimensions in [0,1] with the origin at the
// bottom-left corner, so boxes stay valid whatever resolution the page was
// rendered at.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// TextItem is a single recognized string with its box and the engine's
// confidence in [0,1].
type TextItem struct {
	Text       string      `json:"text"`
	BBox       BoundingBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
}

// PageResult carries everything recognized on one page.
type PageResult struct {
	// PageIndex is the zero-based page the items belong to.
	PageIndex int `json:"page_index"`
	// Width and Height echo the pixel dimensions of the image the engine
	// recognized. Together with the normalized boxes they fix the coordinate
	// basis used for overlay placement.
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Items  []TextItem `json:"items"`
}

// RecognitionLevel selects the engine's speed/accuracy trade-off.
type RecognitionLevel string

const (
	LevelAccurate RecognitionLevel = "accurate"
	LevelFast     RecognitionLevel = "fast"
)

// DefaultLanguages returns the recognition language hints used when a job
// does not set its own.
func DefaultLanguages() []string { return []string{"zh-Hans", "zh-Hant", "en-US"} }

// Job describes one page image submitted for recognition. Jobs are
// independent units: a failed page is reported once and never retried.
type Job struct {
	// PageIndex is the zero-based page the image came from; engines echo it
	// in the matching PageResult.
	PageIndex int
	// ImagePath points at the image file on disk. Engines read it directly,
	// so the file must outlive the job.
	ImagePath string
	// Width and Height are the image's pixel dimensions.
	Width  int
	Height int
	// DPI is the resolution the page was rendered at, or 0 for images taken
	// from the PDF as-is.
	DPI int
	// Languages are BCP-47 hints (e.g. "en-US", "zh-Hans").
	Languages []string
	// Level selects accurate (default) or fast recognition.
	Level RecognitionLevel
	// CPUOnly keeps recognition off the GPU.
	CPUOnly bool
	// AutoDetectLanguage lets the engine choose languages itself.
	AutoDetectLanguage bool
}

// Engine is the capability contract every recognition backend implements.
// Backends stream: pages are submitted with Send as they become available
// and results are drained with Collect in whatever order pages finish.
//
// The contract shared by all implementations:
//
//   - Send is valid only between Start and Stop.
//   - Collect yields at most expected results and then closes the result
//     channel. A terminal failure is delivered on the error channel before
//     the result channel closes and ends the batch.
//   - Stop is idempotent and may be called from any state, including before
//     Start.
//   - After Stop, Send and Collect report UnavailableError.
type Engine interface {
	// Name identifies the backend in logs.
	Name() string
	// Start launches or prepares the backend.
	Start(ctx context.Context) error
	// Send submits one page job without waiting for recognition.
	Send(job Job) error
	// Collect streams results for expected jobs as they complete.
	Collect(ctx context.Context, expected int) (<-chan PageResult, <-chan error)
	// Stop shuts the backend down and releases its resources.
	Stop() error
}

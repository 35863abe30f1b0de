package ocr

// JobOption mutates a recognition job at construction time.
type JobOption func(*Job)

// WithLanguages sets the job's language hints. The slice is copied so callers
// may reuse theirs.
func WithLanguages(langs ...string) JobOption {
	return func(j *Job) { j.Languages = append([]string(nil), langs...) }
}

// WithRecognitionLevel selects accurate or fast recognition.
func WithRecognitionLevel(level RecognitionLevel) JobOption {
	return func(j *Job) { j.Level = level }
}

// WithCPUOnly keeps recognition off the GPU.
func WithCPUOnly(on bool) JobOption {
	return func(j *Job) { j.CPUOnly = on }
}

// WithAutoDetectLanguage lets the engine choose languages itself.
func WithAutoDetectLanguage(on bool) JobOption {
	return func(j *Job) { j.AutoDetectLanguage = on }
}

// WithJobDPI overrides the DPI reported to the engine.
func WithJobDPI(dpi int) JobOption {
	return func(j *Job) { j.DPI = dpi }
}

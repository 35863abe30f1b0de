package vision

import (
	"encoding/json"
	"fmt"

	"github.com/wudi/ocrkit/ocr"
)

const (
	cmdOCR  = "ocr"
	cmdStop = "stop"

	msgResult = "result"
	msgError  = "error"
)

// ocrRequest is one job on the wire: a single JSON line on the engine's
// stdin. Field names and meanings are fixed by the helper protocol.
type ocrRequest struct {
	Cmd                string   `json:"cmd"`
	ImagePath          string   `json:"image_path"`
	PageIndex          int      `json:"page_index"`
	Width              int      `json:"width"`
	Height             int      `json:"height"`
	DPI                int      `json:"dpi"`
	Languages          []string `json:"languages"`
	RecognitionLevel   string   `json:"recognition_level"`
	UsesCPUOnly        bool     `json:"uses_cpu_only"`
	AutoDetectLanguage bool     `json:"auto_detect_language"`
}

type stopRequest struct {
	Cmd string `json:"cmd"`
}

// envelope is one line of engine output, either a page result or an explicit
// error report.
type envelope struct {
	Type      string         `json:"type"`
	PageIndex int            `json:"page_index"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Items     []ocr.TextItem `json:"items"`
	Message   string         `json:"message"`
}

// event is what the reader goroutine hands to Collect: a result or an error,
// never both.
type event struct {
	result ocr.PageResult
	err    error
}

func requestFromJob(job ocr.Job) ocrRequest {
	langs := job.Languages
	if len(langs) == 0 {
		langs = ocr.DefaultLanguages()
	}
	level := job.Level
	if level == "" {
		level = ocr.LevelAccurate
	}
	return ocrRequest{
		Cmd:                cmdOCR,
		ImagePath:          job.ImagePath,
		PageIndex:          job.PageIndex,
		Width:              job.Width,
		Height:             job.Height,
		DPI:                job.DPI,
		Languages:          langs,
		RecognitionLevel:   string(level),
		UsesCPUOnly:        job.CPUOnly,
		AutoDetectLanguage: job.AutoDetectLanguage,
	}
}

// parseLine decodes one engine output line. Undecodable lines become
// ProtocolError events; the caller keeps reading, so one bad line never
// poisons the stream.
func parseLine(line string) event {
	var env envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return event{err: &ocr.ProtocolError{Line: line, Err: err}}
	}
	switch env.Type {
	case msgResult:
		return event{result: ocr.PageResult{
			PageIndex: env.PageIndex,
			Width:     env.Width,
			Height:    env.Height,
			Items:     env.Items,
		}}
	case msgError:
		return event{err: &ocr.EngineError{Message: env.Message}}
	default:
		return event{err: &ocr.ProtocolError{Line: line, Err: fmt.Errorf("unknown message type %q", env.Type)}}
	}
}

package ocr

import (
	"fmt"
	"time"
)

// ConfigError reports an engine that cannot be launched at all, typically a
// missing or unreadable executable. It is returned by Start before any
// process is spawned.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("ocr: engine %s: %v", e.Path, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// UnavailableError reports Send or Collect against an engine that is not
// running: never started, already stopped, or found dead.
type UnavailableError struct {
	State string
	Err   error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ocr: engine unavailable (%s): %v", e.State, e.Err)
	}
	return fmt.Sprintf("ocr: engine unavailable (%s)", e.State)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// ProtocolError reports a line from the engine that does not decode as a
// protocol message. The reader skips the line and resyncs on the next one.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ocr: bad engine message %q: %v", e.Line, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// EngineError carries an error message the engine reported explicitly. The
// message is forwarded verbatim.
type EngineError struct {
	Message string
}

func (e *EngineError) Error() string { return "ocr: engine: " + e.Message }

// TimeoutError reports a Collect that waited longer than the per-result
// timeout. Collected counts the results delivered before the stall.
type TimeoutError struct {
	Collected int
	Expected  int
	Wait      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ocr: timed out after %v waiting for result %d of %d",
		e.Wait, e.Collected+1, e.Expected)
}

// ExitError reports an engine that died before a batch completed. Collected
// counts the results delivered before death.
type ExitError struct {
	Collected int
	Expected  int
	Err       error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("ocr: engine exited after %d of %d results", e.Collected, e.Expected)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

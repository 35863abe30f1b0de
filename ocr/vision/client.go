// Package vision drives a long-lived recognition helper over newline-
// delimited JSON on its stdin/stdout. The client owns the helper's lifecycle
// and exposes it through the ocr.Engine contract: jobs go down the pipe as
// single lines, results come back in whatever order pages finish.
//
// Exactly one background goroutine reads the helper's stdout. It turns lines
// into events on an internal channel and closes that channel when the helper
// exits, so every consumer observes process death the same way. A Client is
// single-use: once stopped it cannot be started again.
package vision

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr"
)

const (
	// eventBuffer decouples a helper that answers in bursts from a consumer
	// that is still placing results.
	eventBuffer = 64
	// maxLineBytes caps one stdout line; a dense page of items fits well
	// under this.
	maxLineBytes = 1 << 20

	scanBufBytes = 64 * 1024
)

type state int

const (
	stateNotStarted state = iota
	stateRunning
	stateStopping
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateNotStarted:
		return "not-started"
	case stateRunning:
		return "running"
	case stateStopping:
		return "stopping"
	case stateStopped:
		return "stopped"
	}
	return "unknown"
}

// Client runs one helper process and implements ocr.Engine against it.
type Client struct {
	path           string
	log            observability.Logger
	collectTimeout time.Duration
	stopGrace      time.Duration
	stderr         io.Writer

	mu     sync.Mutex // guards state transitions and stdin writes
	state  state
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan event

	// done closes after the process has been reaped; waitErr is written
	// before that and must only be read after done is closed.
	done    chan struct{}
	waitErr error
}

// New builds a client for the helper executable at enginePath. The helper is
// not launched until Start.
func New(enginePath string, opts ...Option) *Client {
	c := &Client{
		path:           enginePath,
		log:            observability.NopLogger{},
		collectTimeout: DefaultCollectTimeout,
		stopGrace:      DefaultStopGrace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements ocr.Engine.
func (c *Client) Name() string { return "vision" }

// Start launches the helper and the stdout reader. Starting a running client
// is a no-op; a stopped client cannot be restarted.
func (c *Client) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateRunning:
		return nil
	case stateStopping, stateStopped:
		return &ocr.UnavailableError{State: c.state.String()}
	}
	if _, err := os.Stat(c.path); err != nil {
		return &ocr.ConfigError{Path: c.path, Err: err}
	}
	cmd := exec.Command(c.path)
	cmd.Stderr = c.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return &ocr.ConfigError{Path: c.path, Err: err}
	}
	c.cmd = cmd
	c.stdin = stdin
	c.events = make(chan event, eventBuffer)
	c.done = make(chan struct{})
	c.state = stateRunning
	c.log.Debug("ocr engine started",
		observability.String("engine", c.path),
		observability.Int("pid", cmd.Process.Pid))
	go c.run(stdout)
	return nil
}

// run is the single reader goroutine. It owns stdout until EOF, then reaps
// the process. The events channel closes strictly after done, so a closed
// events channel guarantees waitErr is readable.
func (c *Client) run(stdout io.Reader) {
	c.readLoop(stdout)
	c.waitErr = c.cmd.Wait()
	close(c.done)
	close(c.events)
	c.log.Debug("ocr engine exited", observability.Error("error", c.waitErr))
}

func (c *Client) readLoop(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, scanBufBytes), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ev := parseLine(line)
		if ev.err != nil {
			c.log.Debug("ocr engine error event", observability.Error("error", ev.err))
		}
		c.events <- ev
	}
	if err := sc.Err(); err != nil {
		c.log.Warn("ocr engine stdout read failed", observability.Error("error", err))
	}
}

// Send writes one job as a single JSON line. It fails with UnavailableError
// when the client is not running or the helper has died.
func (c *Client) Send(job ocr.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		return &ocr.UnavailableError{State: c.state.String()}
	}
	select {
	case <-c.done:
		return &ocr.UnavailableError{State: "exited", Err: c.waitErr}
	default:
	}
	b, err := json.Marshal(requestFromJob(job))
	if err != nil {
		return fmt.Errorf("encode job for page %d: %w", job.PageIndex, err)
	}
	if _, err := c.stdin.Write(append(b, '\n')); err != nil {
		return &ocr.UnavailableError{State: c.state.String(), Err: err}
	}
	return nil
}

// Collect streams up to expected results as the helper finishes them. The
// result channel closes after the last one. A terminal condition arrives on
// the error channel instead: TimeoutError when no result lands within the
// per-result timeout, ExitError when the helper dies mid-batch, EngineError
// or ProtocolError forwarded from the stream, or ctx.Err. Results that were
// already buffered when the helper died are still delivered first.
//
// Collect is meant for one consumer at a time; batches do not overlap.
func (c *Client) Collect(ctx context.Context, expected int) (<-chan ocr.PageResult, <-chan error) {
	results := make(chan ocr.PageResult)
	errs := make(chan error)
	c.mu.Lock()
	st := c.state
	events := c.events
	c.mu.Unlock()
	go func() {
		defer close(results)
		defer close(errs)
		if st != stateRunning {
			errs <- &ocr.UnavailableError{State: st.String()}
			return
		}
		if expected <= 0 {
			return
		}
		timer := time.NewTimer(c.collectTimeout)
		defer timer.Stop()
		collected := 0
		for collected < expected {
			select {
			case ev, ok := <-events:
				if !ok {
					errs <- &ocr.ExitError{Collected: collected, Expected: expected, Err: c.waitErr}
					return
				}
				if ev.err != nil {
					errs <- ev.err
					return
				}
				select {
				case results <- ev.result:
					collected++
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
				timer.Reset(c.collectTimeout)
			case <-timer.C:
				errs <- &ocr.TimeoutError{Collected: collected, Expected: expected, Wait: c.collectTimeout}
				return
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return results, errs
}

// Stop shuts the helper down: a best-effort stop command, stdin closed, a
// grace period, then a kill. It is idempotent and callable from any state;
// before Start it just marks the client stopped.
func (c *Client) Stop() error {
	c.mu.Lock()
	switch c.state {
	case stateNotStarted:
		c.state = stateStopped
		c.mu.Unlock()
		return nil
	case stateStopped:
		c.mu.Unlock()
		return nil
	case stateStopping:
		done := c.done
		c.mu.Unlock()
		if done != nil {
			<-done
		}
		return nil
	}
	c.state = stateStopping
	// best effort; the engine may already be gone
	if b, err := json.Marshal(stopRequest{Cmd: cmdStop}); err == nil {
		_, _ = c.stdin.Write(append(b, '\n'))
	}
	_ = c.stdin.Close()
	done := c.done
	events := c.events
	cmd := c.cmd
	c.mu.Unlock()

	timer := time.NewTimer(c.stopGrace)
	defer timer.Stop()
	for {
		select {
		case <-done:
			c.mu.Lock()
			c.state = stateStopped
			c.mu.Unlock()
			return nil
		case <-timer.C:
			c.log.Warn("ocr engine ignored stop, killing",
				observability.String("engine", c.path))
			_ = cmd.Process.Kill()
		case <-events:
			// discard stragglers so a blocked reader can reach EOF
		}
	}
}

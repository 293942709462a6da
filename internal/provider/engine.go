package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"phobos.org.uk/foreman/internal/logging"
	"phobos.org.uk/foreman/internal/metrics"
	"phobos.org.uk/foreman/internal/sessionid"
	"phobos.org.uk/foreman/internal/sessionlog"
	"phobos.org.uk/foreman/internal/stream"
)

// CancelledMessage is the error reported for cancelled invocations.
const CancelledMessage = "invocation cancelled"

// pipeWaitDelay bounds how long output is still read after the CLI exits.
const pipeWaitDelay = 2 * time.Second

// dialect adapts the engine to one CLI's flags and output format.
type dialect interface {
	Binary() string
	BuildArgs(req Request) []string
	ExtractResult(stdout, stderr string) string
}

// Optional dialect hooks.
type (
	envBuilder interface {
		BuildEnv(env []string) []string
	}
	sessionParser interface {
		ParseSessionID(stdout, stderr, fallback string) string
	}
	availabilityChecker interface {
		IsAvailable(ctx context.Context, binary string) bool
	}
	resumableDialect interface {
		SupportsResume() bool
	}
	streamingDialect interface {
		NewStreamParser() stream.Parser
	}
)

// cliProvider implements Provider for any dialect.
type cliProvider struct {
	typ       Type
	d         dialect
	binary    string
	model     string
	log       *logging.Logger
	logDir    string
	killGrace time.Duration
	metrics   *metrics.Metrics
}

func (p *cliProvider) Type() Type { return p.typ }

func (p *cliProvider) SupportsResume() bool {
	r, ok := p.d.(resumableDialect)
	return ok && r.SupportsResume()
}

func (p *cliProvider) Cancel(h *Handle) bool {
	if h == nil {
		return false
	}
	return h.Cancel()
}

// IsAvailable reports whether the CLI binary resolves on PATH, unless the
// dialect checks something else.
func (p *cliProvider) IsAvailable(ctx context.Context) bool {
	binary := p.resolveBinary()
	if c, ok := p.d.(availabilityChecker); ok {
		return c.IsAvailable(ctx, binary)
	}
	_, err := exec.LookPath(binary)
	return err == nil
}

// resolveBinary picks the configured binary, then <TYPE>_BIN, then the
// dialect default.
func (p *cliProvider) resolveBinary() string {
	if p.binary != "" {
		return p.binary
	}
	if bin := os.Getenv(strings.ToUpper(string(p.typ)) + "_BIN"); bin != "" {
		return bin
	}
	return p.d.Binary()
}

func (p *cliProvider) parseSessionID(stdout, stderr, fallback string) string {
	if sp, ok := p.d.(sessionParser); ok {
		return sp.ParseSessionID(stdout, stderr, fallback)
	}
	if !p.SupportsResume() {
		return ""
	}
	if id := sessionid.Extract(stdout, stderr); id != "" {
		return id
	}
	return fallback
}

// Spawn starts the CLI and returns a handle immediately. The process is
// supervised in the background until it exits.
func (p *cliProvider) Spawn(ctx context.Context, req Request) *Handle {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Mode == "" {
		req.Mode = ModeCode
	}
	if req.Model == "" {
		req.Model = p.model
	}
	if req.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			req.WorkDir = wd
		}
	}
	if req.LogID == "" {
		req.LogID = req.ID
	}

	log := p.log.WithInvocation(req.ID)
	binary := p.resolveBinary()
	start := time.Now()

	if !req.Mode.Valid() {
		h := newHandle(req.ID, shellQuote(binary))
		log.Warn("invalid mode", map[string]any{"provider": string(p.typ), "mode": string(req.Mode)})
		h.finish(Result{
			Error:    fmt.Sprintf("invalid mode %q: must be plan, code or analyze", req.Mode),
			ExitCode: -1,
		})
		return h
	}

	args := p.d.BuildArgs(req)
	h := newHandle(req.ID, displayCommand(binary, args, req.Prompt))

	slog := sessionlog.Open(p.logDir, req.LogID, req.ID, func(err error) {
		log.Warn("session log disabled", map[string]any{"error": err.Error()})
	})
	slog.Start(string(p.typ), h.Command, req.Prompt)

	sink := &capture{onChunk: req.OnChunk, slog: slog}
	if sd, ok := p.d.(streamingDialect); ok {
		sink.lines = newLineSplitter(sd.NewStreamParser(), stream.NewLogObserver(log))
	}

	cmd := exec.Command(binary, args...)
	cmd.Dir = req.WorkDir
	cmd.Env = os.Environ()
	if eb, ok := p.d.(envBuilder); ok {
		cmd.Env = eb.BuildEnv(cmd.Env)
	}
	cmd.Stdout = sink.writer(StreamStdout)
	cmd.Stderr = sink.writer(StreamStderr)
	// Tools the CLI leaves running in the background can hold the pipes
	// open; stop reading once the CLI itself has been gone this long.
	cmd.WaitDelay = pipeWaitDelay
	setupProcessGroup(cmd)

	if err := checkWorkDir(req.WorkDir); err != nil {
		p.launchFailed(h, log, slog, err.Error(), start)
		return h
	}
	if err := cmd.Start(); err != nil {
		p.launchFailed(h, log, slog, launchError(binary, err), start)
		return h
	}

	p.metrics.Started(string(p.typ))
	log.Info("invocation started", map[string]any{
		"provider": string(p.typ),
		"command":  h.Command,
		"mode":     string(req.Mode),
		"resume":   req.Resume,
		"pid":      cmd.Process.Pid,
	})

	h.arm(func() {
		log.Info("cancelling invocation", map[string]any{"grace": p.killGrace.String()})
		terminateProcessGroup(cmd)
		h.escalate(p.killGrace, func() {
			log.Warn("invocation ignored SIGTERM, killing", nil)
			killProcessGroup(cmd)
		})
	})
	watchExit(cmd, h.markExited)

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.Cancel()
			case <-h.Done():
			}
		}()
	}

	go p.supervise(h, cmd, sink, req, binary, slog, log, start)
	return h
}

func (p *cliProvider) launchFailed(h *Handle, log *logging.InvocationLogger, slog *sessionlog.Writer, msg string, start time.Time) {
	log.Error("invocation failed to launch", map[string]any{
		"provider": string(p.typ),
		"command":  h.Command,
		"error":    msg,
	})
	slog.Exit(-1, msg)
	p.metrics.Finished(string(p.typ), metrics.OutcomeLaunchError, time.Since(start), false)
	h.finish(Result{Error: msg, ExitCode: -1, Duration: time.Since(start)})
}

// supervise waits for exit and output capture, then publishes the result.
func (p *cliProvider) supervise(h *Handle, cmd *exec.Cmd, sink *capture,
	req Request, binary string, slog *sessionlog.Writer, log *logging.InvocationLogger, start time.Time) {

	waitErr := cmd.Wait()
	h.markExited()
	cancelled := h.seal()
	duration := time.Since(start)

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// The CLI exited cleanly but something it started kept the pipes open.
		log.Warn("output pipes still open after exit, stopped reading", map[string]any{
			"wait_delay": pipeWaitDelay.String(),
		})
		waitErr = nil
	}
	sink.lines.flush()

	exitCode := 0
	if waitErr != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	stdoutText, stderrText := sink.text()
	output := p.d.ExtractResult(stdoutText, stderrText)
	res := Result{
		Output:            output,
		Duration:          duration,
		SessionID:         p.parseSessionID(stdoutText, stderrText, req.SessionID),
		EndedWithQuestion: sessionid.EndedWithQuestion(stdoutText, stderrText, output),
		ExitCode:          exitCode,
	}

	outcome := metrics.OutcomeSuccess
	switch {
	case cancelled:
		res.Error = CancelledMessage
		outcome = metrics.OutcomeCancelled
	case waitErr != nil:
		res.Error = exitError(binary, stderrText, exitCode, waitErr)
		outcome = metrics.OutcomeFailed
	default:
		res.Success = true
	}

	if output != "" {
		sink.emit(newChunk(KindOutput, StreamResult, 0, output))
		sink.emit(newChunk(KindResponse, StreamResult, 1, output))
	}

	slog.Exit(exitCode, res.Error)

	fields := map[string]any{
		"provider":            string(p.typ),
		"exit_code":           exitCode,
		"duration_seconds":    duration.Seconds(),
		"output_bytes":        len(output),
		"ended_with_question": res.EndedWithQuestion,
	}
	if res.SessionID != "" {
		fields["session_id"] = res.SessionID
	}
	if res.Success {
		log.Info("invocation completed", fields)
	} else {
		fields["error"] = res.Error
		log.Error("invocation failed", fields)
	}
	p.metrics.Finished(string(p.typ), outcome, duration, true)

	h.finish(res)
}

// capture accumulates both streams and forwards each write as a raw chunk.
// Writes from the two streams are serialized so OnChunk never runs
// concurrently with itself.
type capture struct {
	onChunk func(Chunk)
	slog    *sessionlog.Writer
	lines   *lineSplitter

	mu  sync.Mutex
	out strings.Builder
	err strings.Builder
}

func (c *capture) writer(streamName string) io.Writer {
	acc := &c.err
	if streamName == StreamStdout {
		acc = &c.out
	}
	return &chunkWriter{onData: func(index int, text string) {
		c.mu.Lock()
		acc.WriteString(text)
		c.deliver(newChunk(KindRaw, streamName, index, text))
		c.slog.Chunk(streamName, index, text)
		c.mu.Unlock()
		if streamName == StreamStdout {
			c.lines.feed(text)
		}
	}}
}

func (c *capture) deliver(ch Chunk) {
	if c.onChunk != nil {
		c.onChunk(ch)
	}
}

func (c *capture) emit(ch Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliver(ch)
}

func (c *capture) text() (stdout, stderr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String(), c.err.String()
}

// chunkWriter numbers the writes of one stream. exec copies each stream on
// a single goroutine, so index needs no lock.
type chunkWriter struct {
	index  int
	onData func(index int, text string)
}

func (w *chunkWriter) Write(b []byte) (int, error) {
	if len(b) > 0 {
		w.onData(w.index, string(b))
		w.index++
	}
	return len(b), nil
}

func checkWorkDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("working directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory %s: not a directory", dir)
	}
	return nil
}

func launchError(binary string, err error) string {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("%s: binary not found: %v", binary, err)
	}
	return fmt.Sprintf("failed to start %s: %v", binary, err)
}

func exitError(binary, stderr string, exitCode int, err error) string {
	if msg := strings.TrimSpace(stderr); msg != "" {
		return msg
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("%s exited with code %d", binary, exitCode)
	}
	return fmt.Sprintf("%s: %v", binary, err)
}

// lineSplitter feeds complete stdout lines to a stream parser and hands the
// resulting events to an observer. A nil splitter ignores input.
type lineSplitter struct {
	parser   stream.Parser
	observer stream.Observer
	pending  strings.Builder
}

func newLineSplitter(parser stream.Parser, observer stream.Observer) *lineSplitter {
	return &lineSplitter{parser: parser, observer: observer}
}

func (s *lineSplitter) feed(text string) {
	if s == nil {
		return
	}
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			s.pending.WriteString(text)
			return
		}
		s.pending.WriteString(text[:i])
		s.parse(s.pending.String())
		s.pending.Reset()
		text = text[i+1:]
	}
}

func (s *lineSplitter) flush() {
	if s == nil || s.pending.Len() == 0 {
		return
	}
	s.parse(s.pending.String())
	s.pending.Reset()
}

func (s *lineSplitter) parse(line string) {
	events, err := s.parser.Parse([]byte(line))
	if err != nil {
		return
	}
	for _, ev := range events {
		s.observer.Observe(ev)
	}
}

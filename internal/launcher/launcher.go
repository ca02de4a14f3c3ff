// Package launcher spawns rendered invocations through the host shell and
// enforces their timeout.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/loykin/procbuilder/internal/builder"
	"github.com/loykin/procbuilder/internal/history"
	"github.com/loykin/procbuilder/internal/logger"
	"github.com/loykin/procbuilder/internal/metrics"
	"github.com/loykin/procbuilder/internal/shell"
)

// ErrLaunch wraps every failure to spawn a process.
var ErrLaunch = errors.New("launch failed")

// killGrace bounds how long Wait keeps copying output after the child was killed.
const killGrace = 2 * time.Second

// Launcher starts processes described by builder.Invocation values.
// It is safe for concurrent use once configured.
type Launcher struct {
	Logger *slog.Logger
	Log    logger.Config // child stdout/stderr files, used when Stdout/Stderr are nil
	Sink   history.Sink  // optional launch history
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Launcher logging to l (slog.Default when nil).
func New(l *slog.Logger) *Launcher {
	if l == nil {
		l = slog.Default()
	}
	return &Launcher{Logger: l}
}

// Result describes a finished process.
type Result struct {
	Name      string        `json:"name"`
	PID       int           `json:"pid"`
	ExitCode  int           `json:"exit_code"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	TimedOut  bool          `json:"timed_out"`
	Err       error         `json:"-"`
}

// Handle is a running process.
type Handle struct {
	inv     builder.Invocation
	cmd     *exec.Cmd
	started time.Time
	done    chan struct{}
	result  Result
}

// PID returns the operating system process id.
func (h *Handle) PID() int { return h.cmd.Process.Pid }

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the process exits and returns its result.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}

// Stop kills the process and its process group.
func (h *Handle) Stop() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	return killTree(h.cmd)
}

// Run starts inv and waits for it. The returned error equals Result.Err.
func (l *Launcher) Run(ctx context.Context, inv builder.Invocation) (Result, error) {
	h, err := l.Start(ctx, inv)
	if err != nil {
		return Result{Name: inv.Name, ExitCode: -1, Err: err}, err
	}
	r := h.Wait()
	return r, r.Err
}

// Start spawns inv through the shell of its dialect. A positive timeout on
// inv bounds the run; a zero timeout means no limit.
func (l *Launcher) Start(ctx context.Context, inv builder.Invocation) (*Handle, error) {
	log := l.logger().With("name", inv.Name)
	if inv.CommandLine == "" {
		return nil, l.failed(log, inv, errors.New("empty command line"))
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if inv.Timeout != nil && *inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, *inv.Timeout)
	}

	argv := shell.Command(inv.Dialect, inv.CommandLine)
	// #nosec G204 -- the command line is assembled from escaped tokens
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Environ()
	cmd.Stdin = l.Stdin
	configureSysProcAttr(cmd, inv)
	cmd.Cancel = func() error { return killTree(cmd) }
	cmd.WaitDelay = killGrace

	closers, err := l.attachOutput(cmd, inv.Name)
	if err != nil {
		cancel()
		return nil, l.failed(log, inv, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		closeAll(closers)
		return nil, l.failed(log, inv, err)
	}

	h := &Handle{inv: inv, cmd: cmd, started: time.Now(), done: make(chan struct{})}
	log.Info("process started", "pid", cmd.Process.Pid, "command", inv.CommandLine)
	metrics.IncLaunch(inv.Name, true)
	l.send(log, history.EventStart, h.record())

	go func() {
		waitErr := cmd.Wait()
		cancel()
		closeAll(closers)
		h.result = l.finish(h, ctx, runCtx, waitErr)
		close(h.done)
	}()
	return h, nil
}

// finish builds the Result. runCtx carries the invocation's own deadline
// when it has a positive timeout; parent is the caller's context.
func (l *Launcher) finish(h *Handle, parent, runCtx context.Context, waitErr error) Result {
	r := Result{
		Name:      h.inv.Name,
		PID:       h.cmd.Process.Pid,
		StartedAt: h.started,
		Duration:  time.Since(h.started),
	}
	if h.cmd.ProcessState != nil {
		r.ExitCode = h.cmd.ProcessState.ExitCode()
	} else if waitErr != nil {
		r.ExitCode = -1
	}
	outcome := "ok"
	switch {
	case timedOut(h.inv, parent, runCtx):
		r.TimedOut = true
		r.Err = fmt.Errorf("%s: timed out after %s: %w", h.inv.Name, *h.inv.Timeout, context.DeadlineExceeded)
		outcome = "timeout"
	case parent.Err() != nil && waitErr != nil:
		r.Err = fmt.Errorf("%s: %w: %w", h.inv.Name, context.Cause(parent), waitErr)
		outcome = "canceled"
	case waitErr != nil:
		r.Err = fmt.Errorf("%s: %w", h.inv.Name, waitErr)
		outcome = "error"
	}

	log := l.logger().With("name", r.Name, "pid", r.PID)
	if r.Err != nil {
		log.Warn("process exited", "exit_code", r.ExitCode, "duration", r.Duration, "timed_out", r.TimedOut, "error", r.Err)
	} else {
		log.Info("process exited", "exit_code", r.ExitCode, "duration", r.Duration)
	}
	metrics.ObserveExit(r.Name, outcome, r.Duration.Seconds())

	rec := h.record()
	rec.ExitCode = r.ExitCode
	rec.TimedOut = r.TimedOut
	rec.Duration = r.Duration
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	l.send(log, history.EventExit, rec)
	return r
}

// timedOut reports whether the invocation's own limit fired. A parent
// deadline or cancellation is not a timeout of the invocation.
func timedOut(inv builder.Invocation, parent, runCtx context.Context) bool {
	if inv.Timeout == nil || *inv.Timeout <= 0 || parent.Err() != nil {
		return false
	}
	return errors.Is(runCtx.Err(), context.DeadlineExceeded)
}

func (h *Handle) record() history.Record {
	return history.Record{
		Name:        h.inv.Name,
		PID:         h.cmd.Process.Pid,
		CommandLine: h.inv.CommandLine,
		Dir:         h.inv.Dir,
	}
}

func (l *Launcher) failed(log *slog.Logger, inv builder.Invocation, cause error) error {
	err := fmt.Errorf("%w: %s: %w", ErrLaunch, inv.Name, cause)
	log.Error("process launch failed", "command", inv.CommandLine, "error", cause)
	metrics.IncLaunch(inv.Name, false)
	l.send(log, history.EventFailed, history.Record{
		Name:        inv.Name,
		CommandLine: inv.CommandLine,
		Dir:         inv.Dir,
		ExitCode:    -1,
		Error:       cause.Error(),
	})
	return err
}

// attachOutput wires stdout/stderr to the explicit writers or to rotating
// log files. Streams with neither go to the null device.
func (l *Launcher) attachOutput(cmd *exec.Cmd, name string) ([]io.Closer, error) {
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if !l.Log.File.Enabled() || (l.Stdout != nil && l.Stderr != nil) {
		return nil, nil
	}
	outW, errW, err := l.Log.ProcessWriters(name)
	if err != nil {
		return nil, err
	}
	var closers []io.Closer
	if outW != nil {
		if cmd.Stdout == nil {
			cmd.Stdout = outW
		}
		closers = append(closers, outW)
	}
	if errW != nil {
		if cmd.Stderr == nil {
			cmd.Stderr = errW
		}
		closers = append(closers, errW)
	}
	return closers, nil
}

func (l *Launcher) send(log *slog.Logger, t history.EventType, rec history.Record) {
	if l.Sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Sink.Send(ctx, history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}); err != nil {
		log.Warn("history sink failed", "event", string(t), "error", err)
	}
}

func (l *Launcher) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func closeAll(cs []io.Closer) {
	for _, c := range cs {
		_ = c.Close()
	}
}

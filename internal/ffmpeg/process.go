package ffmpeg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a lifecycle event of a running job.
type EventKind int

const (
	EventStarted    EventKind = iota + 1 // output opened, media is flowing
	EventDiagnostic                      // one line of engine diagnostics
	EventFailed                          // process exited non-zero or was killed
	EventEnded                           // process exited cleanly
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDiagnostic:
		return "diagnostic"
	case EventFailed:
		return "failed"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is delivered on Handle.Events in the order the process produced it.
type Event struct {
	Kind EventKind
	Line string // set for EventDiagnostic
	Err  error  // set for EventFailed
}

// Handle is one running engine process. Events is closed after the final
// EventFailed or EventEnded; Done is closed right after that.
type Handle interface {
	ID() string
	Events() <-chan Event
	Terminate() error
	Done() <-chan struct{}
}

// Spawner starts engine processes.
type Spawner interface {
	Spawn(key string, inv Invocation) (Handle, error)
}

// DefaultKillTimeout is how long Terminate waits after the interrupt before
// killing the process.
const DefaultKillTimeout = 5 * time.Second

// Runner spawns the engine binary as an OS process.
type Runner struct {
	binary      string
	killTimeout time.Duration
	logs        LogOptions
	log         *slog.Logger

	command func(name string, args ...string) *exec.Cmd
}

// Type check
var _ Spawner = (*Runner)(nil)

// NewRunner returns a Runner executing binary. A non-positive killTimeout
// uses DefaultKillTimeout.
func NewRunner(binary string, killTimeout time.Duration, logs LogOptions, log *slog.Logger) *Runner {
	if binary == "" {
		binary = "ffmpeg"
	}
	if killTimeout <= 0 {
		killTimeout = DefaultKillTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		binary:      binary,
		killTimeout: killTimeout,
		logs:        logs,
		log:         log,
		command:     exec.Command,
	}
}

// Spawn creates the output directory and starts the engine for inv. It
// returns once the process exists; media may not be flowing yet.
func (r *Runner) Spawn(key string, inv Invocation) (Handle, error) {
	if err := os.MkdirAll(filepath.Dir(inv.OutputPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %w", ErrSpawn, err)
	}
	if r.logs.Enabled {
		if err := os.MkdirAll(r.logs.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create log dir: %w", ErrSpawn, err)
		}
	}

	cmd := r.command(r.binary, inv.Args()...)
	// Stderr is copied by exec rather than read from the raw pipe, so Wait
	// can run alongside the reader and WaitDelay bounds how long a child
	// that inherited the descriptor can keep it open.
	stderr, stderrW := io.Pipe()
	cmd.Stderr = stderrW
	cmd.WaitDelay = r.killTimeout

	sink := newLogSink(r.logs, key)
	if sink != nil {
		cmd.Stdout = sink
	}

	if err := cmd.Start(); err != nil {
		_ = stderrW.Close()
		if sink != nil {
			_ = sink.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	p := &Process{
		id:          uuid.NewString(),
		key:         key,
		cmd:         cmd,
		killTimeout: r.killTimeout,
		log:         r.log,
		events:      make(chan Event, 16),
		done:        make(chan struct{}),
	}
	r.log.Debug("transcoder spawned",
		slog.String("key", key),
		slog.String("worker_id", p.id),
		slog.Int("pid", cmd.Process.Pid))

	go p.run(stderr, stderrW, sink)
	return p, nil
}

// Process is the Handle of one engine process started by Runner.
type Process struct {
	id          string
	key         string
	cmd         *exec.Cmd
	killTimeout time.Duration
	log         *slog.Logger

	events chan Event
	done   chan struct{}

	once    sync.Once
	termErr error
}

// ID implements Handle.ID.
func (p *Process) ID() string { return p.id }

// Events implements Handle.Events.
func (p *Process) Events() <-chan Event { return p.events }

// Done implements Handle.Done.
func (p *Process) Done() <-chan struct{} { return p.done }

// Terminate interrupts the process and kills it if it is still running
// after the kill timeout. Calling it more than once, or after the process
// exited, is a no-op.
func (p *Process) Terminate() error {
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		err := p.cmd.Process.Signal(os.Interrupt)
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			// Interrupt is not available everywhere.
			err = p.cmd.Process.Kill()
		}
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.termErr = fmt.Errorf("terminate %s: %w", p.key, err)
			return
		}
		go p.escalate()
	})
	return p.termErr
}

func (p *Process) escalate() {
	t := time.NewTimer(p.killTimeout)
	defer t.Stop()
	select {
	case <-p.done:
	case <-t.C:
		_ = p.cmd.Process.Kill()
	}
}

// run forwards stderr lines as events until the pipe closes, then reports
// the exit status.
func (p *Process) run(stderr *io.PipeReader, stderrW *io.PipeWriter, sink io.WriteCloser) {
	defer close(p.done)
	defer close(p.events)

	waited := make(chan error, 1)
	go func() {
		err := p.cmd.Wait()
		_ = stderrW.Close()
		waited <- err
	}()

	started := false
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(scanLines)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if sink != nil {
			_, _ = io.WriteString(sink, line+"\n")
		}
		if !started && matchOutputOpened(line) {
			started = true
			p.events <- Event{Kind: EventStarted}
		}
		p.events <- Event{Kind: EventDiagnostic, Line: line}
	}
	if err := sc.Err(); err != nil {
		// The process blocks on a full pipe unless someone keeps reading.
		p.log.Warn("transcoder stderr unreadable, discarding the rest",
			slog.String("key", p.key),
			slog.String("worker_id", p.id),
			slog.String("error", err.Error()))
		_, _ = io.Copy(io.Discard, stderr)
	}

	err := <-waited
	if sink != nil {
		_ = sink.Close()
	}
	if err != nil {
		p.events <- Event{Kind: EventFailed, Err: err}
		return
	}
	p.events <- Event{Kind: EventEnded}
}

// scanLines splits on '\n' or '\r'; progress output uses bare carriage returns.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rtsp-hls-supervisor/internal/ffmpeg"
	"rtsp-hls-supervisor/internal/hls"
)

var (
	// ErrInvalidSpec is returned when a stream spec is missing required
	// fields or a composite has an unsupported number of inputs.
	ErrInvalidSpec = errors.New("invalid stream spec")

	// ErrSpawn is returned when the transcoder process could not be created.
	ErrSpawn = ffmpeg.ErrSpawn
)

// Config is the static configuration of a Supervisor.
type Config struct {
	OutputDir string         // root of the per-stream output directories
	URLPrefix string         // URL path under which OutputDir is served
	Build     ffmpeg.Options // engine options shared by every job
	RetryBase time.Duration  // first reconnect delay
	RetryMax  time.Duration  // reconnect delay ceiling
}

// Recorder receives supervisor lifecycle counts. All methods must be safe
// for concurrent use.
type Recorder interface {
	WorkerSpawned()
	WorkerExited()
	SpawnFailed()
	ReconnectScheduled(delay time.Duration)
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Supervisor owns the lifecycle of every transcoding job: it starts,
// stops and resumes jobs, and restarts failed ones with exponential
// backoff unless they were stopped by hand.
type Supervisor struct {
	mu      sync.Mutex
	reg     *Registry
	cfg     Config
	spawner ffmpeg.Spawner
	log     *slog.Logger
	rec     Recorder

	fatal     func(line string) bool
	afterFunc func(d time.Duration, f func()) Timer
	now       func() time.Time
}

// New returns a Supervisor spawning jobs through spawner. rec may be nil.
func New(cfg Config, spawner ffmpeg.Spawner, log *slog.Logger, rec Recorder) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/hls"
	}
	return &Supervisor{
		reg:     NewRegistry(cfg.RetryBase, cfg.RetryMax),
		cfg:     cfg,
		spawner: spawner,
		log:     log,
		rec:     rec,
		fatal:   ffmpeg.MatchFatal,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		now: time.Now,
	}
}

// Start starts a single-camera job. It is idempotent: a running key
// yields StatusAlreadyRunning and a manually stopped key yields
// StatusManuallyStopped, neither with side effects.
func (s *Supervisor) Start(spec SingleSpec) (StartResult, error) {
	if err := validateSingle(spec); err != nil {
		return StartResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(&WorkerState{Key: spec.Key(), Kind: KindSingle, Single: spec})
}

// StartCombined starts a composite job. Besides the Start semantics it
// fails with ErrInvalidSpec when the input count is outside 2..9.
func (s *Supervisor) StartCombined(spec CompositeSpec) (StartResult, error) {
	if err := validateComposite(spec); err != nil {
		return StartResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(&WorkerState{Key: spec.Key(), Kind: KindComposite, Composite: spec})
}

// Resume clears the manually-stopped flag of the spec's key and starts it.
func (s *Supervisor) Resume(spec SingleSpec) (StartResult, error) {
	if err := validateSingle(spec); err != nil {
		return StartResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.ClearStopped(spec.Key())
	return s.startLocked(&WorkerState{Key: spec.Key(), Kind: KindSingle, Single: spec})
}

// ResumeCombined is Resume for composite jobs.
func (s *Supervisor) ResumeCombined(spec CompositeSpec) (StartResult, error) {
	if err := validateComposite(spec); err != nil {
		return StartResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.ClearStopped(spec.Key())
	return s.startLocked(&WorkerState{Key: spec.Key(), Kind: KindComposite, Composite: spec})
}

// Stop terminates the job under key, if any, and marks key as manually
// stopped so it is not restarted until resumed. The flag is set even when
// nothing was running. It reports whether a job was terminated.
func (s *Supervisor) Stop(key StreamKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reg.MarkStopped(key)
	s.reg.CancelPending(key)

	w, ok := s.reg.Remove(key)
	if !ok {
		s.log.Info("stop requested for idle stream", slog.String("key", string(key)))
		return false
	}
	s.terminate(w)
	s.clearOutput(key)
	s.log.Info("stream stopped", slog.String("key", string(key)))
	return true
}

// StopAll terminates every job and marks each affected key as manually
// stopped. It returns the number of jobs terminated.
func (s *Supervisor) StopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stopAllLocked())
}

// Shutdown stops every job and waits for the processes to exit or for ctx
// to be done.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	drained := s.stopAllLocked()
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range drained {
		h := w.Handle
		g.Go(func() error {
			select {
			case <-h.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

// Streams returns the running jobs ordered by key, with the state of each
// job's playlist on disk.
func (s *Supervisor) Streams() []StreamInfo {
	s.mu.Lock()
	infos := s.reg.Snapshot()
	s.mu.Unlock()

	for i := range infos {
		pl, err := hls.ReadFile(infos[i].playlist)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.log.Debug("playlist unreadable",
					slog.String("key", string(infos[i].Key)),
					slog.String("error", err.Error()))
			}
			continue
		}
		infos[i].Ready = pl.Ready()
		infos[i].Segments = len(pl.Segments)
		infos[i].MediaSequence = pl.MediaSequence
	}
	return infos
}

// Count returns the number of running jobs.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Len()
}

func (s *Supervisor) stopAllLocked() []*WorkerState {
	for _, key := range s.reg.PendingKeys() {
		s.reg.MarkStopped(key)
		s.reg.CancelPending(key)
		s.clearOutput(key)
	}
	drained := s.reg.DrainAll()
	for _, w := range drained {
		s.reg.MarkStopped(w.Key)
		s.terminate(w)
		s.clearOutput(w.Key)
	}
	s.log.Info("all streams stopped", slog.Int("count", len(drained)))
	return drained
}

// startLocked runs the idempotency checks, builds the invocation and
// spawns the job. Caller must hold s.mu.
func (s *Supervisor) startLocked(w *WorkerState) (StartResult, error) {
	if cur, ok := s.reg.Get(w.Key); ok {
		return StartResult{
			Key:      w.Key,
			Status:   StatusAlreadyRunning,
			Message:  "stream already running",
			FileName: cur.FileName,
			URL:      cur.URL,
		}, nil
	}
	if s.reg.IsStopped(w.Key) {
		return StartResult{
			Key:     w.Key,
			Status:  StatusManuallyStopped,
			Message: "stream was manually stopped; resume required",
		}, nil
	}

	inv, err := s.invocation(w)
	if err != nil {
		return StartResult{}, err
	}
	if err := s.spawnLocked(w, inv); err != nil {
		return StartResult{}, err
	}
	return StartResult{
		Key:      w.Key,
		Status:   StatusStarted,
		Message:  "stream started",
		FileName: w.FileName,
		URL:      w.URL,
	}, nil
}

// invocation builds the engine parameters for w and fills in its output
// file name and URL.
func (s *Supervisor) invocation(w *WorkerState) (ffmpeg.Invocation, error) {
	w.FileName = fileName(w.Key)
	w.URL = path.Join(s.cfg.URLPrefix, string(w.Key), w.FileName)
	w.Playlist = filepath.Join(s.outputDir(w.Key), w.FileName)
	out := w.Playlist

	if w.Kind == KindSingle {
		return ffmpeg.BuildSingle(s.cfg.Build, w.Single.URL, out), nil
	}

	sources := make([]ffmpeg.Source, 0, len(w.Composite.URLs))
	for _, src := range w.Composite.URLs {
		sources = append(sources, ffmpeg.Source{URL: src.URL, Rotate: src.Rotate})
	}
	inv, err := ffmpeg.BuildComposite(s.cfg.Build, sources, out)
	if err != nil {
		return ffmpeg.Invocation{}, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	return inv, nil
}

// spawnLocked starts the process for w and registers it. Caller must hold s.mu.
func (s *Supervisor) spawnLocked(w *WorkerState, inv ffmpeg.Invocation) error {
	// A fresh process must not be reported ready from an earlier run's files.
	s.clearOutput(w.Key)

	h, err := s.spawner.Spawn(string(w.Key), inv)
	if err != nil {
		s.rec.SpawnFailed()
		s.log.Error("transcoder spawn failed",
			slog.String("key", string(w.Key)),
			slog.String("error", err.Error()))
		if !errors.Is(err, ErrSpawn) {
			err = fmt.Errorf("%w: %w", ErrSpawn, err)
		}
		return err
	}

	s.reg.CancelPending(w.Key)
	w.Handle = h
	w.StartedAt = s.now()
	s.reg.Put(w)
	s.rec.WorkerSpawned()

	s.log.Info("stream started",
		slog.String("key", string(w.Key)),
		slog.String("kind", string(w.Kind)),
		slog.String("worker_id", h.ID()),
		slog.String("url", w.URL))

	go s.watch(w.Key, h)
	return nil
}

func (s *Supervisor) terminate(w *WorkerState) {
	if err := w.Handle.Terminate(); err != nil {
		s.log.Warn("terminate failed",
			slog.String("key", string(w.Key)),
			slog.String("worker_id", w.Handle.ID()),
			slog.String("error", err.Error()))
	}
}

// clearOutput removes the playlist and segments of key. The live playlist
// never carries an end marker, so files left behind would look like a
// stream that is still running.
func (s *Supervisor) clearOutput(key StreamKey) {
	dir := s.outputDir(key)
	if err := os.RemoveAll(dir); err != nil {
		s.log.Warn("clear stream output failed",
			slog.String("key", string(key)),
			slog.String("dir", dir),
			slog.String("error", err.Error()))
	}
}

func (s *Supervisor) outputDir(key StreamKey) string {
	return filepath.Join(s.cfg.OutputDir, string(key))
}

func fileName(key StreamKey) string {
	return "stream-" + string(key) + ".m3u8"
}

func validateSingle(spec SingleSpec) error {
	if strings.TrimSpace(spec.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidSpec)
	}
	return validateKeyParts(spec.Project, spec.ID)
}

func validateComposite(spec CompositeSpec) error {
	for i, src := range spec.URLs {
		if strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("%w: urls[%d].url is required", ErrInvalidSpec, i)
		}
	}
	return validateKeyParts(spec.Project, spec.ID)
}

// keyPart is the alphabet of project and id. The key becomes a directory,
// a file name, an engine output template and a URL path segment, so
// anything outside it (separators, '%', '?', '#', spaces) is rejected.
var keyPart = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func validateKeyParts(project, id string) error {
	for _, f := range []struct{ name, value string }{{"project", project}, {"id", id}} {
		if f.value == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidSpec, f.name)
		}
		if !keyPart.MatchString(f.value) || strings.Contains(f.value, "..") {
			return fmt.Errorf("%w: %s %q may only contain letters, digits, '_', '-' and '.'", ErrInvalidSpec, f.name, f.value)
		}
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) WorkerSpawned()                   {}
func (nopRecorder) WorkerExited()                    {}
func (nopRecorder) SpawnFailed()                     {}
func (nopRecorder) ReconnectScheduled(time.Duration) {}

package supervisor

import (
	"log/slog"

	"rtsp-hls-supervisor/internal/ffmpeg"
)

// watch drains h's events until the process is gone. Events of a handle
// that is no longer registered under key are ignored by dispatch.
func (s *Supervisor) watch(key StreamKey, h ffmpeg.Handle) {
	for ev := range h.Events() {
		s.dispatch(key, h, ev)
	}
}

func (s *Supervisor) dispatch(key StreamKey, h ffmpeg.Handle, ev ffmpeg.Event) {
	switch ev.Kind {
	case ffmpeg.EventStarted:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.isCurrentLocked(key, h) {
			s.reg.ResetRetryDelay(key)
		}
		s.log.Info("transcoder output opened",
			slog.String("key", string(key)),
			slog.String("worker_id", h.ID()))
		return

	case ffmpeg.EventDiagnostic:
		if !s.fatal(ev.Line) {
			s.log.Debug("transcoder",
				slog.String("key", string(key)),
				slog.String("line", ev.Line))
			return
		}
		s.log.Warn("transcoder reported a fatal condition",
			slog.String("key", string(key)),
			slog.String("worker_id", h.ID()),
			slog.String("line", ev.Line))

	case ffmpeg.EventFailed, ffmpeg.EventEnded:
		s.rec.WorkerExited()
		attrs := []any{
			slog.String("key", string(key)),
			slog.String("worker_id", h.ID()),
			slog.String("event", ev.Kind.String()),
		}
		if ev.Err != nil {
			attrs = append(attrs, slog.String("error", ev.Err.Error()))
		}
		s.log.Warn("transcoder exited", attrs...)

	default:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(key, h)
}

func (s *Supervisor) isCurrentLocked(key StreamKey, h ffmpeg.Handle) bool {
	w, ok := s.reg.Get(key)
	return ok && w.Handle.ID() == h.ID()
}

// failLocked schedules a reconnect for key after a failure of h, unless the
// key was stopped by hand, h has been replaced, or a reconnect is already
// pending. Caller must hold s.mu.
func (s *Supervisor) failLocked(key StreamKey, h ffmpeg.Handle) {
	if s.reg.IsStopped(key) {
		return
	}
	if !s.isCurrentLocked(key, h) {
		return
	}
	if s.reg.HasPending(key) {
		return
	}
	w, _ := s.reg.Get(key)
	s.scheduleLocked(w, h.ID())
}

// scheduleLocked arms a reconnect timer for the job described by w.
// Caller must hold s.mu.
func (s *Supervisor) scheduleLocked(w *WorkerState, from string) {
	delay := s.reg.NextRetryDelay(w.Key)
	p := &pendingReconnect{from: from}
	spec := *w
	p.timer = s.afterFunc(delay, func() { s.reconnect(&spec, p) })
	s.reg.SetPending(w.Key, p)
	s.rec.ReconnectScheduled(delay)

	s.log.Info("reconnect scheduled",
		slog.String("key", string(w.Key)),
		slog.Int64("delay_ms", delay.Milliseconds()))
}

// reconnect runs when the timer armed for p fires. It replaces the failed
// process with a fresh one built from the same spec.
func (s *Supervisor) reconnect(spec *WorkerState, p *pendingReconnect) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := spec.Key
	if !s.reg.TakePending(key, p) {
		return
	}
	if s.reg.IsStopped(key) {
		return
	}
	if cur, ok := s.reg.Get(key); ok {
		if cur.Handle.ID() != p.from {
			// Restarted by someone else in the meantime.
			return
		}
		s.reg.Remove(key)
		s.terminate(cur)
	}

	next := &WorkerState{
		Key:       key,
		Kind:      spec.Kind,
		Single:    spec.Single,
		Composite: spec.Composite,
	}
	inv, err := s.invocation(next)
	if err != nil {
		s.log.Error("reconnect abandoned",
			slog.String("key", string(key)),
			slog.String("error", err.Error()))
		return
	}

	s.log.Info("reconnecting", slog.String("key", string(key)))
	if err := s.spawnLocked(next, inv); err != nil {
		s.scheduleLocked(next, "")
	}
}

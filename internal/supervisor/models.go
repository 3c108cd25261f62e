package supervisor

import (
	"time"

	"rtsp-hls-supervisor/internal/ffmpeg"
)

// StreamKey uniquely identifies one logical feed: project + "-" + id.
type StreamKey string

// NewStreamKey joins project and id into a StreamKey.
func NewStreamKey(project, id string) StreamKey {
	return StreamKey(project + "-" + id)
}

// Kind distinguishes single-input jobs from composites.
type Kind string

const (
	KindSingle    Kind = "single"
	KindComposite Kind = "composite"
)

// SingleSpec describes a one-camera conversion.
// This also matches the JSON payload of the start and resume endpoints.
type SingleSpec struct {
	URL     string `json:"url"`
	ID      string `json:"id"`
	Project string `json:"project"`
}

// Key returns the StreamKey of s.
func (s SingleSpec) Key() StreamKey { return NewStreamKey(s.Project, s.ID) }

// Source is one feed of a composite, with an optional rotation in degrees
// (0, 90, 180 or 270; anything else means no rotation).
type Source struct {
	URL    string `json:"url"`
	Rotate int    `json:"rotate,omitempty"`
}

// CompositeSpec describes a multi-camera grid conversion. URLs are tiled
// row-major in the given order.
type CompositeSpec struct {
	URLs    []Source `json:"urls"`
	ID      string   `json:"id"`
	Project string   `json:"project"`
}

// Key returns the StreamKey of s.
func (s CompositeSpec) Key() StreamKey { return NewStreamKey(s.Project, s.ID) }

// WorkerState is the registry's record of one running job. Only the
// Supervisor mutates it.
type WorkerState struct {
	Key       StreamKey
	Kind      Kind
	Single    SingleSpec    // set when Kind == KindSingle
	Composite CompositeSpec // set when Kind == KindComposite
	Handle    ffmpeg.Handle
	FileName  string
	URL       string
	Playlist  string // filesystem path of the playlist
	StartedAt time.Time
}

// Status is the outcome of a start or resume call.
type Status string

const (
	StatusStarted         Status = "started"
	StatusAlreadyRunning  Status = "already_running"
	StatusManuallyStopped Status = "manually_stopped"
)

// StartResult is returned by the start and resume operations.
type StartResult struct {
	Key      StreamKey `json:"key"`
	Status   Status    `json:"status"`
	Message  string    `json:"message"`
	FileName string    `json:"fileName,omitempty"`
	URL      string    `json:"url,omitempty"`
}

// StreamInfo is a read-only view of a running job.
type StreamInfo struct {
	Key       StreamKey `json:"key"`
	Kind      Kind      `json:"kind"`
	WorkerID  string    `json:"workerId"`
	FileName  string    `json:"fileName"`
	URL       string    `json:"url"`
	Inputs    int       `json:"inputs"`
	StartedAt time.Time `json:"startedAt"`

	// Read from the playlist on disk; zero until the engine has written it.
	Ready         bool  `json:"ready"`
	Segments      int   `json:"segments"`
	MediaSequence int64 `json:"mediaSequence"`

	playlist string
}

func (w *WorkerState) info() StreamInfo {
	inputs := 1
	if w.Kind == KindComposite {
		inputs = len(w.Composite.URLs)
	}
	return StreamInfo{
		Key:       w.Key,
		Kind:      w.Kind,
		WorkerID:  w.Handle.ID(),
		FileName:  w.FileName,
		URL:       w.URL,
		Inputs:    inputs,
		StartedAt: w.StartedAt,
		playlist:  w.Playlist,
	}
}

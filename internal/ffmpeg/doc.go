// Package ffmpeg builds and runs the external transcoding engine.
//
// The package has two halves:
//
//   - builder.go turns a single feed or a composite of 2..9 feeds into an
//     Invocation: input descriptors, an optional filter graph, and the
//     segmented-output descriptor. It never touches the filesystem.
//   - process.go spawns an Invocation as an OS process and exposes it as a
//     Handle: an ordered event stream (started, diagnostic line, failed,
//     ended) plus Terminate.
//
// errors.go classifies diagnostic lines; logsink.go optionally tees each
// job's raw output into a rotating per-stream log file.
package ffmpeg

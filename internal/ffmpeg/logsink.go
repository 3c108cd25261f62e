package ffmpeg

import (
	"io"
	"path/filepath"

	"github.com/natefinch/lumberjack"
)

// LogOptions describes the optional rotating file that receives the raw
// diagnostic output of each job.
type LogOptions struct {
	Enabled    bool   // Write engine output to per-stream log files
	Directory  string // Directory for the logs
	MaxSize    int    // Maximum size of one log file in megabytes
	MaxBackups int    // Maximum number of old log files to retain
	MaxAge     int    // Maximum number of days to retain an old log file
	Compress   bool   // Gzip rotated files
}

// newLogSink opens the rotating log for key, or returns nil when logging
// is disabled.
func newLogSink(opts LogOptions, key string) io.WriteCloser {
	if !opts.Enabled || opts.Directory == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(opts.Directory, key+".log"),
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}
}

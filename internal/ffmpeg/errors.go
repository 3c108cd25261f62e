package ffmpeg

import (
	"errors"
	"regexp"
)

// ErrSpawn is returned when the engine process could not be created.
var ErrSpawn = errors.New("transcoder spawn failed")

// Pre-compiled patterns for classifying engine diagnostics. A match means
// the running job is producing broken output and should be restarted even
// though the process itself has not exited.
var (
	reTimestampIssue = regexp.MustCompile(
		`(?i)Non-monotonous DTS|non monotonically increasing dts|` +
			`DTS .*out of order|PTS .*out of order`)

	reDecodeIssue = regexp.MustCompile(
		`(?i)error while decoding|Invalid data found when processing input|` +
			`corrupt decoded frame|decode_slice_header error`)

	// Lines that show the output muxer has been opened, i.e. media is flowing.
	reOutputOpened = regexp.MustCompile(`^Output #0|Opening '.*' for writing`)
)

// MatchTimestampIssue reports whether line signals a timestamp discontinuity.
func MatchTimestampIssue(line string) bool {
	return reTimestampIssue.MatchString(line)
}

// MatchDecodeIssue reports whether line signals a decode error.
func MatchDecodeIssue(line string) bool {
	return reDecodeIssue.MatchString(line)
}

// MatchFatal reports whether line should be treated as a job failure.
func MatchFatal(line string) bool {
	return MatchTimestampIssue(line) || MatchDecodeIssue(line)
}

func matchOutputOpened(line string) bool {
	return reOutputOpened.MatchString(line)
}

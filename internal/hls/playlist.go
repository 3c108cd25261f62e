// Package hls reads the live media playlists written by the transcoder.
package hls

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/grafov/m3u8"
)

// ErrNotPlaylist is returned when the input is not an m3u8 media playlist.
var ErrNotPlaylist = errors.New("not an m3u8 media playlist")

// Segment is one media segment entry.
type Segment struct {
	Duration float64
	URI      string
}

// Playlist is the subset of a media playlist the supervisor reports on.
type Playlist struct {
	TargetDuration int
	MediaSequence  int64
	Segments       []Segment
	Ended          bool
}

// Ready reports whether a player can start: at least one segment listed.
func (p Playlist) Ready() bool {
	return len(p.Segments) > 0
}

// Parse reads a media playlist. A missing #EXT-X-TARGETDURATION is
// derived from the segment durations.
func Parse(r io.Reader) (Playlist, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Playlist{}, err
	}
	if !bytes.HasPrefix(bytes.TrimSpace(b), []byte("#EXTM3U")) {
		return Playlist{}, ErrNotPlaylist
	}

	p, kind, err := m3u8.DecodeFrom(bytes.NewReader(b), true)
	if err != nil {
		return Playlist{}, fmt.Errorf("decode playlist: %w", err)
	}
	media, ok := p.(*m3u8.MediaPlaylist)
	if kind != m3u8.MEDIA || !ok {
		return Playlist{}, fmt.Errorf("%w: master playlist", ErrNotPlaylist)
	}

	pl := Playlist{
		TargetDuration: int(math.Ceil(media.TargetDuration)),
		MediaSequence:  int64(media.SeqNo),
		Ended:          media.Closed,
	}
	// Segments is sized to the decoder's capacity; unused slots are nil.
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		pl.Segments = append(pl.Segments, Segment{Duration: seg.Duration, URI: seg.URI})
	}
	if pl.TargetDuration == 0 {
		pl.TargetDuration = targetDuration(pl.Segments)
	}
	return pl, nil
}

// ReadFile parses the playlist at path.
func ReadFile(path string) (Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return Playlist{}, err
	}
	defer f.Close()
	return Parse(f)
}

// targetDuration is the ceiling of the longest segment, at least 1.
func targetDuration(segments []Segment) int {
	longest := 0.0
	for _, seg := range segments {
		longest = math.Max(longest, seg.Duration)
	}
	if longest <= 0 {
		return 1
	}
	return int(math.Ceil(longest))
}

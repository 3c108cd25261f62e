package hls

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const live = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXT-X-MEDIA-SEQUENCE:38
#EXT-X-INDEPENDENT-SEGMENTS
#EXTINF:4.000000,
stream-p-7_00038.ts
#EXTINF:4.000000,
stream-p-7_00039.ts
`

func TestParse_live(t *testing.T) {
	pl, err := Parse(strings.NewReader(live))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pl.TargetDuration != 4 || pl.MediaSequence != 38 {
		t.Errorf("unexpected header values %+v", pl)
	}
	if len(pl.Segments) != 2 || pl.Segments[1].URI != "stream-p-7_00039.ts" || pl.Segments[0].Duration != 4 {
		t.Errorf("unexpected segments %+v", pl.Segments)
	}
	if pl.Ended {
		t.Error("live playlist should not be ended")
	}
	if !pl.Ready() {
		t.Error("playlist with segments should be ready")
	}
}

func TestParse_empty(t *testing.T) {
	pl, err := Parse(strings.NewReader("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-MEDIA-SEQUENCE:0\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pl.Ready() {
		t.Error("playlist without segments is not ready")
	}
	if pl.TargetDuration != 4 {
		t.Errorf("expected target duration 4, got %d", pl.TargetDuration)
	}
}

func TestParse_ended(t *testing.T) {
	in := "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:2.5,\na.ts\n#EXTINF:3.2,\nb.ts\n#EXT-X-ENDLIST\n"
	pl, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pl.Segments) != 2 || pl.Segments[0].URI != "a.ts" {
		t.Errorf("unexpected segments %+v", pl.Segments)
	}
	if !pl.Ended {
		t.Error("expected ended")
	}
}

func TestTargetDuration(t *testing.T) {
	if got := targetDuration([]Segment{{Duration: 2.5}, {Duration: 3.2}}); got != 4 {
		t.Errorf("expected ceil(3.2)=4, got %d", got)
	}
	if got := targetDuration(nil); got != 1 {
		t.Errorf("expected 1 for no segments, got %d", got)
	}
}

func TestParse_errors(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"no header": "#EXTINF:4,\na.ts\n",
		"text":      "hello",
		"master":    "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1280000\nlow/index.m3u8\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(in)); !errors.Is(err, ErrNotPlaylist) {
				t.Errorf("expected ErrNotPlaylist, got %v", err)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream-p-7.m3u8")
	if err := os.WriteFile(path, []byte(live), 0o644); err != nil {
		t.Fatal(err)
	}
	pl, err := ReadFile(path)
	if err != nil || pl.MediaSequence != 38 {
		t.Errorf("ReadFile: %+v %v", pl, err)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.m3u8")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not exist, got %v", err)
	}
}

package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"rtsp-hls-supervisor/internal/layout"
)

// Options controls the engine arguments shared by every job.
type Options struct {
	Canvas          layout.Canvas
	SegmentSeconds  int
	PlaylistSize    int
	Preset          string
	Tune            string
	GOP             int
	Audio           bool // single-input jobs only; composites never carry audio
	RTSPTransport   string
	ProbeSize       string
	AnalyzeDuration string
}

// DefaultOptions returns 4-second segments in a 10-entry rolling playlist
// on a 1080p composite canvas.
func DefaultOptions() Options {
	return Options{
		Canvas:          layout.DefaultCanvas,
		SegmentSeconds:  4,
		PlaylistSize:    10,
		Preset:          "veryfast",
		Tune:            "zerolatency",
		GOP:             50,
		Audio:           true,
		RTSPTransport:   "tcp",
		ProbeSize:       "1000000",
		AnalyzeDuration: "1000000",
	}
}

// Source is one feed of a composite job.
type Source struct {
	URL    string
	Rotate int
}

// Input is one engine input with the options that precede its -i.
type Input struct {
	URL     string
	Options []string
}

// Invocation is the complete parameter set for one engine run. It is
// produced by BuildSingle or BuildComposite and consumed by a Spawner.
type Invocation struct {
	Inputs        []Input
	FilterGraph   string
	Maps          []string
	OutputOptions []string
	OutputPath    string
}

// Args flattens the invocation into the engine's argument list
// (without the binary name).
func (inv Invocation) Args() []string {
	args := make([]string, 0, 64)

	// --- Preamble ---
	args = append(args, "-hide_banner", "-nostdin", "-nostats", "-y")

	// --- Inputs ---
	for _, in := range inv.Inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.URL)
	}

	// --- Composite filter graph ---
	if inv.FilterGraph != "" {
		args = append(args, "-filter_complex", inv.FilterGraph)
	}
	for _, m := range inv.Maps {
		args = append(args, "-map", m)
	}

	// --- Output ---
	args = append(args, inv.OutputOptions...)
	args = append(args, inv.OutputPath)
	return args
}

// BuildSingle builds the invocation converting one feed into a segmented
// playlist at outputPath.
func BuildSingle(opts Options, url, outputPath string) Invocation {
	out := make([]string, 0, 32)
	if opts.Audio {
		out = append(out, "-c:a", "aac")
	} else {
		out = append(out, "-an")
	}
	out = append(out, outputOptions(opts, outputPath)...)

	return Invocation{
		Inputs:        []Input{{URL: url, Options: inputOptions(opts)}},
		OutputOptions: out,
		OutputPath:    outputPath,
	}
}

// BuildComposite builds the invocation tiling sources onto one canvas.
// It returns layout.ErrInputCount (wrapped) when the source count is out
// of range.
func BuildComposite(opts Options, sources []Source, outputPath string) (Invocation, error) {
	rotations := make([]int, len(sources))
	for i, s := range sources {
		rotations[i] = s.Rotate
	}
	grid, err := layout.Plan(opts.Canvas, rotations)
	if err != nil {
		return Invocation{}, err
	}

	inputs := make([]Input, 0, len(sources))
	for _, s := range sources {
		inputs = append(inputs, Input{URL: s.URL, Options: inputOptions(opts)})
	}

	out := append([]string{"-an"}, outputOptions(opts, outputPath)...)

	return Invocation{
		Inputs:        inputs,
		FilterGraph:   compositeFilter(grid),
		Maps:          []string{"[out]"},
		OutputOptions: out,
		OutputPath:    outputPath,
	}, nil
}

// compositeFilter renders "rotate -> scale" per input into [vN] labels and
// stacks the labels at their planned offsets.
func compositeFilter(g layout.Grid) string {
	var b strings.Builder
	labels := make([]string, 0, len(g.Tiles))
	positions := make([]string, 0, len(g.Tiles))

	for i, tile := range g.Tiles {
		label := fmt.Sprintf("[v%d]", i)
		fmt.Fprintf(&b, "[%d:v]", i)
		if tile.Rotation != "" {
			b.WriteString(tile.Rotation)
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "scale=%d:%d,setsar=1%s;", tile.Width, tile.Height, label)

		labels = append(labels, label)
		positions = append(positions, fmt.Sprintf("%d_%d", tile.X, tile.Y))
	}

	fmt.Fprintf(&b, "%sxstack=inputs=%d:layout=%s:fill=black[out]",
		strings.Join(labels, ""), len(g.Tiles), strings.Join(positions, "|"))
	return b.String()
}

// inputOptions favors reliable transport and bounded probe latency.
func inputOptions(opts Options) []string {
	return []string{
		"-rtsp_transport", opts.RTSPTransport,
		"-probesize", opts.ProbeSize,
		"-analyzeduration", opts.AnalyzeDuration,
		"-fflags", "nobuffer",
		"-flags", "low_delay",
	}
}

// outputOptions requests rolling HLS output with self-contained segments.
func outputOptions(opts Options, outputPath string) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", opts.Preset,
		"-tune", opts.Tune,
		"-g", strconv.Itoa(opts.GOP),
		"-sc_threshold", "0",
		"-f", "hls",
		"-hls_time", strconv.Itoa(opts.SegmentSeconds),
		"-hls_list_size", strconv.Itoa(opts.PlaylistSize),
		"-hls_flags", "delete_segments+independent_segments+omit_endlist",
		"-hls_segment_filename", SegmentPattern(outputPath),
	}
}

// SegmentPattern derives the segment file template from the playlist path:
// "dir/stream-k.m3u8" becomes "dir/stream-k_%05d.ts".
func SegmentPattern(outputPath string) string {
	return strings.TrimSuffix(outputPath, ".m3u8") + "_%05d.ts"
}

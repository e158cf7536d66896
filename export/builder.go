package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dashplay/clips"
)

// ErrNoClipsInRange means no visible camera has any clip intersecting the
// requested range; no encoder command is emitted.
var ErrNoClipsInRange = errors.New("no clips intersect the requested export range")

// Decoders report native resolutions inconsistently across firmware
// revisions; every input is normalized to one tile size before stacking so
// the grid never comes out ragged.
const (
	tileWidth  = 1280
	tileHeight = 960
)

// mobileHeight is the composite height for the mobile preset; width follows
// the aspect ratio.
const mobileHeight = 720

// Request describes one export of a global-offset range to a composite file.
type Request struct {
	Timeline   *clips.Timeline
	StartMS    int64
	EndMS      int64
	Cameras    []clips.Camera // visible cameras, in grid order
	Mobile     bool
	OutputPath string
}

// Command is a declarative encoder invocation: the argument list for ffmpeg
// plus the temp concat-list files to delete once the job finishes, success or
// not.
type Command struct {
	Args       []string
	TempFiles  []string
	OutputPath string
	DurationMS int64
}

// cameraInput is one selected camera's slice of the day.
type cameraInput struct {
	camera   clips.Camera
	clips    []clips.ClipFile
	offsetMS int64
	listPath string
}

// BuildCommand re-derives the per-camera clip subsets and trim offsets for
// the range and assembles the full encoder command. Temp concat lists are
// written under workDir.
func BuildCommand(req Request, workDir string) (*Command, error) {
	tl := req.Timeline
	if tl == nil {
		return nil, fmt.Errorf("export: no timeline loaded")
	}
	if req.EndMS <= req.StartMS {
		return nil, fmt.Errorf("export: invalid range [%d, %d]", req.StartMS, req.EndMS)
	}

	rangeStart := tl.DayStart.Add(time.Duration(req.StartMS) * time.Millisecond)
	rangeEnd := tl.DayStart.Add(time.Duration(req.EndMS) * time.Millisecond)
	dayEnd := tl.DayStart.Add(time.Duration(tl.TotalDurationMS) * time.Millisecond)

	var inputs []cameraInput
	for _, cam := range req.Cameras {
		selected := clipsInRange(tl.Collections[cam], rangeStart, rangeEnd, dayEnd)
		if len(selected) == 0 {
			continue
		}
		offset := rangeStart.Sub(selected[0].StartTime).Milliseconds()
		if offset < 0 {
			offset = 0
		}
		inputs = append(inputs, cameraInput{camera: cam, clips: selected, offsetMS: offset})
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: [%dms, %dms]", ErrNoClipsInRange, req.StartMS, req.EndMS)
	}

	cmd := &Command{
		OutputPath: req.OutputPath,
		DurationMS: req.EndMS - req.StartMS,
	}

	uid := time.Now().UnixNano()
	for i := range inputs {
		listPath := filepath.Join(workDir, fmt.Sprintf("concat_%s_%d.txt", inputs[i].camera, uid))
		if err := writeConcatList(listPath, inputs[i].clips); err != nil {
			cleanupFiles(cmd.TempFiles)
			return nil, err
		}
		inputs[i].listPath = listPath
		cmd.TempFiles = append(cmd.TempFiles, listPath)
	}

	cmd.Args = append(cmd.Args, "-y", "-hide_banner")
	for _, in := range inputs {
		cmd.Args = append(cmd.Args,
			"-ss", formatSeconds(in.offsetMS),
			"-f", "concat",
			"-safe", "0",
			"-i", in.listPath,
		)
	}

	cmd.Args = append(cmd.Args,
		"-filter_complex", buildFilterGraph(len(inputs), rangeStart, req.Mobile),
		"-map", "[out]",
	)
	if idx := frontInputIndex(inputs); idx >= 0 {
		cmd.Args = append(cmd.Args, "-map", fmt.Sprintf("%d:a?", idx))
	}

	if req.Mobile {
		cmd.Args = append(cmd.Args, "-c:v", "libx264", "-preset", "veryfast", "-crf", "28")
	} else {
		cmd.Args = append(cmd.Args, "-c:v", "libx264", "-preset", "medium", "-crf", "20")
	}
	cmd.Args = append(cmd.Args,
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-t", formatSeconds(cmd.DurationMS),
		req.OutputPath,
	)

	return cmd, nil
}

// clipsInRange returns the ordered sublist of clips whose playable interval
// intersects [rangeStart, rangeEnd). A clip covers from its start until the
// next clip's start; the final clip runs to the end of the day.
func clipsInRange(col clips.ClipCollection, rangeStart, rangeEnd, dayEnd time.Time) []clips.ClipFile {
	var out []clips.ClipFile
	for i, clip := range col {
		covEnd := dayEnd
		if i+1 < len(col) {
			covEnd = col[i+1].StartTime
		}
		if clip.StartTime.Before(rangeEnd) && covEnd.After(rangeStart) {
			out = append(out, clip)
		}
	}
	return out
}

func writeConcatList(path string, list []clips.ClipFile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create concat list %s: %w", path, err)
	}
	defer f.Close()
	for _, clip := range list {
		abs, err := filepath.Abs(clip.Path)
		if err != nil {
			return fmt.Errorf("failed to resolve clip path %s: %w", clip.Path, err)
		}
		if _, err := fmt.Fprintf(f, "file '%s'\n", abs); err != nil {
			return fmt.Errorf("failed to write concat list %s: %w", path, err)
		}
	}
	return nil
}

// buildFilterGraph scales every input to one tile size, stacks the tiles into
// the grid, and stamps the composite with wall-clock time derived from the
// absolute start of the export range.
func buildFilterGraph(n int, rangeStart time.Time, mobile bool) string {
	var b strings.Builder

	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:v]scale=%d:%d,setsar=1[v%d];", i, tileWidth, tileHeight, i)
	}

	if n == 1 {
		b.WriteString("[v0]copy[grid];")
	} else {
		cols, _ := gridShape(n)
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "[v%d]", i)
		}
		layout := make([]string, n)
		for i := 0; i < n; i++ {
			layout[i] = fmt.Sprintf("%d_%d", (i%cols)*tileWidth, (i/cols)*tileHeight)
		}
		fmt.Fprintf(&b, "xstack=inputs=%d:layout=%s:fill=black[grid];", n, strings.Join(layout, "|"))
	}

	// One timestamp for the whole composite, anchored to the range start,
	// not to any individual clip.
	fmt.Fprintf(&b,
		"[grid]drawtext=text='%%{pts\\:localtime\\:%d}':fontsize=48:fontcolor=white:box=1:boxcolor=black@0.4:x=(w-text_w)/2:y=h-text_h-20",
		rangeStart.Unix())

	if mobile {
		fmt.Fprintf(&b, "[stamped];[stamped]scale=-2:%d[out]", mobileHeight)
	} else {
		b.WriteString("[out]")
	}
	return b.String()
}

// gridShape returns the column/row layout for n tiles: a single camera fills
// the frame, 2 or 4 cameras use two columns, everything else three.
func gridShape(n int) (cols, rows int) {
	switch {
	case n <= 1:
		cols = 1
	case n == 2 || n == 4:
		cols = 2
	default:
		cols = 3
	}
	rows = (n + cols - 1) / cols
	return cols, rows
}

func frontInputIndex(inputs []cameraInput) int {
	for i, in := range inputs {
		if in.camera == clips.CameraFront {
			return i
		}
	}
	return -1
}

func formatSeconds(ms int64) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000.0)
}

func cleanupFiles(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

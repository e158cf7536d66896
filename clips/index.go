package clips

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Sentinel discovery errors. Callers distinguish "nothing recorded that day"
// from "folders exist but contain nothing playable"; neither is ever treated
// as an empty-but-valid day.
var (
	ErrNoRecordings = errors.New("no recordings found for date")
	ErrNoValidFiles = errors.New("no valid video files found for date")
)

// Layout describes how a recordings root is organized on disk.
type Layout int

const (
	// LayoutDatedFolders holds one subfolder per recording session, the
	// folder name starting with the date, with the clip files inside.
	LayoutDatedFolders Layout = iota
	// LayoutFlat holds all clip files directly in the root, the date
	// embedded in the filename only.
	LayoutFlat
)

func (l Layout) String() string {
	if l == LayoutFlat {
		return "flat"
	}
	return "dated-folders"
}

// ClipFile is one recorded file for one camera.
type ClipFile struct {
	Path      string    `json:"path"`
	StartTime time.Time `json:"startTime"`
}

// ClipCollection is the full ordered day of clips for one camera. Entries are
// strictly ordered by start time with no duplicates.
type ClipCollection []ClipFile

// Event is a marker recorded alongside the clips (sentry trigger, honk, user
// save). Read-only annotation data for scrubbers and export suggestions.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	OffsetMS  int64     `json:"msInTimeline"`
}

// Timeline is one calendar day of recordings across all cameras, addressed by
// a single global offset in milliseconds since DayStart.
type Timeline struct {
	Date            string
	Layout          Layout
	DayStart        time.Time
	TotalDurationMS int64
	Collections     [NumCameras]ClipCollection
	Events          []Event
}

// clip filenames: YYYY-MM-DD_HH-MM-SS-<camera>.mp4
var clipNameRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})-([a-z_]+)\.mp4$`)

const clipTimeFormat = "2006-01-02_15-04-05"

// Cameras record in lockstep but their file timestamps can differ by a
// second or so. Clips within this window of the reference clip's start are
// treated as the same segment.
const segmentMatchTolerance = 1500 * time.Millisecond

// nominalClipDuration is used when the last clip's duration cannot be
// measured. Recorder firmware writes ~60 second files.
const nominalClipDuration = time.Minute

// DetectLayout inspects a recordings root and reports whether it uses dated
// session folders or a single flat folder of clips.
func DetectLayout(root string) (Layout, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return LayoutDatedFolders, fmt.Errorf("failed to read recordings root %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) >= 10 && dateRe.MatchString(e.Name()[:10]) {
			return LayoutDatedFolders, nil
		}
	}
	for _, e := range entries {
		if !e.IsDir() && clipNameRe.MatchString(e.Name()) {
			return LayoutFlat, nil
		}
	}
	return LayoutDatedFolders, nil
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ListDays enumerates the dates (YYYY-MM-DD) a recordings root contains, for
// either layout, sorted ascending.
func ListDays(root string) ([]string, error) {
	layout, err := DetectLayout(root)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings root %s: %w", root, err)
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		switch layout {
		case LayoutDatedFolders:
			if e.IsDir() && len(e.Name()) >= 10 && dateRe.MatchString(e.Name()[:10]) {
				seen[e.Name()[:10]] = true
			}
		case LayoutFlat:
			if m := clipNameRe.FindStringSubmatch(e.Name()); m != nil {
				seen[m[1][:10]] = true
			}
		}
	}

	days := make([]string, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Strings(days)
	return days, nil
}

// BuildIndex scans root for one calendar day of recordings and produces the
// Timeline the playback scheduler and export builder work from. It performs
// synchronous filesystem scans and an ffprobe call, so callers run it off the
// control thread.
func BuildIndex(root, date string, prober DurationProber) (*Timeline, error) {
	layout, err := DetectLayout(root)
	if err != nil {
		return nil, err
	}

	var files []string
	var eventFiles []string

	switch layout {
	case LayoutDatedFolders:
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("failed to read recordings root %s: %w", root, err)
		}
		matched := 0
		for _, e := range entries {
			if !e.IsDir() || !strings.HasPrefix(e.Name(), date) {
				continue
			}
			matched++
			folder := filepath.Join(root, e.Name())
			inner, err := os.ReadDir(folder)
			if err != nil {
				log.Printf("clips: skipping unreadable folder %s: %v", folder, err)
				continue
			}
			for _, f := range inner {
				if f.IsDir() {
					continue
				}
				if f.Name() == "event.json" {
					eventFiles = append(eventFiles, filepath.Join(folder, f.Name()))
					continue
				}
				files = append(files, filepath.Join(folder, f.Name()))
			}
		}
		if matched == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoRecordings, date)
		}
	case LayoutFlat:
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("failed to read recordings root %s: %w", root, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if e.Name() == "event.json" {
				eventFiles = append(eventFiles, filepath.Join(root, e.Name()))
				continue
			}
			if strings.HasPrefix(e.Name(), date) {
				files = append(files, filepath.Join(root, e.Name()))
			}
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoRecordings, date)
		}
	}

	tl := &Timeline{Date: date, Layout: layout}

	parsed := 0
	for _, path := range files {
		cam, start, err := ParseClipName(filepath.Base(path))
		if err != nil {
			continue
		}
		if start.Format("2006-01-02") != date {
			continue
		}
		tl.Collections[cam] = append(tl.Collections[cam], ClipFile{Path: path, StartTime: start})
		parsed++
	}
	if parsed == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoValidFiles, date)
	}

	for cam := range tl.Collections {
		tl.Collections[cam] = dedupeSorted(tl.Collections[cam])
	}

	tl.DayStart = earliestStart(tl.Collections)

	ref := tl.Reference()
	last := ref[len(ref)-1]
	lastDur := nominalClipDuration
	if prober != nil {
		if d, err := prober.Duration(last.Path); err != nil {
			log.Printf("clips: could not measure duration of %s, assuming %s: %v", last.Path, nominalClipDuration, err)
		} else {
			lastDur = d
		}
	}
	tl.TotalDurationMS = last.StartTime.Add(lastDur).Sub(tl.DayStart).Milliseconds()

	tl.Events = loadEvents(eventFiles, tl.DayStart)

	log.Printf("clips: indexed %s (%s layout): %d clips, %d events, %s total",
		date, layout, parsed, len(tl.Events), time.Duration(tl.TotalDurationMS)*time.Millisecond)
	return tl, nil
}

// ParseClipName splits a recording filename into its camera and start time.
func ParseClipName(name string) (Camera, time.Time, error) {
	m := clipNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, time.Time{}, fmt.Errorf("invalid clip filename: %s", name)
	}
	cam, ok := ParseCamera(m[2])
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unknown camera %q in filename %s", m[2], name)
	}
	start, err := time.ParseInLocation(clipTimeFormat, m[1], time.Local)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to parse timestamp in %s: %v", name, err)
	}
	return cam, start, nil
}

// dedupeSorted orders a collection by start time and drops duplicate
// timestamps, keeping the first occurrence.
func dedupeSorted(c ClipCollection) ClipCollection {
	sort.Slice(c, func(i, j int) bool { return c[i].StartTime.Before(c[j].StartTime) })
	out := c[:0]
	for i, clip := range c {
		if i > 0 && clip.StartTime.Equal(c[i-1].StartTime) {
			log.Printf("clips: dropping duplicate timestamp clip %s", clip.Path)
			continue
		}
		out = append(out, clip)
	}
	return out
}

func earliestStart(cols [NumCameras]ClipCollection) time.Time {
	var first time.Time
	for _, col := range cols {
		if len(col) == 0 {
			continue
		}
		if first.IsZero() || col[0].StartTime.Before(first) {
			first = col[0].StartTime
		}
	}
	return first
}

// eventRecord matches the on-disk event.json shape. Extra fields are ignored.
type eventRecord struct {
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason"`
}

func loadEvents(paths []string, dayStart time.Time) []Event {
	var events []Event
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			log.Printf("clips: could not read %s: %v", p, err)
			continue
		}
		var rec eventRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Printf("clips: could not parse %s: %v", p, err)
			continue
		}
		ts, err := parseEventTimestamp(rec.Timestamp)
		if err != nil {
			log.Printf("clips: bad timestamp in %s: %v", p, err)
			continue
		}
		events = append(events, Event{
			Timestamp: ts,
			Reason:    rec.Reason,
			OffsetMS:  ts.Sub(dayStart).Milliseconds(),
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events
}

func parseEventTimestamp(s string) (time.Time, error) {
	// Recorder firmware writes either full RFC 3339 or a local timestamp
	// without zone.
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.Local)
}

// ReferenceCam returns the camera whose collection drives segment resolution
// and clip-boundary gating: the front camera, or the camera with the longest
// collection when the front recorded nothing that day.
func (t *Timeline) ReferenceCam() Camera {
	if len(t.Collections[ReferenceCamera]) > 0 {
		return ReferenceCamera
	}
	best := ReferenceCamera
	for cam := range t.Collections {
		if len(t.Collections[cam]) > len(t.Collections[best]) {
			best = Camera(cam)
		}
	}
	return best
}

// Reference returns the collection segment resolution runs against.
func (t *Timeline) Reference() ClipCollection {
	return t.Collections[t.ReferenceCam()]
}

// SegmentCount is the number of segments in the reference collection.
func (t *Timeline) SegmentCount() int {
	return len(t.Reference())
}

// ClipAt returns the clip for cam that belongs to the given reference
// segment, or nil when that camera has no recording there. Matching is by
// start timestamp rather than raw index so a camera with a gap goes dark for
// the missing segment instead of playing the wrong minute.
func (t *Timeline) ClipAt(cam Camera, segment int) *ClipFile {
	ref := t.Reference()
	if segment < 0 || segment >= len(ref) {
		return nil
	}
	want := ref[segment].StartTime
	col := t.Collections[cam]

	// Collections are usually aligned one-to-one; check the same index
	// before searching.
	if segment < len(col) && within(col[segment].StartTime, want) {
		return &col[segment]
	}
	i := sort.Search(len(col), func(i int) bool {
		return !col[i].StartTime.Before(want.Add(-segmentMatchTolerance))
	})
	if i < len(col) && within(col[i].StartTime, want) {
		return &col[i]
	}
	return nil
}

func within(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= segmentMatchTolerance
}

package playback

import (
	"fmt"
	"testing"
	"time"

	"dashplay/clips"
)

// fakePlayer is a scriptable Player. Loads stay in SourceLoading until the
// test delivers the completion, unless auto is set, in which case the load
// succeeds immediately through the event channel like a real decoder.
type fakePlayer struct {
	set    SetID
	cam    clips.Camera
	events chan<- Event
	auto   bool

	state   SourceState
	path    string
	pos     int64
	playing bool
	loads   int
}

func (f *fakePlayer) Load(path string) {
	f.path = path
	f.state = SourceLoading
	f.pos = 0
	f.loads++
	if f.auto {
		f.state = SourceReady
		f.events <- Event{Kind: EventSourceLoaded, Set: f.set, Camera: f.cam}
	}
}

func (f *fakePlayer) Clear() {
	f.path = ""
	f.state = SourceEmpty
	f.pos = 0
	f.playing = false
}

func (f *fakePlayer) Play()  { f.playing = true }
func (f *fakePlayer) Pause() { f.playing = false }

func (f *fakePlayer) Stop() {
	f.playing = false
	f.pos = 0
}

func (f *fakePlayer) SetPosition(ms int64) { f.pos = ms }
func (f *fakePlayer) PositionMS() int64    { return f.pos }
func (f *fakePlayer) State() SourceState   { return f.state }
func (f *fakePlayer) SourcePath() string   { return f.path }

// harness owns a scheduler whose internals the tests drive directly on the
// test goroutine, plus handles on every fake player by set and camera.
type harness struct {
	s       *Scheduler
	players [2][clips.NumCameras]*fakePlayer
}

func newHarness(retryCap int) *harness {
	h := &harness{}
	factory := func(set SetID, cam clips.Camera, events chan<- Event) Player {
		p := &fakePlayer{set: set, cam: cam, events: events}
		h.players[set][cam] = p
		return p
	}
	h.s = NewScheduler(factory, retryCap)
	return h
}

// ready completes a pending load successfully and delivers the callback.
func (h *harness) ready(set SetID, cam clips.Camera) {
	h.players[set][cam].state = SourceReady
	h.s.handleEvent(Event{Kind: EventSourceLoaded, Set: set, Camera: cam})
}

// invalid fails a pending load and delivers the callback.
func (h *harness) invalid(set SetID, cam clips.Camera) {
	h.players[set][cam].state = SourceInvalid
	h.s.handleEvent(Event{Kind: EventSourceInvalid, Set: set, Camera: cam})
}

// endOfClip reports the given camera's clip running out.
func (h *harness) endOfClip(set SetID, cam clips.Camera) {
	h.s.handleEvent(Event{Kind: EventEndOfClip, Set: set, Camera: cam})
}

// testTimeline is four one-minute segments recorded by the front and back
// cameras; the other four cameras are absent all day.
func testTimeline() *clips.Timeline {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)
	tl := &clips.Timeline{
		Date:            "2024-03-15",
		DayStart:        base,
		TotalDurationMS: 240000,
	}
	for seg := 0; seg < 4; seg++ {
		start := base.Add(time.Duration(seg) * time.Minute)
		for _, cam := range []clips.Camera{clips.CameraFront, clips.CameraBack} {
			tl.Collections[cam] = append(tl.Collections[cam], clips.ClipFile{
				Path:      fmt.Sprintf("/rec/seg%d-%s.mp4", seg, cam),
				StartTime: start,
			})
		}
	}
	return tl
}

func TestLoadDayAwaitsAllCameras(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())

	if h.s.phase != PhaseSeekPending {
		t.Fatalf("phase = %v, want seek-pending", h.s.phase)
	}
	if h.s.pair.active != SetA {
		t.Errorf("active set = %v, want A", h.s.pair.active)
	}
	if len(h.s.pending.Awaiting) != 2 {
		t.Errorf("awaiting %d cameras, want 2", len(h.s.pending.Awaiting))
	}

	// Cameras without recordings were cleared, not loaded.
	if h.players[SetA][clips.CameraLeftPillar].state != SourceEmpty {
		t.Error("absent camera should be empty")
	}

	h.ready(SetA, clips.CameraFront)
	if h.s.phase != PhaseSeekPending {
		t.Error("phase should stay seek-pending with one camera outstanding")
	}
	h.ready(SetA, clips.CameraBack)

	if h.s.phase != PhaseSegmentLoaded {
		t.Errorf("phase = %v, want segment-loaded", h.s.phase)
	}
	if h.s.pending != nil {
		t.Error("pending seek should be cleared")
	}
	for _, cam := range []clips.Camera{clips.CameraFront, clips.CameraBack} {
		if got := h.players[SetA][cam].pos; got != 0 {
			t.Errorf("%s position = %d, want 0", cam, got)
		}
	}
}

func TestSeekWithinLoadedSegment(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	frontLoads := h.players[SetA][clips.CameraFront].loads

	// 30s into segment 0: no reload, just a position move.
	h.s.seekTo(30000)

	if h.s.phase != PhaseSegmentLoaded {
		t.Errorf("phase = %v, want segment-loaded", h.s.phase)
	}
	if got := h.players[SetA][clips.CameraFront].loads; got != frontLoads {
		t.Errorf("front loads = %d, want %d (no reload)", got, frontLoads)
	}
	if got := h.players[SetA][clips.CameraFront].pos; got != 30000 {
		t.Errorf("front position = %d, want 30000", got)
	}
}

func TestSeekResolvesSegmentAndOffset(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	// 90s lands 30s into segment 1.
	h.s.seekTo(90000)

	if got := h.s.state.ClipIndices[clips.CameraFront]; got != 1 {
		t.Errorf("segment = %d, want 1", got)
	}
	if h.s.pending == nil || h.s.pending.TargetLocalMS != 30000 {
		t.Fatalf("pending = %+v, want target 30000", h.s.pending)
	}

	h.ready(SetA, clips.CameraFront)
	if got := h.players[SetA][clips.CameraFront].pos; got != 30000 {
		t.Errorf("front position = %d, want 30000", got)
	}
}

func TestSeekSupersession(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	h.s.seekTo(90000)  // segment 1
	h.s.seekTo(150000) // segment 2, supersedes

	if h.s.pending.TargetLocalMS != 30000 {
		t.Fatalf("pending target = %d, want 30000", h.s.pending.TargetLocalMS)
	}
	if got := h.s.state.ClipIndices[clips.CameraFront]; got != 2 {
		t.Errorf("segment = %d, want 2", got)
	}

	// Completions now position at the latest target, never the stale one.
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)
	if got := h.players[SetA][clips.CameraFront].path; got != "/rec/seg2-front.mp4" {
		t.Errorf("front source = %s, want segment 2", got)
	}
	if got := h.players[SetA][clips.CameraFront].pos; got != 30000 {
		t.Errorf("front position = %d, want 30000", got)
	}
}

func TestStaleCallbackFromInactiveSetIgnored(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())

	// A load completion for the preload set must not touch the pending seek.
	h.ready(SetB, clips.CameraFront)
	if h.s.phase != PhaseSeekPending {
		t.Errorf("phase = %v, want seek-pending", h.s.phase)
	}
	if len(h.s.pending.Awaiting) != 2 {
		t.Errorf("awaiting %d cameras, want 2", len(h.s.pending.Awaiting))
	}
}

func TestPreloadIdempotent(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	if got := h.players[SetB][clips.CameraFront].path; got != "/rec/seg1-front.mp4" {
		t.Fatalf("preload front source = %s, want segment 1", got)
	}
	loads := h.players[SetB][clips.CameraFront].loads

	h.s.preloadNext()
	h.s.preloadNext()

	if got := h.players[SetB][clips.CameraFront].loads; got != loads {
		t.Errorf("preload front loads = %d, want %d (no reloads)", got, loads)
	}
}

// swap crosses into the preloaded segment with a pointer flip and position
// resets.
func TestSwapAdvancesToPreloadedSegment(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	// Preload of segment 1 finishes in the background.
	h.ready(SetB, clips.CameraFront)
	h.ready(SetB, clips.CameraBack)
	h.players[SetB][clips.CameraFront].pos = 999
	h.players[SetB][clips.CameraBack].pos = 999

	h.s.play()
	h.endOfClip(SetA, clips.CameraFront)

	if h.s.pair.active != SetB {
		t.Fatalf("active set = %v, want B", h.s.pair.active)
	}
	if got := h.s.state.ClipIndices[clips.CameraFront]; got != 1 {
		t.Errorf("segment = %d, want 1", got)
	}
	if !h.s.playing {
		t.Error("playback should resume after the swap")
	}
	for _, cam := range []clips.Camera{clips.CameraFront, clips.CameraBack} {
		if got := h.players[SetB][cam].pos; got != 0 {
			t.Errorf("%s position = %d, want 0 after swap", cam, got)
		}
	}

	// The now-inactive set must be preloading segment 2.
	if got := h.players[SetA][clips.CameraFront].path; got != "/rec/seg2-front.mp4" {
		t.Errorf("inactive front source = %s, want segment 2", got)
	}
}

func TestSwapWaitsForSlowPreload(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	// Only the front preload finished before the boundary.
	h.ready(SetB, clips.CameraFront)

	h.s.play()
	h.endOfClip(SetA, clips.CameraFront)

	if h.s.phase != PhaseSeekPending {
		t.Fatalf("phase = %v, want seek-pending", h.s.phase)
	}
	if h.s.playing {
		t.Error("playback must hold while a swapped-in camera is still loading")
	}

	h.ready(SetB, clips.CameraBack)
	if h.s.phase != PhaseSegmentLoaded {
		t.Errorf("phase = %v, want segment-loaded", h.s.phase)
	}
	if !h.s.playing {
		t.Error("playback should resume once the straggler loads")
	}
	if got := h.players[SetB][clips.CameraBack].pos; got != 0 {
		t.Errorf("back position = %d, want 0", got)
	}
}

func TestEndOfClipIgnoredFromNonReferenceCamera(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	h.endOfClip(SetA, clips.CameraBack)
	if h.s.pair.active != SetA {
		t.Error("non-reference camera must not trigger a swap")
	}

	h.endOfClip(SetB, clips.CameraFront)
	if h.s.pair.active != SetA {
		t.Error("inactive set must not trigger a swap")
	}
}

func TestInvalidFrontSkipsAhead(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	// The preloaded front clip for segment 1 is corrupt.
	h.invalid(SetB, clips.CameraFront)
	h.ready(SetB, clips.CameraBack)

	h.s.play()
	h.endOfClip(SetA, clips.CameraFront)

	// Skipped past the bad segment straight to segment 2.
	if got := h.s.state.ClipIndices[clips.CameraFront]; got != 2 {
		t.Fatalf("segment = %d, want 2", got)
	}
	if h.s.recoveries != 1 {
		t.Errorf("recoveries = %d, want 1", h.s.recoveries)
	}
	if got := h.players[SetA][clips.CameraFront].path; got != "/rec/seg2-front.mp4" {
		t.Errorf("front source = %s, want segment 2", got)
	}

	// Playback resumes once the skip target loads, and a good front clip
	// resets the recovery counter.
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)
	if !h.s.playing {
		t.Error("playback should resume after skipping the bad segment")
	}
	if h.s.recoveries != 0 {
		t.Errorf("recoveries = %d, want 0 after a good front clip", h.s.recoveries)
	}
}

func TestInvalidFrontRetryCapStopsRun(t *testing.T) {
	h := newHarness(2)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	h.invalid(SetB, clips.CameraFront)
	h.ready(SetB, clips.CameraBack)

	// Cap already consumed by earlier recoveries in this run.
	h.s.recoveries = 2

	h.s.play()
	h.endOfClip(SetA, clips.CameraFront)

	if h.s.playing {
		t.Error("playback must stop at the retry cap")
	}
	if h.s.phase != PhaseSegmentLoaded {
		t.Errorf("phase = %v, want segment-loaded", h.s.phase)
	}
	if h.s.recoveries != 2 {
		t.Errorf("recoveries = %d, want unchanged 2", h.s.recoveries)
	}
}

// Two corrupt front clips in a row: the recovery must keep advancing through
// both rather than parking on the second one, which could never report
// end-of-clip.
func TestInvalidFrontCascadesAcrossBadSegments(t *testing.T) {
	h := newHarness(3)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	// The preloaded front clip for segment 1 is corrupt.
	h.invalid(SetB, clips.CameraFront)
	h.ready(SetB, clips.CameraBack)

	h.s.play()
	h.endOfClip(SetA, clips.CameraFront)

	if got := h.s.state.ClipIndices[clips.CameraFront]; got != 2 {
		t.Fatalf("segment = %d, want 2 after first skip", got)
	}

	// Segment 2's front clip turns out to be corrupt as well.
	h.invalid(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	if got := h.s.state.ClipIndices[clips.CameraFront]; got != 3 {
		t.Fatalf("segment = %d, want 3 (next good front)", got)
	}
	if h.s.recoveries != 2 {
		t.Errorf("recoveries = %d, want 2", h.s.recoveries)
	}

	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)
	if !h.s.playing {
		t.Error("playback should resume on the next good front clip")
	}
	if h.s.recoveries != 0 {
		t.Errorf("recoveries = %d, want 0 after a good front clip", h.s.recoveries)
	}
}

func TestInvalidFrontCascadeStopsAtRetryCap(t *testing.T) {
	h := newHarness(1)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	h.invalid(SetB, clips.CameraFront)
	h.ready(SetB, clips.CameraBack)

	h.s.play()
	h.endOfClip(SetA, clips.CameraFront)

	// The skip target's front clip is corrupt too and the cap is spent.
	h.invalid(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	if h.s.playing {
		t.Error("playback must stop at the retry cap")
	}
	if h.s.resumeOnLoaded {
		t.Error("resume intent must be dropped when the run stops")
	}
	if got := h.s.state.ClipIndices[clips.CameraFront]; got != 2 {
		t.Errorf("segment = %d, want 2", got)
	}
	if h.s.recoveries != 1 {
		t.Errorf("recoveries = %d, want unchanged 1", h.s.recoveries)
	}
}

// backOnlyTimeline is a day on which the front camera recorded nothing; the
// back collection becomes the reference.
func backOnlyTimeline() *clips.Timeline {
	base := time.Date(2024, 3, 16, 9, 0, 0, 0, time.Local)
	tl := &clips.Timeline{
		Date:            "2024-03-16",
		DayStart:        base,
		TotalDurationMS: 180000,
	}
	for seg := 0; seg < 3; seg++ {
		tl.Collections[clips.CameraBack] = append(tl.Collections[clips.CameraBack], clips.ClipFile{
			Path:      fmt.Sprintf("/rec/seg%d-back.mp4", seg),
			StartTime: base.Add(time.Duration(seg) * time.Minute),
		})
	}
	return tl
}

// On a front-less day, boundary gating follows the fallback reference camera
// so playback still crosses segment boundaries.
func TestFrontlessDayGatesOnFallbackReference(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(backOnlyTimeline())

	if len(h.s.pending.Awaiting) != 1 {
		t.Fatalf("awaiting %d cameras, want 1 (back only)", len(h.s.pending.Awaiting))
	}
	h.ready(SetA, clips.CameraBack)
	if h.s.phase != PhaseSegmentLoaded {
		t.Fatalf("phase = %v, want segment-loaded", h.s.phase)
	}

	// Preload of segment 1 finishes, then the back clip runs out.
	h.ready(SetB, clips.CameraBack)
	h.s.play()
	h.endOfClip(SetA, clips.CameraBack)

	if got := h.s.state.ClipIndices[clips.CameraBack]; got != 1 {
		t.Fatalf("segment = %d, want 1 after boundary", got)
	}
	if !h.s.playing {
		t.Error("playback should continue across the boundary")
	}

	snap := h.s.snapshot()
	if snap.SegmentIndex != 1 {
		t.Errorf("SegmentIndex = %d, want 1", snap.SegmentIndex)
	}
	if snap.PositionMS != 60000 {
		t.Errorf("PositionMS = %d, want 60000", snap.PositionMS)
	}
}

func TestEndOfDayIsTerminal(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	// Jump to the final segment.
	h.s.seekTo(180000)
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	h.s.play()
	h.endOfClip(SetA, clips.CameraFront)

	if !h.s.atEnd {
		t.Fatal("expected atEnd after the last segment runs out")
	}
	if h.s.playing {
		t.Error("playback must stop at end of day")
	}

	// Play is a no-op at the end; a seek clears the terminal state.
	h.s.play()
	if h.s.playing {
		t.Error("play must be ignored while at end of day")
	}

	h.s.seekTo(0)
	if h.s.atEnd {
		t.Error("seek should clear the end-of-day state")
	}
}

func TestSeekClampsOutOfRange(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	h.s.seekTo(-5000)
	if got := h.s.state.ClipIndices[clips.CameraFront]; got != 0 {
		t.Errorf("segment after negative seek = %d, want 0", got)
	}

	h.s.seekTo(1000000)
	if got := h.s.state.ClipIndices[clips.CameraFront]; got != 3 {
		t.Errorf("segment after past-end seek = %d, want 3", got)
	}
}

func TestSnapshotPosition(t *testing.T) {
	h := newHarness(0)
	h.s.useTimeline(testTimeline())
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	h.s.seekTo(90000)
	h.ready(SetA, clips.CameraFront)
	h.ready(SetA, clips.CameraBack)

	snap := h.s.snapshot()
	if snap.SegmentIndex != 1 {
		t.Errorf("SegmentIndex = %d, want 1", snap.SegmentIndex)
	}
	if snap.SegmentStartMS != 60000 {
		t.Errorf("SegmentStartMS = %d, want 60000", snap.SegmentStartMS)
	}
	if snap.PositionMS != 90000 {
		t.Errorf("PositionMS = %d, want 90000", snap.PositionMS)
	}
	if snap.ActiveSet != "A" {
		t.Errorf("ActiveSet = %s, want A", snap.ActiveSet)
	}
}

// TestControlLoop drives the scheduler through its public API with decoders
// that complete instantly, the way the real factory behaves for local files.
func TestControlLoop(t *testing.T) {
	h := &harness{}
	factory := func(set SetID, cam clips.Camera, events chan<- Event) Player {
		p := &fakePlayer{set: set, cam: cam, events: events, auto: true}
		h.players[set][cam] = p
		return p
	}
	h.s = NewScheduler(factory, 0)
	go h.s.Run()
	defer h.s.Stop()

	h.s.UseTimeline(testTimeline())
	h.s.Seek(90000)
	h.s.Play()

	deadline := time.After(2 * time.Second)
	for {
		snap := h.s.Snapshot()
		if snap.Phase == "segment-loaded" && snap.SegmentIndex == 1 && snap.Playing {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("scheduler never settled: %+v", snap)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

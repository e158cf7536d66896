package playback

import (
	"log"

	"dashplay/clips"
)

// Phase is the scheduler's coarse state.
type Phase int

const (
	// PhaseIdle means no day is loaded.
	PhaseIdle Phase = iota
	// PhaseSegmentLoaded means the active set is fully resolved with no
	// pending seek.
	PhaseSegmentLoaded
	// PhaseSeekPending means a segment load is in flight and at least one
	// camera's source has not finished loading.
	PhaseSeekPending
)

func (p Phase) String() string {
	switch p {
	case PhaseSegmentLoaded:
		return "segment-loaded"
	case PhaseSeekPending:
		return "seek-pending"
	default:
		return "idle"
	}
}

// PlaybackState is the segment currently loaded per camera and the global
// offset at which that segment begins. Mutated only by the scheduler.
type PlaybackState struct {
	ClipIndices    [clips.NumCameras]int `json:"clipIndices"`
	SegmentStartMS int64                 `json:"segmentStartMs"`
}

// PendingSeek exists only while a segment load is in flight. It is cleared
// when every awaited camera reports, or superseded by a newer seek.
type PendingSeek struct {
	TargetLocalMS int64
	Awaiting      map[clips.Camera]struct{}
}

// Snapshot is the read-only view handed to collaborators (UI, API).
type Snapshot struct {
	Date            string                   `json:"date"`
	Phase           string                   `json:"phase"`
	Playing         bool                     `json:"playing"`
	AtEnd           bool                     `json:"atEnd"`
	SegmentIndex    int                      `json:"segmentIndex"`
	SegmentStartMS  int64                    `json:"segmentStartMs"`
	PositionMS      int64                    `json:"positionMs"`
	TotalDurationMS int64                    `json:"totalDurationMs"`
	ActiveSet       string                   `json:"activeSet"`
	Sources         [clips.NumCameras]string `json:"sources"`
}

// DefaultRetryCap bounds how many consecutive corrupt front-camera segments a
// swap will skip before giving up on the playback run.
const DefaultRetryCap = 3

// Scheduler is the playback state machine. All of its state is owned by a
// single control goroutine (Run); decoders deliver their callbacks through
// the events channel and public methods post closures through cmds, so no
// locks are needed.
type Scheduler struct {
	timeline *clips.Timeline
	pair     playerPair
	state    PlaybackState
	pending  *PendingSeek
	phase    Phase

	playing        bool
	atEnd          bool
	resumeOnLoaded bool
	recoveries     int
	retryCap       int

	onChange func(Snapshot)

	events chan Event
	cmds   chan func()
	quit   chan struct{}
}

// NewScheduler builds the scheduler and both player sets. retryCap <= 0 uses
// DefaultRetryCap.
func NewScheduler(factory PlayerFactory, retryCap int) *Scheduler {
	if retryCap <= 0 {
		retryCap = DefaultRetryCap
	}
	s := &Scheduler{
		retryCap: retryCap,
		events:   make(chan Event, 64),
		cmds:     make(chan func(), 16),
		quit:     make(chan struct{}),
	}
	s.pair = newPlayerPair(factory, s.events)
	return s
}

// Run consumes decoder events and posted commands until Stop is called. It is
// the only goroutine that touches scheduler state.
func (s *Scheduler) Run() {
	log.Printf("playback: scheduler started (retry cap %d)", s.retryCap)
	for {
		select {
		case ev := <-s.events:
			s.handleEvent(ev)
		case fn := <-s.cmds:
			fn()
		case <-s.quit:
			log.Printf("playback: scheduler stopped")
			return
		}
	}
}

// Stop terminates the control loop.
func (s *Scheduler) Stop() {
	close(s.quit)
}

// SetOnChange registers the collaborator notification callback. It is invoked
// from the control goroutine after every state change.
func (s *Scheduler) SetOnChange(fn func(Snapshot)) {
	s.post(func() { s.onChange = fn })
}

// UseTimeline replaces the loaded day and seeks to its start. The caller
// builds the timeline off the control thread (clips.BuildIndex blocks on the
// filesystem); only the hand-off happens here.
func (s *Scheduler) UseTimeline(tl *clips.Timeline) {
	s.post(func() { s.useTimeline(tl) })
}

// Seek requests playback at a global timeline offset.
func (s *Scheduler) Seek(globalMS int64) {
	s.post(func() { s.seekTo(globalMS) })
}

// Play resumes playback of the active set.
func (s *Scheduler) Play() {
	s.post(func() { s.play() })
}

// Pause halts playback without touching loaded sources.
func (s *Scheduler) Pause() {
	s.post(func() { s.pause() })
}

// Snapshot returns the current playback view. Blocks until the control loop
// services the request.
func (s *Scheduler) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	s.post(func() { reply <- s.snapshot() })
	return <-reply
}

func (s *Scheduler) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.quit:
	}
}

// ---- control-thread internals ----

func (s *Scheduler) useTimeline(tl *clips.Timeline) {
	s.timeline = tl
	s.playing = false
	s.atEnd = false
	s.resumeOnLoaded = false
	s.recoveries = 0
	s.pending = nil
	s.phase = PhaseIdle
	s.state = PlaybackState{}
	if tl == nil {
		for _, set := range s.pair.sets {
			set.Stop()
			for _, p := range set.Players {
				p.Clear()
			}
		}
		s.notify()
		return
	}
	log.Printf("playback: day %s loaded, %d segments, %dms total", tl.Date, tl.SegmentCount(), tl.TotalDurationMS)
	s.seekTo(0)
}

func (s *Scheduler) seekTo(globalMS int64) {
	if s.timeline == nil {
		return
	}
	wasPlaying := s.playing
	if wasPlaying {
		s.playing = false
		s.pair.Active().Pause()
	}

	// Out-of-range targets are clamped, never rejected.
	globalMS = s.timeline.ClampOffset(globalMS)

	segment, localMS, ok := s.timeline.Resolve(globalMS)
	if !ok {
		segment, localMS = 0, 0
	}
	s.atEnd = false
	s.resumeOnLoaded = wasPlaying

	if s.phase == PhaseSegmentLoaded && segment == s.state.ClipIndices[s.refCam()] {
		// Same segment already loaded: position the players directly.
		for _, p := range s.pair.Active().Players {
			if p.State() == SourceReady {
				p.SetPosition(localMS)
			}
		}
		if wasPlaying {
			s.playing = true
			s.resumeOnLoaded = false
			s.pair.Active().Play()
		}
		s.notify()
		return
	}
	s.loadSegment(segment, localMS)
}

// loadSegment points the active set at the clips of one segment and records a
// PendingSeek for the cameras that have to finish loading.
func (s *Scheduler) loadSegment(segment int, localMS int64) {
	// Canonical choice after any seek: A is active. Simplifies reasoning
	// about which set a stale callback belongs to.
	s.pair.active = SetA
	s.pair.Inactive().Stop()

	active := s.pair.Active()
	pending := &PendingSeek{
		TargetLocalMS: localMS,
		Awaiting:      make(map[clips.Camera]struct{}),
	}

	for cam := 0; cam < clips.NumCameras; cam++ {
		p := active.Players[cam]
		clip := s.timeline.ClipAt(clips.Camera(cam), segment)
		if clip == nil {
			// No recording for this camera here; it shows nothing, which
			// is not an error.
			p.Clear()
			continue
		}
		if p.SourcePath() == clip.Path && p.State() == SourceReady {
			p.SetPosition(localMS)
			continue
		}
		p.Load(clip.Path)
		pending.Awaiting[clips.Camera(cam)] = struct{}{}
	}

	s.applySegment(segment)

	if len(pending.Awaiting) == 0 {
		s.pending = nil
		s.phase = PhaseSegmentLoaded
		s.maybeResume()
	} else {
		s.pending = pending
		s.phase = PhaseSeekPending
	}

	s.preloadNext()
	s.notify()
}

// refCam is the camera whose end-of-clip drives boundary crossings. Usually
// the front camera; on a day where the front recorded nothing the timeline
// falls back to its longest collection and gating follows it.
func (s *Scheduler) refCam() clips.Camera {
	if s.timeline == nil {
		return clips.ReferenceCamera
	}
	return s.timeline.ReferenceCam()
}

func (s *Scheduler) applySegment(segment int) {
	for cam := range s.state.ClipIndices {
		s.state.ClipIndices[cam] = segment
	}
	ref := s.timeline.Reference()
	s.state.SegmentStartMS = ref[segment].StartTime.Sub(s.timeline.DayStart).Milliseconds()
}

func (s *Scheduler) handleEvent(ev Event) {
	switch ev.Kind {
	case EventSourceLoaded:
		s.onSourceLoaded(ev)
	case EventSourceInvalid:
		s.onSourceInvalid(ev)
	case EventEndOfClip:
		s.onEndOfClip(ev)
	case EventPositionChanged:
		s.notify()
	}
}

func (s *Scheduler) onSourceLoaded(ev Event) {
	if ev.Set != s.pair.active || s.pending == nil {
		return
	}
	if _, awaited := s.pending.Awaiting[ev.Camera]; !awaited {
		// Stale completion from a superseded seek.
		return
	}
	s.pair.Active().Players[ev.Camera].SetPosition(s.pending.TargetLocalMS)
	delete(s.pending.Awaiting, ev.Camera)
	if len(s.pending.Awaiting) == 0 {
		s.finishPending()
	}
}

func (s *Scheduler) onSourceInvalid(ev Event) {
	if ev.Set != s.pair.active {
		return
	}
	log.Printf("playback: %s camera source invalid for segment %d, showing nothing",
		ev.Camera, s.state.ClipIndices[ev.Camera])
	if s.pending == nil {
		return
	}
	if _, awaited := s.pending.Awaiting[ev.Camera]; !awaited {
		return
	}
	// Degrades gracefully: no position set, camera stays dark, the other
	// five keep going.
	delete(s.pending.Awaiting, ev.Camera)
	if len(s.pending.Awaiting) == 0 {
		s.finishPending()
	}
}

func (s *Scheduler) finishPending() {
	s.pending = nil
	s.phase = PhaseSegmentLoaded

	ref := s.refCam()
	front := s.pair.Active().Players[ref]
	segment := s.state.ClipIndices[ref]
	switch {
	case front.State() == SourceReady:
		s.recoveries = 0
	case front.State() == SourceInvalid && s.timeline.ClipAt(ref, segment) != nil:
		// The reference clip here is corrupt too. A segment whose reference
		// camera cannot play never reports end-of-clip, so keep advancing
		// under the same bounded counter instead of parking on it.
		if s.recoveries >= s.retryCap {
			log.Printf("playback: %s camera invalid at segment %d, retry cap %d reached, stopping", ref, segment, s.retryCap)
			s.playing = false
			s.resumeOnLoaded = false
			s.notify()
			return
		}
		s.recoveries++
		log.Printf("playback: %s camera invalid at segment %d, advancing (recovery %d/%d)", ref, segment, s.recoveries, s.retryCap)
		if segment+1 >= s.timeline.SegmentCount() {
			s.endOfDay()
			return
		}
		s.loadSegment(segment+1, 0)
		return
	}
	s.maybeResume()
	s.notify()
}

func (s *Scheduler) maybeResume() {
	if !s.resumeOnLoaded {
		return
	}
	s.resumeOnLoaded = false
	s.playing = true
	s.pair.Active().Play()
}

func (s *Scheduler) onEndOfClip(ev Event) {
	// Only the reference camera of the driving set crosses boundaries; the
	// other cameras just run out and wait for the swap.
	if s.timeline == nil || ev.Camera != s.refCam() || ev.Set != s.pair.active {
		return
	}
	s.swapSets()
}

// swapSets crosses a clip boundary by flipping which set is active. The
// inactive set was preloaded with the next segment, so the transition is a
// pointer flip plus position resets.
func (s *Scheduler) swapSets() {
	s.pending = nil
	wasPlaying := s.playing
	s.playing = false

	s.pair.Active().Stop()
	s.pair.Swap()

	refCam := s.refCam()
	ref := s.timeline.Reference()
	next := s.state.ClipIndices[refCam] + 1
	if next >= len(ref) {
		s.endOfDay()
		return
	}

	s.applySegment(next)
	active := s.pair.Active()
	loading := make(map[clips.Camera]struct{})
	for cam, p := range active.Players {
		switch p.State() {
		case SourceReady:
			p.SetPosition(0)
		case SourceLoading:
			loading[clips.Camera(cam)] = struct{}{}
		}
	}

	front := active.Players[refCam]
	if s.timeline.ClipAt(refCam, next) != nil && front.State() == SourceInvalid {
		// Corrupt reference clip: skip forward instead of stalling the run,
		// bounded so consecutive bad segments cannot cascade forever.
		if s.recoveries >= s.retryCap {
			log.Printf("playback: %s camera invalid at segment %d, retry cap %d reached, stopping", refCam, next, s.retryCap)
			s.phase = PhaseSegmentLoaded
			s.notify()
			return
		}
		s.recoveries++
		log.Printf("playback: %s camera invalid at segment %d, advancing (recovery %d/%d)", refCam, next, s.recoveries, s.retryCap)
		if next+1 >= len(ref) {
			s.endOfDay()
			return
		}
		s.resumeOnLoaded = wasPlaying
		s.loadSegment(next+1, 0)
		return
	}
	s.recoveries = 0

	if len(loading) > 0 {
		// Preload had not finished for every camera; wait for the
		// stragglers at position 0 before resuming.
		s.pending = &PendingSeek{TargetLocalMS: 0, Awaiting: loading}
		s.phase = PhaseSeekPending
		s.resumeOnLoaded = wasPlaying
	} else {
		s.phase = PhaseSegmentLoaded
		if wasPlaying {
			s.playing = true
			active.Play()
		}
	}

	s.preloadNext()
	s.notify()
}

// endOfDay is the terminal state for a playback run, not an error.
func (s *Scheduler) endOfDay() {
	log.Printf("playback: end of day %s reached", s.timeline.Date)
	s.atEnd = true
	s.playing = false
	s.phase = PhaseSegmentLoaded
	s.pair.Active().Stop()
	s.notify()
}

// preloadNext fills the inactive set with the segment after the current one.
// Idempotent: sources are compared by filename so repeated calls with no
// segment change issue no reloads. Never touches the active set.
func (s *Scheduler) preloadNext() {
	if s.timeline == nil {
		return
	}
	next := s.state.ClipIndices[s.refCam()] + 1
	if next >= s.timeline.SegmentCount() {
		return
	}
	inactive := s.pair.Inactive()
	for cam := 0; cam < clips.NumCameras; cam++ {
		p := inactive.Players[cam]
		expected := s.timeline.ClipAt(clips.Camera(cam), next)
		if expected == nil {
			if p.SourcePath() != "" {
				p.Clear()
			}
			continue
		}
		if p.SourcePath() != expected.Path {
			p.Load(expected.Path)
		}
	}
}

func (s *Scheduler) play() {
	if s.timeline == nil || s.atEnd {
		return
	}
	if s.phase == PhaseSeekPending {
		s.resumeOnLoaded = true
		return
	}
	s.playing = true
	s.pair.Active().Play()
	s.notify()
}

func (s *Scheduler) pause() {
	if s.timeline == nil {
		return
	}
	s.playing = false
	s.resumeOnLoaded = false
	s.pair.Active().Pause()
	s.notify()
}

func (s *Scheduler) snapshot() Snapshot {
	snap := Snapshot{
		Phase:     s.phase.String(),
		Playing:   s.playing,
		AtEnd:     s.atEnd,
		ActiveSet: s.pair.active.String(),
	}
	if s.timeline == nil {
		return snap
	}
	snap.Date = s.timeline.Date
	snap.TotalDurationMS = s.timeline.TotalDurationMS
	snap.SegmentIndex = s.state.ClipIndices[s.refCam()]
	snap.SegmentStartMS = s.state.SegmentStartMS

	active := s.pair.Active()
	for cam, p := range active.Players {
		snap.Sources[cam] = p.State().String()
	}
	front := active.Players[s.refCam()]
	if front.State() == SourceReady {
		snap.PositionMS = s.state.SegmentStartMS + front.PositionMS()
	} else {
		snap.PositionMS = s.state.SegmentStartMS
	}
	return snap
}

func (s *Scheduler) notify() {
	if s.onChange != nil {
		s.onChange(s.snapshot())
	}
}

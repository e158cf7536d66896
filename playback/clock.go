package playback

import (
	"log"
	"sync"
	"time"

	"dashplay/clips"
)

// ClockPlayer is the default decoder: it opens a clip by probing its duration
// with ffprobe and then advances a wall-clock position while "playing",
// firing end-of-clip when the measured duration runs out. A rendering layer
// consumes positions from it; the scheduler only needs the timing contract.
//
// Loads resolve asynchronously on their own goroutine and report back through
// the shared events channel, like any decoder. A load or clear started later
// supersedes an in-flight probe (generation counter), mirroring seek
// supersession at the player level.
type ClockPlayer struct {
	set    SetID
	cam    clips.Camera
	events chan<- Event
	prober clips.DurationProber

	mu        sync.Mutex
	gen       int
	path      string
	state     SourceState
	durMS     int64
	posMS     int64
	playing   bool
	startedAt time.Time
	endTimer  *time.Timer
}

// NewClockPlayerFactory returns a PlayerFactory producing ClockPlayers that
// share one duration prober (and therefore one probe cache).
func NewClockPlayerFactory(prober clips.DurationProber) PlayerFactory {
	return func(set SetID, cam clips.Camera, events chan<- Event) Player {
		return &ClockPlayer{set: set, cam: cam, events: events, prober: prober}
	}
}

func (p *ClockPlayer) Load(path string) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.stopEndTimerLocked()
	p.path = path
	p.state = SourceLoading
	p.posMS = 0
	p.playing = false
	p.mu.Unlock()

	go func() {
		dur, err := p.prober.Duration(path)

		p.mu.Lock()
		if p.gen != gen {
			// Superseded by a newer load or clear.
			p.mu.Unlock()
			return
		}
		var ev Event
		if err != nil {
			log.Printf("playback: [%s/%s] failed to open %s: %v", p.set, p.cam, path, err)
			p.state = SourceInvalid
			ev = Event{Kind: EventSourceInvalid, Set: p.set, Camera: p.cam}
		} else {
			p.durMS = dur.Milliseconds()
			p.state = SourceReady
			ev = Event{Kind: EventSourceLoaded, Set: p.set, Camera: p.cam}
		}
		p.mu.Unlock()

		// Send outside the lock: the control loop may call back into the
		// player while handling the event.
		p.events <- ev
	}()
}

func (p *ClockPlayer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.stopEndTimerLocked()
	p.path = ""
	p.state = SourceEmpty
	p.durMS = 0
	p.posMS = 0
	p.playing = false
}

func (p *ClockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != SourceReady || p.playing {
		return
	}
	if p.posMS >= p.durMS {
		return
	}
	p.playing = true
	p.startedAt = time.Now()
	p.armEndTimerLocked()
}

func (p *ClockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freezeLocked()
}

func (p *ClockPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freezeLocked()
	p.posMS = 0
}

func (p *ClockPlayer) SetPosition(ms int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ms < 0 {
		ms = 0
	}
	if p.state == SourceReady && ms > p.durMS {
		ms = p.durMS
	}
	p.posMS = ms
	if p.playing {
		p.startedAt = time.Now()
		p.armEndTimerLocked()
	}
}

func (p *ClockPlayer) PositionMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPosLocked()
}

func (p *ClockPlayer) State() SourceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ClockPlayer) SourcePath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// freezeLocked folds the running clock into posMS and stops advancement.
func (p *ClockPlayer) freezeLocked() {
	if p.playing {
		p.posMS = p.currentPosLocked()
		p.playing = false
	}
	p.stopEndTimerLocked()
}

func (p *ClockPlayer) currentPosLocked() int64 {
	if !p.playing {
		return p.posMS
	}
	pos := p.posMS + time.Since(p.startedAt).Milliseconds()
	if pos > p.durMS {
		pos = p.durMS
	}
	return pos
}

func (p *ClockPlayer) armEndTimerLocked() {
	p.stopEndTimerLocked()
	remaining := time.Duration(p.durMS-p.posMS) * time.Millisecond
	gen := p.gen
	p.endTimer = time.AfterFunc(remaining, func() { p.onClipEnd(gen) })
}

func (p *ClockPlayer) stopEndTimerLocked() {
	if p.endTimer != nil {
		p.endTimer.Stop()
		p.endTimer = nil
	}
}

func (p *ClockPlayer) onClipEnd(gen int) {
	p.mu.Lock()
	if p.gen != gen || !p.playing {
		p.mu.Unlock()
		return
	}
	p.posMS = p.durMS
	p.playing = false
	ev := Event{Kind: EventEndOfClip, Set: p.set, Camera: p.cam, PositionMS: p.posMS}
	p.mu.Unlock()

	p.events <- ev
}

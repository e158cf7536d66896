package playback

import "dashplay/clips"

// SetID names one of the two player sets.
type SetID int

const (
	SetA SetID = iota
	SetB
)

func (id SetID) String() string {
	if id == SetB {
		return "B"
	}
	return "A"
}

// PlayerSet bundles one decodable source per camera. One set is active
// (driving the visible grid) while the other preloads the next segment.
type PlayerSet struct {
	ID      SetID
	Players [clips.NumCameras]Player
}

// Stop stops every player in the set.
func (s *PlayerSet) Stop() {
	for _, p := range s.Players {
		p.Stop()
	}
}

// Play starts every player that has a ready source.
func (s *PlayerSet) Play() {
	for _, p := range s.Players {
		if p.State() == SourceReady {
			p.Play()
		}
	}
}

// Pause pauses every player in the set.
func (s *PlayerSet) Pause() {
	for _, p := range s.Players {
		p.Pause()
	}
}

// playerPair owns the two sets and the single active flag. Which set is
// active is the only mutable piece; active/inactive lookups are pure
// functions of it.
type playerPair struct {
	sets   [2]*PlayerSet
	active SetID
}

func newPlayerPair(factory PlayerFactory, events chan<- Event) playerPair {
	pair := playerPair{active: SetA}
	for _, id := range []SetID{SetA, SetB} {
		set := &PlayerSet{ID: id}
		for cam := 0; cam < clips.NumCameras; cam++ {
			set.Players[cam] = factory(id, clips.Camera(cam), events)
		}
		pair.sets[id] = set
	}
	return pair
}

func (p *playerPair) Active() *PlayerSet {
	return p.sets[p.active]
}

func (p *playerPair) Inactive() *PlayerSet {
	return p.sets[1-p.active]
}

func (p *playerPair) Swap() {
	p.active = 1 - p.active
}

package playback

import "dashplay/clips"

// SourceState tracks one player's decodable source.
type SourceState int

const (
	SourceEmpty SourceState = iota
	SourceLoading
	SourceReady
	SourceInvalid
)

func (s SourceState) String() string {
	switch s {
	case SourceLoading:
		return "loading"
	case SourceReady:
		return "ready"
	case SourceInvalid:
		return "invalid"
	default:
		return "empty"
	}
}

// Player is one decodable media source for one camera. Load is asynchronous;
// completion or failure arrives on the scheduler's event channel. The
// scheduler never blocks on a player call.
type Player interface {
	// Load replaces the source with the file at path and begins opening
	// it. A load started later supersedes one still in flight.
	Load(path string)
	// Clear drops the source entirely (state Empty).
	Clear()
	Play()
	Pause()
	// Stop pauses and rewinds without dropping the source.
	Stop()
	// SetPosition moves the local playback position, in milliseconds.
	SetPosition(ms int64)
	PositionMS() int64
	State() SourceState
	// SourcePath is the path of the currently assigned source, or "".
	SourcePath() string
}

// EventKind enumerates decoder callbacks. All of them are delivered to the
// scheduler's control goroutine; players must never mutate scheduler state
// directly.
type EventKind int

const (
	EventSourceLoaded EventKind = iota
	EventSourceInvalid
	EventEndOfClip
	EventPositionChanged
)

func (k EventKind) String() string {
	switch k {
	case EventSourceLoaded:
		return "source-loaded"
	case EventSourceInvalid:
		return "source-invalid"
	case EventEndOfClip:
		return "end-of-clip"
	default:
		return "position-changed"
	}
}

// Event is a decoder callback routed through the control loop.
type Event struct {
	Kind       EventKind
	Set        SetID
	Camera     clips.Camera
	PositionMS int64
}

// PlayerFactory builds the decoder for one camera slot of one set. The core
// never branches on decoder internals; capability probing and hardware
// selection live behind this function.
type PlayerFactory func(set SetID, cam clips.Camera, events chan<- Event) Player

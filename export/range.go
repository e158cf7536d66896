package export

// Range holds the user's export markers. Both ends are optional until set;
// once both exist, start < end always holds: marking one side past the other
// shifts the other marker instead of rejecting the call.
type Range struct {
	startMS *int64
	endMS   *int64
}

// minSpanMS is the smallest range the markers may describe.
const minSpanMS = 1000

// MarkStart places the start marker at ms (clamped to [0, totalMS]).
func (r *Range) MarkStart(ms, totalMS int64) {
	ms = clamp(ms, 0, totalMS)
	r.startMS = &ms
	if r.endMS != nil && *r.endMS <= ms {
		end := ms + minSpanMS
		if end > totalMS {
			end = totalMS
			start := end - minSpanMS
			if start < 0 {
				start = 0
			}
			r.startMS = &start
		}
		r.endMS = &end
	}
}

// MarkEnd places the end marker at ms (clamped to [0, totalMS]).
func (r *Range) MarkEnd(ms, totalMS int64) {
	ms = clamp(ms, 0, totalMS)
	r.endMS = &ms
	if r.startMS != nil && *r.startMS >= ms {
		start := ms - minSpanMS
		if start < 0 {
			start = 0
			end := start + minSpanMS
			if end > totalMS {
				end = totalMS
			}
			r.endMS = &end
		}
		r.startMS = &start
	}
}

// Reset clears both markers.
func (r *Range) Reset() {
	r.startMS = nil
	r.endMS = nil
}

// Bounds reports the marked range; ok is false until both markers are set.
func (r *Range) Bounds() (startMS, endMS int64, ok bool) {
	if r.startMS == nil || r.endMS == nil {
		return 0, 0, false
	}
	return *r.startMS, *r.endMS, true
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package clips

import "sort"

// Resolve maps a global timeline offset (milliseconds since dayStart) to a
// position in the reference collection: the segment holding that instant and
// the local offset within it.
//
// The segment is the last clip whose start is at or before the target time.
// ok is false when the target falls before the first clip, in which case
// callers clamp to segment 0 at offset 0. The local offset is computed
// arithmetically and may exceed the clip's own duration when globalMS runs
// past the recorded data; detecting overrun is the caller's job.
func Resolve(ref ClipCollection, dayStart int64, globalMS int64) (segment int, localMS int64, ok bool) {
	if len(ref) == 0 {
		return 0, 0, false
	}
	target := dayStart + globalMS

	// First index whose start is strictly after the target, minus one.
	i := sort.Search(len(ref), func(i int) bool {
		return ref[i].StartTime.UnixMilli() > target
	})
	if i == 0 {
		return 0, 0, false
	}
	segment = i - 1
	localMS = target - ref[segment].StartTime.UnixMilli()
	return segment, localMS, true
}

// Resolve maps a global offset against the timeline's reference collection.
func (t *Timeline) Resolve(globalMS int64) (segment int, localMS int64, ok bool) {
	return Resolve(t.Reference(), t.DayStart.UnixMilli(), globalMS)
}

// ClampOffset restricts a global offset to the timeline's valid range.
func (t *Timeline) ClampOffset(globalMS int64) int64 {
	if globalMS < 0 {
		return 0
	}
	if globalMS > t.TotalDurationMS {
		return t.TotalDurationMS
	}
	return globalMS
}

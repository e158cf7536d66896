package export

import "testing"

const testTotalMS = 180000

func bounds(t *testing.T, r *Range) (int64, int64) {
	t.Helper()
	start, end, ok := r.Bounds()
	if !ok {
		t.Fatal("expected both markers set")
	}
	return start, end
}

func TestRangeUnsetUntilBothMarked(t *testing.T) {
	var r Range
	if _, _, ok := r.Bounds(); ok {
		t.Error("empty range must report unset")
	}

	r.MarkStart(5000, testTotalMS)
	if _, _, ok := r.Bounds(); ok {
		t.Error("start alone must report unset")
	}

	r.MarkEnd(10000, testTotalMS)
	start, end := bounds(t, &r)
	if start != 5000 || end != 10000 {
		t.Errorf("bounds = [%d, %d], want [5000, 10000]", start, end)
	}
}

func TestMarkStartPushesEndForward(t *testing.T) {
	var r Range
	r.MarkStart(5000, testTotalMS)
	r.MarkEnd(10000, testTotalMS)

	// Marking the start past the end shifts the end to keep start < end.
	r.MarkStart(50000, testTotalMS)
	start, end := bounds(t, &r)
	if start != 50000 {
		t.Errorf("start = %d, want 50000", start)
	}
	if end <= start {
		t.Errorf("end = %d, must be after start %d", end, start)
	}
}

func TestMarkEndPullsStartBack(t *testing.T) {
	var r Range
	r.MarkStart(60000, testTotalMS)
	r.MarkEnd(90000, testTotalMS)

	r.MarkEnd(30000, testTotalMS)
	start, end := bounds(t, &r)
	if end != 30000 {
		t.Errorf("end = %d, want 30000", end)
	}
	if start >= end {
		t.Errorf("start = %d, must be before end %d", start, end)
	}
}

func TestMarkersClampToTimeline(t *testing.T) {
	var r Range
	r.MarkStart(-500, testTotalMS)
	r.MarkEnd(testTotalMS+5000, testTotalMS)

	start, end := bounds(t, &r)
	if start != 0 {
		t.Errorf("start = %d, want 0", start)
	}
	if end != testTotalMS {
		t.Errorf("end = %d, want %d", end, testTotalMS)
	}
}

func TestMarkStartAtTimelineEnd(t *testing.T) {
	var r Range
	r.MarkStart(1000, testTotalMS)
	r.MarkEnd(2000, testTotalMS)

	// Start at the very end of the day: both markers squeeze against the
	// limit but stay ordered.
	r.MarkStart(testTotalMS, testTotalMS)
	start, end := bounds(t, &r)
	if start >= end {
		t.Errorf("bounds = [%d, %d], start must stay before end", start, end)
	}
	if end > testTotalMS {
		t.Errorf("end = %d exceeds timeline", end)
	}
}

func TestMarkEndAtTimelineStart(t *testing.T) {
	var r Range
	r.MarkStart(1000, testTotalMS)
	r.MarkEnd(2000, testTotalMS)

	r.MarkEnd(0, testTotalMS)
	start, end := bounds(t, &r)
	if start >= end {
		t.Errorf("bounds = [%d, %d], start must stay before end", start, end)
	}
	if start < 0 {
		t.Errorf("start = %d, negative", start)
	}
}

func TestRangeReset(t *testing.T) {
	var r Range
	r.MarkStart(5000, testTotalMS)
	r.MarkEnd(10000, testTotalMS)
	r.Reset()
	if _, _, ok := r.Bounds(); ok {
		t.Error("reset range must report unset")
	}
}

func TestRangeOrderInvariant(t *testing.T) {
	var r Range
	// Arbitrary marking sequence; after every step where both ends exist,
	// start < end must hold.
	steps := []struct {
		start bool
		ms    int64
	}{
		{true, 10000}, {false, 5000}, {true, 170000}, {false, 180000},
		{true, 180000}, {false, 0}, {true, 0}, {false, 500},
	}
	for i, step := range steps {
		if step.start {
			r.MarkStart(step.ms, testTotalMS)
		} else {
			r.MarkEnd(step.ms, testTotalMS)
		}
		start, end, ok := r.Bounds()
		if !ok {
			continue
		}
		if start >= end {
			t.Fatalf("step %d: bounds = [%d, %d], invariant broken", i, start, end)
		}
	}
}

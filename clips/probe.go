package clips

import (
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// DurationProber measures the playable duration of a video file.
// The playback and index code only ever sees this interface so tests can
// substitute a fake instead of shelling out.
type DurationProber interface {
	Duration(path string) (time.Duration, error)
}

// FFprobeProber queries durations with ffprobe and caches results per path,
// so repeated loads of the same clip never block on a subprocess twice.
type FFprobeProber struct {
	mu    sync.Mutex
	cache map[string]time.Duration
}

// NewFFprobeProber creates a prober with an empty cache.
func NewFFprobeProber() *FFprobeProber {
	return &FFprobeProber{cache: make(map[string]time.Duration)}
}

// Duration returns the container duration of the file at path.
func (p *FFprobeProber) Duration(path string) (time.Duration, error) {
	p.mu.Lock()
	if d, ok := p.cache[path]; ok {
		p.mu.Unlock()
		return d, nil
	}
	p.mu.Unlock()

	cmd := exec.Command(
		"ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %v, output: %s", path, err, string(out))
	}

	var seconds float64
	if _, err := fmt.Sscanf(string(out), "%f", &seconds); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe duration for %s: %v", path, err)
	}

	d := time.Duration(seconds * float64(time.Second))
	p.mu.Lock()
	p.cache[path] = d
	p.mu.Unlock()
	return d, nil
}

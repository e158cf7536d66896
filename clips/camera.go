package clips

import "fmt"

// Camera identifies one of the six fixed dashcam positions. The integer
// values are stable for the process lifetime and used as array indices
// throughout the playback and export code.
type Camera int

const (
	CameraFront Camera = iota
	CameraBack
	CameraLeftRepeater
	CameraRightRepeater
	CameraLeftPillar
	CameraRightPillar

	// NumCameras is the fixed camera count.
	NumCameras = 6
)

// ReferenceCamera drives segment resolution and end-of-clip gating.
const ReferenceCamera = CameraFront

var cameraNames = [NumCameras]string{
	"front",
	"back",
	"left_repeater",
	"right_repeater",
	"left_pillar",
	"right_pillar",
}

// String returns the camera suffix as it appears in recording filenames.
func (c Camera) String() string {
	if c < 0 || c >= NumCameras {
		return fmt.Sprintf("camera_%d", int(c))
	}
	return cameraNames[c]
}

// ParseCamera maps a filename suffix (e.g. "left_repeater") to its Camera.
func ParseCamera(name string) (Camera, bool) {
	for i, n := range cameraNames {
		if n == name {
			return Camera(i), true
		}
	}
	return 0, false
}

// AllCameras returns the cameras in index order.
func AllCameras() []Camera {
	cams := make([]Camera, NumCameras)
	for i := range cams {
		cams[i] = Camera(i)
	}
	return cams
}

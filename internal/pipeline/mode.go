package pipeline

import "fmt"

// Mode selects what the pipeline does with each detected face.
type Mode int

const (
	// ModeAttendance recognizes faces and marks attendance.
	ModeAttendance Mode = iota
	// ModeEnrollment only outlines detected faces.
	ModeEnrollment
)

func (m Mode) String() string {
	switch m {
	case ModeAttendance:
		return "attendance"
	case ModeEnrollment:
		return "enrollment"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a video feed mode name to a Mode. The register and edit
// screens both use the detection-only view.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "attendance":
		return ModeAttendance, nil
	case "register", "edit", "enroll", "enrollment":
		return ModeEnrollment, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Package alerts polls the textual alert-state file written by the
// inference process and fans out notification events.
package alerts

// Severity classifies an alert definition.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Definition describes one alert slot in the producer's state vector.
// The table is fixed at construction and never mutated at runtime.
type Definition struct {
	ID       string
	Severity Severity
	Category string
	Message  string
}

// DefaultDefinitions returns the alert taxonomy, index-aligned with the
// producer's 5-slot state vector. Callers get a fresh copy.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:       "cheating_phone_detected",
			Severity: SeverityCritical,
			Category: "phone_detected",
			Message:  "Phone detected in the camera frame",
		},
		{
			ID:       "no_face",
			Severity: SeverityWarning,
			Category: "no_face",
			Message:  "No face visible in the camera frame",
		},
		{
			ID:       "multiple_faces",
			Severity: SeverityWarning,
			Category: "multiple_faces",
			Message:  "More than one face visible in the camera frame",
		},
		{
			ID:       "face_mismatch",
			Severity: SeverityWarning,
			Category: "face_verification",
			Message:  "Face does not match the registered participant",
		},
		{
			ID:       "eye_movement",
			Severity: SeverityWarning,
			Category: "eye_movement",
			Message:  "Suspicious eye movement detected",
		},
	}
}

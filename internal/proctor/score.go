package proctor

// DefaultAwayThreshold is the away time in seconds above which a heartbeat
// scores an extra point.
const DefaultAwayThreshold = 5

// Signals is the raw telemetry reported by the client with one heartbeat.
// Missing fields decode to their zero values and are scored as such; the
// engine never rejects a heartbeat over malformed telemetry.
type Signals struct {
	Faces         int     `json:"faces"`
	FacePresent   bool    `json:"face_present"`
	MultipleFaces bool    `json:"multiple_faces"`
	TabHidden     bool    `json:"tab_hidden"`
	AwaySeconds   float64 `json:"away_seconds"`
}

// Score computes the suspicion delta for one heartbeat. Contributions are
// additive: face absent +1, multiple faces +2, tab hidden +1, away time over
// the threshold +1. The result is always in [0, 5].
func Score(sig Signals, awayThreshold float64) int {
	delta := 0
	if !sig.FacePresent {
		delta++
	}
	if sig.MultipleFaces {
		delta += 2
	}
	if sig.TabHidden {
		delta++
	}
	if sig.AwaySeconds > awayThreshold {
		delta++
	}
	return delta
}

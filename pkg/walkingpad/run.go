package walkingpad

import "time"

// RunRecord is a finished run as it gets persisted off the pad
type RunRecord struct {
	Start          time.Time     `json:"start_time"`
	Duration       time.Duration `json:"duration"`
	DistanceMeters uint32        `json:"distance"`
	Steps          uint32        `json:"nb_steps"`
}

// Record converts a stored run. The pad has no wall clock, so the start is
// estimated as now minus the run duration.
func (s StoredRun) Record(now time.Time) RunRecord {
	return RunRecord{
		Start:          now.Add(-s.Duration),
		Duration:       s.Duration,
		DistanceMeters: s.DistanceMeters,
		Steps:          s.Steps,
	}
}

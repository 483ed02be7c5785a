package utils

import "time"

// Stats summarizes one simulation run
type Stats struct {
	RunID       string        `json:"run_id,omitempty"`
	Steps       int           `json:"steps"`
	OracleCalls int64         `json:"oracle_calls"`
	Ignitions   int64         `json:"ignitions"`
	Unburned    int           `json:"unburned"`
	Burning     int           `json:"burning"`
	Burned      int           `json:"burned"`
	StartTime   time.Time     `json:"start_time"`
	Duration    time.Duration `json:"duration_ns"`

	// Steps per second over the run
	StepsPerSecond float64 `json:"steps_per_second"`
}

func NewStats(runID string) *Stats {
	return &Stats{RunID: runID, StartTime: time.Now()}
}

// Update records one committed step and its oracle usage
func (s *Stats) Update(calls, ignitions int64) {
	s.Steps++
	s.OracleCalls += calls
	s.Ignitions += ignitions
	s.Duration = time.Since(s.StartTime)
	if secs := s.Duration.Seconds(); secs > 0 {
		s.StepsPerSecond = float64(s.Steps) / secs
	}
}

// Census records the cell counts of the latest snapshot
func (s *Stats) Census(unburned, burning, burned int) {
	s.Unburned = unburned
	s.Burning = burning
	s.Burned = burned
}

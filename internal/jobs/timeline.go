package jobs

import (
	"fmt"
	"time"
)

// BeginPhase closes the job's open timeline record (if any) and appends a new
// open record for the given status. Durations never go negative even when
// clocks step backwards between transitions.
func (j *Job) BeginPhase(status Status, at time.Time) {
	at = at.UTC()
	if n := len(j.Timeline); n > 0 && j.Timeline[n-1].Open() {
		rec := &j.Timeline[n-1]
		ended := at
		seconds := ended.Sub(rec.StartedAt).Seconds()
		if seconds < 0 {
			seconds = 0
		}
		rec.EndedAt = &ended
		rec.DurationSeconds = &seconds
	}
	j.Timeline = append(j.Timeline, PhaseRecord{
		Status:    status,
		StartedAt: at,
	})
}

// OpenPhase returns the job's open timeline record, or nil when the timeline
// is empty or fully closed.
func (j *Job) OpenPhase() *PhaseRecord {
	if n := len(j.Timeline); n > 0 && j.Timeline[n-1].Open() {
		return &j.Timeline[n-1]
	}
	return nil
}

// PhaseDurations sums closed record durations per status. The open record
// contributes its elapsed time up to now.
func (j *Job) PhaseDurations(now time.Time) map[Status]float64 {
	totals := make(map[Status]float64, len(j.Timeline))
	for _, rec := range j.Timeline {
		if rec.DurationSeconds != nil {
			totals[rec.Status] += *rec.DurationSeconds
			continue
		}
		if rec.Open() {
			elapsed := now.UTC().Sub(rec.StartedAt).Seconds()
			if elapsed < 0 {
				elapsed = 0
			}
			totals[rec.Status] += elapsed
		}
	}
	return totals
}

// ValidateTimeline checks the structural invariants of a phase timeline:
// at most one open record and only in final position, starts in chronological
// order, and closed records carrying non-negative durations.
func ValidateTimeline(records []PhaseRecord) error {
	for i, rec := range records {
		if rec.Open() {
			if i != len(records)-1 {
				return fmt.Errorf("timeline record %d is open but not last", i)
			}
			continue
		}
		if rec.DurationSeconds == nil {
			return fmt.Errorf("timeline record %d closed without duration", i)
		}
		if *rec.DurationSeconds < 0 {
			return fmt.Errorf("timeline record %d has negative duration %f", i, *rec.DurationSeconds)
		}
		if rec.EndedAt.Before(rec.StartedAt) {
			return fmt.Errorf("timeline record %d ends before it starts", i)
		}
	}
	for i := 1; i < len(records); i++ {
		if records[i].StartedAt.Before(records[i-1].StartedAt) {
			return fmt.Errorf("timeline record %d starts before record %d", i, i-1)
		}
	}
	return nil
}

// CheckConsistency verifies that the job's open record (when present) matches
// the job status and that the timeline validates.
func (j *Job) CheckConsistency() error {
	if err := ValidateTimeline(j.Timeline); err != nil {
		return err
	}
	if open := j.OpenPhase(); open != nil && open.Status != j.Status {
		return fmt.Errorf("open timeline record has status %q but job is %q", open.Status, j.Status)
	}
	return nil
}

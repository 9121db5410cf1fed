package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a pipeline job.
type Status string

const (
	StatusQueued               Status = "queued"
	StatusProcessing           Status = "processing"
	StatusAwaitingReview       Status = "awaiting_review"
	StatusReviewing            Status = "reviewing"
	StatusRendering            Status = "rendering"
	StatusReadyForFinalization Status = "ready_for_finalization"
	StatusFinalizing           Status = "finalizing"
	StatusComplete             Status = "complete"
	StatusError                Status = "error"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusAwaitingReview,
	StatusReviewing,
	StatusRendering,
	StatusReadyForFinalization,
	StatusFinalizing,
	StatusComplete,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var workingStatuses = map[Status]struct{}{
	StatusProcessing: {},
	StatusReviewing:  {},
	StatusRendering:  {},
	StatusFinalizing: {},
}

// progressMarks are the canonical progress percentages recorded when a job
// enters each status.
var progressMarks = map[Status]int{
	StatusQueued:               0,
	StatusProcessing:           10,
	StatusAwaitingReview:       75,
	StatusReviewing:            80,
	StatusRendering:            85,
	StatusReadyForFinalization: 90,
	StatusFinalizing:           95,
	StatusComplete:             100,
}

// Well-known attribute keys. Attributes are free-form strings; these are the
// keys the pipeline itself reads and writes.
const (
	AttrTitle                = "title"
	AttrArtist               = "artist"
	AttrSourceURL            = "source_url"
	AttrSourcePath           = "source_path"
	AttrMediaPath            = "media_path"
	AttrInstrumentalPath     = "instrumental_path"
	AttrVocalsPath           = "vocals_path"
	AttrPreviewPath          = "preview_path"
	AttrInstrumentalProvided = "instrumental_provided"
	AttrLyricsDisabled       = "lyrics_disabled"
	AttrError                = "error"
	AttrErrorPhase           = "error_phase"
	AttrReviewRequested      = "review_requested"
	AttrFinalizeRequested    = "finalize_requested"
	AttrCorrectionsPath      = "corrections_path"
	AttrInstrumental         = "instrumental_selection"
	AttrBrandCode            = "brand_code"
	AttrShareLink            = "share_link"
	AttrLibraryPath          = "library_path"
)

// PhaseRecord captures one contiguous stay in a status. A record with no
// EndedAt is open; a job carries at most one open record and it is always the
// last entry of the timeline.
type PhaseRecord struct {
	Status          Status     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
}

// Open reports whether the record is still accumulating time.
func (r PhaseRecord) Open() bool {
	return r.EndedAt == nil
}

// Job represents a karaoke production job persisted in the registry.
type Job struct {
	ID         string
	Status     Status
	Progress   int
	Timeline   []PhaseRecord
	Attributes map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewJob constructs a queued job with an open timeline record and the provided
// attributes. The ID is a fresh UUID.
func NewJob(attrs map[string]string) *Job {
	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.New().String(),
		Status:     StatusQueued,
		Progress:   progressMarks[StatusQueued],
		Attributes: make(map[string]string, len(attrs)),
		CreatedAt:  now,
		UpdatedAt:  now,
		Timeline: []PhaseRecord{{
			Status:    StatusQueued,
			StartedAt: now,
		}},
	}
	for key, value := range attrs {
		if key == "" {
			continue
		}
		job.Attributes[key] = value
	}
	return job
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ProgressFor returns the canonical progress mark recorded when a job enters
// the given status. Statuses without a mark (error) report false.
func ProgressFor(status Status) (int, bool) {
	mark, ok := progressMarks[status]
	return mark, ok
}

// IsWorking reports whether the status reflects an in-flight phase.
func (s Status) IsWorking() bool {
	_, ok := workingStatuses[s]
	return ok
}

// IsTerminal reports whether a job in this status has finished for good.
// Errored jobs are not terminal; they can be retried back to queued.
func (s Status) IsTerminal() bool {
	return s == StatusComplete
}

// Attr returns the attribute value for key, or empty when unset.
func (j *Job) Attr(key string) string {
	if j == nil || j.Attributes == nil {
		return ""
	}
	return j.Attributes[key]
}

// SetAttr stores an attribute value, allocating the map on first use.
func (j *Job) SetAttr(key, value string) {
	if key == "" {
		return
	}
	if j.Attributes == nil {
		j.Attributes = make(map[string]string)
	}
	j.Attributes[key] = value
}

// MergeAttrs applies the provided attributes last-write-wins. An empty value
// removes the key, which is how transitions clear request markers and stale
// error details.
func (j *Job) MergeAttrs(attrs map[string]string) {
	for key, value := range attrs {
		if value == "" {
			if j.Attributes != nil {
				delete(j.Attributes, key)
			}
			continue
		}
		j.SetAttr(key, value)
	}
}

// DisplayName returns "Artist - Title" when both attributes are present,
// falling back to whichever exists, then the job ID.
func (j *Job) DisplayName() string {
	title := strings.TrimSpace(j.Attr(AttrTitle))
	artist := strings.TrimSpace(j.Attr(AttrArtist))
	switch {
	case artist != "" && title != "":
		return artist + " - " + title
	case title != "":
		return title
	case artist != "":
		return artist
	default:
		return j.ID
	}
}

// Clone returns a deep copy so registry callers cannot alias internal state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Timeline != nil {
		cp.Timeline = make([]PhaseRecord, len(j.Timeline))
		for i, rec := range j.Timeline {
			cp.Timeline[i] = rec
			if rec.EndedAt != nil {
				ended := *rec.EndedAt
				cp.Timeline[i].EndedAt = &ended
			}
			if rec.DurationSeconds != nil {
				dur := *rec.DurationSeconds
				cp.Timeline[i].DurationSeconds = &dur
			}
		}
	}
	if j.Attributes != nil {
		cp.Attributes = make(map[string]string, len(j.Attributes))
		for key, value := range j.Attributes {
			cp.Attributes[key] = value
		}
	}
	return &cp
}

package models

import "time"

// CourseRunStatus represents the scheduling lifecycle of a course run.
type CourseRunStatus string

const (
	RunDraft          CourseRunStatus = "draft"
	RunEnrollmentOpen CourseRunStatus = "enrollment_open"
	RunInProgress     CourseRunStatus = "in_progress"
	RunCompleted      CourseRunStatus = "completed"
	RunCancelled      CourseRunStatus = "cancelled"
)

// Valid returns true when the status is a supported value.
func (s CourseRunStatus) Valid() bool {
	switch s {
	case RunDraft, RunEnrollmentOpen, RunInProgress, RunCompleted, RunCancelled:
		return true
	default:
		return false
	}
}

var runTransitions = map[CourseRunStatus][]CourseRunStatus{
	RunDraft:          {RunEnrollmentOpen, RunCancelled},
	RunEnrollmentOpen: {RunInProgress, RunCancelled},
	RunInProgress:     {RunCompleted, RunCancelled},
	RunCompleted:      {},
	RunCancelled:      {},
}

// IsValidRunTransition reports whether from may move to to in a single step.
func IsValidRunTransition(from, to CourseRunStatus) bool {
	for _, next := range runTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextRunStatuses returns the states reachable in one transition.
func NextRunStatuses(current CourseRunStatus) []CourseRunStatus {
	next := runTransitions[current]
	out := make([]CourseRunStatus, len(next))
	copy(out, next)
	return out
}

// CourseRun is a scheduled, capacity-bounded instance of a course.
// CurrentEnrollments is mutated only through the enrollment engine's seat
// reservation primitives; it is the single source of truth for admission
// control.
type CourseRun struct {
	ID                 string          `db:"id" json:"id"`
	CourseID           string          `db:"course_id" json:"course_id"`
	CampusID           *string         `db:"campus_id" json:"campus_id,omitempty"`
	StartDate          time.Time       `db:"start_date" json:"start_date"`
	EndDate            time.Time       `db:"end_date" json:"end_date"`
	EnrollmentDeadline *time.Time      `db:"enrollment_deadline" json:"enrollment_deadline,omitempty"`
	MinStudents        int             `db:"min_students" json:"min_students"`
	MaxStudents        int             `db:"max_students" json:"max_students"`
	CurrentEnrollments int             `db:"current_enrollments" json:"current_enrollments"`
	Price              float64         `db:"price" json:"price"`
	Status             CourseRunStatus `db:"status" json:"status"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// AvailableSeats returns the remaining capacity for the run.
func (r *CourseRun) AvailableSeats() int {
	return r.MaxStudents - r.CurrentEnrollments
}

// AcceptingEnrollments reports whether new enrollment requests may target
// this run. The enrollment deadline, when present, closes intake early.
func (r *CourseRun) AcceptingEnrollments(now time.Time) bool {
	if r.Status != RunEnrollmentOpen {
		return false
	}
	if r.EnrollmentDeadline != nil && now.After(*r.EnrollmentDeadline) {
		return false
	}
	return true
}

// RunSnapshot is the immutable metrics snapshot captured on completion.
type RunSnapshot struct {
	RunID            string    `db:"run_id" json:"run_id"`
	FinalEnrollments int       `db:"final_enrollments" json:"final_enrollments"`
	OccupancyPercent float64   `db:"occupancy_percent" json:"occupancy_percent"`
	Price            float64   `db:"price" json:"price"`
	CapturedAt       time.Time `db:"captured_at" json:"captured_at"`
}

// CourseRunFilter provides filters for listing course runs.
type CourseRunFilter struct {
	CourseID  string
	CampusID  string
	Status    CourseRunStatus
	StartFrom *time.Time
	StartTo   *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

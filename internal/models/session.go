package models

import "time"

// RecurrenceFrequency describes how often a recurring session repeats.
type RecurrenceFrequency string

const (
	FrequencyDaily  RecurrenceFrequency = "daily"
	FrequencyWeekly RecurrenceFrequency = "weekly"
)

// Valid returns true when the frequency is a supported value.
func (f RecurrenceFrequency) Valid() bool {
	return f == FrequencyDaily || f == FrequencyWeekly
}

// RecurrencePattern describes a finite series of sessions. Either Until or
// Count bounds the series; when both are set the earlier bound wins.
type RecurrencePattern struct {
	Frequency RecurrenceFrequency `json:"frequency" validate:"required"`
	Interval  int                 `json:"interval" validate:"gte=1"`
	Until     *time.Time          `json:"until,omitempty"`
	Count     int                 `json:"count,omitempty" validate:"gte=0"`
}

// Session is a scheduled class meeting for a course run.
type Session struct {
	ID           string    `db:"id" json:"id"`
	CourseRunID  string    `db:"course_run_id" json:"course_run_id"`
	RoomID       *string   `db:"room_id" json:"room_id,omitempty"`
	InstructorID *string   `db:"instructor_id" json:"instructor_id,omitempty"`
	StartTime    time.Time `db:"start_time" json:"start_time"`
	EndTime      time.Time `db:"end_time" json:"end_time"`
	Closed       bool      `db:"closed" json:"closed"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Duration returns the elapsed time between session start and end.
func (s *Session) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Overlaps applies the half-open interval test: touching boundaries do not
// overlap.
func (s *Session) Overlaps(other *Session) bool {
	return s.StartTime.Before(other.EndTime) && other.StartTime.Before(s.EndTime)
}

// SessionConflict describes a detected scheduling collision.
type SessionConflict struct {
	SessionID string `json:"session_id"`
	Resource  string `json:"resource"`
}

// SessionFilter provides filters for listing sessions.
type SessionFilter struct {
	CourseRunID  string
	RoomID       string
	InstructorID string
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

package models

import "time"

// AttendanceStatus represents per-session attendance for an enrollment.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	default:
		return false
	}
}

// Counted reports whether the status counts toward attended sessions.
func (s AttendanceStatus) Counted() bool {
	return s == AttendancePresent || s == AttendanceLate
}

// Attendance is a single per-session record for an enrollment.
type Attendance struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	SessionID    string           `db:"session_id" json:"session_id"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	RecordedBy   string           `db:"recorded_by" json:"recorded_by"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceSummary aggregates attendance per enrollment.
type AttendanceSummary struct {
	EnrollmentID      string  `json:"enrollment_id"`
	Total             int     `json:"total"`
	Present           int     `json:"present"`
	Absent            int     `json:"absent"`
	Late              int     `json:"late"`
	Excused           int     `json:"excused"`
	AttendancePercent float64 `json:"attendance_percent"`
}

// SessionAttendanceSummary aggregates attendance per session.
type SessionAttendanceSummary struct {
	SessionID         string  `json:"session_id"`
	Total             int     `json:"total"`
	Present           int     `json:"present"`
	Absent            int     `json:"absent"`
	Late              int     `json:"late"`
	Excused           int     `json:"excused"`
	AttendancePercent float64 `json:"attendance_percent"`
}

// AttendanceFilter provides filters for listing attendance records.
type AttendanceFilter struct {
	EnrollmentID string
	SessionID    string
	Status       *AttendanceStatus
	Page         int
	PageSize     int
}

package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentConfirmed EnrollmentStatus = "confirmed"
	EnrollmentWaitlist  EnrollmentStatus = "waitlisted"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
	EnrollmentWithdrawn EnrollmentStatus = "withdrawn"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentPending, EnrollmentConfirmed, EnrollmentWaitlist,
		EnrollmentCompleted, EnrollmentCancelled, EnrollmentWithdrawn:
		return true
	default:
		return false
	}
}

// Terminal reports whether no outbound transitions exist from s.
func (s EnrollmentStatus) Terminal() bool {
	return len(enrollmentTransitions[s]) == 0
}

var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentPending:   {EnrollmentConfirmed, EnrollmentCancelled},
	EnrollmentWaitlist:  {EnrollmentConfirmed, EnrollmentCancelled},
	EnrollmentConfirmed: {EnrollmentCompleted, EnrollmentCancelled, EnrollmentWithdrawn},
	EnrollmentCompleted: {},
	EnrollmentCancelled: {},
	EnrollmentWithdrawn: {},
}

// IsValidEnrollmentTransition reports whether from may move to to in a
// single step.
func IsValidEnrollmentTransition(from, to EnrollmentStatus) bool {
	for _, next := range enrollmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextEnrollmentStatuses returns the states reachable in one transition.
func NextEnrollmentStatuses(current EnrollmentStatus) []EnrollmentStatus {
	next := enrollmentTransitions[current]
	out := make([]EnrollmentStatus, len(next))
	copy(out, next)
	return out
}

// PaymentStatus is derived from amount paid against the total.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// Enrollment links a student to a course run. The lifecycle timestamps are
// first-write-wins: once set they are never overwritten, not even by
// administrative overrides.
type Enrollment struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	CourseRunID  string           `db:"course_run_id" json:"course_run_id"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	Source       string           `db:"source" json:"source"`
	AmountPaid   float64          `db:"amount_paid" json:"amount_paid"`
	TotalAmount  float64          `db:"total_amount" json:"total_amount"`
	FinancialAid float64          `db:"financial_aid" json:"financial_aid"`
	EnrolledAt   *time.Time       `db:"enrolled_at" json:"enrolled_at,omitempty"`
	ConfirmedAt  *time.Time       `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CompletedAt  *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt  *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// PaymentState derives the payment status from the financial fields.
func (e *Enrollment) PaymentState() PaymentStatus {
	switch {
	case e.TotalAmount > 0 && e.AmountPaid >= e.TotalAmount:
		return PaymentPaid
	case e.AmountPaid > 0:
		return PaymentPartial
	default:
		return PaymentPending
	}
}

// EnrollmentDetail enriches Enrollment with student and run info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	CourseID    string `db:"course_id" json:"course_id"`
	CourseName  string `db:"course_name" json:"course_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID   string
	CourseRunID string
	Status      EnrollmentStatus
	Source      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// EnrollmentRequest is the materialized request an enrollment is created
// from, either by lead conversion or by manual staff action.
type EnrollmentRequest struct {
	StudentID   string  `json:"student_id" validate:"required"`
	CourseRunID string  `json:"course_run_id" validate:"required"`
	Source      string  `json:"source" validate:"required"`
	TotalAmount float64 `json:"total_amount" validate:"gte=0"`
}

package models

import (
	"time"

	"github.com/lib/pq"
)

// Modality describes how a course is delivered.
type Modality string

const (
	ModalityInPerson Modality = "in-person"
	ModalityOnline   Modality = "online"
	ModalityBlended  Modality = "blended"
)

// Valid returns true when the modality is a supported value.
func (m Modality) Valid() bool {
	switch m {
	case ModalityInPerson, ModalityOnline, ModalityBlended:
		return true
	default:
		return false
	}
}

// PublicationStatus represents the public visibility lifecycle of a course.
type PublicationStatus string

const (
	PublicationDraft     PublicationStatus = "draft"
	PublicationPublished PublicationStatus = "published"
	PublicationArchived  PublicationStatus = "archived"
)

// Valid returns true when the status is a supported value.
func (s PublicationStatus) Valid() bool {
	switch s {
	case PublicationDraft, PublicationPublished, PublicationArchived:
		return true
	default:
		return false
	}
}

// publicationTransitions is the authoritative transition table. Archived is
// terminal: republishing an archived course is not allowed.
var publicationTransitions = map[PublicationStatus][]PublicationStatus{
	PublicationDraft:     {PublicationPublished, PublicationArchived},
	PublicationPublished: {PublicationArchived},
	PublicationArchived:  {},
}

// IsValidPublicationTransition reports whether from may move to to in a
// single step. Self-transitions are always invalid.
func IsValidPublicationTransition(from, to PublicationStatus) bool {
	for _, next := range publicationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextPublicationStatuses returns the states reachable in one transition.
func NextPublicationStatuses(current PublicationStatus) []PublicationStatus {
	next := publicationTransitions[current]
	out := make([]PublicationStatus, len(next))
	copy(out, next)
	return out
}

// Course is a catalog entry owned by a cycle (program).
type Course struct {
	ID        string            `db:"id" json:"id"`
	Slug      string            `db:"slug" json:"slug"`
	Name      string            `db:"name" json:"name"`
	Modality  Modality          `db:"modality" json:"modality"`
	Status    PublicationStatus `db:"status" json:"status"`
	CycleID   string            `db:"cycle_id" json:"cycle_id"`
	CampusIDs pq.StringArray    `db:"campus_ids" json:"campus_ids"`
	CreatedBy string            `db:"created_by" json:"created_by"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Search    string
	CycleID   string
	CampusID  string
	Modality  Modality
	Status    PublicationStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// PublicationEvent records a publication transition for the audit trail.
type PublicationEvent struct {
	CourseID   string            `json:"course_id"`
	From       PublicationStatus `json:"from"`
	To         PublicationStatus `json:"to"`
	Actor      string            `json:"actor"`
	OccurredAt time.Time         `json:"occurred_at"`
}

package models

import "time"

// Alumni represents a graduate profile in the membership directory.
type Alumni struct {
	ID                     string    `db:"id" json:"id"`
	UserID                 *string   `db:"user_id" json:"user_id,omitempty"`
	FullName               string    `db:"full_name" json:"full_name"`
	Email                  string    `db:"email" json:"email"`
	Phone                  string    `db:"phone" json:"phone"`
	GraduationYear         int       `db:"graduation_year" json:"graduation_year"`
	Specialization         string    `db:"specialization" json:"specialization"`
	Occupation             string    `db:"occupation" json:"occupation"`
	BranchID               *string   `db:"branch_id" json:"branch_id,omitempty"`
	AvailableForMentorship bool      `db:"available_for_mentorship" json:"available_for_mentorship"`
	IsMentor               bool      `db:"is_mentor" json:"is_mentor"`
	Active                 bool      `db:"active" json:"active"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// AlumniDetail contains an alumni record with branch context.
type AlumniDetail struct {
	Alumni
	BranchName *string `db:"branch_name" json:"branch_name,omitempty"`
}

// AlumniFilter encapsulates allowed search parameters for listing alumni.
// Unset pointer fields and empty strings put no constraint on the query.
type AlumniFilter struct {
	ListParams
	GraduationYear         *int
	Specialization         string
	BranchID               string
	AvailableForMentorship *bool
	IsMentor               *bool
	Active                 *bool
}

// AlumniUpdate captures a partial update; nil fields remain untouched.
// Flag toggles from the admin table arrive as a single non-nil field.
type AlumniUpdate struct {
	FullName               *string `json:"full_name"`
	Phone                  *string `json:"phone"`
	GraduationYear         *int    `json:"graduation_year"`
	Specialization         *string `json:"specialization"`
	Occupation             *string `json:"occupation"`
	BranchID               *string `json:"branch_id"`
	AvailableForMentorship *bool   `json:"available_for_mentorship"`
	IsMentor               *bool   `json:"is_mentor"`
	Active                 *bool   `json:"active"`
}

// Empty reports whether the update would change nothing.
func (u AlumniUpdate) Empty() bool {
	return u.FullName == nil && u.Phone == nil && u.GraduationYear == nil &&
		u.Specialization == nil && u.Occupation == nil && u.BranchID == nil &&
		u.AvailableForMentorship == nil && u.IsMentor == nil && u.Active == nil
}

package models

import "time"

// Branch represents a regional chapter of the organisation.
type Branch struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Region    string    `db:"region" json:"region"`
	Address   string    `db:"address" json:"address"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BranchDetail carries a branch with membership counts for oversight views.
type BranchDetail struct {
	Branch
	MemberCount int `db:"member_count" json:"member_count"`
}

// BranchFilter captures filtering criteria for listing branches.
type BranchFilter struct {
	ListParams
	Region string
	Active *bool
}

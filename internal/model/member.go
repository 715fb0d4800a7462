package model

import "time"

// Status is the binary submission state of a member.
type Status string

const (
	StatusNotSubmitted Status = "not_submitted"
	StatusSubmitted    Status = "submitted"
)

// Valid reports whether s is one of the two known statuses.
func (s Status) Valid() bool {
	return s == StatusNotSubmitted || s == StatusSubmitted
}

type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemberStats is the dashboard summary derived from a member snapshot.
type MemberStats struct {
	Total          int     `json:"total_members"`
	Submitted      int     `json:"completed_members"`
	NotSubmitted   int     `json:"pending_members"`
	CompletionRate float64 `json:"completion_percentage"`
}

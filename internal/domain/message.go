// Package domain contains core domain types for the reviewer2 application.
package domain

// Role identifies the author of a transcript message.
type Role string

const (
	// RoleSystem marks persona instructions and verdict notices.
	RoleSystem Role = "system"
	// RoleUser marks the submitter's abstract and rebuttal.
	RoleUser Role = "user"
	// RoleReviewer marks model-generated reviewer output.
	RoleReviewer Role = "reviewer"
)

// Message is a single immutable entry in a session transcript.
// Ordering is significant: the transcript is the literal prompt history.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

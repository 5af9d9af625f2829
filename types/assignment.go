package types

import "time"

// Assignment represents a task created by a teacher that students submit
// files against.
type Assignment struct {
	// ID is the unique identifier of the assignment.
	ID int `json:"id" db:"id"`

	// Title is the human-readable name of the assignment.
	Title string `json:"title" db:"title"`

	// Description contains the full assignment statement.
	Description string `json:"description" db:"description"`

	// CreatorID identifies the teacher who created the assignment.
	// Only the creator may delete it.
	CreatorID int `json:"creator_id" db:"creator_id"`

	// CreatorName is the creator's username, resolved on reads.
	// It is not a stored column.
	CreatorName string `json:"creator_name,omitempty" db:"-"`

	// Deadline is the submission cutoff. Nil means no deadline.
	// A submission at exactly the deadline instant is still accepted.
	Deadline *time.Time `json:"deadline,omitempty" db:"deadline"`

	// CreatedAt is the timestamp when the assignment was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

package types

import "time"

// MaxSubmissionAttempts is the number of submission versions a student may
// upload per assignment.
const MaxSubmissionAttempts = 3

// Submission represents one uploaded file version for an (assignment,
// student) pair. The plaintext is never persisted; ObjectKey references the
// encrypted envelope in object storage and ContentHash fingerprints the
// plaintext for tamper detection on download.
type Submission struct {
	// ID is the unique identifier of the submission.
	ID int `json:"id" db:"id"`

	// AssignmentID identifies the assignment this submission is for.
	AssignmentID int `json:"assignment_id" db:"assignment_id"`

	// StudentID identifies the student who uploaded the file.
	StudentID int `json:"student_id" db:"student_id"`

	// StudentName is the student's username, resolved on reads.
	StudentName string `json:"username,omitempty" db:"-"`

	// Filename is the original name of the uploaded file.
	Filename string `json:"filename" db:"filename"`

	// ObjectKey is the object-storage key of the encrypted envelope.
	// It is never exposed in API responses.
	ObjectKey string `json:"-" db:"object_key"`

	// ContentHash is the hex SHA-256 digest of the plaintext, computed
	// before encryption.
	ContentHash string `json:"content_hash" db:"content_hash"`

	// SubmittedAt is the timestamp when the submission was stored.
	// The most recent submission is the active one for grading.
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"`
}

// GradingEntry is the teacher-facing view of a student's work on an
// assignment: the most recent submission annotated with the student's total
// attempt count.
type GradingEntry struct {
	Submission
	AttemptNumber int `json:"attempt_number"`
}

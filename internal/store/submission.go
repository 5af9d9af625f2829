package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/secure-assignment/apiserver/types"
)

// SubmissionRepository handles persistence for submissions.
type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionSelect = `
	SELECT s.id, s.assignment_id, s.student_id, u.username, s.filename, s.object_key, s.content_hash, s.submitted_at
	FROM submissions s
	JOIN users u ON u.id = s.student_id`

func (r *SubmissionRepository) Get(ctx context.Context, id int) (types.Submission, error) {
	const query = submissionSelect + `
	WHERE s.id = $1`
	return scanSubmission(r.db.QueryRowContext(ctx, query, id))
}

func (r *SubmissionRepository) Create(ctx context.Context, submission types.Submission) (types.Submission, error) {
	submission.SubmittedAt = time.Now()

	const query = `
		INSERT INTO submissions (assignment_id, student_id, filename, object_key, content_hash, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		submission.AssignmentID,
		submission.StudentID,
		submission.Filename,
		submission.ObjectKey,
		submission.ContentHash,
		submission.SubmittedAt,
	).Scan(&submission.ID); err != nil {
		return types.Submission{}, err
	}
	return submission, nil
}

// CountForStudent returns the number of stored submissions for an
// (assignment, student) pair. The attempt quota is checked against this
// count before insert.
func (r *SubmissionRepository) CountForStudent(ctx context.Context, assignmentID, studentID int) (int, error) {
	const query = `
		SELECT COUNT(1)
		FROM submissions
		WHERE assignment_id = $1 AND student_id = $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, assignmentID, studentID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListForStudent returns a student's submissions for an assignment,
// newest first.
func (r *SubmissionRepository) ListForStudent(ctx context.Context, assignmentID, studentID int) ([]types.Submission, error) {
	const query = submissionSelect + `
	WHERE s.assignment_id = $1 AND s.student_id = $2
	ORDER BY s.submitted_at DESC, s.id DESC`
	return r.querySubmissions(ctx, query, assignmentID, studentID)
}

// ListForAssignment returns every submission for an assignment, newest
// first across all students.
func (r *SubmissionRepository) ListForAssignment(ctx context.Context, assignmentID int) ([]types.Submission, error) {
	const query = submissionSelect + `
	WHERE s.assignment_id = $1
	ORDER BY s.submitted_at DESC, s.id DESC`
	return r.querySubmissions(ctx, query, assignmentID)
}

// DeleteForAssignment removes all submission rows for an assignment and
// returns the object keys of their ciphertext blobs so callers can clean up
// storage.
func (r *SubmissionRepository) DeleteForAssignment(ctx context.Context, assignmentID int) ([]string, error) {
	const query = `
		DELETE FROM submissions
		WHERE assignment_id = $1
		RETURNING object_key`
	return r.deleteReturningKeys(ctx, query, assignmentID)
}

// DeleteForStudent removes all submission rows authored by a student,
// across assignments, returning their blob keys.
func (r *SubmissionRepository) DeleteForStudent(ctx context.Context, studentID int) ([]string, error) {
	const query = `
		DELETE FROM submissions
		WHERE student_id = $1
		RETURNING object_key`
	return r.deleteReturningKeys(ctx, query, studentID)
}

// DeleteForCreator removes all submission rows under assignments created by
// the given user, returning their blob keys. Must run before the user row
// is deleted: the assignments cascade off the user, and submissions hold a
// plain FK on assignment_id.
func (r *SubmissionRepository) DeleteForCreator(ctx context.Context, creatorID int) ([]string, error) {
	const query = `
		DELETE FROM submissions
		WHERE assignment_id IN (SELECT id FROM assignments WHERE creator_id = $1)
		RETURNING object_key`
	return r.deleteReturningKeys(ctx, query, creatorID)
}

func (r *SubmissionRepository) deleteReturningKeys(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *SubmissionRepository) querySubmissions(ctx context.Context, query string, args ...any) ([]types.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []types.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	return submissions, rows.Err()
}

func scanSubmission(row interface{ Scan(...any) error }) (types.Submission, error) {
	var submission types.Submission
	err := row.Scan(
		&submission.ID,
		&submission.AssignmentID,
		&submission.StudentID,
		&submission.StudentName,
		&submission.Filename,
		&submission.ObjectKey,
		&submission.ContentHash,
		&submission.SubmittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Submission{}, ErrNotFound
		}
		return types.Submission{}, err
	}
	return submission, nil
}

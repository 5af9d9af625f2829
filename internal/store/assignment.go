package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/secure-assignment/apiserver/types"
)

// AssignmentRepository handles persistence for assignments.
type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) List(ctx context.Context) ([]types.Assignment, error) {
	const query = `
		SELECT a.id, a.title, a.description, a.creator_id, u.username, a.deadline, a.created_at
		FROM assignments a
		JOIN users u ON u.id = a.creator_id
		ORDER BY a.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []types.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	return assignments, rows.Err()
}

func (r *AssignmentRepository) Get(ctx context.Context, id int) (types.Assignment, error) {
	const query = `
		SELECT a.id, a.title, a.description, a.creator_id, u.username, a.deadline, a.created_at
		FROM assignments a
		JOIN users u ON u.id = a.creator_id
		WHERE a.id = $1`
	return scanAssignment(r.db.QueryRowContext(ctx, query, id))
}

func (r *AssignmentRepository) Create(ctx context.Context, assignment types.Assignment) (types.Assignment, error) {
	assignment.CreatedAt = time.Now()

	const query = `
		INSERT INTO assignments (title, description, creator_id, deadline, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		assignment.Title,
		assignment.Description,
		assignment.CreatorID,
		assignment.Deadline,
		assignment.CreatedAt,
	).Scan(&assignment.ID); err != nil {
		return types.Assignment{}, err
	}
	return assignment, nil
}

func (r *AssignmentRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM assignments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAssignment(row interface{ Scan(...any) error }) (types.Assignment, error) {
	var assignment types.Assignment
	var deadline sql.NullTime
	err := row.Scan(
		&assignment.ID,
		&assignment.Title,
		&assignment.Description,
		&assignment.CreatorID,
		&assignment.CreatorName,
		&deadline,
		&assignment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Assignment{}, ErrNotFound
		}
		return types.Assignment{}, err
	}
	if deadline.Valid {
		t := deadline.Time
		assignment.Deadline = &t
	}
	return assignment, nil
}

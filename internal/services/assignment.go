package services

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/secure-assignment/apiserver/internal/mq"
	"github.com/secure-assignment/apiserver/internal/storage"
	"github.com/secure-assignment/apiserver/types"
)

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	List(ctx context.Context) ([]types.Assignment, error)
	Get(ctx context.Context, id int) (types.Assignment, error)
	Create(ctx context.Context, assignment types.Assignment) (types.Assignment, error)
	Delete(ctx context.Context, id int) error
}

// AssignmentService encapsulates assignment use-cases, including the
// creator-only cascading delete.
type AssignmentService struct {
	repo        AssignmentRepository
	submissions SubmissionRepository
	blobs       *storage.Storage
	audit       *mq.AuditPublisher
	logger      *slog.Logger
}

func NewAssignmentService(repo AssignmentRepository, submissions SubmissionRepository, blobs *storage.Storage, audit *mq.AuditPublisher, logger *slog.Logger) *AssignmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssignmentService{
		repo:        repo,
		submissions: submissions,
		blobs:       blobs,
		audit:       audit,
		logger:      logger,
	}
}

func (s *AssignmentService) List(ctx context.Context) ([]types.Assignment, error) {
	return s.repo.List(ctx)
}

func (s *AssignmentService) Get(ctx context.Context, id int) (types.Assignment, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new assignment owned by creatorID. Callers gate this
// behind the teacher role.
func (s *AssignmentService) Create(ctx context.Context, assignment types.Assignment, creatorID int) (types.Assignment, error) {
	assignment.CreatorID = creatorID
	return s.repo.Create(ctx, assignment)
}

// Delete removes an assignment and everything referencing it. Only the
// creator may delete. Submission rows are deleted first so a crash
// mid-sequence can orphan blobs but never rows pointing at a missing
// assignment; blob cleanup is best effort.
func (s *AssignmentService) Delete(ctx context.Context, id, requesterID int) error {
	assignment, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if assignment.CreatorID != requesterID {
		return ErrForbidden
	}

	keys, err := s.submissions.DeleteForAssignment(ctx, id)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("orphaned submission blob", "object_key", key, "err", err)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventAssignmentDelete, UserID: requesterID,
		Detail: map[string]string{
			"assignment_id":       strconv.Itoa(id),
			"submissions_deleted": strconv.Itoa(len(keys)),
		}})
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/secure-assignment/apiserver/internal/crypto"
	"github.com/secure-assignment/apiserver/internal/mq"
	"github.com/secure-assignment/apiserver/internal/storage"
	"github.com/secure-assignment/apiserver/internal/token"
	"github.com/secure-assignment/apiserver/types"
)

// SubmissionRepository defines persistence operations for submissions.
type SubmissionRepository interface {
	Get(ctx context.Context, id int) (types.Submission, error)
	Create(ctx context.Context, submission types.Submission) (types.Submission, error)
	CountForStudent(ctx context.Context, assignmentID, studentID int) (int, error)
	ListForStudent(ctx context.Context, assignmentID, studentID int) ([]types.Submission, error)
	ListForAssignment(ctx context.Context, assignmentID int) ([]types.Submission, error)
	DeleteForAssignment(ctx context.Context, assignmentID int) ([]string, error)
	DeleteForStudent(ctx context.Context, studentID int) ([]string, error)
	DeleteForCreator(ctx context.Context, creatorID int) ([]string, error)
}

// DownloadResult is a decrypted submission payload ready to return to an
// authorized caller.
type DownloadResult struct {
	Filename string
	Content  []byte
}

// SubmissionService enforces the submission policy (deadline, attempt
// quota, payload presence, download authorization) and runs every payload
// through the crypto pipeline: hash, encrypt, store on upload; load,
// decrypt, re-hash on download.
type SubmissionService struct {
	repo        SubmissionRepository
	assignments AssignmentRepository
	blobs       *storage.Storage
	key         []byte
	audit       *mq.AuditPublisher
	logger      *slog.Logger

	// now is the deadline clock, replaceable in tests.
	now func() time.Time
}

func NewSubmissionService(repo SubmissionRepository, assignments AssignmentRepository, blobs *storage.Storage, key []byte, audit *mq.AuditPublisher, logger *slog.Logger) *SubmissionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionService{
		repo:        repo,
		assignments: assignments,
		blobs:       blobs,
		key:         key,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

// Submit stores one submission attempt and returns its attempt number
// (1-based). Policy checks run before any crypto work. The quota is a soft
// cap: the count-then-insert sequence is not transactional, so concurrent
// submissions from the same student can in principle exceed it.
func (s *SubmissionService) Submit(ctx context.Context, assignmentID, studentID int, fileBytes []byte, filename string) (int, error) {
	assignment, err := s.assignments.Get(ctx, assignmentID)
	if err != nil {
		return 0, err
	}

	// Strictly after: an upload at the exact deadline instant is on time.
	if assignment.Deadline != nil && s.now().After(*assignment.Deadline) {
		return 0, ErrDeadlinePassed
	}

	count, err := s.repo.CountForStudent(ctx, assignmentID, studentID)
	if err != nil {
		return 0, err
	}
	if count >= types.MaxSubmissionAttempts {
		return 0, ErrQuotaExceeded
	}

	if len(fileBytes) == 0 {
		return 0, ErrEmptyPayload
	}

	contentHash := crypto.HashContent(fileBytes)

	envelope, err := crypto.Encrypt(fileBytes, s.key)
	if err != nil {
		return 0, fmt.Errorf("encrypt submission: %w", err)
	}
	blob, err := envelope.Marshal()
	if err != nil {
		return 0, fmt.Errorf("marshal envelope: %w", err)
	}

	objectKey := fmt.Sprintf("submissions/%d/%d/%s", assignmentID, studentID, uuid.NewString())
	if err := s.blobs.PutEnvelope(ctx, objectKey, blob); err != nil {
		return 0, fmt.Errorf("store envelope: %w", err)
	}

	submission, err := s.repo.Create(ctx, types.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Filename:     filename,
		ObjectKey:    objectKey,
		ContentHash:  contentHash,
	})
	if err != nil {
		// The row failed after the blob was written; remove the blob so
		// storage does not accumulate unreferenced envelopes.
		if delErr := s.blobs.Delete(ctx, objectKey); delErr != nil {
			s.logger.Warn("orphaned submission blob", "object_key", objectKey, "err", delErr)
		}
		return 0, err
	}

	attempt := count + 1
	s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventSubmissionStored, UserID: studentID,
		Detail: map[string]string{
			"assignment_id": strconv.Itoa(assignmentID),
			"submission_id": strconv.Itoa(submission.ID),
			"attempt":       strconv.Itoa(attempt),
		}})
	return attempt, nil
}

// ListMine returns the student's own submissions for an assignment, newest
// first.
func (s *SubmissionService) ListMine(ctx context.Context, assignmentID, studentID int) ([]types.Submission, error) {
	return s.repo.ListForStudent(ctx, assignmentID, studentID)
}

// ListForGrading returns one entry per student: the most recent submission,
// annotated with that student's total attempt count. Callers gate this
// behind the teacher/admin roles.
func (s *SubmissionService) ListForGrading(ctx context.Context, assignmentID int) ([]types.GradingEntry, error) {
	submissions, err := s.repo.ListForAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	attempts := make(map[int]int)
	for _, submission := range submissions {
		attempts[submission.StudentID]++
	}

	entries := make([]types.GradingEntry, 0, len(attempts))
	seen := make(map[int]bool)
	for _, submission := range submissions {
		if seen[submission.StudentID] {
			continue
		}
		seen[submission.StudentID] = true
		entries = append(entries, types.GradingEntry{
			Submission:    submission,
			AttemptNumber: attempts[submission.StudentID],
		})
	}
	return entries, nil
}

// Download returns the decrypted payload of a submission. Teachers and
// admins may download any submission; a student only their own. Decryption
// fails closed on a tag mismatch. A content-hash mismatch against the
// stored pre-encryption digest is logged and audited but does not block the
// download.
func (s *SubmissionService) Download(ctx context.Context, submissionID int, requester token.Claims) (DownloadResult, error) {
	submission, err := s.repo.Get(ctx, submissionID)
	if err != nil {
		return DownloadResult{}, err
	}

	if requester.Role != types.RoleTeacher && requester.Role != types.RoleAdmin && requester.UserID != submission.StudentID {
		return DownloadResult{}, ErrForbidden
	}

	blob, err := s.blobs.GetEnvelope(ctx, submission.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return DownloadResult{}, ErrFileNotFound
		}
		return DownloadResult{}, err
	}

	envelope, err := crypto.UnmarshalEnvelope(blob)
	if err != nil {
		return DownloadResult{}, err
	}

	plaintext, err := crypto.Decrypt(envelope, s.key)
	if err != nil {
		return DownloadResult{}, err
	}

	if crypto.HashContent(plaintext) != submission.ContentHash {
		s.logger.Warn("content hash mismatch on download",
			"submission_id", submission.ID, "object_key", submission.ObjectKey)
		s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventIntegrityWarning, UserID: requester.UserID,
			Detail: map[string]string{"submission_id": strconv.Itoa(submission.ID)}})
	}

	s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventDownload, UserID: requester.UserID,
		Detail: map[string]string{"submission_id": strconv.Itoa(submission.ID)}})
	return DownloadResult{Filename: submission.Filename, Content: plaintext}, nil
}

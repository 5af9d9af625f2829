package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/secure-assignment/apiserver/internal/store"
	"github.com/secure-assignment/apiserver/types"
)

// In-memory repository and storage fakes mirroring the semantics of the
// Postgres and object-store implementations, including sentinel errors and
// result ordering.

type fakeUserRepo struct {
	nextID int
	users  map[int]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[int]types.User)}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) List(ctx context.Context) ([]types.User, error) {
	users := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) SetMFA(ctx context.Context, id int, secret string, enabled bool) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.MFASecret = secret
	user.MFAEnabled = enabled
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return user, nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type fakeAssignmentRepo struct {
	nextID      int
	assignments map[int]types.Assignment
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{nextID: 1, assignments: make(map[int]types.Assignment)}
}

func (r *fakeAssignmentRepo) List(ctx context.Context) ([]types.Assignment, error) {
	assignments := make([]types.Assignment, 0, len(r.assignments))
	for _, assignment := range r.assignments {
		assignments = append(assignments, assignment)
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID > assignments[j].ID })
	return assignments, nil
}

func (r *fakeAssignmentRepo) Get(ctx context.Context, id int) (types.Assignment, error) {
	assignment, ok := r.assignments[id]
	if !ok {
		return types.Assignment{}, store.ErrNotFound
	}
	return assignment, nil
}

func (r *fakeAssignmentRepo) Create(ctx context.Context, assignment types.Assignment) (types.Assignment, error) {
	assignment.ID = r.nextID
	r.nextID++
	assignment.CreatedAt = time.Now()
	r.assignments[assignment.ID] = assignment
	return assignment, nil
}

func (r *fakeAssignmentRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.assignments[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.assignments, id)
	return nil
}

type fakeSubmissionRepo struct {
	nextID      int
	submissions []types.Submission
	createErr   error

	// assignments resolves creator ownership for DeleteForCreator.
	assignments *fakeAssignmentRepo
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{nextID: 1}
}

func (r *fakeSubmissionRepo) Get(ctx context.Context, id int) (types.Submission, error) {
	for _, submission := range r.submissions {
		if submission.ID == id {
			return submission, nil
		}
	}
	return types.Submission{}, store.ErrNotFound
}

func (r *fakeSubmissionRepo) Create(ctx context.Context, submission types.Submission) (types.Submission, error) {
	if r.createErr != nil {
		return types.Submission{}, r.createErr
	}
	submission.ID = r.nextID
	r.nextID++
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now()
	}
	r.submissions = append(r.submissions, submission)
	return submission, nil
}

func (r *fakeSubmissionRepo) CountForStudent(ctx context.Context, assignmentID, studentID int) (int, error) {
	count := 0
	for _, submission := range r.submissions {
		if submission.AssignmentID == assignmentID && submission.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

func (r *fakeSubmissionRepo) ListForStudent(ctx context.Context, assignmentID, studentID int) ([]types.Submission, error) {
	var result []types.Submission
	for _, submission := range r.submissions {
		if submission.AssignmentID == assignmentID && submission.StudentID == studentID {
			result = append(result, submission)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (r *fakeSubmissionRepo) ListForAssignment(ctx context.Context, assignmentID int) ([]types.Submission, error) {
	var result []types.Submission
	for _, submission := range r.submissions {
		if submission.AssignmentID == assignmentID {
			result = append(result, submission)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (r *fakeSubmissionRepo) DeleteForAssignment(ctx context.Context, assignmentID int) ([]string, error) {
	return r.deleteWhere(func(s types.Submission) bool {
		return s.AssignmentID == assignmentID
	}), nil
}

func (r *fakeSubmissionRepo) DeleteForStudent(ctx context.Context, studentID int) ([]string, error) {
	return r.deleteWhere(func(s types.Submission) bool {
		return s.StudentID == studentID
	}), nil
}

func (r *fakeSubmissionRepo) DeleteForCreator(ctx context.Context, creatorID int) ([]string, error) {
	return r.deleteWhere(func(s types.Submission) bool {
		if r.assignments == nil {
			return false
		}
		assignment, ok := r.assignments.assignments[s.AssignmentID]
		return ok && assignment.CreatorID == creatorID
	}), nil
}

func (r *fakeSubmissionRepo) deleteWhere(match func(types.Submission) bool) []string {
	var keys []string
	var kept []types.Submission
	for _, submission := range r.submissions {
		if match(submission) {
			keys = append(keys, submission.ObjectKey)
			continue
		}
		kept = append(kept, submission)
	}
	r.submissions = kept
	return keys
}

func sortNewestFirst(submissions []types.Submission) {
	sort.Slice(submissions, func(i, j int) bool {
		if !submissions[i].SubmittedAt.Equal(submissions[j].SubmittedAt) {
			return submissions[i].SubmittedAt.After(submissions[j].SubmittedAt)
		}
		return submissions[i].ID > submissions[j].ID
	})
}

// memBackend is an in-memory storage.ObjectStorage.
type memBackend struct {
	objects map[string][]byte
	getErr  error
}

var errMemNotFound = errors.New("mem: object not found")

func newMemBackend() *memBackend {
	return &memBackend{objects: make(map[string][]byte)}
}

func (b *memBackend) EnsureBucket(ctx context.Context) error { return nil }

func (b *memBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *memBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, errMemNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBackend) Delete(ctx context.Context, key string) error {
	delete(b.objects, key)
	return nil
}

func (b *memBackend) IsNotFound(err error) bool {
	return errors.Is(err, errMemNotFound)
}

func (b *memBackend) Bucket() string { return "test-bucket" }

func testSystemKey() []byte {
	return []byte(strings.Repeat("k", 32))
}

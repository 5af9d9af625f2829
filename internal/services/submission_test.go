package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secure-assignment/apiserver/internal/crypto"
	"github.com/secure-assignment/apiserver/internal/storage"
	"github.com/secure-assignment/apiserver/internal/store"
	"github.com/secure-assignment/apiserver/internal/token"
	"github.com/secure-assignment/apiserver/types"
)

type submissionEnv struct {
	svc         *SubmissionService
	repo        *fakeSubmissionRepo
	assignments *fakeAssignmentRepo
	backend     *memBackend
}

func newSubmissionEnv(t *testing.T) submissionEnv {
	t.Helper()
	repo := newFakeSubmissionRepo()
	assignments := newFakeAssignmentRepo()
	repo.assignments = assignments
	backend := newMemBackend()
	svc := NewSubmissionService(repo, assignments, storage.NewStorage(backend), testSystemKey(), nil, nil)
	return submissionEnv{svc: svc, repo: repo, assignments: assignments, backend: backend}
}

func (e submissionEnv) createAssignment(t *testing.T, deadline *time.Time) types.Assignment {
	t.Helper()
	assignment, err := e.assignments.Create(context.Background(), types.Assignment{
		Title:     "hw1",
		CreatorID: 1,
		Deadline:  deadline,
	})
	require.NoError(t, err)
	return assignment
}

func TestSubmitStoresEncryptedEnvelope(t *testing.T) {
	env := newSubmissionEnv(t)
	assignment := env.createAssignment(t, nil)
	plaintext := []byte("my homework solution")

	attempt, err := env.svc.Submit(context.Background(), assignment.ID, 7, plaintext, "solution.go")
	require.NoError(t, err)
	require.Equal(t, 1, attempt)

	require.Len(t, env.repo.submissions, 1)
	stored := env.repo.submissions[0]
	require.Equal(t, assignment.ID, stored.AssignmentID)
	require.Equal(t, 7, stored.StudentID)
	require.Equal(t, "solution.go", stored.Filename)
	require.Equal(t, crypto.HashContent(plaintext), stored.ContentHash)

	blob, ok := env.backend.objects[stored.ObjectKey]
	require.True(t, ok, "no blob stored under %q", stored.ObjectKey)
	require.NotContains(t, string(blob), string(plaintext), "plaintext leaked into storage")

	envelope, err := crypto.UnmarshalEnvelope(blob)
	require.NoError(t, err)
	decrypted, err := crypto.Decrypt(envelope, testSystemKey())
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestSubmitDeadline(t *testing.T) {
	env := newSubmissionEnv(t)

	past := time.Now().Add(-time.Minute)
	expired := env.createAssignment(t, &past)
	_, err := env.svc.Submit(context.Background(), expired.ID, 7, []byte("late"), "late.txt")
	require.ErrorIs(t, err, ErrDeadlinePassed)
	require.Empty(t, env.repo.submissions)
	require.Empty(t, env.backend.objects, "rejected submission left a blob behind")

	future := time.Now().Add(time.Hour)
	open := env.createAssignment(t, &future)
	_, err = env.svc.Submit(context.Background(), open.ID, 7, []byte("on time"), "ok.txt")
	require.NoError(t, err)
}

func TestSubmitDeadlineBoundary(t *testing.T) {
	env := newSubmissionEnv(t)
	deadline := time.Date(2026, 9, 1, 23, 59, 59, 0, time.UTC)
	assignment := env.createAssignment(t, &deadline)
	ctx := context.Background()

	// An upload at the exact deadline instant is on time; one nanosecond
	// later it is not.
	env.svc.now = func() time.Time { return deadline }
	_, err := env.svc.Submit(ctx, assignment.ID, 7, []byte("just in time"), "ok.txt")
	require.NoError(t, err)

	env.svc.now = func() time.Time { return deadline.Add(time.Nanosecond) }
	_, err = env.svc.Submit(ctx, assignment.ID, 7, []byte("too late"), "late.txt")
	require.ErrorIs(t, err, ErrDeadlinePassed)
}

func TestSubmitAttemptQuota(t *testing.T) {
	env := newSubmissionEnv(t)
	assignment := env.createAssignment(t, nil)
	ctx := context.Background()

	for want := 1; want <= types.MaxSubmissionAttempts; want++ {
		attempt, err := env.svc.Submit(ctx, assignment.ID, 7, []byte("v"), "v.txt")
		require.NoError(t, err)
		require.Equal(t, want, attempt)
	}

	_, err := env.svc.Submit(ctx, assignment.ID, 7, []byte("v4"), "v4.txt")
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.Len(t, env.repo.submissions, types.MaxSubmissionAttempts)
	require.Len(t, env.backend.objects, types.MaxSubmissionAttempts)

	// The quota is per (assignment, student): another student still submits.
	attempt, err := env.svc.Submit(ctx, assignment.ID, 8, []byte("other"), "other.txt")
	require.NoError(t, err)
	require.Equal(t, 1, attempt)
}

func TestSubmitEmptyPayload(t *testing.T) {
	env := newSubmissionEnv(t)
	assignment := env.createAssignment(t, nil)

	_, err := env.svc.Submit(context.Background(), assignment.ID, 7, nil, "empty.txt")
	require.ErrorIs(t, err, ErrEmptyPayload)
	require.Empty(t, env.backend.objects)
}

func TestSubmitUnknownAssignment(t *testing.T) {
	env := newSubmissionEnv(t)
	_, err := env.svc.Submit(context.Background(), 999, 7, []byte("x"), "x.txt")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubmitRowFailureCleansUpBlob(t *testing.T) {
	env := newSubmissionEnv(t)
	assignment := env.createAssignment(t, nil)
	env.repo.createErr = store.ErrConflict

	_, err := env.svc.Submit(context.Background(), assignment.ID, 7, []byte("x"), "x.txt")
	require.Error(t, err)
	require.Empty(t, env.backend.objects, "blob survived a failed row insert")
}

func TestListMineNewestFirst(t *testing.T) {
	env := newSubmissionEnv(t)
	assignment := env.createAssignment(t, nil)
	ctx := context.Background()

	base := time.Now()
	for i, name := range []string{"v1.txt", "v2.txt", "v3.txt"} {
		_, err := env.repo.Create(ctx, types.Submission{
			AssignmentID: assignment.ID,
			StudentID:    7,
			Filename:     name,
			SubmittedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	mine, err := env.svc.ListMine(ctx, assignment.ID, 7)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	require.Equal(t, "v3.txt", mine[0].Filename)
	require.Equal(t, "v2.txt", mine[1].Filename)
	require.Equal(t, "v1.txt", mine[2].Filename)
}

func TestListForGrading(t *testing.T) {
	env := newSubmissionEnv(t)
	assignment := env.createAssignment(t, nil)
	ctx := context.Background()

	base := time.Now()
	rows := []struct {
		student  int
		filename string
		offset   time.Duration
	}{
		{7, "alice-v1.txt", 0},
		{8, "bob-v1.txt", time.Minute},
		{7, "alice-v2.txt", 2 * time.Minute},
	}
	for _, row := range rows {
		_, err := env.repo.Create(ctx, types.Submission{
			AssignmentID: assignment.ID,
			StudentID:    row.student,
			Filename:     row.filename,
			SubmittedAt:  base.Add(row.offset),
		})
		require.NoError(t, err)
	}

	entries, err := env.svc.ListForGrading(ctx, assignment.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// One entry per student, latest submission, with total attempt count.
	require.Equal(t, "alice-v2.txt", entries[0].Filename)
	require.Equal(t, 2, entries[0].AttemptNumber)
	require.Equal(t, "bob-v1.txt", entries[1].Filename)
	require.Equal(t, 1, entries[1].AttemptNumber)
}

func TestDownloadAuthorization(t *testing.T) {
	env := newSubmissionEnv(t)
	assignment := env.createAssignment(t, nil)
	ctx := context.Background()
	plaintext := []byte("the submitted work")

	_, err := env.svc.Submit(ctx, assignment.ID, 7, plaintext, "work.txt")
	require.NoError(t, err)
	submissionID := env.repo.submissions[0].ID

	cases := []struct {
		name      string
		requester token.Claims
		wantErr   error
	}{
		{"owner", token.Claims{UserID: 7, Role: types.RoleStudent}, nil},
		{"teacher", token.Claims{UserID: 99, Role: types.RoleTeacher}, nil},
		{"admin", token.Claims{UserID: 98, Role: types.RoleAdmin}, nil},
		{"other student", token.Claims{UserID: 8, Role: types.RoleStudent}, ErrForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := env.svc.Download(ctx, submissionID, tc.requester)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "work.txt", result.Filename)
			require.Equal(t, plaintext, result.Content)
		})
	}
}

func TestDownloadMissingBlob(t *testing.T) {
	env := newSubmissionEnv(t)
	assignment := env.createAssignment(t, nil)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, assignment.ID, 7, []byte("x"), "x.txt")
	require.NoError(t, err)
	stored := env.repo.submissions[0]
	delete(env.backend.objects, stored.ObjectKey)

	_, err = env.svc.Download(ctx, stored.ID, token.Claims{UserID: 7, Role: types.RoleStudent})
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestDownloadTamperedBlob(t *testing.T) {
	env := newSubmissionEnv(t)
	assignment := env.createAssignment(t, nil)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, assignment.ID, 7, []byte("x"), "x.txt")
	require.NoError(t, err)
	stored := env.repo.submissions[0]

	// Re-encrypt garbage in place: a swapped envelope decrypts but fails
	// the content-hash comparison; the download still succeeds.
	swapped, err := crypto.Encrypt([]byte("swapped contents"), testSystemKey())
	require.NoError(t, err)
	blob, err := swapped.Marshal()
	require.NoError(t, err)
	env.backend.objects[stored.ObjectKey] = blob

	result, err := env.svc.Download(ctx, stored.ID, token.Claims{UserID: 7, Role: types.RoleStudent})
	require.NoError(t, err)
	require.Equal(t, []byte("swapped contents"), result.Content)

	// A corrupted envelope fails closed instead.
	env.backend.objects[stored.ObjectKey] = []byte(`{"iv":"00","encrypted":"00","tag":"00"}`)
	_, err = env.svc.Download(ctx, stored.ID, token.Claims{UserID: 7, Role: types.RoleStudent})
	require.Error(t, err)
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/secure-assignment/apiserver/internal/services"
	"github.com/secure-assignment/apiserver/internal/store"
	"github.com/secure-assignment/apiserver/types"
)

const (
	maxMultipartMemory = 32 << 20
	maxUploadBytes     = 64 << 20
	formFieldFile      = "submission"
)

// AssignmentHandler provides HTTP handlers for assignments and submissions.
type AssignmentHandler struct {
	assignmentService *services.AssignmentService
	submissionService *services.SubmissionService
}

// NewAssignmentHandler constructs a handler with the provided services.
func NewAssignmentHandler(assignmentService *services.AssignmentService, submissionService *services.SubmissionService) *AssignmentHandler {
	return &AssignmentHandler{
		assignmentService: assignmentService,
		submissionService: submissionService,
	}
}

// AssignmentRouter registers assignment and submission routes. All routes
// require authentication; role checks are per-route.
func AssignmentRouter(
	r chi.Router,
	assignmentService *services.AssignmentService,
	submissionService *services.SubmissionService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewAssignmentHandler(assignmentService, submissionService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListAssignments)
	r.With(RequireRole(types.RoleTeacher)).Post("/", handler.CreateAssignment)
	r.Get("/download/{submissionID}", handler.Download)
	r.Route("/{assignmentID}", func(r chi.Router) {
		r.Get("/", handler.GetAssignment)
		r.With(RequireRole(types.RoleTeacher)).Delete("/", handler.DeleteAssignment)
		r.With(RequireRole(types.RoleStudent)).Post("/submit", handler.Submit)
		r.With(RequireRole(types.RoleStudent)).Get("/my-submissions", handler.MySubmissions)
		r.With(RequireRole(types.RoleTeacher, types.RoleAdmin)).Get("/submissions", handler.Submissions)
	})
}

func (h *AssignmentHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.assignmentService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list assignments")
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *AssignmentHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	assignment, err := h.assignmentService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "assignment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch assignment")
		return
	}

	writeJSON(w, http.StatusOK, assignment)
}

// CreateAssignment stores a new assignment owned by the calling teacher.
func (h *AssignmentHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AssignmentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	var deadline *time.Time
	if req.Deadline != "" {
		parsed, err := time.Parse(time.RFC3339, req.Deadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deadline")
			return
		}
		deadline = &parsed
	}

	created, err := h.assignmentService.Create(r.Context(), types.Assignment{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    deadline,
	}, claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create assignment")
		return
	}

	writeJSON(w, http.StatusCreated, AssignmentCreateResponse{ID: created.ID})
}

// DeleteAssignment removes an assignment and cascades to its submissions.
// Creator only.
func (h *AssignmentHandler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseAssignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.assignmentService.Delete(r.Context(), id, claims.UserID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "assignment not found")
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "you can only delete your own assignments")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete assignment")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Submit accepts a multipart file upload as one submission attempt.
func (h *AssignmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseAssignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filename, fileBytes, err := parseUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	attempt, err := h.submissionService.Submit(r.Context(), id, claims.UserID, fileBytes, filename)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "assignment not found")
		case errors.Is(err, services.ErrDeadlinePassed):
			writeError(w, http.StatusBadRequest, "submission deadline has passed")
		case errors.Is(err, services.ErrQuotaExceeded):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("maximum %d attempts reached", types.MaxSubmissionAttempts))
		case errors.Is(err, services.ErrEmptyPayload):
			writeError(w, http.StatusBadRequest, "no file uploaded")
		default:
			writeError(w, http.StatusInternalServerError, "failed to store submission")
		}
		return
	}

	writeJSON(w, http.StatusOK, SubmitResponse{
		Message: fmt.Sprintf("assignment submitted securely (attempt %d/%d)", attempt, types.MaxSubmissionAttempts),
		Attempt: attempt,
	})
}

// MySubmissions returns the calling student's submissions, newest first.
func (h *AssignmentHandler) MySubmissions(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseAssignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	submissions, err := h.submissionService.ListMine(r.Context(), id, claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	if submissions == nil {
		submissions = []types.Submission{}
	}
	writeJSON(w, http.StatusOK, submissions)
}

// Submissions returns the grading view: latest submission per student with
// attempt counts. Teacher/admin only.
func (h *AssignmentHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.submissionService.ListForGrading(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	if entries == nil {
		entries = []types.GradingEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Download streams the decrypted submission payload to an authorized caller.
func (h *AssignmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "submissionID"))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid submission id")
		return
	}

	result, err := h.submissionService.Download(r.Context(), id, claims)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "submission not found")
		case errors.Is(err, services.ErrFileNotFound):
			writeError(w, http.StatusNotFound, "file not found on server")
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "unauthorized to download this file")
		default:
			writeError(w, http.StatusInternalServerError, "failed to decrypt submission")
		}
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Content)
}

type AssignmentCreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Deadline    string `json:"deadline"`
}

type AssignmentCreateResponse struct {
	ID int `json:"id"`
}

type SubmitResponse struct {
	Message string `json:"message"`
	Attempt int    `json:"attempt"`
}

func parseAssignmentID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "assignmentID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid assignment id")
	}
	return id, nil
}

func parseUpload(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return "", nil, errors.New("invalid multipart form")
	}

	form := r.MultipartForm
	if form == nil || len(form.File[formFieldFile]) == 0 {
		// The policy engine owns the empty-payload rejection; report the
		// absent file as an empty upload rather than a malformed form.
		return "", nil, nil
	}

	fileHeader := form.File[formFieldFile][0]
	file, err := fileHeader.Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read upload: %w", err)
	}
	defer file.Close()

	limited := io.LimitReader(file, maxUploadBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return "", nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > maxUploadBytes {
		return "", nil, errors.New("uploaded file too large")
	}

	return fileHeader.Filename, data, nil
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/secure-assignment/apiserver/internal/services"
	"github.com/secure-assignment/apiserver/internal/store"
	"github.com/secure-assignment/apiserver/types"
)

// AuthHandler provides registration, login, MFA, and admin user endpoints.
type AuthHandler struct {
	userService *services.UserService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAuthHandler(userService)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/mfa/verify", handler.MFAVerify)
	r.With(authMiddleware).Post("/mfa/setup", handler.MFASetup)
	r.With(authMiddleware).Post("/mfa/enable", handler.MFAEnable)
	r.With(authMiddleware).Get("/me", handler.Me)
	r.With(authMiddleware, RequireRole(types.RoleAdmin)).Get("/users", handler.ListUsers)
	r.With(authMiddleware, RequireRole(types.RoleAdmin)).Delete("/users/{userID}", handler.DeleteUser)
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if req.Role != "" && !types.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	user, err := h.userService.Register(r.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "username or email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{UserID: user.ID})
}

// Login verifies credentials. MFA-enabled accounts get a pending response
// instead of a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	result, err := h.userService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if result.MFARequired {
		writeJSON(w, http.StatusOK, LoginResponse{MFARequired: true, UserID: result.UserID})
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: result.Token, Role: result.Role})
}

// MFAVerify completes a pending login with a TOTP code.
func (h *AuthHandler) MFAVerify(w http.ResponseWriter, r *http.Request) {
	var req MFAVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.userService.VerifyMFA(r.Context(), req.UserID, req.Code)
	if err != nil {
		if errors.Is(err, services.ErrInvalidMFACode) {
			writeError(w, http.StatusUnauthorized, "invalid mfa code")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to verify code")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: result.Token, Role: result.Role})
}

// MFASetup generates a candidate secret and QR code for the caller.
func (h *AuthHandler) MFASetup(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	enrollment, err := h.userService.BeginMFAEnrollment(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate secret")
		return
	}

	writeJSON(w, http.StatusOK, MFASetupResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCode:          enrollment.QRCode,
	})
}

// MFAEnable verifies the code against the candidate secret and turns the
// MFA gate on. The response carries a fresh token; the old one is stale.
func (h *AuthHandler) MFAEnable(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req MFAEnableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Secret) == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "missing secret or code")
		return
	}

	newToken, err := h.userService.CompleteMFAEnrollment(r.Context(), claims.UserID, req.Secret, req.Code)
	if err != nil {
		if errors.Is(err, services.ErrInvalidMFACode) {
			writeError(w, http.StatusBadRequest, "invalid mfa code")
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to enable mfa")
		return
	}

	writeJSON(w, http.StatusOK, MFAEnableResponse{Token: newToken})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// ListUsers returns all accounts. Admin only.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// DeleteUser removes an account. Admin only; self-deletion is forbidden.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	targetID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || targetID < 1 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.userService.Delete(r.Context(), claims.UserID, targetID); err != nil {
		switch {
		case errors.Is(err, services.ErrSelfDelete):
			writeError(w, http.StatusBadRequest, "cannot delete yourself")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete user")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type RegisterResponse struct {
	UserID int `json:"user_id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token       string `json:"token,omitempty"`
	Role        string `json:"role,omitempty"`
	MFARequired bool   `json:"mfa_required"`
	UserID      int    `json:"user_id,omitempty"`
}

type MFAVerifyRequest struct {
	UserID int    `json:"user_id"`
	Code   string `json:"code"`
}

type MFASetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"otpauth_url"`
	QRCode          string `json:"qr_code"`
}

type MFAEnableRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type MFAEnableResponse struct {
	Token string `json:"token"`
}

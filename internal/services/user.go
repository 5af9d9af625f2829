package services

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/secure-assignment/apiserver/internal/crypto"
	"github.com/secure-assignment/apiserver/internal/mq"
	"github.com/secure-assignment/apiserver/internal/storage"
	"github.com/secure-assignment/apiserver/internal/token"
	"github.com/secure-assignment/apiserver/internal/totp"
	"github.com/secure-assignment/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetMFA(ctx context.Context, id int, secret string, enabled bool) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// LoginResult is the outcome of a successful credential check. When the
// account has MFA enabled no token is issued yet; the caller must complete
// the MFA step with the pending user id.
type LoginResult struct {
	MFARequired bool
	UserID      int
	Token       string
	Role        string
}

// MFAEnrollment is a candidate secret for enrollment. Nothing is persisted
// until the user proves possession by submitting a valid code for it.
type MFAEnrollment struct {
	Secret          string
	ProvisioningURI string
	QRCode          string
}

// UserService orchestrates registration and the authentication flow:
// credential check, MFA gate, session token issuance. Account deletion
// cascades through the target's submissions and their blobs.
type UserService struct {
	repo        UserRepository
	submissions SubmissionRepository
	blobs       *storage.Storage
	totp        *totp.Service
	issuer      *token.Issuer
	audit       *mq.AuditPublisher
	logger      *slog.Logger
}

func NewUserService(repo UserRepository, submissions SubmissionRepository, blobs *storage.Storage, totpService *totp.Service, issuer *token.Issuer, audit *mq.AuditPublisher, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:        repo,
		submissions: submissions,
		blobs:       blobs,
		totp:        totpService,
		issuer:      issuer,
		audit:       audit,
		logger:      logger,
	}
}

// Register creates an account with a freshly hashed password. Duplicate
// username or email surfaces as store.ErrConflict from the repository's
// uniqueness mapping, so concurrent registrations race safely.
func (s *UserService) Register(ctx context.Context, username, email, password, role string) (types.User, error) {
	if role == "" {
		role = types.RoleStudent
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
	})
}

// Login runs the first authentication step. Unknown username and wrong
// password both yield ErrInvalidCredentials. Accounts with MFA enabled get
// a pending result instead of a token.
func (s *UserService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		// Burn a verify on a miss so the two failure paths cost the same.
		crypto.VerifyPassword(password, "")
		s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventLoginFailed, Username: username})
		return LoginResult{}, ErrInvalidCredentials
	}

	if !crypto.VerifyPassword(password, user.PasswordHash) {
		s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventLoginFailed, UserID: user.ID, Username: username})
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		return LoginResult{MFARequired: true, UserID: user.ID, Role: user.Role}, nil
	}

	signed, err := s.issuer.Issue(user.ID, user.Role, user.Username, false)
	if err != nil {
		return LoginResult{}, err
	}

	s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventLogin, UserID: user.ID, Username: user.Username})
	return LoginResult{UserID: user.ID, Token: signed, Role: user.Role}, nil
}

// VerifyMFA runs the second authentication step for a pending login. It
// re-loads the user and verifies the code against the stored secret; the
// issued token carries mfa_enabled=true. Failure is retryable.
func (s *UserService) VerifyMFA(ctx context.Context, userID int, code string) (LoginResult, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return LoginResult{}, ErrInvalidMFACode
	}

	if user.MFASecret == "" || !s.totp.VerifyCode(user.MFASecret, code) {
		s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventLoginFailed, UserID: user.ID, Username: user.Username,
			Detail: map[string]string{"stage": "mfa"}})
		return LoginResult{}, ErrInvalidMFACode
	}

	signed, err := s.issuer.Issue(user.ID, user.Role, user.Username, true)
	if err != nil {
		return LoginResult{}, err
	}

	s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventLogin, UserID: user.ID, Username: user.Username,
		Detail: map[string]string{"mfa": "true"}})
	return LoginResult{UserID: user.ID, Token: signed, Role: user.Role}, nil
}

// BeginMFAEnrollment generates a candidate secret and QR code for the user
// to scan. The secret is not persisted yet.
func (s *UserService) BeginMFAEnrollment(ctx context.Context, userID int) (MFAEnrollment, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return MFAEnrollment{}, err
	}

	secret, err := s.totp.GenerateSecret(user.Username)
	if err != nil {
		return MFAEnrollment{}, err
	}

	qr, err := totp.RenderQRCode(secret.ProvisioningURI)
	if err != nil {
		return MFAEnrollment{}, err
	}

	return MFAEnrollment{
		Secret:          secret.Base32,
		ProvisioningURI: secret.ProvisioningURI,
		QRCode:          qr,
	}, nil
}

// CompleteMFAEnrollment verifies the code against the candidate secret and,
// on success, persists it and enables the MFA gate. A fresh token with
// mfa_enabled=true is issued; tokens issued before enrollment are stale for
// MFA-gated authorization and callers must switch to the new one.
func (s *UserService) CompleteMFAEnrollment(ctx context.Context, userID int, secret, code string) (string, error) {
	if !s.totp.VerifyCode(secret, code) {
		return "", ErrInvalidMFACode
	}

	user, err := s.repo.SetMFA(ctx, userID, secret, true)
	if err != nil {
		return "", err
	}

	signed, err := s.issuer.Issue(user.ID, user.Role, user.Username, true)
	if err != nil {
		return "", err
	}

	s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventMFAEnrolled, UserID: user.ID, Username: user.Username})
	return signed, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all users. Callers gate this behind the admin role.
func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

// Delete removes a user and everything hanging off the account.
// Self-deletion is forbidden. Submission rows are removed first — both the
// target's own uploads and every upload under assignments the target
// created — so the assignments cascade fired by the user row delete never
// hits a referenced submission. Blob cleanup is best effort.
func (s *UserService) Delete(ctx context.Context, requesterID, targetID int) error {
	if requesterID == targetID {
		return ErrSelfDelete
	}

	if _, err := s.repo.GetByID(ctx, targetID); err != nil {
		return err
	}

	authored, err := s.submissions.DeleteForStudent(ctx, targetID)
	if err != nil {
		return err
	}
	received, err := s.submissions.DeleteForCreator(ctx, targetID)
	if err != nil {
		return err
	}
	for _, key := range append(authored, received...) {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("orphaned submission blob", "object_key", key, "err", err)
		}
	}

	if err := s.repo.Delete(ctx, targetID); err != nil {
		return err
	}

	s.audit.Publish(ctx, mq.AuditEvent{Type: mq.EventUserDeleted, UserID: requesterID,
		Detail: map[string]string{
			"deleted_user_id":     strconv.Itoa(targetID),
			"submissions_deleted": strconv.Itoa(len(authored) + len(received)),
		}})
	return nil
}

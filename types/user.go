package types

import "time"

// Roles supported by the platform. Access control decisions key on these
// values; they are stored verbatim on the user record and inside session
// token claims.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// ValidRole reports whether role is one of the supported role values.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// User represents an account in the system.
// It contains identity, role, MFA state, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level within the system.
	// One of "admin", "teacher", or "student".
	Role string `json:"role" db:"role"`

	// PasswordHash stores the bcrypt digest of the user's password,
	// salt included. This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// MFASecret is the base32-encoded TOTP secret. It is empty until the
	// user completes MFA enrollment and is never exposed in API responses.
	MFASecret string `json:"-" db:"mfa_secret"`

	// MFAEnabled indicates whether the user must present a TOTP code
	// during login before a session token is issued.
	MFAEnabled bool `json:"mfa_enabled" db:"mfa_enabled"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

package services

import "errors"

// Policy and validation errors. These are expected, recoverable-by-the-caller
// conditions; handlers map them to structured responses without internals.
var (
	// ErrInvalidCredentials covers both unknown username and wrong
	// password. It is deliberately generic to prevent user enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidMFACode is returned when a TOTP code does not verify.
	ErrInvalidMFACode = errors.New("invalid mfa code")

	// ErrForbidden is returned when a role or ownership check fails.
	ErrForbidden = errors.New("forbidden")

	// ErrSelfDelete is returned when an admin attempts to delete their
	// own account.
	ErrSelfDelete = errors.New("cannot delete yourself")

	// ErrDeadlinePassed is returned when a submission arrives after the
	// assignment deadline.
	ErrDeadlinePassed = errors.New("submission deadline has passed")

	// ErrQuotaExceeded is returned when the attempt quota for an
	// (assignment, student) pair is already exhausted.
	ErrQuotaExceeded = errors.New("maximum submission attempts reached")

	// ErrEmptyPayload is returned when a submission carries no file bytes.
	ErrEmptyPayload = errors.New("no file uploaded")

	// ErrFileNotFound is returned when a submission record exists but its
	// ciphertext blob is missing from object storage.
	ErrFileNotFound = errors.New("file not found in storage")
)

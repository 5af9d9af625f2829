// Package totp provides TOTP secret provisioning and time-windowed code
// verification for the MFA login step.
package totp

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// period is the TOTP time step in seconds.
	period = 30

	// windowSteps is the number of adjacent time steps accepted on either
	// side of the current one, to tolerate clock drift.
	windowSteps = 2

	qrImageSize = 200
)

// Secret is a freshly generated TOTP secret together with its provisioning
// URI. Neither is persisted until enrollment completes.
type Secret struct {
	// Base32 is the shared secret in base32 encoding.
	Base32 string

	// ProvisioningURI is the otpauth:// URL an authenticator app consumes.
	ProvisioningURI string
}

// Service issues and verifies TOTP codes.
type Service struct {
	issuer string
}

// NewService constructs a Service with the given issuer label.
func NewService(issuer string) *Service {
	return &Service{issuer: issuer}
}

// GenerateSecret creates a cryptographically random secret labeled for the
// given account.
func (s *Service) GenerateSecret(accountName string) (Secret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      period,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return Secret{}, err
	}
	return Secret{
		Base32:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// RenderQRCode renders a provisioning URI as a PNG data URI suitable for an
// <img> tag. Pure rendering, no side effects.
func RenderQRCode(provisioningURI string) (string, error) {
	key, err := otp.NewKeyFromURL(provisioningURI)
	if err != nil {
		return "", err
	}
	img, err := key.Image(qrImageSize, qrImageSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// VerifyCode reports whether code is valid for secret within the drift
// window. A malformed secret yields false, never an error.
func (s *Service) VerifyCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period: period,
		Skew:   windowSteps,
		Digits: otp.DigitsSix,
	})
	return err == nil && ok
}

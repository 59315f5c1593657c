package auth

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod     = 30
	totpSecretSize = 32
	// Codes within one skew step of the current one are accepted; a code
	// reused inside this window is a replay.
	totpReplayWindow = 90 * time.Second
)

// TOTPManager generates and validates time-based one-time-password secrets
// for the MFA challenge exchange.
type TOTPManager struct {
	issuer string
}

// NewTOTPManager creates a TOTP manager. The issuer names this deployment
// in authenticator apps.
func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{issuer: issuer}
}

// Enrollment is the provisioning material handed to a user at setup time.
type Enrollment struct {
	Secret    string // base32, stored server-side
	URL       string // otpauth:// provisioning URI
	QRDataURL string // PNG data URL of the provisioning QR code
}

// GenerateEnrollment creates a fresh secret and its provisioning QR code.
func (tm *TOTPManager) GenerateEnrollment(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp key: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create qr code: %w", err)
	}
	png, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	return &Enrollment{
		Secret:    key.Secret(),
		URL:       key.URL(),
		QRDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// ValidateCode checks a submitted code against the stored secret, allowing
// one time step of clock drift. lastUsedAt enables replay rejection.
func (tm *TOTPManager) ValidateCode(secret, code string, lastUsedAt *time.Time) (bool, error) {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate totp code: %w", err)
	}
	if !valid {
		return false, nil
	}

	if lastUsedAt != nil && time.Since(*lastUsedAt) < totpReplayWindow {
		return false, fmt.Errorf("code replay detected")
	}
	return true, nil
}

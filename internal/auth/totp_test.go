package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTOTPManager_GenerateEnrollment(t *testing.T) {
	tm := NewTOTPManager("Gatehouse")

	enrollment, err := tm.GenerateEnrollment("user@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.URL, "otpauth://totp/")
	assert.Contains(t, enrollment.URL, "Gatehouse")
}

func TestTOTPManager_GenerateEnrollment_QRCodeFormat(t *testing.T) {
	tm := NewTOTPManager("Gatehouse")

	enrollment, err := tm.GenerateEnrollment("user@example.com")
	require.NoError(t, err)

	// QR code should be a data URL
	require.True(t, strings.HasPrefix(enrollment.QRDataURL, "data:image/png;base64,"))

	// Extract and decode base64 part
	dataURL := enrollment.QRDataURL[len("data:image/png;base64,"):]
	pngData, err := base64.StdEncoding.DecodeString(dataURL)
	assert.NoError(t, err)
	assert.Greater(t, len(pngData), 0)

	// PNG signature: 137 80 78 71
	assert.Equal(t, byte(137), pngData[0])
	assert.Equal(t, byte(80), pngData[1])
	assert.Equal(t, byte(78), pngData[2])
	assert.Equal(t, byte(71), pngData[3])
}

func TestTOTPManager_ValidateCode_ValidCode(t *testing.T) {
	tm := NewTOTPManager("Gatehouse")

	enrollment, err := tm.GenerateEnrollment("user@example.com")
	require.NoError(t, err)

	validCode, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	valid, err := tm.ValidateCode(enrollment.Secret, validCode, nil)
	assert.NoError(t, err)
	assert.True(t, valid)
}

func TestTOTPManager_ValidateCode_SkewTolerance(t *testing.T) {
	tm := NewTOTPManager("Gatehouse")

	enrollment, err := tm.GenerateEnrollment("user@example.com")
	require.NoError(t, err)

	// Codes from one time step away should be accepted
	for _, offset := range []time.Duration{-30 * time.Second, 30 * time.Second} {
		code, err := totp.GenerateCode(enrollment.Secret, time.Now().Add(offset))
		require.NoError(t, err)

		valid, err := tm.ValidateCode(enrollment.Secret, code, nil)
		assert.NoError(t, err)
		assert.True(t, valid, "code with %v offset should validate", offset)
	}
}

func TestTOTPManager_ValidateCode_InvalidCode(t *testing.T) {
	tm := NewTOTPManager("Gatehouse")

	enrollment, err := tm.GenerateEnrollment("user@example.com")
	require.NoError(t, err)

	valid, err := tm.ValidateCode(enrollment.Secret, "000000", nil)
	assert.NoError(t, err)
	assert.False(t, valid)
}

func TestTOTPManager_ValidateCode_ReplayRejected(t *testing.T) {
	tm := NewTOTPManager("Gatehouse")

	enrollment, err := tm.GenerateEnrollment("user@example.com")
	require.NoError(t, err)

	validCode, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	// First use succeeds
	valid, err := tm.ValidateCode(enrollment.Secret, validCode, nil)
	require.NoError(t, err)
	assert.True(t, valid)

	// Same code reused inside the replay window fails
	lastUsedAt := time.Now().Add(-30 * time.Second)
	valid, err = tm.ValidateCode(enrollment.Secret, validCode, &lastUsedAt)
	assert.Error(t, err)
	assert.False(t, valid)
	assert.Contains(t, err.Error(), "replay")
}

func TestTOTPManager_ValidateCode_ExpiredCode(t *testing.T) {
	tm := NewTOTPManager("Gatehouse")

	enrollment, err := tm.GenerateEnrollment("user@example.com")
	require.NoError(t, err)

	// Outside the skew window entirely
	expiredCode, err := totp.GenerateCode(enrollment.Secret, time.Now().Add(-3*time.Minute))
	require.NoError(t, err)

	valid, err := tm.ValidateCode(enrollment.Secret, expiredCode, nil)
	assert.NoError(t, err)
	assert.False(t, valid)
}

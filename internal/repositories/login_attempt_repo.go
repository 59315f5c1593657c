package repositories

import (
	"context"
	"time"

	"github.com/gatehouselabs/gatehouse/internal/database"
	"github.com/gatehouselabs/gatehouse/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository persists the attempt trail behind the in-memory
// rate limiter. Nothing in the login decision path reads from it; it serves
// dashboards and forensics.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt records a login attempt in the database
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, ip_address, user_agent, success, stage, failure_reason, device_fingerprint, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.Stage,
		attempt.FailureReason,
		attempt.DeviceFingerprint,
		attempt.ExpiresAt,
	)

	return database.MapPostgresError(err)
}

// GetFailedAttemptCount returns the number of failed attempts for an email within a time window
func (r *LoginAttemptRepository) GetFailedAttemptCount(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, err
}

// GetFailedAttemptCountByIP returns the number of failed attempts from an IP within a time window
func (r *LoginAttemptRepository) GetFailedAttemptCountByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, since).Scan(&count)
	return count, err
}

// GetFailedAttemptCountByDevice returns the number of failed attempts from a device within a time window
func (r *LoginAttemptRepository) GetFailedAttemptCountByDevice(ctx context.Context, fingerprint string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE device_fingerprint = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, fingerprint, since).Scan(&count)
	return count, err
}

// GetRecentAttempts returns the newest attempts for an email, most recent first.
func (r *LoginAttemptRepository) GetRecentAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, email, ip_address, user_agent, attempt_time, success, stage, failure_reason, device_fingerprint, expires_at
		FROM login_attempts
		WHERE email = $1
		ORDER BY attempt_time DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var attempts []*models.LoginAttempt
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(
			&a.ID,
			&a.Email,
			&a.IPAddress,
			&a.UserAgent,
			&a.AttemptTime,
			&a.Success,
			&a.Stage,
			&a.FailureReason,
			&a.DeviceFingerprint,
			&a.ExpiresAt,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

// GetLastSuccessTime returns the timestamp of the most recent successful login for an email
func (r *LoginAttemptRepository) GetLastSuccessTime(ctx context.Context, email string) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM login_attempts
		WHERE email = $1 AND success = true
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	var successTime time.Time
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(&successTime)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &successTime, nil
}

// DeleteExpiredAttempts removes login attempts older than their retention
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context) error {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`
	_, err := r.db.Pool.Exec(ctx, query)
	return err
}

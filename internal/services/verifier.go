package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/gatehouselabs/gatehouse/internal/models"
	pkgauth "github.com/gatehouselabs/gatehouse/pkg/auth"
)

// VerifyOutcome is the credential backend's answer. A false Success with a
// nil error means the credentials were rejected; a non-nil error means the
// backend could not be consulted at all.
type VerifyOutcome struct {
	Success      bool         `json:"success"`
	User         *models.User `json:"user,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// CredentialVerifier is the opaque, possibly slow, fallible remote call
// that actually checks a password. The orchestrator never sees hashes.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (*VerifyOutcome, error)
}

// MFAPolicy decides whether a verified login must complete a second factor.
// The policy itself is external; the orchestrator only reacts to the bool.
type MFAPolicy interface {
	RequiresMFA(ctx context.Context, user *models.User) (bool, error)
}

// HTTPVerifier calls a remote credential verification backend over JSON.
type HTTPVerifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPVerifier creates an HTTPVerifier. Timeouts are enforced by the
// caller's context, not the client, so the orchestrator owns the bound.
func NewHTTPVerifier(endpoint string, client *http.Client) *HTTPVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPVerifier{endpoint: endpoint, client: client}
}

type verifyRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Verify posts the credentials and decodes the backend's outcome.
func (v *HTTPVerifier) Verify(ctx context.Context, email, password string) (*VerifyOutcome, error) {
	body, err := json.Marshal(verifyRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("verify backend returned status %d", resp.StatusCode)
	}

	var outcome VerifyOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	return &outcome, nil
}

// BcryptVerifier checks credentials against an in-process user table with
// bcrypt hashes. It serves development and test deployments where no remote
// backend exists.
type BcryptVerifier struct {
	mu    sync.RWMutex
	users map[string]*localUser // keyed by email
}

type localUser struct {
	id           string
	name         string
	passwordHash string
}

// NewBcryptVerifier creates an empty BcryptVerifier.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{users: make(map[string]*localUser)}
}

// AddUser registers a user with a freshly hashed password.
func (v *BcryptVerifier) AddUser(email, name, password string) error {
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.users[email] = &localUser{
		id:           uuid.New().String(),
		name:         name,
		passwordHash: hash,
	}
	v.mu.Unlock()
	return nil
}

// Verify compares against the stored hash. Unknown emails and wrong
// passwords produce the same rejection message.
func (v *BcryptVerifier) Verify(ctx context.Context, email, password string) (*VerifyOutcome, error) {
	v.mu.RLock()
	user, ok := v.users[email]
	v.mu.RUnlock()

	if !ok || pkgauth.ComparePassword(user.passwordHash, password) != nil {
		return &VerifyOutcome{Success: false, ErrorMessage: "Invalid credentials"}, nil
	}

	return &VerifyOutcome{
		Success: true,
		User:    &models.User{ID: user.id, Email: email, Name: user.name},
	}, nil
}

// StaticMFAPolicy requires a second factor for a fixed set of users, or for
// everyone when all is set.
type StaticMFAPolicy struct {
	all     bool
	userIDs map[string]bool
}

// NewStaticMFAPolicy creates a policy covering the given user IDs.
func NewStaticMFAPolicy(all bool, userIDs ...string) *StaticMFAPolicy {
	ids := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		ids[id] = true
	}
	return &StaticMFAPolicy{all: all, userIDs: ids}
}

func (p *StaticMFAPolicy) RequiresMFA(ctx context.Context, user *models.User) (bool, error) {
	if p.all {
		return true, nil
	}
	return p.userIDs[user.ID], nil
}

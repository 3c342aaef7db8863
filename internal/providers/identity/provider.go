package identity

import (
	"context"
	"errors"
)

// User is the subset of the identity provider profile the core reads.
type User struct {
	ID          string         `json:"user_id"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
}

//go:generate mockgen -source=provider.go -destination=./mocks/mock_provider.go -package=mocks
type Provider interface {
	UpdateAppMetadata(ctx context.Context, userID string, metadata map[string]any) error
	GetUser(ctx context.Context, userID string) (User, error)
}

var (
	ErrUserNotFound = errors.New("identity_user_not_found")
	ErrUnavailable  = errors.New("identity_unavailable")
)

// NoOpProvider is used when no identity management API is configured.
type NoOpProvider struct{}

func (p *NoOpProvider) UpdateAppMetadata(ctx context.Context, userID string, metadata map[string]any) error {
	return nil
}

func (p *NoOpProvider) GetUser(ctx context.Context, userID string) (User, error) {
	return User{}, ErrUserNotFound
}

// Package memory provides in-process repositories for development and tests.
// They enforce the same unique constraints as the Mongo collections.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
)

const credentialsCollection = "credentials"

// CredentialRepository is a map-backed domain.CredentialRepository.
type CredentialRepository struct {
	mu          sync.RWMutex
	credentials map[string]*domain.Credential
}

var _ domain.CredentialRepository = (*CredentialRepository)(nil)

func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{credentials: map[string]*domain.Credential{}}
}

func (r *CredentialRepository) Create(_ context.Context, credential *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.credentials {
		if c.UserID == credential.UserID && c.Module == credential.Module && c.ExternalID == credential.ExternalID {
			return &domain.DuplicateError{Collection: credentialsCollection}
		}
	}
	if credential.ID == "" {
		credential.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	credential.CreatedAt = now
	credential.UpdatedAt = now

	stored := *credential
	r.credentials[credential.ID] = &stored
	return nil
}

func (r *CredentialRepository) GetByID(_ context.Context, id string) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.credentials[id]
	if !ok {
		return nil, ferrors.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *CredentialRepository) Find(_ context.Context, f domain.CredentialFilter) ([]*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Credential
	for _, c := range r.credentials {
		if f.UserID != "" && c.UserID != f.UserID {
			continue
		}
		if f.Module != "" && c.Module != f.Module {
			continue
		}
		if f.ExternalID != "" && c.ExternalID != f.ExternalID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *CredentialRepository) Update(_ context.Context, id string, u domain.CredentialUpdate) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.credentials[id]
	if !ok {
		return nil, ferrors.ErrNotFound
	}
	if u.AccessToken != nil {
		c.AccessToken = *u.AccessToken
	}
	if u.RefreshToken != nil {
		c.RefreshToken = *u.RefreshToken
	}
	if u.AccessTokenExpire != nil {
		t := *u.AccessTokenExpire
		c.AccessTokenExpire = &t
	}
	if u.RefreshTokenExpire != nil {
		t := *u.RefreshTokenExpire
		c.RefreshTokenExpire = &t
	}
	if u.ExternalID != nil {
		c.ExternalID = *u.ExternalID
	}
	if u.AuthIsValid != nil {
		c.AuthIsValid = *u.AuthIsValid
	}
	c.UpdatedAt = time.Now().UTC()

	out := *c
	return &out, nil
}

func (r *CredentialRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.credentials[id]; !ok {
		return ferrors.ErrNotFound
	}
	delete(r.credentials, id)
	return nil
}

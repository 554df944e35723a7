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

const entitiesCollection = "entities"

// EntityRepository is a map-backed domain.EntityRepository.
type EntityRepository struct {
	mu       sync.RWMutex
	entities map[string]*domain.Entity
}

var _ domain.EntityRepository = (*EntityRepository)(nil)

func NewEntityRepository() *EntityRepository {
	return &EntityRepository{entities: map[string]*domain.Entity{}}
}

func (r *EntityRepository) Create(_ context.Context, entity *domain.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entities {
		if e.UserID == entity.UserID && e.Module == entity.Module && e.ExternalID == entity.ExternalID {
			return &domain.DuplicateError{Collection: entitiesCollection}
		}
	}
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entity.CreatedAt = now
	entity.UpdatedAt = now

	stored := *entity
	r.entities[entity.ID] = &stored
	return nil
}

func (r *EntityRepository) GetByID(_ context.Context, id string) (*domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[id]
	if !ok {
		return nil, ferrors.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (r *EntityRepository) Find(_ context.Context, f domain.EntityFilter) ([]*domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Entity
	for _, e := range r.entities {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Module != "" && e.Module != f.Module {
			continue
		}
		if f.ExternalID != "" && e.ExternalID != f.ExternalID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *EntityRepository) update(id string, fn func(*domain.Entity)) (*domain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[id]
	if !ok {
		return nil, ferrors.ErrNotFound
	}
	fn(e)
	e.UpdatedAt = time.Now().UTC()
	out := *e
	return &out, nil
}

func (r *EntityRepository) SetCredential(_ context.Context, id, credentialID string) (*domain.Entity, error) {
	return r.update(id, func(e *domain.Entity) { e.CredentialID = credentialID })
}

func (r *EntityRepository) UpdateName(_ context.Context, id, name string) (*domain.Entity, error) {
	return r.update(id, func(e *domain.Entity) { e.Name = name })
}

func (r *EntityRepository) UnsetCredential(_ context.Context, credentialID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entities {
		if e.CredentialID == credentialID {
			e.CredentialID = ""
			e.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (r *EntityRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[id]; !ok {
		return ferrors.ErrNotFound
	}
	delete(r.entities, id)
	return nil
}

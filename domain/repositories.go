package domain

import "context"

// CredentialRepository persists credentials. Implementations return
// errors.ErrNotFound for missing ids.
//
//go:generate go run go.uber.org/mock/mockgen -source=$GOFILE -destination=mocks/mock_$GOFILE -package=mock_$GOPACKAGE
type CredentialRepository interface {
	Create(ctx context.Context, credential *Credential) error
	GetByID(ctx context.Context, id string) (*Credential, error)
	Find(ctx context.Context, filter CredentialFilter) ([]*Credential, error)
	Update(ctx context.Context, id string, update CredentialUpdate) (*Credential, error)
	Delete(ctx context.Context, id string) error
}

// EntityRepository persists entities. Create returns a *DuplicateError when
// the (user, module, external id) triple is already taken.
type EntityRepository interface {
	Create(ctx context.Context, entity *Entity) error
	GetByID(ctx context.Context, id string) (*Entity, error)
	Find(ctx context.Context, filter EntityFilter) ([]*Entity, error)
	SetCredential(ctx context.Context, id, credentialID string) (*Entity, error)
	UpdateName(ctx context.Context, id, name string) (*Entity, error)
	UnsetCredential(ctx context.Context, credentialID string) error
	Delete(ctx context.Context, id string) error
}

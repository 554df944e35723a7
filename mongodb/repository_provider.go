package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/frigg/domain"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// RepositoryProvider bundles the Mongo-backed repositories of one database.
type RepositoryProvider struct {
	db          *mongo.Database
	credentials *CredentialRepositoryMongo
	entities    *EntityRepositoryMongo
}

// NewRepositoryProvider creates the repositories and ensures their indexes.
func NewRepositoryProvider(ctx context.Context, db *mongo.Database, cryptor FieldCryptor) (*RepositoryProvider, error) {
	if db == nil {
		return nil, errors.New("mongo database must be provided")
	}

	credentials, err := NewCredentialRepositoryMongo(ctx, db, cryptor)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential repository: %w", err)
	}
	entities, err := NewEntityRepositoryMongo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity repository: %w", err)
	}

	return &RepositoryProvider{
		db:          db,
		credentials: credentials,
		entities:    entities,
	}, nil
}

func (p *RepositoryProvider) CredentialRepository() domain.CredentialRepository {
	return p.credentials
}

func (p *RepositoryProvider) EntityRepository() domain.EntityRepository {
	return p.entities
}

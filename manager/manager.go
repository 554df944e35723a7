package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/frigg/cache"
	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/pilab-dev/frigg/internal/audit"
	"github.com/pilab-dev/frigg/internal/metrics"
	"github.com/pilab-dev/frigg/log"
	"github.com/pilab-dev/frigg/requester"
	"github.com/pilab-dev/frigg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options selects what a Manager is built around.
type Options struct {
	UserID string
	// EntityID loads the entity and its credential.
	EntityID string
	// CredentialID loads only the credential.
	CredentialID string

	Credentials domain.CredentialRepository
	Entities    domain.EntityRepository
	// States enables state issuing and validation when set.
	States cache.StateStore
	Logger log.Logger
}

// Manager orchestrates one user's connection to one module. It is scoped to
// a single request and is not safe for concurrent use.
type Manager struct {
	module      Module
	api         API
	userID      string
	entity      *domain.Entity
	credential  *domain.Credential
	state       State
	credentials domain.CredentialRepository
	entities    domain.EntityRepository
	states      cache.StateStore
	logger      log.Logger
}

var _ requester.Delegate = (*Manager)(nil)

// New builds a Manager. With EntityID the entity and its credential are
// loaded and the client is seeded with the stored tokens; with CredentialID
// only the credential is loaded; otherwise the client starts unauthenticated.
func New(ctx context.Context, module Module, opts Options) (*Manager, error) {
	if opts.Credentials == nil || opts.Entities == nil {
		return nil, errors.New("manager requires credential and entity repositories")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	m := &Manager{
		module:      module,
		userID:      opts.UserID,
		credentials: opts.Credentials,
		entities:    opts.Entities,
		states:      opts.States,
		logger:      logger.With(map[string]interface{}{"module": module.Name()}),
	}

	credentialID := opts.CredentialID
	if opts.EntityID != "" {
		entity, err := m.entities.GetByID(ctx, opts.EntityID)
		if err != nil {
			return nil, fmt.Errorf("load entity %s: %w", opts.EntityID, err)
		}
		if entity.Module != module.Name() || (m.userID != "" && entity.UserID != m.userID) {
			return nil, fmt.Errorf("load entity %s: %w", opts.EntityID, ferrors.ErrNotFound)
		}
		m.entity = entity
		m.userID = entity.UserID
		credentialID = entity.CredentialID
	}

	if credentialID != "" {
		credential, err := m.credentials.GetByID(ctx, credentialID)
		switch {
		case err == nil:
			m.credential = credential
			if m.userID == "" {
				m.userID = credential.UserID
			}
		case errors.Is(err, ferrors.ErrNotFound) && opts.EntityID != "":
			m.logger.Warn(ctx, "entity references a missing credential", map[string]interface{}{
				"entity_id": opts.EntityID, "credential_id": credentialID,
			})
		default:
			return nil, fmt.Errorf("load credential %s: %w", credentialID, err)
		}
	}

	var tokens *requester.Tokens
	if m.credential != nil {
		tokens = &requester.Tokens{
			AccessToken:        m.credential.AccessToken,
			RefreshToken:       m.credential.RefreshToken,
			AccessTokenExpire:  m.credential.AccessTokenExpire,
			RefreshTokenExpire: m.credential.RefreshTokenExpire,
			ExternalID:         m.credential.ExternalID,
		}
		if m.credential.AuthIsValid {
			m.state = StateAuthenticated
		}
	}
	m.api = module.NewAPI(tokens, m)

	return m, nil
}

// Name returns the module name.
func (m *Manager) Name() string { return m.module.Name() }

// API returns the current client.
func (m *Manager) API() API { return m.api }

// UserID returns the user the Manager acts for.
func (m *Manager) UserID() string { return m.userID }

// Entity returns the loaded or created entity, if any.
func (m *Manager) Entity() *domain.Entity { return m.entity }

// Credential returns the current credential, if any.
func (m *Manager) Credential() *domain.Credential { return m.credential }

// State returns the lifecycle state.
func (m *Manager) State() State { return m.state }

func (m *Manager) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracing.Tracer.Start(ctx, "manager."+op, trace.WithAttributes(
		attribute.String("frigg.module", m.module.Name()),
		attribute.String("frigg.user_id", m.userID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetAuthorizationRequirements returns where to send the user. When a state
// store is configured a fresh state bound to the user and module is issued.
func (m *Manager) GetAuthorizationRequirements(ctx context.Context) (req *domain.AuthorizationRequirements, err error) {
	ctx, span := m.startSpan(ctx, "GetAuthorizationRequirements")
	defer func() { endSpan(span, err) }()

	var state string
	if m.states != nil {
		state, err = m.states.Issue(ctx, cache.StateEntry{UserID: m.userID, Module: m.module.Name()})
		if err != nil {
			return nil, fmt.Errorf("issue state: %w", err)
		}
		m.api.SetState(state)
	}

	m.state = StateAuthorizationRequested
	return &domain.AuthorizationRequirements{
		URL:   m.api.AuthorizationURL(),
		Type:  domain.AuthTypeOAuth2,
		State: state,
	}, nil
}

// ValidateAuthorizationRequirements reports false when a redirect-based
// requirement has no URL.
func (m *Manager) ValidateAuthorizationRequirements(ctx context.Context) (bool, error) {
	req, err := m.GetAuthorizationRequirements(ctx)
	if err != nil {
		return false, err
	}
	if (req.Type == domain.AuthTypeOAuth1 || req.Type == domain.AuthTypeOAuth2) && req.URL == "" {
		return false, nil
	}
	return true, nil
}

// TestAuth reports whether the client can make an authenticated request.
func (m *Manager) TestAuth(ctx context.Context) bool {
	if err := m.api.TestAuth(ctx); err != nil {
		m.logger.Debug(ctx, "auth test failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}

// CheckUserAuthorized reports whether the client holds usable tokens.
func (m *Manager) CheckUserAuthorized() bool {
	if m.credential != nil && !m.credential.AuthIsValid {
		return false
	}
	return m.api.IsAuthenticated()
}

// ProcessAuthorizationCallback completes the authorization: it validates
// the state, exchanges the code, tests the tokens and links the entity.
func (m *Manager) ProcessAuthorizationCallback(ctx context.Context, params domain.CallbackParams) (result *domain.AuthorizationResult, err error) {
	ctx, span := m.startSpan(ctx, "ProcessAuthorizationCallback")
	defer func() {
		outcome := metrics.ResultSuccess
		if err != nil {
			outcome = metrics.ResultFailure
		}
		metrics.AuthorizationsTotal.WithLabelValues(m.module.Name(), outcome).Inc()
		target := ""
		if result != nil {
			target = result.EntityID
		}
		audit.Log(m.module.Name(), audit.ActionAuthorize, m.userID, target, err)
		endSpan(span, err)
	}()

	if err := m.consumeState(ctx, params.Get("state")); err != nil {
		return nil, err
	}
	if m.userID == "" {
		return nil, errors.New("authorization callback requires a user id")
	}

	if err := m.api.ExchangeCode(ctx, params); err != nil {
		m.logger.Warn(ctx, "code exchange failed", map[string]interface{}{"error": err.Error()})
		return nil, ferrors.NewAuthError(m.module.Name(), ferrors.ErrAuthorizationFailed, err)
	}
	if m.credential == nil {
		return nil, ferrors.NewAuthError(m.module.Name(), ferrors.ErrAuthorizationFailed,
			errors.New("no credential was stored for the exchanged tokens"))
	}
	if !m.TestAuth(ctx) {
		return nil, ferrors.NewAuthError(m.module.Name(), ferrors.ErrAuthorizationFailed, nil)
	}

	details, err := m.api.EntityDetails(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetch entity details: %w", err)
	}
	entity, err := m.FindOrCreateEntity(ctx, details)
	if err != nil {
		return nil, err
	}

	m.state = StateAuthenticated
	m.logger.Info(ctx, "authorization completed", map[string]interface{}{
		"user_id": m.userID, "entity_id": entity.ID, "credential_id": m.credential.ID,
	})
	return &domain.AuthorizationResult{
		EntityID:     entity.ID,
		CredentialID: m.credential.ID,
		Type:         m.module.Name(),
	}, nil
}

func (m *Manager) consumeState(ctx context.Context, state string) error {
	if m.states == nil {
		return nil
	}
	if state == "" {
		return ferrors.ErrInvalidState
	}
	entry, err := m.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, cache.ErrStateNotFound) {
			return ferrors.ErrInvalidState
		}
		return fmt.Errorf("consume state: %w", err)
	}
	if entry.Module != m.module.Name() || (m.userID != "" && entry.UserID != m.userID) {
		m.logger.Warn(ctx, "state issued for a different user or module", map[string]interface{}{
			"user_id": m.userID, "state_user_id": entry.UserID, "state_module": entry.Module,
		})
		return ferrors.ErrInvalidState
	}
	if m.userID == "" {
		m.userID = entry.UserID
	}
	return nil
}

// FindOrCreateEntity links the external account to the user. An existing
// entity is reused, relinked to the current credential and renamed.
func (m *Manager) FindOrCreateEntity(ctx context.Context, details *domain.EntityDetails) (entity *domain.Entity, err error) {
	ctx, span := m.startSpan(ctx, "FindOrCreateEntity")
	defer func() { endSpan(span, err) }()

	if details == nil || details.ExternalID == "" {
		return nil, errors.New("entity details must carry an external id")
	}
	filter := domain.EntityFilter{UserID: m.userID, Module: m.module.Name(), ExternalID: details.ExternalID}

	found, err := m.entities.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find entities: %w", err)
	}

	if len(found) == 0 {
		entity = &domain.Entity{
			UserID:     m.userID,
			Module:     m.module.Name(),
			ExternalID: details.ExternalID,
			Name:       details.Name,
		}
		if m.credential != nil {
			entity.CredentialID = m.credential.ID
		}
		err = m.entities.Create(ctx, entity)
		if err == nil {
			m.entity = entity
			return entity, nil
		}
		var dup *domain.DuplicateError
		if !errors.As(err, &dup) {
			return nil, fmt.Errorf("create entity: %w", err)
		}
		// lost the race to a concurrent callback; reuse the winner
		if found, err = m.entities.Find(ctx, filter); err != nil {
			return nil, fmt.Errorf("find entities: %w", err)
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("create entity: %w", dup)
		}
	}

	if len(found) > 1 {
		return nil, m.conflict(ctx, ferrors.ConflictEntity, details.ExternalID, len(found))
	}

	entity = found[0]
	if m.credential != nil && entity.CredentialID != m.credential.ID {
		if entity, err = m.entities.SetCredential(ctx, entity.ID, m.credential.ID); err != nil {
			return nil, fmt.Errorf("link credential: %w", err)
		}
	}
	if details.Name != "" && entity.Name != details.Name {
		if entity, err = m.entities.UpdateName(ctx, entity.ID, details.Name); err != nil {
			return nil, fmt.Errorf("rename entity: %w", err)
		}
	}
	m.entity = entity
	return entity, nil
}

func (m *Manager) conflict(ctx context.Context, kind ferrors.ConflictKind, externalID string, count int) error {
	cerr := &ferrors.ConflictError{
		Kind:       kind,
		Module:     m.module.Name(),
		UserID:     m.userID,
		ExternalID: externalID,
		Count:      count,
	}
	m.logger.Warn(ctx, cerr.Error(), map[string]interface{}{
		"user_id": m.userID, "kind": string(kind), "count": count,
	})
	metrics.ConflictsTotal.WithLabelValues(m.module.Name(), string(kind)).Inc()
	audit.Log(m.module.Name(), audit.ActionConflictDetected, m.userID, externalID, cerr)
	return cerr
}

// EntityID returns the id of the user's single entity for this module.
func (m *Manager) EntityID(ctx context.Context) (string, error) {
	found, err := m.entities.Find(ctx, domain.EntityFilter{UserID: m.userID, Module: m.module.Name()})
	if err != nil {
		return "", fmt.Errorf("find entities: %w", err)
	}
	switch len(found) {
	case 0:
		return "", ferrors.ErrNotFound
	case 1:
		return found[0].ID, nil
	default:
		return "", m.conflict(ctx, ferrors.ConflictEntity, "", len(found))
	}
}

// GetEntitiesForUser lists the user's entities of module. An empty module
// lists across all modules.
func GetEntitiesForUser(ctx context.Context, repo domain.EntityRepository, module, userID string) ([]*domain.Entity, error) {
	found, err := repo.Find(ctx, domain.EntityFilter{UserID: userID, Module: module})
	if err != nil {
		return nil, fmt.Errorf("find entities: %w", err)
	}
	if found == nil {
		found = []*domain.Entity{}
	}
	return found, nil
}

// Deauthorize drops the client's tokens, deletes the credential and unlinks
// it from the entity.
func (m *Manager) Deauthorize(ctx context.Context) (err error) {
	ctx, span := m.startSpan(ctx, "Deauthorize")
	defer func() { endSpan(span, err) }()

	m.api = m.module.NewAPI(nil, m)

	credentialID := ""
	switch {
	case m.credential != nil:
		credentialID = m.credential.ID
	case m.entity != nil:
		credentialID = m.entity.CredentialID
	}

	if credentialID != "" {
		if err := m.credentials.Delete(ctx, credentialID); err != nil && !errors.Is(err, ferrors.ErrNotFound) {
			return fmt.Errorf("delete credential: %w", err)
		}
		if err := m.entities.UnsetCredential(ctx, credentialID); err != nil {
			return fmt.Errorf("unlink credential: %w", err)
		}
		metrics.DeauthorizationsTotal.WithLabelValues(m.module.Name()).Inc()
		audit.Log(m.module.Name(), audit.ActionDeauthorize, m.userID, credentialID, nil)
		m.logger.Info(ctx, "credential deauthorized", map[string]interface{}{
			"user_id": m.userID, "credential_id": credentialID,
		})
	}
	if m.entity != nil {
		m.entity.CredentialID = ""
	}
	m.credential = nil
	m.state = StateDeauthorized
	return nil
}

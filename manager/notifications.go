package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/pilab-dev/frigg/internal/audit"
	"github.com/pilab-dev/frigg/internal/metrics"
	"github.com/pilab-dev/frigg/requester"
)

// ReceiveNotification handles client lifecycle events.
func (m *Manager) ReceiveNotification(ctx context.Context, notifier requester.Notifier, event requester.Event) error {
	switch event {
	case requester.EventTokenUpdated:
		return m.updateTokens(ctx, notifier.Tokens())
	case requester.EventTokenDeauthorized:
		return m.Deauthorize(ctx)
	case requester.EventInvalidAuth:
		return m.MarkCredentialsInvalid(ctx)
	default:
		m.logger.Warn(ctx, "ignoring unknown client event", map[string]interface{}{"event": event.String()})
		return nil
	}
}

// updateTokens persists tokens into the current credential, creating one
// only when the user has none for this module and external account.
func (m *Manager) updateTokens(ctx context.Context, tokens requester.Tokens) (err error) {
	ctx, span := m.startSpan(ctx, "UpdateTokens")
	defer func() { endSpan(span, err) }()

	if m.userID == "" {
		return ferrors.NewAuthError(m.module.Name(), ferrors.ErrShouldBeAuthenticated,
			errors.New("token update without a user"))
	}

	externalID := ""
	if ci, ok := m.api.(CredentialIdentifier); ok {
		if externalID, err = ci.CredentialExternalID(ctx); err != nil {
			return fmt.Errorf("identify credential: %w", err)
		}
	}

	update := tokenUpdate(tokens, externalID)

	if m.credential != nil && externalID != "" && m.credential.ExternalID != "" && m.credential.ExternalID != externalID {
		// the tokens belong to another account than the loaded credential
		m.logger.Info(ctx, "tokens issued for another account", map[string]interface{}{
			"credential_id": m.credential.ID, "external_id": externalID,
		})
		m.credential = nil
	}

	if m.credential != nil {
		updated, err := m.credentials.Update(ctx, m.credential.ID, update)
		if err == nil {
			m.credential = updated
			metrics.TokenUpdatesTotal.WithLabelValues(m.module.Name()).Inc()
			return nil
		}
		if !errors.Is(err, ferrors.ErrNotFound) {
			return fmt.Errorf("update credential: %w", err)
		}
		m.logger.Warn(ctx, "credential vanished, looking it up again", map[string]interface{}{"credential_id": m.credential.ID})
		m.credential = nil
	}

	credential, err := m.findOrCreateCredential(ctx, tokens, externalID, update)
	if err != nil {
		return err
	}
	m.credential = credential
	metrics.TokenUpdatesTotal.WithLabelValues(m.module.Name()).Inc()
	return nil
}

func (m *Manager) findOrCreateCredential(ctx context.Context, tokens requester.Tokens, externalID string, update domain.CredentialUpdate) (*domain.Credential, error) {
	filter := domain.CredentialFilter{UserID: m.userID, Module: m.module.Name(), ExternalID: externalID}
	found, err := m.credentials.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find credentials: %w", err)
	}

	if len(found) == 0 {
		credential := &domain.Credential{
			UserID:             m.userID,
			Module:             m.module.Name(),
			AccessToken:        tokens.AccessToken,
			RefreshToken:       tokens.RefreshToken,
			AccessTokenExpire:  tokens.AccessTokenExpire,
			RefreshTokenExpire: tokens.RefreshTokenExpire,
			ExternalID:         externalID,
			AuthIsValid:        true,
		}
		err = m.credentials.Create(ctx, credential)
		if err == nil {
			return credential, nil
		}
		var dup *domain.DuplicateError
		if !errors.As(err, &dup) {
			return nil, fmt.Errorf("create credential: %w", err)
		}
		if found, err = m.credentials.Find(ctx, filter); err != nil {
			return nil, fmt.Errorf("find credentials: %w", err)
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("create credential: %w", dup)
		}
	}

	if len(found) > 1 {
		return nil, m.conflict(ctx, ferrors.ConflictCredential, externalID, len(found))
	}

	updated, err := m.credentials.Update(ctx, found[0].ID, update)
	if err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	return updated, nil
}

func tokenUpdate(tokens requester.Tokens, externalID string) domain.CredentialUpdate {
	valid := true
	update := domain.CredentialUpdate{
		AccessToken:        &tokens.AccessToken,
		AccessTokenExpire:  tokens.AccessTokenExpire,
		RefreshTokenExpire: tokens.RefreshTokenExpire,
		AuthIsValid:        &valid,
	}
	if tokens.RefreshToken != "" {
		update.RefreshToken = &tokens.RefreshToken
	}
	if externalID != "" {
		update.ExternalID = &externalID
	}
	return update
}

// MarkCredentialsInvalid flags the user's credential so callers know a
// reauthorization is needed.
func (m *Manager) MarkCredentialsInvalid(ctx context.Context) (err error) {
	ctx, span := m.startSpan(ctx, "MarkCredentialsInvalid")
	defer func() { endSpan(span, err) }()

	credential := m.credential
	if credential == nil {
		externalID := m.api.Tokens().ExternalID
		found, err := m.credentials.Find(ctx, domain.CredentialFilter{
			UserID: m.userID, Module: m.module.Name(), ExternalID: externalID,
		})
		if err != nil {
			return fmt.Errorf("find credentials: %w", err)
		}
		switch {
		case len(found) == 0:
			m.logger.Debug(ctx, "no credential to mark invalid", map[string]interface{}{"user_id": m.userID})
			return nil
		case len(found) == 1:
			credential = found[0]
		case externalID == "":
			// one credential per connected account; without an external id
			// the failing one cannot be told apart
			m.logger.Warn(ctx, "cannot tell which credential to mark invalid", map[string]interface{}{
				"user_id": m.userID, "count": len(found),
			})
			return nil
		default:
			return m.conflict(ctx, ferrors.ConflictCredential, externalID, len(found))
		}
	}

	invalid := false
	updated, err := m.credentials.Update(ctx, credential.ID, domain.CredentialUpdate{AuthIsValid: &invalid})
	if err != nil {
		return fmt.Errorf("mark credential invalid: %w", err)
	}
	m.credential = updated
	metrics.InvalidAuthTotal.WithLabelValues(m.module.Name()).Inc()
	audit.Log(m.module.Name(), audit.ActionInvalidateAuth, m.userID, updated.ID, nil)
	m.logger.Warn(ctx, "credential marked invalid", map[string]interface{}{
		"user_id": m.userID, "credential_id": updated.ID,
	})
	return nil
}

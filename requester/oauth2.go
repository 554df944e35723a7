package requester

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
	"golang.org/x/oauth2"
)

// OAuth2Config describes the client registration at a provider.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	State        string
	AuthURL      string
	TokenURL     string
	// AuthStyle selects how client credentials reach the token endpoint.
	// Zero means form parameters.
	AuthStyle oauth2.AuthStyle
}

// OAuth2Requester is a Requester that authenticates with a bearer token and
// renews it with the refresh token grant.
type OAuth2Requester struct {
	*Requester

	conf   OAuth2Config
	oauth  *oauth2.Config
	tokens Tokens
}

var (
	_ Authenticator = (*OAuth2Requester)(nil)
	_ Notifier      = (*OAuth2Requester)(nil)
)

// NewOAuth2Requester creates a client, seeded with tokens when not nil.
func NewOAuth2Requester(conf OAuth2Config, tokens *Tokens, opts Options) *OAuth2Requester {
	style := conf.AuthStyle
	if style == oauth2.AuthStyleAutoDetect {
		style = oauth2.AuthStyleInParams
	}

	r := &OAuth2Requester{
		Requester: New(opts),
		conf:      conf,
		oauth: &oauth2.Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			RedirectURL:  conf.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   conf.AuthURL,
				TokenURL:  conf.TokenURL,
				AuthStyle: style,
			},
		},
	}
	if tokens != nil {
		r.tokens = *tokens
	}
	r.setAuth(r, r)
	return r
}

// Config returns the registration the client was built with.
func (r *OAuth2Requester) Config() OAuth2Config {
	return r.conf
}

// State returns the opaque state sent with the authorize URL.
func (r *OAuth2Requester) State() string {
	return r.conf.State
}

// SetState sets the state sent with the authorize URL.
func (r *OAuth2Requester) SetState(state string) {
	r.conf.State = state
}

// Tokens returns a copy of the current credential material.
func (r *OAuth2Requester) Tokens() Tokens {
	return r.tokens
}

// SeedTokens replaces the tokens without notifying the delegate.
func (r *OAuth2Requester) SeedTokens(t Tokens) {
	r.tokens = t
}

// AccessToken returns the current bearer token.
func (r *OAuth2Requester) AccessToken() string {
	return r.tokens.AccessToken
}

// IsAuthenticated reports whether an access token is held.
func (r *OAuth2Requester) IsAuthenticated() bool {
	return r.tokens.AccessToken != ""
}

// AddAuthHeaders sets the bearer token when one is held.
func (r *OAuth2Requester) AddAuthHeaders(header http.Header) {
	if r.tokens.AccessToken != "" {
		header.Set("Authorization", "Bearer "+r.tokens.AccessToken)
	}
}

// Refreshable reports whether a refresh token is available.
func (r *OAuth2Requester) Refreshable() bool {
	return r.tokens.RefreshToken != ""
}

// RefreshAuth renews the access token. When the grant itself fails the
// delegate is told: EventTokenDeauthorized if the provider revoked the
// refresh token, EventInvalidAuth otherwise. A failure to persist renewed
// tokens is returned without invalidating the credential.
func (r *OAuth2Requester) RefreshAuth(ctx context.Context) error {
	tok, err := r.refreshGrant(ctx)
	if err != nil {
		event := EventInvalidAuth
		if isRevoked(err) {
			event = EventTokenDeauthorized
		}
		r.logger.Warn(ctx, "token refresh failed", map[string]interface{}{
			"error": err.Error(), "event": event.String(),
		})
		if nerr := r.Notify(ctx, event); nerr != nil {
			r.logger.Error(ctx, "refresh failure notification failed", nerr)
		}
		return tokenError(err)
	}
	return r.SetTokens(ctx, tok)
}

// ExchangeCode trades the authorization code in params for tokens.
func (r *OAuth2Requester) ExchangeCode(ctx context.Context, params domain.CallbackParams) error {
	code := params.Get("code")
	if code == "" {
		return fmt.Errorf("authorization callback is missing the code parameter")
	}
	return r.GetTokenFromCode(ctx, code)
}

// GetTokenFromCode exchanges code at the token endpoint and stores the result.
func (r *OAuth2Requester) GetTokenFromCode(ctx context.Context, code string) error {
	var opts []oauth2.AuthCodeOption
	if r.conf.Scope != "" && r.oauth.Endpoint.AuthStyle == oauth2.AuthStyleInParams {
		opts = append(opts, oauth2.SetAuthURLParam("scope", r.conf.Scope))
	}

	tok, err := r.oauth.Exchange(r.tokenContext(ctx), code, opts...)
	if err != nil {
		return tokenError(err)
	}
	return r.SetTokens(ctx, tok)
}

// RefreshAccessToken runs the refresh token grant and stores the result.
func (r *OAuth2Requester) RefreshAccessToken(ctx context.Context) error {
	tok, err := r.refreshGrant(ctx)
	if err != nil {
		return tokenError(err)
	}
	return r.SetTokens(ctx, tok)
}

func (r *OAuth2Requester) refreshGrant(ctx context.Context) (*oauth2.Token, error) {
	if r.tokens.RefreshToken == "" {
		return nil, ferrors.NewAuthError("oauth2", ferrors.ErrShouldBeAuthenticated, errors.New("no refresh token"))
	}
	src := r.oauth.TokenSource(r.tokenContext(ctx), &oauth2.Token{RefreshToken: r.tokens.RefreshToken})
	return src.Token()
}

// SetTokens stores tok and notifies EventTokenUpdated.
func (r *OAuth2Requester) SetTokens(ctx context.Context, tok *oauth2.Token) error {
	externalID := r.tokens.ExternalID
	r.tokens = TokensFromOAuth2(tok, r.tokens.RefreshToken)
	r.tokens.ExternalID = externalID
	return r.Notify(ctx, EventTokenUpdated)
}

// Reset drops the tokens, leaving the client unauthenticated.
func (r *OAuth2Requester) Reset() {
	r.tokens = Tokens{}
}

func (r *OAuth2Requester) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, r.client)
}

// TokensFromOAuth2 converts a token response, keeping previousRefresh when
// the provider did not rotate the refresh token.
func TokensFromOAuth2(tok *oauth2.Token, previousRefresh string) Tokens {
	t := Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if t.RefreshToken == "" {
		t.RefreshToken = previousRefresh
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		t.AccessTokenExpire = &exp
	}
	if secs, ok := extraSeconds(tok.Extra("x_refresh_token_expires_in")); ok {
		exp := time.Now().Add(time.Duration(secs) * time.Second)
		t.RefreshTokenExpire = &exp
	}
	return t
}

func extraSeconds(v interface{}) (int64, bool) {
	switch s := v.(type) {
	case float64:
		return int64(s), true
	case int64:
		return s, true
	case int:
		return int64(s), true
	case string:
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// isRevoked reports whether the token endpoint rejected the refresh token
// itself, which providers signal with invalid_grant.
func isRevoked(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}

func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return ferrors.NewFetchError(re.Response.Request, re.Response, re.Body, nil)
	}
	return err
}

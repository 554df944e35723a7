package errors_test

import (
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"testing"

	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchError_IncludesRequestAndResponse(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://api.hubapi.com/crm/v3/objects/contacts", strings.NewReader("{}"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("Content-Type", "application/json")

	resp := &http.Response{
		StatusCode: http.StatusBadRequest,
		Status:     "400 Bad Request",
		Header:     http.Header{"X-Request-Id": []string{"abc"}},
		Body:       io.NopCloser(strings.NewReader("")),
	}

	fe := ferrors.NewFetchError(req, resp, []byte(`{"message":"Property values were not valid"}`), nil)
	msg := fe.Error()

	assert.Contains(t, msg, "POST https://api.hubapi.com/crm/v3/objects/contacts")
	assert.Contains(t, msg, "400 Bad Request")
	assert.Contains(t, msg, "X-Request-Id: abc")
	assert.Contains(t, msg, "Property values were not valid")
	assert.NotContains(t, msg, "secret-token")
	assert.Equal(t, "Bearer secret-token", req.Header.Get("Authorization"), "original request must not be mutated")
}

func TestFetchError_TransportFailure(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://graph.microsoft.com/v1.0/me", nil)
	require.NoError(t, err)

	cause := stderrors.New("connection reset by peer")
	fe := ferrors.NewFetchError(req, nil, nil, cause)

	assert.Contains(t, fe.Error(), "GET https://graph.microsoft.com/v1.0/me")
	assert.Contains(t, fe.Error(), "connection reset by peer")
	assert.ErrorIs(t, fe, cause)
}

func TestAuthError_Is(t *testing.T) {
	err := ferrors.NewAuthError("hubspot", ferrors.ErrAuthorizationFailed, stderrors.New("401"))

	assert.ErrorIs(t, err, ferrors.ErrAuthorizationFailed)
	assert.NotErrorIs(t, err, ferrors.ErrShouldBeAuthenticated)
	assert.Contains(t, err.Error(), "hubspot")
}

func TestConflictError_Message(t *testing.T) {
	err := &ferrors.ConflictError{Kind: ferrors.ConflictEntity, Module: "hubspot", UserID: "u1", ExternalID: "123", Count: 2}

	var conflict *ferrors.ConflictError
	require.ErrorAs(t, error(err), &conflict)
	assert.Equal(t, "multiple entity records (2) found for user u1 in module hubspot with external ID 123", err.Error())
}

package ginapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	ferrors "github.com/pilab-dev/frigg/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// statusOf maps an error to its HTTP status and code. Conflicts are checked
// first: a conflict raised while storing tokens arrives wrapped in an AuthError.
func statusOf(err error) (int, string) {
	var (
		conflict *ferrors.ConflictError
		authErr  *ferrors.AuthError
		fetchErr *ferrors.FetchError
	)
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ferrors.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, "authorization_failed"
	case errors.Is(err, ferrors.ErrModuleNotFound):
		return http.StatusNotFound, "module_not_found"
	case errors.Is(err, ferrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func (a *API) abort(c *gin.Context, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusBadGateway {
		// FetchError text carries upstream headers and bodies
		msg = "the provider request failed"
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error(c.Request.Context(), "request failed", err, map[string]interface{}{"path": c.FullPath()})
	} else {
		a.logger.Warn(c.Request.Context(), "request rejected", map[string]interface{}{"path": c.FullPath(), "error": err.Error()})
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Msg: msg})
}

package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"auction-engine/internal/auth"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// PrincipalKey is the gin context key the auth middleware stores the caller under.
const PrincipalKey = "principal"

var scrubInternal atomic.Bool

// ScrubInternalErrors hides the wrapped error text of Internal failures.
// Production servers turn it on.
func ScrubInternalErrors(on bool) { scrubInternal.Store(on) }

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	utils.JSONError(c, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request payload: %v", err), "ValidationError")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code, message and
// machine-readable detail.
func MapErrorToHTTP(err error) (int, string, string) {
	kind, detail := biddingerrors.Classify(err)
	switch kind {
	case biddingerrors.KindAuthentication:
		return http.StatusUnauthorized, "authentication required", detail
	case biddingerrors.KindAuthorization:
		return http.StatusForbidden, message(err, "operation not permitted"), detail
	case biddingerrors.KindNotFound:
		return http.StatusNotFound, message(err, "not found"), detail
	case biddingerrors.KindValidation:
		return http.StatusUnprocessableEntity, message(err, "invalid request"), detail
	case biddingerrors.KindBusinessRule:
		return http.StatusBadRequest, message(err, "request rejected"), detail
	case biddingerrors.KindConflict:
		return http.StatusConflict, "concurrent update, please retry", detail
	case biddingerrors.KindRateLimit:
		return http.StatusTooManyRequests, "rate limit exceeded", detail
	default:
		if scrubInternal.Load() {
			return http.StatusInternalServerError, "internal server error", detail
		}
		return http.StatusInternalServerError, "internal server error: " + err.Error(), detail
	}
}

func message(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

// RespondError maps err, writes the error envelope and logs the failure.
// Server-side failures log at error level, client mistakes at warn.
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, msg, detail := MapErrorToHTTP(err)
	utils.JSONError(c, status, msg, detail)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["error"] = err.Error()
	fields["status"] = status
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// LogSocketFailure logs a websocket that was closed before it became usable.
func LogSocketFailure(handlerName string, err error, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["error"] = err.Error()
	if biddingerrors.KindOf(err) == biddingerrors.KindInternal {
		utils.Error(handlerName+": socket closed", fields)
		return
	}
	utils.Warn(handlerName+": socket rejected", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}

// Principal returns the caller stored by the auth middleware.
func Principal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// MustPrincipal returns the caller or writes a 401 and reports false.
func MustPrincipal(c *gin.Context, handlerName string) (auth.Principal, bool) {
	p, ok := Principal(c)
	if !ok {
		RespondError(c, handlerName, fmt.Errorf("%w - no principal", biddingerrors.ErrUnauthenticated), nil)
		return auth.Principal{}, false
	}
	return p, true
}

// Viewer converts the optional caller into a listing viewer.
func Viewer(c *gin.Context) repository.Viewer {
	p, ok := Principal(c)
	if !ok {
		return repository.Viewer{}
	}
	return repository.Viewer{UserID: p.UserID, Email: p.Email}
}

// PageFromQuery reads page and per_page.
func PageFromQuery(c *gin.Context) (repository.Page, error) {
	var p repository.Page
	for key, dst := range map[string]*int{"page": &p.Page, "per_page": &p.PerPage} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return repository.Page{}, fmt.Errorf("%w - %s must be a positive integer", biddingerrors.ErrValidation, key)
		}
		*dst = n
	}
	return p.Normalize(), nil
}

// IsNoBids reports whether err only says there are no bids yet.
func IsNoBids(err error) bool {
	return errors.Is(err, biddingerrors.ErrNoBids)
}

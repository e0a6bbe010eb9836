package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// RespondError maps domain errors to RFC7807 problem responses. Invalid and
// expired sessions plus credential mismatches are 401; blocked users and
// insufficient permissions are 403. Authorization failures never surface as
// 404, so callers cannot probe for resource existence.
func RespondError(w http.ResponseWriter, err error) {
	var vErrs validator.ValidationErrors
	switch {
	case errors.Is(err, shared.ErrInvalidSession),
		errors.Is(err, shared.ErrSessionExpired),
		errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrAccessForbidden),
		errors.Is(err, shared.ErrUserBlocked):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrEntryNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrEntryAlreadyExists):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &vErrs):
		Problem(w, http.StatusBadRequest, "Validation Failed", vErrs.Error())
	default:
		// Storage, hash, update, and delete failures stay opaque.
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

package apperr

import (
	"errors"
	"net/http"

	"hybridcache/pkg/cacheerr"
)

// FromCacheErr maps a cacheerr.Error onto an AppError so the admin HTTP
// surface can respond with the right status without core/cache ever
// importing net/http.
func FromCacheErr(err error) *AppError {
	var ce *cacheerr.Error
	if !errors.As(err, &ce) {
		return InternalWithError(err)
	}

	status := http.StatusInternalServerError
	switch ce.Code {
	case cacheerr.CodeEntryTooLarge:
		status = http.StatusRequestEntityTooLarge
	case cacheerr.CodeSerializationFailed:
		status = http.StatusUnprocessableEntity
	case cacheerr.CodeL2Unavailable, cacheerr.CodeBusUnavailable:
		status = http.StatusServiceUnavailable
	case cacheerr.CodeCancelled:
		status = http.StatusRequestTimeout
	}

	return &AppError{
		Code:    ce.Code,
		Message: ce.Message,
		Status:  status,
		Err:     ce.Err,
	}
}

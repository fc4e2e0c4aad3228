package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/talent-match/internal/normalize"
	"github.com/jonathan/talent-match/internal/ranking"
	"github.com/jonathan/talent-match/internal/store"
	"github.com/jonathan/talent-match/internal/taxonomy"
)

// StatusClientClosedRequest is returned when the caller went away before the
// response was ready.
const StatusClientClosedRequest = 499

// ErrValidation indicates a malformed request.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	var (
		validation    *ErrValidation
		normalization *normalize.ValidationError
		unknownSkill  *taxonomy.UnknownSkillError
		invalidEntry  *taxonomy.InvalidEntryError
		notFound      *store.NotFoundError
		conflict      *store.ConcurrentModificationError
		unavailable   *ranking.JobUnavailableError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation),
		errors.As(err, &normalization),
		errors.As(err, &unknownSkill),
		errors.As(err, &invalidEntry):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &unavailable):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

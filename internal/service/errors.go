package service

import (
	"errors"

	"chatio/internal/cache"
	"chatio/internal/repository"
)

// Kind is the user-visible classification of a failure.
type Kind string

const (
	KindConfiguration       Kind = "ConfigurationError"
	KindNotFound            Kind = "NotFoundError"
	KindConcurrencyConflict Kind = "ConcurrencyConflictError"
	KindTransientIO         Kind = "TransientIOError"
	KindValidation          Kind = "ValidationError"
	KindForbidden           Kind = "ForbiddenError"
)

var (
	ErrConversationTypeMissing = errors.New("conversation type is not configured")
	ErrRoleMissing             = errors.New("user role is not configured")
	ErrConversationNotFound    = errors.New("conversation not found")
	ErrMessageNotFound         = errors.New("message not found")
	ErrUserNotFound            = errors.New("user not found")
	ErrNotParticipant          = errors.New("user is not a participant of the conversation")
	ErrConcurrencyConflict     = errors.New("concurrent matching conflict")
	ErrValidation              = errors.New("invalid input")
)

// KindOf classifies err. Anything not raised by this package came from the cache
// or the database and is reported as transient.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConversationTypeMissing), errors.Is(err, ErrRoleMissing):
		return KindConfiguration
	case errors.Is(err, ErrConversationNotFound),
		errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, cache.ErrMiss):
		return KindNotFound
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotParticipant):
		return KindForbidden
	default:
		return KindTransientIO
	}
}

package moderation

import "errors"

// Errors returned by the service. Store failures never leak their cause to the
// caller; they are reported to the Observer and surfaced as ErrCreate,
// ErrUpdate, ErrDelete or ErrGeneric.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrInvalidStatus    = errors.New("status must be approved or rejected")
	ErrNotPending       = errors.New("comment is not pending")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidImage     = errors.New("image must be jpeg, png or webp")
	ErrInvalidInput     = errors.New("invalid input")

	ErrCreate  = errors.New("failed to create resource")
	ErrUpdate  = errors.New("failed to update resource")
	ErrDelete  = errors.New("failed to delete resource")
	ErrGeneric = errors.New("failed to process request")
)

// IsClientError reports whether err is caused by the request rather than by
// the service or its collaborators.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInvalidRating, ErrInvalidStatus, ErrNotPending,
		ErrPermissionDenied, ErrInvalidImage, ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

package topics

import "errors"

// Domain-specific errors for topic resolution.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCircularReference is returned when seed templates reference each
	// other in a cycle and substitution can never converge.
	ErrCircularReference = errors.New("topics: circular topic reference")

	// ErrUnknownReference is returned when a template names a seed that is
	// not defined.
	ErrUnknownReference = errors.New("topics: unknown seed reference")

	// ErrDuplicateName is returned when two definitions share a name.
	ErrDuplicateName = errors.New("topics: duplicate definition name")

	// ErrDuplicateRole is returned when more than one topic claims a
	// single-occupancy role such as the last-will topic.
	ErrDuplicateRole = errors.New("topics: duplicate topic role")

	// ErrUnknownRole is returned when a topic definition carries a role the
	// registry does not recognise.
	ErrUnknownRole = errors.New("topics: unknown topic role")
)

package release

import "errors"

// Domain errors for release operations.
var (
	// ErrReleaseNotFound indicates a release was not found.
	ErrReleaseNotFound = errors.New("release not found")

	// ErrInvalidStatusTransition indicates an invalid status transition.
	ErrInvalidStatusTransition = errors.New("invalid release status transition")

	// ErrReleaseTerminal indicates the release is in a terminal state.
	ErrReleaseTerminal = errors.New("release is in a terminal state")

	// ErrNotPaused indicates the release is not paused.
	ErrNotPaused = errors.New("release is not paused")

	// ErrNotInProgress indicates the release is not in progress.
	ErrNotInProgress = errors.New("release is not in progress")

	// ErrNoMappings indicates a release has no platform target mappings.
	ErrNoMappings = errors.New("release has no platform target mappings")

	// ErrDuplicateMapping indicates a duplicate (platform, target) mapping.
	ErrDuplicateMapping = errors.New("duplicate platform target mapping")

	// ErrUnsupportedArtifact indicates an upload with a disallowed extension.
	ErrUnsupportedArtifact = errors.New("unsupported build artifact extension")

	// ErrConfigNotFound indicates a release config was not found.
	ErrConfigNotFound = errors.New("release config not found")
)

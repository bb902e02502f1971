package persistence

import "errors"

var (
	// ErrBuildFailure wraps mapping, connection and seeding failures while building a unit.
	ErrBuildFailure = errors.New("persistence unit build failed")
	// ErrUnknownPackage indicates a mapped package scope that the engine does not know.
	ErrUnknownPackage = errors.New("unknown mapped package")
	// ErrReservedUnit indicates an operation on the reserved primary unit.
	ErrReservedUnit = errors.New("reserved persistence unit")
	// ErrUnitClosed indicates use of a closed unit.
	ErrUnitClosed = errors.New("persistence unit closed")
	// ErrCacheClosed indicates a build requested after the cache was shut down.
	ErrCacheClosed = errors.New("persistence unit cache closed")
)

package domain

import "errors"

var (
	// ErrMalformedIdentifier is returned when an identifier is present but is not a 10-digit number
	ErrMalformedIdentifier = errors.New("malformed NPI identifier")

	// ErrNotFound is returned when the registry has no record for a query
	ErrNotFound = errors.New("no matching record in NPI registry")

	// ErrTypeMismatch is returned when the registry answers with the wrong holder type
	ErrTypeMismatch = errors.New("registry holder type does not match expected type")

	// ErrRegistryUnavailable is returned when the registry cannot be reached or keeps failing
	ErrRegistryUnavailable = errors.New("NPI registry request failed")

	// ErrRegistryRejected is returned when the registry refuses a query as invalid
	ErrRegistryRejected = errors.New("NPI registry rejected the query")

	// ErrInvalidQuery is returned when a lookup query has nothing to search by
	ErrInvalidQuery = errors.New("invalid lookup query")

	// ErrCacheMiss is returned when a lookup is not in the cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInputUnreadable is returned when a stage input file is missing or cannot be parsed
	ErrInputUnreadable = errors.New("input file unreadable")

	// ErrMissingColumn is returned when a designated column is absent from an input file
	ErrMissingColumn = errors.New("required column missing")

	// ErrArtifactExists is returned when an output artifact would overwrite an earlier one
	ErrArtifactExists = errors.New("artifact already exists")
)

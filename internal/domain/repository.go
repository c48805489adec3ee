package domain

import (
	"context"
	"time"
)

// LookupCache holds registry answers for the lifetime of one run.
type LookupCache interface {
	Get(ctx context.Context, key string) (*LookupResult, error)
	Set(ctx context.Context, key string, result *LookupResult, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RegistryClient looks up identifier holders by name and type.
// Lookup returns the top-ranked result as the registry reported it; callers verify its type.
type RegistryClient interface {
	Lookup(ctx context.Context, query LookupQuery) (*LookupResult, error)
}

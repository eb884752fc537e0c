package source

import (
	"context"
	"maps"
	"slices"

	"github.com/nao1215/boxhunt/internal/model"
)

// DefaultDomain is the storage domain of adapters that do not name one.
const DefaultDomain = "default"

// Adapter searches one external image source.
//
// Search returns at most limit candidates in the source's ranking order.
// An empty result is not an error.
type Adapter interface {
	ID() string
	Search(ctx context.Context, keyword string, limit int) ([]model.ImageCandidate, error)
}

// Partitioned is implemented by adapters whose images live in their own
// storage domain.
type Partitioned interface {
	Domain() string
}

// DomainOf returns the storage domain an adapter's outcomes belong to.
func DomainOf(a Adapter) string {
	if p, ok := a.(Partitioned); ok && p.Domain() != "" {
		return p.Domain()
	}
	return DefaultDomain
}

// Pacer spaces requests per source. *fetch.Fetcher implements it, so search
// requests and downloads of one source share a single pace.
type Pacer interface {
	Wait(ctx context.Context, sourceID string) error
}

// Set holds the adapters of a run keyed by id.
type Set map[string]Adapter

// Add registers an adapter under its id.
func (s Set) Add(a Adapter) {
	s[a.ID()] = a
}

// IDs returns the adapter ids in sorted order.
func (s Set) IDs() []string {
	return slices.Sorted(maps.Keys(s))
}

package terminology

import (
	"context"

	"github.com/ehr/namaste/pkg/pagination"
)

// Repository provides read access to the mapped terms.
type Repository interface {
	// Search returns terms whose NAMASTE name contains query (case-insensitive)
	// in store order, plus the total number of matches before paging.
	Search(ctx context.Context, query string, page pagination.Params) ([]*Term, int, error)
	GetByName(ctx context.Context, name string) (*Term, error)
	Count(ctx context.Context) (int, error)
}

// Writer stores terms, replacing any existing term with the same NAMASTE name.
type Writer interface {
	Upsert(ctx context.Context, terms []*Term) (int, error)
}

// Store is a repository that can also be written to.
type Store interface {
	Repository
	Writer
}

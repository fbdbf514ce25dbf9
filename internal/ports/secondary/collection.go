package secondary

import (
	"context"

	"github.com/example/pm/internal/models"
)

// CollectionClient defines the secondary port for one REST collection endpoint.
// Implementations return *errs.AuthError for rejected credentials and
// *errs.RemoteError for every other failure.
type CollectionClient interface {
	// List fetches the whole collection.
	List(ctx context.Context, schema *models.Schema) ([]models.Record, error)

	// Create posts a new record and returns it as stored. The record is
	// empty when the server answers without a body.
	Create(ctx context.Context, schema *models.Schema, payload models.Record) (models.Record, error)

	// Update replaces the record with the given id and returns what the
	// server echoed, which may be empty or partial.
	Update(ctx context.Context, schema *models.Schema, id string, payload models.Record) (models.Record, error)

	// Delete removes the record with the given id.
	Delete(ctx context.Context, schema *models.Schema, id string) error
}

// RecordCache defines the secondary port for the local mirror of fetched collections.
type RecordCache interface {
	// Replace swaps the stored collection for entity wholesale.
	Replace(ctx context.Context, entity string, idField string, records []models.Record) error

	// Load returns the stored collection for entity in fetch order.
	Load(ctx context.Context, entity string) ([]models.Record, error)

	// FetchedAt returns when entity was last replaced; ok is false if never.
	FetchedAt(ctx context.Context, entity string) (at string, ok bool, err error)
}

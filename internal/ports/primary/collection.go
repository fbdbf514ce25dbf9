package primary

import (
	"context"

	"github.com/example/pm/internal/core/edit"
	"github.com/example/pm/internal/core/filter"
	"github.com/example/pm/internal/core/paging"
	"github.com/example/pm/internal/models"
)

// CollectionScreen defines the primary port for one "manage X" screen.
// It exposes plain data; rendering is left to the presenter.
type CollectionScreen interface {
	// Schema describes the entity the screen manages.
	Schema() *models.Schema

	// Load fetches the collection from the server.
	Load(ctx context.Context) error

	// LoadCached fills the screen from the local mirror without network access.
	LoadCached(ctx context.Context) error

	// SetFilters replaces the user's filter criteria.
	SetFilters(set filter.Set)

	// SetScope switches between all records and records assigned to the signed-in user.
	SetScope(ctx context.Context, scope Scope) error

	// SetSort orders the filtered view by field; empty field keeps server order.
	SetSort(field string, desc bool)

	// SetWindow replaces the page window.
	SetWindow(w paging.Window)

	// ToggleAll flips between the first page and the whole collection.
	ToggleAll() paging.Window

	// Window returns the current page window.
	Window() paging.Window

	// Filtered returns every record passing the filters.
	Filtered() []models.Record

	// Visible returns the filtered records inside the page window.
	Visible() []models.Record

	// Find returns a record from the loaded collection by id.
	Find(id string) (models.Record, bool)

	// BeginEdit enters edit mode for the record with the given id.
	BeginEdit(id string) (edit.Draft, error)

	// UpdateField stages one field change on the open draft.
	UpdateField(field string, value any) error

	// CancelEdit discards the open draft.
	CancelEdit() error

	// CommitEdit validates and saves the open draft, then refreshes the collection.
	CommitEdit(ctx context.Context) (models.Record, error)

	// EditState returns the edit state machine's state.
	EditState() edit.State

	// Create validates and posts a new record.
	Create(ctx context.Context, draft edit.Draft) (models.Record, error)

	// Delete removes a record.
	Delete(ctx context.Context, id string) error

	// Mount starts background refresh; onRefresh runs after each refresh.
	Mount(ctx context.Context, onRefresh func(error)) error

	// Unmount stops background refresh.
	Unmount()
}

// Scope selects which records a screen shows.
type Scope string

const (
	ScopeAll  Scope = "all"
	ScopeMine Scope = "mine"
)

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/pm/internal/core/edit"
	"github.com/example/pm/internal/core/filter"
	"github.com/example/pm/internal/core/paging"
	"github.com/example/pm/internal/errs"
	"github.com/example/pm/internal/logging"
	"github.com/example/pm/internal/models"
	"github.com/example/pm/internal/ports/primary"
	"github.com/example/pm/internal/ports/secondary"
)

// ScreenOptions configures a Screen.
type ScreenOptions struct {
	PageLimit       int
	RefreshInterval time.Duration
}

// Screen is the generic "manage X" screen: one collection with filters,
// a page window, inline editing, create, delete and background refresh.
type Screen struct {
	store    *CollectionStore
	sessions secondary.SessionProvider
	engine   filter.Engine
	edits    *edit.Session
	interval time.Duration

	mu        sync.Mutex
	filters   filter.Set
	scope     filter.Set
	sortField string
	sortDesc  bool
	window    paging.Window
	refresher *Refresher
}

var _ primary.CollectionScreen = (*Screen)(nil)

// NewScreen creates a screen over store.
func NewScreen(store *CollectionStore, sessions secondary.SessionProvider, opts ScreenOptions) *Screen {
	window := paging.Default()
	if opts.PageLimit > 0 {
		window.Limit = opts.PageLimit
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 30 * time.Second
	}
	s := &Screen{
		store:    store,
		sessions: sessions,
		window:   window,
		interval: opts.RefreshInterval,
	}
	s.engine = filter.Engine{OnFormatError: func(field string, err error) {
		logging.Warn(context.Background(), "malformed_date",
			zap.String("entity", store.Schema().Name), zap.String("field", field), zap.Error(err))
	}}
	s.edits = edit.NewSession(store.Schema(), storeUpdater{store})
	return s
}

// storeUpdater lets the edit session submit through the store.
type storeUpdater struct {
	store *CollectionStore
}

func (u storeUpdater) Update(ctx context.Context, id string, payload models.Record) (models.Record, error) {
	return u.store.Update(ctx, id, payload)
}

func (s *Screen) Schema() *models.Schema {
	return s.store.Schema()
}

// Store exposes the underlying collection store.
func (s *Screen) Store() *CollectionStore {
	return s.store
}

func (s *Screen) Load(ctx context.Context) error {
	_, err := s.store.List(ctx)
	return err
}

func (s *Screen) LoadCached(ctx context.Context) error {
	at, err := s.store.LoadCached(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cached %s: %w", s.Schema().Name, err)
	}
	if at == "" {
		return fmt.Errorf("no cached %s yet; run without --offline first", s.Schema().Name)
	}
	return nil
}

func (s *Screen) SetFilters(set filter.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(filter.Set(nil), set...)
}

// SetScope limits the screen to records assigned to the signed-in user.
// Entities without an assignee field cannot be scoped.
func (s *Screen) SetScope(ctx context.Context, scope primary.Scope) error {
	if scope == primary.ScopeAll {
		s.mu.Lock()
		s.scope = nil
		s.mu.Unlock()
		return nil
	}
	if scope != primary.ScopeMine {
		return fmt.Errorf("unknown scope %q", scope)
	}

	schema := s.Schema()
	if schema.AssigneeField == "" {
		return fmt.Errorf("%s records are not assigned to users", schema.Name)
	}
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return &errs.AuthError{Op: "scope " + schema.Command, Err: err}
	}

	kind := filter.NumericEquals
	if f, ok := schema.Field(schema.AssigneeField); ok && f.Type == models.FieldRefList {
		kind = filter.SetMembership
	}
	s.mu.Lock()
	s.scope = filter.Set{{Field: schema.AssigneeField, Kind: kind, Value: float64(sess.UserID)}}
	s.mu.Unlock()
	return nil
}

func (s *Screen) SetSort(field string, desc bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortField, s.sortDesc = field, desc
}

func (s *Screen) SetWindow(w paging.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = w
}

func (s *Screen) ToggleAll() paging.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = s.window.Toggle()
	return s.window
}

func (s *Screen) Window() paging.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

func (s *Screen) Filtered() []models.Record {
	s.mu.Lock()
	set := append(append(filter.Set(nil), s.filters...), s.scope...)
	field, desc := s.sortField, s.sortDesc
	s.mu.Unlock()

	out := s.engine.Apply(s.store.Records(), set)
	if field != "" {
		out = filter.SortBy(out, field, desc)
	}
	return out
}

func (s *Screen) Visible() []models.Record {
	return paging.Visible(s.Filtered(), s.Window())
}

func (s *Screen) Find(id string) (models.Record, bool) {
	return s.store.Find(id)
}

func (s *Screen) BeginEdit(id string) (edit.Draft, error) {
	r, ok := s.store.Find(id)
	if !ok {
		return edit.Draft{}, fmt.Errorf("%s %s not found", s.Schema().Name, id)
	}
	return s.edits.BeginEdit(r)
}

func (s *Screen) UpdateField(field string, value any) error {
	return s.edits.UpdateField(field, value)
}

func (s *Screen) CancelEdit() error {
	return s.edits.Cancel()
}

func (s *Screen) EditState() edit.State {
	return s.edits.State()
}

// EditError returns the error of the last failed commit while still editing.
func (s *Screen) EditError() error {
	return s.edits.Err()
}

// CommitEdit saves the open draft and reloads the collection. A failed
// reload does not undo a successful save.
func (s *Screen) CommitEdit(ctx context.Context) (models.Record, error) {
	saved, err := s.edits.Commit(ctx)
	if err != nil {
		return nil, err
	}
	s.refreshAfterWrite(ctx)
	return saved, nil
}

// Create validates draft locally and posts it. Invalid drafts never reach
// the network.
func (s *Screen) Create(ctx context.Context, draft edit.Draft) (models.Record, error) {
	draft.EntityID = ""
	if err := edit.Validate(s.Schema(), draft); err != nil {
		return nil, err
	}
	payload, err := edit.Payload(s.Schema(), draft)
	if err != nil {
		return nil, err
	}
	saved, err := s.store.Create(ctx, payload)
	if err != nil {
		return nil, err
	}
	s.refreshAfterWrite(ctx)
	return saved, nil
}

func (s *Screen) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Screen) refreshAfterWrite(ctx context.Context) {
	if err := s.Load(ctx); err != nil {
		logging.Warn(ctx, "refresh_after_write_failed", zap.String("entity", s.Schema().Name), zap.Error(err))
	}
}

// Mount starts the background refresh. It stops on Unmount or when ctx ends.
func (s *Screen) Mount(ctx context.Context, onRefresh func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refresher != nil && s.refresher.Running() {
		return fmt.Errorf("%s screen already mounted", s.Schema().Name)
	}
	s.refresher = NewRefresher(s.interval, s.Load, onRefresh)
	return s.refresher.Start(ctx)
}

func (s *Screen) Unmount() {
	s.mu.Lock()
	r := s.refresher
	s.refresher = nil
	s.mu.Unlock()
	if r != nil {
		r.Stop()
	}
}

// Mounted reports whether background refresh is active.
func (s *Screen) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresher != nil && s.refresher.Running()
}

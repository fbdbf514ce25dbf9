package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/pm/internal/errs"
	"github.com/example/pm/internal/logging"
	"github.com/example/pm/internal/models"
	"github.com/example/pm/internal/ports/secondary"
)

// Policy decides when a mutation touches the local collection.
type Policy string

const (
	// PolicyPessimistic changes local state only after the server confirms.
	PolicyPessimistic Policy = "pessimistic"
	// PolicyOptimistic changes local state first. Definitive failures roll it
	// back; ambiguous ones (5xx, lost response) are settled by re-listing.
	PolicyOptimistic Policy = "optimistic"
)

// Op names a store operation for busy tracking.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// StoreOptions configures a CollectionStore.
type StoreOptions struct {
	Policy   Policy
	Cache    secondary.RecordCache // optional local mirror
	Notifier secondary.Notifier
}

// CollectionStore holds the client-side copy of one remote collection and
// performs its four remote operations.
type CollectionStore struct {
	schema   *models.Schema
	client   secondary.CollectionClient
	sessions secondary.SessionProvider
	notifier secondary.Notifier
	cache    secondary.RecordCache
	policy   Policy

	mu      sync.Mutex
	records []models.Record
	busy    map[Op]int
}

// NewCollectionStore creates an empty store for schema.
func NewCollectionStore(schema *models.Schema, client secondary.CollectionClient, sessions secondary.SessionProvider, opts StoreOptions) *CollectionStore {
	if opts.Policy == "" {
		opts.Policy = PolicyPessimistic
	}
	return &CollectionStore{
		schema:   schema,
		client:   client,
		sessions: sessions,
		notifier: opts.Notifier,
		cache:    opts.Cache,
		policy:   opts.Policy,
		records:  []models.Record{},
		busy:     map[Op]int{},
	}
}

// Schema returns the entity the store manages.
func (s *CollectionStore) Schema() *models.Schema {
	return s.schema
}

// Records returns a deep copy of the local collection.
func (s *CollectionStore) Records() []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.records)
}

// Find returns a copy of the record with the given id.
func (s *CollectionStore) Find(id string) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.records[i].Clone(), true
	}
	return nil, false
}

// Busy reports whether op is in flight.
func (s *CollectionStore) Busy(op Op) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy[op] > 0
}

func (s *CollectionStore) enter(op Op) func() {
	s.mu.Lock()
	s.busy[op]++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.busy[op]--
		s.mu.Unlock()
	}
}

// List fetches the collection and replaces the local copy wholesale.
// On failure the local copy is left as it was.
func (s *CollectionStore) List(ctx context.Context) ([]models.Record, error) {
	defer s.enter(OpList)()

	records, err := s.client.List(ctx, s.schema)
	if err != nil {
		return nil, s.fail(ctx, "fetch", err)
	}
	s.replace(ctx, records)
	return cloneAll(records), nil
}

func (s *CollectionStore) replace(ctx context.Context, records []models.Record) {
	s.mu.Lock()
	s.records = cloneAll(records)
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.Replace(ctx, s.schema.Resource, s.schema.IDField, records); err != nil {
		logging.Warn(ctx, "cache_replace_failed", zap.String("entity", s.schema.Name), zap.Error(err))
	}
}

// LoadCached fills the local copy from the mirror without network access.
// fetchedAt is empty if the entity was never fetched.
func (s *CollectionStore) LoadCached(ctx context.Context) (fetchedAt string, err error) {
	if s.cache == nil {
		return "", fmt.Errorf("no local cache configured")
	}
	records, err := s.cache.Load(ctx, s.schema.Resource)
	if err != nil {
		return "", err
	}
	at, _, err := s.cache.FetchedAt(ctx, s.schema.Resource)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return at, nil
}

// Create posts a new record. Only one create may be in flight; a second
// call returns errs.ErrBusy without touching the network.
func (s *CollectionStore) Create(ctx context.Context, payload models.Record) (models.Record, error) {
	s.mu.Lock()
	if s.busy[OpCreate] > 0 {
		s.mu.Unlock()
		return nil, errs.ErrBusy
	}
	s.busy[OpCreate]++
	known := s.idSet()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy[OpCreate]--
		s.mu.Unlock()
	}()

	payload = withoutID(s.schema, payload)
	if s.policy == PolicyOptimistic {
		s.mu.Lock()
		s.records = append(s.records, payload.Wire())
		s.mu.Unlock()
	}

	saved, err := s.client.Create(ctx, s.schema, payload)
	if err != nil {
		if s.policy == PolicyOptimistic {
			listed, ok := s.verify(ctx, err, s.dropProvisional)
			if found := first(listed, func(r models.Record) bool {
				_, seen := known[r.ID(s.schema)]
				return !seen && r.Covers(payload)
			}); ok && found != nil {
				s.notifier.Success(fmt.Sprintf("%s created successfully", s.schema.Name))
				return found, nil
			}
		}
		return nil, s.fail(ctx, "create", err)
	}

	if s.policy == PolicyOptimistic {
		s.dropProvisional()
	}
	if saved.ID(s.schema) == "" {
		saved = s.relistCreated(ctx, known, payload)
	} else {
		s.mu.Lock()
		s.records = append(s.records, saved.Clone())
		s.mu.Unlock()
	}

	s.notifier.Success(fmt.Sprintf("%s created successfully", s.schema.Name))
	return saved.Clone(), nil
}

// relistCreated finds a record the server created without echoing it back.
// The record is never added locally without its id: if the re-list fails or
// does not show it, the sent payload is returned and the local copy is left
// for the next refresh.
func (s *CollectionStore) relistCreated(ctx context.Context, known map[string]struct{}, payload models.Record) models.Record {
	records, err := s.client.List(ctx, s.schema)
	if err != nil {
		logging.Warn(ctx, "created_record_not_listed", zap.String("entity", s.schema.Name), zap.Error(err))
		return payload.Wire()
	}
	s.replace(ctx, records)
	if found := first(records, func(r models.Record) bool {
		_, seen := known[r.ID(s.schema)]
		return !seen && r.Covers(payload)
	}); found != nil {
		return found
	}
	logging.Warn(ctx, "created_record_not_listed", zap.String("entity", s.schema.Name))
	return payload.Wire()
}

// dropProvisional removes the id-less record added by an optimistic create.
func (s *CollectionStore) dropProvisional() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ID(s.schema) == "" {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

// Update replaces the record with the given id. Repeating it with the same
// payload yields the same end state.
func (s *CollectionStore) Update(ctx context.Context, id string, payload models.Record) (models.Record, error) {
	defer s.enter(OpUpdate)()

	var before models.Record
	if s.policy == PolicyOptimistic {
		s.mu.Lock()
		if i := s.indexOf(id); i >= 0 {
			before = s.records[i]
			merged := before.Clone()
			for k, v := range payload.Wire() {
				merged[k] = v
			}
			s.records[i] = merged
		}
		s.mu.Unlock()
	}

	saved, err := s.client.Update(ctx, s.schema, id, payload)
	if err != nil {
		if s.policy == PolicyOptimistic {
			changes := withoutID(s.schema, payload)
			listed, ok := s.verify(ctx, err, func() { s.put(id, before) })
			if found := first(listed, func(r models.Record) bool {
				return r.ID(s.schema) == id && r.Covers(changes)
			}); ok && found != nil {
				s.notifier.Success(fmt.Sprintf("%s updated successfully", s.schema.Name))
				return found, nil
			}
		}
		return nil, s.fail(ctx, "update", err)
	}

	stored := s.merge(id, payload, saved)
	s.notifier.Success(fmt.Sprintf("%s updated successfully", s.schema.Name))
	return stored, nil
}

// merge lays the sent payload and then the server's echo over the local
// record with id, so fields the server did not send back are kept.
func (s *CollectionStore) merge(id string, payload, saved models.Record) models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := models.Record{}
	i := s.indexOf(id)
	if i >= 0 {
		merged = s.records[i].Clone()
	}
	for k, v := range payload.Wire() {
		merged[k] = v
	}
	for k, v := range saved.Clone() {
		merged[k] = v
	}
	if i >= 0 {
		s.records[i] = merged.Clone()
	}
	return merged
}

// put replaces the record with id by r; a nil r leaves the collection alone.
func (s *CollectionStore) put(id string, r models.Record) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		s.records[i] = r.Clone()
	}
}

// Delete removes the record with the given id. Deleting a record the server
// no longer has succeeds, so a repeated delete is not an error.
func (s *CollectionStore) Delete(ctx context.Context, id string) error {
	defer s.enter(OpDelete)()

	var (
		removed models.Record
		at      = -1
	)
	if s.policy == PolicyOptimistic {
		removed, at = s.remove(id)
	}

	err := s.client.Delete(ctx, s.schema, id)
	if re, ok := errs.AsRemote(err); ok && re.NotFound() {
		logging.Info(ctx, "delete_already_gone", zap.String("entity", s.schema.Name), zap.String("id", id))
		err = nil
	}
	if err != nil {
		if s.policy == PolicyOptimistic {
			listed, ok := s.verify(ctx, err, func() { s.restore(removed, at) })
			if ok && first(listed, func(r models.Record) bool { return r.ID(s.schema) == id }) == nil {
				s.notifier.Success(fmt.Sprintf("%s deleted successfully", s.schema.Name))
				return nil
			}
		}
		return s.fail(ctx, "delete", err)
	}

	if s.policy == PolicyPessimistic {
		s.remove(id)
	}
	s.notifier.Success(fmt.Sprintf("%s deleted successfully", s.schema.Name))
	return nil
}

func (s *CollectionStore) remove(id string) (models.Record, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, -1
	}
	r := s.records[i]
	s.records = append(s.records[:i], s.records[i+1:]...)
	return r, i
}

func (s *CollectionStore) restore(r models.Record, at int) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if at > len(s.records) {
		at = len(s.records)
	}
	s.records = append(s.records[:at], append([]models.Record{r}, s.records[at:]...)...)
}

// verify settles an optimistic mutation that failed. Definitive failures
// roll back. Ambiguous ones re-list from the server, which replaces the
// local copy with the truth, and return the listed records for the caller
// to inspect. If the re-list fails too, the change is rolled back.
func (s *CollectionStore) verify(ctx context.Context, cause error, rollback func()) ([]models.Record, bool) {
	re, ok := errs.AsRemote(cause)
	if !ok || !re.Ambiguous() {
		rollback()
		return nil, false
	}

	logging.Warn(ctx, "verifying_ambiguous_failure", zap.String("entity", s.schema.Name), zap.Error(cause))
	records, err := s.client.List(ctx, s.schema)
	if err != nil {
		logging.Warn(ctx, "verification_failed", zap.String("entity", s.schema.Name), zap.Error(err))
		rollback()
		return nil, false
	}
	s.replace(ctx, records)
	return records, true
}

func first(records []models.Record, match func(models.Record) bool) models.Record {
	for _, r := range records {
		if match(r) {
			return r.Clone()
		}
	}
	return nil
}

// fail reports err to the user. Authentication failures also end the session.
func (s *CollectionStore) fail(ctx context.Context, action string, err error) error {
	entity := strings.ToLower(s.schema.Name)
	if errs.IsAuth(err) {
		if signOutErr := s.sessions.SignOut(ctx); signOutErr != nil {
			logging.Error(ctx, "sign_out_failed", zap.Error(signOutErr))
		}
		s.notifier.Error("Session expired. Run `pm login` to sign in again.")
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	logging.Warn(ctx, "remote_operation_failed", zap.String("entity", s.schema.Name), zap.String("action", action), zap.Error(err))
	s.notifier.Error(fmt.Sprintf("Failed to %s %s: %v", action, entity, err))
	return err
}

// indexOf must be called with s.mu held.
func (s *CollectionStore) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, r := range s.records {
		if r.ID(s.schema) == id {
			return i
		}
	}
	return -1
}

// idSet must be called with s.mu held.
func (s *CollectionStore) idSet() map[string]struct{} {
	out := make(map[string]struct{}, len(s.records))
	for _, r := range s.records {
		out[r.ID(s.schema)] = struct{}{}
	}
	return out
}

func withoutID(schema *models.Schema, r models.Record) models.Record {
	out := r.Clone()
	delete(out, schema.IDField)
	return out
}

func cloneAll(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

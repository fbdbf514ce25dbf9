package app

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/example/pm/internal/errs"
	"github.com/example/pm/internal/models"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockCollectionClient implements secondary.CollectionClient in memory.
type mockCollectionClient struct {
	mu      sync.Mutex
	schema  *models.Schema
	records []models.Record
	nextID  int64

	listErrs   []error
	createErrs []error
	updateErrs []error
	deleteErrs []error
	// appliedOnErr makes a failing write still take effect, like a backend
	// that commits and then errors.
	appliedOnErr bool
	// emptyEcho makes successful writes answer with no body, like a 204.
	emptyEcho bool

	// createGate, when set, blocks Create until closed.
	createGate    chan struct{}
	createEntered chan struct{}

	calls map[string]int
}

func newMockClient(schema *models.Schema, records ...models.Record) *mockCollectionClient {
	m := &mockCollectionClient{schema: schema, calls: map[string]int{}}
	for _, r := range records {
		m.records = append(m.records, r.Wire())
		if id, ok := models.Int(r[schema.IDField]); ok && id > m.nextID {
			m.nextID = id
		}
	}
	return m
}

func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}

func (m *mockCollectionClient) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockCollectionClient) List(ctx context.Context, schema *models.Schema) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["list"]++
	if err := pop(&m.listErrs); err != nil {
		return nil, err
	}
	out := make([]models.Record, len(m.records))
	for i, r := range m.records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *mockCollectionClient) Create(ctx context.Context, schema *models.Schema, payload models.Record) (models.Record, error) {
	m.mu.Lock()
	m.calls["create"]++
	gate, entered := m.createGate, m.createEntered
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &errs.RemoteError{Op: "create", Err: ctx.Err()}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	err := pop(&m.createErrs)
	if err != nil && !m.appliedOnErr {
		return nil, err
	}
	m.nextID++
	r := payload.Wire()
	r[schema.IDField] = float64(m.nextID)
	m.records = append(m.records, r.Clone())
	if err != nil {
		return nil, err
	}
	if m.emptyEcho {
		return models.Record{}, nil
	}
	return r, nil
}

func (m *mockCollectionClient) Update(ctx context.Context, schema *models.Schema, id string, payload models.Record) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["update"]++
	err := pop(&m.updateErrs)
	if err != nil && !m.appliedOnErr {
		return nil, err
	}
	for i, r := range m.records {
		if r.ID(schema) == id {
			merged := r.Clone()
			for k, v := range payload.Wire() {
				merged[k] = v
			}
			m.records[i] = merged
			if err != nil {
				return nil, err
			}
			if m.emptyEcho {
				return models.Record{}, nil
			}
			return merged.Clone(), nil
		}
	}
	if err != nil {
		return nil, err
	}
	return nil, &errs.RemoteError{Op: "update", Status: http.StatusNotFound}
}

func (m *mockCollectionClient) Delete(ctx context.Context, schema *models.Schema, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete"]++
	err := pop(&m.deleteErrs)
	if err != nil && !m.appliedOnErr {
		return err
	}
	for i, r := range m.records {
		if r.ID(schema) == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return err
		}
	}
	if err != nil {
		return err
	}
	return &errs.RemoteError{Op: "delete", Status: http.StatusNotFound}
}

// mockSessions implements secondary.SessionProvider.
type mockSessions struct {
	mu       sync.Mutex
	session  *models.Session
	signOuts int
}

func newMockSessions(userID int64, role models.Role) *mockSessions {
	return &mockSessions{session: &models.Session{Token: "tok", UserID: userID, UserName: "user" + strconv.FormatInt(userID, 10), Role: role}}
}

func (m *mockSessions) Current(ctx context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, errs.ErrNoSession
	}
	cp := *m.session
	return &cp, nil
}

func (m *mockSessions) SignOut(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signOuts++
	m.session = nil
	return nil
}

// recordingNotifier implements secondary.Notifier and keeps every toast.
type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
	infos     []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *recordingNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

func (n *recordingNotifier) successCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.successes)
}

// mockCache implements secondary.RecordCache in memory.
type mockCache struct {
	mu      sync.Mutex
	data    map[string][]models.Record
	fetched map[string]string
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]models.Record{}, fetched: map[string]string{}}
}

func (c *mockCache) Replace(ctx context.Context, entity, idField string, records []models.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	c.data[entity] = out
	c.fetched[entity] = "2024-03-05T10:00:00Z"
	return nil
}

func (c *mockCache) Load(ctx context.Context, entity string) ([]models.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Record, len(c.data[entity]))
	for i, r := range c.data[entity] {
		out[i] = r.Clone()
	}
	return out, nil
}

func (c *mockCache) FetchedAt(ctx context.Context, entity string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.fetched[entity]
	return at, ok, nil
}

// ============================================================================
// Fixtures
// ============================================================================

func project(id int, title string, users ...float64) models.Record {
	ids := make([]any, len(users))
	for i, u := range users {
		ids[i] = u
	}
	return models.Record{
		"projectId":          float64(id),
		"projectTitle":       title,
		"projectDescription": title + " description",
		"projectStatus":      "In Progress",
		"startDate":          "01-03-2024",
		"endDate":            "30-06-2024",
		"createdAt":          "15-02-2024",
		"assignedUserIds":    ids,
	}
}

func serverError() error {
	return &errs.RemoteError{Op: "test", Status: http.StatusInternalServerError}
}

func badRequest() error {
	return &errs.RemoteError{Op: "test", Status: http.StatusBadRequest, Body: "invalid"}
}

func unauthorized() error {
	return &errs.AuthError{Op: "test"}
}

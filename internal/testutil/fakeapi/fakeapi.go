// Package fakeapi is an in-memory stand-in for the project-management REST
// backend. It serves the same routes with bearer auth and lets tests inject
// failures and count calls.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/pm/internal/models"
)

// Operations, as counted by Calls and targeted by Fail.
const (
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Fault makes the next call of one operation fail.
type Fault struct {
	Status int
	Body   string
	// Applied performs the change before failing, like a backend that
	// commits and then errors while serialising the response.
	Applied bool
}

// Server is the fake backend.
type Server struct {
	mu      sync.Mutex
	token   string
	data    map[string][]models.Record
	nextID  map[string]int64
	faults  map[string][]Fault
	calls   map[string]int
	headers []http.Header
	router  chi.Router
}

// New returns a backend that accepts only "Bearer <token>". An empty token
// disables auth.
func New(token string) *Server {
	s := &Server{
		token:  token,
		data:   map[string][]models.Record{},
		nextID: map[string]int64{},
		faults: map[string][]Fault{},
		calls:  map[string]int{},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.authenticate)
	r.Route("/api/{resource}", func(r chi.Router) {
		r.Get("/get", s.handleList)
		r.Post("/create", s.handleCreate)
		r.Put("/update/{id}", s.handleUpdate)
		r.Delete("/delete/{id}", s.handleDelete)
	})
	s.router = r
	return s
}

// Start serves s on a local port until the returned server is closed.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Seed replaces a collection. The next assigned id follows the largest seeded id.
func (s *Server) Seed(schema *models.Schema, records ...models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Record, 0, len(records))
	var max int64
	for _, r := range records {
		out = append(out, r.Clone())
		if id, ok := models.Int(r[schema.IDField]); ok && id > max {
			max = id
		}
	}
	s.data[schema.Resource] = out
	s.nextID[schema.Resource] = max
}

// Records returns a copy of a collection as the backend holds it.
func (s *Server) Records(schema *models.Schema) []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Record, 0, len(s.data[schema.Resource]))
	for _, r := range s.data[schema.Resource] {
		out = append(out, r.Clone())
	}
	return out
}

// Fail queues a fault for the next call of op on schema's resource.
func (s *Server) Fail(schema *models.Schema, op string, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := schema.Resource + "/" + op
	s.faults[key] = append(s.faults[key], f)
}

// Calls returns how many requests reached op on schema's resource,
// including rejected ones.
func (s *Server) Calls(schema *models.Schema, op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[schema.Resource+"/"+op]
}

// Headers returns the headers of every authenticated request, in order.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

// SetToken changes the accepted token; existing clients start getting 401.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			s.count(r)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// count records a call from the raw path, since auth runs before routing.
func (s *Server) count(r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 {
		return
	}
	s.mu.Lock()
	s.calls[parts[1]+"/"+parts[2]]++
	s.mu.Unlock()
}

// begin counts the call, records headers, and pops any queued fault.
func (s *Server) begin(r *http.Request, op string) (string, *Fault) {
	resource := chi.URLParam(r, "resource")
	key := resource + "/" + op

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[key]++
	s.headers = append(s.headers, r.Header.Clone())
	if q := s.faults[key]; len(q) > 0 {
		f := q[0]
		s.faults[key] = q[1:]
		return resource, &f
	}
	return resource, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	resource, fault := s.begin(r, OpGet)
	if fault != nil {
		writeFault(w, fault)
		return
	}

	s.mu.Lock()
	out := make([]models.Record, 0, len(s.data[resource]))
	for _, rec := range s.data[resource] {
		out = append(out, rec.Clone())
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	resource, fault := s.begin(r, OpCreate)
	schema, ok := schemaFor(resource)
	if !ok {
		http.NotFound(w, r)
		return
	}

	var body models.Record
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if fault != nil && !fault.Applied {
		writeFault(w, fault)
		return
	}

	s.mu.Lock()
	s.nextID[resource]++
	body[schema.IDField] = float64(s.nextID[resource])
	s.data[resource] = append(s.data[resource], body.Clone())
	s.mu.Unlock()

	if fault != nil {
		writeFault(w, fault)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	resource, fault := s.begin(r, OpUpdate)
	schema, ok := schemaFor(resource)
	if !ok {
		http.NotFound(w, r)
		return
	}
	id := chi.URLParam(r, "id")

	var body models.Record
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if fault != nil && !fault.Applied {
		writeFault(w, fault)
		return
	}

	s.mu.Lock()
	idx := s.indexOf(resource, schema, id)
	if idx < 0 {
		s.mu.Unlock()
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	stored := s.data[resource][idx]
	for k, v := range body {
		if k == schema.IDField {
			continue
		}
		stored[k] = models.CloneValue(v)
	}
	out := stored.Clone()
	s.mu.Unlock()

	if fault != nil {
		writeFault(w, fault)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	resource, fault := s.begin(r, OpDelete)
	schema, ok := schemaFor(resource)
	if !ok {
		http.NotFound(w, r)
		return
	}
	id := chi.URLParam(r, "id")
	if fault != nil && !fault.Applied {
		writeFault(w, fault)
		return
	}

	s.mu.Lock()
	idx := s.indexOf(resource, schema, id)
	if idx >= 0 {
		s.data[resource] = append(s.data[resource][:idx], s.data[resource][idx+1:]...)
	}
	s.mu.Unlock()

	switch {
	case fault != nil:
		writeFault(w, fault)
	case idx < 0:
		http.Error(w, "Not Found", http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// indexOf must be called with s.mu held.
func (s *Server) indexOf(resource string, schema *models.Schema, id string) int {
	want, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return -1
	}
	for i, rec := range s.data[resource] {
		if got, ok := models.Int(rec[schema.IDField]); ok && got == want {
			return i
		}
	}
	return -1
}

func schemaFor(resource string) (*models.Schema, bool) {
	for _, s := range models.Schemas() {
		if s.Resource == resource {
			return s, true
		}
	}
	return nil, false
}

func writeFault(w http.ResponseWriter, f *Fault) {
	body := f.Body
	if body == "" {
		body = http.StatusText(f.Status)
	}
	http.Error(w, body, f.Status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package wire provides dependency injection for the pm application.
// It creates singleton collaborators with lazy initialization.
package wire

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	cliadapter "github.com/example/pm/internal/adapters/cli"
	"github.com/example/pm/internal/adapters/notify"
	"github.com/example/pm/internal/adapters/rest"
	"github.com/example/pm/internal/adapters/session"
	"github.com/example/pm/internal/adapters/sqlite"
	"github.com/example/pm/internal/app"
	"github.com/example/pm/internal/config"
	"github.com/example/pm/internal/db"
	"github.com/example/pm/internal/logging"
	"github.com/example/pm/internal/models"
	"github.com/example/pm/internal/ports/secondary"
)

var (
	configPath string
	loadedPath string

	cfg      *config.Config
	sessions *session.FileStore
	client   *rest.Client
	cache    secondary.RecordCache
	database *sql.DB
	registry *prometheus.Registry
	notifier secondary.Notifier

	screensMu sync.Mutex
	screens   = map[string]*app.Screen{}

	once    sync.Once
	initErr error
)

// SetConfigPath points initialization at a config file other than
// ~/.pm/config.yaml. It has no effect after the first accessor call.
func SetConfigPath(path string) {
	configPath = path
}

// Config returns the loaded configuration.
func Config() (*config.Config, error) {
	once.Do(initServices)
	return cfg, initErr
}

// SaveAPIURL writes a new backend address to the config file. The running
// client keeps the address it was built with.
func SaveAPIURL(url string) error {
	once.Do(initServices)
	if initErr != nil {
		return initErr
	}
	updated := *cfg
	updated.API.BaseURL = strings.TrimRight(strings.TrimSpace(url), "/")
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := config.Save(loadedPath, &updated); err != nil {
		return err
	}
	cfg.API.BaseURL = updated.API.BaseURL
	return nil
}

// Sessions returns the singleton session store.
func Sessions() (*session.FileStore, error) {
	once.Do(initServices)
	return sessions, initErr
}

// Registry returns the metrics registry the REST client reports to.
func Registry() *prometheus.Registry {
	once.Do(initServices)
	return registry
}

// initServices loads config and builds every collaborator.
// This is called once via sync.Once.
func initServices() {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			initErr = err
			return
		}
		path = p
	}
	c, err := config.Load(path)
	if err != nil {
		initErr = err
		return
	}
	cfg, loadedPath = c, path

	if _, err := logging.Init(cfg.Log); err != nil {
		initErr = fmt.Errorf("failed to initialize logging: %w", err)
		return
	}

	registry = prometheus.NewRegistry()
	sessions = session.NewFileStore(cfg.SessionPath)
	notifier = notify.NewTerminal(os.Stderr)
	client = rest.NewClient(sessions, rest.Options{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		DefaultHeaders: cfg.API.DefaultHeaders,
		Retry: rest.RetryPolicy{
			MaxAttempts:    cfg.API.Retry.MaxAttempts,
			InitialBackoff: cfg.API.Retry.InitialBackoff,
			MaxBackoff:     cfg.API.Retry.MaxBackoff,
		},
		Metrics: rest.NewMetrics(registry),
	})

	// The mirror is optional; pm works online without it.
	if conn, err := db.Open(cfg.Cache.Path); err != nil {
		logging.Warn(context.Background(), "cache_unavailable", zap.String("path", cfg.Cache.Path), zap.Error(err))
	} else {
		database = conn
		cache = sqlite.NewRecordCache(conn)
	}
}

// Screen returns the singleton screen for schema.
func Screen(schema *models.Schema) (*app.Screen, error) {
	once.Do(initServices)
	if initErr != nil {
		return nil, initErr
	}

	screensMu.Lock()
	defer screensMu.Unlock()
	if s, ok := screens[schema.Command]; ok {
		return s, nil
	}

	policy := app.PolicyPessimistic
	if cfg.MutationPolicy == config.PolicyOptimistic {
		policy = app.PolicyOptimistic
	}
	store := app.NewCollectionStore(schema, client, sessions, app.StoreOptions{
		Policy:   policy,
		Cache:    cache,
		Notifier: notifier,
	})
	s := app.NewScreen(store, sessions, app.ScreenOptions{
		PageLimit:       cfg.PageLimit,
		RefreshInterval: cfg.RefreshInterval,
	})
	screens[schema.Command] = s
	return s, nil
}

// CollectionAdapterWithOutput returns a new CollectionAdapter writing to the given output.
func CollectionAdapterWithOutput(schema *models.Schema, out io.Writer) (*cliadapter.CollectionAdapter, error) {
	s, err := Screen(schema)
	if err != nil {
		return nil, err
	}
	return cliadapter.NewCollectionAdapter(s, out), nil
}

// Close releases the cache database and flushes logs.
func Close() {
	screensMu.Lock()
	for _, s := range screens {
		s.Unmount()
	}
	screensMu.Unlock()
	if database != nil {
		_ = database.Close()
	}
	_ = logging.Sync()
}

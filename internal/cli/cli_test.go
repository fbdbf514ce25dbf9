package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/pm/internal/errs"
	"github.com/example/pm/internal/models"
	"github.com/example/pm/internal/testutil/fakeapi"
)

func jwtFor(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestBuildSession(t *testing.T) {
	valid := jwtFor(t, jwt.MapClaims{"nameid": "7", "unique_name": "alice", "role": "Developer", "exp": time.Now().Add(time.Hour).Unix()})
	expired := jwtFor(t, jwt.MapClaims{"nameid": "7", "role": "Admin", "exp": time.Now().Add(-time.Hour).Unix()})
	noID := jwtFor(t, jwt.MapClaims{"role": "Admin"})

	tests := []struct {
		name     string
		token    string
		userID   int64
		userName string
		role     string
		wantErr  bool
		want     models.Session
	}{
		{name: "claims only", token: valid, want: models.Session{UserID: 7, UserName: "alice", Role: models.RoleDeveloper}},
		{name: "flags override claims", token: valid, userID: 9, userName: "bob", role: "Admin", want: models.Session{UserID: 9, UserName: "bob", Role: models.RoleAdmin}},
		{name: "opaque token with flags", token: "opaque", userID: 3, role: "ProjectManager", want: models.Session{UserID: 3, Role: models.RoleProjectManager}},
		{name: "opaque token without flags", token: "opaque", wantErr: true},
		{name: "empty token", token: "  ", userID: 1, role: "Admin", wantErr: true},
		{name: "expired", token: expired, wantErr: true},
		{name: "missing user id", token: noID, wantErr: true},
		{name: "unknown role", token: valid, role: "Intern", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildSession(tt.token, tt.userID, tt.userName, tt.role)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.UserID, got.UserID)
			assert.Equal(t, tt.want.UserName, got.UserName)
			assert.Equal(t, tt.want.Role, got.Role)
			assert.Equal(t, strings.TrimSpace(tt.token), got.Token)
		})
	}
}

func TestDefaultMine(t *testing.T) {
	assert.True(t, defaultMine(models.RoleDeveloper))
	assert.False(t, defaultMine(models.RoleProjectManager))
	assert.False(t, defaultMine(models.RoleAdmin))
}

func TestEntityCmdShape(t *testing.T) {
	for _, schema := range models.Schemas() {
		t.Run(schema.Command, func(t *testing.T) {
			cmd := EntityCmd(schema)
			assert.Equal(t, schema.Command, cmd.Use)

			var names []string
			for _, c := range cmd.Commands() {
				names = append(names, c.Name())
			}
			assert.ElementsMatch(t, []string{"list", "show", "create", "edit", "delete", "watch"}, names)

			list, _, err := cmd.Find([]string{"list"})
			require.NoError(t, err)
			assert.Equal(t, schema.AssigneeField != "", list.Flags().Lookup("mine") != nil, "--mine only where records have an assignee")
		})
	}
}

func TestFieldHelp(t *testing.T) {
	help := fieldHelp(models.ProjectSchema)
	assert.Contains(t, help, "projectTitle (text, required)")
	assert.Contains(t, help, "createdAt (date, read-only)")
	assert.Contains(t, help, "projectStatus (enum, required: Not Started|In Progress|Completed|On Hold)")
}

func TestWriteMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "pm_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, writeMetrics(reg, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pm_test_total 1")
}

// TestCommandsEndToEnd drives the real wiring against the fake backend.
// Wiring is initialized once per process, so the whole flow lives here.
func TestCommandsEndToEnd(t *testing.T) {
	backend := fakeapi.New("tok")
	srv := backend.Start()
	defer srv.Close()
	backend.Seed(models.ProjectSchema,
		seedProject(1, "Website Redesign", 7),
		seedProject(2, "Mobile App", 8),
		seedProject(3, "Website Launch", 7, 8),
	)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "api:\n  base_url: " + srv.URL + "\n  retry:\n    max_attempts: 1\n" +
		"session_path: " + filepath.Join(dir, "session.json") + "\n" +
		"cache:\n  path: " + filepath.Join(dir, "cache.db") + "\n" +
		"log:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	login, logout, whoami := LoginCmd(), LogoutCmd(), WhoamiCmd()
	run := func(args ...string) (string, error) {
		root := &cobra.Command{Use: "pm", SilenceUsage: true, SilenceErrors: true}
		AddGlobalFlags(root)
		root.AddCommand(login, logout, whoami)
		for _, s := range models.Schemas() {
			root.AddCommand(EntityCmd(s))
		}
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(append([]string{"--config", cfgPath}, args...))
		err := root.Execute()
		return out.String(), err
	}

	_, err := run("login", "--token", "tok", "--user-id", "7", "--role", "Developer", "--api-url", "ftp://nowhere")
	assert.Error(t, err, "bad backend address is refused")

	out, err := run("login", "--token", "tok", "--user-id", "7", "--name", "alice", "--role", "Developer", "--api-url", srv.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Signed in as alice (Developer)")
	saved, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(saved), "base_url: "+srv.URL+"\n")
	assert.Contains(t, string(saved), "max_attempts: 1", "other settings survive the rewrite")

	out, err = run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ID:      7")
	assert.Contains(t, out, "API:     "+srv.URL)

	out, err = run("project", "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Website Redesign")
	assert.Contains(t, out, "Website Launch")
	assert.NotContains(t, out, "Mobile App", "developers see their own records by default")

	out, err = run("project", "list", "--mine=false", "--filter", "projectTitle~mobile")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Mobile App")
	assert.NotContains(t, out, "Website")

	out, err = run("project", "create",
		"--set", "projectTitle=Data Platform",
		"--set", "projectDescription=Warehouse",
		"--set", "projectStatus=Not Started",
		"--set", "startDate=2024-03-05",
		"--set", "endDate=2024-09-30",
		"--set", "assignedUserIds=7")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Created project 4: Data Platform")
	created := findRecord(backend.Records(models.ProjectSchema), "4")
	require.NotNil(t, created)
	assert.Equal(t, "05-03-2024", created["startDate"], "dates travel in display form")

	_, err = run("project", "create", "--set", "projectTitle=Incomplete")
	assert.True(t, errs.IsValidation(err), "got %v", err)
	assert.Equal(t, 1, backend.Calls(models.ProjectSchema, fakeapi.OpCreate), "invalid drafts never reach the backend")

	out, err = run("project", "edit", "1", "--set", "projectTitle=Website Relaunch")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Project 1 updated")
	assert.Equal(t, "Website Relaunch", findRecord(backend.Records(models.ProjectSchema), "1")["projectTitle"])

	out, err = run("project", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Website Relaunch")

	_, err = run("project", "delete", "2")
	require.NoError(t, err)
	_, err = run("project", "delete", "2")
	require.NoError(t, err, "deleting twice is not an error")
	assert.Nil(t, findRecord(backend.Records(models.ProjectSchema), "2"))

	out, err = run("project", "list", "--mine=false", "--offline")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Website Relaunch")
	assert.Contains(t, out, "Data Platform")

	_, err = run("user", "list", "--offline")
	assert.Error(t, err, "nothing mirrored for users yet")

	metricsPath := filepath.Join(dir, "metrics.prom")
	_, err = run("--metrics-file", metricsPath, "project", "list", "--mine=false")
	require.NoError(t, err)
	require.NoError(t, Finish())
	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "pm_rest_requests_total")

	_, err = run("logout")
	require.NoError(t, err)
	_, err = run("whoami")
	assert.Error(t, err)
}

func seedProject(id int, title string, users ...float64) models.Record {
	ids := make([]any, len(users))
	for i, u := range users {
		ids[i] = u
	}
	return models.Record{
		"projectId":          float64(id),
		"projectTitle":       title,
		"projectDescription": title,
		"projectStatus":      "In Progress",
		"startDate":          "01-03-2024",
		"endDate":            "30-06-2024",
		"createdAt":          "15-02-2024",
		"assignedUserIds":    ids,
	}
}

func findRecord(records []models.Record, id string) models.Record {
	for _, r := range records {
		if r.ID(models.ProjectSchema) == id {
			return r
		}
	}
	return nil
}

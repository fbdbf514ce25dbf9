package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/pm/internal/errs"
	"github.com/example/pm/internal/models"
)

type storeFixture struct {
	client   *mockCollectionClient
	sessions *mockSessions
	notifier *recordingNotifier
	cache    *mockCache
	store    *CollectionStore
}

func newStoreFixture(policy Policy, records ...models.Record) *storeFixture {
	f := &storeFixture{
		client:   newMockClient(models.ProjectSchema, records...),
		sessions: newMockSessions(7, models.RoleProjectManager),
		notifier: &recordingNotifier{},
		cache:    newMockCache(),
	}
	f.store = NewCollectionStore(models.ProjectSchema, f.client, f.sessions, StoreOptions{
		Policy:   policy,
		Cache:    f.cache,
		Notifier: f.notifier,
	})
	return f
}

func ids(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID(models.ProjectSchema)
	}
	return out
}

func TestStore_ListReplacesWholesaleAndMirrors(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyPessimistic, project(1, "A"), project(2, "B"))

	got, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(got))

	cached, err := f.cache.Load(ctx, "Project")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(cached))

	f.client.records = f.client.records[1:]
	_, err = f.store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(f.store.Records()))
}

func TestStore_ListFailureKeepsLocalCopy(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyPessimistic, project(1, "A"))
	_, err := f.store.List(ctx)
	require.NoError(t, err)

	f.client.listErrs = []error{serverError()}
	_, err = f.store.List(ctx)
	require.Error(t, err)

	assert.Equal(t, []string{"1"}, ids(f.store.Records()))
	assert.Equal(t, 1, f.notifier.errorCount())
}

func TestStore_RecordsAreCopies(t *testing.T) {
	f := newStoreFixture(PolicyPessimistic, project(1, "A", 3))
	_, err := f.store.List(context.Background())
	require.NoError(t, err)

	got := f.store.Records()
	got[0]["projectTitle"] = "mutated"
	got[0]["assignedUserIds"].([]any)[0] = float64(99)

	again, ok := f.store.Find("1")
	require.True(t, ok)
	assert.Equal(t, "A", again["projectTitle"])
	assert.Equal(t, []any{float64(3)}, again["assignedUserIds"])
}

func TestStore_CreateAppendsServerRecord(t *testing.T) {
	f := newStoreFixture(PolicyPessimistic, project(1, "A"))
	_, err := f.store.List(context.Background())
	require.NoError(t, err)

	saved, err := f.store.Create(context.Background(), models.Record{"projectId": int64(77), "projectTitle": "New"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), saved["projectId"], "server assigns the id")
	assert.Equal(t, []string{"1", "2"}, ids(f.store.Records()))
	assert.Equal(t, []string{"Project created successfully"}, f.notifier.successes)
}

func TestStore_CreateBusyRejectsSecondCall(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyPessimistic)
	f.client.createGate = make(chan struct{})
	f.client.createEntered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.store.Create(ctx, models.Record{"projectTitle": "first"})
		done <- err
	}()
	<-f.client.createEntered

	assert.True(t, f.store.Busy(OpCreate))
	_, err := f.store.Create(ctx, models.Record{"projectTitle": "second"})
	assert.ErrorIs(t, err, errs.ErrBusy)

	close(f.client.createGate)
	require.NoError(t, <-done)
	assert.False(t, f.store.Busy(OpCreate))
	assert.Equal(t, 1, f.client.count("create"), "busy guard kept the second call off the network")
}

func TestStore_UpdateReplacesLocalRecord(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyPessimistic, project(1, "A"), project(2, "B"))
	_, err := f.store.List(ctx)
	require.NoError(t, err)

	_, err = f.store.Update(ctx, "2", models.Record{"projectId": int64(2), "projectTitle": "B2"})
	require.NoError(t, err)
	r, _ := f.store.Find("2")
	assert.Equal(t, "B2", r["projectTitle"])

	// Repeating the same update yields the same end state.
	_, err = f.store.Update(ctx, "2", models.Record{"projectId": int64(2), "projectTitle": "B2"})
	require.NoError(t, err)
	again, _ := f.store.Find("2")
	assert.True(t, r.Equal(again))
}

func TestStore_PessimisticFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyPessimistic, project(1, "A"))
	_, err := f.store.List(ctx)
	require.NoError(t, err)
	before := f.store.Records()

	f.client.updateErrs = []error{serverError()}
	_, err = f.store.Update(ctx, "1", models.Record{"projectTitle": "changed"})
	require.Error(t, err)
	_, isRemote := errs.AsRemote(err)
	assert.True(t, isRemote)

	f.client.deleteErrs = []error{badRequest()}
	require.Error(t, f.store.Delete(ctx, "1"))

	assert.Equal(t, before, f.store.Records())
	assert.Equal(t, 2, f.notifier.errorCount())
	assert.Zero(t, f.sessions.signOuts)
}

// Deleting "42" twice never surfaces an error.
func TestStore_DeleteTwiceIsSilent(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyPessimistic, project(42, "Doomed"))
	_, err := f.store.List(ctx)
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(ctx, "42"))
	require.NoError(t, f.store.Delete(ctx, "42"))

	assert.Empty(t, f.store.Records())
	assert.Zero(t, f.notifier.errorCount())
	assert.Equal(t, 2, f.client.count("delete"))
}

func TestStore_AuthFailureSignsOut(t *testing.T) {
	tests := []struct {
		name string
		run  func(ctx context.Context, s *CollectionStore) error
		seed func(c *mockCollectionClient)
	}{
		{
			name: "list",
			seed: func(c *mockCollectionClient) { c.listErrs = []error{unauthorized()} },
			run:  func(ctx context.Context, s *CollectionStore) error { _, err := s.List(ctx); return err },
		},
		{
			name: "create",
			seed: func(c *mockCollectionClient) { c.createErrs = []error{unauthorized()} },
			run: func(ctx context.Context, s *CollectionStore) error {
				_, err := s.Create(ctx, models.Record{"projectTitle": "x"})
				return err
			},
		},
		{
			name: "delete",
			seed: func(c *mockCollectionClient) { c.deleteErrs = []error{unauthorized()} },
			run:  func(ctx context.Context, s *CollectionStore) error { return s.Delete(ctx, "1") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStoreFixture(PolicyOptimistic, project(1, "A"))
			_, err := f.store.List(context.Background())
			require.NoError(t, err)
			tt.seed(f.client)

			err = tt.run(context.Background(), f.store)
			require.Error(t, err)
			assert.True(t, errs.IsAuth(err))
			assert.Equal(t, 1, f.sessions.signOuts)
			assert.Contains(t, f.notifier.errors[0], "pm login")
			assert.Equal(t, []string{"1"}, ids(f.store.Records()), "optimistic change rolled back")
		})
	}
}

func TestStore_OptimisticDefinitiveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyOptimistic, project(1, "A"), project(2, "B"))
	_, err := f.store.List(ctx)
	require.NoError(t, err)
	before := f.store.Records()

	f.client.updateErrs = []error{badRequest()}
	_, err = f.store.Update(ctx, "1", models.Record{"projectTitle": "changed"})
	require.Error(t, err)

	f.client.deleteErrs = []error{badRequest()}
	require.Error(t, f.store.Delete(ctx, "1"))

	f.client.createErrs = []error{badRequest()}
	_, err = f.store.Create(ctx, models.Record{"projectTitle": "C"})
	require.Error(t, err)

	assert.Equal(t, before, f.store.Records())
	assert.Equal(t, 1, f.client.count("list"), "definitive failures are not re-listed")
}

func TestStore_OptimisticAmbiguousFailureVerifiedApplied(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyOptimistic, project(1, "A"))
	_, err := f.store.List(ctx)
	require.NoError(t, err)
	f.client.appliedOnErr = true

	f.client.updateErrs = []error{serverError()}
	saved, err := f.store.Update(ctx, "1", models.Record{"projectId": int64(1), "projectTitle": "changed"})
	require.NoError(t, err, "server applied the write; re-list confirms it")
	assert.Equal(t, "changed", saved["projectTitle"])

	f.client.createErrs = []error{serverError()}
	created, err := f.store.Create(ctx, models.Record{"projectTitle": "B", "assignedUserIds": []int64{7}})
	require.NoError(t, err)
	assert.Equal(t, float64(2), created["projectId"])

	f.client.deleteErrs = []error{serverError()}
	require.NoError(t, f.store.Delete(ctx, "1"))

	assert.Equal(t, []string{"2"}, ids(f.store.Records()))
	assert.Zero(t, f.notifier.errorCount())
	assert.Equal(t, 4, f.client.count("list"), "one load plus one verification per ambiguous failure")
}

func TestStore_OptimisticAmbiguousFailureNotApplied(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyOptimistic, project(1, "A"))
	_, err := f.store.List(ctx)
	require.NoError(t, err)

	f.client.updateErrs = []error{serverError()}
	_, err = f.store.Update(ctx, "1", models.Record{"projectTitle": "changed"})
	require.Error(t, err)

	r, _ := f.store.Find("1")
	assert.Equal(t, "A", r["projectTitle"], "server truth replaces the optimistic value")
	assert.Equal(t, 1, f.notifier.errorCount())
}

func TestStore_OptimisticVerificationFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyOptimistic, project(1, "A"), project(2, "B"))
	_, err := f.store.List(ctx)
	require.NoError(t, err)

	f.client.deleteErrs = []error{serverError()}
	f.client.listErrs = []error{errors.New("network down")}
	require.Error(t, f.store.Delete(ctx, "1"))

	assert.Equal(t, []string{"1", "2"}, ids(f.store.Records()), "record restored in place")
}

func TestStore_OptimisticAppliesBeforeResponse(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyOptimistic)
	f.client.createGate = make(chan struct{})
	f.client.createEntered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.store.Create(ctx, models.Record{"projectTitle": "pending"})
		done <- err
	}()
	<-f.client.createEntered

	records := f.store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "pending", records[0]["projectTitle"])
	assert.Empty(t, records[0].ID(models.ProjectSchema))

	close(f.client.createGate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("create did not finish")
	}
	assert.Equal(t, []string{"1"}, ids(f.store.Records()))
}

func TestStore_LoadCached(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyPessimistic, project(1, "A"))

	at, err := f.store.LoadCached(ctx)
	require.NoError(t, err)
	assert.Empty(t, at)

	_, err = f.store.List(ctx)
	require.NoError(t, err)

	offline := NewCollectionStore(models.ProjectSchema, f.client, f.sessions, StoreOptions{Cache: f.cache, Notifier: f.notifier})
	at, err = offline.LoadCached(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, at)
	assert.Equal(t, []string{"1"}, ids(offline.Records()))
}

func TestStore_UpdateWithEmptyResponseKeepsUnsentFields(t *testing.T) {
	for _, policy := range []Policy{PolicyPessimistic, PolicyOptimistic} {
		t.Run(string(policy), func(t *testing.T) {
			ctx := context.Background()
			f := newStoreFixture(policy, project(1, "A", 7))
			f.client.emptyEcho = true
			_, err := f.store.List(ctx)
			require.NoError(t, err)

			saved, err := f.store.Update(ctx, "1", models.Record{"projectId": float64(1), "projectTitle": "B"})
			require.NoError(t, err)
			assert.Equal(t, "B", saved["projectTitle"])

			local, ok := f.store.Find("1")
			require.True(t, ok)
			assert.Equal(t, "B", local["projectTitle"])
			assert.Equal(t, "15-02-2024", local["createdAt"])
			assert.Equal(t, "A description", local["projectDescription"])
			assert.Equal(t, []any{float64(7)}, local["assignedUserIds"])
		})
	}
}

func TestStore_CreateWithEmptyResponseRelists(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyPessimistic, project(1, "A", 7))
	f.client.emptyEcho = true
	_, err := f.store.List(ctx)
	require.NoError(t, err)

	payload := withoutID(models.ProjectSchema, project(0, "New", 7))
	saved, err := f.store.Create(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, "2", saved.ID(models.ProjectSchema))
	assert.Equal(t, []string{"1", "2"}, ids(f.store.Records()))
	assert.Equal(t, 2, f.client.count("list"))
}

func TestStore_CreateWithEmptyResponseNeverAddsIDlessRecord(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(PolicyPessimistic, project(1, "A", 7))
	f.client.emptyEcho = true
	_, err := f.store.List(ctx)
	require.NoError(t, err)
	f.client.listErrs = []error{serverError()}

	saved, err := f.store.Create(ctx, withoutID(models.ProjectSchema, project(0, "New", 7)))
	require.NoError(t, err, "the server accepted the create")
	assert.Equal(t, "New", saved["projectTitle"])
	assert.Equal(t, []string{"1"}, ids(f.store.Records()))
}

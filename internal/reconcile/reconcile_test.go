package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/schema"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote records every mutation and serves canned state.
type fakeRemote struct {
	fields    map[string][]schema.Field
	ids       map[string]map[int]bool
	records   map[string]map[int]datapkg.Record
	nextID    int
	createdKL map[string]string // local key -> remote-assigned key on CreateField

	created   []string
	updated   []string
	deleted   []string
	mutations int
	failOn    map[int]error // local ids whose create fails
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		fields:    make(map[string][]schema.Field),
		ids:       make(map[string]map[int]bool),
		records:   make(map[string]map[int]datapkg.Record),
		nextID:    1000,
		createdKL: make(map[string]string),
		failOn:    make(map[int]error),
	}
}

func (f *fakeRemote) FetchFields(_ context.Context, ent entity.Config) ([]schema.Field, error) {
	return f.fields[ent.Name], nil
}

func (f *fakeRemote) FetchAllIDs(_ context.Context, ent entity.Config) (map[int]bool, error) {
	out := make(map[int]bool, len(f.ids[ent.Name]))
	for id := range f.ids[ent.Name] {
		out[id] = true
	}
	return out, nil
}

func (f *fakeRemote) Exists(_ context.Context, ent entity.Config, id int) (bool, error) {
	return f.ids[ent.Name][id], nil
}

func (f *fakeRemote) Get(_ context.Context, ent entity.Config, id int) (datapkg.Record, error) {
	if r, ok := f.records[ent.Name][id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("record %d not found", id)
}

func (f *fakeRemote) Create(_ context.Context, ent entity.Config, payload datapkg.Record) (int, error) {
	f.mutations++
	if local, ok := datapkg.AsInt(payload["_fail"]); ok {
		if err, bad := f.failOn[local]; bad {
			return 0, err
		}
	}
	f.nextID++
	if f.ids[ent.Name] == nil {
		f.ids[ent.Name] = make(map[int]bool)
	}
	f.ids[ent.Name][f.nextID] = true
	f.created = append(f.created, fmt.Sprintf("%s:%d", ent.Name, f.nextID))
	if f.records[ent.Name] == nil {
		f.records[ent.Name] = make(map[int]datapkg.Record)
	}
	f.records[ent.Name][f.nextID] = payload
	return f.nextID, nil
}

func (f *fakeRemote) Update(_ context.Context, ent entity.Config, id int, payload datapkg.Record) error {
	f.mutations++
	f.updated = append(f.updated, fmt.Sprintf("%s:%d", ent.Name, id))
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, ent entity.Config, id int) error {
	f.mutations++
	f.deleted = append(f.deleted, fmt.Sprintf("%s:%d", ent.Name, id))
	delete(f.ids[ent.Name], id)
	return nil
}

func (f *fakeRemote) CreateField(_ context.Context, ent entity.Config, field schema.Field) (schema.Field, error) {
	f.mutations++
	created := field
	created.ID = f.nextID
	f.nextID++
	if remoteKey, ok := f.createdKL[field.Key]; ok {
		created.Key = remoteKey
	}
	f.fields[ent.Name] = append(f.fields[ent.Name], created)
	return created, nil
}

func (f *fakeRemote) UpdateField(_ context.Context, ent entity.Config, field schema.Field) error {
	f.mutations++
	f.updated = append(f.updated, fmt.Sprintf("%s:field:%d", ent.Name, field.ID))
	return nil
}

func (f *fakeRemote) DeleteField(_ context.Context, ent entity.Config, fieldID int) error {
	f.mutations++
	f.deleted = append(f.deleted, fmt.Sprintf("%s:field:%d", ent.Name, fieldID))
	return nil
}

func testPackage(t *testing.T) *datapkg.Package {
	t.Helper()
	dir := t.TempDir()
	pkg := datapkg.New(dir, "test")
	pkg.SetResource(datapkg.Resource{
		Entity: "organizations",
		Path:   "organizations.csv",
		Fields: []schema.Field{{Key: "name", Name: "Name", Type: "varchar"}},
	})
	pkg.SetResource(datapkg.Resource{
		Entity: "persons",
		Path:   "persons.csv",
		Fields: []schema.Field{
			{Key: "name", Name: "Name", Type: "varchar"},
			{Key: "org_id", Name: "Organization", Type: "org"},
		},
	})
	require.NoError(t, pkg.SaveRecords("organizations", []datapkg.Record{
		{"id": 11, "name": "Acme"},
	}))
	require.NoError(t, pkg.SaveRecords("persons", []datapkg.Record{
		{"id": 21, "name": "Ada", "org_id": 11},
	}))
	require.NoError(t, pkg.Save())
	return pkg
}

func entities(names ...string) []entity.Config {
	var out []entity.Config
	for _, n := range names {
		ent, _ := entity.Get(n)
		out = append(out, ent)
	}
	return out
}

func TestReferenceRewrite(t *testing.T) {
	pkg := testPackage(t)
	remote := newFakeRemote()
	engine := New(logger.NewTestLogger(), remote, pkg, nil, nil, Options{
		Entities:       entities("organizations", "persons"),
		NoRewriteLocal: true,
	})
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Entities, 2)
	assert.Equal(t, 1, report.Entities[0].Records.Created)
	assert.Equal(t, 1, report.Entities[1].Records.Created)

	// the person payload must carry the org's remote id, not the local one
	orgRemoteID := 0
	for id := range remote.ids["organizations"] {
		orgRemoteID = id
	}
	require.NotZero(t, orgRemoteID)
	var person datapkg.Record
	for _, r := range remote.records["persons"] {
		person = r
	}
	require.NotNil(t, person)
	assert.Equal(t, orgRemoteID, person["org_id"])
}

func TestDryRunNoMutations(t *testing.T) {
	pkg := testPackage(t)
	before, err := os.ReadFile(filepath.Join(pkg.Dir(), "persons.csv"))
	require.NoError(t, err)

	remote := newFakeRemote()
	engine := New(logger.NewTestLogger(), remote, pkg, nil, nil, Options{
		Entities: entities("organizations", "persons"),
		DryRun:   true,
	})
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, remote.mutations)
	assert.Equal(t, 1, report.Entities[0].Records.Created)
	assert.Equal(t, 1, report.Entities[1].Records.Created)

	after, err := os.ReadFile(filepath.Join(pkg.Dir(), "persons.csv"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = os.Stat(filepath.Join(pkg.Dir(), "mappings.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestResumeSkipsSynced(t *testing.T) {
	pkg := testPackage(t)
	require.NoError(t, pkg.SaveRecords("organizations", []datapkg.Record{
		{"id": 11, "name": "Acme"},
		{"id": 12, "name": "Globex"},
		{"id": 13, "name": "Initech"},
	}))

	store := newMemoryStore()
	// a previous run already created 11 and 12
	store.Put("organizations", 11, 1001)
	store.Put("organizations", 12, 1002)

	remote := newFakeRemote()
	engine := New(logger.NewTestLogger(), remote, pkg, store, nil, Options{
		Entities:       entities("organizations"),
		Resume:         true,
		NoRewriteLocal: true,
	})
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	stats := report.Entities[0].Records
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 2, stats.Skipped)
	assert.Len(t, remote.created, 1)
}

func TestUpdateExisting(t *testing.T) {
	pkg := testPackage(t)
	remote := newFakeRemote()
	remote.ids["organizations"] = map[int]bool{11: true}
	engine := New(logger.NewTestLogger(), remote, pkg, nil, nil, Options{
		Entities:           entities("organizations"),
		DeleteExtraRecords: true, // forces the prefetched id set path
		Force:              true,
		NoRewriteLocal:     true,
	})
	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Entities[0].Records.Updated)
	assert.Contains(t, remote.updated, "organizations:11")
}

func TestSkipUnchanged(t *testing.T) {
	pkg := testPackage(t)
	remote := newFakeRemote()
	remote.ids["organizations"] = map[int]bool{11: true}
	remote.records["organizations"] = map[int]datapkg.Record{
		11: {"id": 11, "name": "Acme"},
	}
	engine := New(logger.NewTestLogger(), remote, pkg, nil, nil, Options{
		Entities:      entities("organizations"),
		SkipUnchanged: true,
		NoRewriteLocal: true,
	})
	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Entities[0].Records.Skipped)
	assert.Empty(t, remote.updated)
}

func TestFieldSyncCreatesMissing(t *testing.T) {
	pkg := testPackage(t)
	pkg.SetFields("organizations", []schema.Field{
		{Key: "name", Name: "Name", Type: "varchar"},
		{Key: "_new_abc123", Name: "Budget", Type: "double", Editable: true},
	})
	require.NoError(t, pkg.SaveRecords("organizations", []datapkg.Record{
		{"id": 11, "name": "Acme", "_new_abc123": "5000"},
	}))
	require.NoError(t, pkg.Save())

	remote := newFakeRemote()
	remote.createdKL["_new_abc123"] = "9f00d1"
	engine := New(logger.NewTestLogger(), remote, pkg, nil, nil, Options{
		Entities:       entities("organizations"),
		NoRewriteLocal: true,
	})
	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Entities[0].Fields.Created)

	// the local schema and CSV now carry the remote-assigned key
	fields := pkg.Fields("organizations")
	_, found := schema.FindKey(fields, "9f00d1")
	assert.True(t, found)
	records, err := pkg.LoadRecords("organizations")
	require.NoError(t, err)
	assert.Equal(t, "5000", records[0]["9f00d1"])

	// and the pushed payload used it
	var org datapkg.Record
	for _, r := range remote.records["organizations"] {
		org = r
	}
	require.NotNil(t, org)
	assert.Equal(t, "5000", org["9f00d1"])
}

func TestDeleteExtraRecordsConfirmAbort(t *testing.T) {
	pkg := testPackage(t)
	remote := newFakeRemote()
	remote.ids["organizations"] = map[int]bool{11: true, 500: true}

	aborted := New(logger.NewTestLogger(), remote, pkg, nil, func(string) (Decision, error) {
		return Abort, nil
	}, Options{
		Entities:           entities("organizations"),
		DeleteExtraRecords: true,
		NoRewriteLocal:     true,
	})
	_, err := aborted.Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)
	assert.Empty(t, remote.deleted)

	forced := New(logger.NewTestLogger(), remote, pkg, nil, nil, Options{
		Entities:           entities("organizations"),
		DeleteExtraRecords: true,
		Force:              true,
		NoRewriteLocal:     true,
	})
	report, err := forced.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, remote.deleted, "organizations:500")
	assert.Equal(t, 1, report.Entities[0].Records.Deleted)
}

func TestCreateFailureContinues(t *testing.T) {
	pkg := testPackage(t)
	require.NoError(t, pkg.SaveRecords("organizations", []datapkg.Record{
		{"id": 11, "name": "Acme", "_fail": 11},
		{"id": 12, "name": "Globex"},
	}))
	remote := newFakeRemote()
	remote.failOn[11] = fmt.Errorf("boom")
	engine := New(logger.NewTestLogger(), remote, pkg, nil, nil, Options{
		Entities:       entities("organizations"),
		NoRewriteLocal: true,
	})
	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	stats := report.Entities[0].Records
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Created)
}

func TestPostPassRewritesLocal(t *testing.T) {
	pkg := testPackage(t)
	remote := newFakeRemote()
	engine := New(logger.NewTestLogger(), remote, pkg, nil, nil, Options{
		Entities: entities("organizations", "persons"),
	})
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	orgs, err := pkg.LoadRecords("organizations")
	require.NoError(t, err)
	orgID, ok := datapkg.RecordID(orgs[0])
	require.True(t, ok)
	assert.Greater(t, orgID, 1000)

	persons, err := pkg.LoadRecords("persons")
	require.NoError(t, err)
	ref, ok := datapkg.AsInt(persons[0]["org_id"])
	require.True(t, ok)
	assert.Equal(t, orgID, ref)
	personID, ok := datapkg.RecordID(persons[0])
	require.True(t, ok)
	assert.Greater(t, personID, 1000)
}

func TestPostPassRewritesObjectReferences(t *testing.T) {
	pkg := testPackage(t)
	// reference cells from a backup carry the object form, not a bare id
	require.NoError(t, pkg.SaveRecords("persons", []datapkg.Record{
		{"id": 21, "name": "Ada", "org_id": map[string]any{"value": 11, "name": "Acme"}},
	}))
	remote := newFakeRemote()
	engine := New(logger.NewTestLogger(), remote, pkg, nil, nil, Options{
		Entities: entities("organizations", "persons"),
	})
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	orgs, err := pkg.LoadRecords("organizations")
	require.NoError(t, err)
	orgID, ok := datapkg.RecordID(orgs[0])
	require.True(t, ok)

	persons, err := pkg.LoadRecords("persons")
	require.NoError(t, err)
	ref, ok := datapkg.AsInt(persons[0]["org_id"])
	require.True(t, ok, "org_id should be a bare id after the rewrite, got %v", persons[0]["org_id"])
	assert.Equal(t, orgID, ref)
}

type failingStore struct{ *memoryStore }

func (f failingStore) Put(string, int, int) error { return fmt.Errorf("disk full") }

func TestDryRunMappingFailureCounts(t *testing.T) {
	e := &Engine{
		logger:   logger.NewTestLogger(),
		mappings: failingStore{newMemoryStore()},
		opts:     Options{DryRun: true},
	}
	ent, _ := entity.Get("organizations")
	var stats Stats
	e.createRecord(context.Background(), ent, 11, true, datapkg.Record{"name": "Acme"}, &stats)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Created)
}

func TestActionLog(t *testing.T) {
	pkg := testPackage(t)
	remote := newFakeRemote()
	var actions []Action
	engine := New(logger.NewTestLogger(), remote, pkg, nil, nil, Options{
		Entities:       entities("organizations"),
		NoRewriteLocal: true,
		Log:            func(a Action) { actions = append(actions, a) },
	})
	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "organizations", actions[0].Entity)
	assert.Equal(t, "create", actions[0].Action)
}

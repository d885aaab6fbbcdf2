package console

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdm-console/mdm-console/internal/apiclient"
	"github.com/mdm-console/mdm-console/internal/rbac"
)

func i64(v int64) *int64 { return &v }

// seededBoard holds a catalog of three permissions and two roles.
func seededBoard(t *testing.T) (*Board, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	api.addPermission(1, "materials.view", "View materials", rbac.TemplateRoles{"Viewer": {Enabled: true}, "Editor": {Enabled: true}})
	api.addPermission(2, "materials.edit", "Edit Materials", rbac.TemplateRoles{"Editor": {Enabled: true}, "Viewer": {Enabled: false}})
	api.addPermission(3, "companies.view", "View companies", rbac.TemplateRoles{"Auditor": {Enabled: true}})
	api.addRole(10, "Editor", i64(20), map[int64]rbac.Flags{1: {CanUpdate: true}, 2: {CanCreate: true, CanUpdate: true}})
	api.addRole(11, "Viewer", nil, map[int64]rbac.Flags{1: {}})

	b := NewBoard(api, nil)
	require.NoError(t, b.Load(context.Background()))
	return b, api
}

func TestBoardLoad(t *testing.T) {
	b, _ := seededBoard(t)

	catalog := b.Catalog()
	require.Len(t, catalog, 3)
	require.Equal(t, []int64{1, 2, 3}, []int64{catalog[0].ID, catalog[1].ID, catalog[2].ID})

	roles := b.Roles()
	require.Equal(t, "Editor", roles[0].Name)
	require.Equal(t, "Viewer", roles[1].Name)
	require.Nil(t, roles[1].Priority)

	editor, ok := b.Role("Editor")
	require.True(t, ok)
	require.Equal(t, "materials.edit", editor.Permissions[2].Name)
}

func TestBoardReadsAreCopies(t *testing.T) {
	b, _ := seededBoard(t)
	role, _ := b.Role("Editor")
	role.Permissions[1] = rbac.RolePermission{Name: "tampered"}
	*role.Priority = 99

	again, _ := b.Role("Editor")
	require.Equal(t, "materials.view", again.Permissions[1].Name)
	require.Equal(t, int64(20), *again.Priority)
}

func TestRefreshCoalescesConcurrentCalls(t *testing.T) {
	b, api := seededBoard(t)
	api.rolesCalls.Store(0)
	api.rolesGate = make(chan struct{})
	api.rolesStarted = make(chan struct{}, 1)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = b.Refresh(context.Background())
		}(i)
	}
	<-api.rolesStarted
	time.Sleep(50 * time.Millisecond)
	close(api.rolesGate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), api.rolesCalls.Load())
}

func TestFilterRoles(t *testing.T) {
	b, _ := seededBoard(t)

	require.Len(t, b.FilterRoles(""), 2)
	got := b.FilterRoles("VIEW")
	require.Len(t, got, 1)
	require.Equal(t, "Viewer", got[0].Name)

	got = b.FilterRoles("20")
	require.Len(t, got, 1)
	require.Equal(t, "Editor", got[0].Name)

	require.Empty(t, b.FilterRoles("nobody"))
}

func TestFilterPermissions(t *testing.T) {
	b, _ := seededBoard(t)

	got := b.FilterPermissions("edit materials")
	require.Len(t, got, 1)
	require.Equal(t, int64(2), got[0].ID)

	got = b.FilterPermissions("materials")
	require.Len(t, got, 2)
	require.Len(t, b.FilterPermissions("  "), 3)
}

func TestUnassigned(t *testing.T) {
	b, _ := seededBoard(t)

	un := b.Unassigned("Viewer")
	require.Len(t, un, 2)
	require.Equal(t, int64(2), un[0].ID)
	require.Equal(t, int64(3), un[1].ID)

	require.Len(t, b.Unassigned("Unknown"), 3)
}

func TestToggleFlagSendsSingleField(t *testing.T) {
	b, api := seededBoard(t)

	require.NoError(t, b.ToggleFlag(context.Background(), "Editor", 2, rbac.FieldDelete))

	role, _ := b.Role("Editor")
	require.Equal(t, rbac.Flags{CanCreate: true, CanUpdate: true, CanDelete: true}, role.Permissions[2].Flags)
	require.Equal(t, []rbac.FlagUpdate{{PermissionID: 2, Field: rbac.FieldDelete, Value: true}}, api.flagUpdates)
}

func TestToggleFlagRollsBackOnFailure(t *testing.T) {
	b, api := seededBoard(t)
	api.failFlags[2] = serverError("boom")

	err := b.ToggleFlag(context.Background(), "Editor", 2, rbac.FieldCreate)
	require.ErrorIs(t, err, apiclient.ErrServer)

	role, _ := b.Role("Editor")
	require.Equal(t, rbac.Flags{CanCreate: true, CanUpdate: true}, role.Permissions[2].Flags)
}

func TestToggleFlagUnknownPair(t *testing.T) {
	b, _ := seededBoard(t)
	err := b.ToggleFlag(context.Background(), "Viewer", 3, rbac.FieldCreate)
	require.ErrorIs(t, err, apiclient.ErrNotFound)
	err = b.ToggleFlag(context.Background(), "Ghost", 1, rbac.FieldCreate)
	require.ErrorIs(t, err, apiclient.ErrNotFound)
}

func TestConcurrentTogglesAreIndependent(t *testing.T) {
	b, api := seededBoard(t)
	api.failFlags[1] = serverError("boom")

	var wg sync.WaitGroup
	var errOne, errTwo error
	wg.Add(2)
	go func() {
		defer wg.Done()
		errOne = b.ToggleFlag(context.Background(), "Editor", 1, rbac.FieldExport)
	}()
	go func() {
		defer wg.Done()
		errTwo = b.ToggleFlag(context.Background(), "Editor", 2, rbac.FieldExport)
	}()
	wg.Wait()

	require.Error(t, errOne)
	require.NoError(t, errTwo)
	role, _ := b.Role("Editor")
	assert.False(t, role.Permissions[1].CanExport)
	assert.True(t, role.Permissions[1].CanUpdate)
	assert.True(t, role.Permissions[2].CanExport)
}

type scriptedCommand struct {
	steps []string
	err   error
}

func (c *scriptedCommand) Apply()    { c.steps = append(c.steps, "apply") }
func (c *scriptedCommand) Rollback() { c.steps = append(c.steps, "rollback") }
func (c *scriptedCommand) Execute(ctx context.Context) error {
	c.steps = append(c.steps, "execute")
	return c.err
}

func TestExecutorRun(t *testing.T) {
	ok := &scriptedCommand{}
	require.NoError(t, Executor{}.Run(context.Background(), ok))
	require.Equal(t, []string{"apply", "execute"}, ok.steps)

	failing := &scriptedCommand{err: errors.New("offline")}
	require.Error(t, Executor{}.Run(context.Background(), failing))
	require.Equal(t, []string{"apply", "execute", "rollback"}, failing.steps)
}

func TestRemoveAssignmentRefreshes(t *testing.T) {
	b, _ := seededBoard(t)
	require.NoError(t, b.RemoveAssignment(context.Background(), "Editor", 2))
	role, _ := b.Role("Editor")
	require.NotContains(t, role.Permissions, int64(2))
	require.Len(t, b.Catalog(), 3)
}

func TestDeletePermissionReloadsCatalogAndRoles(t *testing.T) {
	b, api := seededBoard(t)
	catalogBefore := api.catalogCalls.Load()

	require.NoError(t, b.DeletePermission(context.Background(), 1))

	require.Greater(t, api.catalogCalls.Load(), catalogBefore)
	require.Len(t, b.Catalog(), 2)
	viewer, _ := b.Role("Viewer")
	require.Empty(t, viewer.Permissions)
}

func TestDeleteRole(t *testing.T) {
	b, _ := seededBoard(t)
	require.NoError(t, b.DeleteRole(context.Background(), "Viewer"))
	_, ok := b.Role("Viewer")
	require.False(t, ok)
	require.Len(t, b.Catalog(), 3)
	require.ErrorIs(t, b.DeleteRole(context.Background(), "Viewer"), apiclient.ErrNotFound)
}

func TestBoardHidesDanglingAssignments(t *testing.T) {
	api := newFakeAPI()
	api.keepDangling = true
	api.addPermission(1, "materials.view", "View materials", nil)
	api.addRole(10, "Editor", nil, map[int64]rbac.Flags{1: {}, 999: {CanCreate: true}})
	api.roles["Editor"].Permissions[999] = rbac.RolePermission{Name: "ghost", Flags: rbac.Flags{CanCreate: true}}

	b := NewBoard(api, nil)
	require.NoError(t, b.Load(context.Background()))

	role, ok := b.Role("Editor")
	require.True(t, ok)
	require.Contains(t, role.Permissions, int64(1))
	require.NotContains(t, role.Permissions, int64(999))
	require.NotContains(t, b.Roles()[0].Permissions, int64(999))
	require.NotContains(t, b.FilterRoles("edit")[0].Permissions, int64(999))

	err := b.ToggleFlag(context.Background(), "Editor", 999, rbac.FieldCreate)
	require.ErrorIs(t, err, apiclient.ErrNotFound)
	require.Empty(t, api.flagUpdates)
}

func TestCatalogReloadHidesPermissionDeletedElsewhere(t *testing.T) {
	b, api := seededBoard(t)
	api.keepDangling = true

	// another admin deletes permission 1
	api.mu.Lock()
	delete(api.permissions, 1)
	api.mu.Unlock()

	f := b.NewPermissionForm()
	f.Name = "projects.view"
	_, err := f.Create(context.Background())
	require.NoError(t, err)

	_, ok := b.Permission(1)
	require.False(t, ok)
	viewer, _ := b.Role("Viewer")
	require.Empty(t, viewer.Permissions)
	editor, _ := b.Role("Editor")
	require.Equal(t, []int64{2}, keys(editor.Permissions))
}

func TestRefreshSurvivesFirstCallerCancel(t *testing.T) {
	b, api := seededBoard(t)
	api.rolesCalls.Store(0)
	api.rolesGate = make(chan struct{})
	api.rolesStarted = make(chan struct{}, 1)
	api.mu.Lock()
	api.roles["Viewer"].Permissions[3] = rbac.RolePermission{Name: "companies.view"}
	api.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- b.Refresh(ctx) }()
	<-api.rolesStarted

	second := make(chan error, 1)
	go func() { second <- b.Refresh(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)
	close(api.rolesGate)
	require.NoError(t, <-second)

	require.Equal(t, int32(1), api.rolesCalls.Load())
	viewer, _ := b.Role("Viewer")
	require.Contains(t, viewer.Permissions, int64(3))
}

func TestSetFlagWritesExplicitValue(t *testing.T) {
	b, api := seededBoard(t)
	ctx := context.Background()

	require.NoError(t, b.SetFlag(ctx, "Editor", 1, rbac.FieldUpdate, false))
	require.NoError(t, b.SetFlag(ctx, "Editor", 1, rbac.FieldExport, true))
	require.NoError(t, b.SetFlag(ctx, "Editor", 1, rbac.FieldExport, true))

	role, _ := b.Role("Editor")
	require.Equal(t, rbac.Flags{CanExport: true}, role.Permissions[1].Flags)
	require.Equal(t, []rbac.FlagUpdate{
		{PermissionID: 1, Field: rbac.FieldUpdate, Value: false},
		{PermissionID: 1, Field: rbac.FieldExport, Value: true},
		{PermissionID: 1, Field: rbac.FieldExport, Value: true},
	}, api.flagUpdates)

	api.failFlags[2] = serverError("boom")
	err := b.SetFlag(ctx, "Editor", 2, rbac.FieldCreate, false)
	require.ErrorIs(t, err, apiclient.ErrServer)
	role, _ = b.Role("Editor")
	require.True(t, role.Permissions[2].CanCreate)

	require.ErrorIs(t, b.SetFlag(ctx, "Viewer", 2, rbac.FieldCreate, true), apiclient.ErrNotFound)
}

func keys(m map[int64]rbac.RolePermission) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

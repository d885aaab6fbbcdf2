package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mdm-console/mdm-console/internal/apiclient"
	"github.com/mdm-console/mdm-console/internal/rbac"
	"github.com/mdm-console/mdm-console/internal/session"
)

type stubAPI struct {
	mu        sync.Mutex
	perms     []rbac.Permission
	roles     []rbac.Role
	loginRole *string
	loginErr  error
	flagErr   error
	revoked   []string
	nextID    int64
}

func newStubAPI() *stubAPI {
	editor := "Editor"
	return &stubAPI{
		loginRole: &editor,
		nextID:    10,
		perms: []rbac.Permission{
			{ID: 1, Name: "devices.read", Description: "Read devices", TemplateRoles: rbac.TemplateRoles{"Auditor": {Enabled: true}}},
			{ID: 2, Name: "devices.wipe", Description: "Wipe devices"},
			{ID: 3, Name: "reports.export", Description: "Export reports", TemplateRoles: rbac.TemplateRoles{"Auditor": {Enabled: true}}},
		},
		roles: []rbac.Role{{
			RoleSummary: rbac.RoleSummary{ID: 1, Name: "Editor"},
			Permissions: map[int64]rbac.RolePermission{1: {Name: "devices.read", Flags: rbac.Flags{CanCreate: true}}},
		}},
	}
}

func (s *stubAPI) Login(ctx context.Context, email, password string) (apiclient.LoginResult, error) {
	if s.loginErr != nil {
		return apiclient.LoginResult{}, s.loginErr
	}
	return apiclient.LoginResult{Token: "tok", Email: email, Name: "Ada", Role: s.loginRole, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubAPI) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = append(s.revoked, token)
	return nil
}

func (s *stubAPI) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rbac.Permission(nil), s.perms...), nil
}

func (s *stubAPI) CreatePermission(ctx context.Context, in rbac.PermissionInput) (rbac.Permission, error) {
	return rbac.Permission{}, &apiclient.Error{Kind: apiclient.KindServer, Message: "not supported"}
}

func (s *stubAPI) UpdatePermission(ctx context.Context, id int64, in rbac.PermissionInput) (rbac.Permission, error) {
	return rbac.Permission{}, &apiclient.Error{Kind: apiclient.KindServer, Message: "not supported"}
}

func (s *stubAPI) DeletePermission(ctx context.Context, id int64) error { return nil }

func (s *stubAPI) ListRolesWithPermissions(ctx context.Context) ([]rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.Role, len(s.roles))
	for i, r := range s.roles {
		perms := make(map[int64]rbac.RolePermission, len(r.Permissions))
		for id, p := range r.Permissions {
			perms[id] = p
		}
		out[i] = rbac.Role{RoleSummary: r.RoleSummary, Permissions: perms}
	}
	return out, nil
}

func (s *stubAPI) CreateRole(ctx context.Context, in rbac.RoleInput) (rbac.RoleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == in.Name {
			return rbac.RoleSummary{}, &apiclient.Error{Kind: apiclient.KindConflict, Status: http.StatusConflict, Message: "role already exists"}
		}
	}
	s.nextID++
	summary := rbac.RoleSummary{ID: s.nextID, Name: in.Name, Priority: in.Priority}
	s.roles = append(s.roles, rbac.Role{RoleSummary: summary, Permissions: map[int64]rbac.RolePermission{}})
	return summary, nil
}

func (s *stubAPI) UpdateRole(ctx context.Context, id int64, in rbac.RoleInput) (rbac.RoleSummary, error) {
	return rbac.RoleSummary{ID: id, Name: in.Name, Priority: in.Priority}, nil
}

func (s *stubAPI) DeleteRole(ctx context.Context, id int64) error { return nil }

func (s *stubAPI) AssignPermissions(ctx context.Context, roleName string, batch []rbac.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.roles {
		if s.roles[i].Name != roleName {
			continue
		}
		for _, a := range batch {
			s.roles[i].Permissions[a.PermissionID] = rbac.RolePermission{Name: s.nameOf(a.PermissionID), Flags: a.Flags}
		}
	}
	return nil
}

func (s *stubAPI) UpdateAssignmentFlags(ctx context.Context, roleName string, updates []rbac.FlagUpdate) error {
	if s.flagErr != nil {
		return s.flagErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.roles {
		if s.roles[i].Name != roleName {
			continue
		}
		for _, u := range updates {
			p := s.roles[i].Permissions[u.PermissionID]
			p.Flags = p.Flags.With(u.Field, u.Value)
			s.roles[i].Permissions[u.PermissionID] = p
		}
	}
	return nil
}

func (s *stubAPI) RemoveAssignment(ctx context.Context, roleName string, permissionID int64) error {
	return nil
}

func (s *stubAPI) nameOf(id int64) string {
	for _, p := range s.perms {
		if p.ID == id {
			return p.Name
		}
	}
	return ""
}

func (s *stubAPI) role(name string) rbac.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return r
		}
	}
	return rbac.Role{}
}

type harness struct {
	api    *stubAPI
	cli    *ConsoleCLI
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness(t *testing.T, signedIn bool) *harness {
	t.Helper()
	api := newStubAPI()
	provider := session.NewProvider(session.NewMemoryStore(), api, nil)
	require.NoError(t, provider.Init(context.Background()))
	if signedIn {
		_, err := provider.Login(context.Background(), "ada@example.com", "secret")
		require.NoError(t, err)
	}
	h := &harness{api: api, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.cli = NewConsoleCLI(ConsoleOptions{
		Provider: provider,
		API:      api,
		Gate:     session.NewGate(),
		Stdout:   h.stdout,
		Stderr:   h.stderr,
	})
	return h
}

func TestProtectedCommandsDenyWithoutSession(t *testing.T) {
	h := newHarness(t, false)

	code := h.cli.Roles(context.Background(), "", false)
	require.Equal(t, ExitDenied, code)
	require.Contains(t, h.stderr.String(), "Access Denied")
	require.Contains(t, h.stderr.String(), session.ReasonNotSignedIn)
	require.Empty(t, h.stdout.String())
}

func TestProtectedCommandsDenyWithoutRole(t *testing.T) {
	h := newHarness(t, false)
	h.api.loginRole = nil
	require.Equal(t, ExitOK, h.cli.Login(context.Background(), "ada@example.com", "secret"))
	require.Contains(t, h.stdout.String(), "no role is bound")

	code := h.cli.Permissions(context.Background(), "", "", false)
	require.Equal(t, ExitDenied, code)
	require.Contains(t, h.stderr.String(), session.ReasonNoRole)
}

func TestLoginRejectsBlankCredentials(t *testing.T) {
	h := newHarness(t, false)

	code := h.cli.Login(context.Background(), " ", "")
	require.Equal(t, ExitError, code)
	require.Contains(t, h.stderr.String(), "email and password are required")
}

func TestLoginFailureReportsServerMessage(t *testing.T) {
	h := newHarness(t, false)
	h.api.loginErr = &apiclient.Error{Kind: apiclient.KindAuth, Status: http.StatusUnauthorized, Message: "invalid credentials"}

	code := h.cli.Login(context.Background(), "ada@example.com", "wrong")
	require.Equal(t, ExitDenied, code)
	require.Contains(t, h.stderr.String(), "invalid credentials")
}

func TestWhoAmIAndLogout(t *testing.T) {
	h := newHarness(t, true)

	require.Equal(t, ExitOK, h.cli.WhoAmI(context.Background()))
	require.Contains(t, h.stdout.String(), "Ada <ada@example.com>")
	require.Contains(t, h.stdout.String(), "role: Editor")

	h.stdout.Reset()
	require.Equal(t, ExitOK, h.cli.Logout(context.Background()))
	require.Equal(t, []string{"tok"}, h.api.revoked)

	h.stdout.Reset()
	require.Equal(t, ExitOK, h.cli.WhoAmI(context.Background()))
	require.Equal(t, "not signed in\n", h.stdout.String())
}

func TestRolesJSON(t *testing.T) {
	h := newHarness(t, true)

	require.Equal(t, ExitOK, h.cli.Roles(context.Background(), "edit", true))
	var roles []rbac.Role
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &roles))
	require.Len(t, roles, 1)
	require.Equal(t, "Editor", roles[0].Name)
	require.True(t, roles[0].Permissions[1].CanCreate)
}

func TestPermissionsUnassignedFor(t *testing.T) {
	h := newHarness(t, true)

	require.Equal(t, ExitOK, h.cli.Permissions(context.Background(), "", "Editor", false))
	out := h.stdout.String()
	require.NotContains(t, out, "devices.read")
	require.Contains(t, out, "devices.wipe")
	require.Contains(t, out, "reports.export")
}

func TestToggleFlipsFlag(t *testing.T) {
	h := newHarness(t, true)

	require.Equal(t, ExitOK, h.cli.Toggle(context.Background(), "Editor", 1, "can_export"))
	require.Contains(t, h.stdout.String(), "is now true")
	require.True(t, h.api.role("Editor").Permissions[1].CanExport)
}

func TestSetFlagWritesValue(t *testing.T) {
	h := newHarness(t, true)

	require.Equal(t, ExitOK, h.cli.SetFlag(context.Background(), "Editor", 1, "create", false))
	require.Contains(t, h.stdout.String(), "can_create on devices.read is now false")
	require.False(t, h.api.role("Editor").Permissions[1].CanCreate)
}

func TestToggleRejectsUnknownFlag(t *testing.T) {
	h := newHarness(t, true)

	require.Equal(t, ExitUsage, h.cli.Toggle(context.Background(), "Editor", 1, "can_fly"))
}

func TestToggleFailureReportsError(t *testing.T) {
	h := newHarness(t, true)
	h.api.flagErr = &apiclient.Error{Kind: apiclient.KindServer, Status: http.StatusInternalServerError, Message: "boom"}

	require.Equal(t, ExitError, h.cli.Toggle(context.Background(), "Editor", 1, "can_delete"))
	require.Contains(t, h.stderr.String(), "boom")
	require.False(t, h.api.role("Editor").Permissions[1].CanDelete)
}

func TestTemplateListAndApply(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.Equal(t, ExitOK, h.cli.Template(ctx, TemplateOptions{}))
	require.Equal(t, "Auditor\n", h.stdout.String())

	h.stdout.Reset()
	require.Equal(t, ExitOK, h.cli.Template(ctx, TemplateOptions{Target: "Editor", Template: "Auditor", Exclude: []int64{1}}))
	require.Contains(t, h.stdout.String(), "1 permission(s) added")

	perms := h.api.role("Editor").Permissions
	require.Contains(t, perms, int64(3))
	require.Equal(t, rbac.Flags{}, perms[3].Flags)
	// excluded assignment keeps its flags
	require.True(t, perms[1].CanCreate)
}

func TestCreateRoleStagesPermissions(t *testing.T) {
	h := newHarness(t, true)

	code := h.cli.CreateRole(context.Background(), CreateRoleOptions{
		Name:        "Operator",
		Priority:    "5",
		Permissions: []int64{2, 3},
		Flags:       []string{"can_update"},
	})
	require.Equal(t, ExitOK, code, h.stderr.String())

	role := h.api.role("Operator")
	require.NotNil(t, role.Priority)
	require.EqualValues(t, 5, *role.Priority)
	require.True(t, role.Permissions[2].CanUpdate)
	require.True(t, role.Permissions[3].CanUpdate)
	require.False(t, role.Permissions[3].CanDelete)
}

func TestCreateRoleValidation(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.Equal(t, ExitError, h.cli.CreateRole(ctx, CreateRoleOptions{Name: "Ops", Priority: "high"}))
	require.Contains(t, h.stderr.String(), "not a number")

	h.stderr.Reset()
	require.Equal(t, ExitError, h.cli.CreateRole(ctx, CreateRoleOptions{Name: "Editor"}))
	require.Contains(t, h.stderr.String(), "role already exists")
}

package staff

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
	"github.com/Alijeyrad/tabib_backend/pkg/util/password"
)

type fixture struct {
	svc    Service
	store  *repo.MemStore
	authz  authorize.IAuthorization
	hasher *password.Hasher
	admin  repo.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	policyPath := filepath.Join(t.TempDir(), "policy.csv")
	require.NoError(t, os.WriteFile(policyPath, nil, 0o644))
	e, err := authorize.NewFileEnforcer(authorize.Config{
		CasbinModelPath: filepath.Join("..", "..", "..", "config", "casbin_model.conf"),
		PolicyPath:      policyPath,
	})
	require.NoError(t, err)
	authz, err := authorize.NewAuthorization(e, authorize.Config{})
	require.NoError(t, err)
	require.NoError(t, authorize.SeedDefaultPolicies(context.Background(), authz))

	store := repo.NewMemStore()
	hasher := password.NewHasher(password.Config{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})
	return &fixture{
		svc:    New(store, authz, hasher, nil),
		store:  store,
		authz:  authz,
		hasher: hasher,
		admin:  repo.Caller{UserID: uuid.New(), Role: repo.RoleAdmin},
	}
}

func (f *fixture) roles(t *testing.T, id uuid.UUID) []authorize.Role {
	t.Helper()
	roles, err := f.authz.GetRolesForUserInDomain(context.Background(), authorize.GroupSubject(id.String()), authorize.DomainClinic)
	require.NoError(t, err)
	return roles
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Create(ctx, f.admin, CreateStaffRequest{
		FullName: " Dr. Karimi ",
		Username: "Karimi",
		Password: "long enough secret",
		Role:     repo.RoleDoctor,
	})
	require.NoError(t, err)
	assert.Empty(t, res.GeneratedPassword)
	assert.Equal(t, "Dr. Karimi", res.Staff.FullName)
	assert.Equal(t, "karimi", res.Staff.Username)
	assert.True(t, res.Staff.Active)
	assert.NoError(t, f.hasher.Verify(res.Staff.PasswordHash, "long enough secret"))
	assert.Equal(t, []authorize.Role{authorize.RoleClinicDoctor}, f.roles(t, res.Staff.ID))

	ok, err := f.authz.Enforce(ctx, authorize.GroupSubject(res.Staff.ID.String()), authorize.DomainClinic, authorize.ResourceVisit, authorize.ActionComplete)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreate_GeneratesPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Create(ctx, f.admin, CreateStaffRequest{FullName: "Lab One", Username: "lab1", Role: repo.RoleLab})
	require.NoError(t, err)
	require.Len(t, res.GeneratedPassword, 16)
	assert.NoError(t, f.hasher.Verify(res.Staff.PasswordHash, res.GeneratedPassword))
}

func TestCreate_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, f.admin, CreateStaffRequest{FullName: "Cash", Username: "cash", Role: repo.RoleReception})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  CreateStaffRequest
		want error
	}{
		{"missing name", CreateStaffRequest{Username: "abc", Role: repo.RoleLab}, ErrMissingName},
		{"short username", CreateStaffRequest{FullName: "A", Username: "ab", Role: repo.RoleLab}, ErrInvalidUsername},
		{"spaces in username", CreateStaffRequest{FullName: "A", Username: "a b c", Role: repo.RoleLab}, ErrInvalidUsername},
		{"bad role", CreateStaffRequest{FullName: "A", Username: "abc", Role: "janitor"}, ErrInvalidRole},
		{"taken", CreateStaffRequest{FullName: "A", Username: "CASH", Role: repo.RoleLab}, ErrUsernameTaken},
		{"short password", CreateStaffRequest{FullName: "A", Username: "abc", Password: "short", Role: repo.RoleLab}, password.ErrTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.admin, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdate_RoleChangeRegrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Create(ctx, f.admin, CreateStaffRequest{FullName: "Rev", Username: "rev", Role: repo.RoleReception})
	require.NoError(t, err)

	role := repo.RoleReviewer
	name := "Reviewer One"
	st, err := f.svc.Update(ctx, f.admin, res.Staff.ID, UpdateStaffRequest{FullName: &name, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "Reviewer One", st.FullName)
	assert.Equal(t, []authorize.Role{authorize.RoleClinicReviewer}, f.roles(t, st.ID))

	bad := repo.StaffRole("janitor")
	_, err = f.svc.Update(ctx, f.admin, st.ID, UpdateStaffRequest{Role: &bad})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = f.svc.Update(ctx, f.admin, uuid.New(), UpdateStaffRequest{FullName: &name})
	assert.ErrorIs(t, err, ErrStaffNotFound)
}

func TestSetActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Create(ctx, f.admin, CreateStaffRequest{FullName: "Dr. A", Username: "dra", Role: repo.RoleDoctor})
	require.NoError(t, err)
	id := res.Staff.ID

	st, err := f.svc.SetActive(ctx, f.admin, id, false)
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.Empty(t, f.roles(t, id))

	doctors, err := f.svc.Doctors(ctx)
	require.NoError(t, err)
	assert.Empty(t, doctors)

	_, err = f.svc.SetActive(ctx, f.admin, id, true)
	require.NoError(t, err)
	assert.Equal(t, []authorize.Role{authorize.RoleClinicDoctor}, f.roles(t, id))

	doctors, err = f.svc.Doctors(ctx)
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, id, doctors[0].ID)

	self := repo.Caller{UserID: id, Role: repo.RoleDoctor}
	_, err = f.svc.SetActive(ctx, self, id, false)
	assert.ErrorIs(t, err, ErrSelfDeactivation)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, req := range []CreateStaffRequest{
		{FullName: "Zed", Username: "zed", Role: repo.RoleDoctor},
		{FullName: "Amir", Username: "amir", Role: repo.RoleDoctor},
		{FullName: "Lab", Username: "lab", Role: repo.RoleLab},
	} {
		_, err := f.svc.Create(ctx, f.admin, req)
		require.NoError(t, err)
	}

	all, err := f.svc.List(ctx, ListStaffRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	doctors, err := f.svc.Doctors(ctx)
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, "Amir", doctors[0].FullName)

	bad := repo.StaffRole("janitor")
	_, err = f.svc.List(ctx, ListStaffRequest{Role: &bad})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Create(ctx, f.admin, CreateStaffRequest{FullName: "Cash", Username: "cash", Password: "original secret", Role: repo.RoleReception})
	require.NoError(t, err)

	pw, err := f.svc.ResetPassword(ctx, f.admin, res.Staff.ID)
	require.NoError(t, err)

	st, err := f.store.GetStaff(ctx, res.Staff.ID)
	require.NoError(t, err)
	assert.NoError(t, f.hasher.Verify(st.PasswordHash, pw))
	assert.ErrorIs(t, f.hasher.Verify(st.PasswordHash, "original secret"), password.ErrMismatch)
}

package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	pasetotoken "github.com/Alijeyrad/tabib_backend/pkg/paseto"
	redispkg "github.com/Alijeyrad/tabib_backend/pkg/redis"
	"github.com/Alijeyrad/tabib_backend/pkg/util/password"
)

type memSessions struct {
	mu    sync.Mutex
	owner map[uuid.UUID]uuid.UUID
}

func (m *memSessions) Open(_ context.Context, id, staffID uuid.UUID, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner[id] = staffID
	return nil
}

func (m *memSessions) Owner(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owner[id]
	if !ok {
		return uuid.Nil, redispkg.ErrSessionNotFound
	}
	return o, nil
}

func (m *memSessions) Extend(_ context.Context, id uuid.UUID, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owner[id]; !ok {
		return redispkg.ErrSessionNotFound
	}
	return nil
}

func (m *memSessions) Close(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.owner, id)
	return nil
}

type memAttempts struct {
	n map[string]int
}

func (m *memAttempts) Fail(_ context.Context, u string) (int, error) {
	m.n[u]++
	return m.n[u], nil
}

func (m *memAttempts) Count(_ context.Context, u string) (int, error) { return m.n[u], nil }

func (m *memAttempts) Reset(_ context.Context, u string) error {
	delete(m.n, u)
	return nil
}

type fixture struct {
	svc      Service
	store    *repo.MemStore
	sessions *memSessions
	attempts *memAttempts
	hasher   *password.Hasher
	tokens   *pasetotoken.Manager
	staff    *repo.Staff
}

const secret = "correct horse battery"

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokens, err := pasetotoken.New(pasetotoken.Config{
		Mode:      pasetotoken.ModeLocal,
		Issuer:    "tabib",
		Audience:  "tabib-api",
		AccessTTL: time.Minute,
	}, pasetotoken.NewLocalKeys())
	require.NoError(t, err)

	hasher := password.NewHasher(password.Config{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})
	hash, err := hasher.Hash(secret)
	require.NoError(t, err)

	store := repo.NewMemStore()
	st := &repo.Staff{FullName: "Dr. Karimi", Username: "karimi", PasswordHash: hash, Role: repo.RoleDoctor, Active: true}
	require.NoError(t, store.CreateStaff(context.Background(), st))

	f := &fixture{
		store:    store,
		sessions: &memSessions{owner: map[uuid.UUID]uuid.UUID{}},
		attempts: &memAttempts{n: map[string]int{}},
		hasher:   hasher,
		tokens:   tokens,
		staff:    st,
	}
	f.svc = New(Deps{
		Store:       store,
		Tokens:      tokens,
		Sessions:    f.sessions,
		Attempts:    f.attempts,
		Hasher:      hasher,
		MaxAttempts: 3,
	})
	return f
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Login(ctx, LoginRequest{Username: " Karimi ", Password: secret})
	require.NoError(t, err)
	assert.Equal(t, f.staff.ID, res.Staff.ID)
	assert.Equal(t, int64(60), res.Tokens.ExpiresIn)

	id, err := f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, repo.Caller{UserID: f.staff.ID, Role: repo.RoleDoctor}, id.Caller)
	assert.Len(t, f.sessions.owner, 1)
}

func TestLogin_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	disabled := &repo.Staff{FullName: "Old", Username: "old", PasswordHash: f.staff.PasswordHash, Role: repo.RoleLab}
	require.NoError(t, f.store.CreateStaff(ctx, disabled))

	tests := []struct {
		name string
		req  LoginRequest
		want error
	}{
		{"empty", LoginRequest{}, ErrInvalidCredentials},
		{"unknown user", LoginRequest{Username: "nobody", Password: secret}, ErrInvalidCredentials},
		{"wrong password", LoginRequest{Username: "karimi", Password: "nope-nope"}, ErrInvalidCredentials},
		{"disabled", LoginRequest{Username: "old", Password: secret}, ErrAccountDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.sessions.owner)
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, LoginRequest{Username: "karimi", Password: "wrong-pass"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := f.svc.Login(ctx, LoginRequest{Username: "karimi", Password: secret})
	assert.ErrorIs(t, err, ErrAccountLocked)

	require.NoError(t, f.attempts.Reset(ctx, "karimi"))
	_, err = f.svc.Login(ctx, LoginRequest{Username: "karimi", Password: secret})
	assert.NoError(t, err)
}

func TestLogin_SuccessClearsAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Login(ctx, LoginRequest{Username: "karimi", Password: "wrong-pass"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginRequest{Username: "karimi", Password: secret})
	require.NoError(t, err)
	assert.Zero(t, f.attempts.n["karimi"])
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Login(ctx, LoginRequest{Username: "karimi", Password: secret})
	require.NoError(t, err)

	// Access tokens cannot be used to refresh.
	_, err = f.svc.Refresh(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A role change shows up in the refreshed token.
	st, err := f.store.GetStaff(ctx, f.staff.ID)
	require.NoError(t, err)
	st.Role = repo.RoleReviewer
	require.NoError(t, f.store.UpdateStaff(ctx, st))

	tokens, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	id, err := f.svc.Authenticate(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, repo.RoleReviewer, id.Caller.Role)
}

func TestRefresh_DisabledStaffClosesSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Login(ctx, LoginRequest{Username: "karimi", Password: secret})
	require.NoError(t, err)

	st, err := f.store.GetStaff(ctx, f.staff.ID)
	require.NoError(t, err)
	st.Active = false
	require.NoError(t, f.store.UpdateStaff(ctx, st))

	_, err = f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrAccountDisabled)
	assert.Empty(t, f.sessions.owner)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Login(ctx, LoginRequest{Username: "karimi", Password: secret})
	require.NoError(t, err)
	id, err := f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, id.SessionID))

	_, err = f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAuthenticate_ForeignSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sid := uuid.New()
	require.NoError(t, f.sessions.Open(ctx, sid, uuid.New(), time.Hour))
	tok, err := f.tokens.IssueAccess(pasetotoken.Subject{UserID: f.staff.ID, Role: "doctor", SessionID: &sid})
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Authenticate(ctx, "v4.local.garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	caller := repo.Caller{UserID: f.staff.ID, Role: repo.RoleDoctor}

	err := f.svc.ChangePassword(ctx, caller, ChangePasswordRequest{CurrentPassword: "wrong-pass", NewPassword: "brand new secret"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = f.svc.ChangePassword(ctx, caller, ChangePasswordRequest{CurrentPassword: secret, NewPassword: "short"})
	assert.ErrorIs(t, err, password.ErrTooShort)

	require.NoError(t, f.svc.ChangePassword(ctx, caller, ChangePasswordRequest{CurrentPassword: secret, NewPassword: "brand new secret"}))
	_, err = f.svc.Login(ctx, LoginRequest{Username: "karimi", Password: "brand new secret"})
	assert.NoError(t, err)
}

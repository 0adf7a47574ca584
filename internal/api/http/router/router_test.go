package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/tabib_backend/config"
	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/queue"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/assistant"
	"github.com/Alijeyrad/tabib_backend/internal/service/auth"
	"github.com/Alijeyrad/tabib_backend/internal/service/cashier"
	"github.com/Alijeyrad/tabib_backend/internal/service/consult"
	svcfile "github.com/Alijeyrad/tabib_backend/internal/service/file"
	"github.com/Alijeyrad/tabib_backend/internal/service/lab"
	"github.com/Alijeyrad/tabib_backend/internal/service/patient"
	"github.com/Alijeyrad/tabib_backend/internal/service/prescription"
	"github.com/Alijeyrad/tabib_backend/internal/service/staff"
	"github.com/Alijeyrad/tabib_backend/internal/service/visit"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
	pasetotoken "github.com/Alijeyrad/tabib_backend/pkg/paseto"
	redispkg "github.com/Alijeyrad/tabib_backend/pkg/redis"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
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

type apiFixture struct {
	app       *fiber.App
	store     *repo.MemStore
	staff     staff.Service
	projector *feed.Projector
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	policy := filepath.Join(t.TempDir(), "policy.csv")
	require.NoError(t, os.WriteFile(policy, nil, 0o644))
	enforcer, err := authorize.NewFileEnforcer(authorize.Config{
		CasbinModelPath: filepath.Join("..", "..", "..", "..", "config", "casbin_model.conf"),
		PolicyPath:      policy,
	})
	require.NoError(t, err)
	authz, err := authorize.NewAuthorization(enforcer, authorize.Config{})
	require.NoError(t, err)
	require.NoError(t, authorize.SeedDefaultPolicies(ctx, authz))

	tokens, err := pasetotoken.New(pasetotoken.Config{
		Mode:      pasetotoken.ModeLocal,
		Issuer:    "tabib",
		Audience:  "tabib-api",
		AccessTTL: time.Minute,
	}, pasetotoken.NewLocalKeys())
	require.NoError(t, err)

	store := repo.NewMemStore()
	bus := feed.NewLocalBus()
	clk := clock.System()
	loc := time.Local
	hasher := password.NewHasher(password.Config{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})
	files := svcfile.New(svcfile.NewMemoryObjects(), nil, nil)
	asst := assistant.New(nil, nil)

	projector := feed.NewProjector(store, nil, nil)
	unsub, err := bus.Subscribe(projector.Handler(time.Second))
	require.NoError(t, err)
	t.Cleanup(unsub)
	require.NoError(t, projector.Warm(ctx))

	staffSvc := staff.New(store, authz, hasher, nil)
	counter := queue.NewMemoryCounter()
	r := NewRouter(Params{
		Cfg:       &config.Config{Clinic: config.ClinicConfig{DefaultVisitFee: 200}},
		Location:  loc,
		Auth:      authz,
		Bus:       bus,
		Projector: projector,

		AuthSvc: auth.New(auth.Deps{
			Store:    store,
			Tokens:   tokens,
			Sessions: &memSessions{owner: map[uuid.UUID]uuid.UUID{}},
			Hasher:   hasher,
		}),
		StaffSvc:   staffSvc,
		PatientSvc: patient.New(store, nil, "IR", bus, clk, nil),
		VisitSvc: visit.New(visit.Deps{
			Store:    store,
			Counter:  counter,
			Files:    files,
			Feed:     bus,
			Clock:    clk,
			Location: loc,
		}),
		CashierSvc:      cashier.New(store, bus, clk, loc, nil, nil),
		LabSvc:          lab.New(lab.Deps{Store: store, Files: files, Feed: bus, Clock: clk}),
		ConsultSvc:      consult.New(consult.Deps{Store: store, Counter: counter, Assistant: asst, Feed: bus, Clock: clk, Location: loc}),
		PrescriptionSvc: prescription.New(store, clk, nil),
		AssistantSvc:    asst,
		FileSvc:         files,
	})

	app := fiber.New()
	r.Register(app)
	return &apiFixture{app: app, store: store, staff: staffSvc, projector: projector}
}

// hire creates a staff member and returns their id and an access token.
func (f *apiFixture) hire(t *testing.T, username string, role repo.StaffRole) (uuid.UUID, string) {
	t.Helper()
	admin := repo.Caller{UserID: uuid.New(), Role: repo.RoleAdmin}
	res, err := f.staff.Create(context.Background(), admin, staff.CreateStaffRequest{
		FullName: username,
		Username: username,
		Password: "long enough secret",
		Role:     role,
	})
	require.NoError(t, err)

	var login struct {
		AccessToken string `json:"access_token"`
	}
	status := f.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": "long enough secret",
	}, &login)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, login.AccessToken)
	return res.Staff.ID, login.AccessToken
}

// call sends a JSON request and decodes the "data" envelope into out.
func (f *apiFixture) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return resp.StatusCode
}

func TestFrontDeskScenario(t *testing.T) {
	f := newAPI(t)
	doctorID, _ := f.hire(t, "dr.karimi", repo.RoleDoctor)
	_, desk := f.hire(t, "frontdesk", repo.RoleReception)

	var p struct {
		ID uuid.UUID `json:"id"`
	}
	status := f.call(t, http.MethodPost, "/api/v1/patients", desk, map[string]string{
		"full_name": "Sara Ahmadi",
		"phone":     "09121234567",
	}, &p)
	require.Equal(t, http.StatusCreated, status)

	var created visit.CreateVisitResult
	status = f.call(t, http.MethodPost, "/api/v1/visits", desk, map[string]any{
		"patient_id": p.ID,
		"doctor_id":  doctorID,
		"is_paid":    false,
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 1, created.QueueNumber)
	assert.EqualValues(t, 200, created.Visit.Fee)
	assert.Equal(t, repo.PaymentUnpaid, created.Visit.PaymentStatus)
	assert.Nil(t, created.Payment)

	var unpaid []*repo.Visit
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/cashier/unpaid-visits", desk, nil, &unpaid))
	require.Len(t, unpaid, 1)
	assert.Equal(t, created.Visit.ID, unpaid[0].ID)

	var paid repo.Payment
	status = f.call(t, http.MethodPost, "/api/v1/cashier/payments", desk, map[string]any{
		"type":       repo.PaymentVisitFee,
		"target_id":  created.Visit.ID,
		"amount":     200,
		"patient_id": p.ID,
	}, &paid)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int64(200), paid.Amount)
	assert.Equal(t, created.Visit.ID, paid.ReferenceID)

	var v repo.Visit
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/visits/"+created.Visit.ID.String(), desk, nil, &v))
	assert.Equal(t, repo.PaymentPaid, v.PaymentStatus)

	var today cashier.TodaysPayments
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/cashier/payments/today", desk, nil, &today))
	require.Len(t, today.Payments, 1)
	assert.Equal(t, int64(200), today.Total)

	unpaid = nil
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/cashier/unpaid-visits", desk, nil, &unpaid))
	assert.Empty(t, unpaid)
}

func TestAccessControl(t *testing.T) {
	f := newAPI(t)
	_, desk := f.hire(t, "frontdesk", repo.RoleReception)
	_, tech := f.hire(t, "labtech", repo.RoleLab)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/patients", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/patients", "garbage", http.StatusUnauthorized},
		{"reception lists patients", http.MethodGet, "/api/v1/patients", desk, http.StatusOK},
		{"reception cannot complete visits", http.MethodPost, "/api/v1/visits/complete", desk, http.StatusForbidden},
		{"reception cannot manage staff", http.MethodGet, "/api/v1/staff", desk, http.StatusForbidden},
		{"lab reads worklist", http.MethodGet, "/api/v1/lab/worklist", tech, http.StatusOK},
		{"lab cannot take payments", http.MethodPost, "/api/v1/cashier/payments", tech, http.StatusForbidden},
		{"any staff lists doctors", http.MethodGet, "/api/v1/staff/doctors", tech, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.call(t, tt.method, tt.path, tt.token, map[string]any{}, nil))
		})
	}
}

func TestLogoutEndsSession(t *testing.T) {
	f := newAPI(t)
	_, desk := f.hire(t, "frontdesk", repo.RoleReception)

	require.Equal(t, http.StatusNoContent, f.call(t, http.MethodPost, "/api/v1/auth/logout", desk, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, f.call(t, http.MethodGet, "/api/v1/auth/me", desk, nil, nil))
}

func TestAssistantUnavailable(t *testing.T) {
	f := newAPI(t)
	_, doc := f.hire(t, "dr.karimi", repo.RoleDoctor)

	var st struct {
		Enabled bool `json:"enabled"`
	}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/assistant/status", doc, nil, &st))
	assert.False(t, st.Enabled)

	status := f.call(t, http.MethodPost, "/api/v1/assistant/diagnose", doc, map[string]string{"symptoms": "fever"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

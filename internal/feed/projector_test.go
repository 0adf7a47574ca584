package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
)

// flakyStore serves visits from a fixed override or fails, to exercise the
// stale-read and read-failure paths.
type flakyStore struct {
	repo.Store
	visitOverride *repo.Visit
	getErr        error
}

func (s *flakyStore) GetVisit(ctx context.Context, id uuid.UUID) (*repo.Visit, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.visitOverride != nil && s.visitOverride.ID == id {
		v := *s.visitOverride
		return &v, nil
	}
	return s.Store.GetVisit(ctx, id)
}

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store   *repo.MemStore
	patient *repo.Patient
	doctor  *repo.Staff
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := repo.NewMemStore()
	p := &repo.Patient{FullName: "Reza"}
	require.NoError(t, s.CreatePatient(ctx, p))
	d := &repo.Staff{FullName: "Dr. Noori", Username: "noori", Role: repo.RoleDoctor, Active: true}
	require.NoError(t, s.CreateStaff(ctx, d))
	return &fixture{store: s, patient: p, doctor: d}
}

func (f *fixture) visit(t *testing.T, status repo.VisitStatus, at time.Time) *repo.Visit {
	t.Helper()
	p := &repo.Patient{FullName: "patient " + string(status)}
	require.NoError(t, f.store.CreatePatient(context.Background(), p))
	v := &repo.Visit{
		PatientID:     p.ID,
		DoctorID:      f.doctor.ID,
		Status:        status,
		PaymentStatus: repo.PaymentUnpaid,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	require.NoError(t, f.store.CreateVisit(context.Background(), v))
	return v
}

func statusesOf(vs []*repo.Visit) []repo.VisitStatus {
	var out []repo.VisitStatus
	for _, v := range vs {
		out = append(out, v.Status)
	}
	return out
}

func TestProjector_WarmViews(t *testing.T) {
	f := newFixture(t)
	for i, st := range []repo.VisitStatus{repo.VisitWaiting, repo.VisitPendingLab, repo.VisitLabReady, repo.VisitPendingReview, repo.VisitReviewed} {
		f.visit(t, st, t0.Add(time.Duration(i)*time.Minute))
	}

	p := NewProjector(f.store, nil, nil)
	_, ok := p.WaitingRoom(nil)
	assert.False(t, ok)

	require.NoError(t, p.Warm(context.Background()))

	waiting, ok := p.WaitingRoom(nil)
	require.True(t, ok)
	assert.Equal(t, []repo.VisitStatus{repo.VisitWaiting, repo.VisitLabReady}, statusesOf(waiting))

	consults, _ := p.PendingConsults()
	assert.Equal(t, []repo.VisitStatus{repo.VisitPendingReview}, statusesOf(consults))

	unpaid, _ := p.UnpaidVisits()
	assert.Len(t, unpaid, 5)
	assert.Equal(t, repo.VisitReviewed, unpaid[0].Status, "newest first")
}

func TestProjector_PatchMovesRowBetweenViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.visit(t, repo.VisitWaiting, t0)

	p := NewProjector(f.store, nil, nil)
	require.NoError(t, p.Warm(ctx))

	v.Status = repo.VisitPendingLab
	v.PaymentStatus = repo.PaymentPaid
	v.UpdatedAt = t0.Add(time.Minute)
	require.NoError(t, f.store.UpdateVisit(ctx, v))
	require.NoError(t, p.Apply(ctx, NewChange(Visits, Update, v.ID)))

	waiting, _ := p.WaitingRoom(nil)
	assert.Empty(t, waiting)
	unpaid, _ := p.UnpaidVisits()
	assert.Empty(t, unpaid)

	v.Status = repo.VisitLabReady
	v.UpdatedAt = t0.Add(2 * time.Minute)
	require.NoError(t, f.store.UpdateVisit(ctx, v))
	require.NoError(t, p.Apply(ctx, NewChange(Visits, Update, v.ID)))

	waiting, _ = p.WaitingRoom(&f.doctor.ID)
	require.Len(t, waiting, 1)
	assert.Equal(t, repo.VisitLabReady, waiting[0].Status)

	other := uuid.New()
	none, _ := p.WaitingRoom(&other)
	assert.Empty(t, none)
}

func TestProjector_IgnoresStaleRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.visit(t, repo.VisitWaiting, t0)

	fs := &flakyStore{Store: f.store}
	p := NewProjector(fs, nil, nil)
	require.NoError(t, p.Warm(ctx))

	// A newer write removes it from the waiting room.
	v.Status = repo.VisitCompleted
	v.UpdatedAt = t0.Add(2 * time.Minute)
	require.NoError(t, f.store.UpdateVisit(ctx, v))
	require.NoError(t, p.Apply(ctx, NewChange(Visits, Update, v.ID)))

	// A late response carrying an older version must not resurrect it.
	stale := *v
	stale.Status = repo.VisitWaiting
	stale.UpdatedAt = t0.Add(time.Minute)
	fs.visitOverride = &stale
	require.NoError(t, p.Apply(ctx, NewChange(Visits, Update, v.ID)))

	waiting, _ := p.WaitingRoom(nil)
	assert.Empty(t, waiting)
}

// midWarmStore runs during once, while Warm lists lab requests.
type midWarmStore struct {
	repo.Store
	once   sync.Once
	during func()
}

func (s *midWarmStore) ListLabRequests(ctx context.Context, f repo.LabFilter) ([]*repo.LabRequest, error) {
	s.once.Do(s.during)
	return s.Store.ListLabRequests(ctx, f)
}

func TestProjector_WarmKeepsPatchesAppliedDuringFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.visit(t, repo.VisitWaiting, t0)

	ms := &midWarmStore{Store: f.store}
	p := NewProjector(ms, nil, nil)
	ms.during = func() {
		paid := *v
		paid.PaymentStatus = repo.PaymentPaid
		paid.UpdatedAt = t0.Add(time.Minute)
		require.NoError(t, f.store.UpdateVisit(ctx, &paid))
		require.NoError(t, p.Apply(ctx, NewChange(Visits, Update, v.ID)))
	}
	require.NoError(t, p.Warm(ctx))

	unpaid, ok := p.UnpaidVisits()
	assert.True(t, ok)
	assert.Empty(t, unpaid)

	waiting, _ := p.WaitingRoom(nil)
	require.Len(t, waiting, 1)
	assert.Equal(t, repo.PaymentPaid, waiting[0].PaymentStatus)
}

func TestProjector_RewarmDropsUnlistedRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.visit(t, repo.VisitWaiting, t0)
	kept := f.visit(t, repo.VisitLabReady, t0.Add(time.Second))

	p := NewProjector(f.store, nil, nil)
	require.NoError(t, p.Warm(ctx))

	// Completed without a change reaching the projector.
	v.Status = repo.VisitCompleted
	v.UpdatedAt = t0.Add(time.Minute)
	require.NoError(t, f.store.UpdateVisit(ctx, v))
	require.NoError(t, p.Warm(ctx))

	waiting, _ := p.WaitingRoom(nil)
	require.Len(t, waiting, 1)
	assert.Equal(t, kept.ID, waiting[0].ID)
}

func TestProjector_ReadFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.visit(t, repo.VisitWaiting, t0)

	fs := &flakyStore{Store: f.store}
	p := NewProjector(fs, nil, nil)
	require.NoError(t, p.Warm(ctx))

	fs.getErr = errors.New("connection reset")
	err := p.Apply(ctx, NewChange(Visits, Update, v.ID))
	assert.Error(t, err)

	waiting, ok := p.WaitingRoom(nil)
	assert.True(t, ok)
	require.Len(t, waiting, 1)
	assert.Equal(t, v.ID, waiting[0].ID)
}

func TestProjector_PatientRenameAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.visit(t, repo.VisitWaiting, t0)

	p := NewProjector(f.store, nil, nil)
	require.NoError(t, p.Warm(ctx))

	pt, err := f.store.GetPatient(ctx, v.PatientID)
	require.NoError(t, err)
	pt.FullName = "Renamed"
	require.NoError(t, f.store.UpdatePatient(ctx, pt))
	require.NoError(t, p.Apply(ctx, NewChange(Patients, Update, pt.ID)))

	waiting, _ := p.WaitingRoom(nil)
	require.Len(t, waiting, 1)
	assert.Equal(t, "Renamed", waiting[0].PatientName)

	require.NoError(t, p.Apply(ctx, NewChange(Visits, Delete, v.ID)))
	waiting, _ = p.WaitingRoom(nil)
	assert.Empty(t, waiting)
}

func TestProjector_LabViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.visit(t, repo.VisitPendingLab, t0)

	r := &repo.LabRequest{VisitID: v.ID, PatientID: v.PatientID, DoctorID: f.doctor.ID, TestName: "CBC",
		Status: repo.LabPendingPayment, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, f.store.CreateLabRequest(ctx, r))

	p := NewProjector(f.store, nil, nil)
	require.NoError(t, p.Warm(ctx))

	unpaid, _ := p.UnpaidLabRequests()
	require.Len(t, unpaid, 1)
	worklist, _ := p.LabWorklist()
	assert.Empty(t, worklist)

	r.Status = repo.LabPaid
	r.UpdatedAt = t0.Add(time.Minute)
	require.NoError(t, f.store.UpdateLabRequest(ctx, r))
	p.Handler(time.Second)(NewChange(LabRequests, Update, r.ID))

	unpaid, _ = p.UnpaidLabRequests()
	assert.Empty(t, unpaid)
	worklist, _ = p.LabWorklist()
	require.Len(t, worklist, 1)
	assert.Equal(t, "CBC", worklist[0].TestName)
}

func TestProjector_FollowsLocalBus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := NewProjector(f.store, nil, nil)
	require.NoError(t, p.Warm(ctx))

	bus := NewLocalBus()
	unsubscribe, err := bus.Subscribe(p.Handler(time.Second))
	require.NoError(t, err)
	defer unsubscribe()

	v := f.visit(t, repo.VisitPendingReview, t0)
	bus.Publish(ctx, NewChange(Visits, Insert, v.ID))

	consults, _ := p.PendingConsults()
	require.Len(t, consults, 1)
	assert.Equal(t, v.ID, consults[0].ID)
}

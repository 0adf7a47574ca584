package visit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/queue"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/file"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
)

var tehran = time.FixedZone("IRST", 3*3600+1800)

type fixture struct {
	store     *repo.MemStore
	objects   *file.MemoryObjects
	feed      *feed.Recorder
	clock     *clock.Fixed
	svc       Service
	doctor    *repo.Staff
	reception repo.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   repo.NewMemStore(),
		objects: file.NewMemoryObjects(),
		feed:    &feed.Recorder{},
		clock:   &clock.Fixed{T: time.Date(2026, 3, 2, 9, 0, 0, 0, tehran)},
	}
	f.svc = New(Deps{
		Store:    f.store,
		Counter:  queue.NewMemoryCounter(),
		Files:    file.New(f.objects, nil, nil),
		Feed:     f.feed,
		Clock:    f.clock,
		Location: tehran,
	})
	f.doctor = f.addStaff(t, "Dr. Karimi", repo.RoleDoctor)
	rec := f.addStaff(t, "Front Desk", repo.RoleReception)
	f.reception = repo.Caller{UserID: rec.ID, Role: repo.RoleReception}
	return f
}

func (f *fixture) addStaff(t *testing.T, name string, role repo.StaffRole) *repo.Staff {
	t.Helper()
	s := &repo.Staff{FullName: name, Username: name + uuid.NewString()[:8], Role: role, Active: true}
	require.NoError(t, f.store.CreateStaff(context.Background(), s))
	return s
}

func (f *fixture) addPatient(t *testing.T, name string) *repo.Patient {
	t.Helper()
	p := &repo.Patient{FullName: name}
	require.NoError(t, f.store.CreatePatient(context.Background(), p))
	return p
}

func (f *fixture) doctorCaller() repo.Caller {
	return repo.Caller{UserID: f.doctor.ID, Role: repo.RoleDoctor}
}

func (f *fixture) create(t *testing.T, patientID uuid.UUID, paid bool) *CreateVisitResult {
	t.Helper()
	res, err := f.svc.CreateVisit(context.Background(), f.reception, CreateVisitRequest{
		PatientID: patientID,
		DoctorID:  f.doctor.ID,
		Fee:       500_000,
		IsPaid:    paid,
	})
	require.NoError(t, err)
	return res
}

func TestCreateVisit_QueueNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var numbers []int
	for _, name := range []string{"A", "B", "C"} {
		res := f.create(t, f.addPatient(t, name).ID, false)
		numbers = append(numbers, res.QueueNumber)
		assert.Equal(t, res.QueueNumber, res.Visit.QueueNumber)
	}
	assert.Equal(t, []int{1, 2, 3}, numbers)

	// Each doctor has an independent queue.
	other := f.addStaff(t, "Dr. Rahimi", repo.RoleDoctor)
	res, err := f.svc.CreateVisit(ctx, f.reception, CreateVisitRequest{PatientID: f.addPatient(t, "D").ID, DoctorID: other.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, res.QueueNumber)

	// The count restarts after local midnight.
	f.clock.Advance(16 * time.Hour)
	res = f.create(t, f.addPatient(t, "E").ID, false)
	assert.Equal(t, 1, res.QueueNumber)
}

func TestCreateVisit_QueueSeededFromStoredVisits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	midnight := clock.StartOfDay(f.clock.Now(), tehran)

	for i, at := range []time.Time{midnight.Add(-time.Minute), midnight.Add(time.Hour), midnight.Add(2 * time.Hour)} {
		p := f.addPatient(t, "earlier")
		require.NoError(t, f.store.CreateVisit(ctx, &repo.Visit{
			PatientID:     p.ID,
			DoctorID:      f.doctor.ID,
			Status:        repo.VisitCompleted,
			PaymentStatus: repo.PaymentPaid,
			QueueNumber:   i + 1,
			CreatedAt:     at,
		}))
	}

	res := f.create(t, f.addPatient(t, "today").ID, false)
	assert.Equal(t, 3, res.QueueNumber, "two visits since midnight precede this one")
}

func TestCreateVisit_PaidInsertsVisitFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addPatient(t, "Sara")

	res := f.create(t, p.ID, true)
	assert.Equal(t, repo.VisitWaiting, res.Visit.Status)
	assert.Equal(t, repo.PaymentPaid, res.Visit.PaymentStatus)
	require.NotNil(t, res.Payment)

	payments, err := f.store.ListPayments(ctx, repo.PaymentFilter{ReferenceID: &res.Visit.ID})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, repo.PaymentVisitFee, payments[0].Type)
	assert.Equal(t, int64(500_000), payments[0].Amount)
	assert.Equal(t, f.reception.UserID, payments[0].CashierID)

	assert.True(t, f.feed.Has(feed.Visits, feed.Insert, res.Visit.ID))
	assert.True(t, f.feed.Has(feed.Payments, feed.Insert, res.Payment.ID))
}

func TestCreateVisit_UnpaidHasNoPayment(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, f.addPatient(t, "Sara").ID, false)

	assert.Equal(t, repo.PaymentUnpaid, res.Visit.PaymentStatus)
	assert.Nil(t, res.Payment)
	payments, err := f.store.ListPayments(context.Background(), repo.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestCreateVisit_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addPatient(t, "Sara")
	cashierDesk := f.addStaff(t, "Cashier", repo.RoleReception)

	tests := []struct {
		name string
		req  CreateVisitRequest
		want error
	}{
		{"missing patient id", CreateVisitRequest{DoctorID: f.doctor.ID}, ErrMissingPatientID},
		{"unknown patient", CreateVisitRequest{PatientID: uuid.New(), DoctorID: f.doctor.ID}, ErrPatientNotFound},
		{"unknown doctor", CreateVisitRequest{PatientID: p.ID, DoctorID: uuid.New()}, ErrDoctorNotFound},
		{"staff is not a doctor", CreateVisitRequest{PatientID: p.ID, DoctorID: cashierDesk.ID}, ErrDoctorNotFound},
		{"negative fee", CreateVisitRequest{PatientID: p.ID, DoctorID: f.doctor.ID, Fee: -1}, ErrInvalidFee},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateVisit(ctx, f.reception, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateVisit_OneOpenVisitPerPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addPatient(t, "Sara")

	first := f.create(t, p.ID, false)
	_, err := f.svc.CreateVisit(ctx, f.reception, CreateVisitRequest{PatientID: p.ID, DoctorID: f.doctor.ID})
	assert.ErrorIs(t, err, ErrOpenVisitExists)

	// The rejected attempt does not consume a queue number.
	next := f.create(t, f.addPatient(t, "Ali").ID, false)
	assert.Equal(t, first.QueueNumber+1, next.QueueNumber)

	// Still rejected while the visit waits for the lab.
	_, err = f.svc.HoldForLab(ctx, f.doctorCaller(), first.Visit.ID)
	require.NoError(t, err)
	_, err = f.svc.CreateVisit(ctx, f.reception, CreateVisitRequest{PatientID: p.ID, DoctorID: f.doctor.ID})
	assert.ErrorIs(t, err, ErrOpenVisitExists)
}

func TestStartManualVisit(t *testing.T) {
	f := newFixture(t)
	p := f.addPatient(t, "Sara")

	res, err := f.svc.StartManualVisit(context.Background(), f.doctorCaller(), p.ID, repo.Vitals{BloodPressure: "120/80"}, " cough ")
	require.NoError(t, err)
	assert.Equal(t, f.doctor.ID, res.Visit.DoctorID)
	assert.Equal(t, repo.PaymentUnpaid, res.Visit.PaymentStatus)
	assert.Equal(t, repo.VisitWaiting, res.Visit.Status)
	assert.Equal(t, "cough", res.Visit.Symptoms)
	assert.Equal(t, 1, res.QueueNumber)

	// A reception account cannot start a visit as its own doctor.
	_, err = f.svc.StartManualVisit(context.Background(), f.reception, f.addPatient(t, "Ali").ID, repo.Vitals{}, "")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestHoldForLab(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, f.addPatient(t, "Sara").ID, true)

	v, err := f.svc.HoldForLab(ctx, f.doctorCaller(), res.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.VisitPendingLab, v.Status)
	assert.True(t, f.feed.Has(feed.Visits, feed.Update, v.ID))

	room, err := f.svc.WaitingRoom(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, room)

	_, err = f.svc.HoldForLab(ctx, f.doctorCaller(), uuid.New())
	assert.ErrorIs(t, err, ErrVisitNotFound)
}

func TestHoldForLab_IsUnconditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addPatient(t, "Sara")

	done := &repo.Visit{PatientID: p.ID, DoctorID: f.doctor.ID, Status: repo.VisitCompleted, PaymentStatus: repo.PaymentPaid}
	require.NoError(t, f.store.CreateVisit(ctx, done))
	waiting := f.create(t, p.ID, false)

	v, err := f.svc.HoldForLab(ctx, f.doctorCaller(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.VisitPendingLab, v.Status)

	// The patient's newer visit is untouched.
	got, err := f.svc.Get(ctx, waiting.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.VisitWaiting, got.Status)
}

func TestSaveCompleteVisit_RequiresMedicationBeforeAnyWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addPatient(t, "Sara")

	_, err := f.svc.SaveCompleteVisit(ctx, f.doctorCaller(), CompleteVisitRequest{
		PatientID:   p.ID,
		Medications: []repo.Medication{{Name: "  ", Dosage: "1"}},
		Images:      []file.Upload{{Name: "rx.jpg", Data: []byte("x")}},
	})
	assert.ErrorIs(t, err, ErrNoMedications)
	assert.Zero(t, f.objects.Len())
	assert.Empty(t, f.feed.Changes())

	n, err := f.store.CountVisits(ctx, repo.VisitFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveCompleteVisit_CompletesOpenVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.objects.FailSuffix = map[string]error{".tif": errors.New("rejected")}
	p := f.addPatient(t, "Sara")
	open := f.create(t, p.ID, true)

	res, err := f.svc.SaveCompleteVisit(ctx, f.doctorCaller(), CompleteVisitRequest{
		PatientID:   p.ID,
		AIResult:    &repo.AIAnalysis{Diagnosis: "Acute bronchitis", Confidence: 1.4},
		Medications: []repo.Medication{{Name: "Amoxicillin", Dosage: "500mg"}, {Name: ""}},
		Notes:       "rest",
		Images: []file.Upload{
			{Name: "page1.jpg", Data: []byte("1")},
			{Name: "scan.tif", Data: []byte("2")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, open.Visit.ID, res.Visit.ID)
	assert.Equal(t, repo.VisitCompleted, res.Visit.Status)
	assert.Equal(t, repo.PaymentPaid, res.Visit.PaymentStatus)

	require.NotNil(t, res.Diagnosis)
	assert.Equal(t, 1.0, res.Diagnosis.ConfidenceScore)
	assert.Equal(t, "Acute bronchitis", res.Diagnosis.FinalDiagnosis)
	require.NotNil(t, res.Visit.DiagnosisID)
	assert.Equal(t, res.Diagnosis.ID, *res.Visit.DiagnosisID)

	assert.Len(t, res.Prescription.Medications, 1)
	assert.Equal(t, "Acute bronchitis", res.Prescription.Diagnosis)
	assert.Len(t, res.Prescription.Images, 1)
	require.Len(t, res.Uploads, 2)
	assert.Len(t, res.Uploads.Failed(), 1)

	stored, err := f.store.GetVisit(ctx, open.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.VisitCompleted, stored.Status)

	assert.True(t, f.feed.Has(feed.Visits, feed.Update, open.Visit.ID))
	assert.True(t, f.feed.Has(feed.Prescriptions, feed.Insert, res.Prescription.ID))
	assert.True(t, f.feed.Has(feed.Diagnoses, feed.Update, res.Diagnosis.ID))
}

func TestSaveCompleteVisit_InsertsCompletedVisitWhenNoneOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addPatient(t, "Sara")

	// A visit still waiting on the lab is not completable.
	held := f.create(t, p.ID, false)
	_, err := f.svc.HoldForLab(ctx, f.doctorCaller(), held.Visit.ID)
	require.NoError(t, err)

	res, err := f.svc.SaveCompleteVisit(ctx, f.doctorCaller(), CompleteVisitRequest{
		PatientID:   p.ID,
		Diagnosis:   "Migraine",
		Medications: []repo.Medication{{Name: "Ibuprofen"}},
	})
	require.NoError(t, err)

	assert.NotEqual(t, held.Visit.ID, res.Visit.ID)
	assert.Equal(t, repo.VisitCompleted, res.Visit.Status)
	assert.Equal(t, repo.PaymentUnpaid, res.Visit.PaymentStatus)
	assert.Equal(t, f.doctor.ID, res.Visit.DoctorID)
	assert.Nil(t, res.Diagnosis)
	assert.Nil(t, res.Visit.DiagnosisID)
	assert.Equal(t, "Migraine", res.Prescription.Diagnosis)
	assert.Empty(t, res.Uploads)

	prior, err := f.svc.Get(ctx, held.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.VisitPendingLab, prior.Status)
	assert.True(t, f.feed.Has(feed.Visits, feed.Insert, res.Visit.ID))
}

func TestSaveCompleteVisit_UnknownPatient(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SaveCompleteVisit(context.Background(), f.doctorCaller(), CompleteVisitRequest{
		PatientID:   uuid.New(),
		Medications: []repo.Medication{{Name: "Ibuprofen"}},
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestUpdateVitals_AppendsText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, f.addPatient(t, "Sara").ID, false)

	hr := 88
	symptoms := "fever"
	v, err := f.svc.UpdateVitals(ctx, f.doctorCaller(), res.Visit.ID, UpdateVitalsRequest{
		Vitals:   &repo.Vitals{HeartRate: &hr},
		Symptoms: &symptoms,
	})
	require.NoError(t, err)
	assert.Equal(t, "fever", v.Symptoms)

	v, err = f.svc.UpdateVitals(ctx, f.doctorCaller(), res.Visit.ID, UpdateVitalsRequest{AppendText: " CBC: WBC 12k "})
	require.NoError(t, err)
	assert.Equal(t, "fever\n\nCBC: WBC 12k", v.Symptoms)
	require.NotNil(t, v.Vitals.HeartRate)
	assert.Equal(t, 88, *v.Vitals.HeartRate)
}

func TestReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sara := f.addPatient(t, "Sara")

	first := f.create(t, sara.ID, false)
	f.clock.Advance(time.Minute)
	second := f.create(t, f.addPatient(t, "Ali").ID, false)

	room, err := f.svc.WaitingRoom(ctx, &f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, room, 2)
	assert.Equal(t, first.Visit.ID, room[0].ID, "oldest first")
	assert.Equal(t, "Sara", room[0].PatientName)

	today, err := f.svc.ListToday(ctx, nil)
	require.NoError(t, err)
	require.Len(t, today, 2)
	assert.Equal(t, second.Visit.ID, today[0].ID, "newest first")

	f.clock.Advance(24 * time.Hour)
	today, err = f.svc.ListToday(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, today)

	history, err := f.svc.PatientHistory(ctx, sara.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.Visit.ID, history[0].ID)
}

func TestQueueNumbers_CountEveryInsertedVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := []repo.Medication{{Name: "Ibuprofen"}}

	first := f.create(t, f.addPatient(t, "A").ID, false)

	walkIn, err := f.svc.SaveCompleteVisit(ctx, f.doctorCaller(), CompleteVisitRequest{
		PatientID:   f.addPatient(t, "B").ID,
		Medications: rx,
	})
	require.NoError(t, err)

	third := f.create(t, f.addPatient(t, "C").ID, false)

	// Completing an existing visit does not take a number.
	_, err = f.svc.SaveCompleteVisit(ctx, f.doctorCaller(), CompleteVisitRequest{
		PatientID:   third.Visit.PatientID,
		Medications: rx,
	})
	require.NoError(t, err)
	fourth := f.create(t, f.addPatient(t, "D").ID, false)

	tests := []struct {
		name string
		got  int
		want int
	}{
		{"first intake", first.QueueNumber, 1},
		{"walk-in completion", walkIn.Visit.QueueNumber, 2},
		{"intake after walk-in", third.QueueNumber, 3},
		{"intake after completing", fourth.QueueNumber, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	n, err := f.store.CountVisits(ctx, repo.VisitFilter{DoctorID: &f.doctor.ID})
	require.NoError(t, err)
	assert.Equal(t, n, fourth.QueueNumber)
}

// failPrescriptions fails every prescription insert made in a transaction.
type failPrescriptions struct {
	repo.Store
	err error
}

func (s failPrescriptions) WithTx(ctx context.Context, fn func(tx repo.Store) error) error {
	return s.Store.WithTx(ctx, func(tx repo.Store) error {
		return fn(failPrescriptions{Store: tx, err: s.err})
	})
}

func (s failPrescriptions) CreatePrescription(context.Context, *repo.Prescription) error {
	return s.err
}

func TestSaveCompleteVisit_FailedWriteReportsStoredImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("disk full")
	svc := New(Deps{
		Store:    failPrescriptions{Store: f.store, err: boom},
		Counter:  queue.NewMemoryCounter(),
		Files:    file.New(f.objects, nil, nil),
		Clock:    f.clock,
		Location: tehran,
	})
	open := f.create(t, f.addPatient(t, "Sara").ID, false)

	_, err := svc.SaveCompleteVisit(ctx, f.doctorCaller(), CompleteVisitRequest{
		PatientID:   open.Visit.PatientID,
		Medications: []repo.Medication{{Name: "Ibuprofen"}},
		Images:      []file.Upload{{Name: "rx.jpg", Data: []byte("1")}},
	})
	require.ErrorIs(t, err, boom)

	var orphaned *file.OrphanedError
	require.ErrorAs(t, err, &orphaned)
	require.Len(t, orphaned.Keys, 1)
	_, stored := f.objects.Get(orphaned.Keys[0])
	assert.True(t, stored)

	got, err := f.svc.Get(ctx, open.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.VisitWaiting, got.Status, "the transaction rolled back")
}

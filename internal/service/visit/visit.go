package visit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/queue"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/file"
	"github.com/Alijeyrad/tabib_backend/pkg/observability"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type CreateVisitRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Fee       int64
	IsPaid    bool
	Vitals    repo.Vitals
	Symptoms  string
}

type CreateVisitResult struct {
	Visit       *repo.Visit   `json:"visit"`
	Payment     *repo.Payment `json:"payment,omitempty"`
	QueueNumber int           `json:"queue_number"`
}

type CompleteVisitRequest struct {
	PatientID uuid.UUID
	// AIResult is the assisted diagnosis the doctor accepted, if any.
	AIResult    *repo.AIAnalysis
	Diagnosis   string
	Medications []repo.Medication
	Notes       string
	Images      []file.Upload
}

type CompleteVisitResult struct {
	Visit        *repo.Visit        `json:"visit"`
	Prescription *repo.Prescription `json:"prescription"`
	Diagnosis    *repo.Diagnosis    `json:"diagnosis,omitempty"`
	Uploads      file.Manifest      `json:"uploads"`
}

type UpdateVitalsRequest struct {
	Vitals   *repo.Vitals
	Symptoms *string
	// AppendText is added below the symptoms, e.g. text read off a referral letter.
	AppendText string
}

// Deps are the collaborators of the visit service.
type Deps struct {
	Store    repo.Store
	Counter  queue.Counter
	Files    file.Service
	Feed     feed.Publisher
	Clock    clock.Clock
	Location *time.Location
	Metrics  *observability.ClinicMetrics
	Log      *slog.Logger
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	CreateVisit(ctx context.Context, caller repo.Caller, req CreateVisitRequest) (*CreateVisitResult, error)
	// StartManualVisit opens an unpaid visit with the calling doctor.
	StartManualVisit(ctx context.Context, caller repo.Caller, patientID uuid.UUID, vitals repo.Vitals, symptoms string) (*CreateVisitResult, error)
	// HoldForLab parks the visit until lab results arrive. It does not check
	// the current status.
	HoldForLab(ctx context.Context, caller repo.Caller, visitID uuid.UUID) (*repo.Visit, error)
	SaveCompleteVisit(ctx context.Context, caller repo.Caller, req CompleteVisitRequest) (*CompleteVisitResult, error)
	UpdateVitals(ctx context.Context, caller repo.Caller, visitID uuid.UUID, req UpdateVitalsRequest) (*repo.Visit, error)

	Get(ctx context.Context, visitID uuid.UUID) (*repo.Visit, error)
	WaitingRoom(ctx context.Context, doctorID *uuid.UUID) ([]*repo.Visit, error)
	ListToday(ctx context.Context, doctorID *uuid.UUID) ([]*repo.Visit, error)
	PatientHistory(ctx context.Context, patientID uuid.UUID) ([]*repo.Visit, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type visitService struct {
	store   repo.Store
	queue   *queue.Numberer
	files   file.Service
	feed    feed.Publisher
	clock   clock.Clock
	loc     *time.Location
	metrics *observability.ClinicMetrics
	log     *slog.Logger
}

func New(d Deps) Service {
	s := &visitService{
		store:   d.Store,
		files:   d.Files,
		feed:    d.Feed,
		clock:   d.Clock,
		loc:     d.Location,
		metrics: d.Metrics,
		log:     d.Log,
	}
	if s.feed == nil {
		s.feed = feed.Nop{}
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.queue = queue.NewNumberer(d.Counter, d.Store, s.loc)
	return s
}

// ---------------------------------------------------------------------------
// Intake
// ---------------------------------------------------------------------------

func (s *visitService) CreateVisit(ctx context.Context, caller repo.Caller, req CreateVisitRequest) (*CreateVisitResult, error) {
	if req.PatientID == uuid.Nil {
		return nil, ErrMissingPatientID
	}
	if req.Fee < 0 {
		return nil, ErrInvalidFee
	}
	return s.open(ctx, caller, req)
}

func (s *visitService) StartManualVisit(ctx context.Context, caller repo.Caller, patientID uuid.UUID, vitals repo.Vitals, symptoms string) (*CreateVisitResult, error) {
	if patientID == uuid.Nil {
		return nil, ErrMissingPatientID
	}
	return s.open(ctx, caller, CreateVisitRequest{
		PatientID: patientID,
		DoctorID:  caller.UserID,
		Vitals:    vitals,
		Symptoms:  symptoms,
	})
}

func (s *visitService) open(ctx context.Context, caller repo.Caller, req CreateVisitRequest) (*CreateVisitResult, error) {
	if _, err := s.store.GetPatient(ctx, req.PatientID); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	if err := s.checkDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	// Fail before a queue number is spent.
	open, err := s.store.ListVisits(ctx, repo.VisitFilter{
		PatientID: &req.PatientID,
		Statuses:  repo.OpenVisitStatuses,
		Limit:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("check open visit: %w", err)
	}
	if len(open) > 0 {
		return nil, ErrOpenVisitExists
	}

	now := s.clock.Now()
	number, err := s.queue.Next(ctx, req.DoctorID, now)
	if err != nil {
		return nil, fmt.Errorf("allocate queue number: %w", err)
	}

	v := &repo.Visit{
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		VisitDate:     now,
		Vitals:        req.Vitals,
		Symptoms:      strings.TrimSpace(req.Symptoms),
		Status:        repo.VisitWaiting,
		PaymentStatus: repo.PaymentUnpaid,
		Fee:           req.Fee,
		QueueNumber:   number,
		CreatedBy:     caller.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.IsPaid {
		v.PaymentStatus = repo.PaymentPaid
	}

	var pay *repo.Payment
	err = s.store.WithTx(ctx, func(tx repo.Store) error {
		if err := tx.CreateVisit(ctx, v); err != nil {
			return err
		}
		if !req.IsPaid {
			return nil
		}
		patientID := req.PatientID
		pay = &repo.Payment{
			PatientID:   &patientID,
			CashierID:   caller.UserID,
			Amount:      req.Fee,
			Type:        repo.PaymentVisitFee,
			ReferenceID: v.ID,
			Description: "visit fee",
			CreatedAt:   now,
		}
		return tx.CreatePayment(ctx, pay)
	})
	if err != nil {
		if repo.IsConflict(err) {
			return nil, ErrOpenVisitExists
		}
		return nil, fmt.Errorf("create visit: %w", err)
	}

	s.feed.Publish(ctx, feed.NewChange(feed.Visits, feed.Insert, v.ID))
	if pay != nil {
		s.feed.Publish(ctx, feed.NewChange(feed.Payments, feed.Insert, pay.ID))
		s.metrics.PaymentProcessed(ctx, string(pay.Type), pay.Amount)
	}
	s.metrics.VisitCreated(ctx, string(v.Status))
	s.log.InfoContext(ctx, "visit: created",
		"visit_id", v.ID, "doctor_id", v.DoctorID, "queue_number", number, "paid", req.IsPaid)

	return &CreateVisitResult{Visit: v, Payment: pay, QueueNumber: number}, nil
}

func (s *visitService) checkDoctor(ctx context.Context, id uuid.UUID) error {
	d, err := s.store.GetStaff(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return ErrDoctorNotFound
		}
		return fmt.Errorf("get doctor: %w", err)
	}
	if d.Role != repo.RoleDoctor || !d.Active {
		return ErrDoctorNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

func (s *visitService) HoldForLab(ctx context.Context, caller repo.Caller, visitID uuid.UUID) (*repo.Visit, error) {
	v, err := s.Get(ctx, visitID)
	if err != nil {
		return nil, err
	}
	from := v.Status
	v.Status = repo.VisitPendingLab
	v.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateVisit(ctx, v); err != nil {
		return nil, fmt.Errorf("hold visit: %w", err)
	}
	s.feed.Publish(ctx, feed.NewChange(feed.Visits, feed.Update, v.ID))
	s.log.InfoContext(ctx, "visit: held for lab", "visit_id", v.ID, "from", from, "by", caller.UserID)
	return v, nil
}

func (s *visitService) SaveCompleteVisit(ctx context.Context, caller repo.Caller, req CompleteVisitRequest) (*CompleteVisitResult, error) {
	meds := repo.NamedMedications(req.Medications)
	if len(meds) == 0 {
		return nil, ErrNoMedications
	}
	if req.PatientID == uuid.Nil {
		return nil, ErrMissingPatientID
	}
	if _, err := s.store.GetPatient(ctx, req.PatientID); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}

	var manifest file.Manifest
	if len(req.Images) > 0 {
		manifest = s.files.UploadBatch(ctx, "prescriptions/"+req.PatientID.String(), req.Images)
	}

	var analysis *repo.AIAnalysis
	if req.AIResult != nil {
		a := *req.AIResult
		a.Normalize()
		analysis = &a
	}
	diagnosisText := strings.TrimSpace(req.Diagnosis)
	if diagnosisText == "" && analysis != nil {
		diagnosisText = analysis.Diagnosis
	}

	now := s.clock.Now()
	var (
		v        *repo.Visit
		inserted bool
		diag     *repo.Diagnosis
		rx       *repo.Prescription
	)
	err := s.store.WithTx(ctx, func(tx repo.Store) error {
		open, err := tx.ListVisits(ctx, repo.VisitFilter{
			PatientID: &req.PatientID,
			Statuses:  repo.CompletableStatuses,
			Limit:     1,
		})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			v = open[0]
			v.Status = repo.VisitCompleted
			v.UpdatedAt = now
		} else {
			number, err := s.queue.Next(ctx, caller.UserID, now)
			if err != nil {
				return fmt.Errorf("allocate queue number: %w", err)
			}
			inserted = true
			v = &repo.Visit{
				PatientID:     req.PatientID,
				DoctorID:      caller.UserID,
				VisitDate:     now,
				Status:        repo.VisitCompleted,
				PaymentStatus: repo.PaymentUnpaid,
				QueueNumber:   number,
				CreatedBy:     caller.UserID,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.CreateVisit(ctx, v); err != nil {
				return err
			}
		}

		if analysis != nil {
			diag = &repo.Diagnosis{
				VisitID:         v.ID,
				FinalDiagnosis:  diagnosisText,
				AIAnalysis:      analysis,
				ConfidenceScore: analysis.Confidence,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.UpsertDiagnosis(ctx, diag); err != nil {
				return err
			}
			v.DiagnosisID = &diag.ID
		}
		if !inserted || diag != nil {
			if err := tx.UpdateVisit(ctx, v); err != nil {
				return err
			}
		}

		rx = &repo.Prescription{
			VisitID:     v.ID,
			PatientID:   req.PatientID,
			DoctorID:    caller.UserID,
			Medications: meds,
			Diagnosis:   diagnosisText,
			Notes:       strings.TrimSpace(req.Notes),
			Images:      manifest.Keys(),
			CreatedAt:   now,
		}
		return tx.CreatePrescription(ctx, rx)
	})
	if err != nil {
		err = file.Orphaned(fmt.Errorf("complete visit: %w", err), manifest)
		var orphaned *file.OrphanedError
		if errors.As(err, &orphaned) {
			s.log.ErrorContext(ctx, "visit: prescription images left unreferenced",
				"patient_id", req.PatientID, "keys", orphaned.Keys, "error", orphaned.Err)
		}
		return nil, err
	}

	if inserted {
		s.feed.Publish(ctx, feed.NewChange(feed.Visits, feed.Insert, v.ID))
		s.metrics.VisitCreated(ctx, string(v.Status))
	} else {
		s.feed.Publish(ctx, feed.NewChange(feed.Visits, feed.Update, v.ID))
	}
	if diag != nil {
		s.feed.Publish(ctx, feed.NewChange(feed.Diagnoses, feed.Update, diag.ID).WithRef(v.ID))
	}
	s.feed.Publish(ctx, feed.NewChange(feed.Prescriptions, feed.Insert, rx.ID))
	s.log.InfoContext(ctx, "visit: completed",
		"visit_id", v.ID, "new_visit", inserted, "medications", len(meds), "failed_uploads", len(manifest.Failed()))

	return &CompleteVisitResult{Visit: v, Prescription: rx, Diagnosis: diag, Uploads: manifest}, nil
}

func (s *visitService) UpdateVitals(ctx context.Context, caller repo.Caller, visitID uuid.UUID, req UpdateVitalsRequest) (*repo.Visit, error) {
	v, err := s.Get(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if req.Vitals != nil {
		v.Vitals = *req.Vitals
	}
	if req.Symptoms != nil {
		v.Symptoms = strings.TrimSpace(*req.Symptoms)
	}
	if extra := strings.TrimSpace(req.AppendText); extra != "" {
		if v.Symptoms == "" {
			v.Symptoms = extra
		} else {
			v.Symptoms += "\n\n" + extra
		}
	}
	v.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateVisit(ctx, v); err != nil {
		return nil, fmt.Errorf("update vitals: %w", err)
	}
	s.feed.Publish(ctx, feed.NewChange(feed.Visits, feed.Update, v.ID))
	s.log.DebugContext(ctx, "visit: vitals updated", "visit_id", v.ID, "by", caller.UserID)
	return v, nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (s *visitService) Get(ctx context.Context, visitID uuid.UUID) (*repo.Visit, error) {
	v, err := s.store.GetVisit(ctx, visitID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrVisitNotFound
		}
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

func (s *visitService) WaitingRoom(ctx context.Context, doctorID *uuid.UUID) ([]*repo.Visit, error) {
	return s.list(ctx, repo.VisitFilter{
		DoctorID: doctorID,
		Statuses: repo.WaitingRoomStatuses,
		Order:    repo.OldestFirst,
	})
}

func (s *visitService) ListToday(ctx context.Context, doctorID *uuid.UUID) ([]*repo.Visit, error) {
	from, to := clock.DayBounds(s.clock.Now(), s.loc)
	return s.list(ctx, repo.VisitFilter{DoctorID: doctorID, CreatedFrom: &from, CreatedTo: &to})
}

func (s *visitService) PatientHistory(ctx context.Context, patientID uuid.UUID) ([]*repo.Visit, error) {
	return s.list(ctx, repo.VisitFilter{PatientID: &patientID})
}

func (s *visitService) list(ctx context.Context, f repo.VisitFilter) ([]*repo.Visit, error) {
	visits, err := s.store.ListVisits(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return visits, nil
}

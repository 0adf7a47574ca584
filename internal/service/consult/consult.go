package consult

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/queue"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/assistant"
	"github.com/Alijeyrad/tabib_backend/pkg/observability"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type RequestConsultRequest struct {
	PatientID uuid.UUID
	Symptoms  string
	Vitals    repo.Vitals
	AIResult  *repo.AIAnalysis
}

type DiagnosisInput struct {
	FinalDiagnosis string
	Analysis       *repo.AIAnalysis
}

type Deps struct {
	Store     repo.Store
	Counter   queue.Counter
	Assistant assistant.Service
	Feed      feed.Publisher
	Clock     clock.Clock
	Location  *time.Location
	Metrics   *observability.ClinicMetrics
	Log       *slog.Logger
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

// Service is the reviewer's mailbox: visits in pending_review and reviewed.
type Service interface {
	RequestConsult(ctx context.Context, caller repo.Caller, req RequestConsultRequest) (*repo.Visit, error)
	Pending(ctx context.Context) ([]*repo.Visit, error)
	Reviewed(ctx context.Context) ([]*repo.Visit, error)

	// RunAdminDiagnosis stores the reviewer's diagnosis, replacing any
	// earlier one for the visit.
	RunAdminDiagnosis(ctx context.Context, caller repo.Caller, visitID uuid.UUID, in DiagnosisInput) (*repo.Diagnosis, error)
	RunAIForConsult(ctx context.Context, caller repo.Caller, visitID uuid.UUID) (*repo.Diagnosis, error)
	// Respond marks the consult reviewed. Feedback is logged only.
	Respond(ctx context.Context, caller repo.Caller, visitID uuid.UUID, feedback string) (*repo.Visit, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type consultService struct {
	store     repo.Store
	queue     *queue.Numberer
	assistant assistant.Service
	feed      feed.Publisher
	clock     clock.Clock
	metrics   *observability.ClinicMetrics
	log       *slog.Logger
}

func New(d Deps) Service {
	s := &consultService{
		store:     d.Store,
		assistant: d.Assistant,
		feed:      d.Feed,
		clock:     d.Clock,
		metrics:   d.Metrics,
		log:       d.Log,
	}
	if s.feed == nil {
		s.feed = feed.Nop{}
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.queue = queue.NewNumberer(d.Counter, d.Store, d.Location)
	return s
}

func (s *consultService) RequestConsult(ctx context.Context, caller repo.Caller, req RequestConsultRequest) (*repo.Visit, error) {
	symptoms := strings.TrimSpace(req.Symptoms)
	if symptoms == "" {
		return nil, ErrEmptySymptoms
	}
	if _, err := s.store.GetPatient(ctx, req.PatientID); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}

	now := s.clock.Now()
	number, err := s.queue.Next(ctx, caller.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("allocate queue number: %w", err)
	}
	v := &repo.Visit{
		PatientID:     req.PatientID,
		DoctorID:      caller.UserID,
		VisitDate:     now,
		Vitals:        req.Vitals,
		Symptoms:      symptoms,
		Status:        repo.VisitPendingReview,
		PaymentStatus: repo.PaymentUnpaid,
		QueueNumber:   number,
		CreatedBy:     caller.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var diag *repo.Diagnosis
	err = s.store.WithTx(ctx, func(tx repo.Store) error {
		if err := tx.CreateVisit(ctx, v); err != nil {
			return err
		}
		if req.AIResult == nil {
			return nil
		}
		a := *req.AIResult
		a.Normalize()
		diag = &repo.Diagnosis{
			VisitID:         v.ID,
			FinalDiagnosis:  a.Diagnosis,
			AIAnalysis:      &a,
			ConfidenceScore: a.Confidence,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.UpsertDiagnosis(ctx, diag); err != nil {
			return err
		}
		v.DiagnosisID = &diag.ID
		return tx.UpdateVisit(ctx, v)
	})
	if err != nil {
		return nil, fmt.Errorf("request consult: %w", err)
	}

	s.feed.Publish(ctx, feed.NewChange(feed.Visits, feed.Insert, v.ID))
	if diag != nil {
		s.feed.Publish(ctx, feed.NewChange(feed.Diagnoses, feed.Insert, diag.ID).WithRef(v.ID))
	}
	s.metrics.VisitCreated(ctx, string(v.Status))
	s.log.InfoContext(ctx, "consult: requested", "visit_id", v.ID, "doctor_id", caller.UserID, "with_analysis", diag != nil)
	return v, nil
}

func (s *consultService) Pending(ctx context.Context) ([]*repo.Visit, error) {
	return s.list(ctx, repo.VisitPendingReview, repo.OldestFirst)
}

func (s *consultService) Reviewed(ctx context.Context) ([]*repo.Visit, error) {
	return s.list(ctx, repo.VisitReviewed, repo.NewestFirst)
}

func (s *consultService) list(ctx context.Context, status repo.VisitStatus, order repo.Order) ([]*repo.Visit, error) {
	out, err := s.store.ListVisits(ctx, repo.VisitFilter{Statuses: []repo.VisitStatus{status}, Order: order})
	if err != nil {
		return nil, fmt.Errorf("list consults: %w", err)
	}
	return out, nil
}

func (s *consultService) consult(ctx context.Context, visitID uuid.UUID) (*repo.Visit, error) {
	v, err := s.store.GetVisit(ctx, visitID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrVisitNotFound
		}
		return nil, fmt.Errorf("get visit: %w", err)
	}
	if v.Status != repo.VisitPendingReview && v.Status != repo.VisitReviewed {
		return nil, ErrNotAConsult
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Diagnosis
// ---------------------------------------------------------------------------

func (s *consultService) RunAdminDiagnosis(ctx context.Context, caller repo.Caller, visitID uuid.UUID, in DiagnosisInput) (*repo.Diagnosis, error) {
	final := strings.TrimSpace(in.FinalDiagnosis)
	if final == "" && in.Analysis == nil {
		return nil, ErrMissingAnalysis
	}
	v, err := s.consult(ctx, visitID)
	if err != nil {
		return nil, err
	}
	return s.saveDiagnosis(ctx, caller, v, final, in.Analysis)
}

func (s *consultService) RunAIForConsult(ctx context.Context, caller repo.Caller, visitID uuid.UUID) (*repo.Diagnosis, error) {
	v, err := s.consult(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if s.assistant == nil {
		return nil, assistant.ErrUnavailable
	}

	req := assistant.DiagnoseRequest{Symptoms: v.Symptoms, Vitals: v.Vitals}
	if p, err := s.store.GetPatient(ctx, v.PatientID); err == nil {
		req.Patient = p
	}
	labs, err := s.store.ListLabRequests(ctx, repo.LabFilter{
		VisitID:  &v.ID,
		Statuses: []repo.LabRequestStatus{repo.LabCompleted},
		Order:    repo.OldestFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("list lab results: %w", err)
	}
	for _, l := range labs {
		req.LabResults = append(req.LabResults, l.Results...)
	}

	analysis, err := s.assistant.Diagnose(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.saveDiagnosis(ctx, caller, v, "", analysis)
}

func (s *consultService) saveDiagnosis(ctx context.Context, caller repo.Caller, v *repo.Visit, final string, analysis *repo.AIAnalysis) (*repo.Diagnosis, error) {
	now := s.clock.Now()
	d := &repo.Diagnosis{VisitID: v.ID, FinalDiagnosis: final, CreatedAt: now, UpdatedAt: now}
	if analysis != nil {
		a := *analysis
		a.Normalize()
		d.AIAnalysis = &a
		d.ConfidenceScore = a.Confidence
		if d.FinalDiagnosis == "" {
			d.FinalDiagnosis = a.Diagnosis
		}
	}

	err := s.store.WithTx(ctx, func(tx repo.Store) error {
		if err := tx.UpsertDiagnosis(ctx, d); err != nil {
			return err
		}
		if v.DiagnosisID != nil && *v.DiagnosisID == d.ID {
			return nil
		}
		v.DiagnosisID = &d.ID
		v.UpdatedAt = now
		return tx.UpdateVisit(ctx, v)
	})
	if err != nil {
		return nil, fmt.Errorf("save diagnosis: %w", err)
	}

	s.feed.Publish(ctx, feed.NewChange(feed.Diagnoses, feed.Update, d.ID).WithRef(v.ID))
	s.log.InfoContext(ctx, "consult: diagnosis saved", "visit_id", v.ID, "diagnosis_id", d.ID, "by", caller.UserID, "ai", analysis != nil)
	return d, nil
}

// ---------------------------------------------------------------------------
// Respond
// ---------------------------------------------------------------------------

func (s *consultService) Respond(ctx context.Context, caller repo.Caller, visitID uuid.UUID, feedback string) (*repo.Visit, error) {
	v, err := s.consult(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if v.Status != repo.VisitReviewed {
		v.Status = repo.VisitReviewed
		v.UpdatedAt = s.clock.Now()
		if err := s.store.UpdateVisit(ctx, v); err != nil {
			return nil, fmt.Errorf("respond: %w", err)
		}
		s.feed.Publish(ctx, feed.NewChange(feed.Visits, feed.Update, v.ID))
	}
	// TODO: persist reviewer feedback once the consult thread has a table.
	s.log.InfoContext(ctx, "consult: reviewed", "visit_id", v.ID, "reviewer_id", caller.UserID, "feedback", strings.TrimSpace(feedback))
	return v, nil
}

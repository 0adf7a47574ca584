package prescription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type TemplateInput struct {
	Name        string
	Diagnosis   string
	Medications []repo.Medication
	Notes       string
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	// Templates are owned by the doctor who wrote them.
	ListTemplates(ctx context.Context, caller repo.Caller) ([]*repo.PrescriptionTemplate, error)
	CreateTemplate(ctx context.Context, caller repo.Caller, in TemplateInput) (*repo.PrescriptionTemplate, error)
	UpdateTemplate(ctx context.Context, caller repo.Caller, id uuid.UUID, in TemplateInput) (*repo.PrescriptionTemplate, error)
	DeleteTemplate(ctx context.Context, caller repo.Caller, id uuid.UUID) error

	Get(ctx context.Context, id uuid.UUID) (*repo.Prescription, error)
	History(ctx context.Context, patientID uuid.UUID) ([]*repo.Prescription, error)
	ForVisit(ctx context.Context, visitID uuid.UUID) ([]*repo.Prescription, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type prescriptionService struct {
	store repo.Store
	clock clock.Clock
	log   *slog.Logger
}

func New(store repo.Store, clk clock.Clock, log *slog.Logger) Service {
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = slog.Default()
	}
	return &prescriptionService{store: store, clock: clk, log: log}
}

func validTemplate(in TemplateInput) (TemplateInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, ErrTemplateName
	}
	in.Medications = repo.NamedMedications(in.Medications)
	if len(in.Medications) == 0 {
		return in, ErrNoMedications
	}
	in.Diagnosis = strings.TrimSpace(in.Diagnosis)
	in.Notes = strings.TrimSpace(in.Notes)
	return in, nil
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

func (s *prescriptionService) ListTemplates(ctx context.Context, caller repo.Caller) ([]*repo.PrescriptionTemplate, error) {
	out, err := s.store.ListTemplates(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return out, nil
}

func (s *prescriptionService) CreateTemplate(ctx context.Context, caller repo.Caller, in TemplateInput) (*repo.PrescriptionTemplate, error) {
	in, err := validTemplate(in)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	t := &repo.PrescriptionTemplate{
		DoctorID:    caller.UserID,
		Name:        in.Name,
		Diagnosis:   in.Diagnosis,
		Medications: in.Medications,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	s.log.DebugContext(ctx, "prescription: template created", "template_id", t.ID, "doctor_id", caller.UserID)
	return t, nil
}

func (s *prescriptionService) owned(ctx context.Context, caller repo.Caller, id uuid.UUID) (*repo.PrescriptionTemplate, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	if t.DoctorID != caller.UserID && caller.Role != repo.RoleAdmin {
		return nil, ErrNotOwner
	}
	return t, nil
}

func (s *prescriptionService) UpdateTemplate(ctx context.Context, caller repo.Caller, id uuid.UUID, in TemplateInput) (*repo.PrescriptionTemplate, error) {
	in, err := validTemplate(in)
	if err != nil {
		return nil, err
	}
	t, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	t.Name = in.Name
	t.Diagnosis = in.Diagnosis
	t.Medications = in.Medications
	t.Notes = in.Notes
	t.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

func (s *prescriptionService) DeleteTemplate(ctx context.Context, caller repo.Caller, id uuid.UUID) error {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		if repo.IsNotFound(err) {
			return ErrTemplateNotFound
		}
		return fmt.Errorf("delete template: %w", err)
	}
	s.log.DebugContext(ctx, "prescription: template deleted", "template_id", id, "by", caller.UserID)
	return nil
}

// ---------------------------------------------------------------------------
// Prescriptions
// ---------------------------------------------------------------------------

func (s *prescriptionService) Get(ctx context.Context, id uuid.UUID) (*repo.Prescription, error) {
	p, err := s.store.GetPrescription(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, fmt.Errorf("get prescription: %w", err)
	}
	return p, nil
}

func (s *prescriptionService) History(ctx context.Context, patientID uuid.UUID) ([]*repo.Prescription, error) {
	return s.list(ctx, repo.PrescriptionFilter{PatientID: &patientID})
}

func (s *prescriptionService) ForVisit(ctx context.Context, visitID uuid.UUID) ([]*repo.Prescription, error) {
	return s.list(ctx, repo.PrescriptionFilter{VisitID: &visitID})
}

func (s *prescriptionService) list(ctx context.Context, f repo.PrescriptionFilter) ([]*repo.Prescription, error) {
	out, err := s.store.ListPrescriptions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	return out, nil
}

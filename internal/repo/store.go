package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup by id matches no row.
	ErrNotFound = errors.New("repo: not found")
	// ErrConflict is returned when a write violates a uniqueness rule, such as
	// a second open visit for the same patient.
	ErrConflict = errors.New("repo: conflict")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// ---------------------------------------------------------------------------
// Filters
// ---------------------------------------------------------------------------

type VisitFilter struct {
	PatientID     *uuid.UUID
	DoctorID      *uuid.UUID
	Statuses      []VisitStatus
	PaymentStatus *PaymentStatus
	// CreatedFrom is inclusive, CreatedTo exclusive.
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Order       Order
	Limit       int
}

type LabFilter struct {
	VisitID   *uuid.UUID
	PatientID *uuid.UUID
	Statuses  []LabRequestStatus
	Order     Order
	Limit     int
}

type PaymentFilter struct {
	PatientID   *uuid.UUID
	ReferenceID *uuid.UUID
	Type        *PaymentType
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Order       Order
	Limit       int
}

type PatientFilter struct {
	// Search matches full name or phone, case-insensitively.
	Search string
	Limit  int
	Offset int
}

type StaffFilter struct {
	Role       *StaffRole
	ActiveOnly bool
}

type PrescriptionFilter struct {
	PatientID *uuid.UUID
	VisitID   *uuid.UUID
	DoctorID  *uuid.UUID
	Limit     int
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store is the persistence boundary of the clinic. Create methods assign ID and
// timestamps when unset and write them back into the passed record.
type Store interface {
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByNationalIDHash(ctx context.Context, hash string) (*Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) error
	ListPatients(ctx context.Context, f PatientFilter) ([]*Patient, error)

	CreateStaff(ctx context.Context, s *Staff) error
	GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetStaffByUsername(ctx context.Context, username string) (*Staff, error)
	UpdateStaff(ctx context.Context, s *Staff) error
	ListStaff(ctx context.Context, f StaffFilter) ([]*Staff, error)

	// CreateVisit returns ErrConflict when the visit is open and the patient
	// already has another open visit.
	CreateVisit(ctx context.Context, v *Visit) error
	GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error)
	UpdateVisit(ctx context.Context, v *Visit) error
	ListVisits(ctx context.Context, f VisitFilter) ([]*Visit, error)
	CountVisits(ctx context.Context, f VisitFilter) (int, error)

	CreateLabRequest(ctx context.Context, r *LabRequest) error
	GetLabRequest(ctx context.Context, id uuid.UUID) (*LabRequest, error)
	UpdateLabRequest(ctx context.Context, r *LabRequest) error
	ListLabRequests(ctx context.Context, f LabFilter) ([]*LabRequest, error)

	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]*Payment, error)

	// UpsertDiagnosis inserts or updates the single diagnosis of d.VisitID in
	// one statement. ID and CreatedAt of an existing row are kept.
	UpsertDiagnosis(ctx context.Context, d *Diagnosis) error
	GetDiagnosis(ctx context.Context, id uuid.UUID) (*Diagnosis, error)
	GetDiagnosisByVisit(ctx context.Context, visitID uuid.UUID) (*Diagnosis, error)
	CountDiagnoses(ctx context.Context, visitID uuid.UUID) (int, error)

	CreatePrescription(ctx context.Context, p *Prescription) error
	GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListPrescriptions(ctx context.Context, f PrescriptionFilter) ([]*Prescription, error)

	CreateTemplate(ctx context.Context, t *PrescriptionTemplate) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*PrescriptionTemplate, error)
	UpdateTemplate(ctx context.Context, t *PrescriptionTemplate) error
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
	ListTemplates(ctx context.Context, doctorID uuid.UUID) ([]*PrescriptionTemplate, error)

	// WithTx runs fn against a transactional view of the store. fn's error
	// rolls the transaction back and is returned as is.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Close() error
}

// stamp fills the id and creation time of a new record.
func stamp(id *uuid.UUID, createdAt *time.Time, now time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if createdAt.IsZero() {
		*createdAt = now
	}
}

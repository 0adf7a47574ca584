package patient

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/pkg/crypto"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
)

var reNationalID = regexp.MustCompile(`^\d{10}$`)

// nationalIDColumn binds sealed national ids to their column.
const nationalIDColumn = "patients.national_id"

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// Record is a patient with the national id decrypted.
type Record struct {
	*repo.Patient
	NationalID string `json:"national_id,omitempty"`
}

type ListRequest struct {
	Search  string
	Page    int
	PerPage int
}

type CreatePatientRequest struct {
	FullName       string
	Phone          string
	NationalID     string
	BirthDate      *time.Time
	Gender         string
	Address        string
	MedicalHistory string
	Allergies      string
}

type UpdatePatientRequest struct {
	FullName       *string
	Phone          *string
	NationalID     *string
	BirthDate      *time.Time
	Gender         *string
	Address        *string
	MedicalHistory *string
	Allergies      *string
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	Create(ctx context.Context, caller repo.Caller, req CreatePatientRequest) (*Record, error)
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	FindByNationalID(ctx context.Context, nationalID string) (*Record, error)
	List(ctx context.Context, req ListRequest) ([]*repo.Patient, error)
	Update(ctx context.Context, caller repo.Caller, id uuid.UUID, req UpdatePatientRequest) (*Record, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type patientService struct {
	store  repo.Store
	cipher *crypto.FieldCipher
	region string
	feed   feed.Publisher
	clock  clock.Clock
	log    *slog.Logger
}

// New builds the patient service. cipher may be nil, in which case national
// ids are rejected. region is the default phone region, e.g. "IR".
func New(store repo.Store, cipher *crypto.FieldCipher, region string, pub feed.Publisher, clk clock.Clock, log *slog.Logger) Service {
	if region == "" {
		region = "IR"
	}
	if pub == nil {
		pub = feed.Nop{}
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = slog.Default()
	}
	return &patientService{store: store, cipher: cipher, region: strings.ToUpper(region), feed: pub, clock: clk, log: log}
}

// ---------------------------------------------------------------------------
// Normalisation
// ---------------------------------------------------------------------------

// normalizePhone returns the E.164 form of raw, or "" for an empty input.
func (s *patientService) normalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, s.region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// sealNationalID returns the ciphertext and lookup hash of nid.
func (s *patientService) sealNationalID(nid string) (string, string, error) {
	nid = strings.TrimSpace(nid)
	if nid == "" {
		return "", "", nil
	}
	if !reNationalID.MatchString(nid) {
		return "", "", ErrInvalidNationalID
	}
	if s.cipher == nil {
		return "", "", ErrEncryptionDisabled
	}
	sealed, err := s.cipher.Seal(nationalIDColumn, nid)
	if err != nil {
		return "", "", fmt.Errorf("seal national id: %w", err)
	}
	return sealed, s.cipher.Hash(nid), nil
}

func (s *patientService) record(p *repo.Patient) *Record {
	r := &Record{Patient: p}
	if p.NationalID == "" || s.cipher == nil {
		return r
	}
	nid, err := s.cipher.Open(nationalIDColumn, p.NationalID)
	if err != nil {
		s.log.Warn("patient: national id unreadable", "patient_id", p.ID, "err", err)
		return r
	}
	r.NationalID = nid
	return r
}

// ---------------------------------------------------------------------------
// CRUD
// ---------------------------------------------------------------------------

func (s *patientService) Create(ctx context.Context, caller repo.Caller, req CreatePatientRequest) (*Record, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, ErrMissingName
	}
	phone, err := s.normalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	sealed, hash, err := s.sealNationalID(req.NationalID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if req.BirthDate != nil && req.BirthDate.After(now) {
		return nil, ErrBirthDateInFuture
	}

	p := &repo.Patient{
		FullName:       name,
		Phone:          phone,
		NationalID:     sealed,
		NationalIDHash: hash,
		BirthDate:      req.BirthDate,
		Gender:         strings.TrimSpace(req.Gender),
		Address:        strings.TrimSpace(req.Address),
		MedicalHistory: strings.TrimSpace(req.MedicalHistory),
		Allergies:      strings.TrimSpace(req.Allergies),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreatePatient(ctx, p); err != nil {
		if repo.IsConflict(err) {
			return nil, ErrNationalIDTaken
		}
		return nil, fmt.Errorf("create patient: %w", err)
	}

	s.feed.Publish(ctx, feed.NewChange(feed.Patients, feed.Insert, p.ID))
	s.log.InfoContext(ctx, "patient: registered", "patient_id", p.ID, "by", caller.UserID)
	return s.record(p), nil
}

func (s *patientService) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	p, err := s.store.GetPatient(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return s.record(p), nil
}

func (s *patientService) FindByNationalID(ctx context.Context, nationalID string) (*Record, error) {
	nationalID = strings.TrimSpace(nationalID)
	if !reNationalID.MatchString(nationalID) {
		return nil, ErrInvalidNationalID
	}
	if s.cipher == nil {
		return nil, ErrPatientNotFound
	}
	p, err := s.store.GetPatientByNationalIDHash(ctx, s.cipher.Hash(nationalID))
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return s.record(p), nil
}

func (s *patientService) List(ctx context.Context, req ListRequest) ([]*repo.Patient, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PerPage < 1 || req.PerPage > 100 {
		req.PerPage = 20
	}
	search := strings.TrimSpace(req.Search)
	// Searching by phone matches the stored E.164 form.
	if phone, err := s.normalizePhone(search); err == nil && phone != "" {
		search = phone
	}

	out, err := s.store.ListPatients(ctx, repo.PatientFilter{
		Search: search,
		Limit:  req.PerPage,
		Offset: (req.Page - 1) * req.PerPage,
	})
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out, nil
}

func (s *patientService) Update(ctx context.Context, caller repo.Caller, id uuid.UUID, req UpdatePatientRequest) (*Record, error) {
	p, err := s.store.GetPatient(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, ErrMissingName
		}
		p.FullName = name
	}
	if req.Phone != nil {
		if p.Phone, err = s.normalizePhone(*req.Phone); err != nil {
			return nil, err
		}
	}
	if req.NationalID != nil {
		if p.NationalID, p.NationalIDHash, err = s.sealNationalID(*req.NationalID); err != nil {
			return nil, err
		}
	}
	now := s.clock.Now()
	if req.BirthDate != nil {
		if req.BirthDate.After(now) {
			return nil, ErrBirthDateInFuture
		}
		p.BirthDate = req.BirthDate
	}
	if req.Gender != nil {
		p.Gender = strings.TrimSpace(*req.Gender)
	}
	if req.Address != nil {
		p.Address = strings.TrimSpace(*req.Address)
	}
	if req.MedicalHistory != nil {
		p.MedicalHistory = strings.TrimSpace(*req.MedicalHistory)
	}
	if req.Allergies != nil {
		p.Allergies = strings.TrimSpace(*req.Allergies)
	}
	p.UpdatedAt = now

	if err := s.store.UpdatePatient(ctx, p); err != nil {
		if repo.IsConflict(err) {
			return nil, ErrNationalIDTaken
		}
		return nil, fmt.Errorf("update patient: %w", err)
	}

	s.feed.Publish(ctx, feed.NewChange(feed.Patients, feed.Update, p.ID))
	s.log.InfoContext(ctx, "patient: updated", "patient_id", p.ID, "by", caller.UserID)
	return s.record(p), nil
}

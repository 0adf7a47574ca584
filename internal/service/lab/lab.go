package lab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/file"
	"github.com/Alijeyrad/tabib_backend/pkg/observability"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
)

// DefaultArchiveLimit caps the completed-request archive.
const DefaultArchiveLimit = 50

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type TestOrder struct {
	Name  string
	Price int64
}

type OrderRequest struct {
	VisitID uuid.UUID
	Tests   []TestOrder
}

type CompleteRequest struct {
	RequestID uuid.UUID
	Files     []file.Upload
	Notes     string
	Results   []repo.LabResultRow
}

type CompleteResult struct {
	Request *repo.LabRequest `json:"request"`
	Uploads file.Manifest    `json:"uploads"`
}

type Deps struct {
	Store        repo.Store
	Files        file.Service
	Feed         feed.Publisher
	Clock        clock.Clock
	ArchiveLimit int
	Metrics      *observability.ClinicMetrics
	Log          *slog.Logger
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	// CreateRequest orders one pending_payment request per test. The visit
	// status is left alone.
	CreateRequest(ctx context.Context, caller repo.Caller, req OrderRequest) ([]*repo.LabRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*repo.LabRequest, error)
	ForVisit(ctx context.Context, visitID uuid.UUID) ([]*repo.LabRequest, error)

	Worklist(ctx context.Context) ([]*repo.LabRequest, error)
	Archive(ctx context.Context) ([]*repo.LabRequest, error)

	StartProcessing(ctx context.Context, caller repo.Caller, id uuid.UUID) (*repo.LabRequest, error)
	// Complete stores the results and moves the parent visit to lab_ready.
	// It does not require the request to have been paid.
	Complete(ctx context.Context, caller repo.Caller, req CompleteRequest) (*CompleteResult, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type labService struct {
	store        repo.Store
	files        file.Service
	feed         feed.Publisher
	clock        clock.Clock
	archiveLimit int
	metrics      *observability.ClinicMetrics
	log          *slog.Logger
}

func New(d Deps) Service {
	s := &labService{
		store:        d.Store,
		files:        d.Files,
		feed:         d.Feed,
		clock:        d.Clock,
		archiveLimit: d.ArchiveLimit,
		metrics:      d.Metrics,
		log:          d.Log,
	}
	if s.feed == nil {
		s.feed = feed.Nop{}
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.archiveLimit <= 0 {
		s.archiveLimit = DefaultArchiveLimit
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

func (s *labService) CreateRequest(ctx context.Context, caller repo.Caller, req OrderRequest) ([]*repo.LabRequest, error) {
	var tests []TestOrder
	for _, t := range req.Tests {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			continue
		}
		if t.Price < 0 {
			return nil, ErrInvalidPrice
		}
		tests = append(tests, t)
	}
	if len(tests) == 0 {
		return nil, ErrNoTests
	}

	v, err := s.store.GetVisit(ctx, req.VisitID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrVisitNotFound
		}
		return nil, fmt.Errorf("get visit: %w", err)
	}

	now := s.clock.Now()
	out := make([]*repo.LabRequest, 0, len(tests))
	err = s.store.WithTx(ctx, func(tx repo.Store) error {
		for _, t := range tests {
			r := &repo.LabRequest{
				VisitID:   v.ID,
				PatientID: v.PatientID,
				DoctorID:  caller.UserID,
				TestName:  t.Name,
				Price:     t.Price,
				Status:    repo.LabPendingPayment,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.CreateLabRequest(ctx, r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("order lab tests: %w", err)
	}

	for _, r := range out {
		s.feed.Publish(ctx, feed.NewChange(feed.LabRequests, feed.Insert, r.ID))
	}
	s.log.InfoContext(ctx, "lab: tests ordered", "visit_id", v.ID, "count", len(out), "doctor_id", caller.UserID)
	return out, nil
}

func (s *labService) Get(ctx context.Context, id uuid.UUID) (*repo.LabRequest, error) {
	r, err := s.store.GetLabRequest(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrLabRequestNotFound
		}
		return nil, fmt.Errorf("get lab request: %w", err)
	}
	return r, nil
}

func (s *labService) ForVisit(ctx context.Context, visitID uuid.UUID) ([]*repo.LabRequest, error) {
	return s.list(ctx, repo.LabFilter{VisitID: &visitID, Order: repo.OldestFirst})
}

// ---------------------------------------------------------------------------
// Worklist
// ---------------------------------------------------------------------------

func (s *labService) Worklist(ctx context.Context) ([]*repo.LabRequest, error) {
	return s.list(ctx, repo.LabFilter{Statuses: repo.LabWorklistStatuses, Order: repo.OldestFirst})
}

func (s *labService) Archive(ctx context.Context) ([]*repo.LabRequest, error) {
	return s.list(ctx, repo.LabFilter{
		Statuses: []repo.LabRequestStatus{repo.LabCompleted},
		Order:    repo.NewestFirst,
		Limit:    s.archiveLimit,
	})
}

func (s *labService) list(ctx context.Context, f repo.LabFilter) ([]*repo.LabRequest, error) {
	out, err := s.store.ListLabRequests(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list lab requests: %w", err)
	}
	return out, nil
}

func (s *labService) StartProcessing(ctx context.Context, caller repo.Caller, id uuid.UUID) (*repo.LabRequest, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case repo.LabProcessing:
		return r, nil
	case repo.LabPaid:
	default:
		return nil, ErrNotPaid
	}
	r.Status = repo.LabProcessing
	r.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateLabRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("start processing: %w", err)
	}
	s.feed.Publish(ctx, feed.NewChange(feed.LabRequests, feed.Update, r.ID))
	s.log.DebugContext(ctx, "lab: processing", "request_id", r.ID, "technician_id", caller.UserID)
	return r, nil
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func (s *labService) Complete(ctx context.Context, caller repo.Caller, req CompleteRequest) (*CompleteResult, error) {
	r, err := s.Get(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}

	var manifest file.Manifest
	if len(req.Files) > 0 {
		manifest = s.files.UploadBatch(ctx, "lab-results/"+r.ID.String(), req.Files)
	}

	now := s.clock.Now()
	r.Status = repo.LabCompleted
	r.ResultFiles = append(r.ResultFiles, manifest.Keys()...)
	r.TechnicianNotes = strings.TrimSpace(req.Notes)
	r.Results = repo.NormalizeResults(req.Results)
	r.UpdatedAt = now
	r.CompletedAt = &now

	err = s.store.WithTx(ctx, func(tx repo.Store) error {
		if err := tx.UpdateLabRequest(ctx, r); err != nil {
			return err
		}
		v, err := tx.GetVisit(ctx, r.VisitID)
		if err != nil {
			if repo.IsNotFound(err) {
				return ErrVisitNotFound
			}
			return err
		}
		v.Status = repo.VisitLabReady
		v.UpdatedAt = now
		return tx.UpdateVisit(ctx, v)
	})
	if err != nil {
		if !errors.Is(err, ErrVisitNotFound) {
			err = fmt.Errorf("complete lab request: %w", err)
		}
		err = file.Orphaned(err, manifest)
		var orphaned *file.OrphanedError
		if errors.As(err, &orphaned) {
			s.log.ErrorContext(ctx, "lab: result files left unreferenced",
				"request_id", r.ID, "keys", orphaned.Keys, "error", orphaned.Err)
		}
		return nil, err
	}

	s.feed.Publish(ctx, feed.NewChange(feed.LabRequests, feed.Update, r.ID))
	s.feed.Publish(ctx, feed.NewChange(feed.Visits, feed.Update, r.VisitID))
	s.metrics.LabCompleted(ctx)
	s.log.InfoContext(ctx, "lab: request completed",
		"request_id", r.ID, "visit_id", r.VisitID, "rows", len(r.Results),
		"files", len(manifest.Keys()), "failed_uploads", len(manifest.Failed()), "technician_id", caller.UserID)

	return &CompleteResult{Request: r, Uploads: manifest}, nil
}

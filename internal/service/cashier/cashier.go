package cashier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/pkg/observability"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type ProcessPaymentRequest struct {
	Type repo.PaymentType
	// TargetID is the visit for VISIT_FEE and the lab request for LAB_TEST.
	// It is ignored for OTHER.
	TargetID    uuid.UUID
	Amount      int64
	PatientID   *uuid.UUID
	Description string
}

type TodaysPayments struct {
	Payments []*repo.Payment `json:"payments"`
	Total    int64           `json:"total"`
}

type TypeTotal struct {
	Count  int   `json:"count"`
	Amount int64 `json:"amount"`
}

type DailyReport struct {
	Day    time.Time                      `json:"day"`
	Count  int                            `json:"count"`
	Total  int64                          `json:"total"`
	ByType map[repo.PaymentType]TypeTotal `json:"by_type"`
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	UnpaidVisits(ctx context.Context) ([]*repo.Visit, error)
	UnpaidLabRequests(ctx context.Context) ([]*repo.LabRequest, error)
	TodaysPayments(ctx context.Context) (*TodaysPayments, error)
	// ProcessPayment always records a new payment. Paying the same target
	// twice records two payments.
	ProcessPayment(ctx context.Context, caller repo.Caller, req ProcessPaymentRequest) (*repo.Payment, error)
	DailyReport(ctx context.Context, day time.Time) (*DailyReport, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type cashierService struct {
	store   repo.Store
	feed    feed.Publisher
	clock   clock.Clock
	loc     *time.Location
	metrics *observability.ClinicMetrics
	log     *slog.Logger
}

func New(store repo.Store, pub feed.Publisher, clk clock.Clock, loc *time.Location, metrics *observability.ClinicMetrics, log *slog.Logger) Service {
	if pub == nil {
		pub = feed.Nop{}
	}
	if clk == nil {
		clk = clock.System()
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	return &cashierService{store: store, feed: pub, clock: clk, loc: loc, metrics: metrics, log: log}
}

// ---------------------------------------------------------------------------
// Queues
// ---------------------------------------------------------------------------

func (s *cashierService) UnpaidVisits(ctx context.Context) ([]*repo.Visit, error) {
	unpaid := repo.PaymentUnpaid
	visits, err := s.store.ListVisits(ctx, repo.VisitFilter{PaymentStatus: &unpaid, Order: repo.NewestFirst})
	if err != nil {
		return nil, fmt.Errorf("list unpaid visits: %w", err)
	}
	return visits, nil
}

func (s *cashierService) UnpaidLabRequests(ctx context.Context) ([]*repo.LabRequest, error) {
	reqs, err := s.store.ListLabRequests(ctx, repo.LabFilter{
		Statuses: []repo.LabRequestStatus{repo.LabPendingPayment},
		Order:    repo.NewestFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("list unpaid lab requests: %w", err)
	}
	return reqs, nil
}

func (s *cashierService) TodaysPayments(ctx context.Context) (*TodaysPayments, error) {
	from, to := clock.DayBounds(s.clock.Now(), s.loc)
	payments, err := s.payments(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := &TodaysPayments{Payments: payments}
	for _, p := range payments {
		out.Total += p.Amount
	}
	return out, nil
}

func (s *cashierService) DailyReport(ctx context.Context, day time.Time) (*DailyReport, error) {
	from, to := clock.DayBounds(day, s.loc)
	payments, err := s.payments(ctx, from, to)
	if err != nil {
		return nil, err
	}
	r := &DailyReport{Day: from, ByType: map[repo.PaymentType]TypeTotal{}}
	for _, p := range payments {
		r.Count++
		r.Total += p.Amount
		t := r.ByType[p.Type]
		t.Count++
		t.Amount += p.Amount
		r.ByType[p.Type] = t
	}
	return r, nil
}

func (s *cashierService) payments(ctx context.Context, from, to time.Time) ([]*repo.Payment, error) {
	payments, err := s.store.ListPayments(ctx, repo.PaymentFilter{
		CreatedFrom: &from,
		CreatedTo:   &to,
		Order:       repo.NewestFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// ---------------------------------------------------------------------------
// Process payment
// ---------------------------------------------------------------------------

func (s *cashierService) ProcessPayment(ctx context.Context, caller repo.Caller, req ProcessPaymentRequest) (*repo.Payment, error) {
	if !req.Type.Valid() {
		return nil, ErrInvalidPaymentType
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := s.clock.Now()
	p := &repo.Payment{
		PatientID:   req.PatientID,
		CashierID:   caller.UserID,
		Amount:      req.Amount,
		Type:        req.Type,
		ReferenceID: req.TargetID,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
	}

	var changed *feed.Change
	err := s.store.WithTx(ctx, func(tx repo.Store) error {
		switch req.Type {
		case repo.PaymentVisitFee:
			v, err := tx.GetVisit(ctx, req.TargetID)
			if err != nil {
				if repo.IsNotFound(err) {
					return ErrVisitNotFound
				}
				return err
			}
			if p.PatientID == nil {
				p.PatientID = &v.PatientID
			}
			v.PaymentStatus = repo.PaymentPaid
			v.UpdatedAt = now
			if err := tx.UpdateVisit(ctx, v); err != nil {
				return err
			}
			c := feed.NewChange(feed.Visits, feed.Update, v.ID)
			changed = &c

		case repo.PaymentLabTest:
			r, err := tx.GetLabRequest(ctx, req.TargetID)
			if err != nil {
				if repo.IsNotFound(err) {
					return ErrLabRequestNotFound
				}
				return err
			}
			if p.PatientID == nil {
				p.PatientID = &r.PatientID
			}
			r.Status = repo.LabPaid
			r.UpdatedAt = now
			if err := tx.UpdateLabRequest(ctx, r); err != nil {
				return err
			}
			c := feed.NewChange(feed.LabRequests, feed.Update, r.ID)
			changed = &c

		case repo.PaymentOther:
			p.ReferenceID = uuid.New()
		}
		return tx.CreatePayment(ctx, p)
	})
	if err != nil {
		if errors.Is(err, ErrVisitNotFound) || errors.Is(err, ErrLabRequestNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("process payment: %w", err)
	}

	s.feed.Publish(ctx, feed.NewChange(feed.Payments, feed.Insert, p.ID))
	if changed != nil {
		s.feed.Publish(ctx, *changed)
	}
	s.metrics.PaymentProcessed(ctx, string(p.Type), p.Amount)
	s.log.InfoContext(ctx, "cashier: payment recorded",
		"payment_id", p.ID, "type", p.Type, "reference_id", p.ReferenceID, "amount", p.Amount, "cashier_id", caller.UserID)
	return p, nil
}

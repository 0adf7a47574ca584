package feed

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/pkg/observability"
)

// ---------------------------------------------------------------------------
// views
// ---------------------------------------------------------------------------

type View string

const (
	WaitingRoom       View = "waiting_room"
	UnpaidVisits      View = "unpaid_visits"
	PendingConsults   View = "pending_consults"
	UnpaidLabRequests View = "unpaid_lab_requests"
	LabWorklist       View = "lab_worklist"
)

type view[T any] struct {
	name  View
	match func(T) bool
	order repo.Order
	at    func(T) time.Time
	rows  map[uuid.UUID]T
}

func (v *view[T]) sorted() []T {
	out := make([]T, 0, len(v.rows))
	for _, r := range v.rows {
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b T) int {
		if v.order == repo.OldestFirst {
			return v.at(a).Compare(v.at(b))
		}
		return v.at(b).Compare(v.at(a))
	})
	return out
}

func visitIn(statuses ...repo.VisitStatus) func(*repo.Visit) bool {
	return func(v *repo.Visit) bool { return slices.Contains(statuses, v.Status) }
}

func labIn(statuses ...repo.LabRequestStatus) func(*repo.LabRequest) bool {
	return func(r *repo.LabRequest) bool { return slices.Contains(statuses, r.Status) }
}

func visitCreated(v *repo.Visit) time.Time    { return v.CreatedAt }
func labCreated(r *repo.LabRequest) time.Time { return r.CreatedAt }

// ---------------------------------------------------------------------------
// Projector
// ---------------------------------------------------------------------------

// Projector keeps the operational lists of the clinic in memory. After one
// full load it patches single rows on change instead of refetching lists,
// and ignores fetched rows older than the version it already holds.
type Projector struct {
	store   repo.Store
	log     *slog.Logger
	metrics *observability.ClinicMetrics

	mu        sync.RWMutex
	warm      bool
	visits    []*view[*repo.Visit]
	labs      []*view[*repo.LabRequest]
	seenVisit map[uuid.UUID]time.Time
	seenLab   map[uuid.UUID]time.Time

	// seq counts patches; patchedVisit and patchedLab hold the seq of the
	// last patch per row. Warm leaves rows patched after it started alone.
	seq          uint64
	patchedVisit map[uuid.UUID]uint64
	patchedLab   map[uuid.UUID]uint64
}

func NewProjector(store repo.Store, log *slog.Logger, metrics *observability.ClinicMetrics) *Projector {
	if log == nil {
		log = slog.Default()
	}
	p := &Projector{store: store, log: log, metrics: metrics}
	p.reset()
	return p
}

func (p *Projector) reset() {
	unpaid := func(v *repo.Visit) bool { return v.PaymentStatus == repo.PaymentUnpaid }
	p.visits = []*view[*repo.Visit]{
		{name: WaitingRoom, match: visitIn(repo.WaitingRoomStatuses...), order: repo.OldestFirst, at: visitCreated},
		{name: UnpaidVisits, match: unpaid, order: repo.NewestFirst, at: visitCreated},
		{name: PendingConsults, match: visitIn(repo.VisitPendingReview), order: repo.OldestFirst, at: visitCreated},
	}
	p.labs = []*view[*repo.LabRequest]{
		{name: UnpaidLabRequests, match: labIn(repo.LabPendingPayment), order: repo.NewestFirst, at: labCreated},
		{name: LabWorklist, match: labIn(repo.LabWorklistStatuses...), order: repo.OldestFirst, at: labCreated},
	}
	for _, v := range p.visits {
		v.rows = map[uuid.UUID]*repo.Visit{}
	}
	for _, v := range p.labs {
		v.rows = map[uuid.UUID]*repo.LabRequest{}
	}
	p.seenVisit = map[uuid.UUID]time.Time{}
	p.seenLab = map[uuid.UUID]time.Time{}
	p.patchedVisit = map[uuid.UUID]uint64{}
	p.patchedLab = map[uuid.UUID]uint64{}
}

// Warm loads every view in full and merges the result into the held rows.
// Rows patched while the lists were fetched keep their patched state. On
// error the previous snapshot is kept.
func (p *Projector) Warm(ctx context.Context) error {
	p.mu.RLock()
	since := p.seq
	p.mu.RUnlock()

	unpaid := repo.PaymentUnpaid
	visitLists := map[View]repo.VisitFilter{
		WaitingRoom:     {Statuses: repo.WaitingRoomStatuses},
		UnpaidVisits:    {PaymentStatus: &unpaid},
		PendingConsults: {Statuses: []repo.VisitStatus{repo.VisitPendingReview}},
	}
	labLists := map[View]repo.LabFilter{
		UnpaidLabRequests: {Statuses: []repo.LabRequestStatus{repo.LabPendingPayment}},
		LabWorklist:       {Statuses: repo.LabWorklistStatuses},
	}

	loadedVisits := map[View][]*repo.Visit{}
	for name, f := range visitLists {
		rows, err := p.store.ListVisits(ctx, f)
		if err != nil {
			p.log.WarnContext(ctx, "feed: warm failed", "view", name, "err", err)
			return err
		}
		loadedVisits[name] = rows
	}
	loadedLabs := map[View][]*repo.LabRequest{}
	for name, f := range labLists {
		rows, err := p.store.ListLabRequests(ctx, f)
		if err != nil {
			p.log.WarnContext(ctx, "feed: warm failed", "view", name, "err", err)
			return err
		}
		loadedLabs[name] = rows
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	mergeWarm(p.visits, flatten(loadedVisits), p.seenVisit, p.patchedVisit, since,
		func(v *repo.Visit) (uuid.UUID, time.Time) { return v.ID, v.UpdatedAt })
	mergeWarm(p.labs, flatten(loadedLabs), p.seenLab, p.patchedLab, since,
		func(r *repo.LabRequest) (uuid.UUID, time.Time) { return r.ID, r.UpdatedAt })
	p.warm = true
	p.log.InfoContext(ctx, "feed: projections warm",
		"waiting", len(p.visits[0].rows), "worklist", len(p.labs[1].rows))
	return nil
}

// flatten joins the fetched lists; a row may appear in several.
func flatten[T any](lists map[View][]T) []T {
	return slices.Concat(slices.Collect(maps.Values(lists))...)
}

// mergeWarm replaces the view membership of every row not patched after
// since with what was fetched. A fetched row older than the held version is
// ignored.
func mergeWarm[T any](views []*view[T], fetched []T, seen map[uuid.UUID]time.Time,
	patched map[uuid.UUID]uint64, since uint64, key func(T) (uuid.UUID, time.Time)) {
	newest := map[uuid.UUID]T{}
	for _, r := range fetched {
		id, at := key(r)
		if cur, ok := newest[id]; ok {
			if _, curAt := key(cur); !at.After(curAt) {
				continue
			}
		}
		newest[id] = r
	}
	stale := func(id uuid.UUID) bool {
		if patched[id] > since {
			return true
		}
		r, ok := newest[id]
		if !ok {
			return false
		}
		_, at := key(r)
		last, held := seen[id]
		return held && at.Before(last)
	}

	for _, vw := range views {
		for id := range vw.rows {
			if !stale(id) {
				delete(vw.rows, id)
			}
		}
	}
	for id, r := range newest {
		if stale(id) {
			continue
		}
		_, at := key(r)
		seen[id] = at
		for _, vw := range views {
			if vw.match(r) {
				vw.rows[id] = r
			}
		}
	}
}

func (p *Projector) Warmed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.warm
}

// Apply patches the views touched by c.
func (p *Projector) Apply(ctx context.Context, c Change) error {
	switch c.Table {
	case Visits:
		return p.patchVisit(ctx, c.ID, c.Op)
	case Diagnoses:
		if c.Ref != nil {
			return p.patchVisit(ctx, *c.Ref, Update)
		}
	case LabRequests:
		return p.patchLab(ctx, c.ID, c.Op)
	case Patients:
		return p.patchPatient(ctx, c.ID)
	}
	return nil
}

// Handler adapts Apply to a Subscriber callback. Each change gets its own
// timeout so a slow store cannot stall the subscription.
func (p *Projector) Handler(timeout time.Duration) Handler {
	return func(c Change) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = p.Apply(ctx, c)
	}
}

func (p *Projector) patchVisit(ctx context.Context, id uuid.UUID, op Op) error {
	if op == Delete {
		p.dropVisit(id)
		return nil
	}
	v, err := p.store.GetVisit(ctx, id)
	if repo.IsNotFound(err) {
		p.dropVisit(id)
		return nil
	}
	if err != nil {
		p.patchFailed(ctx, Visits, id, err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.seenVisit[id]; ok && v.UpdatedAt.Before(last) {
		return nil
	}
	p.seq++
	p.patchedVisit[id] = p.seq
	p.seenVisit[id] = v.UpdatedAt
	for _, vw := range p.visits {
		if vw.match(v) {
			vw.rows[id] = v
		} else {
			delete(vw.rows, id)
		}
	}
	return nil
}

func (p *Projector) dropVisit(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.patchedVisit[id] = p.seq
	for _, vw := range p.visits {
		delete(vw.rows, id)
	}
}

func (p *Projector) patchLab(ctx context.Context, id uuid.UUID, op Op) error {
	if op == Delete {
		p.dropLab(id)
		return nil
	}
	r, err := p.store.GetLabRequest(ctx, id)
	if repo.IsNotFound(err) {
		p.dropLab(id)
		return nil
	}
	if err != nil {
		p.patchFailed(ctx, LabRequests, id, err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.seenLab[id]; ok && r.UpdatedAt.Before(last) {
		return nil
	}
	p.seq++
	p.patchedLab[id] = p.seq
	p.seenLab[id] = r.UpdatedAt
	for _, vw := range p.labs {
		if vw.match(r) {
			vw.rows[id] = r
		} else {
			delete(vw.rows, id)
		}
	}
	return nil
}

func (p *Projector) dropLab(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.patchedLab[id] = p.seq
	for _, vw := range p.labs {
		delete(vw.rows, id)
	}
}

// patchPatient refreshes the projected patient name on held rows.
func (p *Projector) patchPatient(ctx context.Context, patientID uuid.UUID) error {
	p.mu.RLock()
	var visitIDs, labIDs []uuid.UUID
	for _, vw := range p.visits {
		for id, v := range vw.rows {
			if v.PatientID == patientID && !slices.Contains(visitIDs, id) {
				visitIDs = append(visitIDs, id)
			}
		}
	}
	for _, vw := range p.labs {
		for id, r := range vw.rows {
			if r.PatientID == patientID && !slices.Contains(labIDs, id) {
				labIDs = append(labIDs, id)
			}
		}
	}
	p.mu.RUnlock()

	for _, id := range visitIDs {
		if err := p.patchVisit(ctx, id, Update); err != nil {
			return err
		}
	}
	for _, id := range labIDs {
		if err := p.patchLab(ctx, id, Update); err != nil {
			return err
		}
	}
	return nil
}

func (p *Projector) patchFailed(ctx context.Context, table Table, id uuid.UUID, err error) {
	p.log.WarnContext(ctx, "feed: patch failed, keeping snapshot", "table", table, "id", id, "err", err)
	p.metrics.FeedPatchFailed(ctx, string(table))
}

// ---------------------------------------------------------------------------
// reads
// ---------------------------------------------------------------------------

func (p *Projector) visitView(name View) ([]*repo.Visit, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, vw := range p.visits {
		if vw.name == name {
			return vw.sorted(), p.warm
		}
	}
	return nil, false
}

func (p *Projector) labView(name View) ([]*repo.LabRequest, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, vw := range p.labs {
		if vw.name == name {
			return vw.sorted(), p.warm
		}
	}
	return nil, false
}

// WaitingRoom lists waiting and lab-ready visits, oldest first, optionally
// for one doctor. ok is false until the projector is warm.
func (p *Projector) WaitingRoom(doctorID *uuid.UUID) (visits []*repo.Visit, ok bool) {
	all, ok := p.visitView(WaitingRoom)
	if doctorID == nil {
		return all, ok
	}
	for _, v := range all {
		if v.DoctorID == *doctorID {
			visits = append(visits, v)
		}
	}
	return visits, ok
}

func (p *Projector) UnpaidVisits() ([]*repo.Visit, bool) { return p.visitView(UnpaidVisits) }

func (p *Projector) PendingConsults() ([]*repo.Visit, bool) { return p.visitView(PendingConsults) }

func (p *Projector) UnpaidLabRequests() ([]*repo.LabRequest, bool) {
	return p.labView(UnpaidLabRequests)
}

func (p *Projector) LabWorklist() ([]*repo.LabRequest, bool) { return p.labView(LabWorklist) }

package repo

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store. It backs the "memory" database driver and
// the service tests. Writes outside a transaction wait for any running
// transaction; reads see its uncommitted rows.
type MemStore struct {
	*memTables
	inTx bool
}

type memTables struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	now  func() time.Time

	patients      map[uuid.UUID]Patient
	staff         map[uuid.UUID]Staff
	visits        map[uuid.UUID]Visit
	labs          map[uuid.UUID]LabRequest
	payments      map[uuid.UUID]Payment
	diagnoses     map[uuid.UUID]Diagnosis
	prescriptions map[uuid.UUID]Prescription
	templates     map[uuid.UUID]PrescriptionTemplate
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{memTables: &memTables{
		now:           time.Now,
		patients:      map[uuid.UUID]Patient{},
		staff:         map[uuid.UUID]Staff{},
		visits:        map[uuid.UUID]Visit{},
		labs:          map[uuid.UUID]LabRequest{},
		payments:      map[uuid.UUID]Payment{},
		diagnoses:     map[uuid.UUID]Diagnosis{},
		prescriptions: map[uuid.UUID]Prescription{},
		templates:     map[uuid.UUID]PrescriptionTemplate{},
	}}
}

func (m *MemStore) Close() error { return nil }

// WithTx serializes transactions and restores the previous state when fn fails.
func (m *MemStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snap := m.snapshot()
	m.mu.RUnlock()

	if err := fn(&MemStore{memTables: m.memTables, inTx: true}); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

// write locks the tables for one mutation and returns the unlock.
func (m *MemStore) write() func() {
	if !m.inTx {
		m.txMu.Lock()
	}
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		if !m.inTx {
			m.txMu.Unlock()
		}
	}
}

type memSnapshot struct {
	patients      map[uuid.UUID]Patient
	staff         map[uuid.UUID]Staff
	visits        map[uuid.UUID]Visit
	labs          map[uuid.UUID]LabRequest
	payments      map[uuid.UUID]Payment
	diagnoses     map[uuid.UUID]Diagnosis
	prescriptions map[uuid.UUID]Prescription
	templates     map[uuid.UUID]PrescriptionTemplate
}

func (m *memTables) snapshot() memSnapshot {
	return memSnapshot{
		patients:      maps.Clone(m.patients),
		staff:         maps.Clone(m.staff),
		visits:        maps.Clone(m.visits),
		labs:          maps.Clone(m.labs),
		payments:      maps.Clone(m.payments),
		diagnoses:     maps.Clone(m.diagnoses),
		prescriptions: maps.Clone(m.prescriptions),
		templates:     maps.Clone(m.templates),
	}
}

func (m *memTables) restore(s memSnapshot) {
	m.patients = s.patients
	m.staff = s.staff
	m.visits = s.visits
	m.labs = s.labs
	m.payments = s.payments
	m.diagnoses = s.diagnoses
	m.prescriptions = s.prescriptions
	m.templates = s.templates
}

// ---------------------------------------------------------------------------
// Patients
// ---------------------------------------------------------------------------

func (m *MemStore) CreatePatient(_ context.Context, p *Patient) error {
	defer m.write()()

	stamp(&p.ID, &p.CreatedAt, m.now())
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if _, ok := m.patients[p.ID]; ok {
		return ErrConflict
	}
	if p.NationalIDHash != "" {
		for _, o := range m.patients {
			if o.NationalIDHash == p.NationalIDHash {
				return ErrConflict
			}
		}
	}
	m.patients[p.ID] = *p
	return nil
}

func (m *MemStore) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemStore) GetPatientByNationalIDHash(_ context.Context, hash string) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.patients {
		if hash != "" && p.NationalIDHash == hash {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) UpdatePatient(_ context.Context, p *Patient) error {
	defer m.write()()

	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	if p.NationalIDHash != "" {
		for id, o := range m.patients {
			if id != p.ID && o.NationalIDHash == p.NationalIDHash {
				return ErrConflict
			}
		}
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now()
	}
	m.patients[p.ID] = *p
	return nil
}

func (m *MemStore) ListPatients(_ context.Context, f PatientFilter) ([]*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(f.Search))
	var out []*Patient
	for _, p := range m.patients {
		if q != "" && !strings.Contains(strings.ToLower(p.FullName), q) && !strings.Contains(p.Phone, q) {
			continue
		}
		out = append(out, &p)
	}
	slices.SortFunc(out, func(a, b *Patient) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(out, f.Offset, f.Limit), nil
}

// ---------------------------------------------------------------------------
// Staff
// ---------------------------------------------------------------------------

func (m *MemStore) CreateStaff(_ context.Context, s *Staff) error {
	defer m.write()()

	stamp(&s.ID, &s.CreatedAt, m.now())
	for _, o := range m.staff {
		if o.ID == s.ID || strings.EqualFold(o.Username, s.Username) {
			return ErrConflict
		}
	}
	m.staff[s.ID] = *s
	return nil
}

func (m *MemStore) GetStaff(_ context.Context, id uuid.UUID) (*Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.staff[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemStore) GetStaffByUsername(_ context.Context, username string) (*Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.staff {
		if strings.EqualFold(s.Username, username) {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) UpdateStaff(_ context.Context, s *Staff) error {
	defer m.write()()

	if _, ok := m.staff[s.ID]; !ok {
		return ErrNotFound
	}
	m.staff[s.ID] = *s
	return nil
}

func (m *MemStore) ListStaff(_ context.Context, f StaffFilter) ([]*Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Staff
	for _, s := range m.staff {
		if f.Role != nil && s.Role != *f.Role {
			continue
		}
		if f.ActiveOnly && !s.Active {
			continue
		}
		out = append(out, &s)
	}
	slices.SortFunc(out, func(a, b *Staff) int { return cmp.Compare(a.FullName, b.FullName) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Visits
// ---------------------------------------------------------------------------

func (m *MemStore) CreateVisit(_ context.Context, v *Visit) error {
	defer m.write()()

	stamp(&v.ID, &v.CreatedAt, m.now())
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = v.CreatedAt
	}
	if v.VisitDate.IsZero() {
		v.VisitDate = v.CreatedAt
	}
	if _, ok := m.visits[v.ID]; ok {
		return ErrConflict
	}
	if m.waitingVisitTaken(v) {
		return ErrConflict
	}
	stored := *v
	stored.PatientName, stored.DoctorName, stored.Diagnosis = "", "", nil
	m.visits[v.ID] = stored
	return nil
}

// waitingVisitTaken mirrors the partial unique index on waiting visits per
// patient.
func (m *MemStore) waitingVisitTaken(v *Visit) bool {
	if v.Status != VisitWaiting {
		return false
	}
	for id, o := range m.visits {
		if id != v.ID && o.PatientID == v.PatientID && o.Status == VisitWaiting {
			return true
		}
	}
	return false
}

func (m *MemStore) GetVisit(_ context.Context, id uuid.UUID) (*Visit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.visits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.projectVisit(v), nil
}

func (m *MemStore) UpdateVisit(_ context.Context, v *Visit) error {
	defer m.write()()

	if _, ok := m.visits[v.ID]; !ok {
		return ErrNotFound
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = m.now()
	}
	stored := *v
	stored.PatientName, stored.DoctorName, stored.Diagnosis = "", "", nil
	m.visits[v.ID] = stored
	return nil
}

func (m *MemStore) ListVisits(_ context.Context, f VisitFilter) ([]*Visit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.filterVisits(f)
	sortByCreated(out, f.Order, func(v *Visit) time.Time { return v.CreatedAt })
	out = page(out, 0, f.Limit)
	for i, v := range out {
		out[i] = m.projectVisit(*v)
	}
	return out, nil
}

func (m *MemStore) CountVisits(_ context.Context, f VisitFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.filterVisits(f)), nil
}

func (m *MemStore) filterVisits(f VisitFilter) []*Visit {
	var out []*Visit
	for _, v := range m.visits {
		if f.PatientID != nil && v.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && v.DoctorID != *f.DoctorID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, v.Status) {
			continue
		}
		if f.PaymentStatus != nil && v.PaymentStatus != *f.PaymentStatus {
			continue
		}
		if !inRange(v.CreatedAt, f.CreatedFrom, f.CreatedTo) {
			continue
		}
		out = append(out, &v)
	}
	return out
}

func (m *MemStore) projectVisit(v Visit) *Visit {
	if p, ok := m.patients[v.PatientID]; ok {
		v.PatientName = p.FullName
	}
	if s, ok := m.staff[v.DoctorID]; ok {
		v.DoctorName = s.FullName
	}
	for _, d := range m.diagnoses {
		if d.VisitID == v.ID {
			v.Diagnosis = &d
			break
		}
	}
	return &v
}

// ---------------------------------------------------------------------------
// Lab requests
// ---------------------------------------------------------------------------

func (m *MemStore) CreateLabRequest(_ context.Context, r *LabRequest) error {
	defer m.write()()

	stamp(&r.ID, &r.CreatedAt, m.now())
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	if _, ok := m.labs[r.ID]; ok {
		return ErrConflict
	}
	m.labs[r.ID] = cloneLab(*r)
	return nil
}

func (m *MemStore) GetLabRequest(_ context.Context, id uuid.UUID) (*LabRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.labs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.projectLab(r), nil
}

func (m *MemStore) UpdateLabRequest(_ context.Context, r *LabRequest) error {
	defer m.write()()

	if _, ok := m.labs[r.ID]; !ok {
		return ErrNotFound
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = m.now()
	}
	m.labs[r.ID] = cloneLab(*r)
	return nil
}

func (m *MemStore) ListLabRequests(_ context.Context, f LabFilter) ([]*LabRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*LabRequest
	for _, r := range m.labs {
		if f.VisitID != nil && r.VisitID != *f.VisitID {
			continue
		}
		if f.PatientID != nil && r.PatientID != *f.PatientID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
			continue
		}
		out = append(out, &r)
	}
	sortByCreated(out, f.Order, func(r *LabRequest) time.Time { return r.CreatedAt })
	out = page(out, 0, f.Limit)
	for i, r := range out {
		out[i] = m.projectLab(*r)
	}
	return out, nil
}

func (m *MemStore) projectLab(r LabRequest) *LabRequest {
	r = cloneLab(r)
	if p, ok := m.patients[r.PatientID]; ok {
		r.PatientName = p.FullName
	}
	if s, ok := m.staff[r.DoctorID]; ok {
		r.DoctorName = s.FullName
	}
	return &r
}

func cloneLab(r LabRequest) LabRequest {
	r.Results = slices.Clone(r.Results)
	r.ResultFiles = slices.Clone(r.ResultFiles)
	r.PatientName, r.DoctorName = "", ""
	return r
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

func (m *MemStore) CreatePayment(_ context.Context, p *Payment) error {
	defer m.write()()

	stamp(&p.ID, &p.CreatedAt, m.now())
	if _, ok := m.payments[p.ID]; ok {
		return ErrConflict
	}
	stored := *p
	stored.PatientName = ""
	m.payments[p.ID] = stored
	return nil
}

func (m *MemStore) GetPayment(_ context.Context, id uuid.UUID) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.projectPayment(p), nil
}

func (m *MemStore) ListPayments(_ context.Context, f PaymentFilter) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Payment
	for _, p := range m.payments {
		if f.PatientID != nil && (p.PatientID == nil || *p.PatientID != *f.PatientID) {
			continue
		}
		if f.ReferenceID != nil && p.ReferenceID != *f.ReferenceID {
			continue
		}
		if f.Type != nil && p.Type != *f.Type {
			continue
		}
		if !inRange(p.CreatedAt, f.CreatedFrom, f.CreatedTo) {
			continue
		}
		out = append(out, &p)
	}
	sortByCreated(out, f.Order, func(p *Payment) time.Time { return p.CreatedAt })
	out = page(out, 0, f.Limit)
	for i, p := range out {
		out[i] = m.projectPayment(*p)
	}
	return out, nil
}

func (m *MemStore) projectPayment(p Payment) *Payment {
	if p.PatientID != nil {
		if pt, ok := m.patients[*p.PatientID]; ok {
			p.PatientName = pt.FullName
		}
	}
	return &p
}

// ---------------------------------------------------------------------------
// Diagnoses
// ---------------------------------------------------------------------------

func (m *MemStore) UpsertDiagnosis(_ context.Context, d *Diagnosis) error {
	defer m.write()()

	now := m.now()
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	for id, o := range m.diagnoses {
		if o.VisitID == d.VisitID {
			d.ID, d.CreatedAt = id, o.CreatedAt
			m.diagnoses[id] = *d
			return nil
		}
	}
	stamp(&d.ID, &d.CreatedAt, now)
	m.diagnoses[d.ID] = *d
	return nil
}

func (m *MemStore) GetDiagnosis(_ context.Context, id uuid.UUID) (*Diagnosis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.diagnoses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemStore) GetDiagnosisByVisit(_ context.Context, visitID uuid.UUID) (*Diagnosis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.diagnoses {
		if d.VisitID == visitID {
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) CountDiagnoses(_ context.Context, visitID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, d := range m.diagnoses {
		if d.VisitID == visitID {
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Prescriptions and templates
// ---------------------------------------------------------------------------

func (m *MemStore) CreatePrescription(_ context.Context, p *Prescription) error {
	defer m.write()()

	stamp(&p.ID, &p.CreatedAt, m.now())
	if _, ok := m.prescriptions[p.ID]; ok {
		return ErrConflict
	}
	stored := *p
	stored.Medications = slices.Clone(p.Medications)
	stored.Images = slices.Clone(p.Images)
	m.prescriptions[p.ID] = stored
	return nil
}

func (m *MemStore) GetPrescription(_ context.Context, id uuid.UUID) (*Prescription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.prescriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemStore) ListPrescriptions(_ context.Context, f PrescriptionFilter) ([]*Prescription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Prescription
	for _, p := range m.prescriptions {
		if f.PatientID != nil && p.PatientID != *f.PatientID {
			continue
		}
		if f.VisitID != nil && p.VisitID != *f.VisitID {
			continue
		}
		if f.DoctorID != nil && p.DoctorID != *f.DoctorID {
			continue
		}
		out = append(out, &p)
	}
	sortByCreated(out, NewestFirst, func(p *Prescription) time.Time { return p.CreatedAt })
	return page(out, 0, f.Limit), nil
}

func (m *MemStore) CreateTemplate(_ context.Context, t *PrescriptionTemplate) error {
	defer m.write()()

	stamp(&t.ID, &t.CreatedAt, m.now())
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if _, ok := m.templates[t.ID]; ok {
		return ErrConflict
	}
	stored := *t
	stored.Medications = slices.Clone(t.Medications)
	m.templates[t.ID] = stored
	return nil
}

func (m *MemStore) GetTemplate(_ context.Context, id uuid.UUID) (*PrescriptionTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemStore) UpdateTemplate(_ context.Context, t *PrescriptionTemplate) error {
	defer m.write()()

	if _, ok := m.templates[t.ID]; !ok {
		return ErrNotFound
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = m.now()
	}
	stored := *t
	stored.Medications = slices.Clone(t.Medications)
	m.templates[t.ID] = stored
	return nil
}

func (m *MemStore) DeleteTemplate(_ context.Context, id uuid.UUID) error {
	defer m.write()()

	if _, ok := m.templates[id]; !ok {
		return ErrNotFound
	}
	delete(m.templates, id)
	return nil
}

func (m *MemStore) ListTemplates(_ context.Context, doctorID uuid.UUID) ([]*PrescriptionTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*PrescriptionTemplate
	for _, t := range m.templates {
		if t.DoctorID == doctorID {
			out = append(out, &t)
		}
	}
	slices.SortFunc(out, func(a, b *PrescriptionTemplate) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

func sortByCreated[T any](s []T, o Order, at func(T) time.Time) {
	slices.SortStableFunc(s, func(a, b T) int {
		if o == OldestFirst {
			return at(a).Compare(at(b))
		}
		return at(b).Compare(at(a))
	})
}

func page[T any](s []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(s) {
			return nil
		}
		s = s[offset:]
	}
	if limit > 0 && len(s) > limit {
		s = s[:limit]
	}
	return s
}

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PGStore implements Store on postgres. Statements are built with ent's SQL
// builder and run on an ent driver.
type PGStore struct {
	drv  *sql.Driver
	conn dialect.ExecQuerier
	inTx bool
	now  func() time.Time
}

var _ Store = (*PGStore)(nil)

func NewPGStore(drv *sql.Driver) *PGStore {
	return &PGStore{drv: drv, conn: drv, now: time.Now}
}

func (s *PGStore) Close() error { return s.drv.Close() }

func (s *PGStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("repo: begin tx: %w", err)
	}
	if err := fn(&PGStore{drv: s.drv, conn: tx, inTx: true, now: s.now}); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, fmt.Errorf("repo: rollback: %w", rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repo: commit: %w", err)
	}
	return nil
}

func builder() *sql.DialectBuilder { return sql.Dialect(dialect.Postgres) }

// ---------------------------------------------------------------------------
// execution helpers
// ---------------------------------------------------------------------------

type querier interface {
	Query() (string, []any)
}

func (s *PGStore) exec(ctx context.Context, q querier) (int64, error) {
	query, args := q.Query()
	var res sql.Result
	if err := s.conn.Exec(ctx, query, args, &res); err != nil {
		return 0, mapPGError(err)
	}
	return res.RowsAffected()
}

func (s *PGStore) query(ctx context.Context, q querier, scan func(*sql.Rows) error) error {
	query, args := q.Query()
	rows := &sql.Rows{}
	if err := s.conn.Query(ctx, query, args, rows); err != nil {
		return mapPGError(err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// mapPGError turns unique violations into ErrConflict.
func mapPGError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
	}
	return err
}

func requireOne(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func fromJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func orderBy(col string, o Order) string {
	if o == OldestFirst {
		return sql.Asc(col)
	}
	return sql.Desc(col)
}

// ---------------------------------------------------------------------------
// Patients
// ---------------------------------------------------------------------------

var patientColumns = []string{
	"id", "full_name", "phone", "national_id", "national_id_hash", "birth_date",
	"gender", "address", "medical_history", "allergies", "created_at", "updated_at",
}

func scanPatient(rows *sql.Rows) (*Patient, error) {
	var (
		p         Patient
		hash      sql.NullString
		birthDate sql.NullTime
	)
	if err := rows.Scan(&p.ID, &p.FullName, &p.Phone, &p.NationalID, &hash, &birthDate,
		&p.Gender, &p.Address, &p.MedicalHistory, &p.Allergies, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.NationalIDHash = hash.String
	if birthDate.Valid {
		p.BirthDate = &birthDate.Time
	}
	return &p, nil
}

func (s *PGStore) CreatePatient(ctx context.Context, p *Patient) error {
	stamp(&p.ID, &p.CreatedAt, s.now())
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	_, err := s.exec(ctx, builder().Insert("patients").
		Columns(patientColumns...).
		Values(p.ID, p.FullName, p.Phone, p.NationalID, nullString(p.NationalIDHash), nullTime(p.BirthDate),
			p.Gender, p.Address, p.MedicalHistory, p.Allergies, p.CreatedAt, p.UpdatedAt))
	return err
}

func (s *PGStore) getPatient(ctx context.Context, pred *sql.Predicate) (*Patient, error) {
	b := builder()
	var out *Patient
	err := s.query(ctx, b.Select(patientColumns...).From(b.Table("patients")).Where(pred).Limit(1),
		func(rows *sql.Rows) (err error) {
			out, err = scanPatient(rows)
			return err
		})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *PGStore) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.getPatient(ctx, sql.EQ("id", id))
}

func (s *PGStore) GetPatientByNationalIDHash(ctx context.Context, hash string) (*Patient, error) {
	if hash == "" {
		return nil, ErrNotFound
	}
	return s.getPatient(ctx, sql.EQ("national_id_hash", hash))
}

func (s *PGStore) UpdatePatient(ctx context.Context, p *Patient) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	return requireOne(s.exec(ctx, builder().Update("patients").
		Set("full_name", p.FullName).
		Set("phone", p.Phone).
		Set("national_id", p.NationalID).
		Set("national_id_hash", nullString(p.NationalIDHash)).
		Set("birth_date", nullTime(p.BirthDate)).
		Set("gender", p.Gender).
		Set("address", p.Address).
		Set("medical_history", p.MedicalHistory).
		Set("allergies", p.Allergies).
		Set("updated_at", p.UpdatedAt).
		Where(sql.EQ("id", p.ID))))
}

func patientSelect(f PatientFilter) *sql.Selector {
	b := builder()
	sel := b.Select(patientColumns...).From(b.Table("patients")).OrderBy(sql.Desc("created_at"))
	if f.Search != "" {
		sel.Where(sql.Or(sql.ContainsFold("full_name", f.Search), sql.Contains("phone", f.Search)))
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	if f.Offset > 0 {
		sel.Offset(f.Offset)
	}
	return sel
}

func (s *PGStore) ListPatients(ctx context.Context, f PatientFilter) ([]*Patient, error) {
	var out []*Patient
	err := s.query(ctx, patientSelect(f), func(rows *sql.Rows) error {
		p, err := scanPatient(rows)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// ---------------------------------------------------------------------------
// Staff
// ---------------------------------------------------------------------------

var staffColumns = []string{"id", "full_name", "username", "password_hash", "role", "active", "created_at"}

func scanStaff(rows *sql.Rows) (*Staff, error) {
	var st Staff
	if err := rows.Scan(&st.ID, &st.FullName, &st.Username, &st.PasswordHash, &st.Role, &st.Active, &st.CreatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PGStore) CreateStaff(ctx context.Context, st *Staff) error {
	stamp(&st.ID, &st.CreatedAt, s.now())
	_, err := s.exec(ctx, builder().Insert("staff").
		Columns(staffColumns...).
		Values(st.ID, st.FullName, st.Username, st.PasswordHash, string(st.Role), st.Active, st.CreatedAt))
	return err
}

func (s *PGStore) getStaff(ctx context.Context, pred *sql.Predicate) (*Staff, error) {
	b := builder()
	var out *Staff
	err := s.query(ctx, b.Select(staffColumns...).From(b.Table("staff")).Where(pred).Limit(1),
		func(rows *sql.Rows) (err error) {
			out, err = scanStaff(rows)
			return err
		})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *PGStore) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.getStaff(ctx, sql.EQ("id", id))
}

func (s *PGStore) GetStaffByUsername(ctx context.Context, username string) (*Staff, error) {
	return s.getStaff(ctx, sql.EqualFold("username", username))
}

func (s *PGStore) UpdateStaff(ctx context.Context, st *Staff) error {
	return requireOne(s.exec(ctx, builder().Update("staff").
		Set("full_name", st.FullName).
		Set("username", st.Username).
		Set("password_hash", st.PasswordHash).
		Set("role", string(st.Role)).
		Set("active", st.Active).
		Where(sql.EQ("id", st.ID))))
}

func (s *PGStore) ListStaff(ctx context.Context, f StaffFilter) ([]*Staff, error) {
	b := builder()
	sel := b.Select(staffColumns...).From(b.Table("staff")).OrderBy(sql.Asc("full_name"))
	if f.Role != nil {
		sel.Where(sql.EQ("role", string(*f.Role)))
	}
	if f.ActiveOnly {
		sel.Where(sql.EQ("active", true))
	}
	var out []*Staff
	err := s.query(ctx, sel, func(rows *sql.Rows) error {
		st, err := scanStaff(rows)
		if err != nil {
			return err
		}
		out = append(out, st)
		return nil
	})
	return out, err
}

// ---------------------------------------------------------------------------
// Visits
// ---------------------------------------------------------------------------

var visitColumns = []string{
	"id", "patient_id", "doctor_id", "visit_date", "vitals", "symptoms", "status",
	"payment_status", "fee", "queue_number", "diagnosis_id", "created_by", "created_at", "updated_at",
}

// visitSelect joins the patient and doctor names and the visit's diagnosis.
func visitSelect(f VisitFilter) *sql.Selector {
	b := builder()
	v := b.Table("visits").As("v")
	p := b.Table("patients").As("p")
	d := b.Table("staff").As("d")
	g := b.Table("diagnoses").As("g")

	cols := make([]string, 0, len(visitColumns)+4)
	for _, c := range visitColumns {
		cols = append(cols, v.C(c))
	}
	cols = append(cols,
		sql.As("COALESCE("+p.C("full_name")+", '')", "patient_name"),
		sql.As("COALESCE("+d.C("full_name")+", '')", "doctor_name"),
		g.C("id"), g.C("final_diagnosis"), g.C("ai_analysis"), g.C("confidence_score"),
		g.C("created_at"), g.C("updated_at"),
	)

	sel := b.Select(cols...).From(v).
		LeftJoin(p).On(v.C("patient_id"), p.C("id")).
		LeftJoin(d).On(v.C("doctor_id"), d.C("id")).
		LeftJoin(g).On(v.C("id"), g.C("visit_id"))
	visitWhere(sel, v.C, f)
	sel.OrderBy(orderBy(v.C("created_at"), f.Order))
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	return sel
}

func visitWhere(sel *sql.Selector, c func(string) string, f VisitFilter) {
	if f.PatientID != nil {
		sel.Where(sql.EQ(c("patient_id"), *f.PatientID))
	}
	if f.DoctorID != nil {
		sel.Where(sql.EQ(c("doctor_id"), *f.DoctorID))
	}
	if len(f.Statuses) > 0 {
		sel.Where(sql.In(c("status"), anySlice(statusStrings(f.Statuses))...))
	}
	if f.PaymentStatus != nil {
		sel.Where(sql.EQ(c("payment_status"), string(*f.PaymentStatus)))
	}
	if f.CreatedFrom != nil {
		sel.Where(sql.GTE(c("created_at"), *f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		sel.Where(sql.LT(c("created_at"), *f.CreatedTo))
	}
}

func statusStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func scanVisit(rows *sql.Rows) (*Visit, error) {
	var (
		v           Visit
		vitals      []byte
		diagnosisID uuid.NullUUID
		gID         uuid.NullUUID
		gFinal      sql.NullString
		gAnalysis   []byte
		gScore      sql.NullFloat64
		gCreated    sql.NullTime
		gUpdated    sql.NullTime
	)
	if err := rows.Scan(&v.ID, &v.PatientID, &v.DoctorID, &v.VisitDate, &vitals, &v.Symptoms, &v.Status,
		&v.PaymentStatus, &v.Fee, &v.QueueNumber, &diagnosisID, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt,
		&v.PatientName, &v.DoctorName,
		&gID, &gFinal, &gAnalysis, &gScore, &gCreated, &gUpdated); err != nil {
		return nil, err
	}
	if err := fromJSON(vitals, &v.Vitals); err != nil {
		return nil, fmt.Errorf("repo: decode vitals: %w", err)
	}
	if diagnosisID.Valid {
		v.DiagnosisID = &diagnosisID.UUID
	}
	if gID.Valid {
		d := &Diagnosis{
			ID:              gID.UUID,
			VisitID:         v.ID,
			FinalDiagnosis:  gFinal.String,
			ConfidenceScore: gScore.Float64,
			CreatedAt:       gCreated.Time,
			UpdatedAt:       gUpdated.Time,
		}
		if len(gAnalysis) > 0 {
			d.AIAnalysis = &AIAnalysis{}
			if err := fromJSON(gAnalysis, d.AIAnalysis); err != nil {
				return nil, fmt.Errorf("repo: decode ai analysis: %w", err)
			}
		}
		v.Diagnosis = d
	}
	return &v, nil
}

func (s *PGStore) CreateVisit(ctx context.Context, v *Visit) error {
	stamp(&v.ID, &v.CreatedAt, s.now())
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = v.CreatedAt
	}
	if v.VisitDate.IsZero() {
		v.VisitDate = v.CreatedAt
	}
	vitals, err := toJSON(v.Vitals)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, builder().Insert("visits").
		Columns(visitColumns...).
		Values(v.ID, v.PatientID, v.DoctorID, v.VisitDate, vitals, v.Symptoms, string(v.Status),
			string(v.PaymentStatus), v.Fee, v.QueueNumber, nullUUID(v.DiagnosisID), v.CreatedBy, v.CreatedAt, v.UpdatedAt))
	return err
}

func (s *PGStore) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	sel := visitSelect(VisitFilter{Limit: 1})
	sel.Where(sql.EQ(sel.C("id"), id))
	var out *Visit
	err := s.query(ctx, sel, func(rows *sql.Rows) (err error) {
		out, err = scanVisit(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *PGStore) UpdateVisit(ctx context.Context, v *Visit) error {
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = s.now()
	}
	vitals, err := toJSON(v.Vitals)
	if err != nil {
		return err
	}
	return requireOne(s.exec(ctx, builder().Update("visits").
		Set("doctor_id", v.DoctorID).
		Set("vitals", vitals).
		Set("symptoms", v.Symptoms).
		Set("status", string(v.Status)).
		Set("payment_status", string(v.PaymentStatus)).
		Set("fee", v.Fee).
		Set("diagnosis_id", nullUUID(v.DiagnosisID)).
		Set("updated_at", v.UpdatedAt).
		Where(sql.EQ("id", v.ID))))
}

func (s *PGStore) ListVisits(ctx context.Context, f VisitFilter) ([]*Visit, error) {
	var out []*Visit
	err := s.query(ctx, visitSelect(f), func(rows *sql.Rows) error {
		v, err := scanVisit(rows)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func visitCount(f VisitFilter) *sql.Selector {
	b := builder()
	t := b.Table("visits")
	sel := b.Select(sql.Count("*")).From(t)
	visitWhere(sel, t.C, f)
	return sel
}

func (s *PGStore) CountVisits(ctx context.Context, f VisitFilter) (int, error) {
	return s.count(ctx, visitCount(f))
}

func (s *PGStore) count(ctx context.Context, sel *sql.Selector) (int, error) {
	var n int
	err := s.query(ctx, sel, func(rows *sql.Rows) error { return rows.Scan(&n) })
	return n, err
}

// ---------------------------------------------------------------------------
// Lab requests
// ---------------------------------------------------------------------------

var labColumns = []string{
	"id", "visit_id", "patient_id", "doctor_id", "test_name", "price", "status",
	"technician_notes", "results", "result_files", "created_at", "updated_at", "completed_at",
}

func labSelect(f LabFilter) *sql.Selector {
	b := builder()
	l := b.Table("lab_requests").As("l")
	p := b.Table("patients").As("p")
	d := b.Table("staff").As("d")

	cols := make([]string, 0, len(labColumns)+2)
	for _, c := range labColumns {
		cols = append(cols, l.C(c))
	}
	cols = append(cols,
		sql.As("COALESCE("+p.C("full_name")+", '')", "patient_name"),
		sql.As("COALESCE("+d.C("full_name")+", '')", "doctor_name"),
	)

	sel := b.Select(cols...).From(l).
		LeftJoin(p).On(l.C("patient_id"), p.C("id")).
		LeftJoin(d).On(l.C("doctor_id"), d.C("id"))
	if f.VisitID != nil {
		sel.Where(sql.EQ(l.C("visit_id"), *f.VisitID))
	}
	if f.PatientID != nil {
		sel.Where(sql.EQ(l.C("patient_id"), *f.PatientID))
	}
	if len(f.Statuses) > 0 {
		sel.Where(sql.In(l.C("status"), anySlice(statusStrings(f.Statuses))...))
	}
	sel.OrderBy(orderBy(l.C("created_at"), f.Order))
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	return sel
}

func scanLab(rows *sql.Rows) (*LabRequest, error) {
	var (
		r           LabRequest
		results     []byte
		files       []byte
		completedAt sql.NullTime
	)
	if err := rows.Scan(&r.ID, &r.VisitID, &r.PatientID, &r.DoctorID, &r.TestName, &r.Price, &r.Status,
		&r.TechnicianNotes, &results, &files, &r.CreatedAt, &r.UpdatedAt, &completedAt,
		&r.PatientName, &r.DoctorName); err != nil {
		return nil, err
	}
	if err := fromJSON(results, &r.Results); err != nil {
		return nil, fmt.Errorf("repo: decode lab results: %w", err)
	}
	if err := fromJSON(files, &r.ResultFiles); err != nil {
		return nil, fmt.Errorf("repo: decode result files: %w", err)
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

func (s *PGStore) CreateLabRequest(ctx context.Context, r *LabRequest) error {
	stamp(&r.ID, &r.CreatedAt, s.now())
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	results, err := toJSON(r.Results)
	if err != nil {
		return err
	}
	files, err := toJSON(r.ResultFiles)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, builder().Insert("lab_requests").
		Columns(labColumns...).
		Values(r.ID, r.VisitID, r.PatientID, r.DoctorID, r.TestName, r.Price, string(r.Status),
			r.TechnicianNotes, results, files, r.CreatedAt, r.UpdatedAt, nullTime(r.CompletedAt)))
	return err
}

func (s *PGStore) GetLabRequest(ctx context.Context, id uuid.UUID) (*LabRequest, error) {
	sel := labSelect(LabFilter{Limit: 1})
	sel.Where(sql.EQ(sel.C("id"), id))
	var out *LabRequest
	err := s.query(ctx, sel, func(rows *sql.Rows) (err error) {
		out, err = scanLab(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *PGStore) UpdateLabRequest(ctx context.Context, r *LabRequest) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now()
	}
	results, err := toJSON(r.Results)
	if err != nil {
		return err
	}
	files, err := toJSON(r.ResultFiles)
	if err != nil {
		return err
	}
	return requireOne(s.exec(ctx, builder().Update("lab_requests").
		Set("status", string(r.Status)).
		Set("price", r.Price).
		Set("technician_notes", r.TechnicianNotes).
		Set("results", results).
		Set("result_files", files).
		Set("completed_at", nullTime(r.CompletedAt)).
		Set("updated_at", r.UpdatedAt).
		Where(sql.EQ("id", r.ID))))
}

func (s *PGStore) ListLabRequests(ctx context.Context, f LabFilter) ([]*LabRequest, error) {
	var out []*LabRequest
	err := s.query(ctx, labSelect(f), func(rows *sql.Rows) error {
		r, err := scanLab(rows)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

var paymentColumns = []string{
	"id", "patient_id", "cashier_id", "amount", "payment_type", "reference_id", "description", "created_at",
}

func paymentSelect(f PaymentFilter) *sql.Selector {
	b := builder()
	t := b.Table("payments").As("pay")
	p := b.Table("patients").As("p")

	cols := make([]string, 0, len(paymentColumns)+1)
	for _, c := range paymentColumns {
		cols = append(cols, t.C(c))
	}
	cols = append(cols, sql.As("COALESCE("+p.C("full_name")+", '')", "patient_name"))

	sel := b.Select(cols...).From(t).LeftJoin(p).On(t.C("patient_id"), p.C("id"))
	if f.PatientID != nil {
		sel.Where(sql.EQ(t.C("patient_id"), *f.PatientID))
	}
	if f.ReferenceID != nil {
		sel.Where(sql.EQ(t.C("reference_id"), *f.ReferenceID))
	}
	if f.Type != nil {
		sel.Where(sql.EQ(t.C("payment_type"), string(*f.Type)))
	}
	if f.CreatedFrom != nil {
		sel.Where(sql.GTE(t.C("created_at"), *f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		sel.Where(sql.LT(t.C("created_at"), *f.CreatedTo))
	}
	sel.OrderBy(orderBy(t.C("created_at"), f.Order))
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	return sel
}

func scanPayment(rows *sql.Rows) (*Payment, error) {
	var (
		p         Payment
		patientID uuid.NullUUID
	)
	if err := rows.Scan(&p.ID, &patientID, &p.CashierID, &p.Amount, &p.Type, &p.ReferenceID,
		&p.Description, &p.CreatedAt, &p.PatientName); err != nil {
		return nil, err
	}
	if patientID.Valid {
		p.PatientID = &patientID.UUID
	}
	return &p, nil
}

func (s *PGStore) CreatePayment(ctx context.Context, p *Payment) error {
	stamp(&p.ID, &p.CreatedAt, s.now())
	_, err := s.exec(ctx, builder().Insert("payments").
		Columns(paymentColumns...).
		Values(p.ID, nullUUID(p.PatientID), p.CashierID, p.Amount, string(p.Type), p.ReferenceID,
			p.Description, p.CreatedAt))
	return err
}

func (s *PGStore) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	sel := paymentSelect(PaymentFilter{Limit: 1})
	sel.Where(sql.EQ(sel.C("id"), id))
	var out *Payment
	err := s.query(ctx, sel, func(rows *sql.Rows) (err error) {
		out, err = scanPayment(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *PGStore) ListPayments(ctx context.Context, f PaymentFilter) ([]*Payment, error) {
	var out []*Payment
	err := s.query(ctx, paymentSelect(f), func(rows *sql.Rows) error {
		p, err := scanPayment(rows)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// ---------------------------------------------------------------------------
// Diagnoses
// ---------------------------------------------------------------------------

var diagnosisColumns = []string{
	"id", "visit_id", "final_diagnosis", "ai_analysis", "confidence_score", "created_at", "updated_at",
}

// diagnosisUpsert relies on the unique index on diagnoses.visit_id; an
// existing row keeps its id and created_at.
func diagnosisUpsert(d *Diagnosis, analysis any) *sql.InsertBuilder {
	return builder().Insert("diagnoses").
		Columns(diagnosisColumns...).
		Values(d.ID, d.VisitID, d.FinalDiagnosis, analysis, d.ConfidenceScore, d.CreatedAt, d.UpdatedAt).
		OnConflict(
			sql.ConflictColumns("visit_id"),
			sql.ResolveWith(func(u *sql.UpdateSet) {
				u.SetExcluded("final_diagnosis")
				u.SetExcluded("ai_analysis")
				u.SetExcluded("confidence_score")
				u.SetExcluded("updated_at")
			}),
		).
		Returning("id", "created_at")
}

func (s *PGStore) UpsertDiagnosis(ctx context.Context, d *Diagnosis) error {
	now := s.now()
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	stamp(&d.ID, &d.CreatedAt, now)

	var analysis any
	if d.AIAnalysis != nil {
		js, err := toJSON(d.AIAnalysis)
		if err != nil {
			return err
		}
		analysis = js
	}
	return s.query(ctx, diagnosisUpsert(d, analysis), func(rows *sql.Rows) error {
		return rows.Scan(&d.ID, &d.CreatedAt)
	})
}

func scanDiagnosis(rows *sql.Rows) (*Diagnosis, error) {
	var (
		d        Diagnosis
		analysis []byte
	)
	if err := rows.Scan(&d.ID, &d.VisitID, &d.FinalDiagnosis, &analysis, &d.ConfidenceScore,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if len(analysis) > 0 {
		d.AIAnalysis = &AIAnalysis{}
		if err := fromJSON(analysis, d.AIAnalysis); err != nil {
			return nil, fmt.Errorf("repo: decode ai analysis: %w", err)
		}
	}
	return &d, nil
}

func (s *PGStore) getDiagnosis(ctx context.Context, pred *sql.Predicate) (*Diagnosis, error) {
	b := builder()
	var out *Diagnosis
	err := s.query(ctx, b.Select(diagnosisColumns...).From(b.Table("diagnoses")).Where(pred).Limit(1),
		func(rows *sql.Rows) (err error) {
			out, err = scanDiagnosis(rows)
			return err
		})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *PGStore) GetDiagnosis(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	return s.getDiagnosis(ctx, sql.EQ("id", id))
}

func (s *PGStore) GetDiagnosisByVisit(ctx context.Context, visitID uuid.UUID) (*Diagnosis, error) {
	return s.getDiagnosis(ctx, sql.EQ("visit_id", visitID))
}

func (s *PGStore) CountDiagnoses(ctx context.Context, visitID uuid.UUID) (int, error) {
	b := builder()
	return s.count(ctx, b.Select(sql.Count("*")).From(b.Table("diagnoses")).Where(sql.EQ("visit_id", visitID)))
}

// ---------------------------------------------------------------------------
// Prescriptions
// ---------------------------------------------------------------------------

var prescriptionColumns = []string{
	"id", "visit_id", "patient_id", "doctor_id", "medications", "diagnosis", "notes", "images", "created_at",
}

func scanPrescription(rows *sql.Rows) (*Prescription, error) {
	var (
		p      Prescription
		meds   []byte
		images []byte
	)
	if err := rows.Scan(&p.ID, &p.VisitID, &p.PatientID, &p.DoctorID, &meds, &p.Diagnosis, &p.Notes,
		&images, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(meds, &p.Medications); err != nil {
		return nil, fmt.Errorf("repo: decode medications: %w", err)
	}
	if err := fromJSON(images, &p.Images); err != nil {
		return nil, fmt.Errorf("repo: decode images: %w", err)
	}
	return &p, nil
}

func (s *PGStore) CreatePrescription(ctx context.Context, p *Prescription) error {
	stamp(&p.ID, &p.CreatedAt, s.now())
	meds, err := toJSON(p.Medications)
	if err != nil {
		return err
	}
	images, err := toJSON(p.Images)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, builder().Insert("prescriptions").
		Columns(prescriptionColumns...).
		Values(p.ID, p.VisitID, p.PatientID, p.DoctorID, meds, p.Diagnosis, p.Notes, images, p.CreatedAt))
	return err
}

func (s *PGStore) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	out, err := s.listPrescriptions(ctx, sql.EQ("id", id), 1)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

func (s *PGStore) ListPrescriptions(ctx context.Context, f PrescriptionFilter) ([]*Prescription, error) {
	var preds []*sql.Predicate
	if f.PatientID != nil {
		preds = append(preds, sql.EQ("patient_id", *f.PatientID))
	}
	if f.VisitID != nil {
		preds = append(preds, sql.EQ("visit_id", *f.VisitID))
	}
	if f.DoctorID != nil {
		preds = append(preds, sql.EQ("doctor_id", *f.DoctorID))
	}
	var pred *sql.Predicate
	if len(preds) > 0 {
		pred = sql.And(preds...)
	}
	return s.listPrescriptions(ctx, pred, f.Limit)
}

func (s *PGStore) listPrescriptions(ctx context.Context, pred *sql.Predicate, limit int) ([]*Prescription, error) {
	b := builder()
	sel := b.Select(prescriptionColumns...).From(b.Table("prescriptions")).OrderBy(sql.Desc("created_at"))
	if pred != nil {
		sel.Where(pred)
	}
	if limit > 0 {
		sel.Limit(limit)
	}
	var out []*Prescription
	err := s.query(ctx, sel, func(rows *sql.Rows) error {
		p, err := scanPrescription(rows)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// ---------------------------------------------------------------------------
// Prescription templates
// ---------------------------------------------------------------------------

var templateColumns = []string{"id", "doctor_id", "name", "diagnosis", "medications", "notes", "created_at", "updated_at"}

func scanTemplate(rows *sql.Rows) (*PrescriptionTemplate, error) {
	var (
		t    PrescriptionTemplate
		meds []byte
	)
	if err := rows.Scan(&t.ID, &t.DoctorID, &t.Name, &t.Diagnosis, &meds, &t.Notes, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(meds, &t.Medications); err != nil {
		return nil, fmt.Errorf("repo: decode medications: %w", err)
	}
	return &t, nil
}

func (s *PGStore) CreateTemplate(ctx context.Context, t *PrescriptionTemplate) error {
	stamp(&t.ID, &t.CreatedAt, s.now())
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	meds, err := toJSON(t.Medications)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, builder().Insert("prescription_templates").
		Columns(templateColumns...).
		Values(t.ID, t.DoctorID, t.Name, t.Diagnosis, meds, t.Notes, t.CreatedAt, t.UpdatedAt))
	return err
}

func (s *PGStore) listTemplates(ctx context.Context, pred *sql.Predicate) ([]*PrescriptionTemplate, error) {
	b := builder()
	var out []*PrescriptionTemplate
	err := s.query(ctx, b.Select(templateColumns...).From(b.Table("prescription_templates")).
		Where(pred).OrderBy(sql.Asc("name")),
		func(rows *sql.Rows) error {
			t, err := scanTemplate(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	return out, err
}

func (s *PGStore) GetTemplate(ctx context.Context, id uuid.UUID) (*PrescriptionTemplate, error) {
	out, err := s.listTemplates(ctx, sql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

func (s *PGStore) UpdateTemplate(ctx context.Context, t *PrescriptionTemplate) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.now()
	}
	meds, err := toJSON(t.Medications)
	if err != nil {
		return err
	}
	return requireOne(s.exec(ctx, builder().Update("prescription_templates").
		Set("name", t.Name).
		Set("diagnosis", t.Diagnosis).
		Set("medications", meds).
		Set("notes", t.Notes).
		Set("updated_at", t.UpdatedAt).
		Where(sql.EQ("id", t.ID))))
}

func (s *PGStore) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	return requireOne(s.exec(ctx, builder().Delete("prescription_templates").Where(sql.EQ("id", id))))
}

func (s *PGStore) ListTemplates(ctx context.Context, doctorID uuid.UUID) ([]*PrescriptionTemplate, error) {
	return s.listTemplates(ctx, sql.EQ("doctor_id", doctorID))
}

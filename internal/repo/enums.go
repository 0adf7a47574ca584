package repo

import "strings"

type VisitStatus string

const (
	VisitWaiting       VisitStatus = "waiting"
	VisitPendingLab    VisitStatus = "pending_lab"
	VisitLabReady      VisitStatus = "lab_ready"
	VisitPendingReview VisitStatus = "pending_review"
	VisitReviewed      VisitStatus = "reviewed"
	VisitCompleted     VisitStatus = "completed"
)

var VisitStatuses = []VisitStatus{
	VisitWaiting, VisitPendingLab, VisitLabReady,
	VisitPendingReview, VisitReviewed, VisitCompleted,
}

// VisitTransitions lists, per target status, the statuses a visit may move from.
// An empty source means the status is only reachable on creation.
var VisitTransitions = map[VisitStatus][]VisitStatus{
	VisitWaiting:       {},
	VisitPendingReview: {},
	VisitPendingLab:    {VisitWaiting, VisitLabReady},
	VisitLabReady:      {VisitPendingLab},
	VisitCompleted:     {VisitWaiting, VisitLabReady},
	VisitReviewed:      {VisitPendingReview},
}

// CanTransition reports whether from -> to is an edge of the visit lifecycle.
func CanTransition(from, to VisitStatus) bool {
	for _, s := range VisitTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

func (s VisitStatus) Valid() bool {
	_, ok := VisitTransitions[s]
	return ok
}

// OpenVisitStatuses are the statuses in which a visit holds the patient's
// place in the local queue.
var OpenVisitStatuses = []VisitStatus{VisitWaiting, VisitPendingLab, VisitLabReady}

// WaitingRoomStatuses are the visits a doctor can act on right now.
var WaitingRoomStatuses = []VisitStatus{VisitWaiting, VisitLabReady}

// CompletableStatuses are the statuses a visit can be finalized from.
var CompletableStatuses = []VisitStatus{VisitWaiting, VisitLabReady}

func IsOpenVisitStatus(s VisitStatus) bool {
	for _, o := range OpenVisitStatuses {
		if o == s {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type LabRequestStatus string

const (
	LabPendingPayment LabRequestStatus = "pending_payment"
	LabPaid           LabRequestStatus = "paid"
	LabProcessing     LabRequestStatus = "processing"
	LabCompleted      LabRequestStatus = "completed"
)

var LabRequestStatuses = []LabRequestStatus{LabPendingPayment, LabPaid, LabProcessing, LabCompleted}

// LabWorklistStatuses are the requests a technician still has to serve.
var LabWorklistStatuses = []LabRequestStatus{LabPaid, LabProcessing}

type LabFlag string

const (
	FlagNormal   LabFlag = "N"
	FlagHigh     LabFlag = "H"
	FlagLow      LabFlag = "L"
	FlagAbnormal LabFlag = "A"
)

func (f LabFlag) Valid() bool {
	switch f {
	case FlagNormal, FlagHigh, FlagLow, FlagAbnormal:
		return true
	}
	return false
}

// ParseLabFlag maps the spellings seen on lab sheets to a flag. Anything
// unrecognised is treated as normal.
func ParseLabFlag(s string) LabFlag {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "H", "HIGH", "HI", "↑", "+":
		return FlagHigh
	case "L", "LOW", "LO", "↓", "-":
		return FlagLow
	case "A", "ABNORMAL", "ABN", "*", "!":
		return FlagAbnormal
	}
	return FlagNormal
}

// NormalizeResults trims each row and parses its flag.
func NormalizeResults(rows []LabResultRow) []LabResultRow {
	out := make([]LabResultRow, 0, len(rows))
	for _, r := range rows {
		r.TestName = strings.TrimSpace(r.TestName)
		if r.TestName == "" {
			continue
		}
		r.Result = strings.TrimSpace(r.Result)
		r.Unit = strings.TrimSpace(r.Unit)
		r.NormalRange = strings.TrimSpace(r.NormalRange)
		r.Flag = ParseLabFlag(string(r.Flag))
		out = append(out, r)
	}
	return out
}

// OutOfRange reports whether the flag marks a result outside its normal range.
func (f LabFlag) OutOfRange() bool {
	return f == FlagHigh || f == FlagLow || f == FlagAbnormal
}

type PaymentType string

const (
	PaymentVisitFee PaymentType = "VISIT_FEE"
	PaymentLabTest  PaymentType = "LAB_TEST"
	PaymentOther    PaymentType = "OTHER"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentVisitFee, PaymentLabTest, PaymentOther:
		return true
	}
	return false
}

type StaffRole string

const (
	RoleAdmin     StaffRole = "admin"
	RoleReception StaffRole = "reception"
	RoleDoctor    StaffRole = "doctor"
	RoleLab       StaffRole = "lab"
	RoleReviewer  StaffRole = "reviewer"
)

func (r StaffRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleReception, RoleDoctor, RoleLab, RoleReviewer:
		return true
	}
	return false
}

// Order is the sort direction of a list query on its natural time column.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

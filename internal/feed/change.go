// Package feed carries row-change notifications between the services that
// write clinic records and the projections that read them.
package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Table string

const (
	Visits        Table = "visits"
	Patients      Table = "patients"
	Prescriptions Table = "prescriptions"
	LabRequests   Table = "lab_requests"
	Payments      Table = "payments"
	Diagnoses     Table = "diagnoses"
)

type Op string

const (
	Insert Op = "insert"
	Update Op = "update"
	Delete Op = "delete"
)

// Change announces that one row was written.
type Change struct {
	Table Table     `json:"table"`
	Op    Op        `json:"op"`
	ID    uuid.UUID `json:"id"`
	// Ref is the owning row when the changed row only matters through it,
	// e.g. the visit of a diagnosis.
	Ref *uuid.UUID `json:"ref,omitempty"`
	At  time.Time  `json:"at"`
}

func NewChange(table Table, op Op, id uuid.UUID) Change {
	return Change{Table: table, Op: op, ID: id, At: time.Now().UTC()}
}

func (c Change) WithRef(ref uuid.UUID) Change {
	c.Ref = &ref
	return c
}

// Subject is the NATS subject a change is published on: <prefix>.<table>.<op>.
func Subject(prefix string, c Change) string {
	return strings.Join([]string{prefix, string(c.Table), string(c.Op)}, ".")
}

// Publisher announces committed writes. Delivery is best effort; failures are
// logged by the implementation and never fail the write.
type Publisher interface {
	Publish(ctx context.Context, c Change)
}

type Handler func(c Change)

type Subscriber interface {
	Subscribe(h Handler) (unsubscribe func(), err error)
}

// Bus is both ends of the feed.
type Bus interface {
	Publisher
	Subscriber
}

// Nop drops every change.
type Nop struct{}

func (Nop) Publish(context.Context, Change) {}

// Recorder keeps every published change in order.
type Recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *Recorder) Publish(_ context.Context, c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Change, len(r.changes))
	copy(out, r.changes)
	return out
}

// Has reports whether a change of table/op for id was published.
func (r *Recorder) Has(table Table, op Op, id uuid.UUID) bool {
	for _, c := range r.Changes() {
		if c.Table == table && c.Op == op && c.ID == id {
			return true
		}
	}
	return false
}

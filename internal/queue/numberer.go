package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
)

// VisitCounter is the part of repo.Store the numberer seeds from.
type VisitCounter interface {
	CountVisits(ctx context.Context, f repo.VisitFilter) (int, error)
}

// Numberer gives each visit inserted for a doctor the next number of the
// doctor's local day. Every path that inserts a visit must draw from it, so
// the number stays one past the visits already stored that day.
type Numberer struct {
	counter Counter
	visits  VisitCounter
	loc     *time.Location
}

// NewNumberer falls back to an in-process counter when counter is nil.
func NewNumberer(counter Counter, visits VisitCounter, loc *time.Location) *Numberer {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Numberer{counter: counter, visits: visits, loc: loc}
}

func (n *Numberer) Next(ctx context.Context, doctorID uuid.UUID, at time.Time) (int, error) {
	dayStart, dayEnd := clock.DayBounds(at, n.loc)
	return n.counter.Next(ctx, doctorID, dayStart, func(ctx context.Context) (int, error) {
		return n.visits.CountVisits(ctx, repo.VisitFilter{
			DoctorID:    &doctorID,
			CreatedFrom: &dayStart,
			CreatedTo:   &dayEnd,
		})
	})
}

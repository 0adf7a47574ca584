package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
)

func TestNumberer_SeedsFromLocalDay(t *testing.T) {
	ctx := context.Background()
	tehran := time.FixedZone("IRST", 3*3600+1800)
	store := repo.NewMemStore()
	doctor := uuid.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, tehran)
	midnight := time.Date(2026, 3, 2, 0, 0, 0, 0, tehran)

	for _, at := range []time.Time{midnight.Add(-time.Minute), midnight.Add(time.Minute), midnight.Add(time.Hour)} {
		require.NoError(t, store.CreateVisit(ctx, &repo.Visit{
			PatientID:     uuid.New(),
			DoctorID:      doctor,
			Status:        repo.VisitCompleted,
			PaymentStatus: repo.PaymentUnpaid,
			CreatedAt:     at,
		}))
	}

	n := NewNumberer(NewMemoryCounter(), store, tehran)
	tests := []struct {
		name   string
		doctor uuid.UUID
		at     time.Time
		want   int
	}{
		{"after two visits today", doctor, now, 3},
		{"same day continues", doctor, now.Add(time.Hour), 4},
		{"next day restarts", doctor, now.AddDate(0, 0, 1), 1},
		{"other doctor", uuid.New(), now, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Next(ctx, tt.doctor, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

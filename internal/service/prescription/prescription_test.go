package prescription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
)

func newService(t *testing.T) (Service, *repo.MemStore) {
	t.Helper()
	store := repo.NewMemStore()
	return New(store, &clock.Fixed{T: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}, nil), store
}

func TestTemplates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	doctor := repo.Caller{UserID: uuid.New(), Role: repo.RoleDoctor}
	other := repo.Caller{UserID: uuid.New(), Role: repo.RoleDoctor}
	admin := repo.Caller{UserID: uuid.New(), Role: repo.RoleAdmin}

	flu, err := svc.CreateTemplate(ctx, doctor, TemplateInput{
		Name:        " Flu ",
		Medications: []repo.Medication{{Name: "Acetaminophen", Dosage: "500mg"}, {Name: " "}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Flu", flu.Name)
	assert.Len(t, flu.Medications, 1)

	_, err = svc.CreateTemplate(ctx, doctor, TemplateInput{Name: "Angina", Medications: []repo.Medication{{Name: "Penicillin V"}}})
	require.NoError(t, err)

	mine, err := svc.ListTemplates(ctx, doctor)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Angina", mine[0].Name)

	theirs, err := svc.ListTemplates(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = svc.UpdateTemplate(ctx, other, flu.ID, TemplateInput{Name: "x", Medications: []repo.Medication{{Name: "y"}}})
	assert.ErrorIs(t, err, ErrNotOwner)

	updated, err := svc.UpdateTemplate(ctx, doctor, flu.ID, TemplateInput{
		Name:        "Flu (adult)",
		Medications: []repo.Medication{{Name: "Ibuprofen"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Flu (adult)", updated.Name)

	assert.ErrorIs(t, svc.DeleteTemplate(ctx, other, flu.ID), ErrNotOwner)
	require.NoError(t, svc.DeleteTemplate(ctx, admin, flu.ID))
	assert.ErrorIs(t, svc.DeleteTemplate(ctx, doctor, flu.ID), ErrTemplateNotFound)
}

func TestTemplateValidation(t *testing.T) {
	svc, _ := newService(t)
	doctor := repo.Caller{UserID: uuid.New(), Role: repo.RoleDoctor}

	tests := []struct {
		name string
		in   TemplateInput
		want error
	}{
		{"no name", TemplateInput{Medications: []repo.Medication{{Name: "a"}}}, ErrTemplateName},
		{"no medications", TemplateInput{Name: "a"}, ErrNoMedications},
		{"unnamed medications", TemplateInput{Name: "a", Medications: []repo.Medication{{Dosage: "1"}}}, ErrNoMedications},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTemplate(context.Background(), doctor, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHistory(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	patientID := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := range 3 {
		p := &repo.Prescription{
			VisitID:     uuid.New(),
			PatientID:   patientID,
			DoctorID:    uuid.New(),
			Medications: []repo.Medication{{Name: "m"}},
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.CreatePrescription(ctx, p))
		ids = append(ids, p.ID)
	}

	got, err := svc.History(ctx, patientID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[2], got[0].ID, "newest first")

	one, err := svc.Get(ctx, ids[0])
	require.NoError(t, err)
	forVisit, err := svc.ForVisit(ctx, one.VisitID)
	require.NoError(t, err)
	assert.Len(t, forVisit, 1)

	_, err = svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPrescriptionNotFound)
}

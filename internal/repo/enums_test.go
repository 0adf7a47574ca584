package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to VisitStatus
		want     bool
	}{
		{VisitWaiting, VisitPendingLab, true},
		{VisitPendingLab, VisitLabReady, true},
		{VisitLabReady, VisitCompleted, true},
		{VisitWaiting, VisitCompleted, true},
		{VisitPendingReview, VisitReviewed, true},
		{VisitPendingLab, VisitCompleted, false},
		{VisitCompleted, VisitWaiting, false},
		{VisitReviewed, VisitPendingReview, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseLabFlag(t *testing.T) {
	tests := map[string]LabFlag{
		"H":        FlagHigh,
		" high ":   FlagHigh,
		"l":        FlagLow,
		"Abnormal": FlagAbnormal,
		"N":        FlagNormal,
		"":         FlagNormal,
		"??":       FlagNormal,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLabFlag(in), in)
	}
}

func TestNormalizeResults(t *testing.T) {
	got := NormalizeResults([]LabResultRow{
		{TestName: " WBC ", Result: "12.1 ", Flag: "high"},
		{TestName: "  ", Result: "dropped"},
		{TestName: "Hb", Result: "13", Flag: "x"},
	})
	assert.Equal(t, []LabResultRow{
		{TestName: "WBC", Result: "12.1", Flag: FlagHigh},
		{TestName: "Hb", Result: "13", Flag: FlagNormal},
	}, got)
	assert.True(t, got[0].Flag.OutOfRange())
	assert.False(t, got[1].Flag.OutOfRange())
}

package repo

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Caller identifies the authenticated staff member performing an operation.
type Caller struct {
	UserID uuid.UUID
	Role   StaffRole
}

// Vitals is the set of optional readings captured at intake.
type Vitals struct {
	BloodPressure   string   `json:"blood_pressure,omitempty"`
	HeartRate       *int     `json:"heart_rate,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	Weight          *float64 `json:"weight,omitempty"`
	Height          *float64 `json:"height,omitempty"`
	SpO2            *int     `json:"spo2,omitempty"`
	RespiratoryRate *int     `json:"respiratory_rate,omitempty"`
	BloodSugar      *float64 `json:"blood_sugar,omitempty"`
}

type Patient struct {
	ID             uuid.UUID  `json:"id"`
	FullName       string     `json:"full_name"`
	Phone          string     `json:"phone,omitempty"`
	NationalID     string     `json:"-"` // AES-GCM ciphertext
	NationalIDHash string     `json:"-"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	Address        string     `json:"address,omitempty"`
	MedicalHistory string     `json:"medical_history,omitempty"`
	Allergies      string     `json:"allergies,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Staff struct {
	ID           uuid.UUID `json:"id"`
	FullName     string    `json:"full_name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         StaffRole `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type Visit struct {
	ID            uuid.UUID     `json:"id"`
	PatientID     uuid.UUID     `json:"patient_id"`
	DoctorID      uuid.UUID     `json:"doctor_id"`
	VisitDate     time.Time     `json:"visit_date"`
	Vitals        Vitals        `json:"vitals"`
	Symptoms      string        `json:"symptoms,omitempty"`
	Status        VisitStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Fee           int64         `json:"fee"`
	QueueNumber   int           `json:"queue_number"`
	DiagnosisID   *uuid.UUID    `json:"diagnosis_id,omitempty"`
	CreatedBy     uuid.UUID     `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// Read-time projections, filled by joins on fetch.
	PatientName string     `json:"patient_name,omitempty"`
	DoctorName  string     `json:"doctor_name,omitempty"`
	Diagnosis   *Diagnosis `json:"diagnosis,omitempty"`
}

// IsOpen reports whether the visit still occupies the patient's slot in the
// local queue.
func (v *Visit) IsOpen() bool {
	return IsOpenVisitStatus(v.Status)
}

type LabResultRow struct {
	TestName    string  `json:"test_name"`
	Result      string  `json:"result"`
	Unit        string  `json:"unit,omitempty"`
	NormalRange string  `json:"normal_range,omitempty"`
	Flag        LabFlag `json:"flag"`
}

type LabRequest struct {
	ID              uuid.UUID        `json:"id"`
	VisitID         uuid.UUID        `json:"visit_id"`
	PatientID       uuid.UUID        `json:"patient_id"`
	DoctorID        uuid.UUID        `json:"doctor_id"`
	TestName        string           `json:"test_name"`
	Price           int64            `json:"price"`
	Status          LabRequestStatus `json:"status"`
	TechnicianNotes string           `json:"technician_notes,omitempty"`
	Results         []LabResultRow   `json:"results,omitempty"`
	ResultFiles     []string         `json:"result_files,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`

	PatientName string `json:"patient_name,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
}

// Payment is an append-only receipt line.
type Payment struct {
	ID          uuid.UUID   `json:"id"`
	PatientID   *uuid.UUID  `json:"patient_id,omitempty"`
	CashierID   uuid.UUID   `json:"cashier_id"`
	Amount      int64       `json:"amount"`
	Type        PaymentType `json:"payment_type"`
	ReferenceID uuid.UUID   `json:"reference_id"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`

	PatientName string `json:"patient_name,omitempty"`
}

type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// AIAnalysis is the structured result of an assisted diagnosis run.
type AIAnalysis struct {
	Diagnosis            string       `json:"diagnosis"`
	Reasoning            string       `json:"reasoning,omitempty"`
	SuggestedMedications []Medication `json:"suggested_medications,omitempty"`
	Confidence           float64      `json:"confidence"`
	LabAnalysis          string       `json:"lab_analysis,omitempty"`
	TraditionalMedicine  string       `json:"traditional_medicine,omitempty"`
}

// ClampConfidence bounds a model-reported confidence to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c != c || c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// Normalize clamps the confidence and drops unnamed medications.
func (a *AIAnalysis) Normalize() {
	a.Confidence = ClampConfidence(a.Confidence)
	a.SuggestedMedications = NamedMedications(a.SuggestedMedications)
}

// NamedMedications keeps the medications that have a name.
func NamedMedications(in []Medication) []Medication {
	out := make([]Medication, 0, len(in))
	for _, m := range in {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name != "" {
			out = append(out, m)
		}
	}
	return out
}

type Diagnosis struct {
	ID              uuid.UUID   `json:"id"`
	VisitID         uuid.UUID   `json:"visit_id"`
	FinalDiagnosis  string      `json:"final_diagnosis"`
	AIAnalysis      *AIAnalysis `json:"ai_analysis,omitempty"`
	ConfidenceScore float64     `json:"confidence_score"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type Prescription struct {
	ID          uuid.UUID    `json:"id"`
	VisitID     uuid.UUID    `json:"visit_id"`
	PatientID   uuid.UUID    `json:"patient_id"`
	DoctorID    uuid.UUID    `json:"doctor_id"`
	Medications []Medication `json:"medications"`
	Diagnosis   string       `json:"diagnosis,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Images      []string     `json:"images,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

type PrescriptionTemplate struct {
	ID          uuid.UUID    `json:"id"`
	DoctorID    uuid.UUID    `json:"doctor_id"`
	Name        string       `json:"name"`
	Diagnosis   string       `json:"diagnosis,omitempty"`
	Medications []Medication `json:"medications"`
	Notes       string       `json:"notes,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/pkg/ai"
)

// Model is the completion backend. *ai.Client implements it.
type Model interface {
	Enabled() bool
	Chat(ctx context.Context, p ai.Prompt) (string, error)
	ChatJSON(ctx context.Context, p ai.Prompt, out any) error
}

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type Reference struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type DiagnoseRequest struct {
	Patient    *repo.Patient
	Symptoms   string
	Vitals     repo.Vitals
	LabResults []repo.LabResultRow
	Images     []ai.Image
	References []Reference
	// WebSearch lets the model draw on current published guidance instead of
	// the supplied references only.
	WebSearch bool
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	Enabled() bool
	Diagnose(ctx context.Context, req DiagnoseRequest) (*repo.AIAnalysis, error)
	ExtractText(ctx context.Context, img ai.Image) (string, error)
	ExtractLabResults(ctx context.Context, img ai.Image) ([]repo.LabResultRow, error)
	AskLibrary(ctx context.Context, question string, refs []Reference) (string, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type assistantService struct {
	model Model
	clock func() time.Time
	log   *slog.Logger
}

func New(model Model, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &assistantService{model: model, clock: time.Now, log: log}
}

func (s *assistantService) Enabled() bool {
	return s.model != nil && s.model.Enabled()
}

func (s *assistantService) Diagnose(ctx context.Context, req DiagnoseRequest) (*repo.AIAnalysis, error) {
	if strings.TrimSpace(req.Symptoms) == "" && len(req.Images) == 0 {
		return nil, ErrEmptySymptoms
	}
	if !s.Enabled() {
		return nil, ErrUnavailable
	}

	var out repo.AIAnalysis
	err := s.model.ChatJSON(ctx, ai.Prompt{
		System: diagnoseSystem,
		Text:   s.clinicalContext(req),
		Images: req.Images,
	}, &out)
	if err != nil {
		return nil, s.fail(ctx, "diagnose", err)
	}
	if strings.TrimSpace(out.Diagnosis) == "" {
		return nil, ErrBadAnswer
	}

	// Some models answer in percent.
	if out.Confidence > 1 && out.Confidence <= 100 {
		out.Confidence /= 100
	}
	out.Normalize()
	return &out, nil
}

func (s *assistantService) ExtractText(ctx context.Context, img ai.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", ErrNoImage
	}
	if !s.Enabled() {
		return "", ErrUnavailable
	}
	text, err := s.model.Chat(ctx, ai.Prompt{System: ocrSystem, Text: "Transcribe this document.", Images: []ai.Image{img}})
	if err != nil {
		return "", s.fail(ctx, "ocr", err)
	}
	return strings.TrimSpace(ai.StripFences(text)), nil
}

func (s *assistantService) ExtractLabResults(ctx context.Context, img ai.Image) ([]repo.LabResultRow, error) {
	if len(img.Data) == 0 {
		return nil, ErrNoImage
	}
	if !s.Enabled() {
		return nil, ErrUnavailable
	}
	var out struct {
		Results []repo.LabResultRow `json:"results"`
	}
	err := s.model.ChatJSON(ctx, ai.Prompt{System: labSystem, Text: "Extract the results table.", Images: []ai.Image{img}}, &out)
	if err != nil {
		return nil, s.fail(ctx, "lab extract", err)
	}
	return repo.NormalizeResults(out.Results), nil
}

func (s *assistantService) AskLibrary(ctx context.Context, question string, refs []Reference) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if !s.Enabled() {
		return "", ErrUnavailable
	}

	var b strings.Builder
	writeReferences(&b, refs)
	b.WriteString("Question: ")
	b.WriteString(question)

	answer, err := s.model.Chat(ctx, ai.Prompt{System: librarySystem, Text: b.String()})
	if err != nil {
		return "", s.fail(ctx, "library", err)
	}
	return strings.TrimSpace(answer), nil
}

func (s *assistantService) fail(ctx context.Context, op string, err error) error {
	if errors.Is(err, ai.ErrDisabled) {
		return ErrUnavailable
	}
	s.log.WarnContext(ctx, "assistant: call failed", "op", op, "err", err)
	if errors.Is(err, ai.ErrEmptyResponse) {
		return ErrBadAnswer
	}
	return fmt.Errorf("assistant %s: %w", op, err)
}

// ---------------------------------------------------------------------------
// Prompt building
// ---------------------------------------------------------------------------

func (s *assistantService) clinicalContext(req DiagnoseRequest) string {
	var b strings.Builder

	if p := req.Patient; p != nil {
		b.WriteString("Patient:\n")
		if p.Gender != "" {
			fmt.Fprintf(&b, "- gender: %s\n", p.Gender)
		}
		if p.BirthDate != nil {
			fmt.Fprintf(&b, "- age: %d\n", age(*p.BirthDate, s.clock()))
		}
		if p.MedicalHistory != "" {
			fmt.Fprintf(&b, "- history: %s\n", p.MedicalHistory)
		}
		if p.Allergies != "" {
			fmt.Fprintf(&b, "- allergies: %s\n", p.Allergies)
		}
	}

	if vitals := formatVitals(req.Vitals); vitals != "" {
		b.WriteString("Vitals:\n")
		b.WriteString(vitals)
	}

	if sym := strings.TrimSpace(req.Symptoms); sym != "" {
		b.WriteString("Symptoms:\n")
		b.WriteString(sym)
		b.WriteString("\n")
	}

	if len(req.LabResults) > 0 {
		b.WriteString("Lab results:\n")
		for _, r := range req.LabResults {
			fmt.Fprintf(&b, "- %s: %s %s (normal %s) [%s]\n", r.TestName, r.Result, r.Unit, r.NormalRange, r.Flag)
		}
	}

	writeReferences(&b, req.References)

	if req.WebSearch {
		b.WriteString("You may draw on current published clinical guidelines.\n")
	} else if len(req.References) > 0 {
		b.WriteString("Base your answer on the references above.\n")
	}
	return b.String()
}

func writeReferences(b *strings.Builder, refs []Reference) {
	if len(refs) == 0 {
		return
	}
	b.WriteString("References:\n")
	for i, r := range refs {
		fmt.Fprintf(b, "[%d] %s\n%s\n\n", i+1, r.Title, strings.TrimSpace(r.Text))
	}
}

func formatVitals(v repo.Vitals) string {
	var b strings.Builder
	line := func(name, value string) {
		b.WriteString("- " + name + ": " + value + "\n")
	}
	if v.BloodPressure != "" {
		line("blood pressure", v.BloodPressure)
	}
	if v.HeartRate != nil {
		line("heart rate", strconv.Itoa(*v.HeartRate))
	}
	if v.Temperature != nil {
		line("temperature", strconv.FormatFloat(*v.Temperature, 'f', -1, 64))
	}
	if v.SpO2 != nil {
		line("SpO2", strconv.Itoa(*v.SpO2))
	}
	if v.RespiratoryRate != nil {
		line("respiratory rate", strconv.Itoa(*v.RespiratoryRate))
	}
	if v.BloodSugar != nil {
		line("blood sugar", strconv.FormatFloat(*v.BloodSugar, 'f', -1, 64))
	}
	if v.Weight != nil {
		line("weight", strconv.FormatFloat(*v.Weight, 'f', -1, 64))
	}
	if v.Height != nil {
		line("height", strconv.FormatFloat(*v.Height, 'f', -1, 64))
	}
	return b.String()
}

func age(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.YearDay() < birth.YearDay() {
		years--
	}
	return years
}

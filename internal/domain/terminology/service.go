package terminology

import (
	"context"
	"fmt"

	"github.com/ehr/namaste/internal/platform/fhir"
	"github.com/ehr/namaste/pkg/fhirmodels"
	"github.com/ehr/namaste/pkg/pagination"
)

// Service provides term search and FHIR problem list generation.
type Service struct {
	repo Repository
}

// NewService creates a new terminology service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Search finds terms whose NAMASTE name contains query. An empty query matches
// nothing rather than everything; whitespace is searched for like any text.
func (s *Service) Search(ctx context.Context, query string, page pagination.Params) ([]*Term, int, error) {
	if query == "" {
		return []*Term{}, 0, nil
	}
	results, total, err := s.repo.Search(ctx, query, page)
	if err != nil {
		return nil, 0, fmt.Errorf("search terms: %w", err)
	}
	if results == nil {
		results = []*Term{}
	}
	return results, total, nil
}

// Lookup returns the term stored under an exact NAMASTE name.
func (s *Service) Lookup(ctx context.Context, name string) (*Term, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrInvalidTerm)
	}
	return s.repo.GetByName(ctx, name)
}

// Count returns the number of stored terms.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Condition IDs referenced from the problem list entries.
const (
	conditionNamasteID = "condition-namaste"
	conditionICD11ID   = "condition-icd11"
)

// GenerateFHIR builds a problem list that records the term twice: once coded
// in NAMASTE and once dual-coded in ICD-11 TM2 and biomedicine.
func (s *Service) GenerateFHIR(_ context.Context, t *Term) (*fhir.List, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return BuildProblemList(t), nil
}

// BuildProblemList renders a validated term as a FHIR List with contained Conditions.
func BuildProblemList(t *Term) *fhir.List {
	patient := &fhir.Reference{Reference: fhirmodels.ExamplePatientRef}

	return &fhir.List{
		ResourceType: fhir.ResourceList,
		ID:           fhirmodels.ProblemListID,
		Status:       fhirmodels.ListStatusCurrent,
		Mode:         fhirmodels.ListModeWorking,
		Title:        fhirmodels.ProblemListTitle,
		Subject: &fhir.Reference{
			Reference: fhirmodels.ExamplePatientRef,
			Display:   fhirmodels.ExamplePatientName,
		},
		Entry: []fhir.ListEntry{
			{Item: fhir.Reference{Reference: "#" + conditionNamasteID, Display: t.NamasteTerm + " (NAMAST-E)"}},
			{Item: fhir.Reference{Reference: "#" + conditionICD11ID, Display: t.BioTerm + " (ICD-11)"}},
		},
		Contained: []fhir.Condition{
			{
				ResourceType: fhir.ResourceCondition,
				ID:           conditionNamasteID,
				Code: &fhir.CodeableConcept{
					Coding: []fhir.Coding{
						{System: fhirmodels.SystemNAMASTE, Code: t.NamasteCode, Display: t.NamasteTerm},
					},
					Text: t.NamasteTerm + " (Ayurveda)",
				},
				Subject: patient,
			},
			{
				ResourceType: fhir.ResourceCondition,
				ID:           conditionICD11ID,
				Code: &fhir.CodeableConcept{
					Coding: []fhir.Coding{
						{System: fhirmodels.SystemICD11TM2, Code: t.TM2Code, Display: t.TM2Term},
						{System: fhirmodels.SystemICD11MMS, Code: t.BioCode, Display: t.BioTerm},
					},
					Text: t.BioTerm + " (ICD-11 TM2 & Biomedicine)",
				},
				Subject: patient,
			},
		},
	}
}

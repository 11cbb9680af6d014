package fhir

// Resource types produced by this service.
const (
	ResourceList             = "List"
	ResourceCondition        = "Condition"
	ResourceOperationOutcome = "OperationOutcome"
)

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Condition is the subset of the R4 Condition resource used for contained problem entries.
type Condition struct {
	ResourceType string           `json:"resourceType"`
	ID           string           `json:"id"`
	Code         *CodeableConcept `json:"code,omitempty"`
	Subject      *Reference       `json:"subject,omitempty"`
}

// ListEntry is one item of a FHIR List.
type ListEntry struct {
	Item Reference `json:"item"`
}

// List is the subset of the R4 List resource used for problem lists. Field order
// follows the FHIR JSON examples so that pretty-printed output reads naturally.
type List struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	Mode         string      `json:"mode"`
	Title        string      `json:"title,omitempty"`
	Subject      *Reference  `json:"subject,omitempty"`
	Entry        []ListEntry `json:"entry,omitempty"`
	Contained    []Condition `json:"contained,omitempty"`
}

// OperationOutcome represents a FHIR OperationOutcome for errors.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: ResourceOperationOutcome,
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome("error", "processing", diagnostics)
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome("error", "not-found", resourceType+"/"+id+" not found")
}

// RequiredOutcome reports missing required elements, one issue per element.
func RequiredOutcome(fields []string) *OperationOutcome {
	out := &OperationOutcome{ResourceType: ResourceOperationOutcome}
	for _, f := range fields {
		out.Issue = append(out.Issue, OperationOutcomeIssue{
			Severity:    "error",
			Code:        "required",
			Diagnostics: f + " is required",
			Expression:  []string{f},
		})
	}
	return out
}

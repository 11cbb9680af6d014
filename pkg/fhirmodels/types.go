package fhirmodels

// Common FHIR value set constants used across the application.

// ListStatus values per FHIR R4.
const (
	ListStatusCurrent        = "current"
	ListStatusRetired        = "retired"
	ListStatusEnteredInError = "entered-in-error"
)

// ListMode values per FHIR R4.
const (
	ListModeWorking  = "working"
	ListModeSnapshot = "snapshot"
	ListModeChanges  = "changes"
)

// Code system URIs for the three parallel naming systems.
const (
	SystemNAMASTE  = "http://terminology.moh.gov.in/CodeSystem/namaste"
	SystemICD11TM2 = "http://id.who.int/icd11/tm2"
	SystemICD11MMS = "http://id.who.int/icd11/mms"
)

// Problem list fixtures used by generated resources.
const (
	ProblemListID      = "example-problem-list"
	ProblemListTitle   = "Patient Problem List"
	ExamplePatientRef  = "Patient/example"
	ExamplePatientName = "Example Patient"
)

package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Term is one search result exactly as the server sent it. Raw is posted
// back unchanged for FHIR generation; the three display names are read from
// it leniently and never cause a result to be rejected.
type Term struct {
	Raw json.RawMessage

	NamasteTerm string
	TM2Term     string
	BioTerm     string
}

// NewTerm builds a term from a JSON object.
func NewTerm(raw []byte) (Term, error) {
	var t Term
	if err := t.UnmarshalJSON(raw); err != nil {
		return Term{}, err
	}
	return t, nil
}

func (t *Term) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("term: %w", err)
	}
	if fields == nil {
		return errors.New("term: expected a JSON object, got null")
	}

	t.Raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	t.NamasteTerm = displayText(fields["namaste_term"])
	t.TM2Term = displayText(fields["tm2_term"])
	t.BioTerm = displayText(fields["bio_term"])
	return nil
}

// MarshalJSON returns Raw verbatim.
func (t Term) MarshalJSON() ([]byte, error) {
	if len(t.Raw) == 0 {
		return nil, errors.New("term: no JSON object to send")
	}
	return t.Raw, nil
}

// Same reports whether o is the same server object as t.
func (t Term) Same(o Term) bool {
	if len(t.Raw) > 0 || len(o.Raw) > 0 {
		return bytes.Equal(t.Raw, o.Raw)
	}
	return t.NamasteTerm == o.NamasteTerm && t.TM2Term == o.TM2Term && t.BioTerm == o.BioTerm
}

// displayText renders any JSON value as text: strings unquoted, null or a
// missing key as "", anything else as its compact JSON.
func displayText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	if buf.String() == "null" {
		return ""
	}
	return buf.String()
}

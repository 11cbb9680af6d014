package terminology

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// JSON keys of the six mapped fields.
const (
	KeyNamasteTerm = "namaste_term"
	KeyNamasteCode = "namaste_code"
	KeyTM2Code     = "tm2_code"
	KeyTM2Term     = "tm2_term"
	KeyBioCode     = "bio_code"
	KeyBioTerm     = "bio_term"
)

// RequiredKeys lists the fields a term needs before a FHIR resource can be generated.
var RequiredKeys = []string{KeyNamasteTerm, KeyNamasteCode, KeyTM2Code, KeyTM2Term, KeyBioCode, KeyBioTerm}

var (
	ErrNotFound    = errors.New("term not found")
	ErrInvalidTerm = errors.New("invalid term")
)

// ValidationError lists the required fields a term is missing.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidTerm }

// Term is one NAMASTE concept with its ICD-11 TM2 and biomedicine counterparts.
// Keys other than the six mapped fields are kept in Extra and survive a
// decode/encode cycle untouched.
type Term struct {
	NamasteTerm string
	NamasteCode string
	TM2Code     string
	TM2Term     string
	BioCode     string
	BioTerm     string
	Extra       map[string]json.RawMessage
}

func (t *Term) fields() []struct {
	key string
	val *string
} {
	return []struct {
		key string
		val *string
	}{
		{KeyNamasteTerm, &t.NamasteTerm},
		{KeyNamasteCode, &t.NamasteCode},
		{KeyTM2Code, &t.TM2Code},
		{KeyTM2Term, &t.TM2Term},
		{KeyBioCode, &t.BioCode},
		{KeyBioTerm, &t.BioTerm},
	}
}

// Missing returns the required keys whose values are blank.
func (t *Term) Missing() []string {
	var missing []string
	for _, f := range t.fields() {
		if strings.TrimSpace(*f.val) == "" {
			missing = append(missing, f.key)
		}
	}
	return missing
}

// Validate returns a *ValidationError when any required field is blank.
func (t *Term) Validate() error {
	if missing := t.Missing(); len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Set assigns a mapped field by key, or stores the value in Extra for unknown keys.
func (t *Term) Set(key, value string) {
	for _, f := range t.fields() {
		if f.key == key {
			*f.val = value
			return
		}
	}
	raw := encodeString(value)
	if t.Extra == nil {
		t.Extra = make(map[string]json.RawMessage)
	}
	t.Extra[key] = raw
}

// EntryJSON encodes the term without its NAMASTE name, which is how the term
// file stores each value under its name key. Mapped fields come first in their
// canonical order, followed by extra keys sorted by name.
func (t *Term) EntryJSON() ([]byte, error) {
	return t.encode(false)
}

func (t Term) MarshalJSON() ([]byte, error) {
	return t.encode(true)
}

func (t *Term) encode(withName bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, val json.RawMessage) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(encodeString(key))
		buf.WriteByte(':')
		buf.Write(val)
	}

	for _, f := range t.fields() {
		if f.key == KeyNamasteTerm && !withName {
			continue
		}
		write(f.key, encodeString(*f.val))
	}

	extra := make([]string, 0, len(t.Extra))
	for k := range t.Extra {
		if !isMappedKey(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		var compact bytes.Buffer
		if err := json.Compact(&compact, t.Extra[k]); err != nil {
			return nil, fmt.Errorf("extra field %s: %w", k, err)
		}
		write(k, compact.Bytes())
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func isMappedKey(key string) bool {
	for _, k := range RequiredKeys {
		if k == key {
			return true
		}
	}
	return false
}

func encodeString(s string) json.RawMessage {
	b, _ := encodeNoEscape(s)
	return b
}

// encodeNoEscape marshals v without HTML-escaping <, > and &.
func encodeNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (t *Term) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("term must be a JSON object")
	}
	*t = Term{}
	for _, f := range t.fields() {
		raw, ok := obj[f.key]
		if !ok {
			continue
		}
		s, err := scalarString(raw)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.key, err)
		}
		*f.val = s
		delete(obj, f.key)
	}
	if len(obj) > 0 {
		t.Extra = obj
	}
	return nil
}

// TermFromEntry builds a term from a term-file value stored under name.
func TermFromEntry(name string, entry json.RawMessage) (*Term, error) {
	var t Term
	if err := json.Unmarshal(entry, &t); err != nil {
		return nil, fmt.Errorf("entry %q: %w", name, err)
	}
	t.NamasteTerm = name
	return &t, nil
}

// scalarString accepts JSON strings, numbers and null for the mapped fields.
// Codes exported from spreadsheets occasionally arrive as bare numbers.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
	return "", fmt.Errorf("expected string, got %s", raw)
}

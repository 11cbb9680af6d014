package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ehr/namaste/pkg/pagination"
)

// memoryRepo serves terms from an immutable in-memory slice. It is built once
// at startup and never mutated, so reads need no locking.
type memoryRepo struct {
	terms  []*Term
	byName map[string]int
	lower  []string
}

// NewMemoryRepo returns a repository over terms. Later duplicates of a NAMASTE
// name replace earlier ones but keep the earlier position.
func NewMemoryRepo(terms []*Term) Repository {
	r := &memoryRepo{byName: make(map[string]int, len(terms))}
	for _, t := range terms {
		if i, ok := r.byName[t.NamasteTerm]; ok {
			r.terms[i] = t
			continue
		}
		r.byName[t.NamasteTerm] = len(r.terms)
		r.terms = append(r.terms, t)
		r.lower = append(r.lower, strings.ToLower(t.NamasteTerm))
	}
	return r
}

// NewFileRepo loads the JSON term file at path.
func NewFileRepo(path string) (Repository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open term file: %w", err)
	}
	defer f.Close()

	terms, err := DecodeTermFile(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return NewMemoryRepo(terms), nil
}

// DecodeTermFile reads a JSON object keyed by NAMASTE term, preserving key order.
func DecodeTermFile(r io.Reader) ([]*Term, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read term file: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("term file must be a JSON object")
	}

	var terms []*Term
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read term name: %w", err)
		}
		name, _ := tok.(string)

		var entry json.RawMessage
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("read entry %q: %w", name, err)
		}
		t, err := TermFromEntry(name, entry)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read term file: %w", err)
	}
	return terms, nil
}

func (r *memoryRepo) Search(_ context.Context, query string, page pagination.Params) ([]*Term, int, error) {
	q := strings.ToLower(query)
	var matches []*Term
	for i, name := range r.lower {
		if strings.Contains(name, q) {
			matches = append(matches, r.terms[i])
		}
	}
	start, end := page.Bounds(len(matches))
	return matches[start:end], len(matches), nil
}

func (r *memoryRepo) GetByName(_ context.Context, name string) (*Term, error) {
	i, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return r.terms[i], nil
}

func (r *memoryRepo) Count(_ context.Context) (int, error) {
	return len(r.terms), nil
}

// Package ingest converts the NAMASTE to ICD-11 mapping spreadsheet into the
// term file served by the terminology server, or loads it into Postgres.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/namaste/internal/domain/terminology"
)

// ErrMissingColumns is returned when the CSV header lacks a mapped column.
var ErrMissingColumns = errors.New("mapping csv is missing required columns")

// Report summarizes one ingest run.
type Report struct {
	Rows       int
	Terms      int
	Duplicates int
	Skipped    int
}

// ReadMappingCSV parses a header-driven mapping CSV. All six mapped columns
// must be present; any other columns are carried along as extra fields. A
// repeated NAMASTE term replaces the earlier row but keeps its position.
// Rows without a NAMASTE term are skipped.
func ReadMappingCSV(r io.Reader) ([]*terminology.Term, Report, error) {
	var rep Report

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, rep, fmt.Errorf("%w: empty file", ErrMissingColumns)
		}
		return nil, rep, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		header[i] = h
	}

	var missing []string
	for _, key := range terminology.RequiredKeys {
		if indexOf(header, key) < 0 {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, rep, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	nameCol := indexOf(header, terminology.KeyNamasteTerm)

	var terms []*terminology.Term
	pos := make(map[string]int)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rep, fmt.Errorf("read row %d: %w", rep.Rows+2, err)
		}
		rep.Rows++

		name := ""
		if nameCol < len(record) {
			name = strings.TrimSpace(record[nameCol])
		}
		if name == "" {
			rep.Skipped++
			continue
		}

		t := &terminology.Term{}
		for i, key := range header {
			if key == "" || i >= len(record) {
				continue
			}
			t.Set(key, strings.TrimSpace(record[i]))
		}
		t.NamasteTerm = name

		if i, ok := pos[name]; ok {
			terms[i] = t
			rep.Duplicates++
			continue
		}
		pos[name] = len(terms)
		terms = append(terms, t)
	}

	rep.Terms = len(terms)
	return terms, rep, nil
}

func indexOf(header []string, key string) int {
	for i, h := range header {
		if h == key {
			return i
		}
	}
	return -1
}

// WriteTermFile writes terms as one JSON object keyed by NAMASTE term, in
// order, indented by two spaces.
func WriteTermFile(w io.Writer, terms []*terminology.Term) error {
	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, t := range terms {
		if i > 0 {
			compact.WriteByte(',')
		}
		name, err := marshalName(t.NamasteTerm)
		if err != nil {
			return err
		}
		entry, err := t.EntryJSON()
		if err != nil {
			return fmt.Errorf("encode %q: %w", t.NamasteTerm, err)
		}
		compact.Write(name)
		compact.WriteByte(':')
		compact.Write(entry)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("indent term file: %w", err)
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}

// marshalName encodes a term name as a JSON string, leaving <, > and & as written.
func marshalName(name string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(name); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Options configures Run.
type Options struct {
	CSVPath string
	OutPath string
	// Store, when set, receives the terms instead of (or in addition to) the file.
	Store terminology.Writer
}

// Run reads the mapping CSV and writes the term file and/or the store.
func Run(ctx context.Context, opts Options, logger zerolog.Logger) (Report, error) {
	logger.Info().Str("csv", opts.CSVPath).Msg("reading mapping file")

	f, err := os.Open(opts.CSVPath)
	if err != nil {
		return Report{}, fmt.Errorf("open mapping csv: %w", err)
	}
	defer f.Close()

	terms, rep, err := ReadMappingCSV(f)
	if err != nil {
		return rep, err
	}
	if rep.Skipped > 0 {
		logger.Warn().Int("rows", rep.Skipped).Msg("skipped rows without namaste_term")
	}
	if rep.Duplicates > 0 {
		logger.Warn().Int("rows", rep.Duplicates).Msg("duplicate namaste_term rows overwrote earlier ones")
	}

	if opts.OutPath != "" {
		if err := writeFileAtomic(opts.OutPath, terms); err != nil {
			return rep, err
		}
		logger.Info().Str("out", opts.OutPath).Int("terms", rep.Terms).Msg("term file written")
	}

	if opts.Store != nil {
		n, err := opts.Store.Upsert(ctx, terms)
		if err != nil {
			return rep, fmt.Errorf("load terms into store: %w", err)
		}
		logger.Info().Int("terms", n).Msg("terms loaded into database")
	}

	return rep, nil
}

// writeFileAtomic writes to a temp file in the target directory and renames it
// over path, so a running server never reads a half-written file.
func writeFileAtomic(path string, terms []*terminology.Term) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".terminology-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteTermFile(tmp, terms); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

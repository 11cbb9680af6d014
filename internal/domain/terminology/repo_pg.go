package terminology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/namaste/pkg/pagination"
)

const termColumns = `namaste_term, namaste_code, tm2_code, tm2_term, bio_code, bio_term, COALESCE(extra, '{}'::jsonb)`

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Postgres-backed store over the namaste_terms table.
func NewRepoPG(pool *pgxpool.Pool) Store { return &repoPG{pool: pool} }

// likePattern escapes LIKE metacharacters so the query matches as a literal substring.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

func (r *repoPG) Search(ctx context.Context, query string, page pagination.Params) ([]*Term, int, error) {
	pattern := likePattern(query)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM namaste_terms WHERE namaste_term ILIKE $1 ESCAPE '\'`, pattern).
		Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("namaste count: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+termColumns+`
		 FROM namaste_terms
		 WHERE namaste_term ILIKE $1 ESCAPE '\'
		 ORDER BY ordinal `+page.SQL(), pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("namaste search: %w", err)
	}
	defer rows.Close()

	var results []*Term
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, t)
	}
	return results, total, rows.Err()
}

func (r *repoPG) GetByName(ctx context.Context, name string) (*Term, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+termColumns+` FROM namaste_terms WHERE namaste_term = $1`, name)
	t, err := scanTerm(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("namaste get: %w", err)
	}
	return t, nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM namaste_terms`).Scan(&n); err != nil {
		return 0, fmt.Errorf("namaste count: %w", err)
	}
	return n, nil
}

// Upsert writes all terms in one transaction. Existing rows keep their ordinal
// so search order stays stable across re-ingests.
func (r *repoPG) Upsert(ctx context.Context, terms []*Term) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range terms {
		extra := []byte("{}")
		if len(t.Extra) > 0 {
			if extra, err = json.Marshal(t.Extra); err != nil {
				return 0, fmt.Errorf("encode extra for %q: %w", t.NamasteTerm, err)
			}
		}
		batch.Queue(
			`INSERT INTO namaste_terms (namaste_term, namaste_code, tm2_code, tm2_term, bio_code, bio_term, extra)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (namaste_term) DO UPDATE SET
			   namaste_code = EXCLUDED.namaste_code,
			   tm2_code     = EXCLUDED.tm2_code,
			   tm2_term     = EXCLUDED.tm2_term,
			   bio_code     = EXCLUDED.bio_code,
			   bio_term     = EXCLUDED.bio_term,
			   extra        = EXCLUDED.extra,
			   updated_at   = NOW()`,
			t.NamasteTerm, t.NamasteCode, t.TM2Code, t.TM2Term, t.BioCode, t.BioTerm, extra)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range terms {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("upsert %q: %w", terms[i].NamasteTerm, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(terms), nil
}

func scanTerm(row pgx.Row) (*Term, error) {
	var t Term
	var extra []byte
	if err := row.Scan(&t.NamasteTerm, &t.NamasteCode, &t.TM2Code, &t.TM2Term, &t.BioCode, &t.BioTerm, &extra); err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(extra, &m); err != nil {
			return nil, fmt.Errorf("decode extra for %q: %w", t.NamasteTerm, err)
		}
		if len(m) > 0 {
			t.Extra = m
		}
	}
	return &t, nil
}

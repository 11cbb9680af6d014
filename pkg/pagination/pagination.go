package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	// DefaultLimit of zero means "return everything", which is what search clients expect.
	DefaultLimit = 0
	MaxLimit     = 1000
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("_count"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("_offset"))
	if offset <= 0 {
		offset, _ = strconv.Atoi(c.QueryParam("offset"))
	}
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Unlimited reports whether no page size was requested.
func (p Params) Unlimited() bool {
	return p.Limit <= 0
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	if p.Unlimited() {
		return fmt.Sprintf("LIMIT ALL OFFSET %d", p.Offset)
	}
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

// Bounds returns the half-open slice window [start, end) for a collection of n items.
func (p Params) Bounds(n int) (start, end int) {
	start = p.Offset
	if start > n {
		start = n
	}
	end = n
	if !p.Unlimited() && start+p.Limit < n {
		end = start + p.Limit
	}
	return start, end
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	if p.Unlimited() {
		return false
	}
	return p.Offset+p.Limit < total
}

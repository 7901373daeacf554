package models

import "strings"

// DefaultPageSize applies when a list request does not specify a limit.
const DefaultPageSize = 20

// MaxPageSize caps the page size a client may request.
const MaxPageSize = 100

// Pagination contains pagination metadata returned in list responses.
// Pages is always derived server-side from Total and Limit.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPagination builds pagination metadata for a result set.
func NewPagination(page, limit, total int) *Pagination {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	return &Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// Range returns the one-based positions of the first and last item on the
// current page, e.g. page=2 limit=10 total=25 yields (11, 20).
func (p *Pagination) Range() (from, to int) {
	if p == nil || p.Total == 0 {
		return 0, 0
	}
	from = (p.Page-1)*p.Limit + 1
	to = p.Page * p.Limit
	if to > p.Total {
		to = p.Total
	}
	if from > p.Total {
		return 0, 0
	}
	return from, to
}

// ListParams carries the search/sort/page portion shared by every
// collection filter. The zero value normalizes to the first page with
// default ordering, which is also the documented "clear filters" state.
type ListParams struct {
	Search    string
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Normalize clamps paging values and whitelists the sort column. Unknown
// sort fields fall back to defaultSort, unknown orders to DESC.
func (p ListParams) Normalize(allowedSorts map[string]string, defaultSort string) ListParams {
	out := p
	out.Search = strings.TrimSpace(p.Search)
	if out.Page < 1 {
		out.Page = 1
	}
	if out.Limit <= 0 || out.Limit > MaxPageSize {
		out.Limit = DefaultPageSize
	}
	column, ok := allowedSorts[out.SortBy]
	if !ok {
		column = defaultSort
	}
	out.SortBy = column
	order := strings.ToUpper(out.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	out.SortOrder = order
	return out
}

// Offset returns the SQL offset for the normalized page.
func (p ListParams) Offset() int {
	page := p.Page
	if page < 1 {
		page = 1
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return (page - 1) * limit
}

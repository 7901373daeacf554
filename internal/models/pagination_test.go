package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaginationComputesPages(t *testing.T) {
	p := NewPagination(1, 10, 25)
	assert.Equal(t, 3, p.Pages)

	p = NewPagination(1, 10, 30)
	assert.Equal(t, 3, p.Pages)

	p = NewPagination(1, 10, 0)
	assert.Equal(t, 0, p.Pages)
}

func TestPaginationRange(t *testing.T) {
	from, to := NewPagination(2, 10, 25).Range()
	assert.Equal(t, 11, from)
	assert.Equal(t, 20, to)

	from, to = NewPagination(3, 10, 25).Range()
	assert.Equal(t, 21, from)
	assert.Equal(t, 25, to)

	from, to = NewPagination(1, 10, 0).Range()
	assert.Equal(t, 0, from)
	assert.Equal(t, 0, to)

	// Beyond the last page there is nothing to show.
	from, to = NewPagination(5, 10, 25).Range()
	assert.Equal(t, 0, from)
	assert.Equal(t, 0, to)
}

func TestListParamsNormalizeDefaults(t *testing.T) {
	allowed := map[string]string{"full_name": "full_name", "created_at": "created_at"}

	p := ListParams{}.Normalize(allowed, "created_at")
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.Limit)
	assert.Equal(t, "created_at", p.SortBy)
	assert.Equal(t, "DESC", p.SortOrder)

	// The zero value is the documented clear-filters state.
	assert.Equal(t, p, ListParams{}.Normalize(allowed, "created_at"))
}

func TestListParamsNormalizeWhitelistsSort(t *testing.T) {
	allowed := map[string]string{"full_name": "a.full_name"}

	p := ListParams{SortBy: "password_hash; DROP TABLE users", SortOrder: "sideways", Limit: 9999}.
		Normalize(allowed, "a.created_at")
	assert.Equal(t, "a.created_at", p.SortBy)
	assert.Equal(t, "DESC", p.SortOrder)
	assert.Equal(t, DefaultPageSize, p.Limit)

	p = ListParams{SortBy: "full_name", SortOrder: "asc", Page: 3, Limit: 50}.
		Normalize(allowed, "a.created_at")
	assert.Equal(t, "a.full_name", p.SortBy)
	assert.Equal(t, "ASC", p.SortOrder)
	assert.Equal(t, 100, p.Offset())
}

package resources

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/acme/petadoption/internal/core/domain"
)

// DefaultPageSize is the search page size when size is absent or invalid.
const DefaultPageSize = 4

// searchParams reads q, sort, direction, page and size. Sort fields outside
// allowed and absent parameters fall back to def.
func searchParams(r *http.Request, allowed map[string]bool, def domain.Order) domain.SearchQuery {
	query := r.URL.Query()

	order := def
	if field := query.Get("sort"); allowed[field] {
		order.Field = field
	}
	if dir := query.Get("direction"); dir != "" {
		order.Direction = domain.ParseSortDirection(dir)
	}

	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 0 {
		page = 0
	}
	size, err := strconv.Atoi(query.Get("size"))
	if err != nil || size <= 0 {
		size = DefaultPageSize
	}

	return domain.SearchQuery{
		Text:  strings.TrimSpace(query.Get("q")),
		Order: order,
		Page:  page,
		Size:  size,
	}
}

// searchResult assembles the page envelope. nextPage links the following
// page of the same query under prefix.
func searchResult[T any](prefix string, q domain.SearchQuery, items []T, total int64) domain.SearchResult[T] {
	if items == nil {
		items = []T{}
	}
	pages := domain.PageCount(total, q.Size)
	res := domain.SearchResult[T]{
		Items:      items,
		Total:      total,
		TotalPages: pages,
		HasMore:    q.Page < pages-1,
	}
	if res.HasMore {
		res.NextPage = fmt.Sprintf("%s/search?q=%s&page=%d&size=%d",
			prefix, url.QueryEscape(q.Text), q.Page+1, q.Size)
	}
	return res
}

package sqldb

import (
	"strings"

	"github.com/acme/petadoption/internal/core/domain"
)

// columnMap maps entity JSON field names to column names.
type columnMap map[string]string

// orderBy renders an ORDER BY clause for order. Unknown fields sort by id.
// Ties are broken by id so pages are stable.
func (c columnMap) orderBy(order domain.Order) string {
	col, ok := c[order.Field]
	if !ok {
		col = "id"
	}
	dir := "ASC"
	if order.Direction == domain.SortDesc {
		dir = "DESC"
	}
	if col == "id" {
		return " ORDER BY id " + dir
	}
	return " ORDER BY " + col + " " + dir + ", id ASC"
}

// textFilter builds a case-insensitive substring match over columns.
// An empty text matches everything.
func textFilter(text string, columns ...string) (string, []any) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	pattern := "%" + strings.ToLower(text) + "%"
	clauses := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		clauses[i] = "LOWER(" + col + ") LIKE ?"
		args[i] = pattern
	}
	return " WHERE " + strings.Join(clauses, " OR "), args
}

// page appends LIMIT/OFFSET arguments for q.
func page(q domain.SearchQuery, args []any) (string, []any) {
	if q.Size <= 0 {
		return "", args
	}
	return " LIMIT ? OFFSET ?", append(args, q.Size, q.Offset())
}

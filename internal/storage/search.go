package storage

import (
	"strings"

	"github.com/hirot01/excel-db-app/internal/storage/entity"
)

// matcher is a case-insensitive substring filter over name and category.
type matcher struct {
	query string
}

func newMatcher(query string) matcher {
	return matcher{query: strings.ToLower(strings.TrimSpace(query))}
}

func (m matcher) all() bool {
	return m.query == ""
}

func (m matcher) match(r *entity.Record) bool {
	return strings.Contains(strings.ToLower(r.Name), m.query) ||
		strings.Contains(strings.ToLower(r.Category), m.query)
}

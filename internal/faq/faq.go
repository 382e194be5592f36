package faq

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// MaxResults caps how many entries a search returns.
const MaxResults = 3

// Entry is one curated question and answer.
type Entry struct {
	ID       uuid.UUID `json:"id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Category *string   `json:"category,omitempty"`
	Order    int       `json:"order"`
	Active   bool      `json:"-"`
}

// Repository searches active entries.
type Repository interface {
	Search(ctx context.Context, keywords []string, category string, limit int) ([]Entry, error)
}

// Keywords splits a free-text query into lowercase terms worth matching.
// Short words are dropped unless the query has nothing else.
func Keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r > 127)
	})
	var out []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len([]rune(f)) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		if q := strings.TrimSpace(strings.ToLower(query)); q != "" {
			out = []string{q}
		}
	}
	return out
}

package verify

import (
	"slices"
	"strings"

	"github.com/ajramos/keycheck/internal/catalog"
)

// Filter selects the definitions a run checks. Empty criteria match
// everything; non-empty criteria must all match.
type Filter struct {
	Categories []catalog.Category
	// Contexts match case-insensitively
	Contexts []string
	// IDs match after normalisation ("Cmd+B@Any" selects cmd+b@any)
	IDs []string
	// IDPrefix matches the start of the definition id
	IDPrefix string
}

// IsZero reports whether f matches everything
func (f Filter) IsZero() bool {
	return len(f.Categories) == 0 && len(f.Contexts) == 0 && len(f.IDs) == 0 && f.IDPrefix == ""
}

// Match reports whether def is eligible
func (f Filter) Match(def catalog.Definition) bool {
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, def.Category()) {
		return false
	}
	if len(f.Contexts) > 0 && !slices.ContainsFunc(f.Contexts, func(c string) bool {
		return strings.EqualFold(strings.TrimSpace(c), def.Context())
	}) {
		return false
	}
	if len(f.IDs) > 0 && !slices.ContainsFunc(f.IDs, func(id string) bool {
		return catalog.NormalizeID(id) == def.ID()
	}) {
		return false
	}
	if f.IDPrefix != "" && !strings.HasPrefix(def.ID(), strings.ToLower(f.IDPrefix)) {
		return false
	}
	return true
}

// ParseFilter builds a Filter from comma separated lists, the form used by
// CLI flags and query parameters. Unknown categories are rejected.
func ParseFilter(categories, contexts, ids, idPrefix string) (Filter, error) {
	var f Filter
	for _, c := range splitList(categories) {
		cat, err := catalog.ParseCategory(c)
		if err != nil {
			return Filter{}, err
		}
		f.Categories = append(f.Categories, cat)
	}
	f.Contexts = splitList(contexts)
	f.IDs = splitList(ids)
	f.IDPrefix = strings.TrimSpace(idPrefix)
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

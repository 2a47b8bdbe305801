package catalog

import (
	"fmt"
	"strings"
	"unicode"
)

// Category groups shortcuts by the kind of behavior they trigger
type Category string

const (
	CategoryNavigation Category = "Navigation"
	CategoryCompose    Category = "Compose"
	CategoryView       Category = "View"
	CategoryGlobal     Category = "Global"
)

// Categories lists every category in display order
var Categories = []Category{CategoryNavigation, CategoryCompose, CategoryView, CategoryGlobal}

// ParseCategory accepts a category name in any case
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (want one of Navigation, Compose, View, Global)", s)
}

// Definition is one shortcut of the catalog. It is a value: the catalog hands
// out copies and exposes no way to change a loaded definition.
type Definition struct {
	id             string
	keys           KeyCombination
	category       Category
	context        string
	expectedEffect string
	description    string
	group          string
}

// ID is the catalog-unique identifier
func (d Definition) ID() string { return d.id }

func (d Definition) Keys() KeyCombination { return d.keys }

func (d Definition) Category() Category { return d.category }

func (d Definition) Context() string { return d.context }

func (d Definition) ExpectedEffect() string { return d.expectedEffect }

// Description is the short action name, e.g. "Compose mail"
func (d Definition) Description() string { return d.description }

// Group is an optional display grouping such as "Email Actions"
func (d Definition) Group() string { return d.group }

func (d Definition) String() string { return d.keys.String() + " (" + d.context + ")" }

// Record returns the source record that reproduces d
func (d Definition) Record() Record {
	return Record{
		KeyCombination: d.keys.String(),
		Category:       string(d.category),
		Context:        d.context,
		ExpectedEffect: d.expectedEffect,
		Description:    d.description,
		Group:          d.group,
	}
}

// DefinitionID derives the catalog id from a key combination and context,
// e.g. "cmd+b@any" or "j@inbox"
func DefinitionID(keys KeyCombination, context string) string {
	return strings.ToLower(keys.String()) + "@" + slug(context)
}

// NormalizeID lower-cases a user supplied id so lookups ignore case
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	at := strings.LastIndex(id, "@")
	if at < 0 {
		return strings.ToLower(id)
	}
	keys, err := ParseKeyCombination(id[:at])
	if err != nil {
		return strings.ToLower(id)
	}
	return DefinitionID(keys, id[at+1:])
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

package catalog

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below through errors.Is
var (
	ErrDuplicateDefinition = errors.New("duplicate shortcut definition")
	ErrInvalidDefinition   = errors.New("invalid shortcut definition")
	ErrNotFound            = errors.New("shortcut definition not found")
)

// DuplicateDefinitionError reports two records that derive the same id
type DuplicateDefinitionError struct {
	ID        string
	FirstIdx  int
	SecondIdx int
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("record %d: id %q already defined by record %d", e.SecondIdx+1, e.ID, e.FirstIdx+1)
}

func (e *DuplicateDefinitionError) Is(target error) bool { return target == ErrDuplicateDefinition }

// InvalidDefinitionError points at the offending record and field
type InvalidDefinitionError struct {
	Index  int
	Field  string
	Value  string
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("record %d: %s: %s", e.Index+1, e.Field, e.Reason)
	}
	return fmt.Sprintf("record %d: %s %q: %s", e.Index+1, e.Field, e.Value, e.Reason)
}

func (e *InvalidDefinitionError) Is(target error) bool { return target == ErrInvalidDefinition }

// NotFoundError is returned by Catalog.Find
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("shortcut %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

package shared

import "errors"

var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCrossTenant indicates the referenced entity belongs to another business.
	ErrCrossTenant = errors.New("entity belongs to another business")
	// ErrStateConflict indicates the entity is not in a state that permits the
	// requested transition.
	ErrStateConflict = errors.New("state conflict")
	// ErrImmutable indicates an update or delete was attempted on an
	// append-only entity.
	ErrImmutable = errors.New("entity is immutable")
)

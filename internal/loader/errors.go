package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedRelationShape matches every UnsupportedRelationShapeError.
	ErrUnsupportedRelationShape = errors.New("unsupported relation shape")
	// ErrRegistryFrozen is returned when registering a strategy after Configure.
	ErrRegistryFrozen = errors.New("strategy registry already configured")
	// ErrDuplicateStrategy is returned when a strategy name is registered twice.
	ErrDuplicateStrategy = errors.New("strategy already registered")
	// ErrUnknownStrategy is returned when a relationship names an unregistered strategy.
	ErrUnknownStrategy = errors.New("unknown loading strategy")
	// ErrUnknownRelationship is returned when no loader exists for an entity/relationship pair.
	ErrUnknownRelationship = errors.New("unknown relationship")
)

// UnsupportedRelationShapeError reports a relationship whose join cannot be
// rewritten into a single IN query. It is produced once, at configuration.
type UnsupportedRelationShapeError struct {
	Owner        string
	Relationship string
	Reason       string
}

func (e *UnsupportedRelationShapeError) Error() string {
	return fmt.Sprintf(
		"bulk loader %s.%s: only simple relations on 1 primary key and without custom joins are supported (%s)",
		e.Owner, e.Relationship, e.Reason,
	)
}

// Is makes errors.Is(err, ErrUnsupportedRelationShape) match.
func (e *UnsupportedRelationShapeError) Is(target error) bool {
	return target == ErrUnsupportedRelationShape
}

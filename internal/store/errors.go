package store

import "fmt"

// Entity names used in store errors.
const (
	EntityCandidate = "candidate"
	EntityJob       = "job"
	EntityMatch     = "match"
)

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ConcurrentModificationError is returned when a write's expected revision
// does not match the stored revision.
type ConcurrentModificationError struct {
	Entity   string
	ID       string
	Expected int64
	Current  int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s: expected revision %d, current %d",
		e.Entity, e.ID, e.Expected, e.Current)
}

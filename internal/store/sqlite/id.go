package sqlite

import "github.com/google/uuid"

// newRowID returns a fresh opaque row identifier.
func newRowID() string {
	return uuid.NewString()
}

package util

import "github.com/google/uuid"

// NewID returns a random identifier for entities, documents, and export
// records. UUIDs keep ids safe inside blob keys and ZIP entry names.
func NewID() string {
	return uuid.NewString()
}

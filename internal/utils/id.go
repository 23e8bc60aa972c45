package utils

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string used for server-issued and temporary
// client ids alike.
func NewID() string {
	return uuid.NewString()
}

// Package uuid provides operation id generation and validation.
//
// Operation ids double as idempotency keys on the remote side, so they are
// generated as UUIDv7: globally unique and ordered by creation time.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Canonical 8-4-4-4-12 hex form, any version.
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// New generates a new time-ordered UUID (v7).
// Falls back to a random v4 if the v7 generator cannot read entropy.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// IsValid checks if a string is a UUID in canonical dashed form.
func IsValid(s string) bool {
	return uuidRegex.MatchString(s)
}

// Validate returns an error if the string is not a canonical UUID.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID format: %q", s)
	}
	return nil
}

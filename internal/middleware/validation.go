package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageContent validates inbound message text.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateID validates an entity ID.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid ID format")
	}
	return nil
}

// ValidateBuyerRef validates a buyer channel reference.
func ValidateBuyerRef(ref string) error {
	if len(ref) == 0 {
		return errors.New("buyer reference cannot be empty")
	}
	if len(ref) > 64 {
		return errors.New("buyer reference exceeds maximum length")
	}
	return nil
}

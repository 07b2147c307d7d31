package middleware

import (
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/capitalize-ai/character-chat/internal/apperr"
)

// MaxContentBytes bounds a raw message body before it is trimmed and
// measured in characters by the service.
const MaxContentBytes = 64 * 1024

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) > MaxContentBytes {
		return apperr.Invalid("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return apperr.Invalid("content must be valid UTF-8")
	}
	return nil
}

// ValidateID validates a path identifier.
func ValidateID(id, what string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Invalid("invalid " + what + " ID format")
	}
	return nil
}

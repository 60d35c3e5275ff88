package middleware

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidateChatID validates a caller-supplied conversation or turn id.
func ValidateChatID(id string) error {
	if id == "" {
		return errors.New("chat ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("chat ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("chat ID must be valid UTF-8")
	}
	if strings.ContainsAny(id, "/\\") || strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return errors.New("invalid chat ID format")
	}
	return nil
}

package rvoc

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// VerifyUsername checks a username against the configured length bounds.
// Usernames may not carry leading or trailing whitespace or control
// characters.
func (c Config) VerifyUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n < c.Usernames.MinLength || n > c.Usernames.MaxLength {
		return fmt.Errorf("%w: length must be between %d and %d characters",
			ErrInvalidUsername, c.Usernames.MinLength, c.Usernames.MaxLength)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: leading or trailing whitespace", ErrInvalidUsername)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: control characters", ErrInvalidUsername)
	}
	return nil
}

// VerifyPassword checks a plaintext password against the configured length
// bounds, counted in characters.
func (c Config) VerifyPassword(plaintext string) error {
	if !utf8.ValidString(plaintext) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidPassword)
	}
	n := utf8.RuneCountInString(plaintext)
	if n < c.Passwords.MinLength || n > c.Passwords.MaxLength {
		return fmt.Errorf("%w: length must be between %d and %d characters",
			ErrInvalidPassword, c.Passwords.MinLength, c.Passwords.MaxLength)
	}
	return nil
}

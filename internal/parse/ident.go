package parse

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrEmpty = errors.New("identifier is empty")

	spaceRe = regexp.MustCompile(`\s+`)
)

// TagID trims surrounding whitespace from a tag UID. Tags are otherwise opaque and
// compared exactly as given.
func TagID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmpty
	}
	return s, nil
}

// RegistrationID trims surrounding and collapses inner whitespace.
func RegistrationID(raw string) (string, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	if s == "" {
		return "", ErrEmpty
	}
	return s, nil
}

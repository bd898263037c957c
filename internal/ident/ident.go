// Package ident generates blob identifiers: a random UUID followed by the
// original file extension.
package ident

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// UUIDLength is the length of the canonical hyphenated UUID prefix.
	UUIDLength = 36

	idMaxAttempts = 8
)

var extensionPattern = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

// Generate returns a fresh identifier for a blob carrying ext.
// ext is kept verbatim when it is a dot followed by alphanumerics, otherwise
// it is dropped.
func Generate(ext string) string {
	return uuid.NewString() + NormalizeExtension(ext)
}

// GenerateUnique returns a new identifier that exists reports as unused.
// It retries on collisions using the provided exists function.
func GenerateUnique(ext string, exists func(string) (bool, error)) (string, error) {
	for i := 0; i < idMaxAttempts; i++ {
		id := Generate(ext)
		if exists == nil {
			return id, nil
		}
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("unable to generate unique id")
}

// NormalizeExtension returns ext with surrounding space trimmed, or "" when
// it is not a dot followed by one or more ASCII letters or digits.
func NormalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if !extensionPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// ValidExtension reports whether ext would be kept by Generate.
func ValidExtension(ext string) bool {
	return NormalizeExtension(ext) != ""
}

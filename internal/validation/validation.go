// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{4,32}$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-]+(\.[a-zA-Z0-9\-]+)*\.[a-zA-Z]{2,}$`)
	mutedRegex    = regexp.MustCompile(`[^a-z0-9 ]+`)
)

// ValidatePassword checks the length bounds bcrypt can hash.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return fmt.Errorf("password must not exceed 72 bytes")
	}

	return nil
}

// ValidateUsername checks if a username meets requirements
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username must be 4-32 characters and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if len(email) > 254 {
		return fmt.Errorf("email must not exceed 254 characters")
	}

	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}

	return nil
}

// ValidateLength checks that value has at most max runes. A field marked
// required must also be non-blank.
func ValidateLength(field, value string, max int, required bool) error {
	if required && strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%s must not exceed %d characters", field, max)
	}
	return nil
}

// NormalizeMutedWords lowercases each word, strips everything but letters,
// digits and spaces, and drops blanks and repeats. The result joined by commas
// fits in max bytes; words past that are dropped.
func NormalizeMutedWords(words []string, max int) []string {
	var out []string
	seen := make(map[string]bool)
	size := 0
	for _, w := range words {
		w = strings.Join(strings.Fields(mutedRegex.ReplaceAllString(strings.ToLower(w), "")), " ")
		if w == "" || seen[w] {
			continue
		}
		next := size + len(w)
		if len(out) > 0 {
			next++
		}
		if next > max {
			break
		}
		seen[w] = true
		out = append(out, w)
		size = next
	}
	return out
}

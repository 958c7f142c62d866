package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// MaxCommentLength bounds free-text rationale attached to decisions and comments
const MaxCommentLength = 2000

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidatePeriod validates the reporting month and year of an expense report
func ValidatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("month must be between 1 and 12: %d", month)
	}
	if year < 2000 || year > 2100 {
		return fmt.Errorf("year out of range: %d", year)
	}
	return nil
}

// ValidateComment checks a free-text rationale and returns its sanitized form
func ValidateComment(comment string) (string, error) {
	cleaned := strings.TrimSpace(SanitizeString(comment))
	if cleaned == "" {
		return "", fmt.Errorf("comment must not be blank")
	}
	if len([]rune(cleaned)) > MaxCommentLength {
		return "", fmt.Errorf("comment exceeds %d characters", MaxCommentLength)
	}
	return cleaned, nil
}

// SanitizeString removes control characters, keeping tabs and newlines
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

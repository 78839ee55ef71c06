package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrInvalidInput = errors.New("invalid input")

	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{3,50}$`)
)

// SanitizeString trims whitespace and strips control characters other than
// newline and tab.
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)

	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

func ValidateUsername(username string) error {
	username = SanitizeString(username)

	switch {
	case username == "":
		return errors.New("username cannot be empty")
	case len(username) < 3:
		return errors.New("username must be at least 3 characters")
	case len(username) > 50:
		return errors.New("username must not exceed 50 characters")
	case !usernameRegex.MatchString(username):
		return errors.New("username contains invalid characters")
	}
	return nil
}

// ValidatePassword applies the complexity rules used when hashing the
// admin password.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 72 {
		return errors.New("password must not exceed 72 bytes")
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSpecial {
		return errors.New("password must contain at least one special character")
	}
	return nil
}

// ParseLimit reads a page size query value. Empty means def; values above
// max are capped.
func ParseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", ErrInvalidInput)
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}

func ParseVMID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: vm id must be a non-negative integer", ErrInvalidInput)
	}
	return id, nil
}

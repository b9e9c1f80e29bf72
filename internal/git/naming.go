// Package git wraps the git CLI for preparing and pushing task branches.
package git

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxBranchNameLength is the maximum allowed length for branch names.
const MaxBranchNameLength = 256

// ErrInvalidBranchName indicates a branch name failed validation.
var ErrInvalidBranchName = errors.New("invalid branch name")

// branchNamePattern validates branch names: alphanumeric, slash, hyphen, underscore, dot.
// Must start with alphanumeric.
var branchNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.-]*$`)

// unsafeRefChars matches everything SanitizeRefComponent replaces.
var unsafeRefChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// ValidateBranchName validates a branch name for security and git compatibility.
//
// Validation rules:
//   - Must not be empty or exceed MaxBranchNameLength
//   - Must start with an alphanumeric character
//   - May only contain: a-z, A-Z, 0-9, /, -, _, .
//   - Must not contain "..", "//", "@{" or components starting or ending with "."
//   - Must not end with ".lock", "." or "/"
//   - Must not be HEAD
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidBranchName)
	}
	if len(name) > MaxBranchNameLength {
		return fmt.Errorf("%w: exceeds maximum length of %d characters", ErrInvalidBranchName, MaxBranchNameLength)
	}
	if strings.EqualFold(name, "head") {
		return fmt.Errorf("%w: '%s' is a reserved name", ErrInvalidBranchName, name)
	}
	for _, bad := range []string{"@{", "..", "//", "/.", "./"} {
		if strings.Contains(name, bad) {
			return fmt.Errorf("%w: cannot contain '%s'", ErrInvalidBranchName, bad)
		}
	}
	for _, bad := range []string{".lock", ".", "/"} {
		if strings.HasSuffix(name, bad) {
			return fmt.Errorf("%w: cannot end with '%s'", ErrInvalidBranchName, bad)
		}
	}
	if !branchNamePattern.MatchString(name) {
		return fmt.Errorf("%w: contains invalid characters (allowed: a-z, A-Z, 0-9, /, -, _, .)", ErrInvalidBranchName)
	}
	return nil
}

// SanitizeRefComponent turns arbitrary text (such as a contributor's branch
// name) into a single safe ref path component.
func SanitizeRefComponent(s string) string {
	s = unsafeRefChars.ReplaceAllString(s, "-")
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	s = strings.Trim(s, "-.")
	s = strings.TrimSuffix(s, ".lock")
	if s == "" {
		return "branch"
	}
	return s
}

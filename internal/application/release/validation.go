// Package release provides application use cases for release management.
package release

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/railhead-io/railhead/internal/domain/release"
)

// Validation constants for input limits.
const (
	MaxReleaseIDLength = 64
	MaxTaskIDLength    = 64
	MaxAccountIDLength = 128
	MaxFileNameLength  = 255
)

// idPattern validates identifier format: alphanumeric with hyphens and underscores.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidateReleaseID validates a release ID format and length.
func ValidateReleaseID(id release.ReleaseID) error {
	if id == "" {
		return fmt.Errorf("release ID is required")
	}
	if len(id) > MaxReleaseIDLength {
		return fmt.Errorf("release ID too long (max %d characters)", MaxReleaseIDLength)
	}
	if !idPattern.MatchString(string(id)) {
		return fmt.Errorf("invalid release ID format: must be alphanumeric with hyphens and underscores")
	}
	return nil
}

// ValidateTaskID validates a task ID format and length.
func ValidateTaskID(id string) error {
	if id == "" {
		return fmt.Errorf("task ID is required")
	}
	if len(id) > MaxTaskIDLength {
		return fmt.Errorf("task ID too long (max %d characters)", MaxTaskIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid task ID format: must be alphanumeric with hyphens and underscores")
	}
	return nil
}

// ValidateSafeString validates a string for safe logging and persistence.
// It checks length limits and rejects control characters.
func ValidateSafeString(s string, fieldName string, maxLen int) error {
	if len(s) > maxLen {
		return fmt.Errorf("%s too long (max %d characters)", fieldName, maxLen)
	}
	if strings.ContainsAny(s, "\x00\n\r\t") {
		return fmt.Errorf("%s contains invalid control characters", fieldName)
	}
	return nil
}

// ValidateFileName validates an artifact file name: a bare name with an
// extension, no path separators or traversal.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name is required")
	}
	if len(name) > MaxFileNameLength {
		return fmt.Errorf("file name too long (max %d characters)", MaxFileNameLength)
	}
	if strings.ContainsAny(name, "/\\\x00") || name != filepath.Base(name) {
		return fmt.Errorf("file name must not contain path separators")
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("file name must not start with a dot")
	}
	if filepath.Ext(name) == "" {
		return fmt.Errorf("file name must have an extension")
	}
	return nil
}

// ValidationError collects multiple validation errors.
type ValidationError struct {
	errors []string
}

// NewValidationError creates a new ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{errors: make([]string, 0)}
}

// Add adds an error to the collection.
func (v *ValidationError) Add(err error) {
	if err != nil {
		v.errors = append(v.errors, err.Error())
	}
}

// AddMessage adds an error message to the collection.
func (v *ValidationError) AddMessage(msg string) {
	v.errors = append(v.errors, msg)
}

// HasErrors returns true if there are validation errors.
func (v *ValidationError) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns the combined error message.
func (v *ValidationError) Error() string {
	if len(v.errors) == 0 {
		return ""
	}
	if len(v.errors) == 1 {
		return v.errors[0]
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(v.errors, "; "))
}

// ToError returns nil if no errors, otherwise returns the ValidationError.
func (v *ValidationError) ToError() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

// Package validation provides request limits and field checks for the
// guardian API.
package validation

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (64KB). Every accepted
// body is a handful of short strings.
const MaxRequestSize = 64 << 10

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}

// SanitizeString trims whitespace and removes null bytes.
func SanitizeString(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\x00", "")
}

// ValidationError represents a validation error. Code is the stable
// identifier returned to clients, e.g. "missing_text".
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Code returns the first error's code, or "" when there are no errors.
func (e ValidationErrors) Code() string {
	if len(e) == 0 {
		return ""
	}
	return e[0].Code
}

// Validate runs validators in order and collects their errors.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks that a field is not blank.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Code: "missing_" + field, Message: "is required"}
		}
		return nil
	}
}

// MaxRunes checks that a field has at most max characters. Length is
// counted in runes so non-Latin text is not penalised for its encoding.
func MaxRunes(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if utf8.RuneCountInString(value) > max {
			return &ValidationError{Field: field, Code: field + "_too_long", Message: "exceeds maximum length"}
		}
		return nil
	}
}

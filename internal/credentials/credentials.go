// Package credentials decides whether a configured provider secret is real
// or an unfilled template value copied from an example env file.
package credentials

import "strings"

// placeholderMarkers are matched case-insensitively anywhere in the value.
var placeholderMarkers = []string{
	"your",
	"placeholder",
	"change",
	"replace",
	"xxxx",
	"example",
}

// IsPlaceholder reports whether key is empty or looks like a template value.
// Such keys are treated exactly like an absent key.
func IsPlaceholder(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return true
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// Configured is the negation of IsPlaceholder, for call sites that read better
// in the positive.
func Configured(key string) bool {
	return !IsPlaceholder(key)
}

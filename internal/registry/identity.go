package registry

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// NormalizeIdentity trims surrounding whitespace and converts the name to
// NFC so visually identical names map to the same key.
func NormalizeIdentity(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateIdentity normalizes name and rejects values that cannot serve as
// both a registry key and a photo file name.
func ValidateIdentity(name string) (string, error) {
	name = NormalizeIdentity(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidIdentity)
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, name)
	}
	if name == matcher.Unknown {
		return "", fmt.Errorf("%w: %q is reserved for unmatched faces", ErrInvalidIdentity, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentity, name)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: %q contains control characters", ErrInvalidIdentity, name)
	}
	return name, nil
}

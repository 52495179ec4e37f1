// Package slug builds URL-safe identifiers for catalog entries.
package slug

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	appErrors "github.com/campus-hq/ops-api/pkg/errors"
)

// maxAttempts bounds the uniqueness search so a pathological exists check
// cannot loop forever.
const maxAttempts = 100

var (
	validPattern   = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	invalidRunes   = regexp.MustCompile(`[^a-z0-9]+`)
	collapseHyphen = regexp.MustCompile(`-{2,}`)

	stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// ExistsFunc reports whether a candidate slug is already taken.
type ExistsFunc func(ctx context.Context, slug string) (bool, error)

// Make converts arbitrary text into a lowercase hyphenated slug. Accented
// characters are decomposed and stripped rather than dropped, so
// "Curso de Prueba" becomes "curso-de-prueba". Make is idempotent.
func Make(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if folded, _, err := transform.String(stripAccents, lowered); err == nil {
		lowered = folded
	}
	lowered = invalidRunes.ReplaceAllString(lowered, "-")
	lowered = collapseHyphen.ReplaceAllString(lowered, "-")
	return strings.Trim(lowered, "-")
}

// Valid reports whether s matches the canonical slug pattern.
func Valid(s string) bool {
	return validPattern.MatchString(s)
}

// Unique derives a slug from text and probes the exists check, appending
// -1, -2, ... until a free candidate is found. The search gives up after
// maxAttempts suffixes with ErrSlugExhausted.
func Unique(ctx context.Context, text string, exists ExistsFunc) (string, error) {
	base := Make(text)
	if base == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "slug source text is empty")
	}

	candidate := base
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		if attempt > 0 {
			candidate = base + "-" + strconv.Itoa(attempt)
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "slug existence check failed")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrSlugExhausted, "")
}

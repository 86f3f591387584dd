package galleryfs

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics strips combining marks, e.g. "Jiří" -> "Jiri".
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NameFromFile derives the display name from a gallery filename:
// "jane_doe.jpg" -> "jane doe".
func NameFromFile(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Join(strings.Fields(strings.ReplaceAll(stem, "_", " ")), " ")
}

// KeyFromName derives the stable identity key from a display name: lower case,
// no diacritics, runs of spaces and dashes collapsed to one underscore.
func KeyFromName(name string) string {
	name = strings.ToLower(RemoveDiacritics(name))
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})
	return strings.Join(fields, "_")
}

// FileNameFor returns the gallery filename for a display name, with spaces
// replaced by underscores.
func FileNameFor(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\:*?"<>|`) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return strings.ReplaceAll(name, " ", "_") + ".png", nil
}

// IsImage reports whether path has a supported gallery extension.
func IsImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}
	return false
}

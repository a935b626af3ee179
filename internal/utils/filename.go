package utils

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// unsafeFilenameRE matches every rune that may not appear in a stored name.
var unsafeFilenameRE = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// asciiFold decomposes (NFKD) and drops combining marks and non-ASCII runes,
// so "Résumé.PNG" becomes "Resume.PNG".
var asciiFold = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

// FileExt returns the lowercased extension of name including the dot
// ("photo.JPG" -> ".jpg"), or "" when there is none.
func FileExt(name string) string {
	_, ext := splitExt(BaseName(name))
	return strings.ToLower(ext)
}

// splitExt splits base into stem and extension (with dot). Dotfiles such as
// ".env" have no extension.
func splitExt(base string) (stem, ext string) {
	i := strings.LastIndexByte(base, '.')
	if i <= 0 || i == len(base)-1 {
		return base, ""
	}
	return base[:i], base[i:]
}

// BaseName strips any client-supplied directory part, accepting both '/'
// and '\' separators.
func BaseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if b := path.Base("/" + name); b != "/" {
		return b
	}
	return ""
}

// SecureFilename reduces a client filename to a safe ASCII form: path
// components are stripped, the name is folded to ASCII, whitespace becomes
// '_', anything outside [A-Za-z0-9_.-] is dropped, and leading/trailing dots
// and underscores are trimmed.
//
// The extension of the original name is preserved, case included, minus any
// unsafe runes; when nothing of the stem survives, "file" is used as the
// stem. Only StoredFilename lowercases extensions.
func SecureFilename(name string) string {
	stem, ext := splitExt(BaseName(name))

	folded := foldSafe(stem)
	folded = strings.Trim(folded, "._")
	if folded == "" {
		folded = "file"
	}
	if ext = "." + foldSafe(ext[min(1, len(ext)):]); ext == "." {
		ext = ""
	}
	return folded + ext
}

func foldSafe(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		return ""
	}
	folded = strings.Join(strings.Fields(folded), "_")
	return unsafeFilenameRE.ReplaceAllString(folded, "")
}

// StoredFilename generates the on-disk name for an upload:
// "{YYYYMMDD_HHMMSS}_{8 hex chars}{ext}", ext lowercased.
func StoredFilename(original string, now time.Time) string {
	return fmt.Sprintf("%s_%s%s", now.Format("20060102_150405"), uuid.NewString()[:8], FileExt(original))
}

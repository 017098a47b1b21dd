package acquire

import (
	"crypto/rand"
	"encoding/hex"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AllowedExtensions are the video containers accepted for conversion.
var AllowedExtensions = []string{"mp4", "mov", "avi", "mkv", "webm"}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Allowed reports whether name has an accepted extension, ignoring case.
func Allowed(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// SanitizeFilename makes name safe to use as a single path element. The stem
// and extension are cleaned separately so a valid extension is never lost.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	ext := path.Ext(name)
	if strings.Contains(ext, "/") {
		ext = ""
	}
	stem := secure(strings.TrimSuffix(name, ext))
	if stem == "" {
		stem = "video"
	}
	ext = strings.ToLower(secure(strings.TrimPrefix(ext, ".")))
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}

func secure(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(nonASCII))), s)
	if err == nil {
		s = folded
	}
	s = strings.ReplaceAll(s, "/", " ")
	s = strings.Join(strings.Fields(s), "_")
	s = unsafeChars.ReplaceAllString(s, "")
	return strings.Trim(s, "._")
}

func nonASCII(r rune) bool { return r > unicode.MaxASCII }

// UniqueName prefixes name with a random 16 hex character token.
func UniqueName(name string) string {
	return newToken() + "_" + name
}

func newToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

package shelf

import (
	"path"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var videoExtensions = map[string]bool{
	"mp4":  true,
	"mkv":  true,
	"webm": true,
	"mov":  true,
	"avi":  true,
	"flv":  true,
	"wmv":  true,
	"m4v":  true,
}

// IsVideoFile reports whether name has a supported video extension.
// The check is case-insensitive and never fails.
func IsVideoFile(name string) bool {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return false
	}
	return videoExtensions[strings.ToLower(name[i+1:])]
}

// A Collator keeps internal buffers and must not be used concurrently.
var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Und, collate.Numeric, collate.IgnoreCase, collate.IgnoreDiacritics)
)

// NaturalCompare orders names case-insensitively, comparing runs of digits
// by numeric value so "2" sorts before "10". It returns -1, 0 or 1.
func NaturalCompare(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}

// naturalLess breaks NaturalCompare ties by byte order so sorting is total.
func naturalLess(a, b string) bool {
	if c := NaturalCompare(a, b); c != 0 {
		return c < 0
	}
	return a < b
}

var (
	extensionPattern  = regexp.MustCompile(`\.[^/.]+$`)
	separatorPattern  = regexp.MustCompile(`[_-]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	wordStartPattern  = regexp.MustCompile(`\b\w`)
)

// HumanizeName turns a file or directory name into a display title:
// the final extension is dropped, '_' and '-' runs become spaces, and each
// word's first character is upper-cased. A word starting with a digit is
// left as is ("1st" stays "1st").
func HumanizeName(raw string) string {
	return humanizeWords(extensionPattern.ReplaceAllString(path.Base(raw), ""))
}

// humanizeWords is HumanizeName without extension stripping.
func humanizeWords(s string) string {
	s = separatorPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return wordStartPattern.ReplaceAllStringFunc(s, func(c string) string {
		return cases.Upper(language.Und).String(c)
	})
}

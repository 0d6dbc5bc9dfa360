package artwork

import (
	"regexp"
	"strings"
)

var bookNumber = regexp.MustCompile(`(?i)\bbook\s+(\d+)\b`)

// SearchTitle strips subtitle decoration so providers have a better chance of
// matching: "Mistborn: The Final Empire (Mistborn, Book 1)" becomes
// "Mistborn Book 1". The series number survives the cut.
func SearchTitle(title string) string {
	base := title
	if i := strings.IndexAny(base, ":("); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(base)
	if base == "" {
		base = strings.TrimSpace(title)
	}

	m := bookNumber.FindStringSubmatch(title)
	if m == nil {
		return base
	}
	marker := "Book " + m[1]
	if strings.Contains(strings.ToLower(base), strings.ToLower(marker)) {
		return base
	}
	return base + " " + marker
}

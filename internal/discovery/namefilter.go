package discovery

import (
	"regexp"
	"strings"
)

// Textual heuristics for search results that are lists, directories, award
// pages, associations, or job boards rather than operating companies.
var nonCompanyPatterns = []string{
	"top 10", "top 100", "best of", "list of", "directory",
	"awards", "ranking", "who's who",
	"association of", "society of", "chamber of commerce", "federation",
	"jobs at", "careers at", "job board", "hiring now",
	"conference", "summit 20", "expo 20",
}

// solePropPattern matches names like "John D." which are almost always a
// person, not a company.
var solePropPattern = regexp.MustCompile(`^\w+ \w{1,2}\.?$`)

// IsNonCompanyName reports whether the result name matches a known
// non-company pattern.
func IsNonCompanyName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return true
	}
	for _, p := range nonCompanyPatterns {
		if strings.Contains(n, p) {
			return true
		}
	}
	return solePropPattern.MatchString(strings.TrimSpace(name))
}

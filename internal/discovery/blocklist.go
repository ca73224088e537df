package discovery

import (
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
)

// blockedParentDomains are non-company platforms that search providers
// regularly surface as "companies". Matching is by parent domain, so a
// subdomain or country-TLD variant of a listed entry is blocked too.
var blockedParentDomains = []string{
	"linkedin.com",
	"facebook.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"youtube.com",
	"tiktok.com",
	"linktr.ee",
	"medium.com",
	"wikipedia.org",
	"crunchbase.com",
	"glassdoor.com",
	"indeed.com",
	"yelp.com",
	"github.com",
	"reddit.com",
	"wordpress.com",
	"blogspot.com",
	"wix.com",
	"squarespace.com",
	"google.com",
	"amazon.com",
	"apple.com",
	"bloomberg.com",
	"forbes.com",
	"eventbrite.com",
	"meetup.com",
}

// Blocklist answers whether a discovered domain is a known non-company
// platform. Extra entries extend the built-in list.
type Blocklist struct {
	parents []string
}

// NewBlocklist builds the blocklist with optional extra parent domains.
func NewBlocklist(extra []string) *Blocklist {
	parents := make([]string, 0, len(blockedParentDomains)+len(extra))
	parents = append(parents, blockedParentDomains...)
	for _, e := range extra {
		if d := model.NormalizeDomain(e); d != "" {
			parents = append(parents, d)
		}
	}
	return &Blocklist{parents: parents}
}

// countrySuffixes are the country-code endings a blocked parent's national
// mirror may appear under. Two-letter TLDs sold as generic namespaces (.ai,
// .io, .co, .me) are left out: a company on one of those is not a mirror of
// the same label under .com.
var countrySuffixes = map[string]bool{
	"uk": true, "de": true, "fr": true, "es": true, "it": true,
	"nl": true, "se": true, "no": true, "dk": true, "fi": true,
	"pl": true, "pt": true, "ch": true, "at": true, "be": true,
	"ie": true, "cz": true, "jp": true, "kr": true, "cn": true,
	"in": true, "sg": true, "hk": true, "tw": true, "au": true,
	"nz": true, "ca": true, "mx": true, "br": true, "ar": true,
	"cl": true, "za": true, "ae": true, "il": true, "tr": true,
	"co.uk": true, "org.uk": true, "com.au": true, "net.au": true,
	"co.nz": true, "co.jp": true, "co.kr": true, "com.cn": true,
	"co.in": true, "com.sg": true, "com.hk": true, "com.tw": true,
	"com.br": true, "com.mx": true, "com.ar": true, "co.za": true,
	"com.tr": true, "co.il": true,
}

// IsBlockedDomain reports whether domain is, or is a subdomain or
// country-code variant of, a blocked parent. "www.LinkedIn.com",
// "m.linkedin.com", and "linkedin.co.uk" are all blocked; "x.ai" is not a
// variant of "x.com".
func (b *Blocklist) IsBlockedDomain(domain string) bool {
	d := model.NormalizeDomain(domain)
	if d == "" {
		return false
	}
	label, isCountry := countryLabel(d)
	for _, parent := range b.parents {
		if d == parent || strings.HasSuffix(d, "."+parent) {
			return true
		}
		if isCountry && label == parentLabel(parent) {
			return true
		}
	}
	return false
}

// countryLabel returns the label directly left of a recognized country-code
// suffix and whether domain carries one: "m.linkedin.co.uk" yields
// ("linkedin", true), "x.ai" yields ("", false).
func countryLabel(domain string) (string, bool) {
	parts := strings.Split(domain, ".")
	for n := 2; n >= 1; n-- {
		if len(parts) <= n {
			continue
		}
		suffix := strings.Join(parts[len(parts)-n:], ".")
		if countrySuffixes[suffix] {
			return parts[len(parts)-n-1], true
		}
	}
	return "", false
}

// parentLabel is the registrable label of a blocked parent:
// "linkedin.com" yields "linkedin", "linktr.ee" yields "linktr".
func parentLabel(parent string) string {
	parts := strings.Split(parent, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

package trust

import "strings"

// botMarkers are substrings that identify automated clients. Matching is
// case-insensitive. The list is intentionally conservative: it exists to
// flag obviously non-browser traffic, not to fingerprint every crawler.
var botMarkers = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"curl/",
	"wget/",
	"python-requests",
	"go-http-client",
	"headless",
	"phantomjs",
}

// BenignUserAgent reports whether the User-Agent looks like a regular
// client. Empty strings and known bot patterns are suspicious.
func BenignUserAgent(ua string) bool {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return false
	}
	lower := strings.ToLower(ua)
	for _, marker := range botMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

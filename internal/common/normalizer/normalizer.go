package normalizer

import (
	"html"
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	postedDateRe = regexp.MustCompile(`Posted\s+([A-Za-z]+-\d{1,2}-\d{4})`)
)

// CleanText collapses whitespace, decodes HTML entities and trims.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = html.UnescapeString(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SplitInfo parses a job card info line like
//
//	"Charlotte , NC , USA , Ref #21505 . Posted Jan-30-2026"
//
// into its location and posted date. Either may be absent; a missing
// location comes back as "".
func SplitInfo(text string) (location, datePosted string) {
	datePosted = PostedDate(text)

	parts := strings.Split(text, ",")
	if len(parts) >= 2 {
		var locationParts []string
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if strings.Contains(part, "Ref") || strings.Contains(part, "Posted") {
				break
			}
			locationParts = append(locationParts, part)
		}
		if len(locationParts) > 0 {
			location = strings.Join(locationParts, ", ")
			location = whitespaceRe.ReplaceAllString(location, " ")
			location = strings.Trim(location, " ,.")
		}
	}
	return location, datePosted
}

// PostedDate extracts the "Jan-30-2026" style date following "Posted",
// or "" when the text carries none.
func PostedDate(text string) string {
	m := postedDateRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

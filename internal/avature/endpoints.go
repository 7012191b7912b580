package avature

import (
	"fmt"
	"strings"

	"github.com/project-tktt/avature-crawler/internal/domain"
)

// Avature tenants live at https://{subdomain}.avature.net/careers, some
// with a locale prefix (/en_US/careers). Listings are server-rendered HTML
// behind one of two endpoint shapes, paginated with jobRecordsPerPage and
// jobOffset. Detail pages come in two shapes:
//
//	/careers/JobDetail/{slug}/{id}
//	/careers/JobDetail?jobId={id}

// SearchURL builds the listing URL for one page request.
func SearchURL(req domain.PageRequest) string {
	base := strings.TrimRight(req.SiteRoot, "/")
	endpoint := req.Endpoint.String()
	return fmt.Sprintf("%s/%s/?jobRecordsPerPage=%d&jobOffset=%d", base, endpoint, req.PageSize, req.Offset)
}

// ApplicationURL builds the apply URL for a job when the card carries none.
func ApplicationURL(siteRoot, jobID string) string {
	return fmt.Sprintf("%s/ApplicationMethods?jobId=%s", strings.TrimRight(siteRoot, "/"), jobID)
}

// ExtractJobID pulls the job id out of a detail URL of either shape.
// Returns "" when no id can be found.
func ExtractJobID(rawURL string) string {
	if idx := strings.Index(rawURL, "jobId="); idx >= 0 {
		id := rawURL[idx+len("jobId="):]
		if amp := strings.IndexByte(id, '&'); amp >= 0 {
			id = id[:amp]
		}
		return id
	}

	parts := strings.Split(strings.TrimRight(rawURL, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if isDigits(parts[i]) {
			return parts[i]
		}
	}
	return ""
}

// CompanyFromRoot derives the company name from the tenant subdomain.
func CompanyFromRoot(siteRoot string) string {
	host := siteRoot
	if idx := strings.Index(host, "//"); idx >= 0 {
		host = host[idx+2:]
	}
	if idx := strings.IndexByte(host, '/'); idx >= 0 {
		host = host[:idx]
	}
	subdomain := host
	if idx := strings.IndexByte(subdomain, '.'); idx >= 0 {
		subdomain = subdomain[:idx]
	}
	if subdomain == "" {
		return ""
	}
	return strings.ToUpper(subdomain[:1]) + subdomain[1:]
}

// AbsoluteURL resolves a card href against the site root.
func AbsoluteURL(siteRoot, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base := strings.TrimRight(siteRoot, "/")
	if idx := strings.Index(base, "//"); idx >= 0 {
		if slash := strings.IndexByte(base[idx+2:], '/'); slash >= 0 {
			base = base[:idx+2+slash]
		}
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

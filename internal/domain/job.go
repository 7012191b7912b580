package domain

import "time"

// SiteTarget identifies one tenant career site to crawl.
// Targets are immutable once enqueued and consumed exactly once.
type SiteTarget struct {
	RootURL string `json:"root_url"`
	Locale  string `json:"locale,omitempty"`
}

// ListingEndpointKind is the listing endpoint shape a tenant exposes.
// A tenant serves exactly one of the two shapes; the detector picks it
// once per site and it is never mixed within one crawl.
type ListingEndpointKind int

const (
	EndpointUnknown ListingEndpointKind = iota
	EndpointSearchJobs
	EndpointSearchResults
)

func (k ListingEndpointKind) String() string {
	switch k {
	case EndpointSearchJobs:
		return "SearchJobs"
	case EndpointSearchResults:
		return "SearchResults"
	default:
		return "Unknown"
	}
}

// PageRequest describes one listing page fetch.
// PageSize is advisory: tenants may silently cap it, so callers must
// advance offsets by the actual returned count, never by PageSize.
type PageRequest struct {
	SiteRoot string
	Endpoint ListingEndpointKind
	Offset   int
	PageSize int
}

// JobSummary is the minimal reference to a job found on a listing page,
// before detail enrichment. JobID is the global dedup key.
type JobSummary struct {
	JobID     string `json:"job_id"`
	Title     string `json:"title"`
	DetailURL string `json:"detail_url"`
}

// JobRecord is the final unit of output. Immutable once constructed;
// ownership transfers to the sink on emission.
type JobRecord struct {
	JobID          string    `json:"job_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	ApplicationURL string    `json:"application_url"`
	Location       string    `json:"location,omitempty"`
	DatePosted     string    `json:"date_posted,omitempty"`
	Company        string    `json:"company"`
	SourceURL      string    `json:"source_url"`
	ScrapedAt      time.Time `json:"scraped_at"`
}

// SiteStatus is the terminal outcome of one site crawl.
type SiteStatus string

const (
	SiteCompleted SiteStatus = "completed"
	SiteFailed    SiteStatus = "failed"
)

// SiteProgress is one row of the resumable ledger, written exactly once
// per SiteTarget at crawl termination.
type SiteProgress struct {
	SiteRoot string     `json:"site_root"`
	Status   SiteStatus `json:"status"`
	JobCount int        `json:"job_count"`
	Error    string     `json:"error,omitempty"`
}

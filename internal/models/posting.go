package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultLocation is used when a source does not report where the job is.
const DefaultLocation = "Not specified"

type FunctionFamily string

const (
	FamilySWE        FunctionFamily = "SWE"
	FamilyPM         FunctionFamily = "PM"
	FamilyConsulting FunctionFamily = "Consulting"
	FamilyIB         FunctionFamily = "IB"
	FamilyOther      FunctionFamily = "Other"
)

type Source string

const (
	SourceGreenhouse Source = "greenhouse"
	SourceLever      Source = "lever"
	SourceAshby      Source = "ashby"
	SourceWorkday    Source = "workday"
	SourceGeneric    Source = "generic-html"
	SourceSearch     Source = "search"
)

// Posting is one normalized job listing as it flows through a run.
type Posting struct {
	Company        string         `json:"company"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	Location       string         `json:"location"`
	FunctionFamily FunctionFamily `json:"function_family"`
	Source         Source         `json:"source"`
	PostedAt       *time.Time     `json:"posted_at,omitempty"`
	Text           string         `json:"text"`
	RawSnippet     string         `json:"raw_snippet"`
	RetrievedAt    time.Time      `json:"retrieved_at"`

	// Filled by the rule engine or the LLM enricher
	UnderclassEvidence string   `json:"underclass_evidence,omitempty"`
	WhyFits            string   `json:"why_fits,omitempty"`
	SummaryBullets     []string `json:"summary_bullets,omitempty"`
	Confidence         float64  `json:"confidence"`
}

// Hash is the dedup identity: sha256 over company|title|url|location.
func (p Posting) Hash() string {
	loc := p.Location
	if loc == "" {
		loc = DefaultLocation
	}
	sum := sha256.Sum256([]byte(p.Company + "|" + p.Title + "|" + p.URL + "|" + loc))
	return hex.EncodeToString(sum[:])
}

// AgeDays returns whole days since PostedAt, or nil when the date is unknown.
func (p Posting) AgeDays(now time.Time) *int {
	if p.PostedAt == nil {
		return nil
	}
	days := int(now.Sub(*p.PostedAt).Hours() / 24)
	return &days
}

type NearMiss struct {
	Posting         Posting `json:"posting"`
	ExclusionReason string  `json:"exclusion_reason"`
	EvidenceSnippet string  `json:"evidence_snippet"`
}

// SeenRecord mirrors one row of the postings_seen table.
type SeenRecord struct {
	Hash        string     `json:"hash"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	URL         string     `json:"url"`
	Company     string     `json:"company"`
	Title       string     `json:"title"`
	EmailedAt   *time.Time `json:"emailed_at,omitempty"`
}

type StoreStats struct {
	Total           int `json:"total"`
	Emailed         int `json:"emailed"`
	UniqueCompanies int `json:"unique_companies"`
}

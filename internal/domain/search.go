package domain

// SearchFilters narrow a semantic search. Categories are ANDed; skills
// match if any listed skill matches.
type SearchFilters struct {
	Location       string   `json:"location,omitempty"`
	MinExperience  *int     `json:"minExperience,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	OnlyApplicants bool     `json:"onlyApplicants,omitempty"`
}

// ChunkQuery is a tenant-scoped nearest-chunk lookup.
type ChunkQuery struct {
	TenantID     string
	JobID        string
	Vector       []float32
	ModelVersion string
	Filters      SearchFilters
	Limit        int
	Offset       int
}

// ChunkHit is one chunk returned by a similarity query.
type ChunkHit struct {
	ChunkID       string
	DocumentID    string
	CandidateID   string
	CandidateName string
	Section       Section
	Text          string
	Similarity    float64
}

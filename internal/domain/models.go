package domain

import "time"

// DocumentKind is the declared file format of an uploaded resume.
type DocumentKind string

const (
	KindPDF  DocumentKind = "pdf"
	KindDOCX DocumentKind = "docx"
)

// Section labels a chunk with the resume section it was cut from.
type Section string

const (
	SectionHeader         Section = "HEADER"
	SectionSummary        Section = "SUMMARY"
	SectionExperience     Section = "EXPERIENCE"
	SectionEducation      Section = "EDUCATION"
	SectionSkills         Section = "SKILLS"
	SectionProjects       Section = "PROJECTS"
	SectionCertifications Section = "CERTIFICATIONS"
	SectionFullText       Section = "FULL_TEXT"
)

// Document is an uploaded resume. It owns its processing status; application
// rows only read it through a projection.
type Document struct {
	ID              string
	CandidateID     string
	StorageURL      string
	Kind            DocumentKind
	Status          ProcessingStatus
	ProcessingError string
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ParsedDocument holds the normalized text extracted from a Document.
type ParsedDocument struct {
	ID          string
	DocumentID  string
	Text        string
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a bounded, section-labelled slice of a parsed document.
type Chunk struct {
	ID               string
	ParsedDocumentID string
	Section          Section
	SectionIndex     int
	Position         int
	Text             string
	TokenCount       int
	ContentHash      string
}

// EmbeddingDimensions is the width of the embeddings.embedding column.
const EmbeddingDimensions = 768

// Embedding is a vector for one chunk under one model version.
type Embedding struct {
	ID           string
	ChunkID      string
	ModelVersion string
	ContentHash  string
	Vector       []float32
	CreatedAt    time.Time
}

// AuditEvent is an append-only compliance record.
type AuditEvent struct {
	ID          string
	Action      string
	ActorID     string
	TenantID    string
	JobID       string
	Query       string
	CandidateID string
	CreatedAt   time.Time
}

// Package chunker splits normalized resume text into section-labelled,
// overlapping chunks sized for embedding.
package chunker

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"cv-retrieval/internal/domain"
)

// Defaults, in tokens. Token counts are estimated from characters.
const (
	DefaultMaxTokens     = 1000
	DefaultMinTokens     = 500
	DefaultOverlapTokens = 50
	DefaultCharsPerToken = 4
)

// headerPatterns is checked in order; the first match labels the line.
var headerPatterns = []struct {
	section domain.Section
	re      *regexp.Regexp
}{
	{domain.SectionSummary, regexp.MustCompile(`(?i)^(?:professional\s+|career\s+|executive\s+)?(?:summary|about(?:\s+me)?|objective|profile)\s*:?$`)},
	{domain.SectionExperience, regexp.MustCompile(`(?i)^(?:professional\s+|work\s+|relevant\s+)?(?:experience|work\s+history|employment(?:\s+history)?)\s*:?$`)},
	{domain.SectionEducation, regexp.MustCompile(`(?i)^(?:education(?:al\s+background)?|academic(?:\s+background|\s+history)?|qualifications)\s*:?$`)},
	{domain.SectionSkills, regexp.MustCompile(`(?i)^(?:technical\s+|core\s+|key\s+)?(?:skills|competencies|core\s+competencies|technologies)\s*:?$`)},
	{domain.SectionProjects, regexp.MustCompile(`(?i)^(?:personal\s+|selected\s+|key\s+)?(?:projects|portfolio)\s*:?$`)},
	{domain.SectionCertifications, regexp.MustCompile(`(?i)^(?:certifications?|licenses?(?:\s*(?:&|and)\s*certifications?)?|certificates)\s*:?$`)},
}

// Chunker is safe for concurrent use.
type Chunker struct {
	maxChars      int
	minChars      int
	overlapChars  int
	charsPerToken int
}

// Option configures a Chunker.
type Option func(*settings)

type settings struct {
	maxTokens     int
	minTokens     int
	overlapTokens int
	charsPerToken int
}

// WithMaxTokens sets the target upper bound of a chunk.
func WithMaxTokens(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithMinTokens sets how far into a window a sentence break must be
// before it is preferred over a hard cut.
func WithMinTokens(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.minTokens = n
		}
	}
}

// WithOverlapTokens sets how much context consecutive chunks share.
func WithOverlapTokens(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.overlapTokens = n
		}
	}
}

// WithCharsPerToken sets the character to token approximation.
func WithCharsPerToken(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.charsPerToken = n
		}
	}
}

func New(opts ...Option) *Chunker {
	s := settings{
		maxTokens:     DefaultMaxTokens,
		minTokens:     DefaultMinTokens,
		overlapTokens: DefaultOverlapTokens,
		charsPerToken: DefaultCharsPerToken,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.minTokens >= s.maxTokens {
		s.minTokens = s.maxTokens / 2
	}
	if s.overlapTokens >= s.maxTokens {
		s.overlapTokens = s.maxTokens / 4
	}
	return &Chunker{
		maxChars:      s.maxTokens * s.charsPerToken,
		minChars:      s.minTokens * s.charsPerToken,
		overlapChars:  s.overlapTokens * s.charsPerToken,
		charsPerToken: s.charsPerToken,
	}
}

// section is a contiguous span of the input text.
type section struct {
	label      domain.Section
	start, end int
}

// Chunk returns the chunks of text in position order. Positions are byte
// offsets into text plus baseOffset.
func (c *Chunker) Chunk(text, parentID string, baseOffset int) []domain.Chunk {
	var chunks []domain.Chunk
	for _, sec := range detectSections(text) {
		index := 0
		for _, span := range c.window(text[sec.start:sec.end]) {
			raw := text[sec.start+span[0] : sec.start+span[1]]
			body := strings.TrimSpace(raw)
			if body == "" {
				continue
			}
			lead := len(raw) - len(strings.TrimLeft(raw, " \t\n"))
			chunks = append(chunks, domain.Chunk{
				ID:               uuid.NewString(),
				ParsedDocumentID: parentID,
				Section:          sec.label,
				SectionIndex:     index,
				Position:         baseOffset + sec.start + span[0] + lead,
				Text:             body,
				TokenCount:       c.EstimateTokens(body),
				ContentHash:      domain.ContentHash(body),
			})
			index++
		}
	}
	return chunks
}

// EstimateTokens approximates the token count of s.
func (c *Chunker) EstimateTokens(s string) int {
	return (len(s) + c.charsPerToken - 1) / c.charsPerToken
}

// detectSections walks the lines of text and opens a new section at every
// header line. Text before the first header becomes HEADER. Without any
// header the whole text is a single FULL_TEXT section.
func detectSections(text string) []section {
	var (
		sections []section
		current  = section{label: domain.SectionHeader}
		matched  bool
		offset   int
	)
	for _, line := range strings.SplitAfter(text, "\n") {
		if label, ok := matchHeader(line); ok {
			current.end = offset
			sections = append(sections, current)
			current = section{label: label, start: offset}
			matched = true
		}
		offset += len(line)
	}
	current.end = len(text)
	sections = append(sections, current)

	if !matched {
		return []section{{label: domain.SectionFullText, start: 0, end: len(text)}}
	}

	out := sections[:0]
	for _, s := range sections {
		if strings.TrimSpace(text[s.start:s.end]) != "" {
			out = append(out, s)
		}
	}
	return out
}

func matchHeader(line string) (domain.Section, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	for _, h := range headerPatterns {
		if h.re.MatchString(line) {
			return h.section, true
		}
	}
	return "", false
}

// window returns [start, end) spans over s. A short section is one span.
// Longer sections are cut at the last sentence end or newline inside each
// window when that break lies past minChars, else at the window boundary.
// Each following window starts overlapChars before the previous end.
func (c *Chunker) window(s string) [][2]int {
	n := len(s)
	if n <= c.maxChars {
		return [][2]int{{0, n}}
	}

	var spans [][2]int
	start := 0
	for start < n {
		end := start + c.maxChars
		if end >= n {
			spans = append(spans, [2]int{start, n})
			break
		}
		if brk := strings.LastIndexAny(s[start:end], ".\n"); brk >= 0 && brk+1 > c.minChars {
			end = start + brk + 1
		}
		spans = append(spans, [2]int{start, end})

		next := end - c.overlapChars
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

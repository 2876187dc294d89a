package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cv-retrieval/internal/domain"
)

const resume = `Jane Doe
jane@example.com | Berlin

Professional Summary
Backend engineer focused on Go services.

Experience
Acme Corp, Senior Engineer, 2019-2024.
Built the ingestion pipeline.

Education:
BSc Computer Science

Technical Skills
Go, PostgreSQL, Redis

Projects
cv-search

Certifications
CKA`

func sectionsOf(chunks []domain.Chunk) []domain.Section {
	var out []domain.Section
	for _, c := range chunks {
		out = append(out, c.Section)
	}
	return out
}

// assertCovers checks chunk positions against the source and that every
// non-whitespace byte of text lies in at least one chunk.
func assertCovers(t *testing.T, text string, base int, chunks []domain.Chunk) {
	t.Helper()
	covered := make([]bool, len(text))
	for _, c := range chunks {
		pos := c.Position - base
		require.GreaterOrEqual(t, pos, 0)
		require.LessOrEqual(t, pos+len(c.Text), len(text))
		require.Equal(t, text[pos:pos+len(c.Text)], c.Text, "chunk text must match its position")
		for i := pos; i < pos+len(c.Text); i++ {
			covered[i] = true
		}
	}
	for i := 0; i < len(text); i++ {
		if !strings.ContainsRune(" \t\n", rune(text[i])) {
			require.True(t, covered[i], "byte %d (%q) not covered", i, text[i])
		}
	}
}

func TestChunk_DetectsSections(t *testing.T) {
	c := New()
	chunks := c.Chunk(resume, "parsed-1", 0)

	assert.Equal(t, []domain.Section{
		domain.SectionHeader,
		domain.SectionSummary,
		domain.SectionExperience,
		domain.SectionEducation,
		domain.SectionSkills,
		domain.SectionProjects,
		domain.SectionCertifications,
	}, sectionsOf(chunks))

	for _, ch := range chunks {
		assert.Equal(t, "parsed-1", ch.ParsedDocumentID)
		assert.Equal(t, 0, ch.SectionIndex)
		assert.NotEmpty(t, ch.Text)
		assert.NotEmpty(t, ch.ID)
		assert.Equal(t, domain.ContentHash(ch.Text), ch.ContentHash)
	}
	assert.True(t, strings.HasPrefix(chunks[2].Text, "Experience\nAcme Corp"))
	assertCovers(t, resume, 0, chunks)
}

func TestChunk_NoHeadersIsFullText(t *testing.T) {
	text := "Experienced engineer with a summary of skills.\nWorked on projects."
	chunks := New().Chunk(text, "p", 0)

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.SectionFullText, chunks[0].Section)
	assert.Equal(t, text, chunks[0].Text)
}

func TestChunk_HeaderFirstLineSkipsEmptyHeaderSection(t *testing.T) {
	text := "SKILLS\nGo\n\nEDUCATION\nMIT"
	chunks := New().Chunk(text, "p", 0)

	assert.Equal(t, []domain.Section{domain.SectionSkills, domain.SectionEducation}, sectionsOf(chunks))
}

func TestChunk_EmptyText(t *testing.T) {
	assert.Empty(t, New().Chunk("", "p", 0))
	assert.Empty(t, New().Chunk("  \n\n ", "p", 0))
}

func TestChunk_BaseOffset(t *testing.T) {
	chunks := New().Chunk(resume, "p", 500)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 500, chunks[0].Position)
	assertCovers(t, resume, 500, chunks)
}

func TestChunk_HardCutWithOverlap(t *testing.T) {
	c := New(WithMaxTokens(10), WithMinTokens(5), WithOverlapTokens(2), WithCharsPerToken(4))
	text := strings.Repeat("x", 100)

	chunks := c.Chunk(text, "p", 0)

	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 32, 64}, []int{chunks[0].Position, chunks[1].Position, chunks[2].Position})
	assert.Len(t, chunks[0].Text, 40)
	assert.Len(t, chunks[2].Text, 36)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.SectionIndex)
		assert.Equal(t, domain.SectionFullText, ch.Section)
	}
	assert.Equal(t, 10, chunks[0].TokenCount)
	assert.Equal(t, 9, chunks[2].TokenCount)
}

func TestChunk_PrefersSentenceBreakPastMinimum(t *testing.T) {
	c := New(WithMaxTokens(10), WithMinTokens(5), WithOverlapTokens(1), WithCharsPerToken(4))
	// Period at index 29, past the 20 char floor and inside the 40 char window.
	text := strings.Repeat("a", 29) + "." + strings.Repeat("b", 30)

	chunks := c.Chunk(text, "p", 0)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 29)+".", chunks[0].Text)
	assertCovers(t, text, 0, chunks)
}

func TestChunk_IgnoresBreakBeforeMinimum(t *testing.T) {
	c := New(WithMaxTokens(10), WithMinTokens(5), WithOverlapTokens(1), WithCharsPerToken(4))
	text := "a." + strings.Repeat("b", 60)

	chunks := c.Chunk(text, "p", 0)

	require.NotEmpty(t, chunks)
	assert.Len(t, chunks[0].Text, 40)
}

func TestChunk_LongSectionsKeepAllContent(t *testing.T) {
	var b strings.Builder
	b.WriteString("Summary\n")
	for i := 0; i < 400; i++ {
		b.WriteString("Designed and operated distributed systems in Go. ")
		if i%7 == 0 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\nSkills\nGo")
	text := b.String()

	c := New()
	chunks := c.Chunk(text, "p", 0)

	require.Greater(t, len(chunks), 2)
	for i, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 4000)
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
		if i > 0 && chunks[i-1].Section == ch.Section {
			prevEnd := chunks[i-1].Position + len(chunks[i-1].Text)
			assert.Less(t, ch.Position, prevEnd, "consecutive chunks should overlap")
			assert.Greater(t, ch.Position, chunks[i-1].Position)
		}
	}
	assert.Equal(t, domain.SectionSkills, chunks[len(chunks)-1].Section)
	assertCovers(t, text, 0, chunks)
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(WithMaxTokens(20))
	first := c.Chunk(resume, "p", 0)
	second := c.Chunk(resume, "p", 0)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Position, second[i].Position)
		assert.Equal(t, first[i].Section, second[i].Section)
		assert.Equal(t, first[i].ContentHash, second[i].ContentHash)
	}
}

func TestNew_ClampsOptions(t *testing.T) {
	c := New(WithMaxTokens(10), WithMinTokens(50), WithOverlapTokens(40))
	assert.Equal(t, 40, c.maxChars)
	assert.Less(t, c.minChars, c.maxChars)
	assert.Less(t, c.overlapChars, c.maxChars)
}

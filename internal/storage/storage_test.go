package storage

import (
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/storage/migrations"
)

func TestBuildChunkSearch_TenantOnly(t *testing.T) {
	vec := []float32{0.1, 0.2, 0.3}
	query, args, err := buildChunkSearch(domain.ChunkQuery{
		TenantID:     "tenant-1",
		Vector:       vec,
		ModelVersion: "m1",
		Limit:        20,
	}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "1 - (e.embedding <=> $1)) AS similarity")
	assert.Contains(t, query, "j.tenant_id = $2")
	assert.Contains(t, query, "e.model_version = $3")
	assert.Contains(t, query, "ORDER BY e.embedding <=> $4")
	assert.Contains(t, query, "LIMIT 20")
	assert.NotContains(t, query, "OFFSET")
	assert.NotContains(t, query, "a.job_id = $")
	assert.NotContains(t, query, "ILIKE")

	require.Len(t, args, 4)
	assert.Equal(t, pgvector.NewVector(vec), args[0])
	assert.Equal(t, "tenant-1", args[1])
	assert.Equal(t, "m1", args[2])
	assert.Equal(t, pgvector.NewVector(vec), args[3])

	where := query[strings.Index(query, "WHERE"):]
	assert.True(t, strings.HasPrefix(where, "WHERE EXISTS (SELECT 1 FROM applications a JOIN jobs j"),
		"tenant boundary must be the first predicate: %s", where)
}

func TestBuildChunkSearch_AllFilters(t *testing.T) {
	minExp := 5
	query, args, err := buildChunkSearch(domain.ChunkQuery{
		TenantID:     "tenant-1",
		JobID:        "job-9",
		Vector:       []float32{1},
		ModelVersion: "m1",
		Filters: domain.SearchFilters{
			Location:      " 100%_Remote ",
			MinExperience: &minExp,
			Skills:        []string{"Go", " ", "k8s"},
		},
		Limit:  10,
		Offset: 30,
	}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "a.job_id = $3")
	assert.Contains(t, query, "cand.location ILIKE $5")
	assert.Contains(t, query, "cand.years_experience >= $6")
	assert.Contains(t, query, "s ILIKE ANY($7)")
	assert.Contains(t, query, "ORDER BY e.embedding <=> $8")
	assert.Contains(t, query, "LIMIT 10 OFFSET 30")

	require.Len(t, args, 8)
	assert.Equal(t, "job-9", args[2])
	assert.Equal(t, `%100\%\_Remote%`, args[4])
	assert.Equal(t, 5, args[5])
	assert.Equal(t, pq.Array([]string{"%Go%", "%k8s%"}), args[6])
}

func TestBuildChunkSearch_InjectionStaysInArgs(t *testing.T) {
	evil := "'; DROP TABLE candidates; --"
	query, args, err := buildChunkSearch(domain.ChunkQuery{
		TenantID:     evil,
		ModelVersion: "m1",
		Filters:      domain.SearchFilters{Location: evil, Skills: []string{evil}},
	}).ToSql()
	require.NoError(t, err)

	assert.NotContains(t, query, "DROP TABLE")
	assert.Equal(t, evil, args[1])
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "plain", escapeLike("plain"))
	assert.Equal(t, `50\%`, escapeLike("50%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\dir`, escapeLike(`c:\dir`))
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_jobs.up.sql":   {Data: []byte("SELECT 2")},
		"001_init.up.sql":   {Data: []byte("SELECT 1")},
		"003_more.up.sql":   {Data: []byte("SELECT 3")},
		"001_init.down.sql": {Data: []byte("SELECT 0")},
		"README.md":         {Data: []byte("notes")},
		"latest.up.sql":     {Data: []byte("SELECT 9")},
	}

	all, err := pendingMigrations(fsys, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{all[0].version, all[1].version, all[2].version})

	rest, err := pendingMigrations(fsys, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "003_more.up.sql", rest[0].name)
}

func TestEmbeddedMigrations(t *testing.T) {
	pending, err := pendingMigrations(migrations.FS, 0)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Equal(t, 1, pending[0].version)
}

func TestEmbeddedMigrations_VectorWidthMatchesDomain(t *testing.T) {
	sql, err := migrations.FS.ReadFile("001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), fmt.Sprintf("embedding     vector(%d) NOT NULL", domain.EmbeddingDimensions))
}

func TestStatusStrings(t *testing.T) {
	got := statusStrings(domain.AllowedFrom(domain.StatusChunking))
	assert.Equal(t, []string{"PARSING", "FAILED"}, got)
}

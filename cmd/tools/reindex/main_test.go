package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"cv-retrieval/internal/domain"
)

func TestParseStatuses(t *testing.T) {
	got, err := parseStatuses("failed, UNPROCESSED,")
	require.NoError(t, err)
	assert.Equal(t, []domain.ProcessingStatus{domain.StatusFailed, domain.StatusUnprocessed}, got)

	_, err = parseStatuses("FAILED,DONE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DONE")

	_, err = parseStatuses(" , ")
	require.Error(t, err)
}

func TestApp_Flags(t *testing.T) {
	app := newApp()

	flags := map[string]cli.Flag{}
	for _, f := range app.Flags {
		flags[f.Names()[0]] = f
	}

	dryRun, ok := flags["dry-run"].(*cli.BoolFlag)
	require.True(t, ok)
	assert.True(t, dryRun.Value)

	limit, ok := flags["limit"].(*cli.IntFlag)
	require.True(t, ok)
	assert.Equal(t, 200, limit.Value)

	status, ok := flags["status"].(*cli.StringFlag)
	require.True(t, ok)
	assert.Equal(t, "FAILED,UNPROCESSED,PARSING,CHUNKING,EMBEDDING", status.Value)

	staleAfter, ok := flags["stale-after"].(*cli.DurationFlag)
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, staleAfter.Value)
}

func TestRecoverable_SkipsRecentlyActiveDocuments(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	docs := []*domain.Document{
		{ID: "failed", Status: domain.StatusFailed, UpdatedAt: now},
		{ID: "stuck", Status: domain.StatusParsing, UpdatedAt: now.Add(-2 * time.Hour)},
		{ID: "busy", Status: domain.StatusEmbedding, UpdatedAt: now.Add(-time.Minute)},
		{ID: "new", Status: domain.StatusUnprocessed, UpdatedAt: now},
	}

	got := recoverable(docs, now, 30*time.Minute)

	ids := make([]string, len(got))
	for i, d := range got {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"failed", "stuck", "new"}, ids)
	assert.Len(t, docs, 4)
}

func TestApp_RejectsUnknownStatusBeforeConnecting(t *testing.T) {
	err := newApp().Run([]string{"reindex", "--status", "BOGUS"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestApp_RejectsNegativeLimit(t *testing.T) {
	err := newApp().Run([]string{"reindex", "--limit", "-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

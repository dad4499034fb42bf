package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owoblo/quote2move/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Kind:      model.RunKindEstimate,
			Status:    model.RunStatusComplete,
			CreatedAt: now,
			UpdatedAt: now.Add(4 * time.Second),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Kind:      model.RunKindDetection,
			Status:    model.RunStatusRunning,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "KIND")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "estimate")
	assert.Contains(t, output, "detection")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2026-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "4s")
}

func TestFormatRunsList_LongError(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{{
		ID:        "abc12345-6789-0000-0000-000000000000",
		Kind:      model.RunKindDetection,
		Status:    model.RunStatusFailed,
		Error:     "room classification failed for every photo in the request batch",
		CreatedAt: now,
		UpdatedAt: now,
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "room classification failed for every ...")
	assert.NotContains(t, output, "request batch")
}

func TestComputeRunStats(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{Kind: model.RunKindEstimate, Status: model.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(2 * time.Second)},
		{Kind: model.RunKindEstimate, Status: model.RunStatusDegraded, CreatedAt: now, UpdatedAt: now.Add(4 * time.Second)},
		{Kind: model.RunKindDetection, Status: model.RunStatusFailed, CreatedAt: now, UpdatedAt: now},
		{Kind: model.RunKindDetection, Status: model.RunStatusRunning, CreatedAt: now, UpdatedAt: now},
		{Kind: model.RunKindDetection, Status: model.RunStatusComplete, CreatedAt: now.Add(-48 * time.Hour), UpdatedAt: now},
	}

	s := computeRunStats(runs, now.Add(-24*time.Hour))
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Estimates)
	assert.Equal(t, 2, s.Detections)
	assert.Equal(t, 1, s.Complete)
	assert.Equal(t, 1, s.Degraded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.InDelta(t, 3.0, s.AvgDurSecs, 0.001)

	all := computeRunStats(runs, time.Time{})
	assert.Equal(t, 5, all.Total)
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{Total: 3, Estimates: 3, Complete: 2, Failed: 1, AvgDurSecs: 2.5})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "Avg duration:")
	assert.Contains(t, output, "2.5s")

	buf.Reset()
	formatRunStats(&buf, runStats{})
	assert.NotContains(t, buf.String(), "Avg duration")
}

func TestRunDetail(t *testing.T) {
	r := model.Run{
		ID:     "run-1",
		Kind:   model.RunKindEstimate,
		Status: model.RunStatusFailed,
		Input:  []byte(`{"inventory":[]}`),
		Result: []byte("not json"),
		Error:  "boom",
	}

	got := runDetail(r)
	assert.Equal(t, "boom", got["error"])
	require.Contains(t, got, "input")
	assert.JSONEq(t, `{"inventory":[]}`, string(got["input"].(json.RawMessage)))
	assert.NotContains(t, got, "result")

	r.Error = ""
	assert.NotContains(t, runDetail(r), "error")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}

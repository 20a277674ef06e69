package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/relpub/internal/artifacts"
	"git.home.luguber.info/inful/relpub/internal/config"
	"git.home.luguber.info/inful/relpub/internal/coordinate"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/ledger"
	"git.home.luguber.info/inful/relpub/internal/publish"
	"git.home.luguber.info/inful/relpub/internal/router"
)

func sampleResult(t *testing.T) *publish.Result {
	t.Helper()
	coord, err := coordinate.New("com.beust", "jcommander", "1.79")
	require.NoError(t, err)
	return &publish.Result{
		RunID:      "2b7e0f3c-run",
		Coordinate: coord,
		Duration:   1500 * time.Millisecond,
		Destinations: []publish.DestinationResult{
			{
				Destination: "sonatype",
				Status:      publish.StatusFailure,
				Counted:     true,
				Category:    ferrors.CategoryCredential,
				Message:     "missing credentials for sonatype: sonatypeUser (env SONATYPE_USER)",
				Hint:        "set property sonatypeUser or env SONATYPE_USER",
			},
			{Destination: "local", Status: publish.StatusSuccess, Counted: false, Attempts: 4},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for raw, want := range map[string]Format{"": FormatText, "JSON": FormatJSON, " markdown ": FormatMarkdown, "html": FormatHTML} {
		got, err := ParseFormat(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("yaml")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResult(t), FormatText))
	out := buf.String()
	assert.Contains(t, out, "Publication com.beust:jcommander:1.79")
	assert.Contains(t, out, "sonatype")
	assert.Contains(t, out, "failure")
	assert.Contains(t, out, "credential")
	assert.Contains(t, out, "set property sonatypeUser or env SONATYPE_USER")
	assert.Contains(t, out, "local (not counted)")
	assert.Contains(t, out, "Outcome: failed (1 succeeded, 1 failed, 0 skipped)")
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResult(t), FormatJSON))
	var decoded struct {
		RunID        string `json:"run_id"`
		Destinations []struct {
			Destination string `json:"destination"`
			Status      string `json:"status"`
			ErrorKind   string `json:"error_kind"`
			Hint        string `json:"hint"`
		} `json:"destinations"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "2b7e0f3c-run", decoded.RunID)
	assert.Equal(t, "credential", decoded.Destinations[0].ErrorKind)
	assert.Equal(t, "success", decoded.Destinations[1].Status)
}

func TestRenderMarkdownAndHTML(t *testing.T) {
	var md bytes.Buffer
	require.NoError(t, Render(&md, sampleResult(t), FormatMarkdown))
	assert.Contains(t, md.String(), "| Destination | Status | Error kind | Attempts | Duration | Hint |")
	assert.Contains(t, md.String(), "| sonatype | failure | credential |")
	assert.Contains(t, md.String(), "## Notes")

	var html bytes.Buffer
	require.NoError(t, Render(&html, sampleResult(t), FormatHTML))
	out := html.String()
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>sonatype</td>")
	assert.Contains(t, out, "<title>Publication com.beust:jcommander:1.79</title>")
}

func TestRenderPlan(t *testing.T) {
	coord, err := coordinate.New("com.beust", "jcommander", "1.80-SNAPSHOT")
	require.NoError(t, err)
	plan := &publish.Plan{
		RunID:      "run",
		Coordinate: coord,
		Artifacts: &artifacts.Set{Coordinate: coord, Artifacts: []artifacts.Artifact{
			{Kind: artifacts.KindPrimary, Extension: "jar", Size: 10, SHA256: "0123456789abcdef"},
		}},
		Destinations: []publish.DestinationPlan{{
			Destination:        router.Destination{Name: "local", URL: "file://build/repo"},
			SigningBypassed:    true,
			ChecksumAlgorithms: []config.ChecksumAlgorithm{config.ChecksumMD5, config.ChecksumSHA1},
			Groups:             []publish.UploadGroup{{Files: make([]publish.PlannedFile, 3)}},
			Metadata:           make([]publish.PlannedFile, 3),
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, RenderPlan(&buf, plan, FormatText))
	out := buf.String()
	assert.Contains(t, out, "Plan com.beust:jcommander:1.80-SNAPSHOT")
	assert.Contains(t, out, "bypassed")
	assert.Contains(t, out, "md5,sha1")
	assert.Contains(t, out, "com/beust/jcommander/1.80-SNAPSHOT/jcommander-1.80-SNAPSHOT.jar")
	assert.Contains(t, out, "sha256 0123456789ab")
}

func TestRenderHistory(t *testing.T) {
	var empty bytes.Buffer
	require.NoError(t, RenderHistory(&empty, nil, FormatText))
	assert.Contains(t, empty.String(), "no publications recorded")

	var js bytes.Buffer
	require.NoError(t, RenderHistory(&js, nil, FormatJSON))
	assert.JSONEq(t, "[]", js.String())

	entries := []ledger.Entry{{
		GroupID: "com.beust", ArtifactID: "jcommander", Version: "1.79", Destination: "sonatype",
		Status: ledger.StatusSuccess, RunID: "abcdef0123456789", RecordedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	var md bytes.Buffer
	require.NoError(t, RenderHistory(&md, entries, FormatMarkdown))
	assert.Contains(t, md.String(), "# Publication history com.beust:jcommander")
	assert.Contains(t, md.String(), "| 2026-01-02T03:04:05Z | 1.79 | sonatype | success |  | abcdef012345 |")
}

// Package report renders publication results, plans and ledger history for
// terminals, machines and documents.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/ledger"
	"git.home.luguber.info/inful/relpub/internal/publish"
)

// Format selects an output encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatJSON, FormatMarkdown, FormatHTML}

// ParseFormat accepts a format name case-insensitively; empty means text.
func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(raw)))
	if f == "" {
		return FormatText, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", ferrors.ValidationError(fmt.Sprintf("invalid report format %q, valid options: %v", raw, Formats)).Build()
}

// table is the intermediate form every renderer starts from.
type table struct {
	title   string
	summary []string
	header  []string
	rows    [][]string
	notes   []string
}

// Render writes a publication result.
func Render(w io.Writer, res *publish.Result, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, res)
	}
	return renderTable(w, resultTable(res), format)
}

// RenderPlan writes a publication plan.
func RenderPlan(w io.Writer, plan *publish.Plan, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, plan)
	}
	return renderTable(w, planTable(plan), format)
}

// RenderHistory writes ledger entries.
func RenderHistory(w io.Writer, entries []ledger.Entry, format Format) error {
	if format == FormatJSON {
		if entries == nil {
			entries = []ledger.Entry{}
		}
		return writeJSON(w, entries)
	}
	return renderTable(w, historyTable(entries), format)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(w io.Writer, t table, format Format) error {
	switch format {
	case FormatText, "":
		_, err := io.WriteString(w, textTable(t))
		return err
	case FormatMarkdown:
		_, err := io.WriteString(w, markdownTable(t))
		return err
	case FormatHTML:
		return htmlTable(w, t)
	default:
		return ferrors.ValidationError(fmt.Sprintf("unsupported report format %q", format)).Build()
	}
}

func resultTable(res *publish.Result) table {
	outcome := "succeeded"
	if !res.Succeeded() {
		outcome = "failed"
	}
	t := table{
		title: "Publication " + res.Coordinate.String(),
		summary: []string{
			"Run: " + res.RunID,
			"Classification: " + res.Coordinate.Classification.String(),
			fmt.Sprintf("Outcome: %s (%d succeeded, %d failed, %d skipped) in %s", outcome,
				res.Count(publish.StatusSuccess), res.Count(publish.StatusFailure), res.Count(publish.StatusSkipped),
				res.Duration.Round(time.Millisecond)),
		},
		header: []string{"Destination", "Status", "Error kind", "Attempts", "Duration", "Hint"},
	}
	for _, d := range res.Destinations {
		name := d.Destination
		if !d.Counted {
			name += " (not counted)"
		}
		t.rows = append(t.rows, []string{
			name,
			string(d.Status),
			string(d.Category),
			fmt.Sprint(d.Attempts),
			d.Duration.Round(time.Millisecond).String(),
			d.Hint,
		})
		if d.Status != publish.StatusSuccess && d.Message != "" {
			t.notes = append(t.notes, d.Destination+": "+d.Message)
		}
	}
	return t
}

func planTable(plan *publish.Plan) table {
	t := table{
		title: "Plan " + plan.Coordinate.String(),
		summary: []string{
			"Run: " + plan.RunID,
			"Classification: " + plan.Coordinate.Classification.String(),
			fmt.Sprintf("Destinations: %d, files: %d", len(plan.Destinations), plan.FileCount()),
		},
		header: []string{"Destination", "URL", "Sign", "Counted", "Checksums", "Files"},
	}
	for _, dp := range plan.Destinations {
		algos := make([]string, len(dp.ChecksumAlgorithms))
		for i, a := range dp.ChecksumAlgorithms {
			algos[i] = string(a)
		}
		files := len(dp.Metadata)
		for _, g := range dp.Groups {
			files += len(g.Files)
		}
		sign := yesNo(dp.Sign)
		if dp.SigningBypassed {
			sign = "bypassed"
		}
		t.rows = append(t.rows, []string{
			dp.Destination.Name,
			dp.Destination.URL,
			sign,
			yesNo(dp.Counted),
			strings.Join(algos, ","),
			fmt.Sprint(files),
		})
	}
	if plan.Artifacts != nil {
		for _, a := range plan.Artifacts.Artifacts {
			t.notes = append(t.notes, fmt.Sprintf("%s: %s (%d bytes, sha256 %s)",
				a.Kind, a.RemotePath(plan.Coordinate), a.Size, short(a.SHA256)))
		}
	}
	return t
}

func historyTable(entries []ledger.Entry) table {
	t := table{
		title:  "Publication history",
		header: []string{"Recorded", "Version", "Destination", "Status", "Error kind", "Run"},
	}
	if len(entries) > 0 {
		t.title += " " + entries[0].GroupID + ":" + entries[0].ArtifactID
	}
	for _, e := range entries {
		t.rows = append(t.rows, []string{
			e.RecordedAt.UTC().Format(time.RFC3339),
			e.Version,
			e.Destination,
			e.Status,
			e.Category,
			short(e.RunID),
		})
	}
	if len(entries) == 0 {
		t.notes = append(t.notes, "no publications recorded")
	}
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AAAAAA"))
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	statusStyle = map[string]lipgloss.Style{
		string(publish.StatusSuccess): lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		string(publish.StatusFailure): lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		string(publish.StatusSkipped): lipgloss.NewStyle().Foreground(lipgloss.Color("#E0B050")),
	}
)

func textTable(t table) string {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string, style func(i int, cell string) lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = style(i, cell).Width(widths[i]).Render(cell)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	lines := []string{line(t.header, func(int, string) lipgloss.Style { return headerStyle })}
	for _, row := range t.rows {
		lines = append(lines, line(row, func(i int, cell string) lipgloss.Style {
			if s, ok := statusStyle[cell]; ok && t.header[i] == "Status" {
				return s
			}
			return lipgloss.NewStyle()
		}))
	}

	blocks := []string{titleStyle.Render(t.title)}
	blocks = append(blocks, t.summary...)
	blocks = append(blocks, boxStyle.Render(strings.Join(lines, "\n")))
	for _, n := range t.notes {
		blocks = append(blocks, noteStyle.Render(n))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...) + "\n"
}

func markdownTable(t table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.title)
	for _, s := range t.summary {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	if len(t.summary) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("| " + strings.Join(t.header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(t.header)) + "\n")
	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = escapeCell(c)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if len(t.notes) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, n := range t.notes {
			fmt.Fprintf(&b, "- %s\n", escapeCell(n))
		}
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func htmlTable(w io.Writer, t table) error {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var body bytes.Buffer
	if err := md.Convert([]byte(markdownTable(t)), &body); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render HTML report").Build()
	}
	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(t.title), body.String())
	return err
}

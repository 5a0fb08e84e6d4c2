// Package output provides styled terminal rendering of sync activity using
// lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	bannerStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)
	statusStyles = map[ideasync.Status]lipgloss.Style{
		ideasync.StatusPending: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		ideasync.StatusSyncing: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		ideasync.StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		ideasync.StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
	categoryStyles = map[ideasync.Category]lipgloss.Style{
		ideasync.CategoryMonth:   lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		ideasync.CategoryResults: lipgloss.NewStyle().Foreground(lipgloss.Color("36")),
		ideasync.CategoryProduct: lipgloss.NewStyle().Foreground(lipgloss.Color("135")),
	}
)

// Writer is where the print helpers write. Tests may swap it.
var Writer io.Writer = os.Stdout

func Success(format string, args ...interface{}) {
	fmt.Fprintln(Writer, successStyle.Render(fmt.Sprintf(format, args...)))
}

func Error(format string, args ...interface{}) {
	fmt.Fprintln(Writer, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

func Warning(format string, args ...interface{}) {
	fmt.Fprintln(Writer, warningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

func Info(format string, args ...interface{}) {
	fmt.Fprintln(Writer, fmt.Sprintf(format, args...))
}

func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(Writer, string(data))
	return nil
}

// FormatStatus formats a status with color
func FormatStatus(s ideasync.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

func FormatCategory(c ideasync.Category) string {
	style, ok := categoryStyles[c]
	if !ok {
		return string(c)
	}
	return style.Render(string(c))
}

// FormatRecord renders one attempt on a single line, followed by its error
// on an indented line when it failed.
func FormatRecord(record ideasync.AttemptRecord) string {
	parts := []string{
		FormatStatus(record.Status),
		FormatCategory(record.Category),
		record.Text,
		subtleStyle.Render(FormatTimeAgo(record.UpdatedAt)),
	}
	line := strings.Join(parts, "  ")
	if record.Error != "" {
		line += "\n    " + errorStyle.Render(record.Error)
	}
	return line
}

// FormatActivity renders the log newest first under an item count header.
func FormatActivity(records []ideasync.AttemptRecord) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Sync Activity Feed"))
	sb.WriteString("  ")
	sb.WriteString(subtleStyle.Render(fmt.Sprintf("%d items logged", len(records))))
	sb.WriteString("\n")
	if len(records) == 0 {
		sb.WriteString(subtleStyle.Render("No activity yet. Add ideas to the inbox and sync!"))
		sb.WriteString("\n")
		return sb.String()
	}
	for _, record := range records {
		sb.WriteString(FormatRecord(record))
		sb.WriteString("\n")
	}
	return sb.String()
}

func FormatSummary(summary ideasync.Summary) string {
	keys := make([]string, 0, len(summary.Categories))
	for _, category := range summary.Categories {
		keys = append(keys, string(category))
	}
	line := fmt.Sprintf("%d synced, %d failed", summary.Succeeded, summary.Failed)
	if len(keys) > 0 {
		line += " " + subtleStyle.Render("("+strings.Join(keys, ", ")+")")
	}
	if !summary.FinishedAt.IsZero() && !summary.StartedAt.IsZero() {
		line += " " + subtleStyle.Render(summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond).String())
	}
	if summary.Failed > 0 {
		return warningStyle.Render(line)
	}
	return successStyle.Render(line)
}

// NetworkWarningBanner is shown while the sticky network advisory is raised.
func NetworkWarningBanner() string {
	body := strings.Join([]string{
		titleStyle.Render("Connection Blocked"),
		"A network error occurred while reaching Notion. If it persists:",
		"  - verify the integration secret has access to the database",
		"  - ensure the database ID is correct",
		"  - check that the relay URL is reachable from this machine",
	}, "\n")
	return bannerStyle.Render(warningStyle.Render(body))
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/manifest"
)

// Theme holds the styles of the command output.
type Theme struct {
	TitleStyle   lipgloss.Style
	NameStyle    lipgloss.Style
	DimStyle     lipgloss.Style
	SuccessStyle lipgloss.Style
	WarnStyle    lipgloss.Style
	ErrorStyle   lipgloss.Style
}

func DefaultTheme() *Theme {
	return &Theme{
		TitleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		NameStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
		DimStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		SuccessStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		WarnStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		ErrorStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}

var theme = DefaultTheme()

func printTitle(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, theme.TitleStyle.Render(fmt.Sprintf(format, args...)))
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, theme.SuccessStyle.Render(fmt.Sprintf(format, args...)))
}

func printWarn(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, theme.WarnStyle.Render("warning: "+fmt.Sprintf(format, args...)))
}

// printEntries renders entries as aligned name, size and date columns.
func printEntries(w io.Writer, entries []manifest.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, theme.DimStyle.Render("  (none)"))
		return
	}

	width := 0
	for _, e := range entries {
		width = max(width, lipgloss.Width(e.Name))
	}

	for _, e := range entries {
		name := e.Name + strings.Repeat(" ", width-lipgloss.Width(e.Name))
		fmt.Fprintf(w, "  %s  %10s  %s\n",
			theme.NameStyle.Render(name),
			formatSize(e.Size),
			theme.DimStyle.Render(formatTime(e.LastModified)),
		)
	}
}

func formatSize(size int64) string {
	if size < 0 {
		return "-"
	}

	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatTime(millis int64) string {
	if millis == data.UnknownTime {
		return "unknown"
	}
	return data.FromMillis(millis).UTC().Format(time.DateTime)
}

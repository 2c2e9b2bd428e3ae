package cli

import (
	"fmt"
	"io"
	"strings"

	"faultline/models"
	"faultline/service"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

const bannerDefaultWidth = 60

var levelColors = map[models.Level]*color.Color{
	models.LevelCritical: color.New(color.FgRed, color.Bold),
	models.LevelError:    color.New(color.FgRed),
	models.LevelWarn:     color.New(color.FgYellow),
	models.LevelInfo:     color.New(color.FgCyan),
}

// PrintBanner renders a box-drawing banner around title. The box grows to
// fit long titles.
func PrintBanner(w io.Writer, title string) {
	inner := bannerDefaultWidth - 2
	if len(title)+2 > inner {
		inner = len(title) + 2
	}

	topBottom := strings.Repeat("═", inner)
	fmt.Fprintf(w, "╔%s╗\n", topBottom)
	fmt.Fprintf(w, "║%s║\n", padCenter(title, inner))
	fmt.Fprintf(w, "╚%s╝\n", topBottom)
}

func padCenter(text string, width int) string {
	if len(text) >= width {
		return text[:width]
	}
	padTotal := width - len(text)
	left := padTotal / 2
	return strings.Repeat(" ", left) + text + strings.Repeat(" ", padTotal-left)
}

func colorLevel(l models.Level) string {
	if c, ok := levelColors[l]; ok {
		return c.Sprint(string(l))
	}
	return string(l)
}

// PrintStats renders a stats report as a summary followed by a table of
// recent errors.
func PrintStats(w io.Writer, r *service.StatsReport) error {
	PrintBanner(w, fmt.Sprintf("Errors in the last %d minutes", r.WindowMinutes))

	fmt.Fprintf(w, "Total:    %d\n", r.TotalErrors)
	fmt.Fprintf(w, "Rate:     %.2f/min\n", r.ErrorRate)
	fmt.Fprintf(w, "Critical: %d  Error: %d  Warn: %d  Info: %d\n",
		r.CriticalCount, r.ErrorCount, r.WarnCount, r.InfoCount)
	if r.AlertThresholdExceeded {
		fmt.Fprintln(w, color.New(color.FgRed, color.Bold).Sprint("ALERT: error rate above threshold"))
	}

	if len(r.RecentErrors) == 0 {
		fmt.Fprintln(w, "No recent errors.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Time", "Level", "Service", "Count", "Message", "URL")
	for _, e := range r.RecentErrors {
		if err := table.Append(
			e.Timestamp,
			colorLevel(e.Level),
			string(e.Service),
			fmt.Sprint(e.Count),
			truncate(e.Message, 60),
			truncate(e.Context.URL, 40),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintHealth renders a health report
func PrintHealth(w io.Writer, h *HealthReport) {
	status := color.GreenString(h.Status)
	if h.Status != "healthy" {
		status = color.RedString(h.Status)
	}
	fmt.Fprintf(w, "Status:  %s\n", status)
	fmt.Fprintf(w, "Version: %s\n", h.Version)
	for _, c := range h.Checks {
		fmt.Fprintf(w, "  %-10s %-10s %4dms  %s\n", c.Service, c.Status, c.LatencyMS, c.Message)
	}
	if h.LastCleanup != nil {
		fmt.Fprintf(w, "Last cleanup: %s (%d deleted)\n", h.LastCleanup.At, h.LastCleanup.DeletedCount)
	}
}

// PrintCleanup renders the outcome of a cleanup call
func PrintCleanup(w io.Writer, r *CleanupResponse) {
	fmt.Fprintf(w, "Deleted %d record(s) older than %d days at %s\n", r.DeletedCount, r.RetentionDays, r.Timestamp)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

// PrintProfiles lists saved profiles, marking the default with '*'
func PrintProfiles(w io.Writer, p *Profiles) error {
	names := p.Names()
	if len(names) == 0 {
		fmt.Fprintln(w, "No profiles saved.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("", "Name", "URL", "Description")
	for _, name := range names {
		marker := ""
		if name == p.Default {
			marker = "*"
		}
		prof := p.Profiles[name]
		if err := table.Append(marker, name, prof.URL, prof.Description); err != nil {
			return err
		}
	}
	return table.Render()
}

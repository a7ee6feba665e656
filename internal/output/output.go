// Package output renders entities and sync results for the terminal using
// lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/runstore"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/tracker"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	priorityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
)

// Success prints a success message
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, warningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// JSON outputs v as indented JSON.
func JSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// FormatEntityShort formats an entity on one line.
func FormatEntityShort(e *models.Entity) string {
	parts := []string{
		titleStyle.Render(e.ID),
		statusStyle.Render("[" + e.Status + "]"),
		priorityStyle.Render("[" + e.Priority + "]"),
		e.Title,
	}
	if e.Linked() {
		parts = append(parts, subtleStyle.Render(fmt.Sprintf("#%d", e.Remote.ID)))
	} else {
		parts = append(parts, subtleStyle.Render("(unlinked)"))
	}
	if e.Repository != nil {
		parts = append(parts, subtleStyle.Render(e.Repository.FullName))
	}
	return strings.Join(parts, " ")
}

// Entities prints one line per entity.
func Entities(w io.Writer, list []*models.Entity) {
	if len(list) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("no entities"))
		return
	}
	for _, e := range list {
		fmt.Fprintln(w, FormatEntityShort(e))
	}
}

// SyncResult prints the counters of a batch and one line per failed key.
func SyncResult(w io.Writer, r models.SyncResult) {
	line := fmt.Sprintf("created %d  updated %d  unchanged %d  errors %d",
		r.Created, r.Updated, r.Unchanged, r.Errors)
	if r.Failed() {
		fmt.Fprintln(w, warningStyle.Render(line))
	} else {
		fmt.Fprintln(w, successStyle.Render(line))
	}
	for _, key := range r.FailedKeys() {
		fmt.Fprintf(w, "  %s %s\n", errorStyle.Render(key), subtleStyle.Render(r.ErrorDetails[key]))
	}
}

// Run prints a recorded run with its result.
func Run(w io.Writer, run *runstore.Run) {
	header := fmt.Sprintf("%s %s", run.Kind, run.ID)
	if run.Target != "" {
		header += " (" + run.Target + ")"
	}
	fmt.Fprintf(w, "%s %s %s\n",
		titleStyle.Render(header),
		statusStyle.Render("["+string(run.Status)+"]"),
		subtleStyle.Render(run.Duration().Round(1e6).String()))
	if run.Result != nil {
		SyncResult(w, *run.Result)
	}
	if run.Error != "" {
		Error(w, "%s", run.Error)
	}
}

// DispatchReport prints what a local change pushed to the remote.
func DispatchReport(w io.Writer, r tracker.DispatchReport) {
	if len(r.Events) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("no changes"))
		return
	}
	for _, ev := range r.Events {
		fmt.Fprintf(w, "%s %s: %s -> %s\n",
			titleStyle.Render(ev.Entity.String()), ev.Field, ev.Previous, ev.New)
	}
	if r.Failed == 0 {
		Success(w, "%d change(s) pushed", r.Dispatched)
		return
	}
	Warning(w, "%d change(s) saved locally but not pushed", r.Failed)
	for field, msg := range r.Errors {
		fmt.Fprintf(w, "  %s %s\n", errorStyle.Render(string(field)), subtleStyle.Render(msg))
	}
}

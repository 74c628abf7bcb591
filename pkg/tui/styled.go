// Package tui renders the results of a remediation run for the terminal.
package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/project-copacetic/autofix/pkg/types"
	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"golang.org/x/term"
)

var (
	// Style colors
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	success   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#FFA500", Dark: "#FFB347"}
	errorClr  = lipgloss.AdaptiveColor{Light: "#FF5555", Dark: "#FF6666"}
	dim       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}

	// Text styles (no boxes)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	successStyle = lipgloss.NewStyle().Foreground(success)
	warningStyle = lipgloss.NewStyle().Foreground(warning)
	errorStyle   = lipgloss.NewStyle().Foreground(errorClr).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(dim)
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

// RunSummary is the outcome of one repository run.
type RunSummary struct {
	Patches []unversioned.AppliedPatch
	Skipped int
	DryRun  bool
	Outputs []string
}

// RenderPatches renders one line per applied patch with colors.
func RenderPatches(patches []unversioned.AppliedPatch) string {
	if len(patches) == 0 {
		return ""
	}
	if !isTerminal() {
		return renderPatchesPlain(patches)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("🔧 Applied Fixes") + "\n")
	for _, p := range patches {
		b.WriteString("   ")
		b.WriteString(boldStyle.Render(p.Package))
		b.WriteString(" ")
		b.WriteString(dimStyle.Render(p.From))
		b.WriteString(" → ")
		b.WriteString(successStyle.Render(p.To))
		b.WriteString(" ")
		b.WriteString(dimStyle.Render("(" + patchLocation(p) + ")"))
		b.WriteString("\n")
	}
	return b.String()
}

func renderPatchesPlain(patches []unversioned.AppliedPatch) string {
	var b strings.Builder
	for _, p := range patches {
		b.WriteString(fmt.Sprintf("%-20s %-30s %s -> %s (%s)\n", p.Kind, p.Package, p.From, p.To, patchLocation(p)))
	}
	return b.String()
}

// patchLocation names where a patch was written.
func patchLocation(p unversioned.AppliedPatch) string {
	switch p.Kind {
	case unversioned.PatchManifest:
		return "package.json " + p.Section
	case unversioned.PatchParentRange:
		return p.Parent
	default:
		return p.Key
	}
}

// RenderRunSummary renders the totals of a run with colors.
func RenderRunSummary(s RunSummary) string {
	if !isTerminal() {
		return renderRunSummaryPlain(s)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("📋 Summary") + "\n")
	b.WriteString("   ")
	b.WriteString(successStyle.Render(fmt.Sprintf("✓ %d patch(es) applied", len(s.Patches))))
	b.WriteString("\n")
	if s.Skipped > 0 {
		b.WriteString("   ")
		b.WriteString(warningStyle.Render(fmt.Sprintf("⊘ %d fix(es) skipped", s.Skipped)))
		b.WriteString("\n")
	}
	if s.DryRun {
		b.WriteString("   ")
		b.WriteString(dimStyle.Render("Dry run: nothing written"))
		b.WriteString("\n")
		return b.String()
	}
	for _, out := range s.Outputs {
		b.WriteString("   ")
		b.WriteString(dimStyle.Render("Wrote "))
		b.WriteString(boldStyle.Render(out))
		b.WriteString("\n")
	}
	return b.String()
}

func renderRunSummaryPlain(s RunSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d patch(es) applied", len(s.Patches)))
	if s.Skipped > 0 {
		b.WriteString(fmt.Sprintf(", %d fix(es) skipped", s.Skipped))
	}
	b.WriteString("\n")
	if s.DryRun {
		b.WriteString("Dry run: nothing written\n")
		return b.String()
	}
	for _, out := range s.Outputs {
		b.WriteString(fmt.Sprintf("Wrote %s\n", out))
	}
	return b.String()
}

// RenderRepoSummary renders the per-repository results of a bulk run with colors.
func RenderRepoSummary(summaries []types.RepoSummary) string {
	if !isTerminal() {
		return renderRepoSummaryPlain(summaries)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("📋 Summary") + "\n")

	for _, s := range summaries {
		b.WriteString("   ")
		b.WriteString(formatStatusStyled(s.Status))
		b.WriteString(fmt.Sprintf(" %-16s %-3d ", s.Name, s.Patches))
		b.WriteString(dimStyle.Render(s.Path))
		if s.Error != "" {
			b.WriteString(" ")
			b.WriteString(dimStyle.Render(s.Error))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatStatusStyled(status string) string {
	switch status {
	case "Patched":
		return successStyle.Render("✓ Patched    ")
	case "Unchanged":
		return successStyle.Render("✓ Unchanged  ")
	case "Failed":
		return errorStyle.Render("✗ Failed     ")
	default:
		return fmt.Sprintf("  %-12s", status)
	}
}

func renderRepoSummaryPlain(summaries []types.RepoSummary) string {
	var b strings.Builder
	for _, s := range summaries {
		statusIcon := getStatusIcon(s.Status)
		b.WriteString(fmt.Sprintf("%s %-16s %-10s %-3d %s", statusIcon, s.Name, s.Status, s.Patches, s.Path))
		if s.Error != "" {
			b.WriteString(" " + s.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func getStatusIcon(status string) string {
	switch status {
	case "Patched", "Unchanged":
		return "✓"
	case "Failed":
		return "✗"
	default:
		return " "
	}
}

// ErrorInfo contains information about an error to display.
type ErrorInfo struct {
	Title   string
	Message string
	Hint    string
}

// ErrorInfoFor describes a run-fatal error, with a hint for the known failure kinds.
func ErrorInfoFor(err error) ErrorInfo {
	info := ErrorInfo{Title: "Auto-fix failed", Message: err.Error()}
	switch {
	case errors.Is(err, types.ErrMalformedRange):
		info.Hint = "The audit report carries a patched range that is not a valid semver range; regenerate it or ignore the advisory with --ignore"
	case errors.Is(err, types.ErrNoVersionsAvailable):
		info.Hint = "The registry returned no versions; check --registry-url or try --registry yarn"
	case errors.Is(err, types.ErrOutputMissing):
		info.Hint = "Check that the repository directory is writable"
	case errors.Is(err, types.ErrUnexpected):
		info.Hint = "Rerun with --debug and report the log"
	}
	return info
}

// RenderError renders an error message with colors.
func RenderError(info ErrorInfo) string {
	if !isTerminal() {
		return renderErrorPlain(info)
	}

	var b strings.Builder
	b.WriteString(errorStyle.Render("❌ "+info.Title) + "\n")
	b.WriteString("   ")
	b.WriteString(errorStyle.Render("✗ " + info.Message))
	b.WriteString("\n")

	if info.Hint != "" {
		b.WriteString("   ")
		b.WriteString(dimStyle.Render("💡 "+info.Hint) + "\n")
	}
	return b.String()
}

func renderErrorPlain(info ErrorInfo) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Error: %s\n", info.Title))
	b.WriteString(fmt.Sprintf("  %s\n", info.Message))
	if info.Hint != "" {
		b.WriteString(fmt.Sprintf("  Hint: %s\n", info.Hint))
	}
	return b.String()
}

// isTerminal checks if stdout or stderr is a terminal.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) || term.IsTerminal(int(os.Stderr.Fd()))
}

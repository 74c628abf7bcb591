package tui

import (
	"fmt"
	"testing"

	"github.com/project-copacetic/autofix/pkg/types"
	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"github.com/stretchr/testify/assert"
)

var patches = []unversioned.AppliedPatch{
	{Kind: unversioned.PatchManifest, Package: "minimist", From: "^1.2.0", To: "^1.2.6", Section: "dependencies"},
	{Kind: unversioned.PatchEntry, Package: "lodash", From: "4.17.0", To: "4.17.21", Key: "lodash@^4.17.21"},
	{Kind: unversioned.PatchParentRange, Package: "lodash", From: "^4.17.0", To: "^4.17.21", Parent: "pkgA@^1.0.0"},
}

func withTerminal(t *testing.T, tty bool) {
	t.Helper()
	orig := isTerminal
	isTerminal = func() bool { return tty }
	t.Cleanup(func() { isTerminal = orig })
}

func TestRenderPatches(t *testing.T) {
	result := renderPatchesPlain(patches)

	assert.Contains(t, result, "minimist")
	assert.Contains(t, result, "^1.2.0 -> ^1.2.6 (package.json dependencies)")
	assert.Contains(t, result, "4.17.0 -> 4.17.21 (lodash@^4.17.21)")
	assert.Contains(t, result, "(pkgA@^1.0.0)")
}

func TestRenderPatchesStyled(t *testing.T) {
	withTerminal(t, true)

	result := RenderPatches(patches)

	assert.Contains(t, result, "Applied Fixes")
	assert.Contains(t, result, "lodash")
	assert.Contains(t, result, "4.17.21")
	assert.Empty(t, RenderPatches(nil))
}

func TestRenderRunSummary(t *testing.T) {
	result := renderRunSummaryPlain(RunSummary{
		Patches: patches,
		Skipped: 2,
		Outputs: []string{"package-autofixed.json", "yarn-autofixed.lock"},
	})

	assert.Contains(t, result, "3 patch(es) applied, 2 fix(es) skipped")
	assert.Contains(t, result, "Wrote package-autofixed.json")
	assert.Contains(t, result, "Wrote yarn-autofixed.lock")
}

func TestRenderRunSummaryDryRun(t *testing.T) {
	result := renderRunSummaryPlain(RunSummary{Patches: patches, DryRun: true, Outputs: []string{"ignored"}})

	assert.Contains(t, result, "3 patch(es) applied\n")
	assert.Contains(t, result, "Dry run: nothing written")
	assert.NotContains(t, result, "ignored")
}

func TestRenderRunSummaryStyled(t *testing.T) {
	withTerminal(t, true)

	result := RenderRunSummary(RunSummary{Patches: patches, Skipped: 1, Outputs: []string{"yarn-autofixed.lock"}})

	assert.Contains(t, result, "Summary")
	assert.Contains(t, result, "3 patch(es) applied")
	assert.Contains(t, result, "1 fix(es) skipped")
	assert.Contains(t, result, "yarn-autofixed.lock")
}

func TestRenderRepoSummary(t *testing.T) {
	summaries := []types.RepoSummary{
		{Name: "web", Path: "/src/web", Status: "Patched", Patches: 3},
		{Name: "api", Path: "/src/api", Status: "Failed", Error: "failed to read lockfile"},
	}

	result := renderRepoSummaryPlain(summaries)
	assert.Contains(t, result, "✓ web")
	assert.Contains(t, result, "/src/web")
	assert.Contains(t, result, "✗ api")
	assert.Contains(t, result, "failed to read lockfile")

	withTerminal(t, true)
	styled := RenderRepoSummary(summaries)
	assert.Contains(t, styled, "Patched")
	assert.Contains(t, styled, "Failed")
	assert.Contains(t, styled, "/src/api")
}

func TestRenderError(t *testing.T) {
	info := ErrorInfo{
		Title:   "Auto-fix failed",
		Message: "left-pad: registry did not provide a list of available package versions",
		Hint:    "Check the registry",
	}

	result := renderErrorPlain(info)

	assert.Contains(t, result, "Auto-fix failed")
	assert.Contains(t, result, "left-pad")
	assert.Contains(t, result, "Hint: Check the registry")
}

func TestRenderErrorNoHint(t *testing.T) {
	info := ErrorInfo{
		Title:   "Auto-fix failed",
		Message: "Some error occurred",
		Hint:    "",
	}

	result := renderErrorPlain(info)

	assert.Contains(t, result, "Auto-fix failed")
	assert.Contains(t, result, "Some error occurred")
	assert.NotContains(t, result, "Hint:")
}

func TestErrorInfoFor(t *testing.T) {
	tests := []struct {
		err      error
		wantHint string
	}{
		{fmt.Errorf("advisory 1: %w", types.ErrMalformedRange), "--ignore"},
		{fmt.Errorf("left-pad: %w", types.ErrNoVersionsAvailable), "--registry-url"},
		{fmt.Errorf("%w: yarn-autofixed.lock", types.ErrOutputMissing), "writable"},
		{fmt.Errorf("%w: boom", types.ErrUnexpected), "--debug"},
		{fmt.Errorf("plain failure"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			info := ErrorInfoFor(tt.err)
			assert.Equal(t, tt.err.Error(), info.Message)
			if tt.wantHint == "" {
				assert.Empty(t, info.Hint)
				return
			}
			assert.Contains(t, info.Hint, tt.wantHint)
		})
	}
}

func TestGetStatusIcon(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"Patched", "✓"},
		{"Unchanged", "✓"},
		{"Failed", "✗"},
		{"Unknown", " "},
		{"", " "},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got := getStatusIcon(tt.status)
			assert.Equal(t, tt.want, got)
		})
	}
}

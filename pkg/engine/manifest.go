package engine

import (
	"context"
	"fmt"

	"github.com/project-copacetic/autofix/pkg/manifest"
	"github.com/project-copacetic/autofix/pkg/policy"
	"github.com/project-copacetic/autofix/pkg/types"
	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	log "github.com/sirupsen/logrus"
)

// PatchManifest computes the manifest changes for the direct findings. Unlike every other
// failure, a malformed patched range or a registry answer without any version list aborts the
// whole run: the returned error is then non-nil and the changes must be discarded.
func (e *Engine) PatchManifest(ctx context.Context, m *manifest.Manifest, findings []unversioned.Finding) ([]manifest.Change, Report, error) {
	var report Report
	var changes []manifest.Change
	changed := map[string]bool{}

	for _, f := range findings {
		if !f.IsDirect() {
			continue
		}
		if err := policy.ValidateRange(f.Target); err != nil {
			return nil, report, fmt.Errorf("advisory %d for %s: %w", f.ID, f.Module, err)
		}

		info, err := e.Registry.Info(ctx, f.Module, "")
		if err != nil {
			report.warn("skipping %s: %w", f.Module, err)
			continue
		}
		if len(info.Versions) == 0 {
			return nil, report, fmt.Errorf("%s: %w", f.Module, types.ErrNoVersionsAvailable)
		}

		safe, ok := policy.SelectUpgradeVersion(f.Target, info.Versions)
		if !ok {
			log.Debugf("No published version of %s satisfies %s", f.Module, f.Target)
			continue
		}
		newRange := caret(safe)

		for _, section := range e.Dialect.ManifestSections {
			current, ok := m.Lookup(section, f.Module)
			if !ok || changed[section+"\x00"+f.Module] {
				continue
			}
			switch {
			case current == newRange || current == safe:
				continue
			case !policy.IsUpgrade(current, safe):
				log.Debugf("Not lowering %s %q in %s to %s", f.Module, current, section, newRange)
				continue
			case policy.IsMajorBump(current, safe):
				log.Infof("Skipping %s in %s: %s -> %s crosses a major version", f.Module, section, current, safe)
				continue
			}

			changed[section+"\x00"+f.Module] = true
			changes = append(changes, manifest.Change{Section: section, Name: f.Module, Range: newRange})
			log.Infof("Updated %s in %s from %q to %q", f.Module, section, current, newRange)
			report.add(unversioned.AppliedPatch{
				Kind:        unversioned.PatchManifest,
				Package:     f.Module,
				From:        current,
				To:          newRange,
				Section:     section,
				AdvisoryIDs: []int{f.ID},
			})
		}
	}

	return changes, report, nil
}

// Package engine computes and applies vulnerability fixes to a yarn manifest and lockfile.
package engine

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/project-copacetic/autofix/pkg/manifest"
	"github.com/project-copacetic/autofix/pkg/policy"
	"github.com/project-copacetic/autofix/pkg/registry"
	"github.com/project-copacetic/autofix/pkg/resolver"
	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"github.com/project-copacetic/autofix/pkg/yarnlock"
	log "github.com/sirupsen/logrus"
)

// Dialect describes the manifest and lockfile shape the engine works on.
type Dialect struct {
	Name string

	// Resolve selects the lockfile sections searched while walking dependency paths.
	Resolve resolver.Sections

	// References lists the lockfile sections whose ranges are rewritten once a target entry moved.
	References []yarnlock.Section

	// ManifestSections lists the manifest sections patched for direct dependencies.
	ManifestSections []string
}

// YarnClassic is the dialect of a package.json with a classic v1 yarn.lock.
func YarnClassic() Dialect {
	return Dialect{
		Name:    "yarn-classic",
		Resolve: resolver.DefaultSections(),
		References: []yarnlock.Section{
			yarnlock.Dependencies,
			yarnlock.OptionalDependencies,
			yarnlock.PeerDependencies,
		},
		ManifestSections: manifest.Sections,
	}
}

// Engine applies the version policy to manifest and lockfile findings.
type Engine struct {
	Registry registry.Client
	Dialect  Dialect
}

// New returns an engine querying client.
func New(client registry.Client, dialect Dialect) *Engine {
	return &Engine{Registry: client, Dialect: dialect}
}

// Report is the outcome of one pass: the changes applied and the problems that made the pass
// skip a fix. Warnings never invalidate the changes.
type Report struct {
	Patches  []unversioned.AppliedPatch
	Warnings *multierror.Error
}

// Err returns the aggregated warnings, or nil.
func (r *Report) Err() error {
	return r.Warnings.ErrorOrNil()
}

func (r *Report) warn(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	log.Warn(err)
	r.Warnings = multierror.Append(r.Warnings, err)
}

func (r *Report) add(p unversioned.AppliedPatch) {
	r.Patches = append(r.Patches, p)
}

// safeVersion returns the lowest published version of name satisfying patchedRange.
func (e *Engine) safeVersion(ctx context.Context, name, patchedRange string, report *Report) (string, bool) {
	info, err := e.Registry.Info(ctx, name, "")
	if err != nil {
		report.warn("skipping %s: %w", name, err)
		return "", false
	}
	v, ok := policy.SelectUpgradeVersion(patchedRange, info.Versions)
	if !ok {
		log.Debugf("No published version of %s satisfies %s", name, patchedRange)
	}
	return v, ok
}

// caret returns the range written for a safe version.
func caret(version string) string {
	return "^" + version
}

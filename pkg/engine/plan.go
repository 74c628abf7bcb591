package engine

import (
	"slices"

	"github.com/project-copacetic/autofix/pkg/resolver"
	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"github.com/project-copacetic/autofix/pkg/yarnlock"
	log "github.com/sirupsen/logrus"
)

// FixGroup is the set of findings that reach the same target entry through the same parent.
// Exactly one safe version is computed per group, from the first finding's patched range.
type FixGroup struct {
	Parent  string
	Target  string
	Section yarnlock.Section
	Range   string

	// Ranges holds every distinct patched range seen for the group, in first-seen order.
	Ranges      []string
	AdvisoryIDs []int
}

// Package returns the name of the vulnerable package.
func (g *FixGroup) Package() string {
	return yarnlock.PackageName(g.Target)
}

// PlanIndirect resolves the dependency path of every indirect finding and groups the findings by
// (parent, target). Findings whose path cannot be resolved are skipped.
func (e *Engine) PlanIndirect(lock *yarnlock.Lockfile, findings []unversioned.Finding) []*FixGroup {
	type groupKey struct{ parent, target string }

	var groups []*FixGroup
	index := map[groupKey]*FixGroup{}

	for _, f := range findings {
		if f.IsDirect() {
			continue
		}
		res := resolver.Resolve(lock, f.Path, e.Dialect.Resolve)
		last, ok := res.Last()
		if !ok {
			log.Debugf("Skipping advisory %d for %s: path %v not found in lockfile (hop %d)", f.ID, f.Module, f.Path, res.FailedHop)
			continue
		}

		k := groupKey{parent: last.Parent, target: last.Child}
		g, ok := index[k]
		if !ok {
			g = &FixGroup{
				Parent:  last.Parent,
				Target:  last.Child,
				Section: last.Section,
				Range:   f.Target,
			}
			index[k] = g
			groups = append(groups, g)
		}
		if !slices.Contains(g.Ranges, f.Target) {
			g.Ranges = append(g.Ranges, f.Target)
		}
		if !slices.Contains(g.AdvisoryIDs, f.ID) {
			g.AdvisoryIDs = append(g.AdvisoryIDs, f.ID)
		}
	}

	return groups
}

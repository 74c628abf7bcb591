package engine

import (
	"context"
	"strings"

	"github.com/project-copacetic/autofix/pkg/policy"
	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"github.com/project-copacetic/autofix/pkg/yarnlock"
	log "github.com/sirupsen/logrus"
)

// PassA moves the target entry of every group to its safe version: the entry's alias, version,
// resolved and integrity fields are rewritten. The input lockfile is not modified.
func (e *Engine) PassA(ctx context.Context, lock *yarnlock.Lockfile, groups []*FixGroup) (*yarnlock.Lockfile, Report) {
	out := lock.Clone()
	var report Report

	for _, g := range groups {
		if ctx.Err() != nil {
			report.warn("target pass interrupted: %w", ctx.Err())
			break
		}

		name := g.Package()
		safe, ok := e.safeVersion(ctx, name, g.Range, &report)
		if !ok {
			continue
		}

		entry, ok := out.FindByKey(g.Target)
		if !ok {
			log.Debugf("No lockfile entry is keyed %s anymore, skipping", g.Target)
			continue
		}

		current := entry.Version()
		switch {
		case current == safe:
			log.Debugf("%s is already at %s", entry.Key(), safe)
			continue
		case !policy.IsUpgrade(current, safe):
			log.Debugf("Not downgrading %s from %s to %s", entry.Key(), current, safe)
			continue
		case policy.IsMajorBump(current, safe):
			log.Infof("Skipping %s: %s -> %s crosses a major version", entry.Key(), current, safe)
			continue
		}

		newAlias := yarnlock.Key(name, caret(safe))
		if other, ok := out.FindByKey(newAlias); ok && other != entry {
			// the safe version is already locked; parents are pointed at it in PassB
			log.Debugf("%s is already locked by %s", newAlias, other.Key())
			continue
		}

		info, err := e.Registry.Info(ctx, name, safe)
		if err != nil {
			report.warn("skipping %s@%s: %w", name, safe, err)
			continue
		}
		if info.Dist == nil || info.Dist.Tarball == "" {
			report.warn("skipping %s@%s: registry returned no tarball", name, safe)
			continue
		}
		if _, hasIntegrity := entry.Field("integrity"); hasIntegrity && info.Dist.SRI() == "" {
			report.warn("skipping %s@%s: registry returned no integrity", name, safe)
			continue
		}

		out.UpdateEntry(entry, yarnlock.EntryUpdate{
			OldAlias:  g.Target,
			NewAlias:  newAlias,
			Version:   safe,
			Resolved:  info.Dist.Resolved(),
			Integrity: info.Dist.SRI(),
		})
		log.Infof("Updated %s from %s to %s", name, current, safe)
		report.add(unversioned.AppliedPatch{
			Kind:        unversioned.PatchEntry,
			Package:     name,
			From:        current,
			To:          safe,
			Key:         newAlias,
			Parent:      g.Parent,
			AdvisoryIDs: g.AdvisoryIDs,
		})
	}

	return out, report
}

// PassB points the parents of every group at the safe version of the target. A dependency line is
// only rewritten when the lockfile holds an entry for the new range locked at a version within it,
// so every rewritten range resolves. Every other entry declaring the same range of the target is
// rewritten along with the group's parent. The input lockfile is not modified.
func (e *Engine) PassB(ctx context.Context, lock *yarnlock.Lockfile, groups []*FixGroup) (*yarnlock.Lockfile, Report) {
	out := lock.Clone()
	var report Report

	for _, g := range groups {
		if ctx.Err() != nil {
			report.warn("parent pass interrupted: %w", ctx.Err())
			break
		}

		name := g.Package()
		safe, ok := e.safeVersion(ctx, name, g.Range, &report)
		if !ok {
			continue
		}
		newRange := caret(safe)

		target, ok := out.FindByKey(yarnlock.Key(name, newRange))
		if !ok || !policy.Satisfies(newRange, target.Version()) {
			log.Debugf("No entry locks %s within %s, leaving parents of %s alone", name, newRange, g.Target)
			continue
		}

		parent, ok := findParent(out, g.Parent)
		if !ok {
			log.Debugf("Parent %s not found, skipping", g.Parent)
			continue
		}
		dep, ok := parent.Dependency(g.Section, name)
		if !ok {
			log.Debugf("%s no longer declares %s, skipping", g.Parent, name)
			continue
		}

		oldRange := dep.Range
		switch {
		case oldRange == newRange:
			continue
		case !policy.IsUpgrade(oldRange, safe):
			log.Debugf("Not lowering %s %q in %s to %s", name, oldRange, parent.Key(), newRange)
			continue
		case policy.IsMajorBump(oldRange, safe):
			log.Infof("Skipping %s %q in %s: %s crosses a major version", name, oldRange, parent.Key(), safe)
			continue
		}

		for _, entry := range out.Entries() {
			for _, s := range e.Dialect.References {
				d, ok := entry.Dependency(s, name)
				if !ok || d.Range != oldRange {
					continue
				}
				if !out.SetDependencyRange(entry, s, name, newRange) {
					continue
				}
				log.Infof("Updated %s of %s from %q to %q", name, entry.Key(), oldRange, newRange)
				report.add(unversioned.AppliedPatch{
					Kind:        unversioned.PatchParentRange,
					Package:     name,
					From:        oldRange,
					To:          newRange,
					Key:         target.Key(),
					Parent:      entry.Key(),
					Section:     string(s),
					AdvisoryIDs: g.AdvisoryIDs,
				})
			}
		}
	}

	return out, report
}

// findParent looks a parent up by its composite key, falling back to its individual aliases in
// case the parent entry itself was renamed by an earlier fix.
func findParent(lock *yarnlock.Lockfile, key string) (*yarnlock.Entry, bool) {
	if e, ok := lock.FindByKey(key); ok {
		return e, true
	}
	for _, alias := range strings.Split(key, ", ") {
		if e, ok := lock.FindByKey(alias); ok {
			return e, true
		}
	}
	return nil, false
}

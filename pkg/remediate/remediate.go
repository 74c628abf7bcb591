// Package remediate runs one auto-fix of a repository: it patches the manifest and the yarn
// lockfile for the findings of an advisory feed and writes both patched copies next to the
// originals.
package remediate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/project-copacetic/autofix/pkg/engine"
	"github.com/project-copacetic/autofix/pkg/manifest"
	"github.com/project-copacetic/autofix/pkg/registry"
	"github.com/project-copacetic/autofix/pkg/types"
	"github.com/project-copacetic/autofix/pkg/types/unversioned"
	"github.com/project-copacetic/autofix/pkg/utils"
	"github.com/project-copacetic/autofix/pkg/vex"
	"github.com/project-copacetic/autofix/pkg/yarnlock"
	log "github.com/sirupsen/logrus"
)

const vexFormat = "openvex"

// Result is the outcome of a remediation run.
type Result struct {
	Patches []unversioned.AppliedPatch

	// Warnings aggregates the fixes that were skipped; it never invalidates Patches.
	Warnings error
	Skipped  int

	// Manifest and Lockfile hold the patched documents, written or not.
	Manifest []byte
	Lockfile []byte

	// ManifestOutput and LockfileOutput are the written paths, empty on a dry run.
	ManifestOutput string
	LockfileOutput string
	VEXOutput      string
}

// Changed reports whether any patch was applied.
func (r *Result) Changed() bool {
	return len(r.Patches) > 0
}

// Run remediates the repository at opts.RepoDir. The original manifest and lockfile are never
// modified. A fatal error from the manifest patch aborts the run before any file is written.
func Run(ctx context.Context, opts types.Options, feed unversioned.FixFeed, client registry.Client) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic during remediation: %v", r)
			res = nil
			err = fmt.Errorf("%w: %v", types.ErrUnexpected, r)
		}
	}()

	opts = opts.WithDefaults()

	manifestData, err := os.ReadFile(filepath.Join(opts.RepoDir, opts.ManifestFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}
	m, err := manifest.Parse(manifestData)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", opts.ManifestFile)
	}

	lockData, err := os.ReadFile(filepath.Join(opts.RepoDir, opts.Lockfile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read lockfile")
	}
	lock, err := yarnlock.Parse(lockData)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", opts.Lockfile)
	}

	findings := feed.Findings()
	log.Infof("Remediating %d finding(s) in %s", len(findings), opts.RepoDir)

	e := engine.New(registry.NewCachingClient(client), engine.YarnClassic())

	changes, manifestReport, err := e.PatchManifest(ctx, m, findings)
	if err != nil {
		return nil, err
	}

	groups := e.PlanIndirect(lock, findings)
	afterA, reportA := e.PassA(ctx, lock, groups)
	afterB, reportB := e.PassB(ctx, afterA, groups)

	patchedManifest, err := manifest.Apply(manifestData, changes)
	if err != nil {
		return nil, err
	}

	res = &Result{
		Manifest: patchedManifest,
		Lockfile: afterB.Bytes(),
	}
	var warnings *multierror.Error
	for _, r := range []engine.Report{manifestReport, reportA, reportB} {
		res.Patches = append(res.Patches, r.Patches...)
		if r.Warnings != nil {
			warnings = multierror.Append(warnings, r.Warnings.Errors...)
		}
	}
	res.Warnings = warnings.ErrorOrNil()
	res.Skipped = warningCount(warnings)
	log.Infof("Applied %d patch(es), skipped %d fix(es)", len(res.Patches), res.Skipped)

	if opts.DryRun {
		log.Info("Dry run: no files written")
		return res, nil
	}

	if res.ManifestOutput, err = writeOutput(opts.RepoDir, opts.ManifestOutput, res.Manifest); err != nil {
		return nil, err
	}
	if res.LockfileOutput, err = writeOutput(opts.RepoDir, opts.LockfileOutput, res.Lockfile); err != nil {
		return nil, err
	}

	if opts.VEXOutput != "" {
		product := vex.PackageURL(m.Name(), m.Version())
		if err := vex.TryOutputVexDocument(res.Patches, product, vexFormat, opts.VEXOutput); err != nil {
			return nil, errors.Wrap(err, "failed to write VEX document")
		}
		res.VEXOutput = opts.VEXOutput
	}

	return res, nil
}

func writeOutput(dir, file string, data []byte) (string, error) {
	if err := utils.WriteFile(dir, file, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %s: %w", types.ErrOutputMissing, file, err)
	}
	path := filepath.Join(dir, file)
	log.Infof("Wrote %s", path)
	return path, nil
}

func warningCount(w *multierror.Error) int {
	if w == nil {
		return 0
	}
	return len(w.Errors)
}

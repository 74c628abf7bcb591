package bulk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/project-copacetic/autofix/pkg/registry"
	"github.com/project-copacetic/autofix/pkg/remediate"
	"github.com/project-copacetic/autofix/pkg/report"
	"github.com/project-copacetic/autofix/pkg/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	StatusPatched   = "Patched"
	StatusUnchanged = "Unchanged"
	StatusFailed    = "Failed"

	// DefaultParallelism bounds the repositories remediated at once.
	DefaultParallelism = 4
)

type OrchestratorOptions struct {
	// Options is the template of every per-repository run; RepoDir is set per repository.
	Options      types.Options
	Parallelism  int
	Timeout      time.Duration
	IgnoreErrors bool

	// NewClient returns the registry client of one repository.
	NewClient func(dir string) registry.Client
}

// RemediateFromConfig runs one independent remediation per repository of the config at configPath
// and returns a summary row per repository. Failed repositories never stop the others; their errors
// are aggregated into the returned error unless IgnoreErrors is set.
func RemediateFromConfig(ctx context.Context, configPath string, opts OrchestratorOptions) ([]types.RepoSummary, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if opts.NewClient == nil {
		return nil, fmt.Errorf("no registry client configured")
	}

	type job struct {
		spec RepoSpec
		dir  string
	}
	var jobs []job
	var multiErr *multierror.Error
	var results []types.RepoSummary

	for i := range config.Repos {
		spec := config.Repos[i]
		dirs, err := FindRepos(&spec)
		if err != nil {
			err = fmt.Errorf("error discovering repositories for '%s': %w", spec.Name, err)
			multiErr = multierror.Append(multiErr, err)
			results = append(results, types.RepoSummary{Name: spec.Name, Path: spec.Path, Status: StatusFailed, Error: err.Error()})
			continue
		}
		for _, dir := range dirs {
			jobs = append(jobs, job{spec: spec, dir: dir})
		}
	}

	log.Infof("Starting bulk remediation for %d repositories defined in %s...", len(jobs), configPath)

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(parallelism)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			summary, err := remediateRepo(ctx, j.spec, j.dir, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				multiErr = multierror.Append(multiErr, fmt.Errorf("%s (%s): %w", j.spec.Name, j.dir, err))
				log.Errorf("--> Failed to remediate %s: %v", j.dir, err)
			} else {
				log.Infof("--> Finished %s: %s", j.dir, summary.Status)
			}
			results = append(results, summary)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, k int) bool {
		if results[i].Name != results[k].Name {
			return results[i].Name < results[k].Name
		}
		return results[i].Path < results[k].Path
	})
	printSummary(results)

	log.Info("Bulk remediation run completed.")
	if opts.IgnoreErrors {
		if err := multiErr.ErrorOrNil(); err != nil {
			log.Warnf("Ignoring errors: %v", err)
		}
		return results, nil
	}
	return results, multiErr.ErrorOrNil()
}

func remediateRepo(ctx context.Context, spec RepoSpec, dir string, opts OrchestratorOptions) (types.RepoSummary, error) {
	summary := types.RepoSummary{Name: spec.Name, Path: dir}
	fail := func(err error) (types.RepoSummary, error) {
		summary.Status = StatusFailed
		summary.Error = err.Error()
		return summary, err
	}

	feedFile := spec.Feed
	if !filepath.IsAbs(feedFile) {
		feedFile = filepath.Join(dir, feedFile)
	}
	feed, err := report.TryParseFeed(feedFile, spec.Format, spec.Ignore)
	if err != nil {
		return fail(err)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	runOpts := opts.Options
	runOpts.RepoDir = dir
	if runOpts.VEXOutput != "" && !filepath.IsAbs(runOpts.VEXOutput) {
		runOpts.VEXOutput = filepath.Join(dir, runOpts.VEXOutput)
	}

	log.Infof("--> Starting remediation for %s", dir)
	res, err := remediate.Run(ctx, runOpts, feed, opts.NewClient(dir))
	if err != nil {
		return fail(err)
	}

	summary.Patches = len(res.Patches)
	summary.Status = StatusUnchanged
	if res.Changed() {
		summary.Status = StatusPatched
	}
	if res.Skipped > 0 {
		summary.Error = fmt.Sprintf("%d fix(es) skipped", res.Skipped)
	}
	return summary, nil
}

// WriteSummary renders one table row per repository.
func WriteSummary(w io.Writer, results []types.RepoSummary) error {
	writer := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(writer, "NAME\tPATH\tSTATUS\tPATCHES\tDETAILS")
	for _, res := range results {
		details := "OK"
		if res.Error != "" {
			details = firstLine(res.Error)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\n", res.Name, res.Path, res.Status, res.Patches, details)
	}

	return writer.Flush()
}

func printSummary(results []types.RepoSummary) {
	if len(results) == 0 {
		return
	}

	var buf bytes.Buffer
	if err := WriteSummary(&buf, results); err != nil {
		log.Warnf("failed to render summary: %v", err)
		return
	}
	log.Infof("\n\n--- Bulk Remediation Summary ---\n%s", buf.String())
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

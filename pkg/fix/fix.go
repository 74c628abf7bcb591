// Package fix provides the `autofix fix` command.
package fix

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/project-copacetic/autofix/pkg/bulk"
	"github.com/project-copacetic/autofix/pkg/registry"
	"github.com/project-copacetic/autofix/pkg/remediate"
	"github.com/project-copacetic/autofix/pkg/report"
	"github.com/project-copacetic/autofix/pkg/types"
	"github.com/project-copacetic/autofix/pkg/tui"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "autofix"

func NewFixCmd() *cobra.Command {
	fixCmd := &cobra.Command{
		Use:   "fix",
		Short: "Patch package.json and yarn.lock with the safe versions suggested by an audit report",
		Example: `  autofix fix -r yarn-audit.json
  autofix fix --repo ./web -r npm-audit.json --format npm-audit --registry yarn
  autofix fix --config autofix-bulk.yaml --parallel 8`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newConfig(cmd)
			if err != nil {
				return err
			}
			opts := optionsFrom(v)
			configFile := v.GetString("config")

			if configFile == "" && opts.Feed == "" {
				return errors.New("either --config or --report must be provided")
			}
			if _, err := registry.New(opts.Registry, opts.RepoDir, registryConfig(opts)); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			// bulk remediation
			if configFile != "" {
				if cmd.Flags().Changed("report") || cmd.Flags().Changed("repo") {
					return errors.New("--config cannot be used with --report or --repo")
				}

				log.Info("Starting in bulk remediation mode...")
				results, err := bulk.RemediateFromConfig(ctx, configFile, bulk.OrchestratorOptions{
					Options:      opts,
					Parallelism:  v.GetInt("parallel"),
					Timeout:      v.GetDuration("repo-timeout"),
					IgnoreErrors: v.GetBool("ignore-errors"),
					NewClient: func(dir string) registry.Client {
						c, _ := registry.New(opts.Registry, dir, registryConfig(opts))
						return c
					},
				})
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderRepoSummary(results))
				return err
			}

			log.Info("Starting in single repository mode...")
			feed, err := report.TryParseFeed(opts.Feed, opts.FeedFormat, opts.IgnoreIDs)
			if err != nil {
				return err
			}
			client, err := registry.New(opts.Registry, opts.RepoDir, registryConfig(opts))
			if err != nil {
				return err
			}
			res, err := remediate.Run(ctx, opts, feed, client)
			if err != nil {
				return err
			}
			printResult(cmd, opts, res)
			return nil
		},
	}
	flags := fixCmd.Flags()
	flags.String("config", "", "Path to a bulk remediation YAML config file. If used, --repo and --report are ignored.")
	flags.StringP("repo", "d", ".", "Repository directory holding the manifest and the lockfile")
	flags.StringP("report", "r", "", "Audit report or fix feed file path")
	flags.StringP("format", "f", "", "Report format: fixfeed, yarn-audit, yarn-table or npm-audit, detected when empty")
	flags.IntSlice("ignore", nil, "Advisory ids to leave unfixed")
	flags.String("manifest", types.DefaultManifestFile, "Manifest file name")
	flags.String("lockfile", types.DefaultLockfile, "Lockfile file name")
	flags.String("manifest-output", types.DefaultManifestOutput, "Patched manifest file name")
	flags.String("lockfile-output", types.DefaultLockfileOutput, "Patched lockfile file name")
	flags.String("registry", types.RegistryNPM, "Registry client: 'npm' queries the registry API, 'yarn' runs `yarn info`")
	flags.String("registry-url", types.DefaultRegistryURL, "Registry URL used by the npm registry client")
	flags.Duration("timeout", 30*time.Second, "Timeout of a single registry query")
	flags.Int("retries", 3, "Retries of a failed registry query")
	flags.StringP("vex-output", "o", "", "Write an OpenVEX document of the fixed advisories to this path")
	flags.Bool("dry-run", false, "Compute the patches without writing any file")
	flags.Int("parallel", bulk.DefaultParallelism, "Repositories remediated at once in bulk mode")
	flags.Duration("repo-timeout", 10*time.Minute, "Timeout of one repository in bulk mode")
	flags.Bool("ignore-errors", false, "Exit successfully in bulk mode even when some repositories failed")

	return fixCmd
}

// newConfig binds the command's flags to AUTOFIX_* environment variables; flags set on the command
// line take precedence.
func newConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

func optionsFrom(v *viper.Viper) types.Options {
	return types.Options{
		RepoDir:        v.GetString("repo"),
		ManifestFile:   v.GetString("manifest"),
		Lockfile:       v.GetString("lockfile"),
		ManifestOutput: v.GetString("manifest-output"),
		LockfileOutput: v.GetString("lockfile-output"),
		Feed:           v.GetString("report"),
		FeedFormat:     v.GetString("format"),
		IgnoreIDs:      v.GetIntSlice("ignore"),
		Registry:       v.GetString("registry"),
		RegistryURL:    v.GetString("registry-url"),
		Timeout:        v.GetDuration("timeout"),
		RetryCount:     v.GetInt("retries"),
		VEXOutput:      v.GetString("vex-output"),
		DryRun:         v.GetBool("dry-run"),
	}.WithDefaults()
}

func registryConfig(opts types.Options) registry.Config {
	return registry.Config{URL: opts.RegistryURL, Timeout: opts.Timeout, RetryCount: opts.RetryCount}
}

func printResult(cmd *cobra.Command, opts types.Options, res *remediate.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, tui.RenderPatches(res.Patches))
	if res.Warnings != nil {
		log.Debugf("skipped fixes: %v", res.Warnings)
	}

	summary := tui.RunSummary{Patches: res.Patches, Skipped: res.Skipped, DryRun: opts.DryRun}
	for _, p := range []string{res.ManifestOutput, res.LockfileOutput, res.VEXOutput} {
		if p != "" {
			summary.Outputs = append(summary.Outputs, p)
		}
	}
	fmt.Fprint(out, tui.RenderRunSummary(summary))
}

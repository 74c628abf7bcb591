package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/project-copacetic/autofix/pkg/fix"
	"github.com/project-copacetic/autofix/pkg/tui"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Globals for Debug logging flag and version reporting.
var (
	debug   bool
	version string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autofix",
		Short: "Auto-fix vulnerable yarn dependencies",
		Long:  "autofix: patches package.json and yarn.lock with the safe versions reported by a dependency audit",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if debug || viper.GetBool("debug") {
				log.SetLevel(log.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&debug, "debug", false, "enable debug level logging")

	rootCmd.AddCommand(fix.NewFixCmd())
	return rootCmd
}

func initConfig() {
	viper.SetEnvPrefix("autofix")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	cobra.OnInitialize(initConfig)
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.Debugf("Error: %+v", err)
		fmt.Fprint(os.Stderr, tui.RenderError(tui.ErrorInfoFor(err)))
		os.Exit(1)
	}
}

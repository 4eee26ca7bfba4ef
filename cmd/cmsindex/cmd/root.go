// Package cmd provides the CLI commands for cmsindex.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/profiling"
	"github.com/Aman-CERP/cmsindex/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	dir         string
	debug       bool
	forceUnlock bool
	profile     profiling.Options
	session     *profiling.Session
}

// NewRootCmd creates the root command for the cmsindex CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "cmsindex",
		Short: "Search indexing for CMS content, media and members",
		Long: `cmsindex keeps full-text indexes of a content tree in sync with
content lifecycle events and answers administrative searches over them.

Configuration is read from ~/.config/cmsindex/config.yaml, then
cmsindex.yaml in the project directory, then CMSINDEX_* variables.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if !opts.profile.Enabled() {
				return nil
			}
			s, err := profiling.Start(opts.profile)
			if err != nil {
				return err
			}
			opts.session = s
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			err := opts.session.Stop()
			opts.session = nil
			return err
		},
	}

	cmd.SetVersionTemplate("cmsindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "Project directory holding cmsindex.yaml")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.forceUnlock, "force-unlock", false, "Clear index lock markers even if their owner is alive")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newApplyCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newUnlockCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, cmserrors.FormatForCLI(err))
	}
	return err
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/cmsindex/configs"
	"github.com/Aman-CERP/cmsindex/internal/config"
	"github.com/Aman-CERP/cmsindex/internal/output"
)

func newConfigCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize configuration",
	}

	cmd.AddCommand(newConfigShowCmd(global))
	cmd.AddCommand(newConfigInitCmd(global))

	return cmd
}

func newConfigShowCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCmd(global *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default cmsindex.yaml to the project directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			path := filepath.Join(global.dir, config.ProjectFileNames[0])

			if existing := config.ProjectConfigPath(global.dir); existing != "" {
				if !force {
					return fmt.Errorf("%s already exists (use --force to overwrite)", existing)
				}
				backup, err := config.BackupFile(existing)
				if err != nil {
					return err
				}
				out.Statusf("", "backed up %s to %s", existing, backup)
			}

			if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			out.Successf("wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config, keeping a backup")

	return cmd
}

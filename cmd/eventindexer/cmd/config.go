package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/eventindexer/configs"
	"github.com/Aman-CERP/eventindexer/internal/config"
	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/output"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the eventindexer configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. Config file (--config, or .eventindexer.yaml in the working directory)
  3. Environment variables (ES_END_POINT, DAYS_TO_KEEP_INDEX, EVENTINDEXER_*)`,
		Example: `  # Create .eventindexer.yaml from the annotated template
  eventindexer config init

  # Show effective configuration
  eventindexer config show`,
	}

	cmd.AddCommand(newConfigInitCmd(root))
	cmd.AddCommand(newConfigShowCmd(root))

	return cmd
}

func newConfigInitCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Write the annotated configuration template to --config, or to
.eventindexer.yaml in the working directory. An existing file is only
replaced with --force, after a timestamped backup is taken.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := root.configPath
			if path == "" {
				path = config.ProjectFileNames[0]
			}
			return runConfigInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil {
		if !force {
			return errors.ValidationError(fmt.Sprintf("config file %s already exists", path), nil).
				WithSuggestion("Use --force to overwrite it")
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return errors.ConfigError("failed to back up existing config", err)
		}
		out.Statusf("💾", "backed up %s to %s", path, backup)
	}

	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0644); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to write %s", path), err)
	}
	out.Successf("created %s", path)
	return nil
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if cfg == nil {
				cfg = config.NewConfig()
			}
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return errors.InternalError("failed to render config", err)
			}
			if src := cfg.Source(); src != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", src)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/twoview/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration files",
	Long: `Inspect the resolved configuration, write a default configuration file or validate one.

Configuration is merged from defaults, the config file, TWOVIEW_* environment variables
and command flags, in increasing priority.`,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the resolved configuration as YAML",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{lenientAnnotation: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := yaml.Marshal(GetConfig())
		if err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:         "init [file]",
	Short:       "Write the default configuration to a file",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{lenientAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		file := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			file = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(file); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", file)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := config.GenerateDefaultConfigFile(file); err != nil {
			return fmt.Errorf("failed to write %s: %w", file, err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", file)
		return nil
	},
}

var configInfoCmd = &cobra.Command{
	Use:         "info",
	Short:       "Show where configuration is loaded from",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{lenientAnnotation: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		GetConfigLoader().PrintConfigInfo(cmd.OutOrStdout())
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:         "validate",
	Short:       "Check the resolved configuration",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{lenientAnnotation: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := GetConfig().Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, configInfoCmd, configValidateCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
}

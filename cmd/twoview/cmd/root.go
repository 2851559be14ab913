package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/twoview/internal/config"
	"github.com/MeKo-Tech/twoview/internal/version"
)

var (
	// Configuration loader of the running command.
	configLoader *config.Loader
	// Configuration of the running command, flags applied.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string

	// flagBindings maps each command to its config key → flag name bindings.
	flagBindings = map[*cobra.Command]map[string]string{}
)

// lenientAnnotation marks commands that must run on an invalid configuration.
const lenientAnnotation = "lenient-config"

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "twoview",
	Short: "Two-view stereo reconstruction",
	Long: `twoview reconstructs colored 3D point clouds from two calibrated views of a scene.

A pair is rectified, matched along the rectified rows with a patch cost (SSD, SAD or ZNCC),
filtered by a left-right consistency check and triangulated. The resulting cloud is
post-filtered by depth range, background and statistical outliers.

Scenes are described by a YAML rig file or a Middlebury *_par.txt parameter file.

Examples:
  twoview reconstruct scene/rig.yaml --output cloud.ply
  twoview reconstruct temple_par.txt --views 3,4 --kernel zncc
  twoview disparity scene/rig.yaml --output disparity.png
  twoview batch datasets/ --recursive --cloud-dir clouds/
  twoview serve --port 8080`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
// This allows tests to execute commands without calling os.Exit().
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/twoview, /etc/twoview)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.SetVersionTemplate("twoview {{.Version}}\n")
}

// bindConfig registers config keys that the flags of cmd override.
func bindConfig(cmd *cobra.Command, keys map[string]string) {
	flagBindings[cmd] = keys
}

// initConfig loads the configuration for cmd from defaults, config file, environment and the
// flags that cmd bound, then sets up logging.
func initConfig(cmd *cobra.Command) error {
	configLoader = config.NewLoaderWith(viper.New())

	keys := map[string]string{"verbose": "verbose", "log_level": "log-level"}
	maps.Copy(keys, flagBindings[cmd])
	if err := configLoader.BindFlags(cmd.Flags(), keys); err != nil {
		return err
	}

	var err error
	if cmd.Annotations[lenientAnnotation] != "" {
		if cfgFile != "" {
			globalConfig, err = configLoader.LoadWithFileWithoutValidation(cfgFile)
		} else {
			globalConfig, err = configLoader.LoadWithoutValidation()
		}
	} else {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	setupLogging(cmd.ErrOrStderr(), globalConfig)
	return nil
}

// setupLogging installs a JSON slog handler on w. Results go to stdout, so logs use stderr.
func setupLogging(w io.Writer, cfg *config.Config) {
	var level slog.Level
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// GetConfig returns the configuration of the running command.
func GetConfig() *config.Config {
	if globalConfig == nil {
		cfg := config.DefaultConfig()
		return &cfg
	}
	return globalConfig
}

// GetConfigLoader returns the configuration loader of the running command.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoaderWith(viper.New())
	}
	return configLoader
}

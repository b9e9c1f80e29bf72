// Package cli implements the command-bot command-line interface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paritytech/command-bot-sub000/internal/config"
)

var (
	cfgFile string
	verbose bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "command-bot",
	Short: "Run pull request commands as CI pipelines",
	Long: `command-bot runs commands requested on pull requests or through its
HTTP API as GitLab CI pipelines and reports the results back.

Quick start:
  command-bot serve           Recover leftover tasks and serve the API
  command-bot tasks           List queued and running tasks
  command-bot version         Show the build version`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.ConfigFileName+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTasksCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig locates the config file. Values are read by loadConfig.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/command-bot")
		viper.AddConfigPath("/etc/command-bot")
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(config.ConfigFileName, ".yaml"))
	}

	viper.SetEnvPrefix("CMDBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// flagKeys are config paths that command-line flags may override.
var flagKeys = []string{"log.level", "server.addr"}

// loadConfig resolves defaults, the config file, CMDBOT_* variables and
// explicitly set flags, in that order, and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}
	for _, key := range flagKeys {
		if !viper.IsSet(key) {
			continue
		}
		v := viper.GetString(key)
		switch key {
		case "log.level":
			cfg.Log.Level = v
		case "server.addr":
			cfg.Server.Addr = v
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

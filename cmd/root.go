// Package cmd provides the command-line interface for the unbundle
// development server.
//
// Configuration Loading Priority (highest to lowest):
//  1. Command-line flags (--port, --config, ...)
//  2. Environment variables with the UNBUNDLE_ prefix
//     (UNBUNDLE_SERVER_PORT, UNBUNDLE_SERVE_PUBLIC_DIR, ...)
//  3. Configuration file (.unbundle.yml in the working directory)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "unbundle",
	Short: "A no-bundle development server for web projects",
	Long: `Unbundle serves your project sources directly to the browser,
compiling each requested script on demand instead of bundling ahead of time.

Key Features:
  • On-demand TypeScript/JSX compilation per request
  • Source-root mounts mapping URL prefixes onto project directories
  • SPA fallback routing with live-reload injection
  • File watching with automatic cache invalidation and reload
  • Pre-resolved module directory served as-is

Quick Start:
  unbundle serve                  Serve the current project
  unbundle serve --port 3000      Serve on a specific port`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .unbundle.yml)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".unbundle")
	}

	// Examples: UNBUNDLE_SERVER_PORT, UNBUNDLE_SERVE_PUBLIC_DIR
	viper.SetEnvPrefix("UNBUNDLE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; flags and defaults carry the day
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "quicktab",
		Short: "quicktab - window-level task switching for X11",
		Long: `quicktab replaces the application-level Alt-Tab gesture with one that
cycles individual windows.

Features:
  • Cycle every normal window, ordered by most recent use
  • Live window previews with application-icon fallback
  • Incremental search by title or application name
  • Alt+1..9 direct jump, in-session close and minimize
  • Local API for the on-screen switcher surface`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/quicktab/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "API server port")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path from the --config flag.
func GetConfigFile() string {
	return cfgFile
}

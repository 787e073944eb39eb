// Package commands implements the adlaps command line.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile  string
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "adlaps",
	Short: "Manage the local administrator password of an Active Directory bound host",
	Long: `adlaps reads and updates the LAPS password attributes of this host's
computer record in Active Directory.

The host must be joined to the domain (sssd with id_provider = ad, or a
static binding in the configuration file). By default the session
authenticates as the machine account using the system keytab.

Use "adlaps [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: /etc/adlaps/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "file of ADLAPS_* variables to load before reading configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(expirationCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(setCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

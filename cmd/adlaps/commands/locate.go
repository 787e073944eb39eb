package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isometry/adlaps/internal/laps"
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Show the Active Directory binding of this host",
	Long: `Show the directory node, domain and trust account this host is bound
with. No connection to the directory is made.`,
	Args: cobra.NoArgs,
	RunE: runLocate,
}

func runLocate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	path, info, err := laps.NewLocator(cfg.BindingSource(), logger.Named("locator")).Locate(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Path:          %s\n", path)
	fmt.Fprintf(out, "Domain:        %s\n", info.DomainNameDns)
	fmt.Fprintf(out, "Trust account: %s\n", info.TrustAccount)
	fmt.Fprintf(out, "Realm:         %s\n", info.KerberosRealm())
	if info.Server != "" {
		fmt.Fprintf(out, "Server:        %s\n", info.Server)
	}
	return nil
}

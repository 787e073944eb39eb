package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isometry/adlaps/internal/laps"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that this host can write its own password attributes",
	Long: `Write the stored expiration back unchanged to confirm the computer
record and the domain controller accept writes. A record with no
expiration gets the placeholder password instead.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.operate(cmd.Context(), laps.OpProbeWritable, laps.Credential{}); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Computer record is writable")
	return nil
}

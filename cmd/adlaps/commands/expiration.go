package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/isometry/adlaps/internal/laps"
)

var expirationCmd = &cobra.Command{
	Use:   "expiration",
	Short: "Show the stored password expiration of this host",
	Long: `Read the password expiration stored on this host's computer record.

A record that has never had a password set reports the 2001-01-01
sentinel, which is always due for rotation. The exit status is zero
whether or not rotation is due.`,
	Args: cobra.NoArgs,
	RunE: runExpiration,
}

func runExpiration(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	raw, err := s.operate(cmd.Context(), laps.OpReadExpiration, laps.Credential{})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Expiration: %s\n", raw)
	if t, err := laps.ParseExpiration(raw); err == nil {
		fmt.Fprintf(out, "Expires:    %s\n", t.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Due:        %t\n", laps.ExpirationDue(raw, time.Now()))
	return nil
}

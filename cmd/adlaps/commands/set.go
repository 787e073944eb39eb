package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/isometry/adlaps/internal/laps"
)

var (
	passwordStdin bool
	expiresIn     time.Duration
	expirationRaw string
)

var setCmd = &cobra.Command{
	Use:   "set --password-stdin",
	Short: "Store a new local administrator password for this host",
	Long: `Store a new password and expiration on this host's computer record.

The record is probed for writability first. The password is read from the
first line of standard input. If the password is stored but the expiration
is not, a warning is logged and the command still succeeds.

Examples:
  # Rotate with the default 30 day lifetime
  generate-password | adlaps set --password-stdin

  # Use an explicit FILETIME expiration
  adlaps set --password-stdin --expiration 133650000000000000 < pw.txt`,
	Args: cobra.NoArgs,
	RunE: runSet,
}

func init() {
	setCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the new password from standard input")
	setCmd.Flags().DurationVar(&expiresIn, "expires-in", 30*24*time.Hour, "password lifetime from now")
	setCmd.Flags().StringVar(&expirationRaw, "expiration", "", "raw expiration value (FILETIME), overrides --expires-in")
	setCmd.MarkFlagsMutuallyExclusive("expires-in", "expiration")
}

func runSet(cmd *cobra.Command, args []string) error {
	if !passwordStdin {
		return errors.New("--password-stdin is required")
	}
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}
	expiration, err := newExpiration(expirationRaw, expiresIn, time.Now())
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.operate(cmd.Context(), laps.OpProbeWritable, laps.Credential{}); err != nil {
		return err
	}
	cred := laps.Credential{Password: password, Expiration: expiration}
	if _, err := s.operate(cmd.Context(), laps.OpSetPassword, cred); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Password updated")
	return nil
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("no password on standard input")
	}
	return password, nil
}

// newExpiration returns raw when set, else now plus lifetime as FILETIME.
func newExpiration(raw string, lifetime time.Duration, now time.Time) (string, error) {
	if raw != "" {
		if _, err := laps.ParseExpiration(raw); err != nil {
			return "", fmt.Errorf("invalid --expiration: %w", err)
		}
		return raw, nil
	}
	if lifetime <= 0 {
		return "", errors.New("--expires-in must be positive")
	}
	return laps.ExpirationFromTime(now.Add(lifetime)), nil
}
